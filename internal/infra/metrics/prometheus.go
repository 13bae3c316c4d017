package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_jobs_processed_total",
		Help: "Total number of jobs driven to a terminal state, by outcome",
	}, []string{"outcome"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiapx_job_processing_duration_seconds",
		Help:    "Duration of video processing pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_frames_extracted_total",
		Help: "Total number of frames extracted across all jobs",
	})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_queue_messages_total",
		Help: "Queue deliveries by disposition (acked, requeued, dropped)",
	}, []string{"disposition"})

	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fiapx_jobs_in_flight",
		Help: "Number of jobs currently being processed",
	})
)
