package worker

import (
	"context"
	"time"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/entity"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/port"
	"go.uber.org/zap"
)

// Processor is the slice of the processing service the driver invokes per
// message.
type Processor interface {
	ProcessVideo(ctx context.Context, video entity.Video, userEmail string) (entity.Job, error)
}

// Driver bridges the queue adapter to the processing service: it waits for
// the broker to come up, then supervises the consumer, re-establishing it
// after failures until the context is cancelled.
type Driver struct {
	consumer   port.MessageConsumer
	processor  Processor
	logger     *zap.Logger
	startDelay time.Duration
	retryDelay time.Duration
}

func NewDriver(consumer port.MessageConsumer, processor Processor, logger *zap.Logger, startDelay, retryDelay time.Duration) *Driver {
	return &Driver{
		consumer:   consumer,
		processor:  processor,
		logger:     logger,
		startDelay: startDelay,
		retryDelay: retryDelay,
	}
}

// Run blocks until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.startDelay):
	}

	for {
		err := d.consumer.Consume(ctx, d.handleMessage)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Error("consumer stopped, retrying",
			zap.Error(err), zap.Duration("retry_delay", d.retryDelay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.retryDelay):
		}
	}
}

// handleMessage rebuilds the video identity and invokes the processing
// service. A modeled Failed outcome is logged and acknowledged; only hard
// faults are re-raised so the queue adapter's nack policy applies.
func (d *Driver) handleMessage(ctx context.Context, msg entity.QueueMessage) error {
	log := d.logger.With(zap.String("job_id", msg.ID), zap.String("user_id", msg.UserID))
	log.Info("processing message", zap.String("video_path", msg.VideoPath))

	job, err := d.processor.ProcessVideo(ctx, msg.Video(), msg.UserEmail)
	if err != nil {
		return err
	}

	if job.IsFailed() {
		log.Warn("job finished in failed state", zap.String("message", job.Message))
	}
	return nil
}
