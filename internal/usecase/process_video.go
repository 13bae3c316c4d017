package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/entity"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/port"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrJobLeased reports that another consumer currently holds the processing
// lease for this job; the message should be redelivered later.
var ErrJobLeased = errors.New("job lease held by another consumer")

// Leaser is the slice of the hot store the use case needs for mutual
// exclusion across consumer instances.
type Leaser interface {
	AcquireLease(ctx context.Context, id string) (bool, error)
	ReleaseLease(ctx context.Context, id string) error
}

// ProcessVideoUseCase drives a job from submission to a terminal outcome:
// Processing, frame extraction, archiving, input cleanup, then Completed or
// Failed. Modeled failures become terminal Failed jobs and are returned, not
// re-raised; repository write errors always propagate.
type ProcessVideoUseCase struct {
	repo      port.JobRepository
	storage   port.ObjectStorage
	extractor port.FrameExtractor
	zipper    port.Zipper
	notifier  port.TerminalNotifier
	leaser    Leaser
	logger    *zap.Logger
	tempDir   string
}

func NewProcessVideoUseCase(
	repo port.JobRepository,
	storage port.ObjectStorage,
	extractor port.FrameExtractor,
	zipper port.Zipper,
	notifier port.TerminalNotifier,
	leaser Leaser,
	logger *zap.Logger,
	tempDir string,
) *ProcessVideoUseCase {
	return &ProcessVideoUseCase{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		zipper:    zipper,
		notifier:  notifier,
		leaser:    leaser,
		logger:    logger,
		tempDir:   tempDir,
	}
}

// ProcessVideo runs the full pipeline for one video. It returns the terminal
// job snapshot; the error is non-nil only for faults the caller must surface
// to the queue layer (lease contention, repository failures, notification
// send failures).
func (uc *ProcessVideoUseCase) ProcessVideo(ctx context.Context, video entity.Video, userEmail string) (entity.Job, error) {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessVideoUseCase.ProcessVideo")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", video.ID),
		attribute.String("job.video_path", video.Path),
	)

	log := uc.logger.With(zap.String("job_id", video.ID), zap.String("user_id", video.UserID))

	ok, err := uc.leaser.AcquireLease(ctx, video.ID)
	if err != nil {
		return entity.Job{}, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		log.Warn("job already being processed elsewhere")
		return entity.Job{}, ErrJobLeased
	}
	defer func() {
		if err := uc.leaser.ReleaseLease(ctx, video.ID); err != nil {
			log.Warn("release lease failed", zap.Error(err))
		}
	}()

	// A redelivered message for a job that already settled is acknowledged
	// as-is; terminal snapshots are never driven back into Processing.
	if existing, err := uc.repo.FindByID(ctx, video.ID, video.UserID); err == nil && existing.IsTerminal() {
		log.Info("job already in terminal state, skipping redelivery",
			zap.String("status", string(existing.Status)))
		return existing, nil
	} else if err != nil && !errors.Is(err, port.ErrJobNotFound) {
		return entity.Job{}, fmt.Errorf("check job state: %w", err)
	}

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()
	totalTimer := time.Now()

	if err := uc.repo.UpdateStatus(ctx, video.ID, video.UserID,
		entity.JobStatusProcessing, "processing video", port.StatusExtra{}); err != nil {
		if errors.Is(err, port.ErrJobTerminal) {
			// Lost the race with another instance that settled the job.
			return uc.repo.FindByID(ctx, video.ID, video.UserID)
		}
		return entity.Job{}, fmt.Errorf("persist processing status: %w", err)
	}

	job, pipelineErr := uc.runPipeline(ctx, video, log)
	if pipelineErr != nil {
		// Repository errors from inside the pipeline: the job state is not
		// trustworthy, so they propagate instead of becoming a Failed job.
		return entity.Job{}, pipelineErr
	}

	outcome := "completed"
	if job.IsFailed() {
		outcome = "failed"
	}
	metrics.JobsProcessedTotal.WithLabelValues(outcome).Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	if err := uc.notifier.NotifyTerminal(ctx, job, userEmail); err != nil {
		// The terminal state is already persisted; the send failure
		// propagates without rolling anything back.
		return job, fmt.Errorf("notify terminal outcome: %w", err)
	}

	return job, nil
}

// runPipeline executes extraction through terminal persistence. Modeled
// step failures are converted into a persisted Failed snapshot; only
// repository errors come back as a non-nil error.
func (uc *ProcessVideoUseCase) runPipeline(ctx context.Context, video entity.Video, log *zap.Logger) (entity.Job, error) {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, video.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return uc.fail(ctx, video, fmt.Sprintf("create workdir: %v", err))
	}
	defer os.RemoveAll(workDir)

	dlStart := time.Now()
	dlCtx, dlSpan := tracer.Start(ctx, "download_video")
	inputPath := filepath.Join(workDir, "input"+filepath.Ext(video.Name))
	if err := uc.storage.Download(dlCtx, video.Path, inputPath); err != nil {
		dlSpan.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.fail(ctx, video, fmt.Sprintf("download video: %v", err))
	}
	dlSpan.End()
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	exStart := time.Now()
	exCtx, exSpan := tracer.Start(ctx, "extract_frames")
	framesDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		exSpan.End()
		return uc.fail(ctx, video, fmt.Sprintf("create frames dir: %v", err))
	}
	result, err := uc.extractor.ExtractFrames(exCtx, inputPath, framesDir)
	if err != nil {
		exSpan.End()
		log.Error("frame extraction failed", zap.Error(err))
		return uc.fail(ctx, video, err.Error())
	}
	exSpan.End()
	metrics.JobProcessingDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())

	if result.FrameCount == 0 {
		log.Warn("no frames extracted")
		return uc.fail(ctx, video, "no frames extracted from video")
	}
	metrics.FramesExtractedTotal.Add(float64(result.FrameCount))

	zipStart := time.Now()
	zipCtx, zipSpan := tracer.Start(ctx, "create_archive")
	archiveName := video.ID + ".zip"
	archivePath := filepath.Join(workDir, archiveName)
	if err := uc.zipper.CreateZip(zipCtx, result.FramePaths, archivePath); err != nil {
		zipSpan.End()
		log.Error("archive creation failed", zap.Error(err))
		return uc.fail(ctx, video, fmt.Sprintf("create archive: %v", err))
	}
	zipSpan.End()
	metrics.JobProcessingDuration.WithLabelValues("archive").Observe(time.Since(zipStart).Seconds())

	upStart := time.Now()
	upCtx, upSpan := tracer.Start(ctx, "upload_archive")
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		upSpan.End()
		return uc.fail(ctx, video, fmt.Sprintf("open archive: %v", err))
	}
	stat, err := archiveFile.Stat()
	if err != nil {
		archiveFile.Close()
		upSpan.End()
		return uc.fail(ctx, video, fmt.Sprintf("stat archive: %v", err))
	}
	if err := uc.storage.UploadArchive(upCtx, archiveName, archiveFile, stat.Size()); err != nil {
		archiveFile.Close()
		upSpan.End()
		log.Error("archive upload failed", zap.Error(err))
		return uc.fail(ctx, video, fmt.Sprintf("upload archive: %v", err))
	}
	archiveFile.Close()
	upSpan.End()
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	if err := uc.storage.Delete(ctx, video.Path); err != nil {
		log.Error("failed to delete original input", zap.Error(err))
		return uc.fail(ctx, video, fmt.Sprintf("delete original input: %v", err))
	}

	extra := port.StatusExtra{FrameCount: result.FrameCount, ArchiveName: archiveName}
	msg := fmt.Sprintf("processing completed: %d frames extracted", result.FrameCount)
	if err := uc.repo.UpdateStatus(ctx, video.ID, video.UserID,
		entity.JobStatusCompleted, msg, extra); err != nil {
		return entity.Job{}, fmt.Errorf("persist completed status: %w", err)
	}

	log.Info("job completed",
		zap.Int("frame_count", result.FrameCount),
		zap.Float64("duration_secs", result.VideoDuration),
		zap.String("archive_name", archiveName),
	)

	completed := entity.NewCompletedJob(video.ID, video.Name, video.UserID, result.FrameCount, archiveName)
	completed.Message = msg
	return completed, nil
}

// fail persists the terminal Failed snapshot and returns it. Only the
// repository write error propagates.
func (uc *ProcessVideoUseCase) fail(ctx context.Context, video entity.Video, reason string) (entity.Job, error) {
	if err := uc.repo.UpdateStatus(ctx, video.ID, video.UserID,
		entity.JobStatusFailed, reason, port.StatusExtra{}); err != nil {
		return entity.Job{}, fmt.Errorf("persist failed status: %w", err)
	}
	return entity.NewFailedJob(video.ID, video.Name, video.UserID, reason), nil
}
