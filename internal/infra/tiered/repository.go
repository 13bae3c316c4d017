package tiered

import (
	"context"
	"errors"
	"fmt"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/entity"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/port"
	"go.uber.org/zap"
)

// Repository presents the single JobRepository contract while splitting
// storage between the hot store (non-terminal snapshots) and the durable
// store (terminal snapshots). A given job id lives in exactly one store at a
// time, except for the window between the durable write and the hot delete
// of a terminal migration, which is at-least-once rather than atomic.
type Repository struct {
	hot     port.HotJobStore
	durable port.DurableJobStore
	logger  *zap.Logger
}

func NewRepository(hot port.HotJobStore, durable port.DurableJobStore, logger *zap.Logger) *Repository {
	return &Repository{hot: hot, durable: durable, logger: logger}
}

func (r *Repository) Save(ctx context.Context, job entity.Job) error {
	if job.IsTerminal() {
		return r.durable.Upsert(ctx, job)
	}
	return r.hot.Save(ctx, job)
}

// FindByID consults the hot store first and falls back to the durable store.
// First hit wins; records are never merged.
func (r *Repository) FindByID(ctx context.Context, id, userID string) (entity.Job, error) {
	job, err := r.hot.FindByID(ctx, id, userID)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, port.ErrJobNotFound) {
		return entity.Job{}, err
	}
	return r.durable.FindByID(ctx, id, userID)
}

// ListByUser concatenates durable results then hot results. No deduplication:
// the routing policy keeps each job in one store, and a crash-window
// duplicate is acceptable until the migration is replayed.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]entity.Job, error) {
	durable, err := r.durable.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	hot, err := r.hot.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	jobs := make([]entity.Job, 0, len(durable)+len(hot))
	jobs = append(jobs, durable...)
	jobs = append(jobs, hot...)
	return jobs, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id, userID string, status entity.JobStatus, message string, extra port.StatusExtra) error {
	terminal := status == entity.JobStatusCompleted || status == entity.JobStatusFailed
	if terminal {
		return r.migrateTerminal(ctx, id, userID, status, message, extra)
	}

	// Non-terminal updates target the hot store only. On a hot miss the
	// durable store is consulted first: a job that already migrated must
	// never be resurrected into a live state. Otherwise a fresh snapshot is
	// upserted so a restarted worker can still record progress.
	current, err := r.hot.FindByID(ctx, id, userID)
	if errors.Is(err, port.ErrJobNotFound) {
		if settled, derr := r.durable.FindByID(ctx, id, userID); derr == nil && settled.IsTerminal() {
			return port.ErrJobTerminal
		} else if derr != nil && !errors.Is(derr, port.ErrJobNotFound) {
			return derr
		}
		fresh := entity.NewProcessingJob(id, "", userID)
		fresh.Message = message
		return r.hot.Save(ctx, fresh)
	}
	if err != nil {
		return err
	}

	updated := applyStatus(current, status, message, extra)
	return r.hot.Save(ctx, updated)
}

// migrateTerminal moves the authoritative record out of the hot store:
// build the terminal snapshot, upsert it into the durable store, then delete
// the hot copy. The upsert is idempotent by id, so a crash between the two
// writes leaves a duplicate that the next attempt cleans up.
func (r *Repository) migrateTerminal(ctx context.Context, id, userID string, status entity.JobStatus, message string, extra port.StatusExtra) error {
	current, err := r.hot.FindByID(ctx, id, userID)
	if errors.Is(err, port.ErrJobNotFound) {
		// Already migrated, or the hot record was lost. The first terminal
		// outcome wins: a durable record that is already terminal is left
		// untouched, so a redelivered message cannot flip Completed to
		// Failed or vice versa.
		settled, derr := r.durable.FindByID(ctx, id, userID)
		if derr == nil && settled.IsTerminal() {
			r.logger.Info("terminal update ignored, job already settled",
				zap.String("job_id", id), zap.String("status", string(settled.Status)))
			return nil
		}
		if derr != nil && !errors.Is(derr, port.ErrJobNotFound) {
			return derr
		}
		return r.durable.UpdateStatus(ctx, id, userID, status, message, extra)
	}
	if err != nil {
		return err
	}

	terminal := applyStatus(current, status, message, extra)
	if err := r.durable.Upsert(ctx, terminal); err != nil {
		return fmt.Errorf("migrate job %s to durable store: %w", id, err)
	}
	if err := r.hot.Delete(ctx, id, userID); err != nil {
		// The durable copy is authoritative now; the stale hot record will
		// be removed when the migration is replayed.
		r.logger.Warn("hot store cleanup failed after migration",
			zap.String("job_id", id), zap.Error(err))
	}
	return nil
}

// UpdateVideoPath is cheap and idempotent, so it is applied to both stores
// unconditionally.
func (r *Repository) UpdateVideoPath(ctx context.Context, id, userID, videoPath string) error {
	if err := r.hot.UpdateVideoPath(ctx, id, userID, videoPath); err != nil {
		return err
	}
	return r.durable.UpdateVideoPath(ctx, id, userID, videoPath)
}

func applyStatus(current entity.Job, status entity.JobStatus, message string, extra port.StatusExtra) entity.Job {
	switch status {
	case entity.JobStatusCompleted:
		job := entity.NewCompletedJob(current.ID, current.VideoName, current.UserID, extra.FrameCount, extra.ArchiveName)
		if message != "" {
			job.Message = message
		}
		job.VideoPath = current.VideoPath
		job.CreatedAt = current.CreatedAt
		return job
	case entity.JobStatusFailed:
		job := entity.NewFailedJob(current.ID, current.VideoName, current.UserID, message)
		job.VideoPath = current.VideoPath
		job.CreatedAt = current.CreatedAt
		return job
	case entity.JobStatusProcessing:
		job := entity.NewProcessingJob(current.ID, current.VideoName, current.UserID)
		if message != "" {
			job.Message = message
		}
		job.VideoPath = current.VideoPath
		job.CreatedAt = current.CreatedAt
		return job
	default:
		job := entity.NewPendingJob(current.ID, current.VideoName, current.UserID)
		if message != "" {
			job.Message = message
		}
		job.VideoPath = current.VideoPath
		job.CreatedAt = current.CreatedAt
		return job
	}
}
