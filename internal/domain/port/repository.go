package port

import (
	"context"
	"errors"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/entity"
)

// ErrJobNotFound is returned by every store when a job does not exist for the
// given (id, userID) pair. A mismatched owner is indistinguishable from a
// missing job.
var ErrJobNotFound = errors.New("job not found")

// ErrJobTerminal is returned when an update would overwrite a job that
// already reached Completed or Failed. Terminal snapshots are never mutated.
var ErrJobTerminal = errors.New("job already in terminal state")

// StatusExtra carries the terminal result fields applied by UpdateStatus.
type StatusExtra struct {
	FrameCount  int
	ArchiveName string
}

// JobRepository is the single contract the pipeline persists through. The
// tiered implementation routes between a hot store for non-terminal jobs and
// a durable store for terminal jobs.
type JobRepository interface {
	Save(ctx context.Context, job entity.Job) error
	FindByID(ctx context.Context, id, userID string) (entity.Job, error)
	ListByUser(ctx context.Context, userID string) ([]entity.Job, error)
	UpdateStatus(ctx context.Context, id, userID string, status entity.JobStatus, message string, extra StatusExtra) error
	UpdateVideoPath(ctx context.Context, id, userID, videoPath string) error
}

// HotJobStore holds non-terminal job snapshots, keyed per user and per job,
// plus the per-job processing lease.
type HotJobStore interface {
	Save(ctx context.Context, job entity.Job) error
	FindByID(ctx context.Context, id, userID string) (entity.Job, error)
	ListByUser(ctx context.Context, userID string) ([]entity.Job, error)
	Delete(ctx context.Context, id, userID string) error
	UpdateVideoPath(ctx context.Context, id, userID, videoPath string) error
	AcquireLease(ctx context.Context, id string) (bool, error)
	ReleaseLease(ctx context.Context, id string) error
}

// DurableJobStore holds terminal job snapshots. Upsert must be idempotent by
// job id so the hot-to-durable migration can be replayed.
type DurableJobStore interface {
	Upsert(ctx context.Context, job entity.Job) error
	FindByID(ctx context.Context, id, userID string) (entity.Job, error)
	ListByUser(ctx context.Context, userID string) ([]entity.Job, error)
	UpdateStatus(ctx context.Context, id, userID string, status entity.JobStatus, message string, extra StatusExtra) error
	UpdateVideoPath(ctx context.Context, id, userID, videoPath string) error
}
