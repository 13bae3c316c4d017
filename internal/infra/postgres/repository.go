package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/entity"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobRepository is the durable store for terminal job snapshots. Writes are
// upserts keyed by job id so replaying the hot-to-durable migration is safe.
type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Upsert(ctx context.Context, job entity.Job) error {
	query := `
		INSERT INTO processing_jobs (
			id, user_id, video_name, video_path, status, message,
			frame_count, archive_name, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			status=EXCLUDED.status, message=EXCLUDED.message,
			frame_count=EXCLUDED.frame_count, archive_name=EXCLUDED.archive_name,
			video_path=EXCLUDED.video_path, updated_at=EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoName, job.VideoPath, string(job.Status),
		job.Message, job.FrameCount, job.ArchiveName, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id, userID string) (entity.Job, error) {
	query := `
		SELECT id, user_id, video_name, video_path, status, message,
			frame_count, archive_name, created_at, updated_at
		FROM processing_jobs WHERE id=$1 AND user_id=$2`

	job, err := r.scanJob(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.Job{}, port.ErrJobNotFound
	}
	if err != nil {
		return entity.Job{}, fmt.Errorf("find job by id: %w", err)
	}
	return job, nil
}

func (r *JobRepository) ListByUser(ctx context.Context, userID string) ([]entity.Job, error) {
	query := `
		SELECT id, user_id, video_name, video_path, status, message,
			frame_count, archive_name, created_at, updated_at
		FROM processing_jobs WHERE user_id=$1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs by user: %w", err)
	}
	defer rows.Close()

	jobs := []entity.Job{}
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) UpdateStatus(ctx context.Context, id, userID string, status entity.JobStatus, message string, extra port.StatusExtra) error {
	query := `
		UPDATE processing_jobs SET
			status=$3, message=$4, frame_count=$5, archive_name=$6, updated_at=now()
		WHERE id=$1 AND user_id=$2`

	tag, err := r.pool.Exec(ctx, query,
		id, userID, string(status), message, extra.FrameCount, extra.ArchiveName,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return port.ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) UpdateVideoPath(ctx context.Context, id, userID, videoPath string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE processing_jobs SET video_path=$3, updated_at=now() WHERE id=$1 AND user_id=$2`,
		id, userID, videoPath,
	)
	if err != nil {
		return fmt.Errorf("update job video path: %w", err)
	}
	return nil
}

func (r *JobRepository) scanJob(row pgx.Row) (entity.Job, error) {
	var job entity.Job
	var status string
	err := row.Scan(
		&job.ID, &job.UserID, &job.VideoName, &job.VideoPath, &status,
		&job.Message, &job.FrameCount, &job.ArchiveName,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return entity.Job{}, err
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}
