package entity

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Job is an immutable snapshot of one video's processing lifecycle. Every
// transition is a new snapshot produced by one of the factories below; there
// are no mutation methods, and no code outside this package should construct
// a Job literal.
type Job struct {
	ID          string     `json:"id"`
	VideoName   string     `json:"video_name"`
	Status      JobStatus  `json:"status"`
	Message     string     `json:"message"`
	UserID      string     `json:"user_id"`
	FrameCount  int        `json:"frame_count,omitempty"`
	ArchiveName string     `json:"archive_name,omitempty"`
	VideoPath   string     `json:"video_path,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func NewPendingJob(id, videoName, userID string) Job {
	return Job{
		ID:        id,
		VideoName: videoName,
		Status:    JobStatusPending,
		Message:   "waiting for processing",
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
}

func NewProcessingJob(id, videoName, userID string) Job {
	now := time.Now().UTC()
	return Job{
		ID:        id,
		VideoName: videoName,
		Status:    JobStatusProcessing,
		Message:   "processing video",
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: &now,
	}
}

// NewCompletedJob carries the terminal result fields; FrameCount and
// ArchiveName are set on no other status.
func NewCompletedJob(id, videoName, userID string, frameCount int, archiveName string) Job {
	now := time.Now().UTC()
	return Job{
		ID:          id,
		VideoName:   videoName,
		Status:      JobStatusCompleted,
		Message:     "processing completed",
		UserID:      userID,
		FrameCount:  frameCount,
		ArchiveName: archiveName,
		CreatedAt:   now,
		UpdatedAt:   &now,
	}
}

func NewFailedJob(id, videoName, userID, errText string) Job {
	now := time.Now().UTC()
	return Job{
		ID:        id,
		VideoName: videoName,
		Status:    JobStatusFailed,
		Message:   errText,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: &now,
	}
}

func (j Job) IsCompleted() bool { return j.Status == JobStatusCompleted }

func (j Job) IsFailed() bool { return j.Status == JobStatusFailed }

// IsTerminal reports whether the job reached a state that must never be
// overwritten by a later transition.
func (j Job) IsTerminal() bool { return j.IsCompleted() || j.IsFailed() }
