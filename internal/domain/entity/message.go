package entity

// QueueMessage is the payload enqueued once per upload and consumed by the
// processing worker. Its ID is the job id; delivery is at-least-once, so the
// same message may be handled more than once.
type QueueMessage struct {
	ID        string `json:"id"`
	VideoPath string `json:"video_path"`
	VideoName string `json:"video_name"`
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email,omitempty"`
}

// Video is the minimal processing identity rebuilt from a QueueMessage.
type Video struct {
	ID     string
	Name   string
	Path   string
	UserID string
}

func (m QueueMessage) Video() Video {
	return Video{
		ID:     m.ID,
		Name:   m.VideoName,
		Path:   m.VideoPath,
		UserID: m.UserID,
	}
}
