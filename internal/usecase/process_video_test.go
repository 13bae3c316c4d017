package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/entity"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type statusCall struct {
	ID      string
	UserID  string
	Status  entity.JobStatus
	Message string
	Extra   port.StatusExtra
}

type fakeRepo struct {
	calls    []statusCall
	failOn   entity.JobStatus
	failErr  error
	existing *entity.Job
}

func (r *fakeRepo) Save(context.Context, entity.Job) error { return nil }

func (r *fakeRepo) FindByID(_ context.Context, id, userID string) (entity.Job, error) {
	if r.existing != nil && r.existing.ID == id && r.existing.UserID == userID {
		return *r.existing, nil
	}
	return entity.Job{}, port.ErrJobNotFound
}

func (r *fakeRepo) ListByUser(context.Context, string) ([]entity.Job, error) {
	return nil, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id, userID string, status entity.JobStatus, message string, extra port.StatusExtra) error {
	if r.failOn != "" && status == r.failOn {
		return r.failErr
	}
	r.calls = append(r.calls, statusCall{id, userID, status, message, extra})
	return nil
}

func (r *fakeRepo) UpdateVideoPath(context.Context, string, string, string) error { return nil }

func (r *fakeRepo) lastCall() statusCall { return r.calls[len(r.calls)-1] }

type fakeStorage struct {
	deleted     []string
	uploaded    []string
	downloadErr error
	uploadErr   error
}

func (s *fakeStorage) Exists(context.Context, string) (bool, error) { return true, nil }

func (s *fakeStorage) Download(_ context.Context, _ string, destPath string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	return os.WriteFile(destPath, []byte("video-bytes"), 0o644)
}

func (s *fakeStorage) UploadArchive(_ context.Context, objectKey string, _ io.Reader, _ int64) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.uploaded = append(s.uploaded, objectKey)
	return nil
}

func (s *fakeStorage) Delete(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	return nil
}

func (s *fakeStorage) OpenRead(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

type fakeExtractor struct {
	frameCount int
	err        error
}

func (e *fakeExtractor) ExtractFrames(_ context.Context, _ string, outputDir string) (*port.FrameExtractionResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	paths := make([]string, e.frameCount)
	for i := range paths {
		paths[i] = fmt.Sprintf("%s/frame_%04d.png", outputDir, i+1)
	}
	return &port.FrameExtractionResult{
		FramePaths:    paths,
		FrameCount:    e.frameCount,
		VideoDuration: 2.0,
	}, nil
}

type fakeZipper struct {
	called bool
}

func (z *fakeZipper) CreateZip(_ context.Context, _ []string, outputPath string) error {
	z.called = true
	return os.WriteFile(outputPath, []byte("zip-bytes"), 0o644)
}

type fakeNotifier struct {
	notified []entity.Job
	emails   []string
	sendErr  error
}

func (n *fakeNotifier) NotifyTerminal(_ context.Context, job entity.Job, knownEmail string) error {
	n.notified = append(n.notified, job)
	n.emails = append(n.emails, knownEmail)
	return n.sendErr
}

type fakeLeaser struct {
	held     bool
	acquired []string
	released []string
}

func (l *fakeLeaser) AcquireLease(_ context.Context, id string) (bool, error) {
	if l.held {
		return false, nil
	}
	l.acquired = append(l.acquired, id)
	return true, nil
}

func (l *fakeLeaser) ReleaseLease(_ context.Context, id string) error {
	l.released = append(l.released, id)
	return nil
}

type fixture struct {
	uc        *ProcessVideoUseCase
	repo      *fakeRepo
	storage   *fakeStorage
	extractor *fakeExtractor
	zipper    *fakeZipper
	notifier  *fakeNotifier
	leaser    *fakeLeaser
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		repo:      &fakeRepo{},
		storage:   &fakeStorage{},
		extractor: &fakeExtractor{frameCount: 3},
		zipper:    &fakeZipper{},
		notifier:  &fakeNotifier{},
		leaser:    &fakeLeaser{},
	}
	f.uc = NewProcessVideoUseCase(
		f.repo, f.storage, f.extractor, f.zipper, f.notifier, f.leaser,
		zap.NewNop(), t.TempDir(),
	)
	return f
}

func testVideo() entity.Video {
	return entity.Video{ID: "J1", Name: "party.mp4", Path: "U1/party.mp4", UserID: "U1"}
}

func TestProcessVideoCompletes(t *testing.T) {
	f := newFixture(t)

	job, err := f.uc.ProcessVideo(context.Background(), testVideo(), "owner@example.com")
	require.NoError(t, err)

	assert.True(t, job.IsCompleted())
	assert.Equal(t, "J1", job.ID)
	assert.Equal(t, 3, job.FrameCount)
	assert.Equal(t, "J1.zip", job.ArchiveName)

	// Processing then Completed were persisted.
	require.Len(t, f.repo.calls, 2)
	assert.Equal(t, entity.JobStatusProcessing, f.repo.calls[0].Status)
	last := f.repo.lastCall()
	assert.Equal(t, entity.JobStatusCompleted, last.Status)
	assert.Equal(t, port.StatusExtra{FrameCount: 3, ArchiveName: "J1.zip"}, last.Extra)

	assert.Equal(t, []string{"J1.zip"}, f.storage.uploaded)
	assert.Equal(t, []string{"U1/party.mp4"}, f.storage.deleted)

	require.Len(t, f.notifier.notified, 1)
	assert.True(t, f.notifier.notified[0].IsCompleted())
	assert.Equal(t, "owner@example.com", f.notifier.emails[0])

	assert.Equal(t, []string{"J1"}, f.leaser.acquired)
	assert.Equal(t, []string{"J1"}, f.leaser.released)
}

func TestProcessVideoZeroFramesFails(t *testing.T) {
	f := newFixture(t)
	f.extractor.frameCount = 0

	video := testVideo()
	video.ID = "J2"
	job, err := f.uc.ProcessVideo(context.Background(), video, "")
	require.NoError(t, err)

	assert.True(t, job.IsFailed())
	assert.Contains(t, job.Message, "no frames")
	assert.False(t, f.zipper.called, "no archive should be created")
	assert.Empty(t, f.storage.uploaded)

	last := f.repo.lastCall()
	assert.Equal(t, entity.JobStatusFailed, last.Status)
	assert.Contains(t, last.Message, "no frames")

	require.Len(t, f.notifier.notified, 1)
	assert.True(t, f.notifier.notified[0].IsFailed())
}

func TestProcessVideoExtractionErrorFails(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = entity.NewFault(entity.FaultDecode, errors.New("corrupt container"))

	job, err := f.uc.ProcessVideo(context.Background(), testVideo(), "")
	require.NoError(t, err)

	assert.True(t, job.IsFailed())
	assert.Contains(t, job.Message, "corrupt container")
	assert.False(t, f.zipper.called, "archive creation must not be attempted")
	assert.Empty(t, f.storage.deleted, "original input must be kept")
}

func TestProcessVideoDownloadErrorFails(t *testing.T) {
	f := newFixture(t)
	f.storage.downloadErr = errors.New("object missing")

	job, err := f.uc.ProcessVideo(context.Background(), testVideo(), "")
	require.NoError(t, err)

	assert.True(t, job.IsFailed())
	assert.Contains(t, job.Message, "object missing")
}

func TestProcessVideoRepositoryErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.repo.failOn = entity.JobStatusCompleted
	f.repo.failErr = errors.New("durable store down")

	_, err := f.uc.ProcessVideo(context.Background(), testVideo(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "durable store down")
	assert.Empty(t, f.notifier.notified, "no notification for untrusted state")
}

func TestProcessVideoLeaseContention(t *testing.T) {
	f := newFixture(t)
	f.leaser.held = true

	_, err := f.uc.ProcessVideo(context.Background(), testVideo(), "")
	require.ErrorIs(t, err, ErrJobLeased)
	assert.Equal(t, entity.FaultTransient, entity.FaultKindOf(err))
	assert.Empty(t, f.repo.calls, "no state should be persisted")
}

func TestProcessVideoRedeliveryOfSettledJobIsAcked(t *testing.T) {
	f := newFixture(t)
	settled := entity.NewCompletedJob("J1", "party.mp4", "U1", 3, "J1.zip")
	f.repo.existing = &settled

	job, err := f.uc.ProcessVideo(context.Background(), testVideo(), "owner@example.com")
	require.NoError(t, err, "a settled job's redelivery must be acknowledged")

	assert.True(t, job.IsCompleted())
	assert.Equal(t, 3, job.FrameCount)
	assert.Equal(t, "J1.zip", job.ArchiveName)
	assert.Empty(t, f.repo.calls, "no transition may be persisted for a settled job")
	assert.Empty(t, f.storage.uploaded, "the pipeline must not run again")
	assert.Empty(t, f.notifier.notified, "the owner was already notified")
}

func TestProcessVideoNotifySendErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.notifier.sendErr = errors.New("smtp refused")

	job, err := f.uc.ProcessVideo(context.Background(), testVideo(), "owner@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp refused")
	// The terminal state stays persisted.
	assert.True(t, job.IsCompleted())
	assert.Equal(t, entity.JobStatusCompleted, f.repo.lastCall().Status)
}
