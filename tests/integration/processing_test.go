package integration

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/entity"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/ffmpeg"
	miniostorage "github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/minio"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/postgres"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/rabbitmq"
	redisstore "github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/redis"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/tiered"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/usecase"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/worker"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type noopNotifier struct{}

func (noopNotifier) NotifyTerminal(context.Context, entity.Job, string) error { return nil }

type stack struct {
	pool    *pgxpool.Pool
	hot     *redisstore.JobStore
	repo    *tiered.Repository
	storage *miniostorage.Storage
	queue   *rabbitmq.Queue
	rmqURL  string
	minioEP string
}

func startStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { rmqContainer.Terminate(ctx) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(ctx) })

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisURL, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)
	redisAddr := strings.TrimPrefix(redisURL, "redis://")

	require.NoError(t, postgres.RunMigrations(pgConnStr, "../../migrations"))

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	hot, err := redisstore.NewJobStore(ctx, redisstore.JobStoreConfig{
		Addr:     redisAddr,
		LeaseTTL: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { hot.Close() })

	log, _ := logger.New("debug")
	repo := tiered.NewRepository(hot, postgres.NewJobRepository(pool), log)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UseSSL:        false,
		UploadBucket:  "uploads",
		ArchiveBucket: "archives",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	queue := rabbitmq.NewQueue(rabbitmq.QueueConfig{
		URL:             rmqURL,
		Queue:           "video.processing",
		DLQ:             "video.processing.dlq",
		Prefetch:        1,
		MaxRedeliveries: 3,
		ReconnectDelay:  time.Second,
		MaxReconnects:   3,
		TestMode:        true,
	}, log)
	require.NoError(t, queue.Connect(ctx))
	t.Cleanup(queue.Close)

	return &stack{
		pool:    pool,
		hot:     hot,
		repo:    repo,
		storage: storage,
		queue:   queue,
		rmqURL:  rmqURL,
		minioEP: minioEndpoint,
	}
}

func TestProcessVideoEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s := startStack(t, ctx)

	testVideoPath := filepath.Join("..", "testdata", "test.mp4")
	if _, err := os.Stat(testVideoPath); os.IsNotExist(err) {
		t.Skip("test video not found at tests/testdata/test.mp4 - generate it with: ffmpeg -f lavfi -i testsrc=duration=2:size=320x240:rate=1 -c:v libx264 -pix_fmt yuv420p tests/testdata/test.mp4")
	}

	minioClient, err := miniogo.New(s.minioEP, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	jobID := uuid.NewString()
	userID := "testuser"
	videoKey := userID + "/test.mp4"
	_, err = minioClient.FPutObject(ctx, "uploads", videoKey, testVideoPath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	// Upload collaborator: pending job + queue message.
	require.NoError(t, s.repo.Save(ctx, entity.NewPendingJob(jobID, "test.mp4", userID)))

	log, _ := logger.New("debug")
	extractor := ffmpeg.NewExtractor(1, "png", log)
	zipper := ffmpeg.NewZipCreator()
	uc := usecase.NewProcessVideoUseCase(s.repo, s.storage, extractor, zipper, noopNotifier{}, s.hot, log, t.TempDir())
	driver := worker.NewDriver(s.queue, uc, log, 100*time.Millisecond, time.Second)

	driverCtx, driverCancel := context.WithCancel(ctx)
	defer driverCancel()
	go driver.Run(driverCtx)

	require.NoError(t, s.queue.Send(ctx, entity.QueueMessage{
		ID:        jobID,
		VideoPath: videoKey,
		VideoName: "test.mp4",
		UserID:    userID,
	}))

	// Wait for the terminal record to land in the durable store.
	var dbStatus string
	var dbFrameCount int
	var dbArchive string
	require.Eventually(t, func() bool {
		err := s.pool.QueryRow(ctx,
			"SELECT status, frame_count, archive_name FROM processing_jobs WHERE id=$1", jobID,
		).Scan(&dbStatus, &dbFrameCount, &dbArchive)
		return err == nil && dbStatus == "COMPLETED"
	}, 2*time.Minute, time.Second)

	assert.Greater(t, dbFrameCount, 0)
	assert.Equal(t, jobID+".zip", dbArchive)

	// The job migrated out of the hot store.
	_, err = s.hot.FindByID(ctx, jobID, userID)
	assert.Error(t, err)

	// The tiered repository still serves the terminal snapshot.
	job, err := s.repo.FindByID(ctx, jobID, userID)
	require.NoError(t, err)
	assert.True(t, job.IsCompleted())
	assert.Equal(t, dbFrameCount, job.FrameCount)

	// Cross-user lookup leaks nothing.
	_, err = s.repo.FindByID(ctx, jobID, "someone-else")
	assert.Error(t, err)

	// The original upload is gone, the archive exists and holds the frames.
	exists, err := s.storage.Exists(ctx, videoKey)
	require.NoError(t, err)
	assert.False(t, exists, "original input should be deleted")

	archiveObj, err := s.storage.OpenRead(ctx, jobID+".zip")
	require.NoError(t, err)
	tmpZip := filepath.Join(t.TempDir(), "result.zip")
	tmpFile, err := os.Create(tmpZip)
	require.NoError(t, err)
	_, err = tmpFile.ReadFrom(archiveObj)
	require.NoError(t, err)
	tmpFile.Close()
	archiveObj.Close()

	zipReader, err := zip.OpenReader(tmpZip)
	require.NoError(t, err)
	defer zipReader.Close()

	pngCount := 0
	for _, f := range zipReader.File {
		if strings.HasSuffix(f.Name, ".png") {
			pngCount++
		}
	}
	assert.Equal(t, dbFrameCount, pngCount)

	driverCancel()
	t.Logf("test passed: %d frames extracted, archive %s.zip", pngCount, jobID)
}

func TestMalformedMessageGoesToDLQ(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	s := startStack(t, ctx)

	log, _ := logger.New("debug")
	extractor := ffmpeg.NewExtractor(1, "png", log)
	zipper := ffmpeg.NewZipCreator()
	uc := usecase.NewProcessVideoUseCase(s.repo, s.storage, extractor, zipper, noopNotifier{}, s.hot, log, t.TempDir())
	driver := worker.NewDriver(s.queue, uc, log, 100*time.Millisecond, time.Second)

	driverCtx, driverCancel := context.WithCancel(ctx)
	defer driverCancel()
	go driver.Run(driverCtx)
	time.Sleep(500 * time.Millisecond)

	// Publish raw bytes that can never decode.
	rmqConn, err := amqp.Dial(s.rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"", "video.processing",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(`{invalid json`),
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	dlqCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	var dlqBody string
	require.Eventually(t, func() bool {
		msg, ok, err := dlqCh.Get("video.processing.dlq", true)
		if err != nil || !ok {
			return false
		}
		dlqBody = string(msg.Body)
		return true
	}, time.Minute, time.Second)

	assert.Equal(t, `{invalid json`, dlqBody)
	driverCancel()
}
