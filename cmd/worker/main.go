package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/auth"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/config"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/email"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/ffmpeg"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/metrics"
	miniostorage "github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/minio"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/postgres"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/rabbitmq"
	redisstore "github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/redis"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/tiered"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/infra/tracing"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/usecase"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/worker"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting video processing worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Durable store
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}
	durable := postgres.NewJobRepository(pool)

	// Hot store
	hot, err := redisstore.NewJobStore(ctx, redisstore.JobStoreConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		LeaseTTL: time.Duration(cfg.LeaseTTLS) * time.Second,
	})
	fatalOnErr(err, "connect to redis")
	defer hot.Close()

	repo := tiered.NewRepository(hot, durable, log)

	// Object storage
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadBucket:  cfg.MinIOUploadBucket,
		ArchiveBucket: cfg.MinIOArchiveBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// Queue
	queue := rabbitmq.NewQueue(rabbitmq.QueueConfig{
		URL:             cfg.RabbitMQURL,
		Queue:           cfg.RabbitMQProcessingQueue,
		DLQ:             cfg.RabbitMQDLQ,
		Prefetch:        1,
		MaxRedeliveries: cfg.MaxRedeliveries,
		ReconnectDelay:  time.Duration(cfg.RabbitMQReconnectDelayS) * time.Second,
		MaxReconnects:   cfg.RabbitMQMaxReconnects,
		TestMode:        cfg.TestMode,
	}, log)
	if err := queue.Connect(ctx); err != nil {
		log.Warn("initial rabbitmq connect failed, reconnect scheduled", zap.Error(err))
	}
	defer queue.Close()

	// Collaborators
	extractor := ffmpeg.NewExtractor(cfg.FFmpegFPS, cfg.FFmpegFormat, log)
	zipper := ffmpeg.NewZipCreator()
	authClient := auth.NewClient(cfg.AuthBaseURL)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, authClient, log)

	uc := usecase.NewProcessVideoUseCase(repo, storage, extractor, zipper, notifier, hot, log, cfg.TempDir)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, func() bool {
		return queue.State() == rabbitmq.StateConnected
	}, log)

	driver := worker.NewDriver(queue, uc, log,
		time.Duration(cfg.ConsumerStartDelayS)*time.Second,
		time.Duration(cfg.ConsumerRetryDelayS)*time.Second,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("worker started, consuming messages")
	if err := driver.Run(ctx); err != nil && err != context.Canceled {
		log.Error("driver error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	log.Info("worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
