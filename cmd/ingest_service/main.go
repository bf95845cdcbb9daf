package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video_ingest_service/internal/ingest/app"
	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/config"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"
	testtool "video_ingest_service/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const serviceName = "ingest"

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.IngestService, config.EnvConfig.IngestServiceLogPath)
	cfg := config.LoadConfig[config.IngestService](config.EnvConfig.IngestService, config.EnvConfig.IngestServiceYAMLPath)
	cfg.Pipeline.ApplyDefaults()
	cfg.Transcode.ApplyDefaults()
	cfg.RabbitMQ.ApplyDefaults()
	if err := cfg.Storage.Validate(); err != nil {
		logger.Log.Fatal("invalid storage config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	testtool.StartPprof()

	health, err := database.NewHealthServer(cfg.IP, cfg.Port, serviceName)
	if err != nil {
		logger.Log.Fatal("Failed to start health server", zap.Error(err))
	}
	go func() {
		if err := health.Serve(); err != nil {
			logger.Log.Error("health server stopped", zap.Error(err))
		}
	}()
	defer health.Stop()

	// 1. metadata
	db, err := database.NewGormConnection(cfg.PostgreSQL.Driver, database.Connection{
		ConnectStr:    cfg.PostgreSQL.DSN(),
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to database after retries", zap.Error(err))
	}
	assetRepo := repository.NewAssetRepo(db)
	if err := assetRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal("資料表遷移失敗", zap.Error(err))
	}

	// 2. object storage
	store, err := database.OpenStorage(ctx, cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Unable to open object storage", zap.Error(err))
	}

	// 3. 非關鍵 collaborators, 沒設定就不啟用
	lock := newAssetLock(cfg.Redis)
	events, closeEvents := newEventPublisher(cfg.Kafka)
	defer closeEvents()
	incidents, closeIncidents := newIncidentRecorder(ctx, cfg.Mongo)
	defer closeIncidents()
	invalidator := newInvalidator(ctx, cfg.CloudFront)

	// 4. RabbitMQ
	conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    cfg.RabbitMQ.URL(),
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: time.Duration(cfg.RabbitMQ.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("RabbitMQ 連線失敗", zap.Error(err))
	}
	defer conn.Close()

	publishCh, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RabbitMQ.RetryCount, time.Duration(cfg.RabbitMQ.RetryInterval))
	if err != nil {
		logger.Log.Fatal("取得 RabbitMQ Channel 失敗", zap.Error(err))
	}
	defer publishCh.Close()
	if err := database.DeclareQueues(publishCh, cfg.RabbitMQ.NotificationQueue, cfg.RabbitMQ.JobQueue, cfg.RabbitMQ.CompletionQueue); err != nil {
		logger.Log.Fatal("Queue Declare failed", zap.Error(err))
	}

	dispatcher := app.NewDispatcher(database.NewRabbitRepository(publishCh), assetRepo, events, incidents, app.DispatcherConfig{
		JobQueue:      cfg.RabbitMQ.JobQueue,
		CallbackQueue: cfg.RabbitMQ.CompletionQueue,
		DurableBucket: cfg.Storage.DurableBucket,
		Profile: domain.FormatProfile{
			Name:            cfg.Transcode.Name,
			Container:       "hls",
			SegmentSeconds:  cfg.Transcode.SegmentSeconds,
			VideoCodec:      cfg.Transcode.VideoCodec,
			MaxBitrate:      cfg.Transcode.MaxBitrate,
			AudioCodec:      cfg.Transcode.AudioCodec,
			AudioBitrate:    cfg.Transcode.AudioBitrate,
			AudioSampleRate: cfg.Transcode.AudioSampleRate,
		},
		Retry: app.RetryPolicyFrom(cfg.Pipeline.SubmitRetry),
	})
	validator := app.NewValidator(assetRepo, store, lock, dispatcher, events, incidents, app.ValidatorConfig{
		QuarantineBucket:    cfg.Storage.QuarantineBucket,
		DurableBucket:       cfg.Storage.DurableBucket,
		AllowedMIMEPrefixes: cfg.Pipeline.AllowedMIMEPrefixes,
		StatRetry:           app.RetryPolicyFrom(cfg.Pipeline.StatRetry),
		StorageRetry:        app.RetryPolicyFrom(cfg.Pipeline.StorageRetry),
		LockTTL:             cfg.Pipeline.LockTTL,
	})
	completion := app.NewCompletionHandler(assetRepo, events, invalidator, incidents)

	// 5. consumers, 每個 consumer 各自一個 channel
	errCh := make(chan error, 2)
	completionCh, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RabbitMQ.RetryCount, time.Duration(cfg.RabbitMQ.RetryInterval))
	if err != nil {
		logger.Log.Fatal("取得 RabbitMQ Channel 失敗", zap.Error(err))
	}
	defer completionCh.Close()
	if err := completionCh.Qos(cfg.RabbitMQ.Prefetch, 0, false); err != nil {
		logger.Log.Fatal("set qos failed", zap.Error(err))
	}
	go func() {
		errCh <- app.NewQueueConsumer("completion", completionCh, cfg.RabbitMQ.CompletionQueue,
			app.CompletionDeliveryHandler(completion), cfg.Pipeline.HandlerTimeout, cfg.RabbitMQ.RequeueDelay).Start(ctx)
	}()

	notificationHandler := app.NotificationHandler(validator)
	if cfg.Storage.Driver == "s3" && cfg.Storage.S3.SQSQueueURL != "" {
		awsCfg, err := database.LoadAWSConfig(ctx, cfg.Storage.S3.Region)
		if err != nil {
			logger.Log.Fatal("Unable to load aws config", zap.Error(err))
		}
		go func() {
			errCh <- app.NewSQSConsumer(database.NewSQSClient(awsCfg), cfg.Storage.S3.SQSQueueURL,
				notificationHandler, cfg.Pipeline.HandlerTimeout).Start(ctx)
		}()
	} else {
		notifyCh, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RabbitMQ.RetryCount, time.Duration(cfg.RabbitMQ.RetryInterval))
		if err != nil {
			logger.Log.Fatal("取得 RabbitMQ Channel 失敗", zap.Error(err))
		}
		defer notifyCh.Close()
		if err := notifyCh.Qos(cfg.RabbitMQ.Prefetch, 0, false); err != nil {
			logger.Log.Fatal("set qos failed", zap.Error(err))
		}
		go func() {
			errCh <- app.NewQueueConsumer("notification", notifyCh, cfg.RabbitMQ.NotificationQueue,
				notificationHandler, cfg.Pipeline.HandlerTimeout, cfg.RabbitMQ.RequeueDelay).Start(ctx)
		}()
	}

	health.SetServing(serviceName, true)
	logger.Log.Info("ingest service started")

	select {
	case <-ctx.Done():
		logger.Log.Info("ingest service shutting down")
	case err := <-errCh:
		health.SetServing(serviceName, false)
		logger.Log.Error("consumer exited", zap.Error(err))
	}
}

func newAssetLock(c config.RedisConfig) repository.AssetLock {
	var (
		client *redis.Client
		err    error
	)
	if c.Addr != "" {
		client, err = database.NewRedisStandaloneClient(c.Addr, c.RedisDB)
	} else {
		masterName, sentinels := config.GetRedisSetting()
		if len(sentinels) == 0 {
			logger.Log.Warn("redis is not configured, duplicate-delivery lock disabled")
			return repository.NewNoopAssetLock()
		}
		client, err = database.NewRedisClient(masterName, sentinels, c.RedisDB)
	}
	if err != nil {
		logger.Log.Fatal("Unable to connect to redis", zap.Error(err))
	}
	return repository.NewRedisAssetLock(client, "ingest:lock:")
}

func newEventPublisher(k config.KafkaConfig) (repository.EventPublisher, func()) {
	if len(k.Brokers) == 0 {
		logger.Log.Warn("kafka is not configured, lifecycle events disabled")
		return nil, func() {}
	}
	w, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
		Brokers:       k.Brokers,
		Topic:         k.Topic,
		RetryCount:    k.RetryCount,
		RetryInterval: time.Duration(k.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Kafka Writer 建立失敗", zap.Error(err))
	}
	return repository.NewKafkaEventPublisher(w), func() { w.Close() }
}

func newIncidentRecorder(ctx context.Context, m config.DatabaseConfig) (repository.IncidentRecorder, func()) {
	if m.Host == "" {
		logger.Log.Warn("mongo is not configured, incidents are only logged")
		return nil, func() {}
	}
	mdb, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    m.MongoURI(),
		RetryCount:    m.RetryCount,
		RetryInterval: time.Duration(m.RetryInterval),
	}, m.Database)
	if err != nil {
		logger.Log.Fatal("MongoDB 連線失敗", zap.Error(err))
	}
	return repository.NewMongoIncidentRecorder(mdb.Collection(repository.IncidentCollection)), func() {
		_ = mdb.Close(context.Background())
	}
}

func newInvalidator(ctx context.Context, c config.CloudFrontConfig) repository.EdgeInvalidator {
	if c.DistributionID == "" {
		return nil
	}
	awsCfg, err := database.LoadAWSConfig(ctx, c.Region)
	if err != nil {
		logger.Log.Fatal("Unable to load aws config", zap.Error(err))
	}
	return repository.NewCloudFrontInvalidator(database.NewCloudFrontClient(awsCfg), c.DistributionID)
}
