package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	ingest "video_ingest_service/internal/ingest/app"
	"video_ingest_service/internal/transcoder/app"
	"video_ingest_service/pkg/config"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"
	testtool "video_ingest_service/pkg/test_tool"

	"go.uber.org/zap"
)

const serviceName = "transcoder"

// 轉碼可能很久, 單一工作的上限
const jobTimeout = 2 * time.Hour

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.TranscodeWorker, config.EnvConfig.TranscodeWorkerLogPath)
	cfg := config.LoadConfig[config.TranscodeWorker](config.EnvConfig.TranscodeWorker, config.EnvConfig.TranscodeWorkerYAMLPath)
	cfg.RabbitMQ.ApplyDefaults()

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

	store, err := database.OpenStorage(ctx, cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Unable to open object storage", zap.Error(err))
	}

	conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    cfg.RabbitMQ.URL(),
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: time.Duration(cfg.RabbitMQ.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("RabbitMQ 連線失敗", zap.Error(err))
	}
	defer conn.Close()

	rabbitChannel, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RabbitMQ.RetryCount, time.Duration(cfg.RabbitMQ.RetryInterval))
	if err != nil {
		logger.Log.Fatal("取得 RabbitMQ Channel 失敗", zap.Error(err))
	}
	defer rabbitChannel.Close()
	if err := database.DeclareQueues(rabbitChannel, cfg.RabbitMQ.JobQueue, cfg.RabbitMQ.CompletionQueue); err != nil {
		logger.Log.Fatal("Queue Declare failed", zap.Error(err))
	}
	// 一次只處理一個轉碼工作
	if err := rabbitChannel.Qos(1, 0, false); err != nil {
		logger.Log.Fatal("set qos failed", zap.Error(err))
	}

	worker := app.NewWorker(store, database.NewRabbitRepository(rabbitChannel), cfg.TmpDir, ingest.RetryPolicy{
		InitialInterval: time.Second,
		MaxInterval:     15 * time.Second,
		MaxAttempts:     5,
	})
	consumer := ingest.NewQueueConsumer("transcoder", rabbitChannel, cfg.RabbitMQ.JobQueue,
		worker.Handler(), jobTimeout, cfg.RabbitMQ.RequeueDelay)

	health.SetServing(serviceName, true)
	if err := consumer.Start(ctx); err != nil {
		health.SetServing(serviceName, false)
		logger.Log.Error("consumer exited", zap.Error(err))
	}
	logger.Log.Info("transcode worker stopped")
}
