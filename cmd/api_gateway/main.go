package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"video_ingest_service/internal/api/handlers"
	"video_ingest_service/internal/api/router"
	"video_ingest_service/internal/ingest/app"
	"video_ingest_service/internal/ingest/region"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/config"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"
	"video_ingest_service/pkg/middlewares"
	"video_ingest_service/pkg/signer"
	testtool "video_ingest_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.APIGateway, config.EnvConfig.APIGatewayLogPath)
	cfg := config.LoadConfig[config.APIGateway](config.EnvConfig.APIGateway, config.EnvConfig.APIGatewayYAMLPath)
	cfg.Signing.ApplyDefaults()
	cfg.Edge.ApplyDefaults()

	// 設定錯誤直接結束, 不重試
	if err := cfg.Signing.Validate(); err != nil {
		logger.Log.Fatal("invalid signing config", zap.Error(err))
	}
	if err := cfg.Storage.Validate(); err != nil {
		logger.Log.Fatal("invalid storage config", zap.Error(err))
	}
	if err := cfg.Edge.Validate(); err != nil {
		logger.Log.Fatal("invalid edge config", zap.Error(err))
	}
	if cfg.JWTSecret == "" {
		logger.Log.Fatal("jwt_secret is required")
	}

	testtool.StartPprof()

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

	store, err := database.OpenStorage(context.Background(), cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Unable to open object storage", zap.Error(err))
	}

	key, err := signer.LoadPrivateKey(cfg.Signing.PrivateKeyPath, cfg.Signing.PrivateKeyPEM)
	if err != nil {
		logger.Log.Fatal("Unable to load signing key", zap.Error(err))
	}
	cfSigner, err := signer.NewCloudFrontSigner(cfg.Signing.KeyPairID, key)
	if err != nil {
		logger.Log.Fatal("Unable to create url signer", zap.Error(err))
	}

	evaluator := region.NewEvaluator(region.Policy{
		FailOpenOnMissingGeoSignal: cfg.Region.FailOpen(),
		CountryNames:               cfg.Region.CountryCodes,
	})
	intake := app.NewUploadIntake(assetRepo, store, cfg.Storage.QuarantineBucket, cfg.Signing.UploadTTL)
	gate := app.NewAccessGate(assetRepo, evaluator, cfSigner, cfg.Signing.CDNBaseURL, cfg.Signing.PlaybackTTL)

	geo, err := middlewares.EdgeGeo(middlewares.EdgeGeoConfig{
		CountryHeader:  cfg.Edge.CountryHeader,
		SecretHeader:   cfg.Edge.SecretHeader,
		Secret:         cfg.Edge.Secret,
		TrustedProxies: cfg.Edge.TrustedProxies,
	})
	if err != nil {
		logger.Log.Fatal("invalid edge config", zap.Error(err))
	}

	// 创建 Fiber 应用
	r := fiber.New()
	// 添加日志中间件
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.APIGatewayLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	// 注册路由
	router.RegisterRoutes(r, []byte(cfg.JWTSecret), geo,
		handlers.NewUploadHandler(intake), handlers.NewPlaybackHandler(gate))

	// 启动服务器
	if err := r.Listen(":" + cfg.Port); err != nil {
		logger.Log.Fatal("Server failed to start", zap.Error(err))
	}
}
