package main

import (
	"context"
	"fmt"
	"os"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos/repository"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/db/aws"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/db/minio"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/db/postgres"
	clientRedis "github.com/amankumarsingh77/streamscale-pipeline/pkg/db/redis"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
)

// app holds the clients every command needs.
type app struct {
	cfg         *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *redis.Client
	store       videos.ObjectStore
}

func loadApp(ctx context.Context, configPath string) (*app, error) {
	cfgFile, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loadConfig: %w", err)
	}
	cfg, err := config.ParseConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("parseConfig: %w", err)
	}

	appLogger := logger.NewApiLogger(cfg)
	appLogger.InitLogger()
	appLogger.Infof("AppVersion: %s, LogLevel: %s, Mode: %s", cfg.Server.AppVersion, cfg.Logger.Level, cfg.Server.Mode)

	psqlDB, err := postgres.NewPsqlDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not connect to db: %w", err)
	}
	appLogger.Infof("db connected, status: %#v", psqlDB.Stats())

	redisClient, err := clientRedis.NewRedisClient(ctx, cfg)
	if err != nil {
		psqlDB.Close()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	appLogger.Infof("redis connected")

	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		psqlDB.Close()
		redisClient.Close()
		return nil, err
	}
	appLogger.Infof("object store connected, provider: %s", cfg.S3.Provider)

	return &app{
		cfg:         cfg,
		logger:      appLogger,
		db:          psqlDB,
		redisClient: redisClient,
		store:       store,
	}, nil
}

func newObjectStore(ctx context.Context, cfg *config.Config) (videos.ObjectStore, error) {
	switch cfg.S3.Provider {
	case "minio":
		client, err := minio.NewMinioClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("could not connect to minio: %w", err)
		}
		return repository.NewMinioRepository(client), nil
	default:
		client, err := aws.NewAWSClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("could not connect to s3: %w", err)
		}
		return repository.NewAwsRepository(client), nil
	}
}

func (a *app) Close() {
	if err := a.redisClient.Close(); err != nil {
		a.logger.Warnf("failed to close redis: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warnf("failed to close db: %v", err)
	}
	a.logger.Sync()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
