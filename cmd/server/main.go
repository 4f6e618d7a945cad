package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ogurasousui/nearest-leader/internal/adapters/cache"
	"github.com/ogurasousui/nearest-leader/internal/adapters/employment"
	"github.com/ogurasousui/nearest-leader/internal/adapters/http/handler"
	"github.com/ogurasousui/nearest-leader/internal/adapters/kafka"
	"github.com/ogurasousui/nearest-leader/internal/adapters/pdl"
	"github.com/ogurasousui/nearest-leader/internal/adapters/repository/postgres"
	"github.com/ogurasousui/nearest-leader/internal/core/deactivation"
	"github.com/ogurasousui/nearest-leader/internal/core/person"
	"github.com/ogurasousui/nearest-leader/internal/core/relationship"
	"github.com/ogurasousui/nearest-leader/internal/platform/auth"
	"github.com/ogurasousui/nearest-leader/internal/platform/config"
	pg "github.com/ogurasousui/nearest-leader/internal/platform/db/postgres"
	"github.com/ogurasousui/nearest-leader/internal/platform/logging"
	"github.com/ogurasousui/nearest-leader/internal/platform/server"
	"github.com/ogurasousui/nearest-leader/internal/platform/tracing"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "assets/local.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	dbPool, err := pg.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	txManager := pg.NewTransactionManager(dbPool)
	repo := postgres.NewRelationshipRepository(dbPool)

	pdlTokens := auth.NewTokenSource(ctx, cfg.PDL, cfg.PDL.Scope)
	var names person.NameResolver = pdl.NewClient(cfg.PDL.URL, auth.NewHTTPClient(pdlTokens, cfg.PDL.Timeout), logger.Named("pdl"))
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, name cache degrades to pdl", zap.Error(err))
		}
		names = cache.NewNameCache(rdb, names, cfg.Redis.NameTTL, logger.Named("cache"))
	}

	employmentTokens := auth.NewTokenSource(ctx, cfg.PDL, cfg.Employment.Scope)
	employmentClient := employment.NewClient(cfg.Employment.URL, &http.Client{Timeout: cfg.Employment.Timeout}, employmentTokens)

	producer := kafka.NewProducer(cfg.Kafka, logger.Named("kafka"))
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warn("failed to close kafka producer", zap.Error(err))
		}
	}()

	relationshipSvc := relationship.NewService(repo, names, nil, txManager, logger.Named("relationship"))
	deactivationSvc := deactivation.NewService(repo, employmentClient, names, producer, nil, logger.Named("deactivation"))

	consumer := kafka.NewConsumer(cfg.Kafka, relationshipSvc, logger.Named("kafka"))
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Warn("failed to close kafka consumer", zap.Error(err))
		}
	}()

	h := handler.NewHandler(relationshipSvc, deactivationSvc, dbPool, logger.Named("http"))
	srv := server.New(cfg.Server, h, logger)

	return srv.Run(ctx, consumer.Run)
}
