package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"snapfeed/internal/cache"
	"snapfeed/internal/config"
	"snapfeed/internal/database"
	"snapfeed/internal/log"
	"snapfeed/internal/media/variant"
	"snapfeed/internal/queue"
	"snapfeed/internal/repository"
	"snapfeed/internal/service"
	"snapfeed/internal/storage"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClient.Close()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	deriver := service.NewDeriveService(
		repository.NewRecordRepository(dbPool),
		objectStore,
		variant.Config{
			ThumbnailSize:    cfg.Variants.ThumbnailSize,
			ThumbnailQuality: cfg.Variants.ThumbnailQuality,
			MediumBound:      cfg.Variants.MediumBound,
			MediumQuality:    cfg.Variants.MediumQuality,
		},
		logger,
	)

	consumer := queue.NewConsumer(redisClient, cfg.Queue, logger, deriver)

	go func() {
		if err := consumer.Start(ctx); err != nil && err != context.Canceled {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	time.Sleep(500 * time.Millisecond)
}
