package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo/internal/api"
	"github.com/invigilo/invigilo/internal/config"
	"github.com/invigilo/invigilo/internal/configs/env"
	"github.com/invigilo/invigilo/internal/detect"
	"github.com/invigilo/invigilo/internal/evidence"
	"github.com/invigilo/invigilo/internal/infra/mongo"
	redisInfra "github.com/invigilo/invigilo/internal/infra/redis"
	"github.com/invigilo/invigilo/internal/live"
	"github.com/invigilo/invigilo/internal/logger"
	"github.com/invigilo/invigilo/internal/repository"
	"github.com/invigilo/invigilo/internal/session"
	"github.com/invigilo/invigilo/internal/stream"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env file, continuing with system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	logger.Init(cfg.LogLevel)
	log.Info().Msg("Starting invigilo server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect MongoDB
	mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create MongoDB client")
	}
	defer mongoClient.Close(ctx)

	// Connect Redis
	redisClient, err := redisInfra.NewClient(ctx, cfg.RedisHost, cfg.RedisPassword, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Redis client")
	}
	defer redisClient.Close()

	// Repositories
	mongoRepo := repository.NewMongoRepository(mongoClient)
	if err := repository.EnsureIndexes(ctx, mongoRepo); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure MongoDB indexes")
	}
	logsRepo := repository.NewCheatingLogRepository(mongoRepo)
	attemptsRepo := repository.NewAttemptRepository(mongoRepo)
	examsRepo := repository.NewExamRepository(mongoRepo)
	questionsRepo := repository.NewQuestionRepository(mongoRepo)

	// Session attempt tracker
	tracker := session.NewTracker(attemptsRepo)

	// Live violation feed
	hub := live.NewHub()

	// Detection engine: evidence uploader, bounded worker pool, and the
	// per-session pipeline manager.
	uploader := evidence.NewClient(cfg.EvidenceStoreURL, cfg.EvidenceAPIKey)
	workerPool := detect.NewWorkerPool(ctx, cfg.EvidenceWorkerCount)
	defer workerPool.Close()

	sessions := detect.NewManager(ctx, logsRepo, uploader, hub, workerPool, cfg.AutosaveInterval, cfg.SessionIdleTimeout)
	defer sessions.Close()

	// Redis signal stream consumer
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	consumerName := fmt.Sprintf("consumer-%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
	consumer := stream.NewConsumer(
		redisClient.Client,
		cfg.SignalStreamKey,
		cfg.SignalConsumerGroup,
		consumerName,
		sessions,
		cfg.StreamRetentionDuration,
	)
	log.Info().Str("consumer_name", consumerName).Msg("Signal stream consumer initialized")

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()
	go func() {
		if err := consumer.Start(consumerCtx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Signal consumer error")
		}
	}()
	log.Info().Msg("Signal consumer started")

	router := api.SetupRoutes(cfg, logsRepo, examsRepo, questionsRepo, tracker, sessions, hub)
	srv := api.StartServer(router, cfg.ServerPort)

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down gracefully...")

	if err := api.ShutdownServer(srv, 30*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	// Stop ingest first, then flush every session pipeline.
	consumerCancel()
	sessions.Close()

	log.Info().Msg("Shutdown complete")
}
