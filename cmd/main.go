package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/shopchat/autoreply-backend/internal/clients/channel"
	redisclient "github.com/shopchat/autoreply-backend/internal/clients/redis"
	"github.com/shopchat/autoreply-backend/internal/db"
	"github.com/shopchat/autoreply-backend/internal/handlers"
	"github.com/shopchat/autoreply-backend/internal/logger"
	"github.com/shopchat/autoreply-backend/internal/observability"
	"github.com/shopchat/autoreply-backend/internal/queue"
	"github.com/shopchat/autoreply-backend/internal/repos"
	"github.com/shopchat/autoreply-backend/internal/server"
	"github.com/shopchat/autoreply-backend/internal/services"
	"github.com/shopchat/autoreply-backend/internal/utils"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOtel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "autoreply-backend",
		Environment: utils.GetEnv("DEPLOY_ENV", "development", log),
	})
	if shutdownOtel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Coordination store
	coordinator, err := redisclient.NewCoordinator(log)
	if err != nil {
		log.Error("Redis coordinator init failed", "error", err)
		os.Exit(1)
	}
	defer coordinator.Close()

	// Repos
	log.Info("Setting up Repos from main...")
	tenantRepo := repos.NewTenantRepo(thePG, log)
	messageRepo := repos.NewMessageRepo(thePG, log)
	failureRepo := repos.NewResponseFailureRepo(thePG, log)

	// Outbound channel
	channelClient, err := channel.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init ChannelClient", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	eventQueue := queue.NewEventQueue(coordinator, log)
	dedupCache := services.NewDedupCache(coordinator, log,
		utils.GetEnvAsDuration("DEDUP_CLAIM_TTL", services.DefaultClaimTTL, log))
	processingMutex := services.NewProcessingMutex(coordinator, log,
		utils.GetEnvAsDuration("PROCESSING_MUTEX_TTL", services.DefaultMutexTTL, log))
	conversationGate := services.NewConversationGate(coordinator, log)
	dispatcher := services.NewDispatcher(thePG, log, channelClient, messageRepo, failureRepo, eventQueue)
	pipeline := services.NewAutoResponseService(
		thePG,
		log,
		tenantRepo,
		messageRepo,
		dedupCache,
		processingMutex,
		conversationGate,
		dispatcher,
		services.AutoResponseConfig{
			GroupWindow:  utils.GetEnvAsDuration("GROUP_WINDOW", services.DefaultGroupWindow, log),
			MutexBackoff: utils.GetEnvAsDuration("MUTEX_BACKOFF", services.DefaultMutexBackoff, log),
		},
	)
	sweepService := services.NewSweepService(
		thePG,
		log,
		eventQueue,
		messageRepo,
		failureRepo,
		pipeline,
		services.SweepConfig{
			Interval:        utils.GetEnvAsDuration("SWEEP_INTERVAL", services.DefaultSweepInterval, log),
			BatchSize:       utils.GetEnvAsInt("SWEEP_BATCH_SIZE", services.DefaultSweepBatchSize, log),
			Concurrency:     utils.GetEnvAsInt("SWEEP_CONCURRENCY", services.DefaultSweepConcurrency, log),
			FailureCooldown: utils.GetEnvAsDuration("FAILURE_COOLDOWN", services.DefaultFailureCooldown, log),
		},
	)
	sweepService.Start(context.Background())

	// Handlers
	log.Info("Setting up handlers from main...")
	eventHandler := handlers.NewEventHandler(log, messageRepo, eventQueue, pipeline)
	sweepHandler := handlers.NewSweepHandler(log, sweepService)
	operatorHandler := handlers.NewOperatorHandler(log, conversationGate, processingMutex)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ServiceName:     "autoreply-backend",
		EventHandler:    eventHandler,
		SweepHandler:    sweepHandler,
		OperatorHandler: operatorHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
