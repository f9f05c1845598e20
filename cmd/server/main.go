package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-service/config"
	"catalog-service/internal/api"
	"catalog-service/internal/broker"
	"catalog-service/internal/models"
	"catalog-service/internal/platform"
	"catalog-service/internal/redisclient"
	"catalog-service/internal/secrets"
	"catalog-service/internal/service"
	"catalog-service/internal/store"
	"catalog-service/internal/util"
	"catalog-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting catalog service")

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	cipher, err := secrets.NewCipher(cfg.Security.EncryptionKey)
	if err != nil {
		logger.Fatal("Failed to initialize credential cipher", zap.Error(err))
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	platformOpts := platform.Options{
		Timeout:   time.Duration(cfg.Platform.TimeoutSeconds) * time.Second,
		RateLimit: rate.Limit(cfg.Platform.RateLimit),
		Burst:     cfg.Platform.RateBurst,
	}
	adapters := service.NewConnectionAdapters(cipher, platformOpts)
	adapterFactory := func(channel models.Channel, storeURL string, creds platform.Credentials) (platform.Adapter, error) {
		return platform.New(channel, storeURL, creds, platformOpts)
	}

	lockTTL := time.Duration(cfg.Sync.LockTTLSeconds) * time.Second
	suggestionService := service.NewSuggestionService(db, adapters, redisClient, eventPublisher, lockTTL)
	syncService := service.NewSyncService(db, adapters, redisClient, eventPublisher, cfg.Sync.FetchLimit, lockTTL)
	connectionService := service.NewConnectionService(db, cipher, adapters, adapterFactory)
	productService := service.NewProductService(db, adapters)
	eventService := service.NewEventService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	syncConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog, cfg.Kafka.ConsumerGroup)
	syncWorker := worker.NewSyncWorker(syncConsumer, syncService, redisClient)
	go func() {
		if err := syncWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Sync worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Products:    productService,
		Suggestions: suggestionService,
		Syncs:       syncService,
		Connections: connectionService,
		Events:      eventService,
	}, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := syncWorker.Stop(); err != nil {
		logger.Error("Failed to stop sync worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
