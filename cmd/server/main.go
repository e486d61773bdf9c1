package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"kitchen-display/config"
	"kitchen-display/internal/api"
	"kitchen-display/internal/broker"
	"kitchen-display/internal/countdown"
	"kitchen-display/internal/redisclient"
	"kitchen-display/internal/service"
	"kitchen-display/internal/snapshot"
	"kitchen-display/internal/store"
	"kitchen-display/internal/util"
	"kitchen-display/internal/worker"
	"kitchen-display/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, "kitchen-display"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting kitchen display service")

	tp, err := util.InitTracer("kitchen-display", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
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
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connected")

	// Redis only backs the stock cache and the bulk lock; the display runs without it.
	var inventory *service.InventoryClient
	var locker service.Locker
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, stock cache and bulk lock disabled", zap.Error(err))
		inventory = service.NewInventoryClient(db, nil, cfg.Redis.StockCacheTTL)
	} else {
		defer redisClient.Close()
		logger.Info("Redis connected")
		inventory = service.NewInventoryClient(db, redisClient, cfg.Redis.StockCacheTTL)
		locker = redisClient
	}

	snaps := snapshot.NewStore()

	var checkpoint service.Checkpoint
	checkpointer, err := snapshot.OpenCheckpointer(cfg.Display.CheckpointDir)
	if err != nil {
		logger.Warn("Checkpoint store unavailable", zap.Error(err))
	} else {
		defer checkpointer.Close()
		checkpoint = checkpointer
		restoreCheckpoint(logger, checkpointer, snaps)
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	ingestion := service.NewIngestionService(snaps, db, inventory, db, checkpoint, service.IngestionConfig{
		LowStockThreshold: cfg.Display.LowStockThreshold,
		FetchTimeout:      cfg.Display.RemoteCallTimeout,
	})
	kitchenService := service.NewKitchenService(snaps, db, ingestion, locker, eventPublisher, service.KitchenServiceConfig{
		RemoteTimeout: cfg.Display.RemoteCallTimeout,
		Parallelism:   cfg.Display.MarkAllReadyParallelism,
		BulkLockTTL:   cfg.Redis.BulkLockTTL,
	})
	ingestion.SetPromoter(kitchenService)

	hub := ws.NewHub()
	registry := service.NewKitchenRegistry(service.DefaultKitchens())
	registry.OnChange(hub.NotifyKitchensChanged)
	board := service.NewBoardService(snaps, registry)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var bg sync.WaitGroup
	bg.Add(3)
	go func() {
		defer bg.Done()
		hub.Run(workerCtx)
	}()
	go func() {
		defer bg.Done()
		hub.RelaySnapshots(workerCtx, snaps)
	}()
	countdowns := countdown.NewManager(snaps, hub, cfg.Display.CountdownTick)
	go func() {
		defer bg.Done()
		countdowns.Run(workerCtx)
	}()

	listener, err := pushListener(cfg)
	if err != nil {
		logger.Warn("Push listener unavailable, polling only", zap.Error(err))
	}
	ingestionWorker := worker.NewIngestionWorker(ingestion, listener, cfg.Display.PollInterval)
	ingestionWorker.Start(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(board, kitchenService, registry, ingestion, hub, ws.NewUpgrader(cfg.Server.CORSAllowedOrigins))
	handler.SetupRoutes(router)

	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: corsMiddleware(router),
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
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
	if err := ingestionWorker.Stop(); err != nil {
		logger.Warn("Error closing push listener", zap.Error(err))
	}
	bg.Wait()

	logger.Info("Server exited")
}

// pushListener opens the configured push transport. A nil listener means
// the display relies on polling.
func pushListener(cfg *config.Config) (worker.PushListener, error) {
	switch cfg.Display.PushTransport {
	case "kafka":
		return broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup), nil
	case "amqp":
		l, err := broker.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown push transport %q", cfg.Display.PushTransport)
	}
}

func restoreCheckpoint(logger *zap.Logger, c *snapshot.Checkpointer, snaps *snapshot.Store) {
	snap, ok, err := c.Load()
	if err != nil {
		logger.Warn("Failed to load checkpoint", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if snaps.Seed(snap) {
		logger.Info("Restored last known snapshot",
			zap.Int("orders", len(snap.Orders)),
			zap.Time("fetched_at", snap.FetchedAt))
	}
}
