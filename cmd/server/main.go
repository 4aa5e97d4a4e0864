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

	"leadgen/config"
	"leadgen/internal/api"
	"leadgen/internal/broker"
	"leadgen/internal/deliver"
	"leadgen/internal/queue"
	"leadgen/internal/redisclient"
	"leadgen/internal/service"
	"leadgen/internal/store"
	"leadgen/internal/util"
	"leadgen/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting leadgen service")

	tp, err := util.InitTracer("leadgen", cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	ctx := context.Background()
	deliveryQueue, err := queue.New(ctx, redisClient.GetClient(), cfg.Queue.Stream, cfg.Queue.ConsumerGroup)
	if err != nil {
		log.Fatalf("Failed to initialize delivery queue: %v", err)
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicLeadEvents)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	ingestionService := service.NewIngestionService(db, redisClient, deliveryQueue, eventPublisher)

	deliveryConfig := deliver.Config{
		MaxAttempts:     cfg.Delivery.MaxAttempts,
		RetryDelays:     deliver.DefaultConfig().RetryDelays,
		ExponentialBase: deliver.DefaultConfig().ExponentialBase,
		ConnectTimeout:  time.Duration(cfg.Delivery.ConnectTimeoutSeconds) * time.Second,
		TotalTimeout:    time.Duration(cfg.Delivery.TotalTimeoutSeconds) * time.Second,
	}
	executor := deliver.NewExecutor(db, deliveryConfig)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	for i := 0; i < cfg.Worker.DeliveryConcurrency; i++ {
		consumerID := fmt.Sprintf("delivery-worker-%s", uuid.NewString())
		dw := worker.NewDeliveryWorker(deliveryQueue, db, executor, eventPublisher, consumerID)
		go func() {
			if err := dw.Run(workerCtx); err != nil && err != context.Canceled {
				log.Printf("Delivery worker error: %v", err)
			}
		}()
		go dw.ReclaimLoop(workerCtx, cfg.Queue.ReclaimInterval, cfg.Queue.ReclaimMinIdle)
	}

	domainConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicLeadEvents, cfg.Kafka.ConsumerGroup)
	domainEventHandler := broker.NewEventHandler()
	domainEventWorker := worker.NewDomainEventWorker(domainConsumer, domainEventHandler)
	go func() {
		if err := domainEventWorker.Start(workerCtx); err != nil {
			log.Printf("Domain event worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(ingestionService, db)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if err := domainEventWorker.Stop(); err != nil {
		log.Printf("Error stopping domain event worker: %v", err)
	}

	log.Println("Server exited")
}
