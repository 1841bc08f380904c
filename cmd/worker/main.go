package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webhook-dispatcher/config"
	"webhook-dispatcher/internal/cache"
	"webhook-dispatcher/internal/dispatch"
	"webhook-dispatcher/internal/queue"
	"webhook-dispatcher/internal/ratelimit"
	"webhook-dispatcher/internal/stats"
	"webhook-dispatcher/internal/storage"
	"webhook-dispatcher/internal/worker"
	"webhook-dispatcher/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.NewLogger(cfg.LogLevel)

	// Initialize RabbitMQ connection
	amqpConn, err := queue.NewRabbitMQConnection(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		logger.Fatalf("Failed to open channel: %v", err)
	}
	defer ch.Close()

	if err := queue.Declare(ch, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.QueueName); err != nil {
		logger.Fatalf("Failed to declare queue topology: %v", err)
	}

	// Initialize MongoDB connection
	store, err := storage.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database, logger.Desugar())
	if err != nil {
		logger.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	// Initialize Redis-backed cache, stats, and rate limiter
	c, err := cache.New(cfg.Redis.URL, time.Duration(cfg.Webhook.CacheTTLHours)*time.Hour)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enabled := true
	hooks, err := store.ListWebhooks(ctx, &enabled)
	if err != nil {
		logger.Fatalf("Failed to load webhooks: %v", err)
	}
	if err := c.WarmUp(ctx, hooks); err != nil {
		logger.Fatalf("Failed to warm webhook cache: %v", err)
	}

	agg := stats.NewAggregator(c.Client())
	limiter := ratelimit.NewDefault(c.Client())
	executor := dispatch.NewExecutor(store, agg, limiter,
		time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second, logger.Desugar())
	dispatcher := dispatch.NewDispatcher(store, c, executor, logger.Desugar())

	// Initialize worker
	w := worker.NewWorker(ch, dispatcher, logger.Desugar())

	// Start consuming messages
	if err := w.Start(ctx, cfg.RabbitMQ.QueueName); err != nil {
		logger.Fatalf("Failed to start worker: %v", err)
	}

	logger.Info("Worker started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Sequences run to a terminal state once started; drain before cancelling
	// so in-flight backoff waits are not cut short.
	logger.Info("Worker shutting down, draining in-flight deliveries")
	w.Drain()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := store.Close(shutdownCtx); err != nil {
		logger.Errorf("MongoDB disconnect failed: %v", err)
	}
}
