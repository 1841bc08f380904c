package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"webhook-dispatcher/api/router"
	"webhook-dispatcher/config"
	"webhook-dispatcher/internal/cache"
	"webhook-dispatcher/internal/dispatch"
	"webhook-dispatcher/internal/queue"
	"webhook-dispatcher/internal/ratelimit"
	"webhook-dispatcher/internal/registry"
	"webhook-dispatcher/internal/stats"
	"webhook-dispatcher/internal/storage"
	"webhook-dispatcher/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wires the management API: registry CRUD, event ingest, and the
// Prometheus listener.
type Server struct {
	httpServer    *http.Server
	metricsServer *http.Server
	logger        *logger.Logger
	publisher     queue.Publisher
	store         *storage.MongoDB
	cache         *cache.Cache
}

func NewServer(cfg *config.Config, log *logger.Logger) (*Server, error) {
	store, err := storage.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database, log.Desugar())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	c, err := cache.New(cfg.Redis.URL, time.Duration(cfg.Webhook.CacheTTLHours)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// Rebuild the fast path from persisted enabled configs.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	enabled := true
	hooks, err := store.ListWebhooks(ctx, &enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhooks: %w", err)
	}
	if err := c.WarmUp(ctx, hooks); err != nil {
		return nil, fmt.Errorf("failed to warm webhook cache: %w", err)
	}
	log.Infof("Webhook cache warmed with %d enabled webhooks", len(hooks))

	agg := stats.NewAggregator(c.Client())
	limiter := ratelimit.NewDefault(c.Client())
	executor := dispatch.NewExecutor(store, agg, limiter,
		time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second, log.Desugar())

	reg := registry.New(store, c, agg, executor, registry.Defaults{
		MaxRetries:   cfg.Webhook.MaxRetries,
		RetryDelayMS: cfg.Webhook.RetryDelayMS,
	}, log.Desugar())

	publisher, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.QueueName, log.Desugar())
	if err != nil {
		return nil, fmt.Errorf("failed to create rabbitmq publisher: %w", err)
	}
	publisher.StartMetricsUpdater(context.Background())

	r := router.Setup(log, reg, publisher, cfg)

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler: promhttp.Handler(),
	}

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: r,
		},
		metricsServer: metricsServer,
		logger:        log,
		publisher:     publisher,
		store:         store,
		cache:         c,
	}, nil
}

func (s *Server) Start() error {
	go func() {
		s.logger.Info("Metrics server starting on " + s.metricsServer.Addr)
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("metrics server error: %v", err)
		}
	}()

	s.logger.Info("Server starting on " + s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown() error {
	s.logger.Info("Server shutting down")
	if err := s.publisher.Close(); err != nil {
		s.logger.Errorf("failed to close publisher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.metricsServer.Shutdown(ctx); err != nil {
		s.logger.Errorf("metrics server shutdown failed: %v", err)
	}
	if err := s.store.Close(ctx); err != nil {
		s.logger.Errorf("mongodb disconnect failed: %v", err)
	}
	if err := s.cache.Close(); err != nil {
		s.logger.Errorf("redis close failed: %v", err)
	}
	return s.httpServer.Shutdown(ctx)
}
