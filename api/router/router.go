package router

import (
	"webhook-dispatcher/api/handlers"
	"webhook-dispatcher/api/middleware"
	"webhook-dispatcher/config"
	"webhook-dispatcher/internal/queue"
	"webhook-dispatcher/internal/registry"
	"webhook-dispatcher/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(log *logger.Logger, reg *registry.Registry, publisher queue.Publisher, cfg *config.Config) *gin.Engine {
	router := gin.Default()

	security := middleware.NewSecurityMiddleware(
		log.Desugar(),
		cfg.Security.APIKeys,
		cfg.Security.APIKeyHeader,
	)
	router.Use(security.CORS())

	// Health check endpoint (no authentication required)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Metrics endpoint for Prometheus (no authentication required)
	router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))

	webhookHandler := handlers.NewWebhookHandler(log.Desugar(), reg)
	eventHandler := handlers.NewEventHandler(log.Desugar(), publisher)

	authed := router.Group("/", security.Authenticate())
	{
		authed.POST("/events", eventHandler.Emit)

		webhooks := authed.Group("/webhooks")
		{
			webhooks.POST("", webhookHandler.Create)
			webhooks.GET("", webhookHandler.List)
			webhooks.GET("/:id", webhookHandler.Get)
			webhooks.PUT("/:id", webhookHandler.Update)
			webhooks.DELETE("/:id", webhookHandler.Delete)
			webhooks.GET("/:id/deliveries", webhookHandler.History)
			webhooks.POST("/:id/ping", webhookHandler.Ping)
			webhooks.POST("/:id/retry/:deliveryId", webhookHandler.Retry)
		}
	}

	return router
}
