package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler exposes the registry over HTTP.
type WebhookHandler struct {
	logger   *zap.Logger
	registry *registry.Registry
}

func NewWebhookHandler(logger *zap.Logger, reg *registry.Registry) *WebhookHandler {
	return &WebhookHandler{logger: logger, registry: reg}
}

func (h *WebhookHandler) Create(c *gin.Context) {
	var in registry.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	details, err := h.registry.Register(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, details)
}

func (h *WebhookHandler) List(c *gin.Context) {
	var active *bool
	if raw, ok := c.GetQuery("active"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid active filter"})
			return
		}
		active = &v
	}

	details, err := h.registry.List(c.Request.Context(), active)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *WebhookHandler) Get(c *gin.Context) {
	details, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *WebhookHandler) Update(c *gin.Context) {
	var in registry.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	details, err := h.registry.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *WebhookHandler) Delete(c *gin.Context) {
	if err := h.registry.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *WebhookHandler) History(c *gin.Context) {
	limit := int64(100)
	offset := int64(0)
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			limit = v
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			offset = v
		}
	}

	deliveries, err := h.registry.History(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if deliveries == nil {
		deliveries = []*models.DeliveryAttempt{}
	}
	c.JSON(http.StatusOK, deliveries)
}

func (h *WebhookHandler) Ping(c *gin.Context) {
	if err := h.registry.Ping(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Test ping sent successfully",
	})
}

func (h *WebhookHandler) Retry(c *gin.Context) {
	if err := h.registry.RetryDelivery(c.Request.Context(), c.Param("id"), c.Param("deliveryId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Delivery retried successfully",
	})
}

func (h *WebhookHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhook not found"})
	case models.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Registry operation failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
