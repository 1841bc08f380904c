package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/queue"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventHandler accepts domain events from emitters and publishes them to the
// queue for the dispatcher worker. Emission never waits for, or fails on,
// downstream delivery.
type EventHandler struct {
	logger    *zap.Logger
	publisher queue.Publisher
}

func NewEventHandler(logger *zap.Logger, publisher queue.Publisher) *EventHandler {
	return &EventHandler{logger: logger, publisher: publisher}
}

type emitRequest struct {
	Type    string          `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload"`
	Source  string          `json:"source"`
}

func (h *EventHandler) Emit(c *gin.Context) {
	var req emitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if !models.IsKnownEventType(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown event type"})
		return
	}

	event := &models.DomainEvent{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Payload:   req.Payload,
		Timestamp: time.Now().UTC(),
		Source:    req.Source,
	}

	if err := h.publisher.Publish(event); err != nil {
		h.logger.Error("Failed to publish event",
			zap.Error(err),
			zap.String("event_type", event.Type))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept event"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Event accepted",
		"event_id": event.ID,
	})
}
