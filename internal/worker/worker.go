package worker

import (
	"context"
	"encoding/json"
	"time"

	"webhook-dispatcher/internal/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// EventDispatcher is the fan-out entry point the worker feeds consumed events
// into.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event *models.DomainEvent) error
	Wait()
}

// Worker consumes domain events from the queue and hands them to the
// dispatcher. Delivery outcomes never fail the consume loop: once an event is
// dispatched it is acked, and failures live in the delivery log.
type Worker struct {
	channel    *amqp.Channel
	dispatcher EventDispatcher
	logger     *zap.Logger
}

func NewWorker(channel *amqp.Channel, dispatcher EventDispatcher, logger *zap.Logger) *Worker {
	return &Worker{
		channel:    channel,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.channel.Consume(
		queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			event := &models.DomainEvent{}
			if err := json.Unmarshal(msg.Body, event); err != nil {
				w.logger.Error("Failed to unmarshal event",
					zap.Error(err),
					zap.String("body", string(msg.Body)))
				msg.Nack(false, false)
				continue
			}

			// Emitters usually assign both; tolerate sloppy ones.
			if event.ID == "" {
				event.ID = uuid.NewString()
			}
			if event.Timestamp.IsZero() {
				event.Timestamp = time.Now().UTC()
			}

			w.logger.Info("Consuming domain event",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.String("source", event.Source))

			if err := w.dispatcher.Dispatch(ctx, event); err != nil {
				w.logger.Error("Failed to dispatch event",
					zap.Error(err),
					zap.String("event_id", event.ID))
				msg.Nack(false, true)
				continue
			}

			msg.Ack(false)
		}
	}()

	return nil
}

// Drain waits for in-flight delivery sequences to conclude.
func (w *Worker) Drain() {
	w.dispatcher.Wait()
}
