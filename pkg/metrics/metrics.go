package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_dispatched_total",
		Help: "The total number of domain events run through the dispatcher",
	}, []string{"event_type"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "The total number of concluded delivery sequences",
	}, []string{"event_type", "status"})

	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_delivery_duration_seconds",
		Help:    "Time taken by a single delivery attempt",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})

	DeliveryRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_delivery_retries_total",
		Help: "The total number of delivery attempts beyond the first",
	}, []string{"event_type"})

	RateLimitDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_rate_limit_dropped_total",
		Help: "The total number of deliveries skipped because the per-webhook rate limit was exhausted",
	}, []string{"webhook_id"})

	EventQueueSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "webhook_event_queue_size",
		Help: "Current depth of the domain event queue",
	}, []string{"queue"})
)
