package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LeadsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_ingested_total",
		Help: "Total number of leads accepted at the ingestion endpoint",
	}, []string{"source"})

	LeadsIdempotentReplayTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_idempotent_replay_total",
		Help: "Total number of ingestion requests that resolved to an existing lead",
	}, []string{"source"})

	ClassificationFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classification_failed_total",
		Help: "Total number of leads that failed source/offer classification",
	}, []string{"reason"})

	LeadsValidatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leads_validated_total",
		Help: "Total number of leads that passed validation",
	})

	LeadsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_rejected_total",
		Help: "Total number of leads rejected during validation or duplicate detection",
	}, []string{"reason"})

	DuplicateActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duplicate_actions_total",
		Help: "Total number of duplicate-detection outcomes by action",
	}, []string{"action"})

	RoutingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "routing_latency_seconds",
		Help:    "Latency of lead routing decisions",
		Buckets: prometheus.DefBuckets,
	})

	RoutingNoRouteTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_no_route_total",
		Help: "Total number of leads that could not be routed to any buyer",
	}, []string{"reason"})

	LeadsRoutedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leads_routed_total",
		Help: "Total number of leads successfully routed to a buyer",
	})

	DeliveryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_attempts_total",
		Help: "Total number of outbound webhook delivery attempts",
	}, []string{"outcome"})

	DeliveryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "delivery_latency_seconds",
		Help:    "Latency of outbound webhook delivery attempts",
		Buckets: prometheus.DefBuckets,
	})

	LeadsDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leads_delivered_total",
		Help: "Total number of leads successfully delivered to a buyer",
	})

	DeliveryRetriesExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_retries_exhausted_total",
		Help: "Total number of leads that exhausted their delivery retry budget",
	})

	IdempotencyRacesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_races_total",
		Help: "Total number of concurrent ingestion requests that collided on the same idempotency key",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
