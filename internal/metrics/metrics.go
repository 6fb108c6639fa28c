// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newswire_items_ingested_total",
			Help: "Ingestion attempts by source kind and outcome (created, existing, rejected, error)",
		},
		[]string{"source", "outcome"},
	)

	ItemsUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newswire_items_updated_total",
			Help: "Editorial updates applied to stored items",
		},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newswire_notifications_total",
			Help: "Per-device notification results (sent, failed)",
		},
		[]string{"outcome"},
	)

	DevicesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newswire_devices_pruned_total",
			Help: "Devices removed after an invalid-token delivery result",
		},
	)

	RelatedRecomputes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newswire_related_recomputes_total",
			Help: "Related-list recomputations by mode (link, tag, none)",
		},
		[]string{"mode"},
	)

	ProfileRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newswire_profile_rebuilds_total",
			Help: "Interest profile rebuilds by outcome (ok, empty, busy, error)",
		},
		[]string{"outcome"},
	)

	FeedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newswire_feed_requests_total",
			Help: "Feed requests by mode (personalized, recency)",
		},
		[]string{"mode"},
	)

	Enrichments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newswire_enrichment_total",
			Help: "Text enrichment calls by outcome (ok, fallback)",
		},
		[]string{"outcome"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newswire_task_duration_seconds",
			Help:    "Duration of recurring task runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)
)
