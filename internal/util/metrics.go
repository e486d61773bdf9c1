package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnapshotRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kds_snapshot_refresh_total",
		Help: "Snapshot refresh attempts by kind (full, stock) and result",
	}, []string{"kind", "result"})

	SnapshotRefreshLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kds_snapshot_refresh_latency_seconds",
		Help:    "Latency of full snapshot fetches",
		Buckets: prometheus.DefBuckets,
	})

	SnapshotActiveOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kds_snapshot_active_orders",
		Help: "Number of active orders in the current snapshot",
	})

	SnapshotLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kds_snapshot_last_success_timestamp_seconds",
		Help: "Unix time of the last successful full fetch",
	})

	PushEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kds_push_events_total",
		Help: "Push events received by type",
	}, []string{"type"})

	ItemTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kds_item_transitions_total",
		Help: "Item status transition requests by target status and outcome",
	}, []string{"status", "outcome"})

	OrderPromotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kds_order_promotions_total",
		Help: "Automatic order promotions to ready by result",
	}, []string{"result"})

	MutationRollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kds_mutation_rollbacks_total",
		Help: "Optimistic changes reverted after a rejected remote update",
	}, []string{"kind"})

	GateAdvisoriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kds_stock_gate_advisories_total",
		Help: "Stock gate advisories raised by level",
	}, []string{"level"})

	KitchenConfigWarnings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kds_kitchen_config_warnings",
		Help: "Configuration warnings in the last kitchen aggregation",
	})

	ActiveCountdowns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kds_active_countdowns",
		Help: "Number of running per-order countdown tasks",
	})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kds_websocket_clients",
		Help: "Connected display clients",
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
