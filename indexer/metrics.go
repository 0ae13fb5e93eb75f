package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LatestHeadBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "shop",
		Subsystem: "indexer",
		Name:      "latest_head_block",
		Help:      "Shows the latest observed chain head, adjusted for the configured number of confirmations.",
	}, []string{"chain_id", "address"})
	LatestScannedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "shop",
		Subsystem: "indexer",
		Name:      "latest_scanned_block",
		Help:      "Shows the latest block up to which contract logs were scanned and processed.",
	}, []string{"chain_id", "address"})
	SyncedIndexer = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "shop",
		Subsystem: "indexer",
		Name:      "synced",
		Help:      "Shows 1 if the historical scan is finished and the live subscription is established.",
	}, []string{"chain_id", "address"})
	ActiveSubscription = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "shop",
		Subsystem: "indexer",
		Name:      "active_subscription",
		Help:      "Shows 1 if the live logs subscription is currently established.",
	}, []string{"chain_id", "address"})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shop",
		Subsystem: "indexer",
		Name:      "events_processed_total",
	}, []string{"event", "status"})
	SubscriptionRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shop",
		Subsystem: "indexer",
		Name:      "subscription_restarts_total",
	})
	ReconcilePasses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shop",
		Subsystem: "indexer",
		Name:      "reconcile_passes_total",
	})
)
