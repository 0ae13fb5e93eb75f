package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordedReceipts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shop",
		Subsystem: "ledger",
		Name:      "recorded_receipts",
	})

	DuplicateDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shop",
		Subsystem: "ledger",
		Name:      "duplicate_deliveries_total",
	})
)
