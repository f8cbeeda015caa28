package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TxnStartedCounter tracks transactions entering the coordinator.
	TxnStartedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "strata_txn_started_total",
		Help: "Total number of transactions started",
	})
	// TxnActiveGauge reports critical sections currently running.
	TxnActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "strata_txn_active",
		Help: "Current number of active critical sections",
	})
	// LockWaitCounter tracks lock requests that had to queue behind an
	// older record with the same name.
	LockWaitCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "strata_lock_wait_total",
		Help: "Total number of lock requests that queued",
	})
	// LockStuckCounter tracks advisory stuck-transaction warnings.
	LockStuckCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "strata_lock_stuck_total",
		Help: "Total number of stuck-transaction warnings",
	})
	// QueueStallCounter tracks release failures that left a wait chain
	// unadvanced.
	QueueStallCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "strata_queue_stall_total",
		Help: "Total number of stalled lock queues",
	})
	// SchemaDriftCounter tracks mismatches reported by the validator.
	SchemaDriftCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "strata_schema_drift_total",
		Help: "Total number of schema drift detections",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Register registers all strata collectors on the given registry.
func Register(reg *prometheus.Registry) {
	reg.MustRegister(
		TxnStartedCounter,
		TxnActiveGauge,
		LockWaitCounter,
		LockStuckCounter,
		QueueStallCounter,
		SchemaDriftCounter,
	)
}
