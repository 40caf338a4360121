// Package metrics defines the Prometheus metrics for the ledger service.
// All metrics are registered with the default registry on package init and
// served by the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "botify"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// LedgerOperationsTotal counts ledger operations.
// Labels:
//   - operation: grant, publish, purchase, delete, download, rate
//   - result: "ok" or the error kind (e.g. "insufficient_funds", "not_owner")
var LedgerOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_operations_total",
		Help:      "Total number of ledger operations, by operation and result.",
	},
	[]string{"operation", "result"},
)

// BitesMovedTotal sums bites moved by the ledger.
// Label:
//   - type: transaction type (earn, purchase, sale, spend)
var BitesMovedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bites_moved_total",
		Help:      "Total bites recorded in transactions, by transaction type.",
	},
	[]string{"type"},
)

// TxRetriesTotal counts store transactions retried after a serialization
// failure or deadlock.
var TxRetriesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tx_retries_total",
		Help:      "Total number of store transactions retried on conflict.",
	},
)

// DedupTotal counts de-duplication decisions.
// Label:
//   - result: "hit" (duplicate, rejected) or "miss" (new request)
var DedupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dedup_total",
		Help:      "Total number of de-duplication checks, by result (hit/miss).",
	},
	[]string{"result"},
)

// FileCleanupTotal counts stored-file deletions.
// Label:
//   - result: "deleted", "queued", "retried", "dropped"
var FileCleanupTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "file_cleanup_total",
		Help:      "Total number of stored file deletions, by result.",
	},
	[]string{"result"},
)

// OperationDuration measures ledger operation latency including retries.
var OperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_operation_duration_seconds",
		Help:      "Duration of ledger operations from start to commit.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation"},
)
