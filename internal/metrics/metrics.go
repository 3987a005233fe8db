// Package metrics exposes prometheus counters for the capture and
// reconciliation paths. Collectors register on the default registry and are
// served by the /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts processed scans by resolution:
	// confirmed, queued, rejected, ignored, failed.
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendsync_scans_total",
		Help: "Processed scans by resolution.",
	}, []string{"result"})

	// SyncAttemptsTotal counts reconciliation submission attempts by
	// outcome: accepted, rejected, unreachable.
	SyncAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendsync_sync_attempts_total",
		Help: "Reconciliation submission attempts by outcome.",
	}, []string{"outcome"})

	// SyncRunsTotal counts reconciliation runs by result:
	// completed, gated.
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendsync_sync_runs_total",
		Help: "Reconciliation runs by result.",
	}, []string{"result"})

	// ExportsTotal counts export artifacts written.
	ExportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendsync_exports_total",
		Help: "Export artifacts written.",
	})
)
