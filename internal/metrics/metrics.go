package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReturnsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "returnbase_returns_created_total",
		Help: "Total number of return requests successfully created.",
	})

	TransitionsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returnbase_transitions_applied_total",
		Help: "Total number of status transitions applied, by target status.",
	},
		[]string{"to_status"},
	)

	TransitionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returnbase_transitions_rejected_total",
		Help: "Total number of status transitions rejected, by reason.",
	},
		[]string{"reason"},
	)

	RepositoryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returnbase_repository_errors_total",
		Help: "Total number of errors encountered during repository operations.",
	},
		[]string{"operation"},
	)

	AuditBatchesFlushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "returnbase_audit_batches_flushed_total",
		Help: "Total number of audit batches flushed by the recorder.",
	})

	TenantCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "returnbase_tenant_cache_items",
		Help: "Current number of tenants held in the auth cache.",
	})
)
