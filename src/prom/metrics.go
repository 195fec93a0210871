// backend/src/prom/metrics.go
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for the reconciliation pipeline. The recovery-stage counter is
// the structured record of which parser stage salvaged each response; tests
// and dashboards read the stage from here and from the log event, never from
// free text.
var (
	RecoveryStageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciliation",
		Name:      "parser_recovery_stage_total",
		Help:      "Structured responses parsed, labeled by the recovery stage that produced the value.",
	}, []string{"stage"})

	ParseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reconciliation",
		Name:      "parser_unrecoverable_total",
		Help:      "Generator responses no recovery stage could salvage.",
	})

	ExtractionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciliation",
		Name:      "extraction_failures_total",
		Help:      "Extraction calls that failed, labeled by failure kind.",
	}, []string{"kind"})

	FlagsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciliation",
		Name:      "flags_created_total",
		Help:      "Anomaly flags persisted, labeled by flag type.",
	}, []string{"flag_type"})

	FlagsDeduplicatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reconciliation",
		Name:      "flags_deduplicated_total",
		Help:      "Flag candidates skipped because the (transaction, type) pair already existed.",
	})

	AdjustmentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reconciliation",
		Name:      "salary_adjustments_created_total",
		Help:      "Salary adjustments generated from personal_confirmed flags.",
	})
)
