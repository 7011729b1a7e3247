package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workspace_result_cache_hits_total",
		Help: "Result cache hits by partition.",
	}, []string{"partition"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workspace_result_cache_misses_total",
		Help: "Result cache misses by partition.",
	}, []string{"partition"})

	BudgetAlertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workspace_budget_alerts_triggered_total",
		Help: "Budget alerts that crossed their threshold.",
	}, []string{"type"})

	AggregatorChunkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workspace_aggregator_chunk_errors_total",
		Help: "Failed per-chunk store queries during cross-workspace fan-out.",
	})
)
