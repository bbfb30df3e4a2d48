package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_mutations_total",
			Help: "Total number of wallet balance mutations",
		},
		[]string{"type", "result"},
	)

	mutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_mutation_duration_seconds",
			Help:    "Duration of wallet balance mutations including retries",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2},
		},
		[]string{"type"},
	)

	conflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_concurrent_modification_retries_total",
			Help: "Total number of transactions retried after a concurrent wallet modification",
		},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
