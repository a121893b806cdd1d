// Package metrics exposes Prometheus collectors for the claim workflow.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "adhikar"

var (
	VotesCast = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "votes_cast_total",
		Help:      "Council votes by outcome.",
	}, []string{"outcome"})

	Anchors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "anchors_total",
		Help:      "Ledger anchor attempts by outcome.",
	}, []string{"outcome"})

	AnchorSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "anchor_duration_seconds",
		Help:      "Time from starting an anchor attempt to its confirmation or failure.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Public verification lookups by outcome.",
	}, []string{"outcome"})
)

// Register adds every collector to reg. Collectors already registered are skipped.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{VotesCast, Anchors, AnchorSeconds, Verifications} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return errors.Wrap(err, "error registering collector")
		}
	}
	return nil
}
