package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	changeDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "listings",
		Subsystem: "moderation",
		Name:      "change_decisions_total",
		Help:      "Field change decisions, by decision (accepted, rejected, auto_rejected) and path.",
	}, []string{"decision", "path"})

	draftFinalizations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "listings",
		Subsystem: "moderation",
		Name:      "draft_finalizations_total",
		Help:      "Drafts finalized, by final status and source.",
	}, []string{"status", "source"})

	finalizeRaces = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "listings",
		Subsystem: "moderation",
		Name:      "finalize_lost_races_total",
		Help:      "Finalization attempts that found the draft already finalized by a concurrent caller.",
	})

	sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "listings",
		Subsystem: "moderation",
		Name:      "side_effect_failures_total",
		Help:      "Best-effort side effects that failed after a committed decision.",
	}, []string{"effect"})
)

func recordDecision(decision, path string, n int) {
	if n <= 0 {
		return
	}
	changeDecisions.WithLabelValues(decision, path).Add(float64(n))
}
