package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_turns_resolved_total",
			Help: "Total number of inbound messages resolved, by outcome",
		},
		[]string{"outcome"}, // intent, flow, fallback, handoff, clarify
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "agent_turn_duration_seconds",
			Help: "Duration of one dialogue turn end to end",
		},
		[]string{"flow"},
	)

	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_escalations_total",
			Help: "Total conversations handed off to a human, by reason class",
		},
		[]string{"reason"},
	)

	FallbackCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_fallback_calls_total",
			Help: "AI fallback resolver invocations, by result",
		},
		[]string{"result"}, // accepted, low_confidence, invalid, error
	)

	QuotesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_quotes_issued_total",
			Help: "Total priced quotes sent to customers",
		},
	)
)
