package services

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Domain collectors. Labels are closed enums so cardinality stays fixed.
var (
	ticketsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicq_tickets_created_total",
			Help: "Tickets issued, by patient category.",
		},
		[]string{"category"},
	)

	callNextOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicq_call_next_total",
			Help: "Call-next attempts by outcome (called, slot_occupied, no_waiting_ticket, error).",
		},
		[]string{"outcome"},
	)

	ticketTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicq_ticket_transitions_total",
			Help: "Applied ticket state changes by action; no-op retries are labelled noop=true.",
		},
		[]string{"action", "noop"},
	)

	assessmentsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicq_assessments_completed_total",
			Help: "Completed urgency assessments by recommended action.",
		},
		[]string{"action"},
	)

	assessmentsDegraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clinicq_assessments_degraded_total",
			Help: "Assessments that fell back to the neutral verdict.",
		},
	)

	allocationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clinicq_allocation_failures_total",
			Help: "Ticket creations aborted after exhausting allocation retries.",
		},
	)

	priorityRecomputeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clinicq_priority_recompute_failures_total",
			Help: "Per-ticket priority recompute failures.",
		},
	)

	ticketsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clinicq_tickets",
			Help: "Stored tickets by status across all doctors, refreshed by each priority sweep.",
		},
		[]string{"status"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clinicq_priority_sweep_duration_seconds",
			Help:    "Duration of periodic priority sweeps.",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

func init() {
	prometheus.MustRegister(
		ticketsCreated, callNextOutcomes, ticketTransitions,
		assessmentsCompleted, assessmentsDegraded, allocationFailures,
		priorityRecomputeFailures, ticketsByStatus, sweepDuration,
	)
}

// logger returns the request-scoped logger from ctx, or the global one.
func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
