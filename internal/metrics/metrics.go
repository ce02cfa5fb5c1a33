// Package metrics exposes Prometheus instrumentation for the economy core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HealthScore is the last computed economic stability score (0-100).
	HealthScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "economy",
		Name:      "health_score",
		Help:      "Economic stability score from the last analysis cycle.",
	})

	// EmergencyActive is 1 while emergency mode is active.
	EmergencyActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "economy",
		Name:      "emergency_active",
		Help:      "1 while emergency mode is active, 0 otherwise.",
	})

	// Indicators tracks the raw inputs to the stability score.
	Indicators = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "economy",
		Name:      "indicator",
		Help:      "Economic indicators by name (gini, concentration, house_edge, velocity, total_wealth, daily_loss).",
	}, []string{"name"})

	// BetDecisions counts bet validations by outcome.
	BetDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "economy",
		Name:      "bet_decisions_total",
		Help:      "Bet validations by outcome.",
	}, []string{"outcome"})

	// PayoutReductions counts payouts that were reduced.
	PayoutReductions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "economy",
		Name:      "payout_reductions_total",
		Help:      "Payouts reduced before being written to the ledger.",
	})

	// RiskAssessments counts analyzed actions by risk level.
	RiskAssessments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "economy",
		Name:      "risk_assessments_total",
		Help:      "Analyzed game actions by risk level.",
	}, []string{"level"})

	// RiskActions counts action tiers fired by the risk aggregator.
	RiskActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "economy",
		Name:      "risk_actions_total",
		Help:      "Risk action tiers fired.",
	}, []string{"action"})

	// LedgerErrors counts failed ledger calls by operation.
	LedgerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "economy",
		Name:      "ledger_errors_total",
		Help:      "Failed ledger calls by operation.",
	}, []string{"op"})

	// NotificationFailures counts notifications that could not be delivered.
	NotificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "economy",
		Name:      "notification_failures_total",
		Help:      "Undelivered notifications by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		HealthScore,
		EmergencyActive,
		Indicators,
		BetDecisions,
		PayoutReductions,
		RiskAssessments,
		RiskActions,
		LedgerErrors,
		NotificationFailures,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func SetEmergency(active bool) {
	if active {
		EmergencyActive.Set(1)
		return
	}
	EmergencyActive.Set(0)
}
