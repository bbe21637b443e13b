package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bet-flow counters. It satisfies flipcore.Metrics.
type Metrics struct {
	betsPlaced   prometheus.Counter
	betsResolved *prometheus.CounterVec
	approvals    *prometheus.CounterVec
	stepFailures *prometheus.CounterVec
}

// New registers the counters on reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		betsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chadflip_bets_placed_total",
			Help: "Bets confirmed on-chain with a BetPlaced event.",
		}),
		betsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chadflip_bets_resolved_total",
			Help: "Bets resolved on-chain, by result.",
		}, []string{"result"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chadflip_approvals_total",
			Help: "ERC-20 approval transactions submitted, by token role.",
		}, []string{"token"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chadflip_step_failures_total",
			Help: "Bet flow failures, by stage.",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.betsPlaced, m.betsResolved, m.approvals, m.stepFailures)
	return m
}

func (m *Metrics) BetPlaced() { m.betsPlaced.Inc() }

func (m *Metrics) BetResolved(won bool) {
	result := "loss"
	if won {
		result = "win"
	}
	m.betsResolved.WithLabelValues(result).Inc()
}

func (m *Metrics) ApprovalSubmitted(token string) { m.approvals.WithLabelValues(token).Inc() }

func (m *Metrics) StepFailed(stage string) { m.stepFailures.WithLabelValues(stage).Inc() }
