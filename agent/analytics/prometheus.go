package analytics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dealeros/carbot/agent/contract"
)

// PrometheusSink counts the event stream for scraping. Counters only; the
// conversation id is deliberately not a label.
type PrometheusSink struct {
	toolCalls        *prometheus.CounterVec
	stageTransitions *prometheus.CounterVec
	budgetExhausted  *prometheus.CounterVec
}

func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)
	return &PrometheusSink{
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbot",
			Name:      "tool_calls_total",
			Help:      "Dispatched tool calls by tool, calling role, and outcome.",
		}, []string{"tool", "role", "status"}),
		stageTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbot",
			Name:      "stage_transitions_total",
			Help:      "Applied sales stage transitions.",
		}, []string{"from", "to"}),
		budgetExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carbot",
			Name:      "budget_exhausted_total",
			Help:      "Agent turns that ran out of inference passes.",
		}, []string{"role"}),
	}
}

func (s *PrometheusSink) Emit(ctx context.Context, ev contract.Event) {
	switch ev.Kind {
	case contract.EventToolCall:
		s.toolCalls.WithLabelValues(ev.Tool, string(ev.Role), ev.Status).Inc()
	case contract.EventStageTransition:
		s.stageTransitions.WithLabelValues(ev.FromStage, ev.ToStage).Inc()
	case contract.EventBudgetExhausted:
		s.budgetExhausted.WithLabelValues(string(ev.Role)).Inc()
	}
}
