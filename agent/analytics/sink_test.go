package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dealeros/carbot/agent/contract"
)

type recordingSink struct {
	events []contract.Event
}

func (s *recordingSink) Emit(ctx context.Context, ev contract.Event) {
	s.events = append(s.events, ev)
}

func TestMultiSinkFanOut(t *testing.T) {
	t.Parallel()

	a := &recordingSink{}
	b := &recordingSink{}
	m := NewMultiSink(a, nil, b)

	ev := contract.Event{Kind: contract.EventToolCall, ConversationID: "c1", At: time.Now()}
	m.Emit(context.Background(), ev)

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	require.Equal(t, "c1", a.events[0].ConversationID)
}

func TestNopSink(t *testing.T) {
	t.Parallel()

	// Must simply not panic.
	NopSink{}.Emit(context.Background(), contract.Event{Kind: contract.EventToolCall})
}

func TestPrometheusSinkCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg)
	ctx := context.Background()

	s.Emit(ctx, contract.Event{
		Kind: contract.EventToolCall, Role: contract.RoleSales,
		Tool: "search_inventory", Status: "ok",
	})
	s.Emit(ctx, contract.Event{
		Kind: contract.EventToolCall, Role: contract.RoleSales,
		Tool: "search_inventory", Status: "ok",
	})
	s.Emit(ctx, contract.Event{
		Kind: contract.EventStageTransition, FromStage: "greeting", ToStage: "discovery",
	})
	s.Emit(ctx, contract.Event{
		Kind: contract.EventBudgetExhausted, Role: contract.RoleResearch,
	})

	require.Equal(t, float64(2),
		testutil.ToFloat64(s.toolCalls.WithLabelValues("search_inventory", "sales", "ok")))
	require.Equal(t, float64(1),
		testutil.ToFloat64(s.stageTransitions.WithLabelValues("greeting", "discovery")))
	require.Equal(t, float64(1),
		testutil.ToFloat64(s.budgetExhausted.WithLabelValues("research")))
}

func TestPrometheusSinkIgnoresUnknownKinds(t *testing.T) {
	t.Parallel()

	s := NewPrometheusSink(prometheus.NewRegistry())
	s.Emit(context.Background(), contract.Event{Kind: "something_else"})
}
