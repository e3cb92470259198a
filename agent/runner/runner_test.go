package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/state"
	"github.com/dealeros/carbot/agent/tools"
)

type fakeInference struct {
	completions []contract.Completion
	err         error
	idx         int
	requests    []contract.InferenceRequest
}

func (f *fakeInference) Complete(ctx context.Context, req contract.InferenceRequest) (contract.Completion, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return contract.Completion{}, f.err
	}
	if f.idx >= len(f.completions) {
		return contract.Completion{}, errors.New("no fake completion left")
	}
	c := f.completions[f.idx]
	f.idx++
	return c, nil
}

func toolCall(name string, args map[string]any) contract.Completion {
	return contract.Completion{ToolCall: &contract.ToolCall{Name: name, Args: args}}
}

func newRegistry(t *testing.T, handler tools.HandlerFunc) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(nil)
	spec := contract.ToolSpec{
		Name:        "lookup",
		Description: "test tool",
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"q": {Type: "string"},
			},
		},
	}
	if err := r.Register(spec, handler); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	r.Grant(contract.RoleSales, "lookup")
	return r
}

func customerTurn(text string) []contract.Message {
	return []contract.Message{{Kind: contract.MessageCustomer, Content: text}}
}

func TestRunDirectReply(t *testing.T) {
	t.Parallel()

	fake := &fakeInference{completions: []contract.Completion{{Text: "Welcome in!"}}}
	r := New(fake, newRegistry(t, func(ctx context.Context, call tools.Call) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}))

	conv := state.NewConversation("c1", time.Now())
	res, err := r.Run(context.Background(), contract.RoleSales, "system", customerTurn("hi"), conv)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Reply != "Welcome in!" || res.Degraded || res.BudgetExhausted {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunToolCallThenReply(t *testing.T) {
	t.Parallel()

	fake := &fakeInference{completions: []contract.Completion{
		toolCall("lookup", map[string]any{"q": "suv"}),
		{Text: "We have two SUVs."},
	}}
	r := New(fake, newRegistry(t, func(ctx context.Context, call tools.Call) (any, error) {
		return map[string]any{"count": 2}, nil
	}))

	conv := state.NewConversation("c1", time.Now())
	res, err := r.Run(context.Background(), contract.RoleSales, "system", customerTurn("any suvs?"), conv)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Reply != "We have two SUVs." {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}

	// Second pass must carry the tool exchange as context.
	second := fake.requests[1]
	if len(second.Messages) != 3 {
		t.Fatalf("expected 3 messages on re-inference, got %d", len(second.Messages))
	}
	last := second.Messages[2]
	if last.Kind != contract.MessageTool || last.ToolName != "lookup" {
		t.Fatalf("unexpected tool message: %+v", last)
	}
	if !strings.Contains(last.Content, `"count":2`) {
		t.Fatalf("tool result not serialized: %q", last.Content)
	}
	if len(conv.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call record, got %d", len(conv.ToolCalls))
	}
}

func TestRunToolErrorFedBackAsContext(t *testing.T) {
	t.Parallel()

	fake := &fakeInference{completions: []contract.Completion{
		toolCall("lookup", map[string]any{"q": "sold car"}),
		{Text: "That one was just sold, I'm afraid."},
	}}
	r := New(fake, newRegistry(t, func(ctx context.Context, call tools.Call) (any, error) {
		return nil, contract.ErrAlreadySold
	}))

	conv := state.NewConversation("c1", time.Now())
	res, err := r.Run(context.Background(), contract.RoleSales, "system", customerTurn("buy it"), conv)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Degraded {
		t.Fatal("tool failure must not degrade the turn")
	}
	last := fake.requests[1].Messages[2]
	if !strings.Contains(last.Content, "error") {
		t.Fatalf("tool error not surfaced to model: %q", last.Content)
	}
	if res.Reply != "That one was just sold, I'm afraid." {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
}

func TestRunCapabilityErrorDegrades(t *testing.T) {
	t.Parallel()

	fake := &fakeInference{completions: []contract.Completion{
		toolCall("forbidden_tool", nil),
	}}
	r := New(fake, newRegistry(t, func(ctx context.Context, call tools.Call) (any, error) {
		return nil, nil
	}))

	conv := state.NewConversation("c1", time.Now())
	res, err := r.Run(context.Background(), contract.RoleSales, "system", customerTurn("hack"), conv)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if res.Reply == "" {
		t.Fatal("expected apology reply")
	}
	if len(fake.requests) != 1 {
		t.Fatalf("turn should end on capability rejection, got %d passes", len(fake.requests))
	}
}

func TestRunBudgetExhaustion(t *testing.T) {
	t.Parallel()

	var completions []contract.Completion
	for i := 0; i < DefaultBudget+1; i++ {
		completions = append(completions, toolCall("lookup", map[string]any{"q": "again"}))
	}
	fake := &fakeInference{completions: completions}

	sink := &captureSink{}
	r := New(fake, newRegistry(t, func(ctx context.Context, call tools.Call) (any, error) {
		return "partial", nil
	}), WithSink(sink))

	conv := state.NewConversation("c1", time.Now())
	res, err := r.Run(context.Background(), contract.RoleSales, "system", customerTurn("loop"), conv)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.BudgetExhausted {
		t.Fatal("expected budget exhaustion flag")
	}
	if res.Reply == "" {
		t.Fatal("expected partial reply")
	}
	if len(fake.requests) != DefaultBudget {
		t.Fatalf("expected %d passes, got %d", DefaultBudget, len(fake.requests))
	}

	found := false
	for _, ev := range sink.events {
		if ev.Kind == contract.EventBudgetExhausted {
			found = true
		}
	}
	if !found {
		t.Fatal("budget exhaustion event not emitted")
	}
}

func TestRunInferenceFailureIsFatal(t *testing.T) {
	t.Parallel()

	fake := &fakeInference{err: errors.New("provider down")}
	r := New(fake, newRegistry(t, func(ctx context.Context, call tools.Call) (any, error) {
		return nil, nil
	}))

	conv := state.NewConversation("c1", time.Now())
	_, err := r.Run(context.Background(), contract.RoleSales, "system", customerTurn("hi"), conv)
	if !errors.Is(err, contract.ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}
}

func TestRunCustomBudget(t *testing.T) {
	t.Parallel()

	fake := &fakeInference{completions: []contract.Completion{
		toolCall("lookup", nil),
		toolCall("lookup", nil),
	}}
	r := New(fake, newRegistry(t, func(ctx context.Context, call tools.Call) (any, error) {
		return "x", nil
	}), WithBudget(2))

	conv := state.NewConversation("c1", time.Now())
	res, err := r.Run(context.Background(), contract.RoleSales, "system", customerTurn("loop"), conv)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.BudgetExhausted || len(fake.requests) != 2 {
		t.Fatalf("unexpected result: %+v passes=%d", res, len(fake.requests))
	}
}

type captureSink struct {
	events []contract.Event
}

func (s *captureSink) Emit(ctx context.Context, ev contract.Event) {
	s.events = append(s.events, ev)
}
