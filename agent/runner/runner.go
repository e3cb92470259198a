package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/state"
	"github.com/dealeros/carbot/agent/tools"
)

// DefaultBudget caps inference passes per turn. Each tool call consumes one
// pass; the bound is the circuit breaker against tool-call loops.
const DefaultBudget = 5

const (
	// degradedReply is sent when the model requests a tool outside its
	// capability set. The turn ends; state already committed by earlier
	// tool calls is kept.
	degradedReply = "I'm sorry, I can't help with that particular request right now. Is there anything else about our vehicles I can help you with?"

	// exhaustedReply closes a turn that ran out of inference passes before
	// the model produced a final text.
	exhaustedReply = "I'm still working through the details of your request. Could you give me a moment and ask again, or narrow down what matters most to you?"
)

// Result is one completed agent turn.
type Result struct {
	Reply           string
	BudgetExhausted bool
	Degraded        bool
}

// Runner drives one role through the inference / tool-call / re-inference
// loop. It is stateless across turns; all conversation state lives in the
// working copy threaded through tool dispatch.
type Runner struct {
	inference contract.Inference
	registry  *tools.Registry
	sink      contract.Sink
	budget    int
}

type Option func(*Runner)

func WithBudget(budget int) Option {
	return func(r *Runner) {
		if budget > 0 {
			r.budget = budget
		}
	}
}

func WithSink(sink contract.Sink) Option {
	return func(r *Runner) {
		r.sink = sink
	}
}

func New(inference contract.Inference, registry *tools.Registry, opts ...Option) *Runner {
	r := &Runner{
		inference: inference,
		registry:  registry,
		budget:    DefaultBudget,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run executes one turn for role. Inference failure is fatal and returned to
// the caller; tool failures are fed back to the model as tool-result context
// so it can adjust, except capability rejections which end the turn with a
// degraded reply.
func (r *Runner) Run(ctx context.Context, role contract.Role, system string, messages []contract.Message, conv *state.Conversation) (Result, error) {
	msgs := make([]contract.Message, len(messages))
	copy(msgs, messages)

	specs := r.registry.Specs(role)

	for pass := 0; pass < r.budget; pass++ {
		completion, err := r.inference.Complete(ctx, contract.InferenceRequest{
			Role:     role,
			System:   system,
			Messages: msgs,
			Tools:    specs,
		})
		if err != nil {
			return Result{}, fmt.Errorf("%w: role=%s: %v", contract.ErrInference, role, err)
		}

		if completion.ToolCall == nil {
			return Result{Reply: completion.Text}, nil
		}

		call := completion.ToolCall
		log.Debug().
			Str("conversation_id", conv.ID).
			Str("role", string(role)).
			Str("tool", call.Name).
			Int("pass", pass+1).
			Msg("runner: tool call requested")

		msgs = append(msgs, assistantToolCallMessage(call))

		result, err := r.registry.Dispatch(ctx, tools.Call{
			Name:         call.Name,
			Args:         call.Args,
			Role:         role,
			Conversation: conv,
		})
		if errors.Is(err, contract.ErrCapability) {
			log.Warn().
				Str("conversation_id", conv.ID).
				Str("role", string(role)).
				Str("tool", call.Name).
				Msg("runner: capability rejection, degrading turn")
			return Result{Reply: degradedReply, Degraded: true}, nil
		}

		msgs = append(msgs, toolResultMessage(call.Name, result, err))
	}

	log.Warn().
		Err(contract.ErrBudgetExhausted).
		Str("conversation_id", conv.ID).
		Str("role", string(role)).
		Int("budget", r.budget).
		Msg("runner: turn budget exhausted")
	if r.sink != nil {
		r.sink.Emit(ctx, contract.Event{
			Kind:           contract.EventBudgetExhausted,
			ConversationID: conv.ID,
			Role:           role,
			At:             time.Now().UTC(),
		})
	}
	return Result{Reply: exhaustedReply, BudgetExhausted: true}, nil
}

func assistantToolCallMessage(call *contract.ToolCall) contract.Message {
	payload, err := json.Marshal(call)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"name":%q}`, call.Name))
	}
	return contract.Message{
		Kind:     contract.MessageAssistant,
		Content:  string(payload),
		ToolName: call.Name,
	}
}

func toolResultMessage(toolName string, result any, callErr error) contract.Message {
	var content string
	if callErr != nil {
		content = fmt.Sprintf(`{"error":%q}`, callErr.Error())
	} else {
		payload, err := json.Marshal(result)
		if err != nil {
			content = fmt.Sprintf(`{"error":"unserializable tool result: %v"}`, err)
		} else {
			content = string(payload)
		}
	}
	return contract.Message{
		Kind:     contract.MessageTool,
		Content:  content,
		ToolName: toolName,
	}
}
