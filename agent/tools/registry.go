package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/rs/zerolog/log"

	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/state"
)

// Call is one dispatch request: the model's tool call plus the identity of
// the calling role and the turn's working conversation copy.
type Call struct {
	Name         string
	Args         map[string]any
	Role         contract.Role
	Conversation *state.Conversation
}

// HandlerFunc executes a validated tool call and returns a JSON-serializable
// result. Errors are fed back to the model as tool-result context, except
// validation and capability rejections which never reach the handler.
type HandlerFunc func(ctx context.Context, call Call) (any, error)

type entry struct {
	spec     contract.ToolSpec
	resolved *jsonschema.Resolved
	handler  HandlerFunc
}

// Registry is the single dispatch gateway for all roles. Every registered
// tool carries a schema; arguments are validated before the handler runs, and
// a tool is callable only by roles it was granted to.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	grants  map[contract.Role]map[string]bool
	sink    contract.Sink
	clock   func() time.Time
}

type RegistryOption func(*Registry)

func WithClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func NewRegistry(sink contract.Sink, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		grants:  make(map[contract.Role]map[string]bool),
		sink:    sink,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register adds a tool. The schema is resolved once at registration; a tool
// without a valid schema is a wiring bug, not a runtime condition.
func (r *Registry) Register(spec contract.ToolSpec, handler HandlerFunc) error {
	if spec.Name == "" {
		return errors.New("tool name is required")
	}
	if spec.Schema == nil {
		return fmt.Errorf("tool %s: schema is required", spec.Name)
	}
	if handler == nil {
		return fmt.Errorf("tool %s: handler is required", spec.Name)
	}

	resolved, err := spec.Schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("tool %s: resolve schema: %w", spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[spec.Name]; dup {
		return fmt.Errorf("tool %s already registered", spec.Name)
	}
	r.entries[spec.Name] = &entry{spec: spec, resolved: resolved, handler: handler}
	return nil
}

// Grant makes the named tools callable by role.
func (r *Registry) Grant(role contract.Role, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.grants[role]
	if !ok {
		set = make(map[string]bool)
		r.grants[role] = set
	}
	for _, name := range names {
		set[name] = true
	}
}

// Specs returns the tool schemas visible to role, for the inference request.
func (r *Registry) Specs(role contract.Role) []contract.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var specs []contract.ToolSpec
	for name := range r.grants[role] {
		if e, ok := r.entries[name]; ok {
			specs = append(specs, e.spec)
		}
	}
	return specs
}

// Dispatch validates and executes one tool call on behalf of call.Role.
// An unknown or ungranted tool yields ErrCapability; arguments violating the
// schema yield ErrValidation without invoking the handler. Read-only tools
// are retried once on failure.
func (r *Registry) Dispatch(ctx context.Context, call Call) (any, error) {
	r.mu.RLock()
	e, known := r.entries[call.Name]
	granted := known && r.grants[call.Role][call.Name]
	r.mu.RUnlock()

	if !known || !granted {
		err := fmt.Errorf("%w: role=%s tool=%s", contract.ErrCapability, call.Role, call.Name)
		r.record(ctx, call, state.ToolStatusRejected, err)
		return nil, err
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	if err := e.resolved.Validate(args); err != nil {
		err = fmt.Errorf("%w: tool=%s: %v", contract.ErrValidation, call.Name, err)
		r.record(ctx, call, state.ToolStatusRejected, err)
		return nil, err
	}

	result, err := e.handler(ctx, call)
	if err != nil && e.spec.ReadOnly && ctx.Err() == nil {
		log.Warn().Str("tool", call.Name).Err(err).Msg("tools: read-only tool failed, retrying once")
		result, err = e.handler(ctx, call)
	}

	if err != nil {
		r.record(ctx, call, state.ToolStatusError, err)
		return nil, err
	}
	r.record(ctx, call, state.ToolStatusOK, nil)
	return result, nil
}

func (r *Registry) record(ctx context.Context, call Call, status string, callErr error) {
	errMsg := ""
	if callErr != nil {
		errMsg = callErr.Error()
	}
	now := r.clock()

	conversationID := ""
	if call.Conversation != nil {
		conversationID = call.Conversation.ID
		call.Conversation.RecordToolCall(
			state.NewToolCallRecord(call.Role, call.Name, call.Args, status, errMsg, now))
	}

	if r.sink != nil {
		r.sink.Emit(ctx, contract.Event{
			Kind:           contract.EventToolCall,
			ConversationID: conversationID,
			Role:           call.Role,
			Tool:           call.Name,
			Status:         status,
			At:             now.UTC(),
		})
	}
}
