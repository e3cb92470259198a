package contract

import (
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Role identifies one of the three fixed agents. The delegation topology is
// closed: sales is the only primary role, research and manager are subordinate.
type Role string

const (
	RoleSales    Role = "sales"
	RoleResearch Role = "research"
	RoleManager  Role = "manager"
)

func (r Role) Subordinate() bool {
	return r == RoleResearch || r == RoleManager
}

type MessageKind string

const (
	MessageSystem    MessageKind = "system"
	MessageCustomer  MessageKind = "customer"
	MessageAssistant MessageKind = "assistant"
	MessageTool      MessageKind = "tool"
)

// Message is one entry of the ordered context handed to the inference
// collaborator. Tool results carry the tool name they answer.
type Message struct {
	Kind     MessageKind `json:"kind"`
	Content  string      `json:"content"`
	ToolName string      `json:"tool_name,omitempty"`
}

// ToolCall is a structured request emitted by a model to invoke a named tool.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolSpec describes a registered tool to both the dispatcher (validation)
// and the inference collaborator (allowed tool schema list).
type ToolSpec struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	// ReadOnly tools may be retried once at the dispatch layer on transient
	// failure; mutating tools run at most once per dispatch.
	ReadOnly bool
}

// Completion is the inference collaborator's output: exactly one of Text
// (terminal customer-facing reply) or ToolCall is set.
type Completion struct {
	Text     string
	ToolCall *ToolCall
}

type InferenceRequest struct {
	Role     Role
	System   string
	Messages []Message
	Tools    []ToolSpec
}

// DelegationRequest is the minimal context a subordinate receives: the request
// payload plus relevant profile hints, never the full transcript.
type DelegationRequest struct {
	Role         Role           `json:"role"`
	Query        string         `json:"query"`
	ProfileHints map[string]any `json:"profile_hints,omitempty"`
}

// DelegationResult is the subordinate's terminal reply, returned opaquely into
// the caller's tool-result slot.
type DelegationResult struct {
	Role            Role   `json:"role"`
	Summary         string `json:"summary"`
	BudgetExhausted bool   `json:"budget_exhausted,omitempty"`
}

// Finding is one ranked research result from the research collaborator.
type Finding struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url,omitempty"`
	Rank    int    `json:"rank"`
}

// Event kinds emitted to the analytics sink.
const (
	EventToolCall        = "tool_call"
	EventStageTransition = "stage_transition"
	EventBudgetExhausted = "budget_exhausted"
)

// Event is one entry of the append-only analytics stream. The core never
// reads events back.
type Event struct {
	Kind           string    `json:"kind"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role,omitempty"`
	Tool           string    `json:"tool,omitempty"`
	Status         string    `json:"status,omitempty"`
	FromStage      string    `json:"from_stage,omitempty"`
	ToStage        string    `json:"to_stage,omitempty"`
	At             time.Time `json:"at"`
}
