package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/dealeros/carbot/agent/contract"
)

// ToolCallRecord is one dispatched tool invocation, kept for analytics and
// the conversation snapshot. Status is one of ok / error / rejected.
const (
	ToolStatusOK       = "ok"
	ToolStatusError    = "error"
	ToolStatusRejected = "rejected"
)

type ToolCallRecord struct {
	ID     string         `json:"id"`
	Role   contract.Role  `json:"role"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	At     time.Time      `json:"at"`
}

func NewToolCallRecord(role contract.Role, tool string, args map[string]any, status, errMsg string, now time.Time) ToolCallRecord {
	return ToolCallRecord{
		ID:     uuid.NewString(),
		Role:   role,
		Tool:   tool,
		Args:   args,
		Status: status,
		Error:  errMsg,
		At:     now.UTC(),
	}
}

// Conversation is the per-customer session: ordered transcript, dispatched
// tool calls, and the closing bookkeeping. Only the orchestrator's working
// copy is mutated during a turn; the store holds the last committed state.
type Conversation struct {
	ID         string             `json:"id"`
	Transcript []contract.Message `json:"transcript,omitempty"`
	ToolCalls  []ToolCallRecord   `json:"tool_calls,omitempty"`

	// PendingVIN is the vehicle the customer committed to buy, set by the
	// stage handler when entering closing and consumed by finalize_sale.
	PendingVIN string `json:"pending_vin,omitempty"`
	// SoldVIN is set once finalize_sale succeeds.
	SoldVIN string `json:"sold_vin,omitempty"`

	// ProfileDelta holds the profile merges staged by tools during the
	// current turn. The orchestrator flushes it to the profile store on
	// commit; a failed turn discards it with the rest of the working copy.
	ProfileDelta map[string]any `json:"-"`
	// StagePath holds the turn's validated stage transitions, in order,
	// flushed to the stage machine on commit.
	StagePath []string `json:"-"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewConversation(id string, now time.Time) *Conversation {
	return &Conversation{
		ID:        id,
		StartedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (c *Conversation) Touch(now time.Time) {
	c.UpdatedAt = now.UTC()
}

func (c *Conversation) Append(kind contract.MessageKind, content, toolName string) {
	c.Transcript = append(c.Transcript, contract.Message{
		Kind:     kind,
		Content:  content,
		ToolName: toolName,
	})
}

func (c *Conversation) RecordToolCall(rec ToolCallRecord) {
	c.ToolCalls = append(c.ToolCalls, rec)
}

// StageProfile merges partial into the turn's staged profile delta. Keys
// present overwrite earlier staged values, matching the store's merge
// semantics.
func (c *Conversation) StageProfile(partial map[string]any) {
	if len(partial) == 0 {
		return
	}
	if c.ProfileDelta == nil {
		c.ProfileDelta = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		c.ProfileDelta[k] = v
	}
}

// PushStage records an already-validated stage transition for this turn.
func (c *Conversation) PushStage(target string) {
	c.StagePath = append(c.StagePath, target)
}

// EffectiveStage is the stage the turn currently sees: the last staged
// transition, or the committed stage when none was staged yet.
func (c *Conversation) EffectiveStage(committed string) string {
	if n := len(c.StagePath); n > 0 {
		return c.StagePath[n-1]
	}
	return committed
}

// Clone deep-copies the conversation. The orchestrator works on a clone and
// commits it back only when the turn produces a reply.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Transcript = make([]contract.Message, len(c.Transcript))
	copy(out.Transcript, c.Transcript)
	out.ToolCalls = make([]ToolCallRecord, len(c.ToolCalls))
	for i, rec := range c.ToolCalls {
		cp := rec
		if rec.Args != nil {
			cp.Args = make(map[string]any, len(rec.Args))
			for k, v := range rec.Args {
				cp.Args[k] = v
			}
		}
		out.ToolCalls[i] = cp
	}
	if c.ProfileDelta != nil {
		out.ProfileDelta = make(map[string]any, len(c.ProfileDelta))
		for k, v := range c.ProfileDelta {
			out.ProfileDelta[k] = v
		}
	}
	out.StagePath = make([]string, len(c.StagePath))
	copy(out.StagePath, c.StagePath)
	return &out
}
