package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/profile"
	"github.com/dealeros/carbot/agent/runner"
	"github.com/dealeros/carbot/agent/state"
)

// Broker routes delegation requests from the sales agent to its two
// subordinates. The topology is closed: only research and manager can be
// bound, and a subordinate never delegates further because the delegation
// tools are simply not granted to its role.
type Broker struct {
	runners  map[contract.Role]*runner.Runner
	prompts  map[contract.Role]string
	profiles *profile.Store
}

func New(profiles *profile.Store) *Broker {
	return &Broker{
		runners:  make(map[contract.Role]*runner.Runner),
		prompts:  make(map[contract.Role]string),
		profiles: profiles,
	}
}

// Bind attaches a subordinate runner and its system prompt.
func (b *Broker) Bind(role contract.Role, r *runner.Runner, systemPrompt string) error {
	if !role.Subordinate() {
		return fmt.Errorf("%w: role %s cannot be delegated to", contract.ErrDelegation, role)
	}
	if r == nil {
		return fmt.Errorf("%w: nil runner for role %s", contract.ErrDelegation, role)
	}
	b.runners[role] = r
	b.prompts[role] = systemPrompt
	return nil
}

// Delegate runs the subordinate to completion on a minimal context: the
// request payload plus profile hints, never the caller's transcript. The
// subordinate's terminal reply comes back as an opaque summary.
func (b *Broker) Delegate(ctx context.Context, req contract.DelegationRequest, conv *state.Conversation) (contract.DelegationResult, error) {
	r, ok := b.runners[req.Role]
	if !ok {
		return contract.DelegationResult{}, fmt.Errorf("%w: no runner bound for role %s", contract.ErrDelegation, req.Role)
	}

	messages := []contract.Message{{
		Kind:    contract.MessageCustomer,
		Content: delegationPayload(req),
	}}

	res, err := r.Run(ctx, req.Role, b.prompts[req.Role], messages, conv)
	if err != nil {
		return contract.DelegationResult{}, fmt.Errorf("%w: role=%s: %v", contract.ErrDelegation, req.Role, err)
	}

	if res.BudgetExhausted {
		log.Warn().
			Str("conversation_id", conv.ID).
			Str("role", string(req.Role)).
			Msg("broker: subordinate exhausted its budget")
	}

	return contract.DelegationResult{
		Role:            req.Role,
		Summary:         res.Reply,
		BudgetExhausted: res.BudgetExhausted,
	}, nil
}

// hintKeys is the profile subset worth forwarding to a subordinate.
var hintKeys = []string{
	profile.KeyBudgetMin, profile.KeyBudgetMax, profile.KeyFamilySize,
	profile.KeySafetyPriority, profile.KeyFuelType, profile.KeyPrimaryUse,
	profile.KeyNeeds,
}

// Hints extracts the committed profile subset worth forwarding to a
// subordinate.
func (b *Broker) Hints(conversationID string) map[string]any {
	if b.profiles == nil {
		return nil
	}
	full := b.profiles.Get(conversationID)
	hints := make(map[string]any)
	for _, k := range hintKeys {
		if v, ok := full[k]; ok {
			hints[k] = v
		}
	}
	if len(hints) == 0 {
		return nil
	}
	return hints
}

// hintsFor overlays the committed hints with profile keys staged on the
// working copy, so a subordinate called mid-turn sees preferences the sales
// agent just elicited.
func (b *Broker) hintsFor(conv *state.Conversation) map[string]any {
	hints := b.Hints(conv.ID)
	for _, k := range hintKeys {
		if v, ok := conv.ProfileDelta[k]; ok {
			if hints == nil {
				hints = make(map[string]any)
			}
			hints[k] = v
		}
	}
	return hints
}

func delegationPayload(req contract.DelegationRequest) string {
	if len(req.ProfileHints) == 0 {
		return req.Query
	}
	hints, err := json.Marshal(req.ProfileHints)
	if err != nil {
		return req.Query
	}
	return fmt.Sprintf("%s\n\nCustomer context: %s", req.Query, string(hints))
}
