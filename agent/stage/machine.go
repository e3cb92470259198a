package stage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dealeros/carbot/agent/contract"
)

// Stage is one phase of the sales funnel.
type Stage string

const (
	Greeting          Stage = "greeting"
	Discovery         Stage = "discovery"
	Presentation      Stage = "presentation"
	ObjectionHandling Stage = "objection_handling"
	Negotiation       Stage = "negotiation"
	Closing           Stage = "closing"
	FollowUp          Stage = "follow_up"
)

var order = map[Stage]int{
	Greeting:          0,
	Discovery:         1,
	Presentation:      2,
	ObjectionHandling: 3,
	Negotiation:       4,
	Closing:           5,
	FollowUp:          6,
}

// Parse validates a raw stage name against the fixed stage set.
func Parse(raw string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := order[st]; !ok {
		return "", fmt.Errorf("%w: unknown stage %q", contract.ErrInvalidTransition, raw)
	}
	return st, nil
}

// Allowed implements the transition policy: forward moves (to any later
// stage) are always allowed; backward moves are allowed only from
// negotiation or objection_handling back to discovery or presentation
// (re-qualification). Re-asserting the current stage is a no-op.
func Allowed(current, target Stage) bool {
	if target == current {
		return true
	}
	if order[target] > order[current] {
		return true
	}
	backFrom := current == Negotiation || current == ObjectionHandling
	backTo := target == Discovery || target == Presentation
	return backFrom && backTo
}

// Machine tracks one current stage plus full history per conversation. It is
// the exclusive owner of stage state; mutation happens only via Transition.
type Machine struct {
	mu      sync.Mutex
	current map[string]Stage
	history map[string][]Stage
}

func NewMachine() *Machine {
	return &Machine{
		current: make(map[string]Stage),
		history: make(map[string][]Stage),
	}
}

// Current returns the conversation's stage, defaulting to greeting.
func (m *Machine) Current(conversationID string) Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.current[conversationID]; ok {
		return st
	}
	return Greeting
}

// History returns the ordered list of stages the conversation has held,
// including the initial greeting.
func (m *Machine) History(conversationID string) []Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist, ok := m.history[conversationID]
	if !ok {
		return []Stage{Greeting}
	}
	out := make([]Stage, len(hist))
	copy(out, hist)
	return out
}

// Transition validates and applies a move to target. On rejection the stage
// is unchanged and ErrInvalidTransition is returned.
func (m *Machine) Transition(conversationID string, target Stage) (Stage, error) {
	if _, ok := order[target]; !ok {
		return "", fmt.Errorf("%w: unknown stage %q", contract.ErrInvalidTransition, target)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.current[conversationID]
	if !ok {
		current = Greeting
		m.current[conversationID] = current
		m.history[conversationID] = []Stage{Greeting}
	}

	if !Allowed(current, target) {
		return current, fmt.Errorf("%w: %s -> %s", contract.ErrInvalidTransition, current, target)
	}
	if target == current {
		return current, nil
	}

	m.current[conversationID] = target
	m.history[conversationID] = append(m.history[conversationID], target)
	log.Debug().
		Str("conversation_id", conversationID).
		Str("from", string(current)).
		Str("to", string(target)).
		Msg("stage: transition applied")
	return target, nil
}

// Delete tears down stage state at session end.
func (m *Machine) Delete(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.current, conversationID)
	delete(m.history, conversationID)
}
