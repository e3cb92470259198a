package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/profile"
	"github.com/dealeros/carbot/agent/runner"
	"github.com/dealeros/carbot/agent/stage"
	"github.com/dealeros/carbot/agent/state"
)

// fatalReply is the fixed customer-facing reply when inference itself fails.
// The turn is not committed; the customer can simply resend.
const fatalReply = "I'm sorry, our systems are having a moment. Please send your message again in a little while."

const (
	archiveLoadTimeout  = 5 * time.Second
	archiveWriteTimeout = 10 * time.Second
)

// Orchestrator owns the conversation lifecycle: it serializes message
// processing per conversation, runs the sales agent on a working copy of the
// committed state, and commits only when the turn produced a reply.
type Orchestrator struct {
	store    *state.Store
	profiles *profile.Store
	stages   *stage.Machine
	sales    *runner.Runner
	prompt   string
	sink     contract.Sink
	archive  state.Archive
	clock    func() time.Time
}

type Option func(*Orchestrator)

func WithSink(sink contract.Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

func WithArchive(archive state.Archive) Option {
	return func(o *Orchestrator) { o.archive = archive }
}

func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func New(store *state.Store, profiles *profile.Store, stages *stage.Machine, sales *runner.Runner, salesPrompt string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		profiles: profiles,
		stages:   stages,
		sales:    sales,
		prompt:   salesPrompt,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// HandleMessage processes one customer message end to end and returns the
// assistant reply. A second message for the same conversation while one is in
// flight fails fast with ErrConversationBusy.
func (o *Orchestrator) HandleMessage(ctx context.Context, conversationID, text string) (string, error) {
	conversationID = strings.TrimSpace(conversationID)
	text = strings.TrimSpace(text)
	if conversationID == "" {
		return "", fmt.Errorf("%w: conversation id is required", contract.ErrValidation)
	}
	if text == "" {
		return "", fmt.Errorf("%w: message is empty", contract.ErrValidation)
	}

	release, err := o.store.Acquire(conversationID)
	if err != nil {
		return "", err
	}
	defer release()

	now := o.clock()
	working := o.materialize(ctx, conversationID, now)
	working.Append(contract.MessageCustomer, text, "")

	stageBefore := o.stages.Current(conversationID)

	res, err := o.sales.Run(ctx, contract.RoleSales, o.systemPrompt(conversationID), working.Transcript, working)
	if err != nil {
		// Inference is down. Nothing is committed; the working copy and its
		// staged profile and stage mutations are discarded, and the customer
		// retries the same message against unchanged state.
		log.Error().
			Str("conversation_id", conversationID).
			Err(err).
			Msg("orchestrator: inference failed, returning fallback reply")
		return fatalReply, nil
	}

	o.flushTurnState(conversationID, working)
	working.Append(contract.MessageAssistant, res.Reply, "")
	working.Touch(o.clock())
	o.store.Commit(working)

	o.emitStageTransition(ctx, conversationID, stageBefore)
	o.archiveAsync(working)

	if res.BudgetExhausted {
		log.Warn().Str("conversation_id", conversationID).Msg("orchestrator: turn ended on exhausted budget")
	}
	return res.Reply, nil
}

// materialize returns the turn's working copy: the resident conversation, or
// one restored from the archive on first contact, or a fresh one.
func (o *Orchestrator) materialize(ctx context.Context, conversationID string, now time.Time) *state.Conversation {
	if conv := o.store.Get(conversationID); conv != nil {
		return conv
	}
	if o.archive != nil {
		loadCtx, cancel := context.WithTimeout(ctx, archiveLoadTimeout)
		defer cancel()
		conv, err := o.archive.Load(loadCtx, conversationID)
		switch {
		case err == nil:
			o.store.Commit(conv)
			log.Info().
				Str("conversation_id", conversationID).
				Int("transcript_len", len(conv.Transcript)).
				Msg("orchestrator: conversation restored from archive")
			return conv
		case !errors.Is(err, state.ErrArchiveNotFound):
			log.Warn().
				Str("conversation_id", conversationID).
				Err(err).
				Msg("orchestrator: archive load failed, starting fresh")
		}
	}
	return o.store.GetOrCreate(conversationID, now)
}

// flushTurnState applies the profile merges and stage transitions the tools
// staged on the working copy. Runs only after the sales run succeeded, so a
// failed turn leaves both stores exactly as they were.
func (o *Orchestrator) flushTurnState(conversationID string, working *state.Conversation) {
	if len(working.ProfileDelta) > 0 {
		o.profiles.Merge(conversationID, profile.Profile(working.ProfileDelta))
		working.ProfileDelta = nil
	}
	for _, target := range working.StagePath {
		if _, err := o.stages.Transition(conversationID, stage.Stage(target)); err != nil {
			// Staged transitions were validated at dispatch time; a rejection
			// here means something mutated the machine outside the turn.
			log.Warn().
				Str("conversation_id", conversationID).
				Str("target", target).
				Err(err).
				Msg("orchestrator: staged transition rejected at commit")
		}
	}
	working.StagePath = nil
}

// systemPrompt appends the live conversation context to the static persona:
// the current stage and the full profile, so the model never works from a
// partial view.
func (o *Orchestrator) systemPrompt(conversationID string) string {
	var b strings.Builder
	b.WriteString(o.prompt)
	b.WriteString("\n\nCurrent sales stage: ")
	b.WriteString(string(o.stages.Current(conversationID)))

	prof := o.profiles.Get(conversationID)
	if len(prof) > 0 {
		if payload, err := json.Marshal(prof); err == nil {
			b.WriteString("\nCustomer profile: ")
			b.Write(payload)
		}
	}
	return b.String()
}

func (o *Orchestrator) emitStageTransition(ctx context.Context, conversationID string, before stage.Stage) {
	after := o.stages.Current(conversationID)
	if after == before || o.sink == nil {
		return
	}
	o.sink.Emit(ctx, contract.Event{
		Kind:           contract.EventStageTransition,
		ConversationID: conversationID,
		Role:           contract.RoleSales,
		FromStage:      string(before),
		ToStage:        string(after),
		At:             o.clock().UTC(),
	})
}

// archiveAsync persists the committed state out of band; archive failures
// never affect the turn.
func (o *Orchestrator) archiveAsync(conv *state.Conversation) {
	if o.archive == nil {
		return
	}
	snapshot := conv.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveWriteTimeout)
		defer cancel()
		if err := o.archive.Save(ctx, snapshot); err != nil {
			log.Warn().Str("conversation_id", snapshot.ID).Err(err).Msg("orchestrator: archive save failed")
		}
	}()
}

/* ------------------------------- snapshot --------------------------------- */

// Snapshot is the read-only view of one conversation for dashboards and
// handover: stage, profile, transcript, and tool activity.
type Snapshot struct {
	ConversationID string                 `json:"conversation_id"`
	Stage          string                 `json:"stage"`
	StageHistory   []string               `json:"stage_history"`
	Profile        map[string]any         `json:"profile,omitempty"`
	Completeness   float64                `json:"profile_completeness"`
	Transcript     []contract.Message     `json:"transcript,omitempty"`
	ToolCalls      []state.ToolCallRecord `json:"tool_calls,omitempty"`
	PendingVIN     string                 `json:"pending_vin,omitempty"`
	SoldVIN        string                 `json:"sold_vin,omitempty"`
}

func (o *Orchestrator) Snapshot(conversationID string) (Snapshot, error) {
	conv := o.store.Get(conversationID)
	if conv == nil {
		return Snapshot{}, fmt.Errorf("%w: conversation %s", contract.ErrNotFound, conversationID)
	}

	hist := o.stages.History(conversationID)
	history := make([]string, len(hist))
	for i, st := range hist {
		history[i] = string(st)
	}

	prof := o.profiles.Get(conversationID)
	return Snapshot{
		ConversationID: conversationID,
		Stage:          string(o.stages.Current(conversationID)),
		StageHistory:   history,
		Profile:        prof,
		Completeness:   prof.Completeness(),
		Transcript:     conv.Transcript,
		ToolCalls:      conv.ToolCalls,
		PendingVIN:     conv.PendingVIN,
		SoldVIN:        conv.SoldVIN,
	}, nil
}

// End tears down a conversation's state, including the archived copy, so an
// ended conversation is not resurrected on the next contact.
func (o *Orchestrator) End(conversationID string) {
	o.store.Delete(conversationID)
	o.profiles.Delete(conversationID)
	o.stages.Delete(conversationID)

	if o.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveWriteTimeout)
		defer cancel()
		if err := o.archive.Delete(ctx, conversationID); err != nil && !errors.Is(err, state.ErrArchiveNotFound) {
			log.Warn().
				Str("conversation_id", conversationID).
				Err(err).
				Msg("orchestrator: archive delete failed")
		}
	}
}
