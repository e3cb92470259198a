package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/inventory"
	"github.com/dealeros/carbot/agent/profile"
	"github.com/dealeros/carbot/agent/stage"
	"github.com/dealeros/carbot/agent/state"
)

type fixture struct {
	registry *Registry
	profiles *profile.Store
	stages   *stage.Machine
	index    *inventory.Index
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		registry: NewRegistry(nil),
		profiles: profile.NewStore(),
		stages:   stage.NewMachine(),
		index: inventory.NewIndex([]inventory.Vehicle{
			{
				VIN: "VIN-X3", Make: "BMW", Model: "X3", Year: 2023, Color: "Black",
				Price: 52900, BodyStyle: "SUV",
				Features:  []string{"ISOFIX Anchors", "Lane Assist"},
				Available: true,
			},
			{
				VIN: "VIN-XC60", Make: "Volvo", Model: "XC60", Year: 2022, Color: "Silver",
				Price: 46500, BodyStyle: "SUV",
				Features:  []string{"City Safety"},
				Available: true,
			},
		}),
	}

	register := func(spec contract.ToolSpec, handler HandlerFunc) {
		t.Helper()
		if err := f.registry.Register(spec, handler); err != nil {
			t.Fatalf("Register(%s) error = %v", spec.Name, err)
		}
		f.registry.Grant(contract.RoleSales, spec.Name)
	}
	register(NewProfileTool(f.profiles))
	register(NewStageTool(f.stages, f.index))
	register(NewSearchTool(f.index))
	register(NewVehicleDetailsTool(f.index))
	register(NewFinalizeSaleTool(f.index, f.stages))

	return f
}

func (f *fixture) dispatch(t *testing.T, conv *state.Conversation, name string, args map[string]any) (any, error) {
	t.Helper()
	return f.registry.Dispatch(context.Background(), Call{
		Name:         name,
		Args:         args,
		Role:         contract.RoleSales,
		Conversation: conv,
	})
}

func TestProfileToolStagesMergesAndAppendsNotes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conv := state.NewConversation("c1", time.Now())
	f.profiles.Merge("c1", profile.Profile{profile.KeyNotes: "has a baby"})

	if _, err := f.dispatch(t, conv, ToolUpdateProfile, map[string]any{
		"updates": map[string]any{"budget_max": 50000, "notes": "wants test drive"},
	}); err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	if _, err := f.dispatch(t, conv, ToolUpdateProfile, map[string]any{
		"updates": map[string]any{"preferred_color": "black", "notes": "prefers leather"},
	}); err != nil {
		t.Fatalf("dispatch error = %v", err)
	}

	delta := conv.ProfileDelta
	if delta[profile.KeyBudgetMax] != 50000 {
		t.Fatalf("budget_max lost: %#v", delta)
	}
	if delta[profile.KeyPreferredColor] != "black" {
		t.Fatalf("preferred_color missing: %#v", delta)
	}
	if delta[profile.KeyNotes] != "has a baby; wants test drive; prefers leather" {
		t.Fatalf("notes not appended across store and turn: %#v", delta[profile.KeyNotes])
	}

	// The store holds only the committed state until the orchestrator
	// flushes the turn.
	stored := f.profiles.Get("c1")
	if _, staged := stored[profile.KeyBudgetMax]; staged {
		t.Fatalf("profile store mutated before commit: %#v", stored)
	}
}

func TestProfileToolRejectsEmptyUpdates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conv := state.NewConversation("c1", time.Now())
	_, err := f.dispatch(t, conv, ToolUpdateProfile, map[string]any{"updates": map[string]any{}})
	if !errors.Is(err, contract.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestStageToolStagesTransitionsAndSetsPendingVIN(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conv := state.NewConversation("c1", time.Now())

	if _, err := f.dispatch(t, conv, ToolUpdateStage, map[string]any{"stage": "discovery"}); err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	if _, err := f.dispatch(t, conv, ToolUpdateStage, map[string]any{
		"stage": "closing", "vin": "VIN-X3",
	}); err != nil {
		t.Fatalf("dispatch error = %v", err)
	}

	if got := conv.StagePath; len(got) != 2 || got[0] != "discovery" || got[1] != "closing" {
		t.Fatalf("unexpected staged path: %#v", got)
	}
	if conv.PendingVIN != "VIN-X3" {
		t.Fatalf("pending vin not set: %q", conv.PendingVIN)
	}
	// The machine itself moves only when the orchestrator commits the turn.
	if f.stages.Current("c1") != stage.Greeting {
		t.Fatalf("machine mutated before commit: %s", f.stages.Current("c1"))
	}
}

func TestStageToolRejectsInvalidTransition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conv := state.NewConversation("c1", time.Now())

	if _, err := f.dispatch(t, conv, ToolUpdateStage, map[string]any{"stage": "negotiation"}); err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	_, err := f.dispatch(t, conv, ToolUpdateStage, map[string]any{"stage": "greeting"})
	if !errors.Is(err, contract.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if got := conv.StagePath; len(got) != 1 || got[0] != "negotiation" {
		t.Fatalf("rejected transition changed the staged path: %#v", got)
	}
}

func TestStageToolRejectsUnknownStageBySchema(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conv := state.NewConversation("c1", time.Now())
	_, err := f.dispatch(t, conv, ToolUpdateStage, map[string]any{"stage": "bargaining"})
	if !errors.Is(err, contract.ErrValidation) {
		t.Fatalf("expected ErrValidation from schema enum, got %v", err)
	}
}

func TestStageToolRejectsClosingWithUnknownVIN(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conv := state.NewConversation("c1", time.Now())
	_, err := f.dispatch(t, conv, ToolUpdateStage, map[string]any{
		"stage": "closing", "vin": "NOPE",
	})
	if !errors.Is(err, contract.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchToolFiltersAndLimits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conv := state.NewConversation("c1", time.Now())

	got, err := f.dispatch(t, conv, ToolSearchInventory, map[string]any{
		"body_style": "SUV",
		"price_max":  float64(50000),
	})
	if err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	result, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type: %T", got)
	}
	vehicles, ok := result["vehicles"].([]inventory.Vehicle)
	if !ok {
		t.Fatalf("unexpected vehicles type: %T", result["vehicles"])
	}
	if len(vehicles) != 1 || vehicles[0].VIN != "VIN-XC60" {
		t.Fatalf("unexpected vehicles: %+v", vehicles)
	}
}

func TestVehicleDetailsTool(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conv := state.NewConversation("c1", time.Now())

	got, err := f.dispatch(t, conv, ToolVehicleDetails, map[string]any{"vin": "VIN-X3"})
	if err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	v, ok := got.(inventory.Vehicle)
	if !ok || v.Model != "X3" {
		t.Fatalf("unexpected result: %#v", got)
	}

	_, err = f.dispatch(t, conv, ToolVehicleDetails, map[string]any{"vin": "NOPE"})
	if !errors.Is(err, contract.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFinalizeSaleUsesPendingVIN(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conv := state.NewConversation("c1", time.Now())

	if _, err := f.dispatch(t, conv, ToolUpdateStage, map[string]any{
		"stage": "closing", "vin": "VIN-X3",
	}); err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	if _, err := f.dispatch(t, conv, ToolFinalizeSale, map[string]any{}); err != nil {
		t.Fatalf("dispatch error = %v", err)
	}

	if conv.SoldVIN != "VIN-X3" || conv.PendingVIN != "" {
		t.Fatalf("sale bookkeeping wrong: %+v", conv)
	}
	v, err := f.index.Get("VIN-X3")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v.Available {
		t.Fatal("vehicle still available after finalize_sale")
	}
}

func TestFinalizeSaleCrossConversationRace(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := state.NewConversation("a", time.Now())
	b := state.NewConversation("b", time.Now())

	if _, err := f.dispatch(t, a, ToolFinalizeSale, map[string]any{"vin": "VIN-XC60"}); err != nil {
		t.Fatalf("first sale error = %v", err)
	}
	_, err := f.dispatch(t, b, ToolFinalizeSale, map[string]any{"vin": "VIN-XC60"})
	if !errors.Is(err, contract.ErrAlreadySold) {
		t.Fatalf("expected ErrAlreadySold, got %v", err)
	}
}

func TestFinalizeSaleWithoutVehicle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	conv := state.NewConversation("c1", time.Now())
	_, err := f.dispatch(t, conv, ToolFinalizeSale, map[string]any{})
	if !errors.Is(err, contract.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
