package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/inventory"
	"github.com/dealeros/carbot/agent/profile"
	"github.com/dealeros/carbot/agent/stage"
	"github.com/dealeros/carbot/agent/state"
)

// Canonical tool names.
const (
	ToolUpdateProfile   = "update_customer_profile"
	ToolUpdateStage     = "update_sales_stage"
	ToolSearchInventory = "search_inventory"
	ToolVehicleDetails  = "get_vehicle_details"
	ToolFinalizeSale    = "finalize_sale"
)

const searchResultLimit = 5

/* ------------------------------ arg helpers ------------------------------ */

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// argInt reads a numeric argument. JSON numbers decode as float64.
func argInt(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func argStrings(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

/* ------------------------- update_customer_profile ------------------------ */

// NewProfileTool updates the conversation's customer profile. Updates merge
// key-by-key; the notes key appends rather than overwrites, so observations
// accumulate across the conversation. Writes are staged on the turn's working
// copy and only reach the store when the orchestrator commits the turn.
func NewProfileTool(profiles *profile.Store) (contract.ToolSpec, HandlerFunc) {
	spec := contract.ToolSpec{
		Name:        ToolUpdateProfile,
		Description: "Record or update customer preferences elicited during the conversation. Keys present in updates overwrite stored values; absent keys are preserved. Use the notes key for free-form observations.",
		Schema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"updates"},
			Properties: map[string]*jsonschema.Schema{
				"updates": {
					Type:        "object",
					Description: "Preference categories to set, e.g. budget_max, preferred_make, family_size, safety_priority, notes.",
				},
			},
		},
	}

	handler := func(ctx context.Context, call Call) (any, error) {
		updates, _ := call.Args["updates"].(map[string]any)
		if len(updates) == 0 {
			return nil, fmt.Errorf("%w: updates must not be empty", contract.ErrValidation)
		}

		if note, ok := updates[profile.KeyNotes].(string); ok && note != "" {
			prev, _ := call.Conversation.ProfileDelta[profile.KeyNotes].(string)
			if prev == "" {
				prev, _ = profiles.Get(call.Conversation.ID)[profile.KeyNotes].(string)
			}
			if prev != "" {
				updates[profile.KeyNotes] = prev + "; " + note
			}
		}

		call.Conversation.StageProfile(updates)

		// The model sees the effective profile: committed state overlaid with
		// everything staged this turn.
		preview := profiles.Get(call.Conversation.ID)
		for k, v := range call.Conversation.ProfileDelta {
			preview[k] = v
		}
		return map[string]any{
			"profile":      map[string]any(preview),
			"completeness": preview.Completeness(),
		}, nil
	}
	return spec, handler
}

/* --------------------------- update_sales_stage --------------------------- */

// NewStageTool advances the sales funnel. Transitions are validated against
// the turn's effective stage and staged on the working copy; the orchestrator
// applies them to the machine on commit. Moving to closing with a vin marks
// that vehicle as the pending purchase for finalize_sale.
func NewStageTool(stages *stage.Machine, inv *inventory.Index) (contract.ToolSpec, HandlerFunc) {
	spec := contract.ToolSpec{
		Name:        ToolUpdateStage,
		Description: "Transition the conversation to a new sales stage. Forward moves are always allowed; backward moves only from negotiation or objection_handling to discovery or presentation. When the customer commits to a purchase, move to closing and pass the vehicle vin.",
		Schema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"stage"},
			Properties: map[string]*jsonschema.Schema{
				"stage": {
					Type: "string",
					Enum: []any{
						"greeting", "discovery", "presentation", "objection_handling",
						"negotiation", "closing", "follow_up",
					},
				},
				"vin": {
					Type:        "string",
					Description: "Vehicle the customer committed to, required when moving to closing.",
				},
			},
		},
	}

	handler := func(ctx context.Context, call Call) (any, error) {
		target, err := stage.Parse(argString(call.Args, "stage"))
		if err != nil {
			return nil, err
		}

		vin := argString(call.Args, "vin")
		if target == stage.Closing && vin != "" {
			if _, err := inv.Get(vin); err != nil {
				return nil, err
			}
		}

		current := effectiveStage(stages, call.Conversation)
		if target != current {
			if !stage.Allowed(current, target) {
				return nil, fmt.Errorf("%w: %s -> %s", contract.ErrInvalidTransition, current, target)
			}
			call.Conversation.PushStage(string(target))
		}
		if target == stage.Closing && vin != "" {
			call.Conversation.PendingVIN = vin
		}

		return map[string]any{
			"stage":   string(target),
			"history": stageHistory(stages, call.Conversation),
		}, nil
	}
	return spec, handler
}

func effectiveStage(stages *stage.Machine, conv *state.Conversation) stage.Stage {
	return stage.Stage(conv.EffectiveStage(string(stages.Current(conv.ID))))
}

// stageHistory is the committed history plus the transitions staged this turn.
func stageHistory(stages *stage.Machine, conv *state.Conversation) []string {
	hist := stages.History(conv.ID)
	out := make([]string, 0, len(hist)+len(conv.StagePath))
	for _, st := range hist {
		out = append(out, string(st))
	}
	out = append(out, conv.StagePath...)
	return out
}

/* ---------------------------- search_inventory ---------------------------- */

// NewSearchTool queries the catalog. Read-only, so the dispatcher may retry it.
func NewSearchTool(inv *inventory.Index) (contract.ToolSpec, HandlerFunc) {
	spec := contract.ToolSpec{
		Name:        ToolSearchInventory,
		Description: "Search available vehicles. Any combination of filters may be given; results match every specified filter and are ordered by relevance, then ascending price.",
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"make":       {Type: "string"},
				"model":      {Type: "string"},
				"year_min":   {Type: "integer"},
				"year_max":   {Type: "integer"},
				"color":      {Type: "string"},
				"price_min":  {Type: "integer"},
				"price_max":  {Type: "integer"},
				"body_style": {Type: "string"},
				"features": {
					Type:  "array",
					Items: &jsonschema.Schema{Type: "string"},
				},
				"keywords": {
					Type:        "string",
					Description: "Free-text terms matched against the whole listing.",
				},
			},
		},
		ReadOnly: true,
	}

	handler := func(ctx context.Context, call Call) (any, error) {
		f := inventory.Filter{
			Make:      argString(call.Args, "make"),
			Model:     argString(call.Args, "model"),
			YearMin:   argInt(call.Args, "year_min"),
			YearMax:   argInt(call.Args, "year_max"),
			Color:     argString(call.Args, "color"),
			PriceMin:  argInt(call.Args, "price_min"),
			PriceMax:  argInt(call.Args, "price_max"),
			BodyStyle: argString(call.Args, "body_style"),
			Features:  argStrings(call.Args, "features"),
			Keywords:  argString(call.Args, "keywords"),
		}

		results := inv.Search(f)
		truncated := false
		if len(results) > searchResultLimit {
			results = results[:searchResultLimit]
			truncated = true
		}
		return map[string]any{
			"vehicles":  results,
			"truncated": truncated,
		}, nil
	}
	return spec, handler
}

/* --------------------------- get_vehicle_details -------------------------- */

func NewVehicleDetailsTool(inv *inventory.Index) (contract.ToolSpec, HandlerFunc) {
	spec := contract.ToolSpec{
		Name:        ToolVehicleDetails,
		Description: "Look up the full listing for one vehicle by vin, including current availability.",
		Schema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"vin"},
			Properties: map[string]*jsonschema.Schema{
				"vin": {Type: "string"},
			},
		},
		ReadOnly: true,
	}

	handler := func(ctx context.Context, call Call) (any, error) {
		return inv.Get(argString(call.Args, "vin"))
	}
	return spec, handler
}

/* ------------------------------ finalize_sale ----------------------------- */

// NewFinalizeSaleTool completes the purchase. The vin defaults to the pending
// vehicle set when the conversation entered closing. Exactly one concurrent
// buyer wins; the rest see the already-sold error as tool-result context.
func NewFinalizeSaleTool(inv *inventory.Index, stages *stage.Machine) (contract.ToolSpec, HandlerFunc) {
	spec := contract.ToolSpec{
		Name:        ToolFinalizeSale,
		Description: "Complete the sale of a vehicle. Call only after the customer explicitly confirmed the purchase and the conversation is in closing.",
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"vin": {
					Type:        "string",
					Description: "Defaults to the vehicle committed at closing.",
				},
			},
		},
	}

	handler := func(ctx context.Context, call Call) (any, error) {
		vin := argString(call.Args, "vin")
		if vin == "" {
			vin = call.Conversation.PendingVIN
		}
		if vin == "" {
			return nil, fmt.Errorf("%w: no vehicle selected for sale", contract.ErrValidation)
		}

		if current := effectiveStage(stages, call.Conversation); current != stage.Closing {
			if !stage.Allowed(current, stage.Closing) {
				return nil, fmt.Errorf("%w: %s -> %s", contract.ErrInvalidTransition, current, stage.Closing)
			}
			call.Conversation.PushStage(string(stage.Closing))
		}

		if err := inv.ReserveAndSell(vin); err != nil {
			return nil, err
		}

		call.Conversation.SoldVIN = vin
		call.Conversation.PendingVIN = ""

		v, err := inv.Get(vin)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"sold":    true,
			"vin":     vin,
			"vehicle": v.Label(),
			"price":   v.Price,
		}, nil
	}
	return spec, handler
}
