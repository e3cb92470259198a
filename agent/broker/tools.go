package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/tools"
)

const (
	ToolConsultManager  = "consult_manager"
	ToolResearchVehicle = "research_vehicle"
)

// RegisterDelegationTools wires the two delegation tools into the registry
// and grants them to the sales role only.
func (b *Broker) RegisterDelegationTools(registry *tools.Registry) error {
	consultSpec := contract.ToolSpec{
		Name:        ToolConsultManager,
		Description: "Escalate to the sales manager for pricing approval or strategic guidance. State the question and, for discounts, the vehicle vin and requested percentage.",
		Schema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"question"},
			Properties: map[string]*jsonschema.Schema{
				"question": {Type: "string"},
				"vin":      {Type: "string"},
				"requested_percent": {
					Type:        "number",
					Description: "Discount the customer is asking for, as a percentage.",
				},
			},
		},
	}
	if err := registry.Register(consultSpec, b.consultManagerHandler()); err != nil {
		return err
	}

	researchSpec := contract.ToolSpec{
		Name:        ToolResearchVehicle,
		Description: "Delegate a factual research question about a vehicle, such as safety results, economy, or reliability, to the research specialist.",
		Schema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"query"},
			Properties: map[string]*jsonschema.Schema{
				"query": {Type: "string"},
				"vin": {
					Type:        "string",
					Description: "Anchor the research to one catalog vehicle.",
				},
			},
		},
	}
	if err := registry.Register(researchSpec, b.researchVehicleHandler()); err != nil {
		return err
	}

	registry.Grant(contract.RoleSales, ToolConsultManager, ToolResearchVehicle)
	return nil
}

func (b *Broker) consultManagerHandler() tools.HandlerFunc {
	return func(ctx context.Context, call tools.Call) (any, error) {
		question, _ := call.Args["question"].(string)
		query := strings.TrimSpace(question)
		if vin, _ := call.Args["vin"].(string); strings.TrimSpace(vin) != "" {
			query += fmt.Sprintf("\nVehicle: %s", strings.TrimSpace(vin))
		}
		if pct, ok := call.Args["requested_percent"].(float64); ok {
			query += fmt.Sprintf("\nRequested discount: %.1f%%", pct)
		}

		return b.Delegate(ctx, contract.DelegationRequest{
			Role:         contract.RoleManager,
			Query:        query,
			ProfileHints: b.hintsFor(call.Conversation),
		}, call.Conversation)
	}
}

func (b *Broker) researchVehicleHandler() tools.HandlerFunc {
	return func(ctx context.Context, call tools.Call) (any, error) {
		query, _ := call.Args["query"].(string)
		query = strings.TrimSpace(query)
		if vin, _ := call.Args["vin"].(string); strings.TrimSpace(vin) != "" {
			query += fmt.Sprintf("\nVehicle: %s", strings.TrimSpace(vin))
		}

		return b.Delegate(ctx, contract.DelegationRequest{
			Role:         contract.RoleResearch,
			Query:        query,
			ProfileHints: b.hintsFor(call.Conversation),
		}, call.Conversation)
	}
}
