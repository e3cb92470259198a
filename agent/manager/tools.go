package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/tools"
)

const (
	ToolPricingPolicy       = "pricing_policy"
	ToolInventoryDirectives = "inventory_directives"
)

// NewPricingTool evaluates discount requests against dealership policy.
// Granted to the manager role only.
func NewPricingTool(policy *Policy) (contract.ToolSpec, tools.HandlerFunc) {
	spec := contract.ToolSpec{
		Name:        ToolPricingPolicy,
		Description: "Evaluate a requested discount for a vehicle against dealership pricing policy. Returns the approved discount, the final price, and the reasoning.",
		Schema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"vin", "requested_percent"},
			Properties: map[string]*jsonschema.Schema{
				"vin": {Type: "string"},
				"requested_percent": {
					Type:        "number",
					Description: "Discount the customer is asking for, as a percentage of list price.",
				},
			},
		},
		ReadOnly: true,
	}

	handler := func(ctx context.Context, call tools.Call) (any, error) {
		vin := strings.TrimSpace(fmt.Sprint(call.Args["vin"]))
		requested, _ := call.Args["requested_percent"].(float64)
		return policy.Discount(vin, requested)
	}
	return spec, handler
}

// NewDirectivesTool summarizes the lot for the manager's strategic guidance.
func NewDirectivesTool(policy *Policy) (contract.ToolSpec, tools.HandlerFunc) {
	spec := contract.ToolSpec{
		Name:        ToolInventoryDirectives,
		Description: "Summarize current inventory levels and which makes to prioritize.",
		Schema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
		ReadOnly: true,
	}

	handler := func(ctx context.Context, call tools.Call) (any, error) {
		return policy.InventoryDirectives(), nil
	}
	return spec, handler
}
