package research

import (
	"context"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/tools"
)

const ToolSearchWeb = "search_web"

// NewSearchWebTool exposes the research service to the research role.
func NewSearchWebTool(svc *Service) (contract.ToolSpec, tools.HandlerFunc) {
	spec := contract.ToolSpec{
		Name:        ToolSearchWeb,
		Description: "Research vehicle facts: safety results, fuel economy, reliability, equipment. Falls back to catalog knowledge when external sources have nothing.",
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
		ReadOnly: true,
	}

	handler := func(ctx context.Context, call tools.Call) (any, error) {
		query, _ := call.Args["query"].(string)
		vin, _ := call.Args["vin"].(string)
		return svc.Lookup(ctx, strings.TrimSpace(query), strings.TrimSpace(vin))
	}
	return spec, handler
}
