package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/inventory"
)

// Service answers vehicle research questions. It prefers the external web
// collaborator; when that yields nothing usable it falls back to a summary
// assembled from the local catalog and topical notes, so the research agent
// always has something grounded to report.
type Service struct {
	web contract.Research
	inv *inventory.Index
}

func NewService(web contract.Research, inv *inventory.Index) *Service {
	return &Service{web: web, inv: inv}
}

// Report is the research outcome handed back to the calling agent.
type Report struct {
	Query    string             `json:"query"`
	Source   string             `json:"source"` // web | local
	Findings []contract.Finding `json:"findings,omitempty"`
	Summary  string             `json:"summary"`
}

// Lookup runs the query against the web collaborator, falling back to local
// knowledge on ErrNoResults or transport failure.
func (s *Service) Lookup(ctx context.Context, query string, vin string) (Report, error) {
	query = strings.TrimSpace(query)
	if query == "" && vin == "" {
		return Report{}, fmt.Errorf("%w: query or vin is required", contract.ErrValidation)
	}

	if s.web != nil {
		findings, err := s.web.Search(ctx, query, webFilters(vin))
		switch {
		case err == nil && len(findings) > 0:
			return Report{
				Query:    query,
				Source:   "web",
				Findings: findings,
				Summary:  summarizeFindings(findings),
			}, nil
		case err != nil && !errors.Is(err, contract.ErrNoResults):
			log.Warn().Err(err).Str("query", query).Msg("research: web search failed, using local knowledge")
		}
	}

	return s.localReport(query, vin)
}

func webFilters(vin string) map[string]string {
	if vin == "" {
		return nil
	}
	return map[string]string{"vin": vin}
}

func summarizeFindings(findings []contract.Finding) string {
	var b strings.Builder
	for i, f := range findings {
		if i >= 3 {
			break
		}
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(strings.TrimSpace(f.Snippet))
	}
	return b.String()
}

/* ----------------------------- local knowledge ---------------------------- */

// topicNotes covers the recurring research themes that don't need the web.
var topicNotes = []struct {
	keywords []string
	note     string
}{
	{
		keywords: []string{"safety", "child", "baby", "family", "isofix", "crash"},
		note:     "All current-stock vehicles with a 5-star rating passed Euro NCAP adult and child occupant tests; ISOFIX anchors are listed per vehicle under features.",
	},
	{
		keywords: []string{"fuel", "consumption", "economy", "hybrid", "electric", "range"},
		note:     "Hybrid stock averages under 5L/100km in mixed driving; electric range depends on battery size and is best compared via the fuel_economy field.",
	},
	{
		keywords: []string{"maintenance", "reliability", "warranty", "service"},
		note:     "Vehicles listed in Excellent or Very Good condition completed the 120-point inspection; remaining factory warranty transfers with the sale.",
	},
	{
		keywords: []string{"technology", "tech", "assist", "autopilot", "infotainment"},
		note:     "Driver-assistance packages differ by make; the features field lists what each vehicle actually carries rather than the brand brochure.",
	},
}

func (s *Service) localReport(query, vin string) (Report, error) {
	var parts []string

	if vin != "" {
		v, err := s.inv.Get(vin)
		if err != nil {
			return Report{}, err
		}
		parts = append(parts, fmt.Sprintf(
			"%s: %s, %s, %s, %d km, safety rating %d/5, %d L trunk, condition %s.",
			v.Label(), v.Engine, v.FuelType, v.FuelEconomy,
			v.Mileage, v.SafetyRating, v.TrunkLiters, v.Condition))
		if len(v.Features) > 0 {
			parts = append(parts, "Equipment: "+strings.Join(v.Features, ", ")+".")
		}
	}

	lowered := strings.ToLower(query)
	for _, topic := range topicNotes {
		for _, kw := range topic.keywords {
			if strings.Contains(lowered, kw) {
				parts = append(parts, topic.note)
				break
			}
		}
	}

	if len(parts) == 0 {
		// Nothing topical matched; describe what the catalog can answer.
		stats := s.inv.Stats()
		parts = append(parts, fmt.Sprintf(
			"No external sources available for %q. Current stock: %d vehicles across %d makes; specific listings can be compared on safety, economy, and equipment.",
			query, stats.Available, len(stats.Makes)))
	}

	return Report{
		Query:   query,
		Source:  "local",
		Summary: strings.Join(parts, " "),
	}, nil
}
