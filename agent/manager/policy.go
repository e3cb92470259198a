package manager

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dealeros/carbot/agent/inventory"
)

// Discount policy. Caps are percentages of list price; the margin floor is
// the minimum gross margin a sale must keep over the modeled dealer cost.
const (
	standardDiscountCap = 10.0
	agedDiscountCap     = 15.0
	premiumDiscountCap  = 5.0

	// Aged stock qualifies for the deeper cap.
	agedMileageThreshold = 40000

	// Dealer cost is modeled as a fixed fraction of list price; a sale may
	// never leave less than minMarginRatio over that cost.
	dealerCostRatio = 0.80
	minMarginRatio  = 0.08
)

var premiumMakes = map[string]bool{
	"ferrari":     true,
	"lamborghini": true,
	"rolls-royce": true,
	"bentley":     true,
	"porsche":     true,
}

// Decision is the manager's ruling on a discount request. When the request
// exceeds policy, Approved is false and ApprovedPercent carries the
// counteroffer.
type Decision struct {
	VIN              string  `json:"vin"`
	Approved         bool    `json:"approved"`
	RequestedPercent float64 `json:"requested_percent"`
	ApprovedPercent  float64 `json:"approved_percent"`
	ListPrice        int     `json:"list_price"`
	FinalPrice       int     `json:"final_price"`
	Reason           string  `json:"reason"`
}

// Policy is the manager's rules engine over the shared catalog.
type Policy struct {
	inv *inventory.Index
}

func NewPolicy(inv *inventory.Index) *Policy {
	return &Policy{inv: inv}
}

// Discount evaluates a requested discount percentage for one vehicle.
func (p *Policy) Discount(vin string, requestedPercent float64) (Decision, error) {
	v, err := p.inv.Get(vin)
	if err != nil {
		return Decision{}, err
	}
	if requestedPercent < 0 {
		requestedPercent = 0
	}

	limit, reason := p.discountCap(v)

	marginCap := marginDiscountCap()
	if marginCap < limit {
		limit = marginCap
		reason = fmt.Sprintf("capped at %.1f%% to protect the minimum margin", limit)
	}

	approved := math.Min(requestedPercent, limit)
	finalPrice := int(math.Round(float64(v.Price) * (1 - approved/100)))

	d := Decision{
		VIN:              v.VIN,
		Approved:         requestedPercent <= limit,
		RequestedPercent: requestedPercent,
		ApprovedPercent:  round1(approved),
		ListPrice:        v.Price,
		FinalPrice:       finalPrice,
		Reason:           reason,
	}
	if !d.Approved {
		d.Reason = fmt.Sprintf("requested %.1f%% exceeds policy; best offer is %.1f%% (%s)",
			requestedPercent, d.ApprovedPercent, reason)
	}
	return d, nil
}

func (p *Policy) discountCap(v inventory.Vehicle) (float64, string) {
	if premiumMakes[strings.ToLower(v.Make)] {
		return premiumDiscountCap, fmt.Sprintf("premium make %s holds value, cap %.0f%%", v.Make, premiumDiscountCap)
	}
	if v.Mileage >= agedMileageThreshold {
		return agedDiscountCap, fmt.Sprintf("aged stock at %d km, cap %.0f%%", v.Mileage, agedDiscountCap)
	}
	return standardDiscountCap, fmt.Sprintf("standard cap %.0f%%", standardDiscountCap)
}

// marginDiscountCap converts the margin floor into the deepest discount that
// still keeps minMarginRatio over dealer cost.
func marginDiscountCap() float64 {
	floor := dealerCostRatio * (1 + minMarginRatio)
	return round1((1 - floor) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

/* --------------------------- inventory directives ------------------------- */

// Directives is the manager's read of the catalog: what to push and where the
// lot stands. Used when sales consults the manager without a specific vehicle.
type Directives struct {
	Stats          inventory.Stats `json:"stats"`
	PriorityMakes  []string        `json:"priority_makes,omitempty"`
	Recommendation string          `json:"recommendation"`
}

func (p *Policy) InventoryDirectives() Directives {
	stats := p.inv.Stats()

	// Push the makes with the most stock on the lot.
	type makeCount struct {
		name  string
		count int
	}
	var counts []makeCount
	for name, n := range stats.Makes {
		counts = append(counts, makeCount{name, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].name < counts[j].name
	})

	var priority []string
	for i := 0; i < len(counts) && i < 3; i++ {
		priority = append(priority, counts[i].name)
	}

	rec := "inventory is healthy; sell on fit, not on price"
	if stats.Total > 0 && stats.Available*2 < stats.Total {
		rec = "inventory is running low; hold discounts near the minimum"
	}

	return Directives{
		Stats:          stats,
		PriorityMakes:  priority,
		Recommendation: rec,
	}
}
