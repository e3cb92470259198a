package inventory

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dealeros/carbot/agent/contract"
)

// Vehicle is one catalog record. All fields are immutable after load except
// the availability flag, which only a successful ReserveAndSell clears.
type Vehicle struct {
	VIN          string   `json:"vin"`
	Make         string   `json:"make"`
	Model        string   `json:"model"`
	Year         int      `json:"year"`
	Color        string   `json:"color"`
	Mileage      int      `json:"mileage"`
	Price        int      `json:"price"`
	BodyStyle    string   `json:"body_style"`
	FuelType     string   `json:"fuel_type"`
	Engine       string   `json:"engine"`
	Transmission string   `json:"transmission"`
	FuelEconomy  string   `json:"fuel_economy"`
	SafetyRating int      `json:"safety_rating"`
	TrunkLiters  int      `json:"trunk_liters"`
	Condition    string   `json:"condition"`
	Location     string   `json:"location"`
	Features     []string `json:"features"`
	Available    bool     `json:"available"`
}

func (v Vehicle) Label() string {
	return fmt.Sprintf("%d %s %s", v.Year, v.Make, v.Model)
}

type record struct {
	vehicle   Vehicle
	available atomic.Bool
}

func (r *record) snapshot() Vehicle {
	v := r.vehicle
	v.Available = r.available.Load()
	return v
}

// Filter selects any subset of dimensions. Structured fields match exactly
// (case-insensitive); Features and Keywords match by case-insensitive
// substring.
type Filter struct {
	Make      string   `json:"make,omitempty"`
	Model     string   `json:"model,omitempty"`
	YearMin   int      `json:"year_min,omitempty"`
	YearMax   int      `json:"year_max,omitempty"`
	Color     string   `json:"color,omitempty"`
	PriceMin  int      `json:"price_min,omitempty"`
	PriceMax  int      `json:"price_max,omitempty"`
	BodyStyle string   `json:"body_style,omitempty"`
	Features  []string `json:"features,omitempty"`
	Keywords  string   `json:"keywords,omitempty"`
}

func (f Filter) Empty() bool {
	return f.Make == "" && f.Model == "" && f.YearMin == 0 && f.YearMax == 0 &&
		f.Color == "" && f.PriceMin == 0 && f.PriceMax == 0 &&
		f.BodyStyle == "" && len(f.Features) == 0 && strings.TrimSpace(f.Keywords) == ""
}

// Index is the in-memory catalog. It is the only state shared across
// conversations; availability is guarded per record by compare-and-swap.
type Index struct {
	records []*record
	byVIN   map[string]*record
}

func NewIndex(vehicles []Vehicle) *Index {
	idx := &Index{
		byVIN: make(map[string]*record, len(vehicles)),
	}
	for _, v := range vehicles {
		vin := strings.TrimSpace(v.VIN)
		if vin == "" {
			continue
		}
		if _, dup := idx.byVIN[vin]; dup {
			log.Warn().Str("vin", vin).Msg("inventory: duplicate vin skipped")
			continue
		}
		v.VIN = vin
		rec := &record{vehicle: v}
		rec.available.Store(v.Available)
		idx.records = append(idx.records, rec)
		idx.byVIN[vin] = rec
	}
	return idx
}

// Get returns the vehicle with the given VIN, including its current
// availability, or ErrNotFound.
func (idx *Index) Get(vin string) (Vehicle, error) {
	rec, ok := idx.byVIN[strings.TrimSpace(vin)]
	if !ok {
		return Vehicle{}, fmt.Errorf("%w: vin=%s", contract.ErrNotFound, vin)
	}
	return rec.snapshot(), nil
}

// Search returns available vehicles matching every specified filter dimension,
// ordered by relevance (matched dimensions descending, ties by ascending
// price, then VIN for a stable order). An empty filter returns the full
// available catalog by ascending price. No match returns an empty slice.
func (idx *Index) Search(f Filter) []Vehicle {
	type scored struct {
		vehicle Vehicle
		score   int
	}

	var out []scored
	for _, rec := range idx.records {
		if !rec.available.Load() {
			continue
		}
		v := rec.snapshot()
		score, ok := matchScore(v, f)
		if !ok {
			continue
		}
		out = append(out, scored{vehicle: v, score: score})
	}

	if f.Empty() {
		sort.Slice(out, func(i, j int) bool {
			if out[i].vehicle.Price != out[j].vehicle.Price {
				return out[i].vehicle.Price < out[j].vehicle.Price
			}
			return out[i].vehicle.VIN < out[j].vehicle.VIN
		})
	} else {
		sort.Slice(out, func(i, j int) bool {
			if out[i].score != out[j].score {
				return out[i].score > out[j].score
			}
			if out[i].vehicle.Price != out[j].vehicle.Price {
				return out[i].vehicle.Price < out[j].vehicle.Price
			}
			return out[i].vehicle.VIN < out[j].vehicle.VIN
		})
	}

	results := make([]Vehicle, len(out))
	for i, s := range out {
		results[i] = s.vehicle
	}
	return results
}

// matchScore reports whether v satisfies every specified dimension of f and,
// if so, how many dimensions it matched. Feature and keyword dimensions can
// match more than once and raise the score accordingly.
func matchScore(v Vehicle, f Filter) (int, bool) {
	score := 0

	if f.Make != "" {
		if !strings.EqualFold(v.Make, f.Make) {
			return 0, false
		}
		score++
	}
	if f.Model != "" {
		if !strings.EqualFold(v.Model, f.Model) {
			return 0, false
		}
		score++
	}
	if f.YearMin != 0 || f.YearMax != 0 {
		if f.YearMin != 0 && v.Year < f.YearMin {
			return 0, false
		}
		if f.YearMax != 0 && v.Year > f.YearMax {
			return 0, false
		}
		score++
	}
	if f.Color != "" {
		if !strings.EqualFold(v.Color, f.Color) {
			return 0, false
		}
		score++
	}
	if f.PriceMin != 0 || f.PriceMax != 0 {
		if f.PriceMin != 0 && v.Price < f.PriceMin {
			return 0, false
		}
		if f.PriceMax != 0 && v.Price > f.PriceMax {
			return 0, false
		}
		score++
	}
	if f.BodyStyle != "" {
		if !strings.EqualFold(v.BodyStyle, f.BodyStyle) {
			return 0, false
		}
		score++
	}
	for _, want := range f.Features {
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		matched := false
		for _, have := range v.Features {
			if strings.Contains(strings.ToLower(have), strings.ToLower(want)) {
				matched = true
				break
			}
		}
		if !matched {
			return 0, false
		}
		score++
	}
	if kw := strings.TrimSpace(f.Keywords); kw != "" {
		text := searchText(v)
		hits := 0
		for _, word := range strings.Fields(strings.ToLower(kw)) {
			if strings.Contains(text, word) {
				hits++
			}
		}
		if hits == 0 {
			return 0, false
		}
		score += hits
	}

	return score, true
}

func searchText(v Vehicle) string {
	parts := []string{
		fmt.Sprint(v.Year), v.Make, v.Model, v.Color, v.BodyStyle,
		v.FuelType, v.Engine, v.Transmission, v.Condition, v.Location,
	}
	parts = append(parts, v.Features...)
	return strings.ToLower(strings.Join(parts, " "))
}

// ReserveAndSell atomically flips the availability flag of the given vehicle.
// Exactly one of N concurrent callers for the same VIN succeeds; the rest get
// ErrAlreadySold.
func (idx *Index) ReserveAndSell(vin string) error {
	rec, ok := idx.byVIN[strings.TrimSpace(vin)]
	if !ok {
		return fmt.Errorf("%w: vin=%s", contract.ErrNotFound, vin)
	}
	if !rec.available.CompareAndSwap(true, false) {
		return fmt.Errorf("%w: vin=%s", contract.ErrAlreadySold, vin)
	}
	log.Info().Str("vin", rec.vehicle.VIN).Msg("inventory: vehicle sold")
	return nil
}

// Stats summarizes the catalog for the manager's inventory directives.
type Stats struct {
	Total        int            `json:"total"`
	Available    int            `json:"available"`
	TotalValue   int            `json:"total_value"`
	AveragePrice int            `json:"average_price"`
	Makes        map[string]int `json:"makes"`
}

func (idx *Index) Stats() Stats {
	st := Stats{Makes: make(map[string]int)}
	for _, rec := range idx.records {
		st.Total++
		if rec.available.Load() {
			st.Available++
		}
		st.TotalValue += rec.vehicle.Price
		st.Makes[rec.vehicle.Make]++
	}
	if st.Total > 0 {
		st.AveragePrice = st.TotalValue / st.Total
	}
	return st
}
