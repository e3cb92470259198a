package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	_ "embed"

	"github.com/rs/zerolog/log"
)

//go:embed data/inventory.csv
var seedCSV string

var requiredColumns = []string{
	"vin", "make", "model", "year", "color", "mileage", "price",
	"body_style", "fuel_type", "engine", "transmission", "fuel_economy",
	"safety_rating", "trunk_liters", "condition", "location", "features",
}

// DefaultIndex builds an Index from the embedded seed catalog.
func DefaultIndex() *Index {
	vehicles, err := parseCatalog(strings.NewReader(seedCSV))
	if err != nil {
		// The embedded catalog is validated by tests; a parse failure here is
		// a build defect, not a runtime condition.
		panic(fmt.Sprintf("inventory: embedded catalog invalid: %v", err))
	}
	return NewIndex(vehicles)
}

// LoadIndex reads a catalog CSV from disk, validating the required columns.
func LoadIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	vehicles, err := parseCatalog(f)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Int("vehicles", len(vehicles)).Msg("inventory: catalog loaded")
	return NewIndex(vehicles), nil
}

func parseCatalog(r io.Reader) ([]Vehicle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("catalog missing required column %q", name)
		}
	}

	var vehicles []Vehicle
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog line %d: %w", line, err)
		}
		v, err := vehicleFromRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("catalog line %d: %w", line, err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

func vehicleFromRow(row []string, cols map[string]int) (Vehicle, error) {
	get := func(name string) string {
		i := cols[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	getInt := func(name string) (int, error) {
		raw := get(name)
		if raw == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", name, err)
		}
		return n, nil
	}

	var v Vehicle
	var err error
	v.VIN = get("vin")
	v.Make = get("make")
	v.Model = get("model")
	if v.Year, err = getInt("year"); err != nil {
		return v, err
	}
	v.Color = get("color")
	if v.Mileage, err = getInt("mileage"); err != nil {
		return v, err
	}
	if v.Price, err = getInt("price"); err != nil {
		return v, err
	}
	v.BodyStyle = get("body_style")
	v.FuelType = get("fuel_type")
	v.Engine = get("engine")
	v.Transmission = get("transmission")
	v.FuelEconomy = get("fuel_economy")
	if v.SafetyRating, err = getInt("safety_rating"); err != nil {
		return v, err
	}
	if v.TrunkLiters, err = getInt("trunk_liters"); err != nil {
		return v, err
	}
	v.Condition = get("condition")
	v.Location = get("location")
	for _, feat := range strings.Split(get("features"), ";") {
		if feat = strings.TrimSpace(feat); feat != "" {
			v.Features = append(v.Features, feat)
		}
	}
	v.Available = true
	if status := get("status"); status != "" && !strings.EqualFold(status, "available") {
		v.Available = false
	}
	return v, nil
}
