package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dealeros/carbot/agent/contract"
	"github.com/dealeros/carbot/agent/inventory"
)

type fakeWeb struct {
	findings []contract.Finding
	err      error
	queries  []string
}

func (f *fakeWeb) Search(ctx context.Context, query string, filters map[string]string) ([]contract.Finding, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.findings, nil
}

func testIndex() *inventory.Index {
	return inventory.NewIndex([]inventory.Vehicle{
		{
			VIN: "VIN-XC60", Make: "Volvo", Model: "XC60", Year: 2022,
			FuelType: "Hybrid", Engine: "2.0L T8 PHEV", FuelEconomy: "2.8L/100km",
			Mileage: 18300, SafetyRating: 5, TrunkLiters: 505, Condition: "Very Good",
			Features:  []string{"City Safety", "ISOFIX Anchors"},
			Available: true,
		},
	})
}

func TestLookupPrefersWebFindings(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{findings: []contract.Finding{
		{Title: "Crash test", Snippet: "Scored top marks in 2022 tests.", Rank: 1},
	}}
	svc := NewService(web, testIndex())

	rep, err := svc.Lookup(context.Background(), "xc60 crash test", "")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if rep.Source != "web" || len(rep.Findings) != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if !strings.Contains(rep.Summary, "top marks") {
		t.Fatalf("summary missing finding content: %q", rep.Summary)
	}
}

func TestLookupFallsBackOnNoResults(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{err: contract.ErrNoResults}
	svc := NewService(web, testIndex())

	rep, err := svc.Lookup(context.Background(), "is it safe for a baby", "VIN-XC60")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if rep.Source != "local" {
		t.Fatalf("expected local fallback, got %s", rep.Source)
	}
	if !strings.Contains(rep.Summary, "XC60") {
		t.Fatalf("summary missing vehicle facts: %q", rep.Summary)
	}
	if !strings.Contains(rep.Summary, "ISOFIX") {
		t.Fatalf("summary missing safety note: %q", rep.Summary)
	}
}

func TestLookupFallsBackOnTransportFailure(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{err: errors.New("dns failure")}
	svc := NewService(web, testIndex())

	rep, err := svc.Lookup(context.Background(), "fuel economy", "")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if rep.Source != "local" {
		t.Fatalf("expected local fallback, got %s", rep.Source)
	}
}

func TestLookupWithoutWebCollaborator(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, testIndex())
	rep, err := svc.Lookup(context.Background(), "anything unusual", "")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if rep.Source != "local" || rep.Summary == "" {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestLookupUnknownVIN(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, testIndex())
	if _, err := svc.Lookup(context.Background(), "details", "NOPE"); !errors.Is(err, contract.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupEmptyQueryAndVIN(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, testIndex())
	if _, err := svc.Lookup(context.Background(), "  ", ""); !errors.Is(err, contract.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
