package llm

import (
	"errors"
	"testing"

	"github.com/dealeros/carbot/agent/contract"
)

func baseConfig() Config {
	return Config{
		APIKey:      "key",
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		TurnBudget:  5,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := baseConfig().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cfg := baseConfig()
	cfg.APIKey = " "
	if err := cfg.Validate(); !errors.Is(err, contract.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	cfg = baseConfig()
	cfg.TurnBudget = 0
	if err := cfg.Validate(); !errors.Is(err, contract.ErrValidation) {
		t.Fatalf("expected ErrValidation for zero budget, got %v", err)
	}
}

func TestOpenAIForDefaults(t *testing.T) {
	t.Parallel()

	got := baseConfig().OpenAIFor(contract.RoleSales)
	if got.Model != "gpt-4o-mini" || got.Temperature != 0.7 {
		t.Fatalf("unexpected config: %+v", got)
	}
}

func TestOpenAIForRoleOverrides(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.ResearchModel = "gpt-4o"
	cfg.ResearchTemperature = 0.1

	got := cfg.OpenAIFor(contract.RoleResearch)
	if got.Model != "gpt-4o" || got.Temperature != 0.1 {
		t.Fatalf("override not applied: %+v", got)
	}

	// Other roles keep the defaults.
	if got := cfg.OpenAIFor(contract.RoleManager); got.Model != "gpt-4o-mini" {
		t.Fatalf("manager picked up research override: %+v", got)
	}
}

func TestOpenAIForZeroTemperatureOverride(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.ManagerTemperature = 0

	if got := cfg.OpenAIFor(contract.RoleManager); got.Temperature != 0 {
		t.Fatalf("zero temperature override ignored: %+v", got)
	}
}
