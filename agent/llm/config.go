package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/dealeros/carbot/agent/contract"
	openaix "github.com/dealeros/carbot/pkg/openai"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`

	SalesModel          string  `envconfig:"SALES_MODEL" split_words:"true"`
	ResearchModel       string  `envconfig:"RESEARCH_MODEL" split_words:"true"`
	ManagerModel        string  `envconfig:"MANAGER_MODEL" split_words:"true"`
	SalesTemperature    float64 `envconfig:"SALES_TEMPERATURE" split_words:"true" default:"-1"`
	ResearchTemperature float64 `envconfig:"RESEARCH_TEMPERATURE" split_words:"true" default:"-1"`
	ManagerTemperature  float64 `envconfig:"MANAGER_TEMPERATURE" split_words:"true" default:"-1"`

	// TurnBudget caps inference passes per agent turn.
	TurnBudget int `envconfig:"TURN_BUDGET" split_words:"true" default:"5"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openai api key is required", contract.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contract.ErrValidation)
	}
	if c.TurnBudget <= 0 {
		return fmt.Errorf("%w: turn budget must be positive", contract.ErrValidation)
	}
	return nil
}

// OpenAIFor resolves the model and sampling parameters for one role,
// falling back to the shared defaults.
func (c Config) OpenAIFor(role contract.Role) openaix.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch role {
	case contract.RoleSales:
		if v := strings.TrimSpace(c.SalesModel); v != "" {
			modelName = v
		}
		if c.SalesTemperature >= 0 {
			temp = c.SalesTemperature
		}
	case contract.RoleResearch:
		if v := strings.TrimSpace(c.ResearchModel); v != "" {
			modelName = v
		}
		if c.ResearchTemperature >= 0 {
			temp = c.ResearchTemperature
		}
	case contract.RoleManager:
		if v := strings.TrimSpace(c.ManagerModel); v != "" {
			modelName = v
		}
		if c.ManagerTemperature >= 0 {
			temp = c.ManagerTemperature
		}
	}

	return openaix.Config{
		BaseURL:             strings.TrimSpace(c.BaseURL),
		APIKey:              strings.TrimSpace(c.APIKey),
		Model:               modelName,
		MaxCompletionTokens: c.MaxCompletionToken,
		Temperature:         temp,
		Timeout:             c.Timeout,
	}
}
