package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dealeros/carbot/agent/contract"
)

// Config carries the per-role connection and sampling parameters. One Client
// is built per role so the sales, research, and manager agents can run on
// different models and temperatures.
type Config struct {
	BaseURL             string
	APIKey              string
	Model               string
	MaxCompletionTokens int
	Temperature         float64
	Timeout             time.Duration
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("openai api key is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("openai model is required")
	}
	return nil
}

// Client implements contract.Inference on the OpenAI chat completions API.
type Client struct {
	api openaisdk.Client
	cfg Config
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}

	return &Client{
		api: openaisdk.NewClient(opts...),
		cfg: cfg,
	}, nil
}

// Complete runs one chat completion. The structured completion carries either
// terminal text or the first requested tool call, never both.
func (c *Client) Complete(ctx context.Context, req contract.InferenceRequest) (contract.Completion, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:    c.cfg.Model,
		Messages: buildMessages(req),
	}
	if c.cfg.Temperature >= 0 {
		params.Temperature = openaisdk.Float(c.cfg.Temperature)
	}
	if c.cfg.MaxCompletionTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(c.cfg.MaxCompletionTokens))
	}

	toolParams, err := buildTools(req.Tools)
	if err != nil {
		return contract.Completion{}, err
	}
	params.Tools = toolParams

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return contract.Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return contract.Completion{}, errors.New("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		args := map[string]any{}
		if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return contract.Completion{}, fmt.Errorf("decode tool arguments for %s: %w", tc.Function.Name, err)
			}
		}
		return contract.Completion{
			ToolCall: &contract.ToolCall{Name: tc.Function.Name, Args: args},
		}, nil
	}

	return contract.Completion{Text: msg.Content}, nil
}

// buildMessages flattens the role-agnostic transcript into the chat protocol.
// Tool exchanges are rendered as plain text turns; the model sees what was
// called and what came back without per-call id bookkeeping.
func buildMessages(req contract.InferenceRequest) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		out = append(out, openaisdk.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Kind {
		case contract.MessageSystem:
			out = append(out, openaisdk.SystemMessage(m.Content))
		case contract.MessageCustomer:
			out = append(out, openaisdk.UserMessage(m.Content))
		case contract.MessageAssistant:
			if m.ToolName != "" {
				out = append(out, openaisdk.AssistantMessage(fmt.Sprintf("Calling tool %s: %s", m.ToolName, m.Content)))
			} else {
				out = append(out, openaisdk.AssistantMessage(m.Content))
			}
		case contract.MessageTool:
			out = append(out, openaisdk.UserMessage(fmt.Sprintf("[tool %s result] %s", m.ToolName, m.Content)))
		}
	}
	return out
}

func buildTools(specs []contract.ToolSpec) ([]openaisdk.ChatCompletionToolParam, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]openaisdk.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		parameters, err := schemaParameters(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, openaisdk.ChatCompletionToolParam{
			Function: openaisdk.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openaisdk.String(spec.Description),
				Parameters:  parameters,
			},
		})
	}
	return out, nil
}

func schemaParameters(spec contract.ToolSpec) (openaisdk.FunctionParameters, error) {
	raw, err := json.Marshal(spec.Schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for tool %s: %w", spec.Name, err)
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("decode schema for tool %s: %w", spec.Name, err)
	}
	return openaisdk.FunctionParameters(params), nil
}
