package reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/signald/internal/config"
)

// LLMClient provides an interface for the reasoning backend.
//
// The interface is narrow so tests can substitute deterministic
// implementations without network access.
type LLMClient interface {
	// Complete generates a completion from the given prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// openAIClient implements LLMClient over an OpenAI-compatible API.
type openAIClient struct {
	llm         *openai.LLM
	temperature float64
}

// NewLLMClient creates the backend client from configuration. Any
// OpenAI-compatible endpoint works via base_url.
func NewLLMClient(cfg config.BackendConfig) (LLMClient, error) {
	token := cfg.APIKey.Value()
	if token == "" {
		// langchaingo requires a token even for keyless local endpoints.
		token = "unused"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("creating backend client: %w", err)
	}

	return &openAIClient{llm: llm, temperature: cfg.Temperature}, nil
}

func (c *openAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c.llm, prompt,
		llms.WithTemperature(c.temperature))
}

// extractJSON strips markdown code fences and surrounding prose so a
// chatty model response still parses. Returns the first top-level JSON
// object found.
func extractJSON(response string) (string, error) {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```"); idx >= 0 {
		rest := response[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			response = rest[:end]
		} else {
			response = rest
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return response[start : end+1], nil
}
