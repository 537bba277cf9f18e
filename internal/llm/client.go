// Package llm provides text generation for the hunt pipeline via the
// Anthropic API, with a deterministic offline fallback so stages can proceed
// when no backend is configured or reachable.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const placeholderMaxPrompt = 160

// Client generates narrative text. When apiKey is empty every call returns
// the offline placeholder immediately.
type Client struct {
	api     anthropic.Client
	model   string
	enabled bool
}

// New creates a Client for the given API key and model. Extra request
// options (base URL, HTTP client) are passed through to the SDK.
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	if apiKey == "" {
		return &Client{model: model}
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		api:     anthropic.NewClient(opts...),
		model:   model,
		enabled: true,
	}
}

// GenerateText produces up to maxTokens of text for the prompt. Backend
// unavailability never fails the call: the deterministic placeholder is
// returned instead, so offline runs stay functional. Only context
// cancellation surfaces as an error.
func (c *Client) GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !c.enabled {
		return c.placeholder(prompt), nil
	}

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return c.placeholder(prompt), nil
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// placeholder is deterministic for a given prompt and model.
func (c *Client) placeholder(prompt string) string {
	p := prompt
	suffix := ""
	if len(p) > placeholderMaxPrompt {
		p = p[:placeholderMaxPrompt]
		suffix = "..."
	}
	return fmt.Sprintf("[simulated:%s] %s%s", c.model, p, suffix)
}
