// Package llm talks to an OpenAI-compatible chat completion endpoint and
// decodes its JSON answers into typed structures.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pavelanni/quizen/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// PromptSpec is one rendered prompt ready to send.
type PromptSpec struct {
	Name        string
	System      string
	User        string
	Temperature float32
}

// Invoker sends a prompt and decodes the JSON reply into out. Errors are
// tagged with model.ErrLLMTransport, model.ErrSchemaValidation, model.ErrAuth
// or model.ErrQuota. Invokers never retry.
type Invoker interface {
	Invoke(ctx context.Context, spec PromptSpec, out any) error
}

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 90 * time.Second

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a new LLM client. A zero timeout means DefaultTimeout.
func New(baseURL, apiKey, modelName string, timeout time.Duration) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		timeout: timeout,
		logger:  slog.Default(),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Invoke sends spec as a system and user message pair in JSON mode.
func (c *Client) Invoke(ctx context.Context, spec PromptSpec, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: spec.System},
			{Role: openai.ChatMessageRoleUser, Content: spec.User},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: spec.Temperature,
	})
	if err != nil {
		return classifyError(spec.Name, err)
	}

	if len(resp.Choices) == 0 {
		return model.Wrap(model.ErrSchemaValidation, "", spec.Name, "LLM returned no choices", nil)
	}

	raw := resp.Choices[0].Message.Content
	c.logger.Debug("LLM response",
		"prompt", spec.Name,
		"duration_ms", time.Since(started).Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens,
		"raw", summarizePayloadSnippet(raw),
	)

	if err := DecodeJSON(raw, out); err != nil {
		return model.Wrap(model.ErrSchemaValidation, "", spec.Name, "parse LLM response", err)
	}
	return nil
}

func classifyError(prompt string, err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.Wrap(model.ErrAuth, "", prompt, fmt.Sprintf("LLM API returned %d", status), err)
	case http.StatusTooManyRequests:
		return model.Wrap(model.ErrQuota, "", prompt, "LLM API rate limited", err)
	}
	return model.Wrap(model.ErrLLMTransport, "", prompt, "LLM API call", err)
}
