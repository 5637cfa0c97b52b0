// Package llm adapts an OpenAI-compatible completion service to the
// structured-output calls the pipeline makes. The service itself enforces
// the contract's structural rules; this package only verifies the reply
// is JSON at all and surfaces everything else as an upstream error.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/provgen/provgen/internal/contract"
)

// Request is a single structured completion call.
type Request struct {
	Contract     contract.Contract
	Conversation *Conversation
	Temperature  float32
	// Model overrides the client default when non-empty (used by the
	// training synthesizer, which may run on a stronger model).
	Model string
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a completion client. baseURL may be empty for the default
// OpenAI endpoint. The model name and key are injected here once; core
// packages never read environment state themselves.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Complete issues one structured completion and returns the raw JSON
// object the service produced. Transport and service failures come back
// as *UpstreamError; they are never retried here.
func (c *Client) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       modelName,
		Messages:    req.Conversation.chatMessages(),
		Temperature: req.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Contract.Name,
				Schema: req.Contract.Definition,
				Strict: true,
			},
		},
	})
	if err != nil {
		return nil, upstream(req.Contract.Name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &UpstreamError{Contract: req.Contract.Name, Message: "service returned no choices"}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("completion response", "contract", req.Contract.Name, "raw", raw)

	if !json.Valid([]byte(raw)) {
		return nil, &UpstreamError{
			Contract: req.Contract.Name,
			Message:  "service did not return valid JSON content",
			Raw:      Truncate(raw),
		}
	}
	return json.RawMessage(raw), nil
}

// Ping verifies the endpoint is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("completion endpoint ping: %w", err)
	}
	return nil
}

// UpstreamError reports a transport or service failure, or a reply the
// collaborator guaranteed to prevent (non-JSON content under a strict
// schema). Carries the violated contract name for diagnosis.
type UpstreamError struct {
	Contract string
	Status   int
	Message  string
	Raw      string
	err      error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream failure (contract %s, status %d): %s", e.Contract, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream failure (contract %s): %s", e.Contract, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.err }

func upstream(contractName string, err error) *UpstreamError {
	ue := &UpstreamError{Contract: contractName, Message: err.Error(), err: err}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		ue.Status = apiErr.HTTPStatusCode
	}
	return ue
}

// maxRawLen bounds raw payloads carried in errors and debug output.
const maxRawLen = 2000

// Truncate bounds a raw payload for inclusion in error responses.
func Truncate(raw string) string {
	if len(raw) <= maxRawLen {
		return raw
	}
	return raw[:maxRawLen]
}
