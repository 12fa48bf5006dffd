// Package openai provides an HTTP client for OpenAI-compatible
// chat-completion endpoints with native tool calling.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/domain/conversation"
	"github.com/sqlpilot/sqlpilot/internal/port/llm"
	"github.com/sqlpilot/sqlpilot/internal/resilience"
)

// Client talks to one OpenAI-compatible provider.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	breaker     *resilience.Breaker
}

var _ llm.Client = (*Client)(nil)

// NewClient creates a chat client for the given provider block.
func NewClient(provider config.Provider) *Client {
	return &Client{
		baseURL:     provider.BaseURL,
		apiKey:      provider.APIKey,
		model:       provider.Model,
		temperature: provider.Temperature,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// chatRequest is the chat-completions request body.
type chatRequest struct {
	Model       string                 `json:"model"`
	Messages    []conversation.Message `json:"messages"`
	Tools       []toolSpec             `json:"tools,omitempty"`
	Temperature float64                `json:"temperature"`
}

// toolSpec wraps a tool definition in the function-calling envelope.
type toolSpec struct {
	Type     string             `json:"type"`
	Function llm.ToolDefinition `json:"function"`
}

// chatResponse is the subset of the chat-completions response we consume.
type chatResponse struct {
	Choices []struct {
		Message conversation.Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the conversation and tool catalog and returns the
// assistant's reply.
func (c *Client) Complete(ctx context.Context, messages []conversation.Message, tools []llm.ToolDefinition) (*conversation.Message, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	}
	for _, t := range tools {
		reqBody.Tools = append(reqBody.Tools, toolSpec{Type: "function", Function: t})
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	data, err := c.doRequest(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal chat response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("provider error (%s): %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}

	reply := resp.Choices[0].Message
	return &reply, nil
}

func (c *Client) doRequest(ctx context.Context, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("provider API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
