// Package llm provides the gateway to an OpenAI-compatible chat completion
// endpoint: blocking completions, streaming completions, and the
// <think>…</think> stripping the rest of the engine relies on.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ordo-ai/ordo/pkg/config"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    string
	Content string
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// CompletionRequest carries one chat completion call.
type CompletionRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int // 0 means provider default
}

// StreamChunk is one delta from a streaming completion.
type StreamChunk struct {
	Content string
}

// ToolDefinition describes a function the model may call (used by the
// single-tool test endpoint).
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCallResponse is the outcome of a function-calling completion.
type ToolCallResponse struct {
	Content   string
	Name      string
	Arguments string // raw JSON
}

// Client wraps an OpenAI-compatible endpoint. Concurrent-safe; one Client is
// shared across queries unless a request overrides provider/model/key.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient builds a Client from config. The provider selects the base URL
// unless cfg.BaseURL overrides it.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		url, ok := BaseURLFor(cfg.Provider)
		if !ok {
			return nil, fmt.Errorf("unknown LLM provider %q and no base_url configured", cfg.Provider)
		}
		baseURL = url
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = baseURL
	clientConfig.HTTPClient = newHTTPClient()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: timeout,
		logger:  slog.With("component", "llm", "model", cfg.Model),
	}, nil
}

// newHTTPClient tunes the shared transport for many concurrent long calls.
func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.MaxIdleConnsPerHost = 8
	transport.IdleConnTimeout = 90 * time.Second
	return &http.Client{Transport: transport}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete performs a blocking chat completion and returns the content of
// the first choice.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    convertMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from LLM")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream performs a streaming chat completion. Chunks arrive on the first
// channel; at most one error on the second. Both close when the stream ends
// or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    convertMessages(req.Messages),
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			errs <- fmt.Errorf("create stream failed: %w", err)
			return
		}
		defer func() { _ = stream.Close() }()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- fmt.Errorf("stream recv failed: %w", err)
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case chunks <- StreamChunk{Content: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return chunks, errs
}

// CompleteWithTool performs one function-calling completion bound to a single
// tool. When the model declines to call it, Name is empty and Content holds
// the plain reply.
func (c *Client) CompleteWithTool(ctx context.Context, req CompletionRequest, tool ToolDefinition) (*ToolCallResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    convertMessages(req.Messages),
		Temperature: req.Temperature,
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("function-calling completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from LLM")
	}

	msg := resp.Choices[0].Message
	result := &ToolCallResponse{Content: msg.Content}
	if len(msg.ToolCalls) > 0 {
		result.Name = msg.ToolCalls[0].Function.Name
		result.Arguments = msg.ToolCalls[0].Function.Arguments
	}
	return result, nil
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return converted
}
