package backend

import (
	"context"
	"fmt"
	"strings"
)

// Provider is a reasoning backend. Chat drives the conversational reasoning
// pass with tool schemas attached; Complete serves single-prompt sub-calls
// such as routine generation. Both honor context deadlines and return errors
// instead of panicking; callers convert faults to fallback responses.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// ChatMessage is one turn in the prompt history.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// ToolSchema describes a callable tool for binding into the request.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ChatRequest carries one reasoning invocation.
type ChatRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	Tools       []ToolSchema
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the normalized model output.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	Model    string
}

// New creates a provider from configuration.
func New(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
