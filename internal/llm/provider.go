package llm

import (
	"context"
	"fmt"
	"strings"
)

// Message is one prompt-context entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting attached to a finished reply.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TokenKind tags StreamToken variants.
type TokenKind int

const (
	// TokenText carries incremental reply content.
	TokenText TokenKind = iota
	// TokenMetadata carries terminal accounting, never display text.
	TokenMetadata
)

// StreamToken is one incremental unit of a model reply.
type StreamToken struct {
	Kind      TokenKind
	Text      string
	MessageID string
	Usage     *Usage
}

// TokenHandler receives stream tokens in arrival order.
type TokenHandler func(StreamToken) error

// Provider streams chat completions.
type Provider interface {
	ChatStream(ctx context.Context, model string, messages []Message, onToken TokenHandler) error
}

// Config controls provider construction.
type Config struct {
	Mode    string
	BaseURL string
	APIKey  string
}

// NewProvider builds a Provider from config. Auto mode prefers the HTTP
// backend when a base URL is configured, otherwise falls back to mock.
func NewProvider(cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.BaseURL) != "" {
			return NewHTTPProvider(cfg.BaseURL, cfg.APIKey), nil
		}
		return NewMockProvider(), nil
	case "http":
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("llm base URL is required for http mode")
		}
		return NewHTTPProvider(cfg.BaseURL, cfg.APIKey), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider mode %q", cfg.Mode)
	}
}
