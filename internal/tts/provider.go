package tts

import (
	"context"
	"fmt"
	"strings"
)

// Params are the session-scoped synthesis knobs.
type Params struct {
	Voice     string
	Character string
	Emotion   string
}

// Provider turns one sentence into audio bytes.
type Provider interface {
	Synthesize(ctx context.Context, text string, params Params) ([]byte, error)
}

// Config controls provider construction.
type Config struct {
	Mode    string
	APIBase string
}

// NewProvider builds a Provider from config. Auto mode prefers the GSVI
// HTTP backend when an API base is configured, otherwise falls back to mock.
func NewProvider(cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIBase) != "" {
			return NewGSVIProvider(cfg.APIBase), nil
		}
		return NewMockProvider(), nil
	case "gsvi":
		if strings.TrimSpace(cfg.APIBase) == "" {
			return nil, fmt.Errorf("tts API base is required for gsvi mode")
		}
		return NewGSVIProvider(cfg.APIBase), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported tts provider mode %q", cfg.Mode)
	}
}
