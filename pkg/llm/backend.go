package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyReply is returned when a backend answers with no text.
var ErrEmptyReply = errors.New("llm: empty reply")

// Backend produces a free-form reply to one user message, given a fixed
// system prompt and the assistant's priming answer to it.
type Backend interface {
	Generate(ctx context.Context, system, priming, user string) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, system, priming, user string) (string, error)

// Generate implements Backend.
func (f BackendFunc) Generate(ctx context.Context, system, priming, user string) (string, error) {
	return f(ctx, system, priming, user)
}

// NewBackend builds the backend named by cfg.Provider.
func NewBackend(ctx context.Context, cfg *Config, opts ...ClientOption) (Backend, error) {
	if cfg == nil {
		return nil, errors.New("llm: config cannot be nil")
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewClient(cfg, opts...)
	case ProviderGemini, "":
		return NewGeminiClient(ctx, cfg, opts...)
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}
