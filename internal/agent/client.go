// Package agent talks to the text-generation service that writes the
// analysis. Both clients stream the completion and drain it fully before
// returning.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAgent marks any failure to obtain a completion.
var ErrAgent = errors.New("agent error")

// Client turns a prompt into completion text.
type Client interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Options configures a Client built by New.
type Options struct {
	Provider string // "ollama" or "openai"
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// New builds the client for opts.Provider.
func New(opts Options) (Client, error) {
	switch opts.Provider {
	case "", "ollama":
		return NewOllamaClient(opts.BaseURL, opts.Model, opts.Timeout), nil
	case "openai":
		return NewOpenAIClient(opts.BaseURL, opts.APIKey, opts.Model, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown agent provider %q", opts.Provider)
	}
}

func agentErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrAgent, err)
}
