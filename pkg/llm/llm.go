// Package llm provides single-turn chat completion clients: one system
// prompt and one user prompt in, one text completion out.
package llm

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("no text content in response")

// Client sends a single-turn completion request.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...CompleteOption) (string, error)
}

type CompleteOptions struct {
	Temperature *float64
	MaxTokens   int64
}

type CompleteOption func(*CompleteOptions)

// WithTemperature sets the sampling temperature. Zero gives deterministic output.
func WithTemperature(t float64) CompleteOption {
	return func(o *CompleteOptions) {
		o.Temperature = &t
	}
}

// WithMaxTokens caps the completion length for this call.
func WithMaxTokens(n int64) CompleteOption {
	return func(o *CompleteOptions) {
		o.MaxTokens = n
	}
}

func ApplyOptions(opts []CompleteOption) CompleteOptions {
	var o CompleteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
