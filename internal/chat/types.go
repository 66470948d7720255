// Package chat produces bot replies from a completion provider.
package chat

import "context"

// CompletionRequest is one single-turn completion call.
type CompletionRequest struct {
	APIKey      string
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float32
}

// Completer calls a completion provider and returns the raw reply text.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}
