// Package backend abstracts the execution surface a provider offers.
package backend

import (
	"context"
	"fmt"
	"time"
)

// Spec is one execution request handed to a provider backend.
type Spec struct {
	// TaskID identifies the task being executed.
	TaskID string
	// Provider is the registry ID of the provider serving this request.
	Provider string
	// Model is the model identifier to run, backend-specific.
	Model string
	// Payload is the task's work description.
	Payload string
	// MaxTokens caps generation for this request.
	MaxTokens int64
}

// Result reports a completed execution with its measured usage.
type Result struct {
	// Output is the produced text.
	Output string
	// InputTokens and OutputTokens are the usage reported by the provider.
	InputTokens  int64
	OutputTokens int64
	// Duration is wall-clock execution time.
	Duration time.Duration
}

// Units returns the total work units consumed, the figure charged against
// provider quota.
func (r *Result) Units() int64 {
	return r.InputTokens + r.OutputTokens
}

// Backend executes task payloads against one provider family.
type Backend interface {
	Execute(ctx context.Context, spec Spec) (*Result, error)
}

// Func adapts a plain function to the Backend interface, mirroring
// http.HandlerFunc. Used heavily in tests.
type Func func(ctx context.Context, spec Spec) (*Result, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, spec Spec) (*Result, error) {
	return f(ctx, spec)
}

// WithTimeout wraps a backend so every execution carries a deadline. A zero
// timeout returns the backend unchanged.
func WithTimeout(b Backend, timeout time.Duration) Backend {
	if timeout <= 0 {
		return b
	}
	return Func(func(ctx context.Context, spec Spec) (*Result, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res, err := b.Execute(ctx, spec)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("task %s timed out after %s on %s: %w",
					spec.TaskID, timeout, spec.Provider, err)
			}
			return nil, err
		}
		return res, nil
	})
}
