package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// Configuration files carry the model as a plain string; the adapter takes
// it through an anthropic.Model conversion at the boundary.
func TestNewAnthropicModelFromConfigString(t *testing.T) {
	configured := "claude-sonnet-4-20250514"
	b, err := NewAnthropic(AnthropicConfig{
		APIKey: "sk-ant-test-key",
		Model:  anthropic.Model(configured),
	})
	if err != nil {
		t.Fatalf("new anthropic: %v", err)
	}
	if b.model != anthropic.Model(configured) {
		t.Errorf("expected model %q, got %q", configured, b.model)
	}
}

func TestNewAnthropicDefaultsModelWhenUnset(t *testing.T) {
	b, err := NewAnthropic(AnthropicConfig{APIKey: "sk-ant-test-key"})
	if err != nil {
		t.Fatalf("new anthropic: %v", err)
	}
	if b.model == "" {
		t.Error("expected a default model")
	}
}

func TestFuncAdapter(t *testing.T) {
	b := Func(func(ctx context.Context, spec Spec) (*Result, error) {
		return &Result{Output: "done: " + spec.TaskID, InputTokens: 10, OutputTokens: 5}, nil
	})

	res, err := b.Execute(context.Background(), Spec{TaskID: "t1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Output != "done: t1" {
		t.Errorf("unexpected output %q", res.Output)
	}
	if res.Units() != 15 {
		t.Errorf("expected 15 units charged, got %d", res.Units())
	}
}

func TestWithTimeoutCancelsSlowExecution(t *testing.T) {
	slow := Func(func(ctx context.Context, spec Spec) (*Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &Result{}, nil
		}
	})

	b := WithTimeout(slow, 20*time.Millisecond)
	_, err := b.Execute(context.Background(), Spec{TaskID: "t1", Provider: "p1"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded in chain, got %v", err)
	}
}

func TestWithTimeoutPassesFastExecution(t *testing.T) {
	fast := Func(func(ctx context.Context, spec Spec) (*Result, error) {
		return &Result{Output: "ok"}, nil
	})

	b := WithTimeout(fast, time.Second)
	res, err := b.Execute(context.Background(), Spec{TaskID: "t1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Output != "ok" {
		t.Errorf("unexpected output %q", res.Output)
	}
}

func TestWithTimeoutZeroIsIdentity(t *testing.T) {
	b := Func(func(ctx context.Context, spec Spec) (*Result, error) {
		return &Result{}, nil
	})
	if got := WithTimeout(b, 0); got == nil {
		t.Fatal("expected backend unchanged for zero timeout")
	}
}

func TestUsageTracker(t *testing.T) {
	tr := NewUsageTracker()
	tr.Add(100, 50)
	tr.Add(200, 75)

	in, out := tr.Total()
	if in != 300 || out != 125 {
		t.Errorf("expected 300/125, got %d/%d", in, out)
	}
	if tr.Calls() != 2 {
		t.Errorf("expected 2 calls, got %d", tr.Calls())
	}

	tr.Reset()
	in, out = tr.Total()
	if in != 0 || out != 0 || tr.Calls() != 0 {
		t.Error("tracker not cleared by reset")
	}
}
