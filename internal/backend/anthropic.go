package backend

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultMaxTokens bounds generation when a spec does not set its own cap.
const defaultMaxTokens = 8192

// systemPrompt frames every execution request.
const systemPrompt = "You are an AI assistant completing a delegated software development task. Produce the deliverable described in the task payload."

// AnthropicConfig configures the Anthropic-backed executor.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// Model is the default model when a spec names none.
	Model anthropic.Model
}

// Anthropic executes task payloads through the Anthropic Messages API.
type Anthropic struct {
	inner   anthropic.Client
	model   anthropic.Model
	tracker *UsageTracker
}

// NewAnthropic creates an Anthropic-backed executor.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	return &Anthropic{
		inner:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		tracker: NewUsageTracker(),
	}, nil
}

// Tracker returns the cumulative usage tracker for this backend.
func (a *Anthropic) Tracker() *UsageTracker {
	return a.tracker
}

// Execute runs one task payload as a single Messages call and reports the
// usage the API measured.
func (a *Anthropic) Execute(ctx context.Context, spec Spec) (*Result, error) {
	model := a.model
	if spec.Model != "" {
		model = anthropic.Model(spec.Model)
	}
	maxTokens := spec.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	start := time.Now()
	resp, err := a.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(spec.Payload)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("execute task %s on %s: %w", spec.TaskID, spec.Provider, err)
	}

	a.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var output string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			output += variant.Text
		}
	}

	return &Result{
		Output:       output,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Duration:     time.Since(start),
	}, nil
}

// UsageTracker accumulates token usage across executions.
type UsageTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

// Add records usage from one execution.
func (t *UsageTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns cumulative input and output tokens.
func (t *UsageTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns how many executions were tracked.
func (t *UsageTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Reset clears the tracker.
func (t *UsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok = 0
	t.outputTok = 0
	t.calls = 0
}
