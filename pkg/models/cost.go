package models

import "time"

// CostRecord is one row of the append-only execution cost audit trail.
type CostRecord struct {
	// ID is the unique identifier for this record.
	ID string `json:"id"`
	// TaskID is the executed task.
	TaskID string `json:"task_id"`
	// Provider is the provider that executed the task.
	Provider string `json:"provider"`
	// Model is the model identifier used, if reported.
	Model string `json:"model,omitempty"`
	// InputTokens is the prompt token count reported by the backend.
	InputTokens int64 `json:"input_tokens"`
	// OutputTokens is the completion token count reported by the backend.
	OutputTokens int64 `json:"output_tokens"`
	// EstimatedCost is the dollar cost derived from token counts.
	EstimatedCost float64 `json:"estimated_cost"`
	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`
	// RecordedAt is when the record was appended.
	RecordedAt time.Time `json:"recorded_at"`
}

// TotalTokens returns input plus output tokens.
func (c CostRecord) TotalTokens() int64 {
	return c.InputTokens + c.OutputTokens
}
