package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/taskweave/taskweave/pkg/models"
)

// AppendCost adds one row to the append-only cost audit trail. Rows are
// never updated or deleted.
func (db *DB) AppendCost(c *models.CostRecord) error {
	_, err := db.Exec(`
		INSERT INTO cost_records (id, task_id, provider, model,
			input_tokens, output_tokens, estimated_cost, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.TaskID, c.Provider, c.Model, c.InputTokens, c.OutputTokens,
		c.EstimatedCost, c.Duration.Milliseconds(), formatTime(c.RecordedAt))
	if err != nil {
		return fmt.Errorf("append cost record %s: %w", c.ID, err)
	}
	return nil
}

// ListCostsByTask returns the cost rows for one task in recording order.
func (db *DB) ListCostsByTask(taskID string) ([]models.CostRecord, error) {
	return db.listCosts(`WHERE task_id = ?`, taskID)
}

// ListCostsByProvider returns the cost rows for one provider in recording order.
func (db *DB) ListCostsByProvider(provider string) ([]models.CostRecord, error) {
	return db.listCosts(`WHERE provider = ?`, provider)
}

func (db *DB) listCosts(where string, args ...any) ([]models.CostRecord, error) {
	rows, err := db.Query(`
		SELECT id, task_id, provider, model, input_tokens, output_tokens,
			estimated_cost, duration_ms, recorded_at
		FROM cost_records `+where+` ORDER BY recorded_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list cost records: %w", err)
	}
	defer rows.Close()

	var out []models.CostRecord
	for rows.Next() {
		var c models.CostRecord
		var model sql.NullString
		var durationMs int64
		var recordedAt string
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Provider, &model,
			&c.InputTokens, &c.OutputTokens, &c.EstimatedCost, &durationMs, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan cost record: %w", err)
		}
		c.Model = model.String
		c.Duration = time.Duration(durationMs) * time.Millisecond
		if t, err := parseTime(recordedAt); err == nil {
			c.RecordedAt = t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CostSummary aggregates the audit trail per provider.
type CostSummary struct {
	// Provider is the provider the row aggregates.
	Provider string
	// Executions is the number of recorded executions.
	Executions int64
	// TotalTokens is input plus output tokens across executions.
	TotalTokens int64
	// TotalCost is the summed estimated dollar cost.
	TotalCost float64
}

// SummarizeCosts rolls up the audit trail per provider, ordered by cost
// descending.
func (db *DB) SummarizeCosts() ([]CostSummary, error) {
	rows, err := db.Query(`
		SELECT provider, COUNT(*), SUM(input_tokens + output_tokens), SUM(estimated_cost)
		FROM cost_records GROUP BY provider ORDER BY SUM(estimated_cost) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("summarize costs: %w", err)
	}
	defer rows.Close()

	var out []CostSummary
	for rows.Next() {
		var s CostSummary
		if err := rows.Scan(&s.Provider, &s.Executions, &s.TotalTokens, &s.TotalCost); err != nil {
			return nil, fmt.Errorf("scan cost summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
