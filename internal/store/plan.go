package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/taskweave/taskweave/pkg/models"
)

// CreatePlan persists a new immutable plan version. Subtasks, warnings, and
// recommendations are stored as JSON; they are read back whole, never queried.
func (db *DB) CreatePlan(p *models.ExecutionPlan) error {
	subtasks, err := json.Marshal(p.Subtasks)
	if err != nil {
		return fmt.Errorf("marshal subtasks: %w", err)
	}
	warnings, err := json.Marshal(p.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	recs, err := json.Marshal(p.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO plans (id, task_id, version, strategy, subtasks,
			estimated_cost, estimated_seconds, warnings, recommendations, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.TaskID, p.Version, string(p.Strategy), string(subtasks),
		p.EstimatedCost, p.EstimatedSeconds, string(warnings), string(recs),
		string(p.Status), formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert plan %s v%d: %w", p.TaskID, p.Version, err)
	}
	return nil
}

// UpdatePlanStatus sets a plan version's rolled-up status. All other plan
// fields are immutable once written.
func (db *DB) UpdatePlanStatus(id string, status models.PlanStatus) error {
	result, err := db.Exec(`UPDATE plans SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update plan status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("plan %s not found", id)
	}
	return nil
}

// ListPlansByTask returns every plan version for a task, oldest first.
func (db *DB) ListPlansByTask(taskID string) ([]models.ExecutionPlan, error) {
	rows, err := db.Query(planSelect+` WHERE task_id = ? ORDER BY version`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []models.ExecutionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// LatestPlanByTask returns the highest plan version for a task.
func (db *DB) LatestPlanByTask(taskID string) (*models.ExecutionPlan, error) {
	row := db.QueryRow(planSelect+` WHERE task_id = ? ORDER BY version DESC LIMIT 1`, taskID)
	p, err := scanPlan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no plan for task %s", taskID)
		}
		return nil, err
	}
	return p, nil
}

const planSelect = `
	SELECT id, task_id, version, strategy, subtasks,
		estimated_cost, estimated_seconds, warnings, recommendations, status, created_at
	FROM plans`

func scanPlan(s scanner) (*models.ExecutionPlan, error) {
	var p models.ExecutionPlan
	var strategy, subtasks, status, createdAt string
	var warnings, recs sql.NullString

	err := s.Scan(&p.ID, &p.TaskID, &p.Version, &strategy, &subtasks,
		&p.EstimatedCost, &p.EstimatedSeconds, &warnings, &recs, &status, &createdAt)
	if err != nil {
		return nil, err
	}

	p.Strategy = models.Strategy(strategy)
	p.Status = models.PlanStatus(status)
	if err := json.Unmarshal([]byte(subtasks), &p.Subtasks); err != nil {
		return nil, fmt.Errorf("unmarshal subtasks for plan %s: %w", p.ID, err)
	}
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &p.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings for plan %s: %w", p.ID, err)
		}
	}
	if recs.Valid && recs.String != "" {
		if err := json.Unmarshal([]byte(recs.String), &p.Recommendations); err != nil {
			return nil, fmt.Errorf("unmarshal recommendations for plan %s: %w", p.ID, err)
		}
	}
	if t, err := parseTime(createdAt); err == nil {
		p.CreatedAt = t
	}
	return &p, nil
}
