package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/taskweave/taskweave/pkg/models"
)

// CreateConflict persists a newly detected conflict.
func (db *DB) CreateConflict(c *models.ResourceConflict) error {
	taskIDs, err := json.Marshal(c.TaskIDs)
	if err != nil {
		return fmt.Errorf("marshal task ids: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO conflicts (id, type, task_ids, provider_id, kind, status,
			strategy, outcome, detected_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, string(c.Type), string(taskIDs), c.ProviderID, string(c.Kind),
		string(c.Status), string(c.Strategy), c.Outcome,
		formatTime(c.DetectedAt), nullableTime(c.ResolvedAt))
	if err != nil {
		return fmt.Errorf("insert conflict %s: %w", c.ID, err)
	}
	return nil
}

// UpdateConflict persists a conflict's state machine progress and outcome.
func (db *DB) UpdateConflict(c *models.ResourceConflict) error {
	result, err := db.Exec(`
		UPDATE conflicts SET status = ?, strategy = ?, outcome = ?, resolved_at = ?
		WHERE id = ?
	`, string(c.Status), string(c.Strategy), c.Outcome, nullableTime(c.ResolvedAt), c.ID)
	if err != nil {
		return fmt.Errorf("update conflict %s: %w", c.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("conflict %s not found", c.ID)
	}
	return nil
}

// ListConflicts returns all conflicts, newest detection first.
func (db *DB) ListConflicts() ([]models.ResourceConflict, error) {
	rows, err := db.Query(`
		SELECT id, type, task_ids, provider_id, kind, status,
			strategy, outcome, detected_at, resolved_at
		FROM conflicts ORDER BY detected_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var out []models.ResourceConflict
	for rows.Next() {
		var c models.ResourceConflict
		var ctype, taskIDs, status, detectedAt string
		var providerID, kind, strategy, outcome sql.NullString
		var resolvedAt sql.NullString

		err := rows.Scan(&c.ID, &ctype, &taskIDs, &providerID, &kind, &status,
			&strategy, &outcome, &detectedAt, &resolvedAt)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}

		c.Type = models.ConflictType(ctype)
		c.ProviderID = providerID.String
		c.Kind = models.ResourceKind(kind.String)
		c.Status = models.ConflictStatus(status)
		c.Strategy = models.ResolutionStrategy(strategy.String)
		c.Outcome = outcome.String
		if err := json.Unmarshal([]byte(taskIDs), &c.TaskIDs); err != nil {
			return nil, fmt.Errorf("unmarshal task ids for conflict %s: %w", c.ID, err)
		}
		if t, err := parseTime(detectedAt); err == nil {
			c.DetectedAt = t
		}
		c.ResolvedAt = parseNullableTime(resolvedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}
