package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/taskweave/taskweave/pkg/models"
)

// CreateWorkflow persists a workflow with its tasks and dependency edges in
// one transaction.
func (db *DB) CreateWorkflow(w *models.Workflow) error {
	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO workflows (id, name, status, created_at)
			VALUES (?, ?, ?, ?)
		`, w.ID, w.Name, string(w.Status), formatTime(w.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert workflow: %w", err)
		}

		for _, t := range w.Tasks {
			if err := insertTask(tx, t); err != nil {
				return err
			}
		}

		for _, e := range w.Edges {
			_, err := tx.Exec(`
				INSERT INTO dependency_edges (workflow_id, dependent, prerequisite, edge_type)
				VALUES (?, ?, ?, ?)
			`, w.ID, e.Dependent, e.Prerequisite, string(e.Type))
			if err != nil {
				return fmt.Errorf("insert edge %s -> %s: %w", e.Prerequisite, e.Dependent, err)
			}
		}
		return nil
	})
}

func insertTask(tx *sql.Tx, t *models.Task) error {
	_, err := tx.Exec(`
		INSERT INTO tasks (id, workflow_id, name, type, payload, priority, status,
			provider, retry_count, error, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.WorkflowID, t.Name, string(t.Type), t.Payload, t.Priority,
		string(t.Status), t.Provider, t.RetryCount, t.Error,
		formatTime(t.CreatedAt), nullableTime(t.StartedAt), nullableTime(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.Name, err)
	}
	return nil
}

// GetWorkflow loads a workflow with its tasks and edges.
func (db *DB) GetWorkflow(id string) (*models.Workflow, error) {
	var w models.Workflow
	var status, createdAt string

	row := db.QueryRow(`SELECT id, name, status, created_at FROM workflows WHERE id = ?`, id)
	if err := row.Scan(&w.ID, &w.Name, &status, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("workflow %s not found", id)
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	w.Status = models.WorkflowStatus(status)
	if t, err := parseTime(createdAt); err == nil {
		w.CreatedAt = t
	}

	tasks, err := db.ListTasksByWorkflow(id)
	if err != nil {
		return nil, err
	}
	w.Tasks = tasks

	edges, err := db.listEdges(id)
	if err != nil {
		return nil, err
	}
	w.Edges = edges

	return &w, nil
}

// UpdateWorkflowStatus sets a workflow's rolled-up status.
func (db *DB) UpdateWorkflowStatus(id string, status models.WorkflowStatus) error {
	result, err := db.Exec(`UPDATE workflows SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update workflow status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("workflow %s not found", id)
	}
	return nil
}

// ListWorkflows returns all workflows, newest first, without their tasks.
func (db *DB) ListWorkflows() ([]models.Workflow, error) {
	rows, err := db.Query(`SELECT id, name, status, created_at FROM workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []models.Workflow
	for rows.Next() {
		var w models.Workflow
		var status, createdAt string
		if err := rows.Scan(&w.ID, &w.Name, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		w.Status = models.WorkflowStatus(status)
		if t, err := parseTime(createdAt); err == nil {
			w.CreatedAt = t
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (db *DB) listEdges(workflowID string) ([]models.DependencyEdge, error) {
	rows, err := db.Query(`
		SELECT workflow_id, dependent, prerequisite, edge_type
		FROM dependency_edges WHERE workflow_id = ?
		ORDER BY dependent, prerequisite
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var out []models.DependencyEdge
	for rows.Next() {
		var e models.DependencyEdge
		var edgeType string
		if err := rows.Scan(&e.WorkflowID, &e.Dependent, &e.Prerequisite, &edgeType); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Type = models.EdgeType(edgeType)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetTask loads a single task by ID.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(taskSelect+` WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("task %s not found", id)
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpdateTask persists a task's mutable fields.
func (db *DB) UpdateTask(t *models.Task) error {
	result, err := db.Exec(`
		UPDATE tasks SET status = ?, provider = ?, retry_count = ?, error = ?,
			started_at = ?, completed_at = ?
		WHERE id = ?
	`, string(t.Status), t.Provider, t.RetryCount, t.Error,
		nullableTime(t.StartedAt), nullableTime(t.CompletedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s not found", t.ID)
	}
	return nil
}

// ListTasksByWorkflow returns a workflow's tasks in creation order.
func (db *DB) ListTasksByWorkflow(workflowID string) ([]*models.Task, error) {
	rows, err := db.Query(taskSelect+` WHERE workflow_id = ? ORDER BY created_at, name`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const taskSelect = `
	SELECT id, workflow_id, name, type, payload, priority, status,
		provider, retry_count, error, created_at, started_at, completed_at
	FROM tasks`

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	var t models.Task
	var workflowID, payload, provider, errMsg sql.NullString
	var taskType, status, createdAt string
	var startedAt, completedAt sql.NullString

	err := s.Scan(&t.ID, &workflowID, &t.Name, &taskType, &payload, &t.Priority,
		&status, &provider, &t.RetryCount, &errMsg, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.WorkflowID = workflowID.String
	t.Type = models.TaskType(taskType)
	t.Payload = payload.String
	t.Status = models.TaskStatus(status)
	t.Provider = provider.String
	t.Error = errMsg.String
	if ts, err := parseTime(createdAt); err == nil {
		t.CreatedAt = ts
	}
	t.StartedAt = parseNullableTime(startedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

// PurgeOldWorkflows deletes terminal workflows older than the given age,
// along with their tasks and edges. Returns the number of workflows removed.
func (db *DB) PurgeOldWorkflows(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	var count int64
	err := db.Transaction(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			DELETE FROM workflows
			WHERE created_at < ? AND status IN ('completed', 'degraded', 'failed', 'cancelled')
		`, cutoff)
		if err != nil {
			return fmt.Errorf("purge workflows: %w", err)
		}
		count, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM tasks WHERE workflow_id NOT IN (SELECT id FROM workflows) AND workflow_id != ''`); err != nil {
			return fmt.Errorf("purge orphan tasks: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM dependency_edges WHERE workflow_id NOT IN (SELECT id FROM workflows)`); err != nil {
			return fmt.Errorf("purge orphan edges: %w", err)
		}
		return nil
	})
	return count, err
}
