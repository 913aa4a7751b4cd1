package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/taskweave/taskweave/pkg/models"
)

// CreateAllocation records a new active resource hold.
func (db *DB) CreateAllocation(a *models.ResourceAllocation) error {
	_, err := db.Exec(`
		INSERT INTO allocations (id, task_id, provider, kind, amount, status, allocated_at, released_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.TaskID, a.Provider, string(a.Kind), a.Amount,
		string(a.Status), formatTime(a.AllocatedAt), nullableTime(a.ReleasedAt))
	if err != nil {
		return fmt.Errorf("insert allocation %s: %w", a.ID, err)
	}
	return nil
}

// ReleaseAllocations marks every active allocation for a task as released.
func (db *DB) ReleaseAllocations(taskID string, at time.Time) error {
	_, err := db.Exec(`
		UPDATE allocations SET status = ?, released_at = ?
		WHERE task_id = ? AND status = ?
	`, string(models.AllocationReleased), formatTime(at),
		taskID, string(models.AllocationActive))
	if err != nil {
		return fmt.Errorf("release allocations for %s: %w", taskID, err)
	}
	return nil
}

// ListAllocationsByTask returns every allocation row for a task, oldest first.
func (db *DB) ListAllocationsByTask(taskID string) ([]models.ResourceAllocation, error) {
	rows, err := db.Query(`
		SELECT id, task_id, provider, kind, amount, status, allocated_at, released_at
		FROM allocations WHERE task_id = ? ORDER BY allocated_at, kind
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	var out []models.ResourceAllocation
	for rows.Next() {
		var a models.ResourceAllocation
		var provider, kind, status, allocatedAt string
		var releasedAt sql.NullString
		if err := rows.Scan(&a.ID, &a.TaskID, &provider, &kind, &a.Amount,
			&status, &allocatedAt, &releasedAt); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		a.Provider = provider
		a.Kind = models.ResourceKind(kind)
		a.Status = models.AllocationStatus(status)
		if t, err := parseTime(allocatedAt); err == nil {
			a.AllocatedAt = t
		}
		a.ReleasedAt = parseNullableTime(releasedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateReservation records a future time-bounded hold.
func (db *DB) CreateReservation(r *models.ResourceReservation) error {
	_, err := db.Exec(`
		INSERT INTO reservations (id, task_id, kind, amount, start_at, end_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.TaskID, string(r.Kind), r.Amount, formatTime(r.Start), formatTime(r.End))
	if err != nil {
		return fmt.Errorf("insert reservation %s: %w", r.ID, err)
	}
	return nil
}

// DeleteReservation removes a reservation, whether cancelled or expired.
func (db *DB) DeleteReservation(id string) error {
	_, err := db.Exec(`DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reservation %s: %w", id, err)
	}
	return nil
}

// ListReservations returns all stored reservations ordered by start time.
func (db *DB) ListReservations() ([]models.ResourceReservation, error) {
	rows, err := db.Query(`
		SELECT id, task_id, kind, amount, start_at, end_at
		FROM reservations ORDER BY start_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []models.ResourceReservation
	for rows.Next() {
		var r models.ResourceReservation
		var kind, start, end string
		if err := rows.Scan(&r.ID, &r.TaskID, &kind, &r.Amount, &start, &end); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		r.Kind = models.ResourceKind(kind)
		if t, err := parseTime(start); err == nil {
			r.Start = t
		}
		if t, err := parseTime(end); err == nil {
			r.End = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
