package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// DIRECTORY (timeoff.Directory interface)
// =============================================================================

// SaveEmployee adds or updates a directory entry.
func (s *Store) SaveEmployee(ctx context.Context, e timeoff.DirectoryEntry) error {
	if e.EmployeeID == "" || strings.TrimSpace(e.Name) == "" {
		return generic.NewValidationError("employee", "id and name are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, department, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			department = excluded.department
	`
	_, err := s.db.ExecContext(ctx, query,
		e.EmployeeID, e.Name, e.Department,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Lookup returns the directory entry of an employee.
func (s *Store) Lookup(ctx context.Context, employeeID string) (timeoff.DirectoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := timeoff.DirectoryEntry{EmployeeID: employeeID}
	err := s.db.QueryRowContext(ctx,
		"SELECT name, department FROM employees WHERE id = ?",
		employeeID,
	).Scan(&e.Name, &e.Department)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return timeoff.DirectoryEntry{}, &generic.NotFoundError{Kind: "employee", ID: employeeID}
		}
		return timeoff.DirectoryEntry{}, err
	}
	return e, nil
}
