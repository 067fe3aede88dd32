package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// HOLIDAY CALENDAR IMPLEMENTATION
// =============================================================================

// AddHoliday saves a holiday. A holiday with the same date and name is a
// validation error.
func (s *Store) AddHoliday(ctx context.Context, h generic.Holiday) error {
	if h.ID == "" || h.Date.IsZero() || strings.TrimSpace(h.Name) == "" {
		return generic.NewValidationError("holiday", "id, date and name are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		h.ID,
		formatDate(h.Date),
		h.Name,
		h.Recurring,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return generic.NewValidationError("holiday", "%s on %s already exists", h.Name, h.Date)
	}
	return err
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Kind: "holiday", ID: id}
	}
	return nil
}

// IsHoliday checks if a date is a one-off holiday, or falls on the month/day
// of a recurring one. A failed lookup is logged and reported as a working day.
func (s *Store) IsHoliday(date generic.TimePoint) bool {
	holiday, err := s.HolidayOn(context.Background(), date)
	if err != nil {
		s.log().Error("Holiday lookup failed, treating day as working",
			zap.String("date", date.String()),
			zap.Error(err),
		)
		return false
	}
	return holiday
}

// HolidayOn is IsHoliday with the lookup error returned.
func (s *Store) HolidayOn(ctx context.Context, date generic.TimePoint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT COUNT(*) FROM holidays
		WHERE (recurring = FALSE AND date = ?)
		   OR (recurring = TRUE AND strftime('%m-%d', date) = ?)
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, formatDate(date), date.Time.Format("01-02")).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up holiday on %s: %w", date, err)
	}
	return count > 0, nil
}

// ListHolidays returns all holidays (for admin UI).
func (s *Store) ListHolidays(ctx context.Context) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, name, recurring
		FROM holidays
		ORDER BY date ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	holidays := []generic.Holiday{}
	for rows.Next() {
		var h generic.Holiday
		var dateStr string
		if err := rows.Scan(&h.ID, &dateStr, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		if h.Date, err = parseDate(dateStr); err != nil {
			return nil, err
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}
