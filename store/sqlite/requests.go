package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// REQUEST STORE (timeoff.RequestStore interface)
// =============================================================================

const requestColumns = `id, kind, requester_id, approval_mode, status, manager_id, gm_id, coo_id,
	total_days, reason, detail_json, approvals_json, created_at, updated_at`

// CreateRequest inserts a new request.
func (s *Store) CreateRequest(ctx context.Context, r *timeoff.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	detail, err := encodeDetail(r)
	if err != nil {
		return err
	}
	approvals, err := encodeApprovals(r.Approvals)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.RequesterID, string(r.Mode), string(r.Status),
		r.Approvers.ManagerID, r.Approvers.GMID, r.Approvers.COOID,
		r.TotalDays.String(), r.Reason, detail, approvals,
		formatTime(touch(r.CreatedAt)), formatTime(touch(r.UpdatedAt)),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return generic.NewValidationError("id", "request %s already exists", r.ID)
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

// GetRequest loads one request.
func (s *Store) GetRequest(ctx context.Context, id string) (*timeoff.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequest(ctx, s.db, id)
}

// ListRequests returns matching requests ordered by creation time.
func (s *Store) ListRequests(ctx context.Context, f timeoff.RequestFilter) ([]*timeoff.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.RequesterID != "" {
		where = append(where, "requester_id = ?")
		args = append(args, f.RequesterID)
	}
	if f.ApproverID != "" {
		where = append(where, "(manager_id = ? OR gm_id = ? OR coo_id = ?)")
		args = append(args, f.ApproverID, f.ApproverID, f.ApproverID)
	}
	if len(f.Kinds) > 0 {
		where = append(where, "kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, string(k))
		}
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}

	query := "SELECT " + requestColumns + " FROM requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*timeoff.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// TryTransition is the concurrency guard: one conditional UPDATE per
// decision. See the package documentation.
func (s *Store) TryTransition(ctx context.Context, id string, g timeoff.Guard, mutate func(*timeoff.Request) error) (*timeoff.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identityColumn, err := guardColumn(g)
	if err != nil {
		return nil, err
	}

	var result *timeoff.Request
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := getRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := g.Check(cur); err != nil {
			return err
		}

		next := cur.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		detail, err := encodeDetail(next)
		if err != nil {
			return err
		}
		approvals, err := encodeApprovals(next.Approvals)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE requests SET
				status = ?, total_days = ?, reason = ?, detail_json = ?, approvals_json = ?,
				version = version + 1, updated_at = ?
			WHERE id = ? AND status = ? AND `+identityColumn+` = ?`,
			string(next.Status), next.TotalDays.String(), next.Reason, detail, approvals,
			formatTime(touch(next.UpdatedAt)),
			id, string(g.Expected), g.ActorID,
		)
		if err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			fresh, err := getRequest(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := g.Check(fresh); err != nil {
				return err
			}
			return &generic.ConflictError{ID: id, Expected: string(g.Expected), Current: string(fresh.Status)}
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// guardColumn maps a guard to the identity column it conditions on.
func guardColumn(g timeoff.Guard) (string, error) {
	if g.AsRequester {
		return "requester_id", nil
	}
	switch g.Level {
	case workflow.LevelManager:
		return "manager_id", nil
	case workflow.LevelGM:
		return "gm_id", nil
	case workflow.LevelCOO:
		return "coo_id", nil
	}
	return "", generic.NewValidationError("level", "unknown level %q", g.Level)
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func getRequest(ctx context.Context, q querier, id string) (*timeoff.Request, error) {
	row := q.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = ?", id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "request", ID: id}
	}
	return r, err
}

func scanRequest(row scanner) (*timeoff.Request, error) {
	var (
		r                    timeoff.Request
		kind, mode, status   string
		totalDays            string
		reason               sql.NullString
		detail, approvals    string
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&r.ID, &kind, &r.RequesterID, &mode, &status,
		&r.Approvers.ManagerID, &r.Approvers.GMID, &r.Approvers.COOID,
		&totalDays, &reason, &detail, &approvals, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	r.Kind = timeoff.Kind(kind)
	r.Mode = workflow.Mode(mode)
	r.Status = workflow.State(status)
	r.Reason = reason.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)

	var err error
	if r.TotalDays, err = generic.ParseDays(totalDays); err != nil {
		return nil, err
	}
	if err := decodeDetail(&r, detail); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(approvals), &r.Approvals); err != nil {
		return nil, fmt.Errorf("failed to decode approvals of %s: %w", r.ID, err)
	}
	return &r, nil
}

func encodeDetail(r *timeoff.Request) (string, error) {
	var v any
	switch r.Kind {
	case timeoff.KindLeave:
		v = r.Leave
	case timeoff.KindSwap:
		v = r.Swap
	case timeoff.KindReplace:
		v = r.Replace
	default:
		return "", generic.NewValidationError("kind", "unknown request kind %q", r.Kind)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s detail: %w", r.Kind, err)
	}
	return string(b), nil
}

func decodeDetail(r *timeoff.Request, raw string) error {
	var err error
	switch r.Kind {
	case timeoff.KindLeave:
		r.Leave = &timeoff.LeaveDetail{}
		err = json.Unmarshal([]byte(raw), r.Leave)
	case timeoff.KindSwap:
		r.Swap = &timeoff.SwapDetail{}
		err = json.Unmarshal([]byte(raw), r.Swap)
	case timeoff.KindReplace:
		r.Replace = &timeoff.ReplaceDetail{}
		err = json.Unmarshal([]byte(raw), r.Replace)
	default:
		return fmt.Errorf("request %s has unknown kind %q", r.ID, r.Kind)
	}
	if err != nil {
		return fmt.Errorf("failed to decode detail of %s: %w", r.ID, err)
	}
	return nil
}

func encodeApprovals(as workflow.Approvals) (string, error) {
	if as == nil {
		as = workflow.Approvals{}
	}
	b, err := json.Marshal(as)
	if err != nil {
		return "", fmt.Errorf("failed to encode approvals: %w", err)
	}
	return string(b), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
