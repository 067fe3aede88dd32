package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// PROFILE STORE (timeoff.ProfileStore interface)
// =============================================================================

const profileColumns = `employee_id, join_date, manager_id, gm_id, coo_id, approval_mode,
	current_contract_start, balances_json, version, updated_at`

// GetProfile loads a profile with its contracts.
func (s *Store) GetProfile(ctx context.Context, employeeID string) (*timeoff.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadProfile(ctx, s.db, employeeID)
}

// CreateProfile inserts a new profile and its contracts.
func (s *Store) CreateProfile(ctx context.Context, p *timeoff.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM profiles WHERE employee_id = ?", p.EmployeeID).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			return generic.NewValidationError("employee_id", "profile %s already exists", p.EmployeeID)
		}

		balances, err := encodeBalances(p.BalancesCache)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO profiles (`+profileColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			p.EmployeeID, formatDate(p.JoinDate),
			p.Approvers.ManagerID, p.Approvers.GMID, p.Approvers.COOID,
			string(p.ApprovalMode), formatDate(p.CurrentContractStart),
			balances, formatTime(touch(p.UpdatedAt)),
		)
		if err != nil {
			return fmt.Errorf("failed to insert profile: %w", err)
		}
		if err := writeContracts(ctx, tx, p); err != nil {
			return err
		}
		p.Version = 1
		return nil
	})
}

// UpdateProfile is the atomic read-modify-write of one profile. The UPDATE
// is conditional on the version read at the start of the transaction.
func (s *Store) UpdateProfile(ctx context.Context, employeeID string, fn func(*timeoff.Profile) (*timeoff.Profile, error)) (*timeoff.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *timeoff.Profile
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := loadProfile(ctx, tx, employeeID)
		if err != nil {
			return err
		}
		readVersion := cur.Version

		next, err := fn(cur)
		if err != nil {
			return err
		}
		next.EmployeeID = employeeID

		balances, err := encodeBalances(next.BalancesCache)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE profiles SET
				join_date = ?, manager_id = ?, gm_id = ?, coo_id = ?, approval_mode = ?,
				current_contract_start = ?, balances_json = ?, version = version + 1, updated_at = ?
			WHERE employee_id = ? AND version = ?`,
			formatDate(next.JoinDate),
			next.Approvers.ManagerID, next.Approvers.GMID, next.Approvers.COOID,
			string(next.ApprovalMode), formatDate(next.CurrentContractStart),
			balances, formatTime(touch(next.UpdatedAt)),
			employeeID, readVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &generic.ConflictError{ID: employeeID, Expected: fmt.Sprintf("version %d", readVersion), Current: "modified"}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM contracts WHERE employee_id = ?", employeeID); err != nil {
			return fmt.Errorf("failed to replace contracts: %w", err)
		}
		if err := writeContracts(ctx, tx, next); err != nil {
			return err
		}
		next.Version = readVersion + 1
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListProfiles returns every profile ordered by employee ID.
func (s *Store) ListProfiles(ctx context.Context) ([]*timeoff.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT employee_id FROM profiles ORDER BY employee_id")
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	profiles := make([]*timeoff.Profile, 0, len(ids))
	for _, id := range ids {
		p, err := loadProfile(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func loadProfile(ctx context.Context, q querier, employeeID string) (*timeoff.Profile, error) {
	var (
		p                      timeoff.Profile
		joinDate, currentStart string
		mode, updatedAt        string
		balances               sql.NullString
	)
	err := q.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM profiles WHERE employee_id = ?", employeeID).Scan(
		&p.EmployeeID, &joinDate,
		&p.Approvers.ManagerID, &p.Approvers.GMID, &p.Approvers.COOID,
		&mode, &currentStart, &balances, &p.Version, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Kind: "profile", ID: employeeID}
	}
	if err != nil {
		return nil, err
	}

	if p.JoinDate, err = parseDate(joinDate); err != nil {
		return nil, err
	}
	if p.CurrentContractStart, err = parseDate(currentStart); err != nil {
		return nil, err
	}
	p.ApprovalMode = workflow.Mode(mode)
	p.UpdatedAt = parseTime(updatedAt)
	if balances.Valid && balances.String != "" {
		var bs timeoff.BalanceSheet
		if err := json.Unmarshal([]byte(balances.String), &bs); err != nil {
			return nil, fmt.Errorf("failed to decode balances of %s: %w", employeeID, err)
		}
		p.BalancesCache = &bs
	}

	p.Contracts, err = loadContracts(ctx, q, employeeID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func loadContracts(ctx context.Context, q querier, employeeID string) ([]timeoff.Contract, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, contract_no, start_date, end_date, closed_at, carry_in, accrual_baseline
		FROM contracts WHERE employee_id = ? ORDER BY start_date ASC`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contracts := []timeoff.Contract{}
	for rows.Next() {
		var (
			c                 timeoff.Contract
			start, end, carry string
			closedAt          sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.ContractNo, &start, &end, &closedAt, &carry, &c.AccrualBaseline); err != nil {
			return nil, err
		}
		if c.StartDate, err = parseDate(start); err != nil {
			return nil, err
		}
		if c.EndDate, err = parseDate(end); err != nil {
			return nil, err
		}
		if c.CarryIn, err = generic.ParseDays(carry); err != nil {
			return nil, err
		}
		if closedAt.Valid && closedAt.String != "" {
			t := parseTime(closedAt.String)
			c.ClosedAt = &t
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func writeContracts(ctx context.Context, tx *sql.Tx, p *timeoff.Profile) error {
	for _, c := range p.Contracts {
		var closedAt any
		if c.ClosedAt != nil {
			closedAt = formatTime(*c.ClosedAt)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contracts (id, employee_id, contract_no, start_date, end_date, closed_at, carry_in, accrual_baseline)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			contractID(p.EmployeeID, c), p.EmployeeID, c.ContractNo,
			formatDate(c.StartDate), formatDate(c.EndDate), closedAt,
			c.CarryIn.String(), c.AccrualBaseline,
		)
		if err != nil {
			return fmt.Errorf("failed to write contract %d: %w", c.ContractNo, err)
		}
	}
	return nil
}

func contractID(employeeID string, c timeoff.Contract) string {
	if c.ID != "" {
		return c.ID
	}
	return fmt.Sprintf("%s-contract-%d", employeeID, c.ContractNo)
}

func encodeBalances(bs *timeoff.BalanceSheet) (any, error) {
	if bs == nil {
		return nil, nil
	}
	b, err := json.Marshal(bs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode balances: %w", err)
	}
	return string(b), nil
}

// touch is used where a write has no caller-supplied timestamp.
func touch(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
