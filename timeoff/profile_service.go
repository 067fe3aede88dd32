package timeoff

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// PROFILE SERVICE - Onboarding, contracts, balances
// =============================================================================

type ProfileService struct {
	Profiles ProfileStore
	Requests RequestStore
	Logger   *zap.Logger

	Now   func() time.Time
	NewID func() string
}

func NewProfileService(profiles ProfileStore, requests RequestStore) *ProfileService {
	return &ProfileService{
		Profiles: profiles,
		Requests: requests,
		Logger:   zap.NewNop(),
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

func (s *ProfileService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *ProfileService) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *ProfileService) Get(ctx context.Context, employeeID string) (*Profile, error) {
	return s.Profiles.GetProfile(ctx, employeeID)
}

// ProfileInput is the HR-managed part of a profile.
type ProfileInput struct {
	EmployeeID   string
	JoinDate     generic.TimePoint
	Approvers    workflow.Approvers
	ApprovalMode workflow.Mode

	// FirstContractStart defaults to the join date. Only used on creation.
	FirstContractStart generic.TimePoint
}

// Upsert onboards a new employee (with a first contract) or updates the
// approvers and mode of an existing one. The join date cannot change once
// contracts exist, since every accrual baseline is measured from it.
func (s *ProfileService) Upsert(ctx context.Context, in ProfileInput) (*Profile, error) {
	if in.ApprovalMode != "" && !in.ApprovalMode.IsValid() {
		return nil, generic.NewValidationError("approval_mode", "unknown approval mode %q", in.ApprovalMode)
	}

	_, err := s.Profiles.GetProfile(ctx, in.EmployeeID)
	switch {
	case generic.IsNotFound(err):
		return s.create(ctx, in)
	case err != nil:
		return nil, err
	}

	updated, err := s.Profiles.UpdateProfile(ctx, in.EmployeeID, func(p *Profile) (*Profile, error) {
		if !in.JoinDate.IsZero() && !in.JoinDate.Equal(p.JoinDate) && len(p.Contracts) > 0 {
			return nil, generic.NewValidationError("join_date",
				"cannot change join date of %s: %d contract(s) depend on it", p.EmployeeID, len(p.Contracts))
		}
		if !in.JoinDate.IsZero() {
			p.JoinDate = in.JoinDate
		}
		p.Approvers = in.Approvers
		p.ApprovalMode = in.ApprovalMode
		p.UpdatedAt = s.now()
		return p, p.Validate()
	})
	if err != nil {
		return nil, err
	}
	s.log().Info("profile updated", zap.String("employee_id", in.EmployeeID), zap.Int64("version", updated.Version))
	return updated, nil
}

func (s *ProfileService) create(ctx context.Context, in ProfileInput) (*Profile, error) {
	p := &Profile{
		EmployeeID:   in.EmployeeID,
		JoinDate:     in.JoinDate,
		Approvers:    in.Approvers,
		ApprovalMode: in.ApprovalMode,
		UpdatedAt:    s.now(),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p, err := OpenFirstContract(p, s.NewID(), in.FirstContractStart)
	if err != nil {
		return nil, err
	}
	if err := s.Profiles.CreateProfile(ctx, p); err != nil {
		return nil, err
	}
	s.log().Info("profile created",
		zap.String("employee_id", p.EmployeeID),
		zap.String("join_date", p.JoinDate.String()),
	)
	return p, nil
}

// RenewContract closes the current contract and opens the next one as a
// single atomic read-modify-write of the profile.
func (s *ProfileService) RenewContract(ctx context.Context, employeeID string, in RenewInput) (*RenewResult, error) {
	approved, err := s.approvedLeave(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	var result *RenewResult
	newID := s.NewID()
	at := s.now()
	_, err = s.Profiles.UpdateProfile(ctx, employeeID, func(p *Profile) (*Profile, error) {
		res, err := RenewContract(p, approved, in, newID, at)
		if err != nil {
			return nil, err
		}
		res.Profile.UpdatedAt = at
		// the cached sheet belongs to the closed contract
		res.Profile.BalancesCache = nil
		result = res
		return res.Profile, nil
	})
	if err != nil {
		return nil, err
	}

	s.log().Info("contract renewed",
		zap.String("employee_id", employeeID),
		zap.Int("closed_contract_no", result.Closed.ContractNo),
		zap.Int("opened_contract_no", result.Opened.ContractNo),
		zap.String("previous_remaining_al", result.PreviousRemaining.String()),
		zap.String("carry_in", result.Opened.CarryIn.String()),
	)
	return result, nil
}

// BalanceQuery parameterizes Balances.
type BalanceQuery struct {
	AsOf       generic.TimePoint
	ContractID string
	ContractNo int
	Strict     bool
}

// Balances computes the employee's balances on demand.
func (s *ProfileService) Balances(ctx context.Context, employeeID string, q BalanceQuery) (*BalanceSheet, error) {
	p, err := s.Profiles.GetProfile(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if q.AsOf.IsZero() {
		q.AsOf = generic.FromTime(s.now())
	}
	history, err := s.Requests.ListRequests(ctx, RequestFilter{RequesterID: employeeID, Kinds: []Kind{KindLeave}})
	if err != nil {
		return nil, fmt.Errorf("failed to load leave history: %w", err)
	}
	var approved, pending []*Request
	for _, r := range history {
		switch {
		case r.Status == workflow.StateApproved:
			approved = append(approved, r)
		case q.Strict && r.Status.IsPending():
			pending = append(pending, r)
		}
	}
	return Compute(p, approved, pending, ContractQuery{ContractID: q.ContractID, ContractNo: q.ContractNo, AsOf: q.AsOf})
}

// RefreshBalances recomputes the balances as of asOf and stores them as the
// profile's cache.
func (s *ProfileService) RefreshBalances(ctx context.Context, employeeID string, asOf generic.TimePoint) (*BalanceSheet, error) {
	approved, err := s.approvedLeave(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = generic.FromTime(s.now())
	}
	var sheet *BalanceSheet
	_, err = s.Profiles.UpdateProfile(ctx, employeeID, func(p *Profile) (*Profile, error) {
		bs, err := ComputeBalances(p, approved, asOf)
		if err != nil {
			return nil, err
		}
		p.BalancesCache = bs
		p.UpdatedAt = s.now()
		sheet = bs
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return sheet, nil
}

// RefreshAll refreshes every profile's cache. Failures are logged and
// counted; the sweep continues.
func (s *ProfileService) RefreshAll(ctx context.Context, asOf generic.TimePoint) (refreshed, failed int, err error) {
	profiles, err := s.Profiles.ListProfiles(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range profiles {
		if ctx.Err() != nil {
			return refreshed, failed, ctx.Err()
		}
		if _, err := s.RefreshBalances(ctx, p.EmployeeID, asOf); err != nil {
			failed++
			s.log().Warn("balance refresh failed", zap.String("employee_id", p.EmployeeID), zap.Error(err))
			continue
		}
		refreshed++
	}
	return refreshed, failed, nil
}

func (s *ProfileService) approvedLeave(ctx context.Context, employeeID string) ([]*Request, error) {
	rs, err := s.Requests.ListRequests(ctx, RequestFilter{
		RequesterID: employeeID,
		Kinds:       []Kind{KindLeave},
		Statuses:    []workflow.State{workflow.StateApproved},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load approved leave: %w", err)
	}
	return rs, nil
}
