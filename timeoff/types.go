/*
Package timeoff implements staff leave on top of the generic calendar and the
workflow state machine.

KEY CONCEPTS:
  - Profile:   an employee's join date, approvers, approval mode and contracts
  - Contract:  one employment contract; owns the AL accrual baseline and carry-in
  - Request:   leave, swap-working-day or replace-day; all share one approval
               workflow (see workflow package)
  - Balances:  computed on demand from profile + approved history

SEE ALSO:
  - entitlement.go: the balance calculation
  - contract.go:    contract selection and renewal
  - swap.go, replace.go: date-range validators
  - service.go:     request lifecycle
*/
package timeoff

import (
	"fmt"
	"sort"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

// LeaveType is a leave code.
type LeaveType string

const (
	LeaveAnnual    LeaveType = "AL"
	LeaveSpecial   LeaveType = "SP" // borrows against AL
	LeaveMedical   LeaveType = "MC"
	LeaveMaternity LeaveType = "MA"
	LeaveUnpaid    LeaveType = "UL"
)

// AllLeaveTypes returns the leave codes in display order.
func AllLeaveTypes() []LeaveType {
	return []LeaveType{LeaveAnnual, LeaveSpecial, LeaveMedical, LeaveMaternity, LeaveUnpaid}
}

func (lt LeaveType) IsValid() bool {
	for _, t := range AllLeaveTypes() {
		if lt == t {
			return true
		}
	}
	return false
}

// Fixed yearly caps. AL is tenure based, see ALCap.
var fixedCaps = map[LeaveType]int{
	LeaveSpecial:   7,
	LeaveMedical:   90,
	LeaveMaternity: 90,
}

// FixedCap returns the yearly cap for SP, MC and MA.
func FixedCap(lt LeaveType) (int, bool) {
	c, ok := fixedCaps[lt]
	return c, ok
}

// =============================================================================
// CONTRACT
// =============================================================================

// Contract is one employment contract. An open contract has a zero EndDate.
type Contract struct {
	ID         string            `json:"id"`
	ContractNo int               `json:"contract_no"`
	StartDate  generic.TimePoint `json:"start_date"`
	EndDate    generic.TimePoint `json:"end_date,omitempty"`
	ClosedAt   *time.Time        `json:"closed_at,omitempty"`

	// CarryIn is the AL debt brought from the previous contract. Never positive.
	CarryIn generic.Amount `json:"carry_in"`

	// AccrualBaseline is the number of full months since the join date that
	// were already credited when this contract started.
	AccrualBaseline int `json:"accrual_baseline"`
}

func (c Contract) IsOpen() bool { return c.EndDate.IsZero() }

// Covers reports whether d falls within the contract's date span.
func (c Contract) Covers(d generic.TimePoint) bool {
	if d.Before(c.StartDate) {
		return false
	}
	return c.IsOpen() || d.BeforeOrEqual(c.EndDate)
}

// WindowAt is the contract-year window containing asOf, used to measure
// yearly usage. Years restart on each anniversary of StartDate; a closed
// contract's last window ends at EndDate.
func (c Contract) WindowAt(asOf generic.TimePoint) generic.Period {
	if !c.IsOpen() && asOf.After(c.EndDate) {
		asOf = c.EndDate
	}
	w := generic.ContractYearAt(c.StartDate, asOf)
	if !c.IsOpen() && w.End.After(c.EndDate) {
		w.End = c.EndDate
	}
	return w
}

// =============================================================================
// PROFILE
// =============================================================================

// Profile is the HR record the engine works from.
type Profile struct {
	EmployeeID string             `json:"employee_id"`
	JoinDate   generic.TimePoint  `json:"join_date"`
	Approvers  workflow.Approvers `json:"approvers"`

	// ApprovalMode overrides the configured default when set.
	ApprovalMode workflow.Mode `json:"approval_mode,omitempty"`

	CurrentContractStart generic.TimePoint `json:"current_contract_start,omitempty"`
	Contracts            []Contract        `json:"contracts"`
	BalancesCache        *BalanceSheet     `json:"balances_cache,omitempty"`

	// Version increases on every committed write.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the profile's own invariants.
func (p *Profile) Validate() error {
	if p.EmployeeID == "" {
		return generic.NewValidationError("employee_id", "is required")
	}
	if p.JoinDate.IsZero() {
		return generic.NewValidationError("join_date", "is required")
	}
	if p.ApprovalMode != "" && !p.ApprovalMode.IsValid() {
		return generic.NewValidationError("approval_mode", "unknown approval mode %q", p.ApprovalMode)
	}

	contracts := p.SortedContracts()
	seen := make(map[int]bool, len(contracts))
	for i, c := range contracts {
		if seen[c.ContractNo] {
			return generic.NewValidationError("contracts", "duplicate contract number %d", c.ContractNo)
		}
		seen[c.ContractNo] = true
		if c.CarryIn.IsPositive() {
			return generic.NewValidationError("contracts", "contract %d has positive carry-in %s", c.ContractNo, c.CarryIn)
		}
		if !c.IsOpen() && c.EndDate.Before(c.StartDate) {
			return generic.NewValidationError("contracts", "contract %d ends before it starts", c.ContractNo)
		}
		if i == 0 {
			continue
		}
		prev := contracts[i-1]
		if prev.IsOpen() || !prev.EndDate.Before(c.StartDate) {
			return generic.NewValidationError("contracts",
				"contract %d overlaps contract %d", c.ContractNo, prev.ContractNo)
		}
	}
	return nil
}

// SortedContracts returns a copy of the contracts ordered by start date.
func (p *Profile) SortedContracts() []Contract {
	out := make([]Contract, len(p.Contracts))
	copy(out, p.Contracts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out
}

// OpenContract returns the contract without an end date, if any.
func (p *Profile) OpenContract() (Contract, bool) {
	for _, c := range p.Contracts {
		if c.IsOpen() {
			return c, true
		}
	}
	return Contract{}, false
}

// ResolveMode returns the profile's mode, or fallback when unset.
func (p *Profile) ResolveMode(fallback workflow.Mode) (workflow.Mode, error) {
	m := p.ApprovalMode
	if m == "" {
		m = fallback
	}
	if !m.IsValid() {
		return "", generic.NewValidationError("approval_mode", "no valid approval mode for employee %s", p.EmployeeID)
	}
	return m, nil
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Contracts = make([]Contract, len(p.Contracts))
	for i, ct := range p.Contracts {
		if ct.ClosedAt != nil {
			at := *ct.ClosedAt
			ct.ClosedAt = &at
		}
		c.Contracts[i] = ct
	}
	if p.BalancesCache != nil {
		bs := *p.BalancesCache
		bs.Items = append([]BalanceItem(nil), p.BalancesCache.Items...)
		c.BalancesCache = &bs
	}
	return &c
}

func (p *Profile) String() string {
	return fmt.Sprintf("Profile(%s, joined %s, %d contracts)", p.EmployeeID, p.JoinDate, len(p.Contracts))
}
