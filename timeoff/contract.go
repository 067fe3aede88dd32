/*
contract.go - Contract selection and renewal

SELECTION (most to least specific):
  1. explicit contract ID or number
  2. the contract whose span contains the as-of date
  3. the contract starting on the profile's CurrentContractStart
  4. the contract with the latest start date

RENEWAL:
  RenewContract closes the current contract the day before the new start,
  computes the AL remaining at that closing date and carries only debt:

    carryIn = min(0, remainingAL)

  The new contract gets ContractNo = max+1 and an accrual baseline equal to
  the full months elapsed between join date and the new start, so AL
  accrual restarts at zero inside the new contract.

  RenewContract is pure. ProfileService commits its result through
  ProfileStore.UpdateProfile, which is one atomic read-modify-write.
*/
package timeoff

import (
	"fmt"
	"strconv"
	"time"

	"github.com/warp/leave-engine/generic"
)

// ContractQuery selects a contract. Zero fields are ignored.
type ContractQuery struct {
	ContractID string
	ContractNo int
	AsOf       generic.TimePoint
}

// SelectContract applies the selection policy. It fails with NotFoundError
// when an explicit contract is asked for and missing, or when the profile
// has no contracts at all.
func SelectContract(p *Profile, q ContractQuery) (Contract, error) {
	if q.ContractID != "" || q.ContractNo > 0 {
		for _, c := range p.Contracts {
			if (q.ContractID != "" && c.ID == q.ContractID) || (q.ContractID == "" && c.ContractNo == q.ContractNo) {
				return c, nil
			}
		}
		id := q.ContractID
		if id == "" {
			id = "#" + strconv.Itoa(q.ContractNo)
		}
		return Contract{}, &generic.NotFoundError{Kind: "contract", ID: id}
	}

	contracts := p.SortedContracts()
	if len(contracts) == 0 {
		return Contract{}, &generic.NotFoundError{Kind: "contract", ID: "for employee " + p.EmployeeID}
	}

	if !q.AsOf.IsZero() {
		for _, c := range contracts {
			if c.Covers(q.AsOf) {
				return c, nil
			}
		}
	}

	if !p.CurrentContractStart.IsZero() {
		for _, c := range contracts {
			if c.StartDate.Equal(p.CurrentContractStart) {
				return c, nil
			}
		}
	}

	return contracts[len(contracts)-1], nil
}

// effectiveContract is SelectContract with an implicit first contract
// starting at the join date for profiles that have none.
func effectiveContract(p *Profile, q ContractQuery) (Contract, error) {
	if len(p.Contracts) == 0 && q.ContractID == "" && q.ContractNo == 0 {
		return Contract{StartDate: p.JoinDate, CarryIn: generic.ZeroDays()}, nil
	}
	c, err := SelectContract(p, q)
	if err != nil {
		return Contract{}, err
	}
	if c.StartDate.IsZero() {
		c.StartDate = p.JoinDate
	}
	return c, nil
}

func (p *Profile) maxContractNo() int {
	n := 0
	for _, c := range p.Contracts {
		if c.ContractNo > n {
			n = c.ContractNo
		}
	}
	return n
}

// =============================================================================
// FIRST CONTRACT
// =============================================================================

// OpenFirstContract gives a profile without contracts its first contract,
// starting at start (or the join date when start is zero).
func OpenFirstContract(p *Profile, id string, start generic.TimePoint) (*Profile, error) {
	if len(p.Contracts) > 0 {
		return nil, generic.NewValidationError("contracts", "employee %s already has %d contract(s)", p.EmployeeID, len(p.Contracts))
	}
	if start.IsZero() {
		start = p.JoinDate
	}
	if start.Before(p.JoinDate) {
		return nil, generic.NewValidationError("start_date", "contract start %s is before join date %s", start, p.JoinDate)
	}
	next := p.Clone()
	next.Contracts = []Contract{{
		ID:              id,
		ContractNo:      1,
		StartDate:       start,
		CarryIn:         generic.ZeroDays(),
		AccrualBaseline: generic.FullMonthsBetween(p.JoinDate, start),
	}}
	next.CurrentContractStart = start
	return next, next.Validate()
}

// =============================================================================
// RENEWAL
// =============================================================================

// RenewInput describes the new contract. End may be zero (open-ended).
type RenewInput struct {
	Start generic.TimePoint
	End   generic.TimePoint
}

// RenewResult reports what a renewal did.
type RenewResult struct {
	Profile           *Profile
	Closed            Contract
	Opened            Contract
	PreviousRemaining generic.Amount
}

// RenewContract closes the current contract and opens the next one. approved
// is the employee's approved history; it is needed to compute the carry.
// The input profile is not modified.
func RenewContract(p *Profile, approved []*Request, in RenewInput, newID string, at time.Time) (*RenewResult, error) {
	if in.Start.IsZero() {
		return nil, generic.NewValidationError("start_date", "is required")
	}
	if !in.End.IsZero() && in.End.Before(in.Start) {
		return nil, generic.NewValidationError("end_date", "end %s is before start %s", in.End, in.Start)
	}
	if len(p.Contracts) == 0 {
		return nil, generic.NewValidationError("contracts", "employee %s has no contract to renew", p.EmployeeID)
	}

	current, err := SelectContract(p, ContractQuery{})
	if err != nil {
		return nil, err
	}
	if !in.Start.After(current.StartDate) {
		return nil, generic.NewValidationError("start_date",
			"new contract must start after contract %d (%s)", current.ContractNo, current.StartDate)
	}
	for _, c := range p.Contracts {
		if c.ContractNo != current.ContractNo && c.StartDate.AfterOrEqual(in.Start) {
			return nil, generic.NewValidationError("start_date",
				"contract %d already starts on or after %s", c.ContractNo, in.Start)
		}
	}

	closeOn := in.Start.AddDays(-1)
	if !current.IsOpen() && current.EndDate.Before(closeOn) {
		closeOn = current.EndDate
	}
	sheet, err := Compute(p, approved, nil, ContractQuery{ContractNo: current.ContractNo, AsOf: closeOn})
	if err != nil {
		return nil, fmt.Errorf("computing closing balance of contract %d: %w", current.ContractNo, err)
	}
	remaining := sheet.Remaining(LeaveAnnual)
	carry := remaining.Min(generic.ZeroDays())

	next := p.Clone()
	closedAt := at.UTC()
	var closed Contract
	for i := range next.Contracts {
		if next.Contracts[i].ContractNo == current.ContractNo {
			next.Contracts[i].EndDate = closeOn
			next.Contracts[i].ClosedAt = &closedAt
			closed = next.Contracts[i]
		}
	}

	opened := Contract{
		ID:              newID,
		ContractNo:      p.maxContractNo() + 1,
		StartDate:       in.Start,
		EndDate:         in.End,
		CarryIn:         carry,
		AccrualBaseline: generic.FullMonthsBetween(p.JoinDate, in.Start),
	}
	next.Contracts = append(next.Contracts, opened)
	next.CurrentContractStart = in.Start

	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &RenewResult{
		Profile:           next,
		Closed:            closed,
		Opened:            opened,
		PreviousRemaining: remaining,
	}, nil
}
