/*
entitlement.go - Balance calculation

PURPOSE:
  Computes per-type leave balances for one employee as of a date, from the
  profile (join date, contracts) and the approved request history. Pure and
  deterministic: the same inputs always give the same BalanceSheet, so the
  result can be cached on the profile and recomputed at will.

ANNUAL LEAVE (AL):
  serviceYears     = fullMonths(join, asOf) / 12
  cap              = 18 + serviceYears / 3
  monthsInContract = fullMonths(join, asOf) - contract.AccrualBaseline
  accrued          = min(cap, monthsInContract * 1.5)
  remaining        = accrued + carryIn - (AL used + SP used)

  Remaining AL may go negative (borrowed). SP borrows against AL, so SP usage
  is charged to both the SP row and the AL row.

FIXED CAPS:
  SP 7, MC 90, MA 90 per contract year; remaining = max(0, cap - used).
  UL is unlimited and has no balance.

WINDOW:
  Usage is measured over the contract year of the selected contract that
  contains asOf. Contract years run from each anniversary of the contract
  start, and the last one of a closed contract stops at its end date.
  Requests count when their start date lies in the window. Accrual is not
  reset on an anniversary: it stays scoped to the contract and capped.

STRICT REMAINING:
  ComputeStrict additionally subtracts pending requests. It is a planning aid;
  Remaining is never affected by it.
*/
package timeoff

import (
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/workflow"
)

const (
	baseALCap         = 18
	capStepYears      = 3
	monthsPerYear     = 12
	monthlyAccrualStr = "1.5"
)

var monthlyAccrual = decimal.RequireFromString(monthlyAccrualStr)

// =============================================================================
// BALANCE SHEET
// =============================================================================

// BalanceItem is one leave code's row.
type BalanceItem struct {
	Code              LeaveType      `json:"leave_type_code"`
	YearlyEntitlement generic.Amount `json:"yearly_entitlement"`
	Used              generic.Amount `json:"used"`
	Pending           generic.Amount `json:"pending"`
	Remaining         generic.Amount `json:"remaining"`
	StrictRemaining   generic.Amount `json:"strict_remaining"`
	Unlimited         bool           `json:"unlimited,omitempty"`
}

// BalanceSheet is the full result of a balance computation.
type BalanceSheet struct {
	EmployeeID   string            `json:"employee_id"`
	AsOf         generic.TimePoint `json:"as_of"`
	ContractNo   int               `json:"contract_no"`
	Window       generic.Period    `json:"window"`
	ServiceYears int               `json:"service_years"`
	Cap          generic.Amount    `json:"al_cap"`
	Accrued      generic.Amount    `json:"al_accrued"`
	CarryIn      generic.Amount    `json:"al_carry_in"`
	Items        []BalanceItem     `json:"items"`
}

// Item returns the row for code.
func (bs *BalanceSheet) Item(code LeaveType) (BalanceItem, bool) {
	for _, it := range bs.Items {
		if it.Code == code {
			return it, true
		}
	}
	return BalanceItem{}, false
}

// Remaining is a shorthand for Item(code).Remaining.
func (bs *BalanceSheet) Remaining(code LeaveType) generic.Amount {
	it, _ := bs.Item(code)
	return it.Remaining
}

// =============================================================================
// ACCRUAL
// =============================================================================

// ServiceYears is the number of full years between join and asOf.
func ServiceYears(join, asOf generic.TimePoint) int {
	return generic.FullMonthsBetween(join, asOf) / monthsPerYear
}

// ALCap is the tenure-based AL cap: 18 plus one day per 3 full service years.
func ALCap(join, asOf generic.TimePoint) generic.Amount {
	return generic.DaysInt(baseALCap + ServiceYears(join, asOf)/capStepYears)
}

// AccruedAL is the AL credited in the contract whose baseline is given.
func AccruedAL(join generic.TimePoint, baseline int, asOf generic.TimePoint) generic.Amount {
	months := generic.FullMonthsBetween(join, asOf) - baseline
	if months < 0 {
		months = 0
	}
	accrued := generic.DaysInt(months).Mul(monthlyAccrual)
	return accrued.Min(ALCap(join, asOf))
}

// =============================================================================
// COMPUTE
// =============================================================================

// ComputeBalances computes balances as of asOf from approved history only.
func ComputeBalances(p *Profile, approved []*Request, asOf generic.TimePoint) (*BalanceSheet, error) {
	return Compute(p, approved, nil, ContractQuery{AsOf: asOf})
}

// ComputeStrict is ComputeBalances plus StrictRemaining net of pending requests.
func ComputeStrict(p *Profile, approved, pending []*Request, asOf generic.TimePoint) (*BalanceSheet, error) {
	return Compute(p, approved, pending, ContractQuery{AsOf: asOf})
}

// Compute is the general form: the contract is selected by q, and q.AsOf is
// the accrual date. Requests not belonging to the profile, not of kind LEAVE,
// or in the wrong status for their list are ignored.
func Compute(p *Profile, approved, pending []*Request, q ContractQuery) (*BalanceSheet, error) {
	if p == nil {
		return nil, generic.NewValidationError("profile", "is required")
	}
	if p.JoinDate.IsZero() {
		return nil, generic.NewValidationError("join_date", "is required for employee %s", p.EmployeeID)
	}
	asOf := q.AsOf
	if asOf.IsZero() {
		return nil, generic.NewValidationError("as_of", "is required")
	}

	contract, err := effectiveContract(p, q)
	if err != nil {
		return nil, err
	}
	window := contract.WindowAt(asOf)

	used := sumByType(p.EmployeeID, window, approved, func(s workflow.State) bool {
		return s == workflow.StateApproved
	})
	held := sumByType(p.EmployeeID, window, pending, workflow.State.IsPending)

	alCap := ALCap(p.JoinDate, asOf)
	accrued := AccruedAL(p.JoinDate, contract.AccrualBaseline, asOf)

	sheet := &BalanceSheet{
		EmployeeID:   p.EmployeeID,
		AsOf:         asOf,
		ContractNo:   contract.ContractNo,
		Window:       window,
		ServiceYears: ServiceYears(p.JoinDate, asOf),
		Cap:          alCap,
		Accrued:      accrued,
		CarryIn:      contract.CarryIn,
	}

	for _, code := range AllLeaveTypes() {
		item := BalanceItem{
			Code:    code,
			Used:    used[code],
			Pending: held[code],
		}
		switch code {
		case LeaveAnnual:
			alUsed := used[LeaveAnnual].Add(used[LeaveSpecial])
			alHeld := held[LeaveAnnual].Add(held[LeaveSpecial])
			item.YearlyEntitlement = alCap
			item.Used = alUsed
			item.Pending = alHeld
			item.Remaining = accrued.Add(contract.CarryIn).Sub(alUsed)
			item.StrictRemaining = item.Remaining.Sub(alHeld)
		case LeaveUnpaid:
			item.YearlyEntitlement = generic.ZeroDays()
			item.Remaining = generic.ZeroDays()
			item.StrictRemaining = generic.ZeroDays()
			item.Unlimited = true
		default:
			limit, _ := FixedCap(code)
			entitlement := generic.DaysInt(limit)
			item.YearlyEntitlement = entitlement
			item.Remaining = entitlement.Sub(item.Used).Max(generic.ZeroDays())
			item.StrictRemaining = item.Remaining.Sub(item.Pending).Max(generic.ZeroDays())
		}
		sheet.Items = append(sheet.Items, item)
	}
	return sheet, nil
}

func sumByType(employeeID string, window generic.Period, requests []*Request, keep func(workflow.State) bool) map[LeaveType]generic.Amount {
	sums := make(map[LeaveType]generic.Amount, len(AllLeaveTypes()))
	for _, code := range AllLeaveTypes() {
		sums[code] = generic.ZeroDays()
	}
	for _, r := range requests {
		if r == nil || r.Kind != KindLeave || r.Leave == nil {
			continue
		}
		if r.RequesterID != employeeID || !keep(r.Status) {
			continue
		}
		if !window.Contains(r.Leave.Start) {
			continue
		}
		if _, known := sums[r.Leave.Type]; !known {
			continue
		}
		sums[r.Leave.Type] = sums[r.Leave.Type].Add(r.TotalDays)
	}
	return sums
}
