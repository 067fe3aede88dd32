/*
ledger.go - Leave validation and the days-off view

PURPOSE:
  Ordinary leave has one calendar rule beyond the working-day count: you
  cannot be off twice on the same day. A new leave may not cover a day that
  is already held by another pending or approved leave of the same employee.

DAY COUNT:
  TotalDays is the number of working days in [start, end]. Sundays and
  holidays inside a leave are free. A range with no working day is rejected.

WHAT IT CHECKS:
  1. Range is well-formed and the leave code is known
  2. Range spans at most MaxRangeDays calendar days
  3. At least one working day
  4. No working day already held by another active leave

QUERYING:
  DaysOff expands leave requests into per-day entries, e.g. for a team
  calendar or the employee's own schedule.

SEE ALSO:
  - swap.go, replace.go: the other two request kinds
  - entitlement.go: how approved leave is charged
*/
package timeoff

import (
	"fmt"
	"sort"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/workflow"
)

// MaxRangeDays bounds any single request range to one contract year.
const MaxRangeDays = 366

func checkRangeLength(field string, p generic.Period) error {
	if n := p.CalendarDays(); n > MaxRangeDays {
		return generic.NewValidationError(field, "%s spans %d days, at most %d are allowed", p, n, MaxRangeDays)
	}
	return nil
}

// LeaveInput is the caller's leave proposal.
type LeaveInput struct {
	Type  LeaveType
	Start generic.TimePoint
	End   generic.TimePoint
}

// ValidateLeave checks a leave proposal and returns the detail with its
// working-day count. existing is the requester's leave history; excludeID
// skips the request being edited.
func ValidateLeave(cal generic.Calendar, in LeaveInput, requesterID string, existing []*Request, excludeID string) (*LeaveDetail, generic.Amount, error) {
	if !in.Type.IsValid() {
		return nil, generic.Amount{}, generic.NewValidationError("leave_type", "unknown leave type %q", in.Type)
	}
	period, err := generic.NewPeriod(in.Start, in.End)
	if err != nil {
		return nil, generic.Amount{}, err
	}
	if err := checkRangeLength("period", period); err != nil {
		return nil, generic.Amount{}, err
	}
	days := cal.WorkingDays(period)
	if days == 0 {
		return nil, generic.Amount{}, generic.NewValidationError("period", "%s contains no working day", period)
	}

	if err := checkDayUniqueness(cal, period, requesterID, existing, excludeID); err != nil {
		return nil, generic.Amount{}, err
	}

	detail := &LeaveDetail{Type: in.Type, Start: period.Start, End: period.End}
	return detail, generic.DaysInt(days), nil
}

func checkDayUniqueness(cal generic.Calendar, period generic.Period, requesterID string, existing []*Request, excludeID string) error {
	for _, other := range existing {
		if other == nil || other.Kind != KindLeave || other.Leave == nil {
			continue
		}
		if other.ID == excludeID || other.RequesterID != requesterID || !other.ActiveOn() {
			continue
		}
		theirs := other.Leave.Period()
		if !period.Overlaps(theirs) {
			continue
		}
		for _, d := range period.Days() {
			if theirs.Contains(d) && cal.IsWorkingDay(d) {
				return &DuplicateDayError{
					EmployeeID: requesterID,
					Date:       d,
					LeaveType:  other.Leave.Type,
					RequestID:  other.ID,
					Status:     other.Status,
				}
			}
		}
	}
	return nil
}

// =============================================================================
// DAYS OFF VIEW
// =============================================================================

// DayOff is one working day covered by a leave request.
type DayOff struct {
	Date      generic.TimePoint `json:"date"`
	LeaveType LeaveType         `json:"leave_type"`
	Status    workflow.State    `json:"status"`
	RequestID string            `json:"request_id"`
	Reason    string            `json:"reason,omitempty"`
}

// DaysOff expands active leave requests into working days within window,
// ordered by date.
func DaysOff(cal generic.Calendar, requests []*Request, window generic.Period) []DayOff {
	var out []DayOff
	for _, r := range requests {
		if r == nil || r.Kind != KindLeave || r.Leave == nil || !r.ActiveOn() {
			continue
		}
		for _, d := range r.Leave.Period().Days() {
			if !window.Contains(d) || !cal.IsWorkingDay(d) {
				continue
			}
			out = append(out, DayOff{
				Date:      d,
				LeaveType: r.Leave.Type,
				Status:    r.Status,
				RequestID: r.ID,
				Reason:    r.Reason,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// DuplicateDayError is returned when a leave covers a day already held by
// another active leave.
type DuplicateDayError struct {
	EmployeeID string
	Date       generic.TimePoint
	LeaveType  LeaveType
	RequestID  string
	Status     workflow.State
}

func (e *DuplicateDayError) Error() string {
	return fmt.Sprintf("day already taken: %s is held as %s by request %s (%s)",
		e.Date, e.LeaveType, e.RequestID, e.Status)
}

func (e *DuplicateDayError) Unwrap() error { return generic.ErrValidation }
