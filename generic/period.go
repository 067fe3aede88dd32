package generic

import "fmt"

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is the inclusive range [Start, End].
//
// Examples:
//   - A leave request: 2025-03-10 .. 2025-03-14
//   - A contract-year window: contract start .. start + 1y - 1d
type Period struct {
	Start TimePoint `json:"start"`
	End   TimePoint `json:"end"`
}

// NewPeriod validates and builds a period.
func NewPeriod(start, end TimePoint) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// SingleDay is the one-day period [d, d].
func SingleDay(d TimePoint) Period { return Period{Start: d, End: d} }

// ContractYear returns the one-year window starting at start.
func ContractYear(start TimePoint) Period {
	return Period{Start: start, End: start.AddYears(1).AddDays(-1)}
}

// ContractYearAt returns the contract-year window that contains asOf, where
// years run from each anniversary of start. Dates before start fall in the
// first year.
func ContractYearAt(start, asOf TimePoint) Period {
	k := asOf.Year() - start.Year()
	if k > 0 && start.AddYears(k).After(asOf) {
		k--
	}
	if k < 0 {
		k = 0
	}
	return Period{Start: start.AddYears(k), End: start.AddYears(k + 1).AddDays(-1)}
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return &ValidationError{Field: "period", Message: "start and end dates are required"}
	}
	if p.End.Before(p.Start) {
		return &ValidationError{Field: "period", Message: fmt.Sprintf("end %s is before start %s", p.End, p.Start)}
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps reports whether the two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// CalendarDays is the inclusive day count.
func (p Period) CalendarDays() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
