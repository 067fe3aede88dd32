/*
time.go - Calendar dates and the working-day oracle

PURPOSE:
  Leave law in this system is expressed in whole calendar days. TimePoint is
  a day-granular date (always UTC midnight) and Calendar answers the one
  question every other component asks: "is this a working day?"

WORKING DAY:
  A working day is any calendar day that is NOT a Sunday and NOT a holiday.
  Saturday is a working day. Calendar is the single source of truth for
  this rule: accrual, leave day counts, swap validation and replace
  validation all go through it.

HOLIDAY SOURCES:
  - HolidaySet:    static set (config file, tests)
  - store/sqlite:  persisted holidays table (one-off and recurring)
  - store/memory:  in-memory admin-managed holidays

SEE ALSO:
  - period.go: Period and contract-year windows
  - timeoff/swap.go, timeoff/replace.go: validators built on Calendar
*/
package generic

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DateLayout is the wire and storage format for dates.
const DateLayout = "2006-01-02"

// =============================================================================
// TIME POINT - A calendar day
// =============================================================================

// TimePoint is a calendar day. The zero value means "no date".
type TimePoint struct {
	Time time.Time
}

// NewTimePoint returns the given day at UTC midnight.
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime truncates t to its calendar day, keeping t's wall-clock date.
func FromTime(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return TimePoint{}, &ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q (use YYYY-MM-DD)", s)}
	}
	return FromTime(t), nil
}

// MustParseDate is ParseDate for constants and tests.
func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

func Today() TimePoint { return FromTime(time.Now()) }

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.day().Before(other.day()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.day().Equal(other.day()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.day().After(other.day()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) day() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return TimePoint{Time: tp.day().AddDate(0, 0, n)} }
func (tp TimePoint) AddMonths(n int) TimePoint { return TimePoint{Time: tp.day().AddDate(0, n, 0)} }
func (tp TimePoint) AddYears(n int) TimePoint  { return TimePoint{Time: tp.day().AddDate(n, 0, 0)} }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsSunday() bool        { return tp.Weekday() == time.Sunday }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	if tp.IsZero() {
		return ""
	}
	return tp.Time.Format(DateLayout)
}

// MarshalText implements encoding.TextMarshaler so dates travel as YYYY-MM-DD.
func (tp TimePoint) MarshalText() ([]byte, error) {
	return []byte(tp.String()), nil
}

func (tp *TimePoint) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*tp = TimePoint{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// DaysBetween returns the signed number of days from -> to, exact even for
// spans longer than a time.Duration can hold.
func DaysBetween(from, to TimePoint) int {
	return int((to.day().Unix() - from.day().Unix()) / 86400)
}

// FullMonthsBetween counts whole months elapsed from -> to.
// A month is complete once the day-of-month of `from` is reached again,
// so 2022-01-15 -> 2022-02-15 is one month and 2022-01-15 -> 2022-02-14 is zero.
// Returns 0 when to is before from.
func FullMonthsBetween(from, to TimePoint) int {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// Holiday is an organization-wide non-working day.
type Holiday struct {
	ID        string    `json:"id"`
	Date      TimePoint `json:"date"`
	Name      string    `json:"name"`
	Recurring bool      `json:"recurring"` // same month/day every year
}

// HolidayCalendar answers holiday lookups.
type HolidayCalendar interface {
	IsHoliday(date TimePoint) bool
}

// HolidaySet is a static, concurrency-safe HolidayCalendar.
type HolidaySet struct {
	mu        sync.RWMutex
	dates     map[string]struct{}
	recurring map[string]struct{} // "01-02"
}

func NewHolidaySet(holidays ...Holiday) *HolidaySet {
	hs := &HolidaySet{
		dates:     make(map[string]struct{}),
		recurring: make(map[string]struct{}),
	}
	for _, h := range holidays {
		hs.Add(h)
	}
	return hs
}

func (hs *HolidaySet) Add(h Holiday) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if h.Recurring {
		hs.recurring[h.Date.Time.Format("01-02")] = struct{}{}
		return
	}
	hs.dates[h.Date.String()] = struct{}{}
}

// Reset replaces the whole set.
func (hs *HolidaySet) Reset(holidays ...Holiday) {
	dates := make(map[string]struct{}, len(holidays))
	recurring := make(map[string]struct{})
	for _, h := range holidays {
		if h.Recurring {
			recurring[h.Date.Time.Format("01-02")] = struct{}{}
			continue
		}
		dates[h.Date.String()] = struct{}{}
	}
	hs.mu.Lock()
	hs.dates, hs.recurring = dates, recurring
	hs.mu.Unlock()
}

func (hs *HolidaySet) IsHoliday(date TimePoint) bool {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	if _, ok := hs.dates[date.String()]; ok {
		return true
	}
	_, ok := hs.recurring[date.Time.Format("01-02")]
	return ok
}

// MultiCalendar reports a holiday when any of its sources does.
type MultiCalendar []HolidayCalendar

func (mc MultiCalendar) IsHoliday(date TimePoint) bool {
	for _, c := range mc {
		if c != nil && c.IsHoliday(date) {
			return true
		}
	}
	return false
}

// =============================================================================
// CALENDAR - Working day oracle
// =============================================================================

// Calendar classifies days as working or non-working.
// The zero value treats only Sundays as non-working.
type Calendar struct {
	Holidays HolidayCalendar
}

func NewCalendar(holidays HolidayCalendar) Calendar {
	return Calendar{Holidays: holidays}
}

// IsWorkingDay reports whether date is neither a Sunday nor a holiday.
func (c Calendar) IsWorkingDay(date TimePoint) bool {
	if date.IsSunday() {
		return false
	}
	if c.Holidays != nil && c.Holidays.IsHoliday(date) {
		return false
	}
	return true
}

// WorkingDays counts working days in p (inclusive).
func (c Calendar) WorkingDays(p Period) int {
	n := 0
	for _, d := range p.Days() {
		if c.IsWorkingDay(d) {
			n++
		}
	}
	return n
}

// FirstWorkingDayViolation returns the first day in p that is not a working day.
func (c Calendar) FirstWorkingDayViolation(p Period) (TimePoint, bool) {
	for _, d := range p.Days() {
		if !c.IsWorkingDay(d) {
			return d, true
		}
	}
	return TimePoint{}, false
}

// FirstNonWorkingDayViolation returns the first day in p that is a working day.
func (c Calendar) FirstNonWorkingDayViolation(p Period) (TimePoint, bool) {
	for _, d := range p.Days() {
		if c.IsWorkingDay(d) {
			return d, true
		}
	}
	return TimePoint{}, false
}
