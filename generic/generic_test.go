package generic_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
)

func d(s string) generic.TimePoint { return generic.MustParseDate(s) }

// =============================================================================
// DATES
// =============================================================================

func TestParseDate(t *testing.T) {
	tp, err := generic.ParseDate(" 2025-03-10 ")
	require.NoError(t, err)
	assert.Equal(t, generic.NewTimePoint(2025, time.March, 10), tp)

	_, err = generic.ParseDate("10/03/2025")
	var ve *generic.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "date", ve.Field)
}

func TestTimePoint_TextRoundTrip(t *testing.T) {
	var out struct {
		At   generic.TimePoint `json:"at"`
		None generic.TimePoint `json:"none"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"at":"2024-02-29","none":""}`), &out))
	assert.Equal(t, "2024-02-29", out.At.String())
	assert.True(t, out.None.IsZero())

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"2024-02-29","none":""}`, string(b))
}

func TestFullMonthsBetween(t *testing.T) {
	tests := []struct {
		from, to string
		want     int
	}{
		{"2022-01-15", "2022-02-15", 1},
		{"2022-01-15", "2022-02-14", 0},
		{"2022-01-15", "2023-01-15", 12},
		{"2022-01-31", "2022-02-28", 0},
		{"2022-01-31", "2022-03-31", 2},
		{"2024-01-01", "2025-03-31", 14},
		{"2025-01-01", "2024-12-31", 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, generic.FullMonthsBetween(d(tt.from), d(tt.to)))
		})
	}
	assert.Zero(t, generic.FullMonthsBetween(generic.TimePoint{}, d("2025-01-01")))
}

// =============================================================================
// PERIODS
// =============================================================================

func TestPeriod(t *testing.T) {
	_, err := generic.NewPeriod(d("2025-03-12"), d("2025-03-10"))
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = generic.NewPeriod(generic.TimePoint{}, d("2025-03-10"))
	assert.ErrorIs(t, err, generic.ErrValidation)

	p, err := generic.NewPeriod(d("2025-03-10"), d("2025-03-16"))
	require.NoError(t, err)
	assert.Equal(t, 7, p.CalendarDays())
	assert.Len(t, p.Days(), 7)
	assert.True(t, p.Contains(d("2025-03-16")))
	assert.False(t, p.Contains(d("2025-03-17")))
	assert.True(t, p.Overlaps(generic.SingleDay(d("2025-03-16"))))
	assert.False(t, p.Overlaps(generic.SingleDay(d("2025-03-17"))))
	assert.Equal(t, "[2025-03-10, 2025-03-16]", p.String())

	wide := generic.Period{Start: d("0002-01-01"), End: d("9999-12-31")}
	assert.Equal(t, 3651694, wide.CalendarDays())
}

func TestContractYear(t *testing.T) {
	w := generic.ContractYear(d("2024-04-01"))
	assert.Equal(t, "2025-03-31", w.End.String())

	leap := generic.ContractYear(d("2024-02-29"))
	assert.Equal(t, "2025-02-28", leap.End.String())
}

func TestContractYearAt(t *testing.T) {
	tests := []struct {
		start, asOf string
		want        string
	}{
		{"2024-01-15", "2024-06-01", "[2024-01-15, 2025-01-14]"},
		{"2024-01-15", "2025-01-14", "[2024-01-15, 2025-01-14]"},
		{"2024-01-15", "2025-01-15", "[2025-01-15, 2026-01-14]"},
		{"2024-01-15", "2025-05-01", "[2025-01-15, 2026-01-14]"},
		{"2024-01-15", "2027-12-31", "[2027-01-15, 2028-01-14]"},
		{"2024-01-15", "2023-11-01", "[2024-01-15, 2025-01-14]"},
		{"2024-02-29", "2025-02-28", "[2024-02-29, 2025-02-28]"},
		{"2024-02-29", "2025-03-01", "[2025-03-01, 2026-02-28]"},
	}
	for _, tt := range tests {
		t.Run(tt.start+"@"+tt.asOf, func(t *testing.T) {
			w := generic.ContractYearAt(d(tt.start), d(tt.asOf))
			assert.Equal(t, tt.want, w.String())
		})
	}
	assert.Equal(t, generic.ContractYear(d("2024-04-01")).String(), generic.ContractYearAt(d("2024-04-01"), d("2024-04-01")).String())
}

// =============================================================================
// CALENDAR
// =============================================================================

func TestCalendar_WorkingDays(t *testing.T) {
	// GIVEN: A one-off holiday and a recurring one
	holidays := generic.NewHolidaySet(
		generic.Holiday{ID: "h1", Date: d("2025-04-30"), Name: "Reunification Day"},
		generic.Holiday{ID: "h2", Date: d("2024-05-01"), Name: "Labour Day", Recurring: true},
	)
	cal := generic.NewCalendar(holidays)

	// THEN: Sundays and holidays are off, Saturdays are working days
	assert.True(t, cal.IsWorkingDay(d("2025-03-15")), "saturday")
	assert.False(t, cal.IsWorkingDay(d("2025-03-16")), "sunday")
	assert.False(t, cal.IsWorkingDay(d("2025-04-30")))
	assert.True(t, cal.IsWorkingDay(d("2026-04-30")), "one-off holidays do not repeat")
	assert.False(t, cal.IsWorkingDay(d("2025-05-01")), "recurring holidays repeat")

	week := generic.Period{Start: d("2025-04-28"), End: d("2025-05-04")}
	assert.Equal(t, 4, cal.WorkingDays(week))

	day, bad := cal.FirstWorkingDayViolation(week)
	require.True(t, bad)
	assert.Equal(t, "2025-04-30", day.String())

	day, bad = cal.FirstNonWorkingDayViolation(generic.SingleDay(d("2025-05-04")))
	assert.False(t, bad, "a lone sunday holds no working day")
	assert.True(t, day.IsZero())
}

func TestCalendar_ZeroValueAndMulti(t *testing.T) {
	var zero generic.Calendar
	assert.True(t, zero.IsWorkingDay(d("2025-01-01")))

	static := generic.NewHolidaySet(generic.Holiday{Date: d("2025-01-01"), Name: "New Year"})
	runtime := generic.NewHolidaySet()
	cal := generic.NewCalendar(generic.MultiCalendar{static, nil, runtime})
	assert.False(t, cal.IsWorkingDay(d("2025-01-01")))
	assert.True(t, cal.IsWorkingDay(d("2025-09-02")))

	runtime.Add(generic.Holiday{Date: d("2025-09-02"), Name: "National Day"})
	assert.False(t, cal.IsWorkingDay(d("2025-09-02")))

	runtime.Reset()
	assert.True(t, cal.IsWorkingDay(d("2025-09-02")))
}

// =============================================================================
// AMOUNTS
// =============================================================================

func TestAmount(t *testing.T) {
	a := generic.DaysInt(3).Mul(generic.Days(1.5).Value)
	assert.Equal(t, "4.5", a.String())
	assert.Equal(t, "-1.5", generic.DaysInt(3).Sub(a).String())
	assert.True(t, generic.ZeroDays().Min(generic.Days(-2)).IsNegative())
	assert.Equal(t, "0", generic.ZeroDays().Min(generic.DaysInt(5)).String())

	b, err := json.Marshal(struct {
		V generic.Amount `json:"v"`
	}{a})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":4.5}`, string(b))

	var back generic.Amount
	require.NoError(t, json.Unmarshal([]byte("-2.5"), &back))
	assert.True(t, back.Equal(generic.Days(-2.5)))

	_, err = generic.ParseDays("lots")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
		client   bool
	}{
		{generic.NewValidationError("f", "bad %d", 1), generic.ErrValidation, true},
		{&generic.AuthorizationError{ActorID: "a", Action: "approve", Reason: "nope"}, generic.ErrUnauthorized, true},
		{&generic.LockedError{ID: "r", Status: "PENDING_GM"}, generic.ErrLocked, true},
		{&generic.ConflictError{ID: "r", Expected: "PENDING_GM", Current: "APPROVED"}, generic.ErrConflict, false},
		{&generic.NotFoundError{Kind: "request", ID: "r"}, generic.ErrNotFound, false},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("outer: %w", tt.err)
		assert.ErrorIs(t, wrapped, tt.sentinel)
		assert.Equal(t, tt.client, generic.IsClientError(wrapped), tt.err.Error())
	}

	var ce *generic.ConflictError
	require.True(t, errors.As(fmt.Errorf("x: %w", &generic.ConflictError{Current: "REJECTED"}), &ce))
	assert.Equal(t, "REJECTED", ce.Current)
	assert.True(t, generic.IsConflict(ce))
	assert.True(t, generic.IsNotFound(&generic.NotFoundError{}))
}
