package timeoff_test

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(year, month, day)
}

func days(n float64) generic.Amount {
	return generic.Days(n)
}

func assertDays(t *testing.T, want float64, got generic.Amount, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, days(want).Equal(got), "want %v days, got %s %v", want, got, msgAndArgs)
}

// profileWithContract returns a profile with a single open contract starting
// at the join date.
func profileWithContract(id string, join generic.TimePoint) *timeoff.Profile {
	return &timeoff.Profile{
		EmployeeID:   id,
		JoinDate:     join,
		Approvers:    workflow.Approvers{ManagerID: "mgr-1", GMID: "gm-1", COOID: "coo-1"},
		ApprovalMode: workflow.ModeManagerAndGM,
		Contracts: []timeoff.Contract{{
			ID:         id + "-c1",
			ContractNo: 1,
			StartDate:  join,
			CarryIn:    generic.ZeroDays(),
		}},
		CurrentContractStart: join,
	}
}

var leaveSeq int

func leave(requester string, lt timeoff.LeaveType, start generic.TimePoint, n float64, status workflow.State) *timeoff.Request {
	leaveSeq++
	return &timeoff.Request{
		ID:          fmt.Sprintf("leave-%d", leaveSeq),
		Kind:        timeoff.KindLeave,
		RequesterID: requester,
		Mode:        workflow.ModeManagerOnly,
		Status:      status,
		TotalDays:   days(n),
		Leave:       &timeoff.LeaveDetail{Type: lt, Start: start, End: start},
	}
}

// =============================================================================
// ACCRUAL
// =============================================================================

func TestAccruedAL_OneAndAHalfPerFullMonth(t *testing.T) {
	// GIVEN: Joined 2022-01-15
	join := date(2022, time.January, 15)

	// THEN: One full month on 2022-02-15 credits 1.5 days, the day before credits nothing
	assertDays(t, 1.5, timeoff.AccruedAL(join, 0, date(2022, time.February, 15)))
	assertDays(t, 0, timeoff.AccruedAL(join, 0, date(2022, time.February, 14)))
	assertDays(t, 0, timeoff.AccruedAL(join, 0, date(2021, time.December, 1)), "before join")
	assertDays(t, 9, timeoff.AccruedAL(join, 0, date(2022, time.July, 15)))
}

func TestAccruedAL_CappedByTenure(t *testing.T) {
	join := date(2019, time.January, 1)

	tests := []struct {
		asOf    generic.TimePoint
		wantCap float64
	}{
		{date(2020, time.January, 1), 18},
		{date(2021, time.December, 31), 18},
		{date(2022, time.January, 1), 19}, // 3 full years
		{date(2025, time.January, 1), 20}, // 6 full years
	}
	for _, tt := range tests {
		t.Run(tt.asOf.String(), func(t *testing.T) {
			assertDays(t, tt.wantCap, timeoff.ALCap(join, tt.asOf))
			assertDays(t, tt.wantCap, timeoff.AccruedAL(join, 0, tt.asOf), "baseline 0 is always past the cap here")
		})
	}
}

func TestAccruedAL_MonotonicAndBoundedByCap(t *testing.T) {
	// GIVEN: Any join date
	for _, join := range []generic.TimePoint{date(2015, time.March, 31), date(2020, time.February, 29), date(2023, time.July, 1)} {
		prev := generic.ZeroDays()
		// WHEN: asOf moves forward day by day over ten years
		for asOf := join; asOf.Before(join.AddYears(10)); asOf = asOf.AddDays(1) {
			got := timeoff.AccruedAL(join, 0, asOf)
			// THEN: accrual never decreases and never exceeds the cap
			require.False(t, got.LessThan(prev), "accrual decreased at %s", asOf)
			require.False(t, got.GreaterThan(timeoff.ALCap(join, asOf)), "accrual above cap at %s", asOf)
			prev = got
		}
	}
}

func TestAccruedAL_BaselineRestartsAccrual(t *testing.T) {
	join := date(2022, time.January, 15)

	// 12 months already credited in a previous contract
	assertDays(t, 0, timeoff.AccruedAL(join, 12, date(2023, time.January, 15)))
	assertDays(t, 3, timeoff.AccruedAL(join, 12, date(2023, time.March, 15)))
}

// =============================================================================
// BALANCES
// =============================================================================

func TestComputeBalances_RemainingFormula(t *testing.T) {
	// GIVEN: Second contract with 12 months accrued (18 days) and -2 carried in,
	//        3 days of AL and 1 day of SP approved in the window
	join := date(2022, time.January, 15)
	p := &timeoff.Profile{
		EmployeeID: "emp-1",
		JoinDate:   join,
		Contracts: []timeoff.Contract{
			{ID: "c1", ContractNo: 1, StartDate: join, EndDate: date(2023, time.January, 14), CarryIn: generic.ZeroDays()},
			{ID: "c2", ContractNo: 2, StartDate: date(2023, time.January, 15), CarryIn: days(-2), AccrualBaseline: 12},
		},
		CurrentContractStart: date(2023, time.January, 15),
	}
	approved := []*timeoff.Request{
		leave("emp-1", timeoff.LeaveAnnual, date(2023, time.March, 6), 3, workflow.StateApproved),
		leave("emp-1", timeoff.LeaveSpecial, date(2023, time.June, 5), 1, workflow.StateApproved),
	}

	// WHEN: Balances are computed on the contract anniversary
	sheet, err := timeoff.ComputeBalances(p, approved, date(2024, time.January, 15))
	require.NoError(t, err)

	// THEN: remaining[AL] = 18 - 2 - 3 - 1 = 12
	assert.Equal(t, 2, sheet.ContractNo)
	assertDays(t, 18, sheet.Accrued)
	assertDays(t, -2, sheet.CarryIn)
	assertDays(t, 12, sheet.Remaining(timeoff.LeaveAnnual))

	al, _ := sheet.Item(timeoff.LeaveAnnual)
	assertDays(t, 4, al.Used, "SP is charged to AL")
	sp, _ := sheet.Item(timeoff.LeaveSpecial)
	assertDays(t, 1, sp.Used)
	assertDays(t, 6, sp.Remaining)
}

func TestComputeBalances_FixedCapsClampAtZero(t *testing.T) {
	join := date(2024, time.January, 15)
	p := profileWithContract("emp-1", join)
	approved := []*timeoff.Request{
		leave("emp-1", timeoff.LeaveSpecial, date(2024, time.March, 4), 9, workflow.StateApproved),
		leave("emp-1", timeoff.LeaveMedical, date(2024, time.April, 1), 12, workflow.StateApproved),
		leave("emp-1", timeoff.LeaveUnpaid, date(2024, time.May, 6), 30, workflow.StateApproved),
	}

	sheet, err := timeoff.ComputeBalances(p, approved, date(2024, time.July, 15))
	require.NoError(t, err)

	assertDays(t, 0, sheet.Remaining(timeoff.LeaveSpecial), "SP over cap clamps at zero")
	assertDays(t, 78, sheet.Remaining(timeoff.LeaveMedical))
	assertDays(t, 90, sheet.Remaining(timeoff.LeaveMaternity))
	assertDays(t, 9-9, sheet.Remaining(timeoff.LeaveAnnual), "6 months accrue 9, SP 9 borrowed")

	ul, ok := sheet.Item(timeoff.LeaveUnpaid)
	require.True(t, ok)
	assert.True(t, ul.Unlimited)
	assertDays(t, 30, ul.Used)
	assertDays(t, 0, ul.Remaining)
}

func TestComputeBalances_NegativeRemainingAllowed(t *testing.T) {
	join := date(2024, time.January, 15)
	p := profileWithContract("emp-1", join)
	approved := []*timeoff.Request{leave("emp-1", timeoff.LeaveAnnual, date(2024, time.March, 4), 5, workflow.StateApproved)}

	sheet, err := timeoff.ComputeBalances(p, approved, date(2024, time.March, 15))
	require.NoError(t, err)

	assertDays(t, -2, sheet.Remaining(timeoff.LeaveAnnual))
}

func TestComputeBalances_IgnoresForeignAndInactiveRequests(t *testing.T) {
	// GIVEN: Requests that must not count: other employee, not approved,
	//        outside the contract-year window
	join := date(2024, time.January, 15)
	p := profileWithContract("emp-1", join)
	approved := []*timeoff.Request{
		leave("emp-2", timeoff.LeaveAnnual, date(2024, time.March, 4), 5, workflow.StateApproved),
		leave("emp-1", timeoff.LeaveAnnual, date(2024, time.March, 5), 5, workflow.StateCancelled),
		leave("emp-1", timeoff.LeaveAnnual, date(2024, time.March, 6), 5, workflow.StatePendingManager),
		leave("emp-1", timeoff.LeaveAnnual, date(2025, time.February, 3), 5, workflow.StateApproved),
	}

	sheet, err := timeoff.ComputeBalances(p, approved, date(2024, time.July, 15))
	require.NoError(t, err)

	al, _ := sheet.Item(timeoff.LeaveAnnual)
	assertDays(t, 0, al.Used)
	assertDays(t, 9, al.Remaining)
}

func TestComputeStrict_SubtractsPending(t *testing.T) {
	join := date(2024, time.January, 15)
	p := profileWithContract("emp-1", join)
	approved := []*timeoff.Request{leave("emp-1", timeoff.LeaveSpecial, date(2024, time.March, 4), 2, workflow.StateApproved)}
	pending := []*timeoff.Request{
		leave("emp-1", timeoff.LeaveSpecial, date(2024, time.April, 1), 3, workflow.StatePendingManager),
		leave("emp-1", timeoff.LeaveAnnual, date(2024, time.April, 8), 1, workflow.StatePendingGM),
	}

	sheet, err := timeoff.ComputeStrict(p, approved, pending, date(2024, time.July, 15))
	require.NoError(t, err)

	sp, _ := sheet.Item(timeoff.LeaveSpecial)
	assertDays(t, 5, sp.Remaining, "pending never changes Remaining")
	assertDays(t, 2, sp.StrictRemaining)
	assertDays(t, 3, sp.Pending)

	al, _ := sheet.Item(timeoff.LeaveAnnual)
	assertDays(t, 7, al.Remaining)
	assertDays(t, 3, al.StrictRemaining, "9 - 2 SP - (3 SP + 1 AL) pending")
}

func TestComputeBalances_GeneratedHistories(t *testing.T) {
	// GIVEN: Random approved AL/SP histories inside one contract year
	rng := rand.New(rand.NewSource(42))
	join := date(2021, time.June, 1)
	asOf := date(2022, time.May, 31)

	for i := 0; i < 200; i++ {
		p := profileWithContract("emp-1", join)
		p.Contracts[0].CarryIn = days(-float64(rng.Intn(5)))

		var approved []*timeoff.Request
		var alUsed, spUsed float64
		count := rng.Intn(8)
		for j := 0; j < count; j++ {
			n := float64(1 + rng.Intn(4))
			start := join.AddDays(rng.Intn(365))
			lt := timeoff.LeaveAnnual
			if rng.Intn(3) == 0 {
				lt = timeoff.LeaveSpecial
				spUsed += n
			} else {
				alUsed += n
			}
			approved = append(approved, leave("emp-1", lt, start, n, workflow.StateApproved))
		}

		// WHEN: Balances are computed
		sheet, err := timeoff.ComputeBalances(p, approved, asOf)
		require.NoError(t, err)

		// THEN: remaining = accrued + carryIn - AL used - SP used
		want := sheet.Accrued.Add(p.Contracts[0].CarryIn).Sub(days(alUsed)).Sub(days(spUsed))
		require.True(t, want.Equal(sheet.Remaining(timeoff.LeaveAnnual)), "history %d: want %s got %s", i, want, sheet.Remaining(timeoff.LeaveAnnual))
		assertDays(t, 16.5, sheet.Accrued)
	}
}

func TestComputeBalances_Deterministic(t *testing.T) {
	join := date(2022, time.January, 15)
	p := profileWithContract("emp-1", join)
	approved := []*timeoff.Request{
		leave("emp-1", timeoff.LeaveAnnual, date(2022, time.March, 7), 2, workflow.StateApproved),
		leave("emp-1", timeoff.LeaveMedical, date(2022, time.April, 4), 1.5, workflow.StateApproved),
	}

	first, err := timeoff.ComputeBalances(p, approved, date(2022, time.September, 1))
	require.NoError(t, err)
	second, err := timeoff.ComputeBalances(p.Clone(), approved, date(2022, time.September, 1))
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestComputeBalances_ImplicitContract(t *testing.T) {
	// GIVEN: A profile that never got a contract
	p := &timeoff.Profile{EmployeeID: "emp-1", JoinDate: date(2024, time.January, 15)}

	sheet, err := timeoff.ComputeBalances(p, nil, date(2024, time.March, 15))

	// THEN: Accrual runs from the join date
	require.NoError(t, err)
	assertDays(t, 3, sheet.Remaining(timeoff.LeaveAnnual))
	assert.True(t, sheet.Window.Start.Equal(p.JoinDate))
}

func TestCompute_ExplicitContract(t *testing.T) {
	join := date(2022, time.January, 15)
	p := &timeoff.Profile{
		EmployeeID: "emp-1",
		JoinDate:   join,
		Contracts: []timeoff.Contract{
			{ID: "c1", ContractNo: 1, StartDate: join, EndDate: date(2023, time.January, 14), CarryIn: generic.ZeroDays()},
			{ID: "c2", ContractNo: 2, StartDate: date(2023, time.January, 15), CarryIn: generic.ZeroDays(), AccrualBaseline: 12},
		},
	}

	sheet, err := timeoff.Compute(p, nil, nil, timeoff.ContractQuery{ContractID: "c1", AsOf: date(2023, time.January, 14)})
	require.NoError(t, err)
	assert.Equal(t, 1, sheet.ContractNo)
	assertDays(t, 16.5, sheet.Accrued)

	_, err = timeoff.Compute(p, nil, nil, timeoff.ContractQuery{ContractNo: 7, AsOf: date(2023, time.January, 14)})
	assert.ErrorIs(t, err, generic.ErrNotFound)

	_, err = timeoff.Compute(p, nil, nil, timeoff.ContractQuery{})
	assert.ErrorIs(t, err, generic.ErrValidation, "as-of date is required")
}

func TestComputeBalances_WindowFollowsContractAnniversary(t *testing.T) {
	// GIVEN: An open contract since 2024-01-15, leave taken in both contract years
	p := profileWithContract("emp-1", date(2024, time.January, 15))
	approved := []*timeoff.Request{
		leave("emp-1", timeoff.LeaveAnnual, date(2024, time.March, 4), 4, workflow.StateApproved),
		leave("emp-1", timeoff.LeaveSpecial, date(2024, time.June, 3), 7, workflow.StateApproved),
		leave("emp-1", timeoff.LeaveAnnual, date(2025, time.April, 7), 11, workflow.StateApproved),
		leave("emp-1", timeoff.LeaveSpecial, date(2025, time.April, 21), 2, workflow.StateApproved),
	}

	// WHEN: Balances are read more than a year into the contract
	sheet, err := timeoff.ComputeBalances(p, approved, date(2025, time.May, 1))
	require.NoError(t, err)

	// THEN: Only the second contract year is charged
	assert.Equal(t, "2025-01-15", sheet.Window.Start.String())
	assert.Equal(t, "2026-01-14", sheet.Window.End.String())
	al, _ := sheet.Item(timeoff.LeaveAnnual)
	assertDays(t, 13, al.Used, "11 AL + 2 SP")
	assertDays(t, 5, al.Remaining, "18 accrued, capped")
	assertDays(t, 5, sheet.Remaining(timeoff.LeaveSpecial))

	// AND: On the last day of the first year the old usage still counts
	first, err := timeoff.ComputeBalances(p, approved, date(2025, time.January, 14))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", first.Window.Start.String())
	assertDays(t, 0, first.Remaining(timeoff.LeaveSpecial))
	assertDays(t, 5.5, first.Remaining(timeoff.LeaveAnnual), "16.5 - 4 - 7")
}

func TestComputeBalances_ClosedContractWindowStopsAtEndDate(t *testing.T) {
	// GIVEN: A contract that ran 2022-01-15 .. 2023-06-30
	join := date(2022, time.January, 15)
	p := &timeoff.Profile{
		EmployeeID: "emp-1",
		JoinDate:   join,
		Contracts: []timeoff.Contract{
			{ID: "c1", ContractNo: 1, StartDate: join, EndDate: date(2023, time.June, 30), CarryIn: generic.ZeroDays()},
			{ID: "c2", ContractNo: 2, StartDate: date(2023, time.July, 1), CarryIn: generic.ZeroDays(), AccrualBaseline: 17},
		},
	}
	approved := []*timeoff.Request{
		leave("emp-1", timeoff.LeaveMedical, date(2022, time.May, 2), 10, workflow.StateApproved),
		leave("emp-1", timeoff.LeaveMedical, date(2023, time.March, 6), 4, workflow.StateApproved),
	}

	// WHEN: The closed contract is read during and after its short second year
	during, err := timeoff.Compute(p, approved, nil, timeoff.ContractQuery{ContractNo: 1, AsOf: date(2023, time.March, 1)})
	require.NoError(t, err)
	after, err := timeoff.Compute(p, approved, nil, timeoff.ContractQuery{ContractNo: 1, AsOf: date(2024, time.February, 1)})
	require.NoError(t, err)

	// THEN: Both use the clamped second-year window
	for _, sheet := range []*timeoff.BalanceSheet{during, after} {
		assert.Equal(t, "2023-01-15", sheet.Window.Start.String())
		assert.Equal(t, "2023-06-30", sheet.Window.End.String())
		assertDays(t, 86, sheet.Remaining(timeoff.LeaveMedical))
	}
}
