package timeoff_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/timeoff"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// SELECTION
// =============================================================================

func twoContractProfile() *timeoff.Profile {
	join := date(2022, time.January, 15)
	return &timeoff.Profile{
		EmployeeID: "emp-1",
		JoinDate:   join,
		Contracts: []timeoff.Contract{
			{ID: "c2", ContractNo: 2, StartDate: date(2023, time.January, 15), CarryIn: generic.ZeroDays(), AccrualBaseline: 12},
			{ID: "c1", ContractNo: 1, StartDate: join, EndDate: date(2023, time.January, 14), CarryIn: generic.ZeroDays()},
		},
	}
}

func TestSelectContract_Precedence(t *testing.T) {
	p := twoContractProfile()

	tests := []struct {
		name   string
		query  timeoff.ContractQuery
		mutate func(*timeoff.Profile)
		wantNo int
	}{
		{"explicit id wins over as-of", timeoff.ContractQuery{ContractID: "c1", AsOf: date(2023, time.June, 1)}, nil, 1},
		{"explicit number", timeoff.ContractQuery{ContractNo: 2}, nil, 2},
		{"as-of inside first contract", timeoff.ContractQuery{AsOf: date(2022, time.June, 1)}, nil, 1},
		{"as-of inside open contract", timeoff.ContractQuery{AsOf: date(2030, time.June, 1)}, nil, 2},
		{"current contract start", timeoff.ContractQuery{AsOf: date(2021, time.June, 1)},
			func(p *timeoff.Profile) { p.CurrentContractStart = date(2022, time.January, 15) }, 1},
		{"latest start as fallback", timeoff.ContractQuery{}, nil, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := p.Clone()
			if tt.mutate != nil {
				tt.mutate(profile)
			}
			c, err := timeoff.SelectContract(profile, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNo, c.ContractNo)
		})
	}

	_, err := timeoff.SelectContract(p, timeoff.ContractQuery{ContractID: "missing"})
	assert.ErrorIs(t, err, generic.ErrNotFound)
	_, err = timeoff.SelectContract(&timeoff.Profile{EmployeeID: "emp-2"}, timeoff.ContractQuery{})
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestProfileValidate_ContractInvariants(t *testing.T) {
	p := twoContractProfile()
	require.NoError(t, p.Validate())

	positive := p.Clone()
	positive.Contracts[0].CarryIn = days(1)
	assert.ErrorIs(t, positive.Validate(), generic.ErrValidation, "carry-in is never positive")

	dup := p.Clone()
	dup.Contracts[1].ContractNo = 2
	assert.ErrorIs(t, dup.Validate(), generic.ErrValidation)

	overlap := p.Clone()
	overlap.Contracts[1].EndDate = date(2023, time.February, 1)
	assert.ErrorIs(t, overlap.Validate(), generic.ErrValidation)
}

// =============================================================================
// RENEWAL
// =============================================================================

func TestRenewContract_CarriesOnlyDebt(t *testing.T) {
	join := date(2024, time.January, 15)
	at := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		approved      []*timeoff.Request
		wantRemaining float64
		wantCarry     float64
	}{
		// 5 full months on 2024-07-14: 7.5 accrued
		{"unused balance is forfeited", nil, 7.5, 0},
		{"exactly used up", []*timeoff.Request{
			leave("emp-1", timeoff.LeaveAnnual, date(2024, time.March, 4), 7.5, workflow.StateApproved),
		}, 0, 0},
		{"borrowed days carry as debt", []*timeoff.Request{
			leave("emp-1", timeoff.LeaveAnnual, date(2024, time.March, 4), 8, workflow.StateApproved),
			leave("emp-1", timeoff.LeaveSpecial, date(2024, time.April, 1), 2, workflow.StateApproved),
		}, -2.5, -2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profileWithContract("emp-1", join)

			res, err := timeoff.RenewContract(p, tt.approved, timeoff.RenewInput{Start: date(2024, time.July, 15)}, "c2", at)
			require.NoError(t, err)

			assertDays(t, tt.wantRemaining, res.PreviousRemaining)
			assertDays(t, tt.wantCarry, res.Opened.CarryIn)
			assert.False(t, res.Opened.CarryIn.IsPositive())
		})
	}
}

func TestRenewContract_ClosesAndOpens(t *testing.T) {
	// GIVEN: A profile with one open contract
	join := date(2024, time.January, 15)
	p := profileWithContract("emp-1", join)
	at := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)

	// WHEN: A new contract starts on 2024-07-15
	res, err := timeoff.RenewContract(p, nil, timeoff.RenewInput{Start: date(2024, time.July, 15)}, "c2", at)
	require.NoError(t, err)

	// THEN: The old contract ends the day before, the new one restarts accrual
	assert.True(t, res.Closed.EndDate.Equal(date(2024, time.July, 14)))
	require.NotNil(t, res.Closed.ClosedAt)
	assert.True(t, res.Closed.ClosedAt.Equal(at))
	assert.Equal(t, 2, res.Opened.ContractNo)
	assert.Equal(t, 6, res.Opened.AccrualBaseline)
	assert.True(t, res.Profile.CurrentContractStart.Equal(date(2024, time.July, 15)))
	require.Len(t, res.Profile.Contracts, 2)

	// AND: The input profile is not modified
	assert.Len(t, p.Contracts, 1)
	assert.True(t, p.Contracts[0].IsOpen())

	// AND: Balances one month into the new contract use the new baseline
	sheet, err := timeoff.ComputeBalances(res.Profile, nil, date(2024, time.August, 15))
	require.NoError(t, err)
	assert.Equal(t, 2, sheet.ContractNo)
	assertDays(t, 1.5, sheet.Remaining(timeoff.LeaveAnnual))
}

func TestRenewContract_Rejections(t *testing.T) {
	join := date(2024, time.January, 15)
	p := profileWithContract("emp-1", join)
	at := time.Now()

	_, err := timeoff.RenewContract(p, nil, timeoff.RenewInput{}, "c2", at)
	assert.ErrorIs(t, err, generic.ErrValidation, "start is required")

	_, err = timeoff.RenewContract(p, nil, timeoff.RenewInput{Start: join}, "c2", at)
	assert.ErrorIs(t, err, generic.ErrValidation, "must start after the current contract")

	_, err = timeoff.RenewContract(p, nil, timeoff.RenewInput{Start: date(2025, time.January, 15), End: date(2025, time.January, 1)}, "c2", at)
	assert.ErrorIs(t, err, generic.ErrValidation, "end before start")

	_, err = timeoff.RenewContract(&timeoff.Profile{EmployeeID: "emp-2", JoinDate: join}, nil, timeoff.RenewInput{Start: date(2025, time.January, 15)}, "c2", at)
	assert.ErrorIs(t, err, generic.ErrValidation, "nothing to renew")
}

func TestProfileService_RenewClearsCache(t *testing.T) {
	// GIVEN: An onboarded employee with a cached balance sheet
	ctx := context.Background()
	store := memory.New()
	svc := timeoff.NewProfileService(store, store)
	svc.Now = func() time.Time { return time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC) }

	_, err := svc.Upsert(ctx, timeoff.ProfileInput{
		EmployeeID: "emp-1",
		JoinDate:   date(2024, time.January, 15),
		Approvers:  workflow.Approvers{ManagerID: "mgr-1"},
	})
	require.NoError(t, err)
	_, err = svc.RefreshBalances(ctx, "emp-1", date(2024, time.July, 1))
	require.NoError(t, err)

	// WHEN: The contract is renewed
	res, err := svc.RenewContract(ctx, "emp-1", timeoff.RenewInput{Start: date(2024, time.July, 15)})
	require.NoError(t, err)

	// THEN: The stored profile has both contracts and no stale cache
	stored, err := svc.Get(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, stored.Contracts, 2)
	assert.Nil(t, stored.BalancesCache)
	assert.Equal(t, 2, res.Opened.ContractNo)
	assert.Equal(t, int64(3), stored.Version)
}

func TestProfileService_UpsertAndBalances(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := timeoff.NewProfileService(store, store)

	// GIVEN: A new employee onboarded with a later first contract
	p, err := svc.Upsert(ctx, timeoff.ProfileInput{
		EmployeeID:         "emp-1",
		JoinDate:           date(2024, time.January, 15),
		Approvers:          workflow.Approvers{ManagerID: "mgr-1"},
		FirstContractStart: date(2024, time.March, 15),
	})
	require.NoError(t, err)
	require.Len(t, p.Contracts, 1)
	assert.Equal(t, 2, p.Contracts[0].AccrualBaseline)

	// WHEN: The approvers change and the join date is left alone
	p, err = svc.Upsert(ctx, timeoff.ProfileInput{
		EmployeeID:   "emp-1",
		Approvers:    workflow.Approvers{ManagerID: "mgr-2", GMID: "gm-1"},
		ApprovalMode: workflow.ModeManagerAndGM,
	})
	require.NoError(t, err)
	assert.Equal(t, "mgr-2", p.Approvers.ManagerID)

	// THEN: Changing the join date is refused once contracts exist
	_, err = svc.Upsert(ctx, timeoff.ProfileInput{EmployeeID: "emp-1", JoinDate: date(2023, time.January, 1)})
	assert.ErrorIs(t, err, generic.ErrValidation)

	sheet, err := svc.Balances(ctx, "emp-1", timeoff.BalanceQuery{AsOf: date(2024, time.May, 15)})
	require.NoError(t, err)
	assertDays(t, 3, sheet.Remaining(timeoff.LeaveAnnual))

	refreshed, failed, err := svc.RefreshAll(ctx, date(2024, time.May, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 0, failed)
	stored, err := svc.Get(ctx, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, stored.BalancesCache)
	assertDays(t, 3, stored.BalancesCache.Remaining(timeoff.LeaveAnnual))
}
