package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

func TestModes_InitialState(t *testing.T) {
	tests := []struct {
		mode Mode
		want State
	}{
		{ModeManagerAndGM, StatePendingManager},
		{ModeManagerAndCOO, StatePendingManager},
		{ModeGMAndCOO, StatePendingGM},
		{ModeManagerOnly, StatePendingManager},
		{ModeGMOnly, StatePendingGM},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			got, err := tt.mode.Initial()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Mode("EVERYONE").Initial()
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestNext_ApprovalTable(t *testing.T) {
	tests := []struct {
		mode  Mode
		level Level
		want  State
	}{
		{ModeManagerAndGM, LevelManager, StatePendingGM},
		{ModeManagerAndGM, LevelGM, StateApproved},
		{ModeManagerAndCOO, LevelManager, StatePendingCOO},
		{ModeManagerAndCOO, LevelCOO, StateApproved},
		{ModeGMAndCOO, LevelGM, StatePendingCOO},
		{ModeGMAndCOO, LevelCOO, StateApproved},
		{ModeManagerOnly, LevelManager, StateApproved},
		{ModeGMOnly, LevelGM, StateApproved},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+string(tt.level), func(t *testing.T) {
			got, err := Next(tt.mode, tt.level, DecisionApprove)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			rejected, err := Next(tt.mode, tt.level, DecisionReject)
			require.NoError(t, err)
			assert.Equal(t, StateRejected, rejected)
		})
	}
}

func TestNext_NonParticipatingLevel(t *testing.T) {
	tests := []struct {
		mode  Mode
		level Level
	}{
		{ModeManagerAndGM, LevelCOO},
		{ModeManagerAndCOO, LevelGM},
		{ModeGMAndCOO, LevelManager},
		{ModeManagerOnly, LevelGM},
		{ModeGMOnly, LevelManager},
	}
	for _, tt := range tests {
		_, err := Next(tt.mode, tt.level, DecisionApprove)
		assert.ErrorIs(t, err, generic.ErrValidation, "%s/%s", tt.mode, tt.level)
	}
}

func TestModes_PathIsMonotonic(t *testing.T) {
	// Walking every mode end to end never revisits a pending state.
	for _, m := range AllModes() {
		state, err := m.Initial()
		require.NoError(t, err)
		seen := map[State]bool{state: true}
		for !state.IsTerminal() {
			l, ok := LevelAwaited(state)
			require.True(t, ok)
			next, err := Next(m, l, DecisionApprove)
			require.NoError(t, err)
			assert.False(t, seen[next], "mode %s revisits %s", m, next)
			seen[next] = true
			state = next
		}
		assert.Equal(t, StateApproved, state)
		assert.Len(t, seen, len(m.Path()))
	}
}

func TestAdvance_WrongLevelIsConflict(t *testing.T) {
	// GIVEN: a MANAGER_AND_GM request already waiting on the GM
	// WHEN: the manager tries to decide again
	_, _, err := Advance(ModeManagerAndGM, StatePendingGM, LevelManager, DecisionApprove)

	// THEN: conflict carrying the current status
	var ce *generic.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, string(StatePendingGM), ce.Current)
	assert.Equal(t, string(StatePendingManager), ce.Expected)
}

func TestAdvance_HappyPath(t *testing.T) {
	expected, next, err := Advance(ModeGMAndCOO, StatePendingGM, LevelGM, DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, StatePendingGM, expected)
	assert.Equal(t, StatePendingCOO, next)
}

// =============================================================================
// APPROVERS
// =============================================================================

func TestApprovers_Validate(t *testing.T) {
	a := Approvers{ManagerID: "m1", GMID: "g1"}

	assert.NoError(t, a.Validate(ModeManagerAndGM))
	assert.NoError(t, a.Validate(ModeGMOnly))

	err := a.Validate(ModeGMAndCOO)
	var ve *generic.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "missing approver mapping")
	assert.Equal(t, []Level{LevelCOO}, a.Missing(ModeGMAndCOO))
}

func TestApprovers_LevelsFor(t *testing.T) {
	a := Approvers{ManagerID: "boss", GMID: "boss", COOID: "coo"}
	assert.Equal(t, []Level{LevelManager, LevelGM}, a.LevelsFor(ModeManagerAndGM, "boss"))
	assert.Empty(t, a.LevelsFor(ModeManagerAndGM, "coo"))
	assert.Empty(t, a.LevelsFor(ModeManagerAndGM, ""))
}

// =============================================================================
// APPROVALS, LOCK, CONSISTENCY
// =============================================================================

func TestNewApproval_RejectRequiresNote(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := NewApproval(LevelManager, "m1", DecisionReject, "   ", now)
	assert.ErrorIs(t, err, generic.ErrValidation)

	a, err := NewApproval(LevelManager, "m1", DecisionReject, "overlaps audit", now)
	require.NoError(t, err)
	assert.Equal(t, ApprovalRejected, a.Status)
	assert.Equal(t, "overlaps audit", a.Note)

	a, err = NewApproval(LevelGM, "g1", DecisionApprove, "", now)
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, a.Status)
}

func TestApprovals_DerivedViews(t *testing.T) {
	as := Approvals{
		{Level: LevelManager, ApproverID: "m1", Status: ApprovalApproved},
		{Level: LevelGM, ApproverID: "g1", Status: ApprovalRejected, Note: "no"},
	}
	got, ok := as.For(LevelGM)
	require.True(t, ok)
	assert.Equal(t, "g1", got.ApproverID)

	_, ok = as.For(LevelCOO)
	assert.False(t, ok)

	lvl, ok := as.RejectedAt()
	require.True(t, ok)
	assert.Equal(t, LevelGM, lvl)
}

func TestEnsureUnlocked(t *testing.T) {
	assert.NoError(t, EnsureUnlocked("r1", StatePendingManager, nil))

	acted := Approvals{{Level: LevelManager, Status: ApprovalApproved}}
	err := EnsureUnlocked("r1", StatePendingGM, acted)
	var le *generic.LockedError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Reason, "MANAGER")

	for _, s := range []State{StateApproved, StateRejected, StateCancelled} {
		assert.ErrorIs(t, EnsureUnlocked("r1", s, nil), generic.ErrLocked, s)
	}
}

func TestCheckConsistency(t *testing.T) {
	mgrOK := Approval{Level: LevelManager, Status: ApprovalApproved}
	gmOK := Approval{Level: LevelGM, Status: ApprovalApproved}
	gmNo := Approval{Level: LevelGM, Status: ApprovalRejected, Note: "x"}

	tests := []struct {
		name      string
		mode      Mode
		status    State
		approvals Approvals
		wantErr   bool
	}{
		{"fresh", ModeManagerAndGM, StatePendingManager, nil, false},
		{"manager approved", ModeManagerAndGM, StatePendingGM, Approvals{mgrOK}, false},
		{"fully approved", ModeManagerAndGM, StateApproved, Approvals{mgrOK, gmOK}, false},
		{"rejected at gm", ModeManagerAndGM, StateRejected, Approvals{mgrOK, gmNo}, false},
		{"cancelled untouched", ModeManagerAndGM, StateCancelled, nil, false},
		{"back to manager after acting", ModeManagerAndGM, StatePendingManager, Approvals{mgrOK}, true},
		{"pending gm after gm acted", ModeManagerAndGM, StatePendingGM, Approvals{mgrOK, gmOK}, true},
		{"skipped level", ModeManagerAndGM, StateApproved, Approvals{gmOK}, true},
		{"level outside mode", ModeManagerOnly, StatePendingGM, nil, true},
		{"cancelled after acting", ModeManagerAndGM, StateCancelled, Approvals{mgrOK}, true},
		{"rejected without record", ModeGMOnly, StateRejected, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckConsistency(tt.mode, tt.status, tt.approvals)
			if tt.wantErr {
				assert.True(t, errors.Is(err, generic.ErrInvariantViolation), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
