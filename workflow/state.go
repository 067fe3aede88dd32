package workflow

// State is the approval status of a request.
type State string

const (
	StatePendingManager State = "PENDING_MANAGER"
	StatePendingGM      State = "PENDING_GM"
	StatePendingCOO     State = "PENDING_COO"
	StateApproved       State = "APPROVED"
	StateRejected       State = "REJECTED"
	StateCancelled      State = "CANCELLED"
)

// AllStates returns all valid states
func AllStates() []State {
	return []State{
		StatePendingManager,
		StatePendingGM,
		StatePendingCOO,
		StateApproved,
		StateRejected,
		StateCancelled,
	}
}

func (s State) String() string { return string(s) }

func (s State) IsValid() bool {
	for _, valid := range AllStates() {
		if s == valid {
			return true
		}
	}
	return false
}

// IsPending reports whether the request still waits on an approval level.
func (s State) IsPending() bool {
	_, ok := LevelAwaited(s)
	return ok
}

// IsTerminal returns true if the state is final (no further transitions)
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateRejected || s == StateCancelled
}

// Level is one approver tier.
type Level string

const (
	LevelManager Level = "MANAGER"
	LevelGM      Level = "GM"
	LevelCOO     Level = "COO"
)

func (l Level) String() string { return string(l) }

func (l Level) IsValid() bool {
	return l == LevelManager || l == LevelGM || l == LevelCOO
}

// PendingState is the status a request holds while waiting on l.
func (l Level) PendingState() State {
	switch l {
	case LevelManager:
		return StatePendingManager
	case LevelGM:
		return StatePendingGM
	case LevelCOO:
		return StatePendingCOO
	}
	return ""
}

// LevelAwaited is the inverse of PendingState.
func LevelAwaited(s State) (Level, bool) {
	switch s {
	case StatePendingManager:
		return LevelManager, true
	case StatePendingGM:
		return LevelGM, true
	case StatePendingCOO:
		return LevelCOO, true
	}
	return "", false
}

// Decision is what an approver does at its level.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

func (d Decision) IsValid() bool { return d == DecisionApprove || d == DecisionReject }
