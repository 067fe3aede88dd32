/*
mode.go - Approval modes and the transition table

PURPOSE:
  A mode selects which approver levels take part in a request and in which
  order. The whole transition table is derived from one ordered chain per
  mode, so adding a mode means adding one case to Chain.

TRANSITION TABLE:
  Mode             Initial          Manager ok ->   GM ok ->      COO ok ->
  MANAGER_AND_GM   PENDING_MANAGER  PENDING_GM      APPROVED      -
  MANAGER_AND_COO  PENDING_MANAGER  PENDING_COO     -             APPROVED
  GM_AND_COO       PENDING_GM       -               PENDING_COO   APPROVED
  MANAGER_ONLY     PENDING_MANAGER  APPROVED        -             -
  GM_ONLY          PENDING_GM       -               APPROVED      -

  A REJECT at the active level always goes to REJECTED.
*/
package workflow

import (
	"github.com/warp/leave-engine/generic"
)

// Mode selects the approver topology of a request.
type Mode string

const (
	ModeManagerAndGM  Mode = "MANAGER_AND_GM"
	ModeManagerAndCOO Mode = "MANAGER_AND_COO"
	ModeGMAndCOO      Mode = "GM_AND_COO"
	ModeManagerOnly   Mode = "MANAGER_ONLY"
	ModeGMOnly        Mode = "GM_ONLY"
)

func AllModes() []Mode {
	return []Mode{ModeManagerAndGM, ModeManagerAndCOO, ModeGMAndCOO, ModeManagerOnly, ModeGMOnly}
}

func (m Mode) String() string { return string(m) }

// Chain returns the participating levels in approval order.
func (m Mode) Chain() ([]Level, bool) {
	switch m {
	case ModeManagerAndGM:
		return []Level{LevelManager, LevelGM}, true
	case ModeManagerAndCOO:
		return []Level{LevelManager, LevelCOO}, true
	case ModeGMAndCOO:
		return []Level{LevelGM, LevelCOO}, true
	case ModeManagerOnly:
		return []Level{LevelManager}, true
	case ModeGMOnly:
		return []Level{LevelGM}, true
	}
	return nil, false
}

func (m Mode) IsValid() bool {
	_, ok := m.Chain()
	return ok
}

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.IsValid() {
		return "", generic.NewValidationError("approval_mode", "unknown approval mode %q", s)
	}
	return m, nil
}

// Levels returns the chain, or nil for an invalid mode.
func (m Mode) Levels() []Level {
	chain, _ := m.Chain()
	return chain
}

// Participates reports whether level l takes part in mode m.
func (m Mode) Participates(l Level) bool {
	return m.position(l) >= 0
}

func (m Mode) position(l Level) int {
	for i, lvl := range m.Levels() {
		if lvl == l {
			return i
		}
	}
	return -1
}

// Initial is the state a new request of this mode starts in.
func (m Mode) Initial() (State, error) {
	chain, ok := m.Chain()
	if !ok {
		return "", generic.NewValidationError("approval_mode", "unknown approval mode %q", m)
	}
	return chain[0].PendingState(), nil
}

// Next returns the state after level l decides d under mode m.
func Next(m Mode, l Level, d Decision) (State, error) {
	pos := m.position(l)
	if pos < 0 {
		return "", generic.NewValidationError("level", "level %s does not participate in mode %s", l, m)
	}
	switch d {
	case DecisionReject:
		return StateRejected, nil
	case DecisionApprove:
		chain := m.Levels()
		if pos == len(chain)-1 {
			return StateApproved, nil
		}
		return chain[pos+1].PendingState(), nil
	}
	return "", generic.NewValidationError("decision", "unknown decision %q", d)
}

// Advance is Next plus the check that the request is actually waiting on l.
// The returned pair is what the concurrency guard commits:
// expected -> next.
func Advance(m Mode, current State, l Level, d Decision) (expected, next State, err error) {
	expected = l.PendingState()
	if expected == "" {
		return "", "", generic.NewValidationError("level", "unknown level %q", l)
	}
	next, err = Next(m, l, d)
	if err != nil {
		return "", "", err
	}
	if current != expected {
		return expected, "", &generic.ConflictError{Expected: string(expected), Current: string(current)}
	}
	return expected, next, nil
}

// Path returns every state a fully-approved request visits, initial first.
func (m Mode) Path() []State {
	var path []State
	for _, l := range m.Levels() {
		path = append(path, l.PendingState())
	}
	return append(path, StateApproved)
}
