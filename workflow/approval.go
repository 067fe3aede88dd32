package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// APPROVERS - Who decides at each level
// =============================================================================

// Approvers maps each level to the employee assigned to it.
// Fixed when the request is submitted.
type Approvers struct {
	ManagerID string `json:"manager_id,omitempty"`
	GMID      string `json:"gm_id,omitempty"`
	COOID     string `json:"coo_id,omitempty"`
}

// For returns the approver assigned to level l.
func (a Approvers) For(l Level) string {
	switch l {
	case LevelManager:
		return a.ManagerID
	case LevelGM:
		return a.GMID
	case LevelCOO:
		return a.COOID
	}
	return ""
}

// Missing lists the levels of m that have no approver assigned.
func (a Approvers) Missing(m Mode) []Level {
	var missing []Level
	for _, l := range m.Levels() {
		if strings.TrimSpace(a.For(l)) == "" {
			missing = append(missing, l)
		}
	}
	return missing
}

// Validate fails with "missing approver mapping" when any level of m is unassigned.
func (a Approvers) Validate(m Mode) error {
	if !m.IsValid() {
		return generic.NewValidationError("approval_mode", "unknown approval mode %q", m)
	}
	if missing := a.Missing(m); len(missing) > 0 {
		return generic.NewValidationError("approvers", "missing approver mapping for %v in mode %s", missing, m)
	}
	return nil
}

// LevelsFor returns the levels of m at which actorID is the assigned approver.
func (a Approvers) LevelsFor(m Mode, actorID string) []Level {
	var levels []Level
	for _, l := range m.Levels() {
		if actorID != "" && a.For(l) == actorID {
			levels = append(levels, l)
		}
	}
	return levels
}

// =============================================================================
// APPROVALS - Audit trail
// =============================================================================

// ApprovalStatus is the outcome recorded for one level.
type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Approval is one level's recorded decision.
type Approval struct {
	Level      Level          `json:"level"`
	ApproverID string         `json:"approver_id"`
	Status     ApprovalStatus `json:"status"`
	ActedAt    time.Time      `json:"acted_at"`
	Note       string         `json:"note,omitempty"`
}

// Approvals is the ordered decision history of a request. It is the only
// record of who decided what; per-level views are derived from it.
type Approvals []Approval

// For returns the decision recorded at level l.
func (as Approvals) For(l Level) (Approval, bool) {
	for i := len(as) - 1; i >= 0; i-- {
		if as[i].Level == l {
			return as[i], true
		}
	}
	return Approval{}, false
}

// Acted reports whether any level has recorded a decision.
func (as Approvals) Acted() bool { return len(as) > 0 }

// RejectedAt returns the level that rejected, if any.
func (as Approvals) RejectedAt() (Level, bool) {
	for _, a := range as {
		if a.Status == ApprovalRejected {
			return a.Level, true
		}
	}
	return "", false
}

// NewApproval builds the audit entry for a decision. A rejection must carry
// a note.
func NewApproval(l Level, approverID string, d Decision, note string, at time.Time) (Approval, error) {
	a := Approval{Level: l, ApproverID: approverID, ActedAt: at.UTC(), Note: strings.TrimSpace(note)}
	switch d {
	case DecisionApprove:
		a.Status = ApprovalApproved
	case DecisionReject:
		if a.Note == "" {
			return Approval{}, generic.NewValidationError("note", "a rejection requires a reason")
		}
		a.Status = ApprovalRejected
	default:
		return Approval{}, generic.NewValidationError("decision", "unknown decision %q", d)
	}
	return a, nil
}

// =============================================================================
// GUARDS
// =============================================================================

// EnsureUnlocked is the requester-side lock: edits and cancellations are
// only allowed while no approval level has acted.
func EnsureUnlocked(id string, status State, approvals Approvals) error {
	if !status.IsPending() {
		return &generic.LockedError{ID: id, Status: string(status), Reason: "request is no longer pending"}
	}
	if approvals.Acted() {
		return &generic.LockedError{
			ID:     id,
			Status: string(status),
			Reason: fmt.Sprintf("level %s already acted", approvals[0].Level),
		}
	}
	return nil
}

// CheckConsistency verifies that status and approvals could have been
// produced by a legal transition sequence under m. In particular a request
// can never be back at a pending level once that level (or a later one) acted.
func CheckConsistency(m Mode, status State, approvals Approvals) error {
	chain, ok := m.Chain()
	if !ok {
		return violation("unknown mode %q", m)
	}
	if !status.IsValid() {
		return violation("unknown status %q", status)
	}

	for i, a := range approvals {
		if i >= len(chain) || chain[i] != a.Level {
			return violation("approval %d at level %s is out of order for mode %s", i, a.Level, m)
		}
		if a.Status == ApprovalRejected && i != len(approvals)-1 {
			return violation("decision recorded after rejection at level %s", a.Level)
		}
		if a.Status != ApprovalApproved && a.Status != ApprovalRejected {
			return violation("approval at level %s has status %q", a.Level, a.Status)
		}
	}

	last := func() (Approval, bool) {
		if len(approvals) == 0 {
			return Approval{}, false
		}
		return approvals[len(approvals)-1], true
	}

	switch {
	case status.IsPending():
		l, _ := LevelAwaited(status)
		pos := m.position(l)
		if pos < 0 {
			return violation("status %s but level %s is not in mode %s", status, l, m)
		}
		if len(approvals) != pos {
			return violation("status %s with %d recorded decisions", status, len(approvals))
		}
		if a, ok := last(); ok && a.Status != ApprovalApproved {
			return violation("status %s after a rejection", status)
		}
	case status == StateApproved:
		if len(approvals) != len(chain) {
			return violation("approved with %d of %d levels recorded", len(approvals), len(chain))
		}
		if a, _ := last(); a.Status != ApprovalApproved {
			return violation("approved but last level %s rejected", a.Level)
		}
	case status == StateRejected:
		a, ok := last()
		if !ok || a.Status != ApprovalRejected {
			return violation("rejected without a recorded rejection")
		}
	case status == StateCancelled:
		if len(approvals) != 0 {
			return violation("cancelled after level %s acted", approvals[0].Level)
		}
	}
	return nil
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", generic.ErrInvariantViolation, fmt.Sprintf(format, args...))
}
