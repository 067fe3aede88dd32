package timeoff

import (
	"context"
	"errors"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// GUARD - Single-writer-wins condition
// =============================================================================

// Guard is the condition under which TryTransition commits.
//
// For an approver decision, Level is set and ActorID must be the approver
// assigned to that level. For a requester action, AsRequester is set and
// ActorID must be the requester. In both cases the stored status must equal
// Expected.
type Guard struct {
	Expected    workflow.State
	Level       workflow.Level
	ActorID     string
	AsRequester bool
}

// ApproverGuard is the guard of a decision at level l.
func ApproverGuard(l workflow.Level, actorID string) Guard {
	return Guard{Expected: l.PendingState(), Level: l, ActorID: actorID}
}

// RequesterGuard is the guard of a requester edit or cancel.
func RequesterGuard(expected workflow.State, actorID string) Guard {
	return Guard{Expected: expected, ActorID: actorID, AsRequester: true}
}

// Action names the guarded action for error messages.
func (g Guard) Action() string {
	if g.AsRequester {
		return "modify request as requester"
	}
	return "decide at level " + string(g.Level)
}

// AssignedActor is the identity g requires on r.
func (g Guard) AssignedActor(r *Request) string {
	if g.AsRequester {
		return r.RequesterID
	}
	return r.Approvers.For(g.Level)
}

// Check evaluates g against the stored request. Identity is checked before
// status so an unassigned actor learns nothing about the request's progress.
func (g Guard) Check(r *Request) error {
	if g.ActorID == "" || g.AssignedActor(r) != g.ActorID {
		reason := "not the assigned approver"
		if g.AsRequester {
			reason = "not the requester"
		}
		return &generic.AuthorizationError{ActorID: g.ActorID, Action: g.Action(), Reason: reason}
	}
	if r.Status != g.Expected {
		return &generic.ConflictError{ID: r.ID, Expected: string(g.Expected), Current: string(r.Status)}
	}
	return nil
}

// =============================================================================
// BULK
// =============================================================================

// Skipped is one bulk item that was not processed.
type Skipped struct {
	ID            string         `json:"id"`
	Reason        string         `json:"reason"`
	CurrentStatus workflow.State `json:"current_status,omitempty"`
}

// BulkResult reports every item of a bulk decision as either processed or
// skipped.
type BulkResult struct {
	Processed []*Request `json:"processed"`
	Skipped   []Skipped  `json:"skipped"`
}

// skip classifies a per-item failure. lookup fetches the current status
// when the error does not carry it.
func skip(ctx context.Context, id string, err error, lookup func(context.Context, string) (*Request, error)) Skipped {
	s := Skipped{ID: id, Reason: err.Error()}
	var ce *generic.ConflictError
	if errors.As(err, &ce) {
		s.CurrentStatus = workflow.State(ce.Current)
		return s
	}
	if generic.IsNotFound(err) {
		return s
	}
	if r, lerr := lookup(ctx, id); lerr == nil {
		s.CurrentStatus = r.Status
	}
	return s
}

// =============================================================================
// DECISION MUTATION
// =============================================================================

// applyDecision is the mutation committed by TryTransition for a decision.
// It runs on the freshly loaded request, after the guard passed.
func applyDecision(l workflow.Level, approval workflow.Approval, d workflow.Decision, at time.Time) func(*Request) error {
	return func(r *Request) error {
		if err := workflow.CheckConsistency(r.Mode, r.Status, r.Approvals); err != nil {
			return err
		}
		_, next, err := workflow.Advance(r.Mode, r.Status, l, d)
		if err != nil {
			return err
		}
		r.Approvals = append(r.Approvals, approval)
		r.Status = next
		r.UpdatedAt = at
		return workflow.CheckConsistency(r.Mode, r.Status, r.Approvals)
	}
}
