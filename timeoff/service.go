/*
service.go - Request lifecycle

PURPOSE:
  Orchestrates the three request kinds through the shared approval workflow:

  ┌──────────┐   validate +    ┌─────────────┐  TryTransition  ┌───────────┐
  │  create  │ ─ recompute ──▶ │ PENDING_*   │ ──── per ─────▶ │ APPROVED  │
  └──────────┘   resolve mode  └─────────────┘     level       │ REJECTED  │
                                     │                         └───────────┘
                                     └── requester cancel (unlocked only) ──▶ CANCELLED

FLOW:
  1. Create: load profile, resolve approval mode (profile → default), check
     every participating level has an approver, validate the variant,
     recompute day counts, persist in the mode's initial state.
  2. Decide: one TryTransition per decision. The guard requires the stored
     status to be the level's pending state and the actor to be that
     level's assigned approver. Exactly one of two racing calls wins.
  3. Cancel / edit: requester only, and only while no level has acted.

NOTIFICATIONS:
  Every committed change is handed to the Notifier after the commit.
  Delivery is asynchronous and its failures are only logged.
*/
package timeoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// REQUEST SERVICE
// =============================================================================

type RequestService struct {
	Profiles ProfileStore
	Requests RequestStore
	Calendar generic.Calendar
	Notifier Notifier
	Logger   *zap.Logger

	// DefaultMode applies to profiles without their own approval mode.
	DefaultMode workflow.Mode

	Now   func() time.Time
	NewID func() string
}

// NewRequestService wires a service with default clock, IDs and no-op
// notifier and logger.
func NewRequestService(profiles ProfileStore, requests RequestStore, cal generic.Calendar, defaultMode workflow.Mode) *RequestService {
	return &RequestService{
		Profiles:    profiles,
		Requests:    requests,
		Calendar:    cal,
		Notifier:    NopNotifier{},
		Logger:      zap.NewNop(),
		DefaultMode: defaultMode,
		Now:         time.Now,
		NewID:       uuid.NewString,
	}
}

func (s *RequestService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *RequestService) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *RequestService) notify(ctx context.Context, t ChangeType, r *Request, actorID string) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Notify(ctx, Change{Type: t, Request: r.Clone(), ActorID: actorID, At: r.UpdatedAt})
}

// =============================================================================
// CREATE
// =============================================================================

// CreateLeave submits an ordinary leave.
func (s *RequestService) CreateLeave(ctx context.Context, requesterID string, in LeaveInput, reason string) (*Request, error) {
	profile, err := s.Profiles.GetProfile(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	history, err := s.history(ctx, requesterID, KindLeave)
	if err != nil {
		return nil, err
	}
	detail, days, err := ValidateLeave(s.Calendar, in, requesterID, history, "")
	if err != nil {
		return nil, err
	}
	if err := s.checkCap(profile, history, detail, days, ""); err != nil {
		return nil, err
	}

	r, err := s.newRequest(profile, KindLeave, days, reason)
	if err != nil {
		return nil, err
	}
	r.Leave = detail
	return s.create(ctx, r)
}

// CreateSwap submits a swap-working-day request.
func (s *RequestService) CreateSwap(ctx context.Context, requesterID string, in SwapInput, reason string) (*Request, error) {
	profile, err := s.Profiles.GetProfile(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	history, err := s.history(ctx, requesterID, KindSwap)
	if err != nil {
		return nil, err
	}
	detail, err := ValidateSwap(s.Calendar, in, requesterID, history, "")
	if err != nil {
		return nil, err
	}

	r, err := s.newRequest(profile, KindSwap, generic.DaysInt(detail.RequestTotalDays), reason)
	if err != nil {
		return nil, err
	}
	r.Swap = detail
	return s.create(ctx, r)
}

// CreateReplace submits a replace-day request.
func (s *RequestService) CreateReplace(ctx context.Context, requesterID string, in ReplaceInput, reason string) (*Request, error) {
	profile, err := s.Profiles.GetProfile(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	history, err := s.history(ctx, requesterID, KindReplace)
	if err != nil {
		return nil, err
	}
	detail, err := ValidateReplace(s.Calendar, in, requesterID, history, "")
	if err != nil {
		return nil, err
	}

	r, err := s.newRequest(profile, KindReplace, generic.DaysInt(1), reason)
	if err != nil {
		return nil, err
	}
	r.Replace = detail
	return s.create(ctx, r)
}

// newRequest resolves mode, approvers and initial state from the profile.
func (s *RequestService) newRequest(p *Profile, kind Kind, days generic.Amount, reason string) (*Request, error) {
	mode, err := p.ResolveMode(s.DefaultMode)
	if err != nil {
		return nil, err
	}
	if err := p.Approvers.Validate(mode); err != nil {
		return nil, err
	}
	initial, err := mode.Initial()
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &Request{
		ID:          s.NewID(),
		Kind:        kind,
		RequesterID: p.EmployeeID,
		Mode:        mode,
		Status:      initial,
		Approvers:   p.Approvers,
		TotalDays:   days,
		Reason:      strings.TrimSpace(reason),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *RequestService) create(ctx context.Context, r *Request) (*Request, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.Requests.CreateRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to store request: %w", err)
	}
	s.log().Info("request created",
		zap.String("request_id", r.ID),
		zap.String("kind", string(r.Kind)),
		zap.String("requester_id", r.RequesterID),
		zap.String("mode", string(r.Mode)),
		zap.String("status", string(r.Status)),
	)
	s.notify(ctx, ChangeCreated, r, r.RequesterID)
	return r, nil
}

func (s *RequestService) history(ctx context.Context, requesterID string, kind Kind) ([]*Request, error) {
	rs, err := s.Requests.ListRequests(ctx, RequestFilter{RequesterID: requesterID, Kinds: []Kind{kind}})
	if err != nil {
		return nil, fmt.Errorf("failed to load request history: %w", err)
	}
	return rs, nil
}

// checkCap rejects SP, MC and MA leave that would exceed the yearly cap once
// pending requests are counted. AL may be borrowed and UL is unlimited.
func (s *RequestService) checkCap(p *Profile, history []*Request, d *LeaveDetail, days generic.Amount, excludeID string) error {
	if _, capped := FixedCap(d.Type); !capped {
		return nil
	}
	var approved, pending []*Request
	for _, r := range history {
		if r.ID == excludeID {
			continue
		}
		switch {
		case r.Status == workflow.StateApproved:
			approved = append(approved, r)
		case r.Status.IsPending():
			pending = append(pending, r)
		}
	}
	sheet, err := ComputeStrict(p, approved, pending, d.Start)
	if err != nil {
		return err
	}
	item, _ := sheet.Item(d.Type)
	if days.GreaterThan(item.StrictRemaining) {
		return generic.NewValidationError("leave_type",
			"%s days exceed the %s yearly cap: %s remaining including pending requests",
			days, d.Type, item.StrictRemaining)
	}
	return nil
}

// =============================================================================
// DECIDE
// =============================================================================

// DecideInput is one approver decision.
type DecideInput struct {
	RequestID string
	Level     workflow.Level
	ActorID   string
	Decision  workflow.Decision
	Note      string
}

// Decide commits one decision through the concurrency guard.
func (s *RequestService) Decide(ctx context.Context, in DecideInput) (*Request, error) {
	if !in.Level.IsValid() {
		return nil, generic.NewValidationError("level", "unknown level %q", in.Level)
	}
	at := s.now()
	approval, err := workflow.NewApproval(in.Level, in.ActorID, in.Decision, in.Note, at)
	if err != nil {
		return nil, err
	}

	r, err := s.Requests.TryTransition(ctx, in.RequestID,
		ApproverGuard(in.Level, in.ActorID),
		applyDecision(in.Level, approval, in.Decision, at))
	if err != nil {
		s.logMiss("decision", in.RequestID, in.ActorID, err)
		return nil, err
	}

	s.log().Info("request decided",
		zap.String("request_id", r.ID),
		zap.String("level", string(in.Level)),
		zap.String("actor_id", in.ActorID),
		zap.String("decision", string(in.Decision)),
		zap.String("status", string(r.Status)),
	)
	s.notify(ctx, ChangeDecided, r, in.ActorID)
	return r, nil
}

// BulkItem is one entry of a bulk decision. An empty Level means "the level
// the request is currently waiting on".
type BulkItem struct {
	RequestID string
	Level     workflow.Level
}

// BulkDecideInput applies one decision to many requests.
type BulkDecideInput struct {
	Items    []BulkItem
	ActorID  string
	Decision workflow.Decision
	Note     string
}

// BulkDecide runs Decide per item. Every item ends up either processed or
// skipped with its reason and current status.
func (s *RequestService) BulkDecide(ctx context.Context, in BulkDecideInput) (*BulkResult, error) {
	if !in.Decision.IsValid() {
		return nil, generic.NewValidationError("decision", "unknown decision %q", in.Decision)
	}
	if in.Decision == workflow.DecisionReject && strings.TrimSpace(in.Note) == "" {
		return nil, generic.NewValidationError("note", "a rejection requires a reason")
	}

	res := &BulkResult{Processed: []*Request{}, Skipped: []Skipped{}}
	seen := make(map[string]bool, len(in.Items))
	for _, item := range in.Items {
		if seen[item.RequestID] {
			res.Skipped = append(res.Skipped, Skipped{ID: item.RequestID, Reason: "duplicate item in batch"})
			continue
		}
		seen[item.RequestID] = true

		level := item.Level
		if level == "" {
			cur, err := s.Requests.GetRequest(ctx, item.RequestID)
			if err != nil {
				res.Skipped = append(res.Skipped, skip(ctx, item.RequestID, err, s.Requests.GetRequest))
				continue
			}
			awaited, ok := cur.AwaitingLevel()
			if !ok {
				res.Skipped = append(res.Skipped, Skipped{
					ID: item.RequestID, Reason: "request is not pending", CurrentStatus: cur.Status,
				})
				continue
			}
			level = awaited
		}

		r, err := s.Decide(ctx, DecideInput{
			RequestID: item.RequestID,
			Level:     level,
			ActorID:   in.ActorID,
			Decision:  in.Decision,
			Note:      in.Note,
		})
		if err != nil {
			res.Skipped = append(res.Skipped, skip(ctx, item.RequestID, err, s.Requests.GetRequest))
			continue
		}
		res.Processed = append(res.Processed, r)
	}

	s.log().Info("bulk decision",
		zap.String("actor_id", in.ActorID),
		zap.Int("processed", len(res.Processed)),
		zap.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

// =============================================================================
// REQUESTER ACTIONS
// =============================================================================

// Cancel withdraws a request. Only the requester may cancel, and only while
// no approval level has acted.
func (s *RequestService) Cancel(ctx context.Context, id, requesterID string) (*Request, error) {
	r, err := s.requesterTransition(ctx, id, requesterID, func(r *Request) error {
		r.Status = workflow.StateCancelled
		r.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log().Info("request cancelled", zap.String("request_id", id), zap.String("requester_id", requesterID))
	s.notify(ctx, ChangeCancelled, r, requesterID)
	return r, nil
}

// UpdateLeave lets the requester change a leave's type, dates or reason
// while it is unlocked. Day counts are recomputed.
func (s *RequestService) UpdateLeave(ctx context.Context, id, requesterID string, in LeaveInput, reason string) (*Request, error) {
	profile, err := s.Profiles.GetProfile(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	history, err := s.history(ctx, requesterID, KindLeave)
	if err != nil {
		return nil, err
	}
	detail, days, err := ValidateLeave(s.Calendar, in, requesterID, history, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkCap(profile, history, detail, days, id); err != nil {
		return nil, err
	}

	r, err := s.requesterTransition(ctx, id, requesterID, func(r *Request) error {
		if r.Kind != KindLeave {
			return generic.NewValidationError("kind", "request %s is a %s request", r.ID, r.Kind)
		}
		r.Leave = detail
		r.TotalDays = days
		r.Reason = strings.TrimSpace(reason)
		r.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, ChangeUpdated, r, requesterID)
	return r, nil
}

// requesterTransition applies the lock guard before and inside the
// conditional commit. A decision landing in between turns the conflict into
// a LockedError.
func (s *RequestService) requesterTransition(ctx context.Context, id, requesterID string, mutate func(*Request) error) (*Request, error) {
	cur, err := s.Requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	g := RequesterGuard(cur.Status, requesterID)
	if err := g.Check(cur); err != nil {
		return nil, err
	}
	if err := workflow.EnsureUnlocked(cur.ID, cur.Status, cur.Approvals); err != nil {
		return nil, err
	}

	r, err := s.Requests.TryTransition(ctx, id, g, func(r *Request) error {
		if err := workflow.EnsureUnlocked(r.ID, r.Status, r.Approvals); err != nil {
			return err
		}
		return mutate(r)
	})
	if err != nil {
		if generic.IsConflict(err) {
			if fresh, gerr := s.Requests.GetRequest(ctx, id); gerr == nil {
				if lerr := workflow.EnsureUnlocked(fresh.ID, fresh.Status, fresh.Approvals); lerr != nil {
					return nil, lerr
				}
			}
		}
		s.logMiss("requester action", id, requesterID, err)
		return nil, err
	}
	return r, nil
}

func (s *RequestService) logMiss(action, id, actorID string, err error) {
	var ce *generic.ConflictError
	if errors.As(err, &ce) {
		s.log().Warn("guard miss",
			zap.String("action", action),
			zap.String("request_id", id),
			zap.String("actor_id", actorID),
			zap.String("current_status", ce.Current),
		)
		return
	}
	s.log().Debug("transition refused",
		zap.String("action", action),
		zap.String("request_id", id),
		zap.String("actor_id", actorID),
		zap.Error(err),
	)
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a request visible to actorID: its requester or one of its
// assigned approvers. An empty actorID skips the check.
func (s *RequestService) Get(ctx context.Context, id, actorID string) (*Request, error) {
	r, err := s.Requests.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID == "" || r.RequesterID == actorID || len(r.Approvers.LevelsFor(r.Mode, actorID)) > 0 {
		return r, nil
	}
	return nil, &generic.AuthorizationError{ActorID: actorID, Action: "view request " + id, Reason: "not the requester or an assigned approver"}
}

// ListByRequester returns the requester's own requests.
func (s *RequestService) ListByRequester(ctx context.Context, requesterID string, kinds ...Kind) ([]*Request, error) {
	return s.Requests.ListRequests(ctx, RequestFilter{RequesterID: requesterID, Kinds: kinds})
}

// Inbox returns requests currently waiting on approverID.
func (s *RequestService) Inbox(ctx context.Context, approverID string) ([]*Request, error) {
	candidates, err := s.Requests.ListRequests(ctx, RequestFilter{ApproverID: approverID, Statuses: PendingStates()})
	if err != nil {
		return nil, err
	}
	inbox := make([]*Request, 0, len(candidates))
	for _, r := range candidates {
		if l, ok := r.AwaitingLevel(); ok && r.Approvers.For(l) == approverID {
			inbox = append(inbox, r)
		}
	}
	return inbox, nil
}

// DaysOff lists the employee's leave days within window.
func (s *RequestService) DaysOff(ctx context.Context, employeeID string, window generic.Period) ([]DayOff, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	rs, err := s.history(ctx, employeeID, KindLeave)
	if err != nil {
		return nil, err
	}
	return DaysOff(s.Calendar, rs, window), nil
}
