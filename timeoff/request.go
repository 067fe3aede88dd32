package timeoff

import (
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// REQUEST - One approval-workflow record, three variants
// =============================================================================

// Kind discriminates the request variants.
type Kind string

const (
	KindLeave   Kind = "LEAVE"
	KindSwap    Kind = "SWAP"
	KindReplace Kind = "REPLACE"
)

func (k Kind) IsValid() bool { return k == KindLeave || k == KindSwap || k == KindReplace }

// LeaveDetail is an ordinary leave over [Start, End].
type LeaveDetail struct {
	Type  LeaveType         `json:"leave_type"`
	Start generic.TimePoint `json:"start"`
	End   generic.TimePoint `json:"end"`
}

func (d LeaveDetail) Period() generic.Period { return generic.Period{Start: d.Start, End: d.End} }

// SwapDetail trades non-working days worked (request range) for working days
// taken off (off range).
type SwapDetail struct {
	RequestStart     generic.TimePoint `json:"request_start"`
	RequestEnd       generic.TimePoint `json:"request_end"`
	OffStart         generic.TimePoint `json:"off_start"`
	OffEnd           generic.TimePoint `json:"off_end"`
	RequestTotalDays int               `json:"request_total_days"`
	OffTotalDays     int               `json:"off_total_days"`
}

func (d SwapDetail) RequestRange() generic.Period {
	return generic.Period{Start: d.RequestStart, End: d.RequestEnd}
}

func (d SwapDetail) OffRange() generic.Period {
	return generic.Period{Start: d.OffStart, End: d.OffEnd}
}

// ReplaceDetail trades one worked day for one compensatory day off.
type ReplaceDetail struct {
	RequestDate      generic.TimePoint `json:"request_date"`
	CompensatoryDate generic.TimePoint `json:"compensatory_date"`
}

// Request is a leave, swap or replace request. Exactly one of Leave, Swap and
// Replace is set, matching Kind.
type Request struct {
	ID          string             `json:"id"`
	Kind        Kind               `json:"kind"`
	RequesterID string             `json:"requester_id"`
	Mode        workflow.Mode      `json:"approval_mode"`
	Status      workflow.State     `json:"status"`
	Approvers   workflow.Approvers `json:"approvers"`
	Approvals   workflow.Approvals `json:"approvals"`

	// TotalDays is always recomputed by the engine from the date range(s).
	TotalDays generic.Amount `json:"total_days"`
	Reason    string         `json:"reason,omitempty"`

	Leave   *LeaveDetail   `json:"leave,omitempty"`
	Swap    *SwapDetail    `json:"swap,omitempty"`
	Replace *ReplaceDetail `json:"replace,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the variant payload matches Kind.
func (r *Request) Validate() error {
	set := 0
	if r.Leave != nil {
		set++
	}
	if r.Swap != nil {
		set++
	}
	if r.Replace != nil {
		set++
	}
	if set != 1 {
		return generic.NewValidationError("kind", "request must carry exactly one detail, got %d", set)
	}
	switch r.Kind {
	case KindLeave:
		if r.Leave == nil {
			return generic.NewValidationError("leave", "is required for kind %s", r.Kind)
		}
	case KindSwap:
		if r.Swap == nil {
			return generic.NewValidationError("swap", "is required for kind %s", r.Kind)
		}
	case KindReplace:
		if r.Replace == nil {
			return generic.NewValidationError("replace", "is required for kind %s", r.Kind)
		}
	default:
		return generic.NewValidationError("kind", "unknown request kind %q", r.Kind)
	}
	return nil
}

// Decision returns the decision recorded at level l.
func (r *Request) Decision(l workflow.Level) (workflow.Approval, bool) {
	return r.Approvals.For(l)
}

// RejectedLevel returns the level that rejected the request, if any.
func (r *Request) RejectedLevel() (workflow.Level, bool) {
	if r.Status != workflow.StateRejected {
		return "", false
	}
	return r.Approvals.RejectedAt()
}

// Locked reports whether the requester can no longer edit or cancel.
func (r *Request) Locked() bool {
	return workflow.EnsureUnlocked(r.ID, r.Status, r.Approvals) != nil
}

// AwaitingLevel is the level the request waits on, if pending.
func (r *Request) AwaitingLevel() (workflow.Level, bool) {
	return workflow.LevelAwaited(r.Status)
}

// ActiveOn reports whether the request still holds its dates: pending or approved.
// An approved request is terminal for the workflow but keeps its dates.
func (r *Request) ActiveOn() bool {
	return r.Status.IsPending() || r.Status == workflow.StateApproved
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Approvals = append(workflow.Approvals(nil), r.Approvals...)
	if r.Leave != nil {
		d := *r.Leave
		c.Leave = &d
	}
	if r.Swap != nil {
		d := *r.Swap
		c.Swap = &d
	}
	if r.Replace != nil {
		d := *r.Replace
		c.Replace = &d
	}
	return &c
}
