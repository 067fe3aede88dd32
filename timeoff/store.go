/*
store.go - Persistence interfaces

PURPOSE:
  Defines the boundary between the leave domain and storage. The domain
  never reads-then-writes a request or a profile in two steps: every
  mutation goes through one of two atomic primitives.

ATOMIC PRIMITIVES:
  RequestStore.TryTransition:  conditional status commit (the concurrency guard)
  ProfileStore.UpdateProfile:  read-modify-write of one profile (renewal, cache)

IMPLEMENTATIONS:
  - store/sqlite: production (conditional UPDATE, SQL transactions)
  - store/memory: tests and local development

SEE ALSO:
  - guard.go: Guard semantics shared by both implementations
*/
package timeoff

import (
	"context"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// PROFILES
// =============================================================================

// ProfileStore persists employee profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, employeeID string) (*Profile, error)

	// CreateProfile fails with ValidationError if the profile exists.
	CreateProfile(ctx context.Context, p *Profile) error

	// UpdateProfile loads the profile, applies fn and stores the result as
	// one atomic step. If fn fails nothing is written. Version is bumped.
	UpdateProfile(ctx context.Context, employeeID string, fn func(*Profile) (*Profile, error)) (*Profile, error)

	ListProfiles(ctx context.Context) ([]*Profile, error)
}

// =============================================================================
// REQUESTS
// =============================================================================

// RequestFilter narrows ListRequests. Zero fields match everything.
type RequestFilter struct {
	RequesterID string
	ApproverID  string // assigned at any level
	Kinds       []Kind
	Statuses    []workflow.State
}

// Matches applies the filter in memory.
func (f RequestFilter) Matches(r *Request) bool {
	if f.RequesterID != "" && r.RequesterID != f.RequesterID {
		return false
	}
	if f.ApproverID != "" &&
		r.Approvers.ManagerID != f.ApproverID &&
		r.Approvers.GMID != f.ApproverID &&
		r.Approvers.COOID != f.ApproverID {
		return false
	}
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, r.Kind) {
		return false
	}
	if len(f.Statuses) > 0 && !containsState(f.Statuses, r.Status) {
		return false
	}
	return true
}

func containsKind(ks []Kind, k Kind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}

func containsState(ss []workflow.State, s workflow.State) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// PendingStates is every PENDING_* state.
func PendingStates() []workflow.State {
	return []workflow.State{workflow.StatePendingManager, workflow.StatePendingGM, workflow.StatePendingCOO}
}

// RequestStore persists requests.
type RequestStore interface {
	CreateRequest(ctx context.Context, r *Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)

	// ListRequests returns matching requests ordered by creation time.
	ListRequests(ctx context.Context, f RequestFilter) ([]*Request, error)

	// TryTransition commits mutate only if the stored request still satisfies
	// g. On a status miss it returns *generic.ConflictError carrying the
	// current status; on an identity miss *generic.AuthorizationError. On any
	// failure the stored request is unchanged.
	TryTransition(ctx context.Context, id string, g Guard, mutate func(*Request) error) (*Request, error)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// HolidayStore is the persisted holiday source. It is also the calendar's
// HolidayCalendar.
type HolidayStore interface {
	generic.HolidayCalendar
	ListHolidays(ctx context.Context) ([]generic.Holiday, error)
	AddHoliday(ctx context.Context, h generic.Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
}

// =============================================================================
// DIRECTORY
// =============================================================================

// DirectoryEntry is the display data of an employee.
type DirectoryEntry struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
}

// Directory is the read-only employee directory.
type Directory interface {
	Lookup(ctx context.Context, employeeID string) (DirectoryEntry, error)
}
