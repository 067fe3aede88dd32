package timeoff

import (
	"context"
	"time"
)

// ChangeType names a request change published to subscribers.
type ChangeType string

const (
	ChangeCreated   ChangeType = "request.created"
	ChangeUpdated   ChangeType = "request.updated"
	ChangeDecided   ChangeType = "request.decided"
	ChangeCancelled ChangeType = "request.cancelled"
)

// Change is one committed request change.
type Change struct {
	Type    ChangeType
	Request *Request
	ActorID string
	At      time.Time
}

// Notifier receives committed changes. Implementations must not block and
// must not report failures to the caller: a commit is never undone because
// a notification could not be delivered.
type Notifier interface {
	Notify(ctx context.Context, c Change)
}

// NopNotifier discards changes.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Change) {}
