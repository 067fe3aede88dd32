/*
Package notify delivers committed request changes to subscribers.

PURPOSE:
  The request service hands every committed change to a timeoff.Notifier.
  This package is that notifier: it turns a change into an Event and
  publishes it in the background so a commit never waits on delivery.

PIPELINE:

  RequestService ──Notify──▶ Dispatcher ──chan──▶ worker ──▶ Publisher
                                 │                               │
                                 └── queue full: drop + log       ├─ RedisPublisher (PUBLISH + RPUSH)
                                                                 └─ LogPublisher (zap)

FAILURES:
  Delivery is fire-and-forget. Publish errors and dropped events are logged
  and counted, never returned to the service.
*/
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/warp/leave-engine/timeoff"
	"github.com/warp/leave-engine/workflow"
)

// Event is the wire form of one committed change.
type Event struct {
	ID          string             `json:"id"`
	Type        timeoff.ChangeType `json:"type"`
	RequestID   string             `json:"request_id"`
	Kind        timeoff.Kind       `json:"kind"`
	RequesterID string             `json:"requester_id"`
	Status      workflow.State     `json:"status"`
	ActorID     string             `json:"actor_id,omitempty"`

	// AwaitingID is the approver the request now waits on, if any.
	AwaitingID string    `json:"awaiting_id,omitempty"`
	At         time.Time `json:"at"`
}

// NewEvent builds the event of a change.
func NewEvent(c timeoff.Change) Event {
	e := Event{
		ID:      uuid.NewString(),
		Type:    c.Type,
		ActorID: c.ActorID,
		At:      c.At.UTC(),
	}
	if r := c.Request; r != nil {
		e.RequestID = r.ID
		e.Kind = r.Kind
		e.RequesterID = r.RequesterID
		e.Status = r.Status
		if l, ok := r.AwaitingLevel(); ok {
			e.AwaitingID = r.Approvers.For(l)
		}
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e
}
