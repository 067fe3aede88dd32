package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/timeoff"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func pendingRequest() *timeoff.Request {
	return &timeoff.Request{
		ID:          "req-1",
		Kind:        timeoff.KindLeave,
		RequesterID: "emp-1",
		Mode:        workflow.ModeManagerAndGM,
		Status:      workflow.StatePendingGM,
		Approvers:   workflow.Approvers{ManagerID: "mgr-1", GMID: "gm-1"},
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	fail   int
	calls  int
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) snapshot() ([]Event, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...), p.calls
}

func fixedEvent() Event {
	return Event{
		ID:          "evt-1",
		Type:        timeoff.ChangeDecided,
		RequestID:   "req-1",
		Kind:        timeoff.KindLeave,
		RequesterID: "emp-1",
		Status:      workflow.StateApproved,
		ActorID:     "gm-1",
		At:          time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// EVENT
// =============================================================================

func TestNewEvent_CarriesAwaitedApprover(t *testing.T) {
	// GIVEN: A request the manager approved, now waiting on the GM
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	change := timeoff.Change{Type: timeoff.ChangeDecided, Request: pendingRequest(), ActorID: "mgr-1", At: at}

	// WHEN: Building the event
	e := NewEvent(change)

	// THEN: The event names the GM as next approver
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, workflow.StatePendingGM, e.Status)
	assert.Equal(t, "mgr-1", e.ActorID)
	assert.Equal(t, "gm-1", e.AwaitingID)
	assert.True(t, e.At.Equal(at))
}

func TestNewEvent_FinalStateHasNoAwaitedApprover(t *testing.T) {
	r := pendingRequest()
	r.Status = workflow.StateApproved

	e := NewEvent(timeoff.Change{Type: timeoff.ChangeDecided, Request: r})

	assert.Empty(t, e.AwaitingID)
	assert.False(t, e.At.IsZero(), "missing timestamps default to now")
}

// =============================================================================
// REDIS PUBLISHER
// =============================================================================

func TestRedisPublisher_PublishesAndEnqueues(t *testing.T) {
	client, mock := redismock.NewClientMock()
	e := fixedEvent()
	data, err := json.Marshal(e)
	require.NoError(t, err)

	mock.ExpectPublish(DefaultChannel, data).SetVal(1)
	mock.ExpectRPush("leave.events.queue", data).SetVal(1)

	p := NewRedisPublisher(client, "", "leave.events.queue")
	require.NoError(t, p.Publish(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_PublishOnlyWithoutQueue(t *testing.T) {
	client, mock := redismock.NewClientMock()
	e := fixedEvent()
	data, err := json.Marshal(e)
	require.NoError(t, err)

	mock.ExpectPublish("hr.leave", data).SetVal(0)

	p := NewRedisPublisher(client, "hr.leave", "")
	require.NoError(t, p.Publish(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_ReportsBrokerErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	e := fixedEvent()
	data, err := json.Marshal(e)
	require.NoError(t, err)

	mock.ExpectPublish(DefaultChannel, data).SetErr(errors.New("connection refused"))

	err = NewRedisPublisher(client, "", "").Publish(context.Background(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evt-1")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLogPublisher_NeverFails(t *testing.T) {
	assert.NoError(t, NewLogPublisher(nil).Publish(context.Background(), fixedEvent()))
}

// =============================================================================
// DISPATCHER
// =============================================================================

func TestDispatcher_DeliversQueuedChanges(t *testing.T) {
	// GIVEN: A started dispatcher
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, nil, DispatcherConfig{QueueSize: 8})
	d.Start()

	// WHEN: Three changes are notified and the dispatcher stops
	for i := 0; i < 3; i++ {
		d.Notify(context.Background(), timeoff.Change{Type: timeoff.ChangeCreated, Request: pendingRequest()})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	// THEN: Every change was published before Stop returned
	events, _ := pub.snapshot()
	assert.Len(t, events, 3)
	assert.Equal(t, Stats{Published: 3}, d.Stats())
}

func TestDispatcher_RetriesThenGivesUp(t *testing.T) {
	pub := &recordingPublisher{fail: 2}
	d := NewDispatcher(pub, nil, DispatcherConfig{MaxAttempts: 3, Backoff: time.Millisecond})
	d.Start()

	d.Notify(context.Background(), timeoff.Change{Type: timeoff.ChangeCancelled, Request: pendingRequest()})
	require.NoError(t, d.Stop(context.Background()))

	events, calls := pub.snapshot()
	assert.Len(t, events, 1, "third attempt succeeds")
	assert.Equal(t, 3, calls)

	failing := &recordingPublisher{fail: 10}
	d = NewDispatcher(failing, nil, DispatcherConfig{MaxAttempts: 2, Backoff: time.Millisecond})
	d.Start()
	d.Notify(context.Background(), timeoff.Change{Type: timeoff.ChangeCancelled, Request: pendingRequest()})
	require.NoError(t, d.Stop(context.Background()))

	_, calls = failing.snapshot()
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(1), d.Stats().Failed)
}

func TestDispatcher_DropsWhenQueueIsFull(t *testing.T) {
	// GIVEN: A dispatcher whose worker is not running and a one-slot queue
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, nil, DispatcherConfig{QueueSize: 1})

	// WHEN: Two changes arrive
	d.Notify(context.Background(), timeoff.Change{Type: timeoff.ChangeCreated, Request: pendingRequest()})
	d.Notify(context.Background(), timeoff.Change{Type: timeoff.ChangeCreated, Request: pendingRequest()})

	// THEN: The second is dropped without blocking; the first is delivered on start
	assert.Equal(t, int64(1), d.Stats().Dropped)

	d.Start()
	require.NoError(t, d.Stop(context.Background()))
	events, _ := pub.snapshot()
	assert.Len(t, events, 1)
}

func TestDispatcher_StopWithoutStart(t *testing.T) {
	d := NewDispatcher(&recordingPublisher{}, nil, DispatcherConfig{})
	assert.NoError(t, d.Stop(context.Background()))
}
