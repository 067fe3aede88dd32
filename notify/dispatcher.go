package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/timeoff"
)

// DispatcherConfig tunes the delivery worker.
type DispatcherConfig struct {
	QueueSize   int           // Default: 256
	MaxAttempts int           // Default: 3
	Backoff     time.Duration // Default: 200ms, doubled per attempt
	Timeout     time.Duration // Default: 5s per publish
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 200 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// Stats counts delivery outcomes.
type Stats struct {
	Published int64
	Failed    int64
	Dropped   int64
}

// Dispatcher is a timeoff.Notifier that queues events and publishes them
// from a single background worker.
type Dispatcher struct {
	publisher Publisher
	logger    *zap.Logger
	cfg       DispatcherConfig

	queue   chan Event
	stop    chan struct{}
	done    chan struct{}
	started atomic.Bool
	once    sync.Once

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

var _ timeoff.Notifier = (*Dispatcher)(nil)

func NewDispatcher(publisher Publisher, logger *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		queue:     make(chan Event, cfg.QueueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Notify enqueues the change without blocking. A full queue drops it.
func (d *Dispatcher) Notify(_ context.Context, c timeoff.Change) {
	e := NewEvent(c)
	select {
	case d.queue <- e:
	default:
		d.dropped.Add(1)
		d.logger.Warn("event queue full, dropping event",
			zap.String("event_id", e.ID),
			zap.String("type", string(e.Type)),
			zap.String("request_id", e.RequestID),
		)
	}
}

// Start launches the worker. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go d.run()
	d.logger.Info("event dispatcher started", zap.Int("queue_size", d.cfg.QueueSize))
}

// Stop drains queued events and waits for the worker, or returns when ctx
// expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if !d.started.Load() {
		return nil
	}
	d.once.Do(func() { close(d.stop) })
	select {
	case <-d.done:
		d.logger.Info("event dispatcher stopped",
			zap.Int64("published", d.published.Load()),
			zap.Int64("failed", d.failed.Load()),
			zap.Int64("dropped", d.dropped.Load()),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Published: d.published.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		case <-d.stop:
			for {
				select {
				case e := <-d.queue:
					d.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(e Event) {
	backoff := d.cfg.Backoff
	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
		err = d.publisher.Publish(ctx, e)
		cancel()
		if err == nil {
			d.published.Add(1)
			return
		}
		if attempt < d.cfg.MaxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	d.failed.Add(1)
	d.logger.Error("failed to deliver event",
		zap.String("event_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.String("request_id", e.RequestID),
		zap.Int("attempts", d.cfg.MaxAttempts),
		zap.Error(err),
	)
}
