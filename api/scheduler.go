/*
scheduler.go - Periodic balance cache refresh

PURPOSE:
  Balances are always computable on demand, but profiles also carry a
  stored snapshot (BalancesCache) for cheap reads by other systems. The
  scheduler keeps that snapshot fresh as months accrue and leave is
  approved.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Refreshes every profile as of today through ProfileService.RefreshAll
  - One failing profile is logged and skipped; the sweep continues
  - A sweep still running when Stop is called is cancelled

CONFIGURATION:
  - CheckInterval: How often to refresh (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewBalanceScheduler(profiles, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()
*/
package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
)

// BalanceRefresher refreshes every stored balance snapshot.
type BalanceRefresher interface {
	RefreshAll(ctx context.Context, asOf generic.TimePoint) (refreshed, failed int, err error)
}

// BalanceScheduler refreshes balance caches on an interval.
type BalanceScheduler struct {
	Refresher     BalanceRefresher
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	// Today is the as-of date of each sweep.
	Today func() generic.TimePoint

	ticker  *time.Ticker
	stop    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun atomic.Int64 // unix nanos
}

// NewBalanceScheduler creates a new scheduler.
func NewBalanceScheduler(refresher BalanceRefresher, logger *zap.Logger) *BalanceScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceScheduler{
		Refresher:     refresher,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Today:         generic.Today,
	}
}

// Start begins the scheduler.
func (bs *BalanceScheduler) Start() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		bs.Logger.Info("balance scheduler disabled, not starting")
		return
	}
	if bs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs.cancel = cancel
	bs.stop = make(chan struct{})
	bs.ticker = time.NewTicker(bs.CheckInterval)
	bs.wg.Add(1)

	go bs.run(ctx)

	bs.Logger.Info("balance scheduler started", zap.Duration("interval", bs.CheckInterval))
}

// Stop stops the scheduler and waits for a running sweep to return.
func (bs *BalanceScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker == nil {
		return
	}
	bs.ticker.Stop()
	bs.cancel()
	close(bs.stop)
	bs.wg.Wait()
	bs.ticker = nil
	bs.Logger.Info("balance scheduler stopped")
}

func (bs *BalanceScheduler) run(ctx context.Context) {
	defer bs.wg.Done()

	// Run immediately on start
	bs.refresh(ctx)

	for {
		select {
		case <-bs.ticker.C:
			bs.refresh(ctx)
		case <-bs.stop:
			return
		}
	}
}

func (bs *BalanceScheduler) refresh(ctx context.Context) {
	start := time.Now()
	asOf := bs.Today()

	refreshed, failed, err := bs.Refresher.RefreshAll(ctx, asOf)
	if err != nil {
		bs.Logger.Error("balance refresh sweep failed", zap.String("as_of", asOf.String()), zap.Error(err))
		return
	}

	bs.lastRun.Store(start.UnixNano())

	bs.Logger.Info("balance refresh sweep completed",
		zap.String("as_of", asOf.String()),
		zap.Int("refreshed", refreshed),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)),
	)
}

// RunNow triggers an immediate sweep (for testing/admin).
func (bs *BalanceScheduler) RunNow(ctx context.Context) {
	bs.refresh(ctx)
}

// LastRun returns when the last successful sweep started.
func (bs *BalanceScheduler) LastRun() time.Time {
	n := bs.lastRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
