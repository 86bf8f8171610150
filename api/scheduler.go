/*
scheduler.go - Automated hold-release scheduler

PURPOSE:
  Periodically completes frozen commission entries whose hold period has
  elapsed. Frozen money becomes available only through this transition,
  so without the scheduler (or the manual /api/admin/release endpoint)
  balances would stay frozen forever.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick asks the engine for due entries and transitions them
  - Transitions are guarded by the status state machine, so a tick
    racing a manual release loses harmlessly

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReleaseScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Release endpoint (manual trigger)
  - commission/distributor.go: ReleaseDue
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Mr-Geneza/MG-Market-sub000/commission"
)

// ReleaseScheduler completes frozen entries once their hold elapses.
type ReleaseScheduler struct {
	Engine        *commission.Engine
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReleaseScheduler creates a new scheduler.
func NewReleaseScheduler(engine *commission.Engine, logger *zap.Logger) *ReleaseScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReleaseScheduler{
		Engine:        engine,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *ReleaseScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("release scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	rs.Logger.Info("release scheduler started",
		zap.Duration("check_interval", rs.CheckInterval))
}

// Stop stops the scheduler.
func (rs *ReleaseScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.Logger.Info("release scheduler stopped")
	}
}

func (rs *ReleaseScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.releaseDue()

	for {
		select {
		case <-rs.ticker.C:
			rs.releaseDue()
		case <-rs.stop:
			return
		}
	}
}

func (rs *ReleaseScheduler) releaseDue() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	released, err := rs.Engine.ReleaseDue(ctx, time.Now().UTC())
	if err != nil {
		rs.Logger.Error("scheduled release failed", zap.Error(err))
		return
	}
	if released > 0 {
		rs.Logger.Info("released due commissions", zap.Int("count", released))
	}
}
