/*
scheduler.go - Automated year-end rollover scheduler

PURPOSE:
  Closes the previous year without anyone having to remember it.
  Shortly after New Year the scheduler runs the same rollover the admin
  endpoint exposes: overtime carry-over written to January, vacation
  accounts opened for the new year.

DESIGN:
  - Background goroutine with a configurable check interval
  - Fires only while the current month is January and the previous
    year has not been closed by this process yet
  - The rollover itself is deterministic, so a repeated run after a
    restart converges to the same rows

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewRolloverScheduler(rollover, clock)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - engine/rollover.go: The close itself
  - handlers.go: RunRollover endpoint (manual close)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/warp/worktime-engine/engine"
)

// schedulerActor marks automatic closes in the audit trail.
const schedulerActor = engine.UserID("rollover-scheduler")

// RolloverScheduler triggers the year-end close automatically.
type RolloverScheduler struct {
	Rollover      *engine.Rollover
	Clock         engine.Clock
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed map[int]bool
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(rollover *engine.Rollover, clock engine.Clock) *RolloverScheduler {
	return &RolloverScheduler{
		Rollover:      rollover,
		Clock:         clock,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
		closed:        make(map[int]bool),
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Info().Msg("rollover scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	log.Info().Dur("interval", rs.CheckInterval).Msg("rollover scheduler started")
}

// Stop stops the scheduler and waits for an in-flight check.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		log.Info().Msg("rollover scheduler stopped")
	}
}

func (rs *RolloverScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.check()

	for {
		select {
		case <-rs.ticker.C:
			rs.check()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RolloverScheduler) check() {
	today := rs.Clock.Today()
	if today.Month() != time.January {
		return
	}
	year := today.Year() - 1

	rs.mu.Lock()
	done := rs.closed[year]
	rs.mu.Unlock()
	if done {
		return
	}

	ctx := context.Background()
	result, err := rs.Rollover.Run(ctx, schedulerActor, year, false)
	if err != nil {
		log.Error().Int("year", year).Err(err).Msg("automatic year-end close failed")
		return
	}

	rs.mu.Lock()
	rs.closed[year] = true
	rs.mu.Unlock()

	log.Info().Int("year", year).Int("users", len(result.Users)).Msg("automatic year-end close completed")
}

// RunNow triggers an immediate check (for testing/admin).
func (rs *RolloverScheduler) RunNow() {
	rs.check()
}
