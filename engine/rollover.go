/*
rollover.go - Year-end close

PURPOSE:
  At the turn of the year every active user's overtime balance becomes
  January's carry-over, and unused vacation days move into the new year's
  vacation account under the configured cap. The operation is atomic
  across all users and safe to re-run.

WHAT IS WRITTEN:
  - OvertimeMonth(user, Jan Y+1).carryoverFromPreviousYear
      = ledger balance at Dec 31 of Y
  - VacationBalance(user, Y+1).carryover = capped remaining days of Y,
    entitlement reset to the user's contract

  The ledger itself is untouched: the running balance continues across
  the year boundary, carry-over is a reporting construct.

PREVIEW:
  Preview mode computes the same numbers without persisting, so an
  operator can review before closing the year.

SEE ALSO:
  - api/scheduler.go: Fires the close shortly after midnight on Jan 1
  - vacation.go: The carry-over cap policy
*/
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

type UserRollover struct {
	UserID            UserID
	Username          string
	OvertimeCarryover Hours
	VacationRemaining int
	VacationCarryover int
	Entitlement       int
}

type RolloverResult struct {
	Year     int
	DryRun   bool
	Users    []UserRollover
	ClosedAt time.Time
}

// =============================================================================
// ROLLOVER
// =============================================================================

type Rollover struct {
	store    TxStore
	cfg      Config
	clock    Clock
	audit    AuditLogger
	notifier Notifier

	mu sync.Mutex
}

func NewRollover(store TxStore, cfg Config, clock Clock, audit AuditLogger, notifier Notifier) *Rollover {
	if audit == nil {
		audit = NopAudit{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Rollover{store: store, cfg: cfg, clock: clock, audit: audit, notifier: notifier}
}

// Run closes the given year for every active user. With dryRun the
// numbers are computed and returned but nothing is written.
func (ro *Rollover) Run(ctx context.Context, actorID UserID, year int, dryRun bool) (*RolloverResult, error) {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	today := ro.clock.Today()
	if !dryRun && year >= today.Year() {
		return nil, &ValidationError{Field: "year", Message: fmt.Sprintf("%d has not ended yet", year)}
	}

	result := &RolloverResult{Year: year, DryRun: dryRun, ClosedAt: time.Now()}

	run := func(s Store) error {
		users, err := s.ListUsers(ctx)
		if err != nil {
			return err
		}
		ledger := NewLedger(s)
		lastDay := NewDate(year, 12, 31)
		janNext := Month{Year: year + 1, Month: time.January}

		for _, u := range users {
			if u.Status != UserActive {
				continue
			}
			balance, err := ledger.BalanceAt(ctx, u.ID, lastDay)
			if err != nil {
				return fmt.Errorf("user %s: balance at %s: %w", u.ID, lastDay, err)
			}

			vb, err := RecomputeVacation(ctx, s, u, year, ro.cfg.Carryover)
			if err != nil {
				return fmt.Errorf("user %s: vacation %d: %w", u.ID, year, err)
			}
			remaining := vb.Remaining()
			carryDays := CarryoverDays(ro.cfg.Carryover, remaining)

			ur := UserRollover{
				UserID:            u.ID,
				Username:          u.Username,
				OvertimeCarryover: balance,
				VacationRemaining: remaining,
				VacationCarryover: carryDays,
				Entitlement:       u.VacationDaysPerYear,
			}
			result.Users = append(result.Users, ur)

			if dryRun {
				continue
			}
			if err := s.SetCarryover(ctx, u.ID, janNext, balance); err != nil {
				return fmt.Errorf("user %s: carryover: %w", u.ID, err)
			}
			next, err := RecomputeVacation(ctx, s, u, year+1, ro.cfg.Carryover)
			if err != nil {
				return fmt.Errorf("user %s: vacation %d: %w", u.ID, year+1, err)
			}
			next.Entitlement = u.VacationDaysPerYear
			next.Carryover = carryDays
			if err := s.UpsertVacationBalance(ctx, next); err != nil {
				return fmt.Errorf("user %s: vacation %d: %w", u.ID, year+1, err)
			}
		}
		return nil
	}

	var err error
	if dryRun {
		err = run(ro.store)
	} else {
		err = ro.store.WithTx(ctx, func(s Store) error { return run(s) })
	}
	if err != nil {
		return nil, err
	}

	if !dryRun {
		for _, ur := range result.Users {
			ro.audit.Record(ctx, actorID, AuditRollover, "user", string(ur.UserID), map[string]any{
				"year":              year,
				"overtimeCarryover": ur.OvertimeCarryover.String(),
				"vacationCarryover": ur.VacationCarryover,
				"entitlement":       ur.Entitlement,
			})
			ro.notifier.Emit(ctx, ur.UserID, NotifyYearEndRollover, map[string]any{
				"year":              year,
				"overtimeCarryover": ur.OvertimeCarryover.String(),
				"vacationCarryover": ur.VacationCarryover,
			})
		}
		log.Info().Int("year", year).Int("users", len(result.Users)).Msg("year-end rollover completed")
	}
	return result, nil
}
