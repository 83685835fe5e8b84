/*
rebuild.go - The idempotent month rebuilder

PURPOSE:
  The only writer of derived state. Given (user, month) it deletes the
  month's ledger rows, replays every day of the month through the kernel,
  appends the regenerated rows with a fresh running balance, and refreshes
  the monthly projection. Running it twice without fact changes yields
  identical rows.

THE WINDOW:
  Days outside employment or in the future produce nothing:

    start = max(firstOfMonth, hireDate)
    end   = min(lastOfMonth, endDate, today)

  An empty window still clears stale rows and zeroes the projection.

ROW EMISSION:
  Days without any activity (no entries, no absence, no corrections, zero
  target) emit nothing. Active days emit:

    regular day   earned = worked - target + corrections
    absence day   earned = worked - target + corrections
                  credit = +target (kind's credit type, or the unpaid
                  adjustment for unpaid leave)

  An approved overtime compensation additionally emits one standalone
  compensation row on its start date, deducting the consumed hours for the
  whole absence. Compensations starting beyond the replayed window (the
  absence was approved ahead of time) are emitted from the absence fact
  itself, so the deduction lands the moment the approval rebuilds the
  month rather than when the clock catches up.

ORDERING AND LOCKS:
  Rows are appended in date order, credit after earned, compensation last,
  so (date, id) reproduces the computation order. A per-(user, month)
  mutex serializes writers; multi-month operations take their locks in
  sorted order to stay deadlock-free.

CASCADE:
  Rebuilding an old month shifts every later balance. Mutation paths
  therefore rebuild from the earliest affected month forward to the
  current month (or the latest month holding rows, whichever is later).

SEE ALSO:
  - kernel.go: The per-day arithmetic
  - projection.go: The refreshed aggregate
*/
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// =============================================================================
// MONTH LOCKS
// =============================================================================

type monthLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMonthLocks() *monthLocks {
	return &monthLocks{locks: make(map[string]*sync.Mutex)}
}

func (ml *monthLocks) get(key string) *sync.Mutex {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	l, ok := ml.locks[key]
	if !ok {
		l = &sync.Mutex{}
		ml.locks[key] = l
	}
	return l
}

// =============================================================================
// REBUILDER
// =============================================================================

type Rebuilder struct {
	store TxStore
	cal   *Calendar
	clock Clock
	locks *monthLocks
}

func NewRebuilder(store TxStore, cal *Calendar, clock Clock) *Rebuilder {
	return &Rebuilder{store: store, cal: cal, clock: clock, locks: newMonthLocks()}
}

// LockMonths acquires the per-(user, month) locks in sorted order and
// returns the release function. Callers that run rebuilds inside their own
// transaction hold the locks around the whole transaction.
func (r *Rebuilder) LockMonths(userID UserID, months []Month) func() {
	keys := make([]string, 0, len(months))
	seen := make(map[string]bool, len(months))
	for _, m := range months {
		k := fmt.Sprintf("%s|%s", userID, m)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	held := make([]*sync.Mutex, 0, len(keys))
	for _, k := range keys {
		l := r.locks.get(k)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// RebuildMonth rebuilds a single month in its own transaction.
func (r *Rebuilder) RebuildMonth(ctx context.Context, userID UserID, month Month) error {
	return r.RebuildMonths(ctx, userID, []Month{month})
}

// RebuildMonths rebuilds the given months atomically, earliest first so
// each month chains onto the balances the previous one just wrote.
func (r *Rebuilder) RebuildMonths(ctx context.Context, userID UserID, months []Month) error {
	if len(months) == 0 {
		return nil
	}
	unlock := r.LockMonths(userID, months)
	defer unlock()

	return r.store.WithTx(ctx, func(s Store) error {
		for _, m := range sortedMonths(months) {
			if err := r.RebuildIn(ctx, s, userID, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// RebuildCascadeFrom rebuilds every month from the given one through the
// current month, extended to the latest month already holding rows.
// Mutation paths use this to keep the running balance consistent.
func (r *Rebuilder) RebuildCascadeFrom(ctx context.Context, userID UserID, from Month) error {
	months, unlock := r.LockCascade(ctx, userID, from)
	defer unlock()

	return r.store.WithTx(ctx, func(s Store) error {
		for _, m := range months {
			if err := r.RebuildIn(ctx, s, userID, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// LockCascade derives the cascade from the given month and acquires its
// locks, then re-derives: a row appended between derivation and
// acquisition could otherwise land beyond the locked range. The cascade
// is contiguous from a fixed start, so comparing lengths detects growth.
func (r *Rebuilder) LockCascade(ctx context.Context, userID UserID, from Month) ([]Month, func()) {
	for {
		months := r.CascadeMonths(ctx, userID, from)
		unlock := r.LockMonths(userID, months)
		if len(r.CascadeMonths(ctx, userID, from)) == len(months) {
			return months, unlock
		}
		unlock()
	}
}

// CascadeMonths lists the months RebuildCascadeFrom would touch.
func (r *Rebuilder) CascadeMonths(ctx context.Context, userID UserID, from Month) []Month {
	upper := r.clock.Today().MonthOf()
	latest, err := r.store.LatestTransaction(ctx, userID)
	if err != nil {
		log.Warn().Str("user", string(userID)).Err(err).
			Msg("latest transaction lookup failed, cascade may stop at the current month")
	} else if latest != nil {
		if lm := latest.Date.MonthOf(); lm.After(upper) {
			upper = lm
		}
	}
	if from.After(upper) {
		upper = from
	}
	var months []Month
	for m := from; !m.After(upper); m = m.Next() {
		months = append(months, m)
	}
	return months
}

// RebuildIn rebuilds one month inside the caller's transaction. The caller
// must hold the month's lock.
func (r *Rebuilder) RebuildIn(ctx context.Context, s Store, userID UserID, month Month) error {
	u, err := s.UserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.DeleteTransactionsForMonth(ctx, userID, month); err != nil {
		return err
	}

	opening, err := NewLedger(s).OpeningBalance(ctx, userID, month)
	if err != nil {
		return err
	}

	window := r.windowFor(u, month)
	var (
		days []DayResult
		rows []Transaction
	)
	balance := opening
	if !window.IsEmpty() {
		facts, err := r.gatherWindow(ctx, s, u, window)
		if err != nil {
			return err
		}
		days, rows, err = r.replay(ctx, s, u, window, facts, opening)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			balance = rows[len(rows)-1].BalanceAfter
		}
	}

	comps, err := r.futureCompensationRows(ctx, s, u, month, balance)
	if err != nil {
		return err
	}
	rows = append(rows, comps...)
	if len(rows) > 0 {
		if err := s.AppendTransactions(ctx, rows); err != nil {
			return err
		}
	}

	om := SummarizeMonth(userID, month, days)
	if err := s.UpsertOvertimeMonth(ctx, &om); err != nil {
		return err
	}

	log.Debug().
		Str("user", string(userID)).
		Str("month", month.String()).
		Int("rows", len(rows)).
		Msg("month rebuilt")
	return nil
}

// futureCompensationRows emits the deduction rows of approved overtime
// compensations whose start date lies in the month but after today. The
// replay never visits those days, yet the hours are spent the moment the
// approval lands; emitting from the absence fact keeps the rebuild
// idempotent, and once the clock reaches the start date the replay takes
// over for the same row.
func (r *Rebuilder) futureCompensationRows(ctx context.Context, s Store, u *User, month Month, balance Hours) ([]Transaction, error) {
	ahead := Span{
		Start: MaxDate(month.First(), MaxDate(u.HireDate, r.clock.Today().AddDays(1))),
		End:   month.Last(),
	}
	if u.EndDate != nil {
		ahead.End = MinDate(ahead.End, *u.EndDate)
	}
	if ahead.IsEmpty() {
		return nil, nil
	}

	absences, err := s.AbsencesInRange(ctx, u.ID, ahead, []AbsenceStatus{AbsenceApproved})
	if err != nil {
		return nil, err
	}
	sort.Slice(absences, func(i, j int) bool { return absences[i].StartDate.Before(absences[j].StartDate) })

	var rows []Transaction
	for _, a := range absences {
		// Comps overlapping the span but starting inside the replayed
		// window already got their row from the replay.
		if a.Kind != AbsenceOvertimeComp || !ahead.Contains(a.StartDate) {
			continue
		}
		hours, err := AbsenceCreditHours(ctx, r.cal, u, a.Kind, a.Span())
		if err != nil {
			return nil, err
		}
		tx := Transaction{
			UserID:        u.ID,
			Date:          a.StartDate,
			Type:          TxCompensation,
			Hours:         hours.Neg().Round2(),
			Description:   fmt.Sprintf("overtime compensation %s..%s", a.StartDate, a.EndDate),
			ReferenceType: RefAbsence,
			ReferenceID:   string(a.ID),
			BalanceBefore: balance,
		}
		tx.BalanceAfter = balance.Add(tx.Hours)
		balance = tx.BalanceAfter
		rows = append(rows, tx)
	}
	return rows, nil
}

func (r *Rebuilder) windowFor(u *User, month Month) Span {
	start := MaxDate(month.First(), u.HireDate)
	end := MinDate(month.Last(), r.clock.Today())
	if u.EndDate != nil {
		end = MinDate(end, *u.EndDate)
	}
	return Span{Start: start, End: end}
}

// =============================================================================
// FACT GATHERING
// =============================================================================

type windowFacts struct {
	entries     map[Date][]*TimeEntry
	corrections map[Date][]*OvertimeCorrection
	absences    []*AbsenceRequest
}

func (wf *windowFacts) absenceOn(d Date) *AbsenceRequest {
	for _, a := range wf.absences {
		if a.Covers(d) {
			return a
		}
	}
	return nil
}

func (r *Rebuilder) gatherWindow(ctx context.Context, s Store, u *User, window Span) (*windowFacts, error) {
	entries, err := s.EntriesInRange(ctx, u.ID, window)
	if err != nil {
		return nil, err
	}
	corrections, err := s.CorrectionsInRange(ctx, u.ID, window)
	if err != nil {
		return nil, err
	}
	absences, err := s.AbsencesInRange(ctx, u.ID, window, []AbsenceStatus{AbsenceApproved})
	if err != nil {
		return nil, err
	}

	wf := &windowFacts{
		entries:     make(map[Date][]*TimeEntry),
		corrections: make(map[Date][]*OvertimeCorrection),
		absences:    absences,
	}
	for _, e := range entries {
		key := e.Date
		wf.entries[key] = append(wf.entries[key], e)
	}
	for _, c := range corrections {
		key := c.Date
		wf.corrections[key] = append(wf.corrections[key], c)
	}
	return wf, nil
}

// gatherDay assembles the facts of a single date for drill-down reads.
func (r *Rebuilder) gatherDay(ctx context.Context, s Store, u *User, d Date) (DayFacts, error) {
	day := NewSpan(d, d)
	wf, err := r.gatherWindow(ctx, s, u, day)
	if err != nil {
		return DayFacts{}, err
	}
	target, err := r.cal.TargetHours(ctx, u, d)
	if err != nil {
		return DayFacts{}, err
	}
	return DayFacts{
		Date:        d,
		Target:      target,
		Entries:     wf.entries[d],
		Absence:     wf.absenceOn(d),
		Corrections: wf.corrections[d],
	}, nil
}

// =============================================================================
// REPLAY - Days to rows
// =============================================================================

func (r *Rebuilder) replay(ctx context.Context, s Store, u *User, window Span, wf *windowFacts, opening Hours) ([]DayResult, []Transaction, error) {
	var (
		days []DayResult
		rows []Transaction
	)
	balance := opening

	emit := func(tx Transaction) {
		tx.UserID = u.ID
		tx.Hours = tx.Hours.Round2()
		tx.BalanceBefore = balance
		tx.BalanceAfter = balance.Add(tx.Hours)
		balance = tx.BalanceAfter
		rows = append(rows, tx)
	}

	err := window.Each(func(d Date) error {
		target, err := r.cal.TargetHours(ctx, u, d)
		if err != nil {
			return err
		}
		facts := DayFacts{
			Date:        d,
			Target:      target,
			Entries:     wf.entries[d],
			Absence:     wf.absenceOn(d),
			Corrections: wf.corrections[d],
		}
		res := ComputeDay(facts)
		days = append(days, res)

		if facts.HasActivity() {
			for _, tx := range dayRows(res) {
				emit(tx)
			}
		}
		if comp := compensationRow(res); comp != nil {
			hours, err := AbsenceCreditHours(ctx, r.cal, u, res.Absence.Kind, res.Absence.Span())
			if err != nil {
				return err
			}
			comp.Hours = hours.Neg()
			emit(*comp)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return days, rows, nil
}

// dayRows renders a day result as its ledger row pattern.
func dayRows(res DayResult) []Transaction {
	earned := Transaction{
		Date:          res.Date,
		Type:          TxEarned,
		Hours:         res.Worked.Sub(res.Target).Add(res.Corrections),
		Description:   earnedDescription(res),
		ReferenceType: RefDay,
		ReferenceID:   res.Date.String(),
	}

	covered := res.Absence != nil && res.Absence.Status == AbsenceApproved
	if !covered {
		return []Transaction{earned}
	}
	if res.Target.IsZero() {
		// Nothing to neutralize on a zero-target day; only real activity
		// remains.
		if earned.Hours.IsZero() {
			return nil
		}
		return []Transaction{earned}
	}

	traits := res.Absence.Kind.Traits()
	credit := Transaction{
		Date:          res.Date,
		Type:          traits.CreditType,
		Hours:         res.Target,
		Description:   creditDescription(res.Absence),
		ReferenceType: RefAbsence,
		ReferenceID:   string(res.Absence.ID),
	}
	return []Transaction{earned, credit}
}

// compensationRow prepares the standalone deduction row of an overtime
// compensation absence, emitted once on the absence's start date. Hours
// are filled in by the caller.
func compensationRow(res DayResult) *Transaction {
	a := res.Absence
	if a == nil || a.Kind != AbsenceOvertimeComp || a.Status != AbsenceApproved {
		return nil
	}
	if !res.Date.Equal(a.StartDate) {
		return nil
	}
	return &Transaction{
		Date:          res.Date,
		Type:          TxCompensation,
		Description:   fmt.Sprintf("overtime compensation %s..%s", a.StartDate, a.EndDate),
		ReferenceType: RefAbsence,
		ReferenceID:   string(a.ID),
	}
}

func earnedDescription(res DayResult) string {
	desc := fmt.Sprintf("worked %sh, target %sh", res.Worked, res.Target)
	if !res.Corrections.IsZero() {
		desc += fmt.Sprintf(", corrections %sh", res.Corrections)
	}
	return desc
}

func creditDescription(a *AbsenceRequest) string {
	if a.Kind.Traits().Paid {
		return a.Kind.Label() + " credit"
	}
	return "unpaid leave target adjustment"
}

func sortedMonths(months []Month) []Month {
	out := make([]Month, len(months))
	copy(out, months)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
