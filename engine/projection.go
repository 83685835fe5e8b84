/*
projection.go - Materialized monthly aggregates and read-side reports

PURPOSE:
  Monthly overtime numbers are read far more often than they change, so
  each (user, month) keeps a materialized row: target, actual, and the
  carry-over inherited from the previous year. The rebuilder refreshes the
  row whenever the month's facts change; reads never re-derive it.

CONSISTENCY:
  targetHours = sum of per-day effective targets (unpaid leave excluded)
  actualHours = sum of per-day actuals
  overtime    = actualHours - targetHours, never stored, always derived

SEE ALSO:
  - rebuild.go: Writes these rows
  - rollover.go: Writes carryoverFromPreviousYear each January
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// OVERTIME MONTH - The per-(user, month) projection
// =============================================================================

type OvertimeMonth struct {
	UserID      UserID
	Month       Month
	TargetHours Hours
	ActualHours Hours

	// CarryoverFromPreviousYear is only ever non-zero on January rows.
	CarryoverFromPreviousYear Hours
}

// Overtime is the virtual column actual - target.
func (om *OvertimeMonth) Overtime() Hours { return om.ActualHours.Sub(om.TargetHours) }

// SummarizeMonth folds day results into the projection row, rounding at
// this persistence boundary.
func SummarizeMonth(userID UserID, month Month, days []DayResult) OvertimeMonth {
	om := OvertimeMonth{UserID: userID, Month: month}
	for _, d := range days {
		om.TargetHours = om.TargetHours.Add(d.EffectiveTarget())
		om.ActualHours = om.ActualHours.Add(d.Actual)
	}
	om.TargetHours = om.TargetHours.Round2()
	om.ActualHours = om.ActualHours.Round2()
	return om
}

// =============================================================================
// YEAR OVERVIEW
// =============================================================================

type YearOverview struct {
	UserID    UserID
	Year      int
	Carryover Hours
	Months    []OvertimeMonth
}

// TotalOvertime is the year's running result: carry-over plus the sum of
// monthly overtime.
func (y *YearOverview) TotalOvertime() Hours {
	total := y.Carryover
	for i := range y.Months {
		total = total.Add(y.Months[i].Overtime())
	}
	return total
}

// =============================================================================
// REPORTS - Read-side service
// =============================================================================

// Reports answers the read queries of the API. Months that were never
// rebuilt materialize on first read.
type Reports struct {
	store     Store
	ledger    *Ledger
	rebuilder *Rebuilder
	clock     Clock
}

func NewReports(store Store, rebuilder *Rebuilder, clock Clock) *Reports {
	return &Reports{store: store, ledger: NewLedger(store), rebuilder: rebuilder, clock: clock}
}

// MonthlyOvertime returns the projection row, rebuilding it first when the
// month has started and no row exists yet.
func (r *Reports) MonthlyOvertime(ctx context.Context, userID UserID, month Month) (*OvertimeMonth, error) {
	om, err := r.store.OvertimeMonthFor(ctx, userID, month)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if om != nil {
		return om, nil
	}
	if month.First().After(r.clock.Today()) {
		return &OvertimeMonth{UserID: userID, Month: month}, nil
	}
	if err := r.rebuilder.RebuildMonth(ctx, userID, month); err != nil {
		return nil, err
	}
	return r.store.OvertimeMonthFor(ctx, userID, month)
}

// YearOverview collects the materialized months of a year.
func (r *Reports) YearOverview(ctx context.Context, userID UserID, year int) (*YearOverview, error) {
	months, err := r.store.OvertimeMonthsInYear(ctx, userID, year)
	if err != nil {
		return nil, err
	}
	ov := &YearOverview{UserID: userID, Year: year, Months: months}
	for i := range months {
		if months[i].Month.Month == time.January {
			ov.Carryover = months[i].CarryoverFromPreviousYear
		}
	}
	return ov, nil
}

// Balance returns the current ledger balance.
func (r *Reports) Balance(ctx context.Context, userID UserID) (Hours, error) {
	return r.ledger.Balance(ctx, userID)
}

// BalanceAt returns the ledger balance as of the end of a date.
func (r *Reports) BalanceAt(ctx context.Context, userID UserID, asOf Date) (Hours, error) {
	return r.ledger.BalanceAt(ctx, userID, asOf)
}

// History lists ledger rows of a span in (date, id) order.
func (r *Reports) History(ctx context.Context, userID UserID, span Span) ([]Transaction, error) {
	return r.ledger.History(ctx, userID, span)
}

// DayBreakdown recomputes one day from live facts, for drill-down views.
func (r *Reports) DayBreakdown(ctx context.Context, userID UserID, d Date) (*DayResult, error) {
	u, err := r.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	facts, err := r.rebuilder.gatherDay(ctx, r.store, u, d)
	if err != nil {
		return nil, err
	}
	res := ComputeDay(facts)
	return &res, nil
}
