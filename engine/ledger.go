/*
ledger.go - Append-only overtime transaction log

PURPOSE:
  Every balance-affecting event is a ledger row carrying the cumulative
  balanceBefore/balanceAfter at its position. The balance of a user at any
  date is the balanceAfter of the latest row at or before that date. Rows
  are never summed at read time.

CRITICAL INVARIANTS:
  1. ORDERING: Rows are totally ordered by (date, id); ids only grow.
  2. RUNNING SUM: balanceBefore of a row equals balanceAfter of its
     predecessor; balanceAfter = balanceBefore + hours.
  3. OWNERSHIP: Derived rows (earned, credits, adjustments, compensation)
     are written exclusively by the month rebuilder, which regenerates them
     from source facts. Hand-written rows would be destroyed by the next
     rebuild of their month.

CORRECTIONS:
  Mistakes are fixed by inserting an overtime correction fact and letting
  the rebuilder fold it into the affected day, never by editing rows.

SEE ALSO:
  - rebuild.go: The only writer of derived rows
  - kernel.go: Produces the per-day numbers the rows carry
*/
package engine

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

type TxType string

const (
	// TxEarned is the per-day difference worked - target + corrections.
	TxEarned TxType = "earned"

	// Per-day absence credits, one type per paid kind.
	TxVacationCredit     TxType = "vacation_credit"
	TxSickCredit         TxType = "sick_credit"
	TxOvertimeCompCredit TxType = "overtime_comp_credit"
	TxSpecialCredit      TxType = "special_credit"

	// TxUnpaidAdjustment cancels the negative earned row of an unpaid leave
	// day; the target is reduced rather than the balance charged.
	TxUnpaidAdjustment TxType = "unpaid_adjustment"

	// TxCompensation deducts the hours consumed by an approved overtime
	// compensation absence, materialized once per absence.
	TxCompensation TxType = "compensation"

	// Types accepted for imported or administrative rows.
	TxCorrection     TxType = "correction"
	TxCarryOver      TxType = "carry_over"
	TxPayout         TxType = "payout"
	TxYearEndBalance TxType = "year_end_balance"
	TxInitialBalance TxType = "initial_balance"
)

var txTypes = map[TxType]bool{
	TxEarned:             true,
	TxVacationCredit:     true,
	TxSickCredit:         true,
	TxOvertimeCompCredit: true,
	TxSpecialCredit:      true,
	TxUnpaidAdjustment:   true,
	TxCompensation:       true,
	TxCorrection:         true,
	TxCarryOver:          true,
	TxPayout:             true,
	TxYearEndBalance:     true,
	TxInitialBalance:     true,
}

func (t TxType) Valid() bool { return txTypes[t] }

// IsAbsenceCredit reports whether the type is a per-day paid-absence credit.
func (t TxType) IsAbsenceCredit() bool {
	switch t {
	case TxVacationCredit, TxSickCredit, TxOvertimeCompCredit, TxSpecialCredit:
		return true
	}
	return false
}

// =============================================================================
// REFERENCE TYPES - What a row points back to
// =============================================================================

const (
	RefAbsence    = "absence"
	RefTimeEntry  = "time_entry"
	RefCorrection = "correction"
	RefDay        = "day"
)

// =============================================================================
// TRANSACTION
// =============================================================================

// Transaction is one ledger row. ID is assigned by the store on append and
// grows monotonically, which makes (Date, ID) the total order.
type Transaction struct {
	ID            int64
	UserID        UserID
	Date          Date
	Type          TxType
	Hours         Hours
	BalanceBefore Hours
	BalanceAfter  Hours
	Description   string
	ReferenceType string
	ReferenceID   string
	CreatedAt     time.Time
}

// =============================================================================
// LEDGER - Balance reads and chain verification
// =============================================================================

// Ledger answers balance questions from the cumulative fields of stored
// rows. It never re-sums history.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger { return &Ledger{store: store} }

// Balance returns the current balance: balanceAfter of the latest row.
func (l *Ledger) Balance(ctx context.Context, userID UserID) (Hours, error) {
	tx, err := l.store.LatestTransaction(ctx, userID)
	if err != nil {
		return Hours{}, err
	}
	if tx == nil {
		return Hours{}, nil
	}
	return tx.BalanceAfter, nil
}

// BalanceAt returns the balance as of the end of the given date.
func (l *Ledger) BalanceAt(ctx context.Context, userID UserID, asOf Date) (Hours, error) {
	tx, err := l.store.LatestTransactionOnOrBefore(ctx, userID, asOf)
	if err != nil {
		return Hours{}, err
	}
	if tx == nil {
		return Hours{}, nil
	}
	return tx.BalanceAfter, nil
}

// OpeningBalance returns the balance the month starts from: balanceAfter of
// the latest row dated before the first of the month, zero when no such row
// exists.
func (l *Ledger) OpeningBalance(ctx context.Context, userID UserID, month Month) (Hours, error) {
	return l.BalanceAt(ctx, userID, month.First().AddDays(-1))
}

// History returns the rows of a span in (date, id) order.
func (l *Ledger) History(ctx context.Context, userID UserID, span Span) ([]Transaction, error) {
	return l.store.TransactionsInRange(ctx, userID, span)
}

// =============================================================================
// CHAIN VERIFICATION
// =============================================================================

// ChainError reports a broken running sum.
type ChainError struct {
	Index    int
	TxID     int64
	Expected Hours
	Actual   Hours
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("transaction %d (index %d): expected balanceBefore %s, found %s",
		e.TxID, e.Index, e.Expected, e.Actual)
}

func (e *ChainError) Unwrap() error { return ErrIntegrity }

// VerifyChain checks the running-sum invariant over rows already in
// (date, id) order, starting from the given opening balance.
func VerifyChain(opening Hours, txs []Transaction) error {
	balance := opening
	for i, tx := range txs {
		if !tx.BalanceBefore.Equal(balance) {
			return &ChainError{Index: i, TxID: tx.ID, Expected: balance, Actual: tx.BalanceBefore}
		}
		want := tx.BalanceBefore.Add(tx.Hours)
		if !tx.BalanceAfter.Equal(want) {
			return &ChainError{Index: i, TxID: tx.ID, Expected: want, Actual: tx.BalanceAfter}
		}
		balance = tx.BalanceAfter
	}
	return nil
}
