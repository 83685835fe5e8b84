/*
store.go - Persistence interface for source facts and derived state

PURPOSE:
  Defines the interface between the accounting logic and the database.
  Source facts (users, entries, absences, corrections, holidays) have
  normal CRUD; derived state (transactions, monthly projections) is only
  ever written wholesale by the rebuilder.

KEY INTERFACES:
  Store:   Fact CRUD, ledger reads/writes, projection upserts
  TxStore: Store plus WithTx for atomic multi-table operations

DERIVED-STATE CONTRACT:
  Ledger rows are deleted and re-inserted one whole month at a time.
  There is deliberately no single-row update or delete for transactions;
  the rebuilder owns them.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - engine/store/memory.go: In-memory for tests

SEE ALSO:
  - rebuild.go: The orchestrator driving month rewrites
  - ledger.go: Balance reads on top of this interface
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// --- Users ---

	CreateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id UserID) (*User, error)
	UserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error

	// ListUsers returns all users not soft-deleted, ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)

	// SoftDeleteUser marks a user deleted without touching their history.
	SoftDeleteUser(ctx context.Context, id UserID, at time.Time) error

	// --- Time entries ---

	CreateTimeEntry(ctx context.Context, e *TimeEntry) error
	TimeEntryByID(ctx context.Context, id EntryID) (*TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, e *TimeEntry) error
	DeleteTimeEntry(ctx context.Context, id EntryID) error

	// EntriesInRange returns a user's entries with date in the span,
	// ordered by (date, id).
	EntriesInRange(ctx context.Context, userID UserID, span Span) ([]*TimeEntry, error)

	// DeleteEntriesInRange removes and returns a user's entries in the
	// span. Used by the strict conflict policy on absence approval.
	DeleteEntriesInRange(ctx context.Context, userID UserID, span Span) ([]*TimeEntry, error)

	// --- Absences ---

	CreateAbsence(ctx context.Context, a *AbsenceRequest) error
	AbsenceByID(ctx context.Context, id AbsenceID) (*AbsenceRequest, error)
	UpdateAbsence(ctx context.Context, a *AbsenceRequest) error
	DeleteAbsence(ctx context.Context, id AbsenceID) error
	AbsencesForUser(ctx context.Context, userID UserID) ([]*AbsenceRequest, error)

	// AbsencesInRange returns a user's absences overlapping the span,
	// filtered to the given statuses (all statuses when empty).
	AbsencesInRange(ctx context.Context, userID UserID, span Span, statuses []AbsenceStatus) ([]*AbsenceRequest, error)

	// ListAbsences returns absences across users, newest first, filtered
	// by status when given.
	ListAbsences(ctx context.Context, status *AbsenceStatus) ([]*AbsenceRequest, error)

	// --- Corrections ---

	CreateCorrection(ctx context.Context, c *OvertimeCorrection) error
	CorrectionByID(ctx context.Context, id CorrectionID) (*OvertimeCorrection, error)
	DeleteCorrection(ctx context.Context, id CorrectionID) error
	CorrectionsForUser(ctx context.Context, userID UserID) ([]*OvertimeCorrection, error)
	CorrectionsInRange(ctx context.Context, userID UserID, span Span) ([]*OvertimeCorrection, error)

	// --- Holidays ---

	// UpsertHolidays inserts or replaces holidays keyed by date.
	UpsertHolidays(ctx context.Context, hs []Holiday) error
	HolidaysInYear(ctx context.Context, year int) ([]Holiday, error)

	// --- Ledger ---

	// AppendTransactions inserts rows in order, assigning monotonically
	// growing ids.
	AppendTransactions(ctx context.Context, txs []Transaction) error

	// DeleteTransactionsForMonth clears one month of derived rows.
	DeleteTransactionsForMonth(ctx context.Context, userID UserID, month Month) error

	TransactionsForMonth(ctx context.Context, userID UserID, month Month) ([]Transaction, error)
	TransactionsInRange(ctx context.Context, userID UserID, span Span) ([]Transaction, error)
	LatestTransaction(ctx context.Context, userID UserID) (*Transaction, error)
	LatestTransactionOnOrBefore(ctx context.Context, userID UserID, d Date) (*Transaction, error)

	// --- Monthly projection ---

	UpsertOvertimeMonth(ctx context.Context, om *OvertimeMonth) error
	OvertimeMonthFor(ctx context.Context, userID UserID, month Month) (*OvertimeMonth, error)
	OvertimeMonthsInYear(ctx context.Context, userID UserID, year int) ([]OvertimeMonth, error)

	// SetCarryover writes only the carry-over column of a projection row,
	// creating the row when missing.
	SetCarryover(ctx context.Context, userID UserID, month Month, carryover Hours) error

	// --- Vacation balance ---

	VacationBalanceFor(ctx context.Context, userID UserID, year int) (*VacationBalance, error)
	UpsertVacationBalance(ctx context.Context, vb *VacationBalance) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support. Every mutation that spans
// tables (absence approval, month rebuild, year rollover) runs inside
// WithTx so partial writes never become visible.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// COLLABORATORS - External services the core consumes
// =============================================================================

// HolidayOracle fetches the public holidays of a year from an external
// source. Failures are logged and tolerated; the engine falls back to
// holidays already stored.
type HolidayOracle interface {
	Load(ctx context.Context, year int) ([]Holiday, error)
}

// NopOracle never knows any holidays.
type NopOracle struct{}

func (NopOracle) Load(ctx context.Context, year int) ([]Holiday, error) { return nil, nil }

// StaticOracle serves a fixed per-year set. Used for tests and for the
// built-in nationwide calendar when no external source is configured.
type StaticOracle map[int][]Holiday

func (o StaticOracle) Load(ctx context.Context, year int) ([]Holiday, error) { return o[year], nil }

// GermanNationwideOracle covers the holidays observed in every German
// state. State-specific days come in via the holiday upsert endpoint.
func GermanNationwideOracle(years ...int) StaticOracle {
	o := make(StaticOracle, len(years))
	for _, y := range years {
		o[y] = []Holiday{
			{Date: NewDate(y, time.January, 1), Name: "Neujahr", Federal: true},
			{Date: easterOf(y).AddDays(-2), Name: "Karfreitag", Federal: true},
			{Date: easterOf(y).AddDays(1), Name: "Ostermontag", Federal: true},
			{Date: NewDate(y, time.May, 1), Name: "Tag der Arbeit", Federal: true},
			{Date: easterOf(y).AddDays(39), Name: "Christi Himmelfahrt", Federal: true},
			{Date: easterOf(y).AddDays(50), Name: "Pfingstmontag", Federal: true},
			{Date: NewDate(y, time.October, 3), Name: "Tag der Deutschen Einheit", Federal: true},
			{Date: NewDate(y, time.December, 25), Name: "1. Weihnachtstag", Federal: true},
			{Date: NewDate(y, time.December, 26), Name: "2. Weihnachtstag", Federal: true},
		}
	}
	return o
}

// easterOf computes Easter Sunday (Gregorian, anonymous Gauss algorithm).
func easterOf(year int) Date {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return NewDate(year, time.Month(month), day)
}

// Notification kinds emitted by the engine. Delivery is best-effort.
const (
	NotifyAbsenceApproved = "absence_approved"
	NotifyAbsenceRejected = "absence_rejected"
	NotifyEntriesDeleted  = "entries_deleted"
	NotifyYearEndRollover = "year_end_rollover"
)

type Notifier interface {
	Emit(ctx context.Context, userID UserID, kind string, payload map[string]any)
}

// NopNotifier drops all notifications.
type NopNotifier struct{}

func (NopNotifier) Emit(ctx context.Context, userID UserID, kind string, payload map[string]any) {}

// AuditLogger records who did what. Best-effort: failures must not fail
// the audited operation.
type AuditLogger interface {
	Record(ctx context.Context, actorID UserID, action AuditAction, entity string, entityID string, diff map[string]any)
}

// NopAudit drops all audit entries.
type NopAudit struct{}

func (NopAudit) Record(ctx context.Context, actorID UserID, action AuditAction, entity string, entityID string, diff map[string]any) {
}

type AuditAction string

const (
	AuditUserCreated       AuditAction = "user_created"
	AuditUserUpdated       AuditAction = "user_updated"
	AuditUserDeleted       AuditAction = "user_deleted"
	AuditEntryCreated      AuditAction = "entry_created"
	AuditEntryUpdated      AuditAction = "entry_updated"
	AuditEntryDeleted      AuditAction = "entry_deleted"
	AuditAbsenceCreated    AuditAction = "absence_created"
	AuditAbsenceUpdated    AuditAction = "absence_updated"
	AuditAbsenceApproved   AuditAction = "absence_approved"
	AuditAbsenceRejected   AuditAction = "absence_rejected"
	AuditAbsenceDeleted    AuditAction = "absence_deleted"
	AuditCorrection        AuditAction = "correction_created"
	AuditCorrectionDeleted AuditAction = "correction_deleted"
	AuditRollover          AuditAction = "year_end_rollover"
)
