/*
Package engine implements a working-time accounting core: contracted target
hours, logged working time, absence credits, and a cumulative overtime ledger.

PURPOSE:
Track, per employee and per civil date, the difference between the hours an
employment contract demands and the hours actually delivered, and keep that
difference as an auditable running balance (the overtime account).

KEY CONCEPTS:
  - Target hours: contracted hours for one (user, date), derived from the
    weekly contract or a per-weekday schedule, zeroed by holidays, weekends
    and the hire/end employment window.
  - Day result: the pure per-day calculation combining worked time, paid
    absence credits, unpaid-leave reductions and manual corrections.
  - Ledger: append-only transactions, each carrying balanceBefore and
    balanceAfter, ordered by (date, id). Balances are read from the latest
    row, never re-summed.
  - Projection: per-(user, month) aggregate of target, actual and overtime,
    materialized for fast reads and refreshed by the rebuilder.
  - Rebuild: the only writer of derived state. Deletes one month of ledger
    rows and reconstructs them deterministically from source facts.

DESIGN PRINCIPLES:
  - Source facts (entries, absences, corrections, holidays) are the truth;
    everything derived is disposable and rebuilt idempotently.
  - The daily kernel is a pure function over injected facts.
  - All hour arithmetic is decimal; rounding to 2 decimals happens at
    persistence boundaries only.
  - Civil dates in a single configured zone; no wall-clock arithmetic.

USAGE:

	cal := engine.NewCalendar(store, oracle, logger)
	rb := engine.NewRebuilder(store, cal, clock, logger)
	err := rb.RebuildMonth(ctx, userID, engine.MustParseMonth("2026-01"))

SEE ALSO:
  - kernel.go: the pure daily calculation
  - ledger.go: transaction types and append patterns
  - rebuild.go: the month rebuilder and its locking
  - schedule.go: target-hour resolution and the holiday calendar
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - Decimal hour amounts
// =============================================================================
//
// Hours wraps a decimal so that 0.1h-style amounts never meet binary floats.
// The zero value is 0h and ready to use.

type Hours struct {
	Value decimal.Decimal
}

func HoursOf(v float64) Hours  { return Hours{Value: decimal.NewFromFloat(v)} }
func HoursFromInt(v int) Hours { return Hours{Value: decimal.NewFromInt(int64(v))} }
func ZeroHours() Hours         { return Hours{Value: decimal.Zero} }

// ParseHours parses a decimal hour string such as "7.5" or "-8".
func ParseHours(s string) (Hours, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Hours{}, err
	}
	return Hours{Value: d}, nil
}

func MustParseHours(s string) Hours {
	h, err := ParseHours(s)
	if err != nil {
		panic(err)
	}
	return h
}

// Arithmetic
func (h Hours) Add(o Hours) Hours  { return Hours{Value: h.Value.Add(o.Value)} }
func (h Hours) Sub(o Hours) Hours  { return Hours{Value: h.Value.Sub(o.Value)} }
func (h Hours) Neg() Hours         { return Hours{Value: h.Value.Neg()} }
func (h Hours) MulInt(n int) Hours { return Hours{Value: h.Value.Mul(decimal.NewFromInt(int64(n)))} }
func (h Hours) DivInt(n int) Hours { return Hours{Value: h.Value.Div(decimal.NewFromInt(int64(n)))} }

// Comparison
func (h Hours) Equal(o Hours) bool              { return h.Value.Equal(o.Value) }
func (h Hours) GreaterThan(o Hours) bool        { return h.Value.GreaterThan(o.Value) }
func (h Hours) GreaterThanOrEqual(o Hours) bool { return h.Value.GreaterThanOrEqual(o.Value) }
func (h Hours) LessThan(o Hours) bool           { return h.Value.LessThan(o.Value) }
func (h Hours) IsZero() bool                    { return h.Value.IsZero() }
func (h Hours) IsNegative() bool                { return h.Value.IsNegative() }
func (h Hours) IsPositive() bool                { return h.Value.IsPositive() }

// Round2 rounds half away from zero to 2 decimals, the persistence rounding.
func (h Hours) Round2() Hours { return Hours{Value: h.Value.Round(2)} }

func (h Hours) Float64() float64 { f, _ := h.Value.Float64(); return f }
func (h Hours) String() string   { return h.Value.String() }

func (h Hours) MarshalJSON() ([]byte, error)  { return h.Value.MarshalJSON() }
func (h *Hours) UnmarshalJSON(b []byte) error { return h.Value.UnmarshalJSON(b) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UserID       string
	EntryID      string
	AbsenceID    string
	CorrectionID string
)

// =============================================================================
// USERS
// =============================================================================

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleEmployee }

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

type User struct {
	ID                  UserID
	Username            string
	Email               string // empty = none
	PasswordHash        string
	FirstName           string
	LastName            string
	Role                Role
	WeeklyHours         Hours
	WorkSchedule        WorkSchedule // nil = derive Mon-Fri from WeeklyHours
	VacationDaysPerYear int
	HireDate            Date
	EndDate             *Date
	Status              UserStatus
	DeletedAt           *time.Time
}

func (u *User) DisplayName() string { return u.FirstName + " " + u.LastName }

// Actor identifies who performs an operation, for permission checks and
// audit records.
type Actor struct {
	ID   UserID
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// May reports whether the actor can act on records owned by the user.
// Admins act on anyone, employees only on themselves.
func (a Actor) May(owner UserID) bool { return a.IsAdmin() || a.ID == owner }

// EmployedOn reports whether the date falls inside [HireDate, EndDate].
func (u *User) EmployedOn(d Date) bool {
	if d.Before(u.HireDate) {
		return false
	}
	if u.EndDate != nil && d.After(*u.EndDate) {
		return false
	}
	return true
}

// =============================================================================
// SOURCE FACTS
// =============================================================================

type EntryLocation string

const (
	LocationOffice     EntryLocation = "office"
	LocationHomeOffice EntryLocation = "homeoffice"
	LocationField      EntryLocation = "field"
)

// TimeEntry is one logged block of working time on a single date.
type TimeEntry struct {
	ID           EntryID
	UserID       UserID
	Date         Date
	Hours        Hours
	BreakMinutes int
	StartTime    string // "15:04", empty when not tracked
	EndTime      string
	Location     EntryLocation
	CreatedAt    time.Time
}

type CorrectionKind string

const (
	CorrectionSystemError   CorrectionKind = "system_error"
	CorrectionAbsenceCredit CorrectionKind = "absence_credit"
	CorrectionMigration     CorrectionKind = "migration"
	CorrectionManual        CorrectionKind = "manual"
)

func (k CorrectionKind) Valid() bool {
	switch k {
	case CorrectionSystemError, CorrectionAbsenceCredit, CorrectionMigration, CorrectionManual:
		return true
	}
	return false
}

// OvertimeCorrection is a manual balance adjustment entered by an admin.
// Corrections flow through the daily kernel of their date rather than being
// applied to the balance directly.
type OvertimeCorrection struct {
	ID        CorrectionID
	UserID    UserID
	Date      Date
	Hours     Hours
	Reason    string
	Kind      CorrectionKind
	CreatedBy UserID
	CreatedAt time.Time
}

// Holiday is a public holiday. Target hours are zero on holidays regardless
// of the user's schedule.
type Holiday struct {
	Date    Date
	Name    string
	Federal bool
}
