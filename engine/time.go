package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Civil date at day granularity
// =============================================================================
//
// Every date the engine touches is a civil date: no wall-clock component, no
// per-user zones. Dates are normalized to midnight UTC internally so that
// arithmetic and map keys behave; the configured zone matters only when the
// engine asks "what day is it right now" (see Clock).

type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary instant to its civil date in the given zone.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses an ISO date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.normalize().AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.normalize().AddDate(0, n, 0)} }
func (d Date) AddYears(n int) Date  { return Date{Time: d.normalize().AddDate(n, 0, 0)} }

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) Weekday() time.Weekday { return d.normalize().Weekday() }
func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) String() string { return d.normalize().Format("2006-01-02") }

// MonthOf returns the calendar month the date falls in.
func (d Date) MonthOf() Month { return Month{Year: d.Year(), Month: d.Month()} }

func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// DaysBetween counts whole days from a to b (negative when b precedes a).
func DaysBetween(a, b Date) int {
	return int(b.normalize().Sub(a.normalize()).Hours() / 24)
}

// =============================================================================
// CLOCK - The only place wall time enters the engine
// =============================================================================

// Clock resolves "today" as a civil date in the engine's configured zone.
// Tests substitute a fixed clock; production uses time.Now.
type Clock interface {
	Today() Date
}

type zoneClock struct {
	loc *time.Location
}

func NewClock(loc *time.Location) Clock { return &zoneClock{loc: loc} }

func (c *zoneClock) Today() Date { return DateOf(time.Now(), c.loc) }

// FixedClock always reports the same date. Test helper.
type FixedClock struct {
	Date Date
}

func (c FixedClock) Today() Date { return c.Date }
