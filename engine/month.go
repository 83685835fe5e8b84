package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - Calendar month, the unit of ledger rebuilds and reporting
// =============================================================================

type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses "2006-01".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

func MustParseMonth(s string) Month {
	m, err := ParseMonth(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

func (m Month) First() Date { return NewDate(m.Year, m.Month, 1) }
func (m Month) Last() Date  { return m.First().AddMonths(1).AddDays(-1) }

func (m Month) Next() Month { return m.First().AddMonths(1).MonthOf() }
func (m Month) Prev() Month { return m.First().AddMonths(-1).MonthOf() }

func (m Month) Before(other Month) bool {
	return m.Year < other.Year || (m.Year == other.Year && m.Month < other.Month)
}
func (m Month) After(other Month) bool { return other.Before(m) }
func (m Month) Equal(other Month) bool { return m.Year == other.Year && m.Month == other.Month }

func (m Month) Contains(d Date) bool { return d.Year() == m.Year && d.Month() == m.Month }

func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// MonthsCovering lists every month touched by the inclusive date range.
func MonthsCovering(start, end Date) []Month {
	if end.Before(start) {
		return nil
	}
	var months []Month
	for m := start.MonthOf(); !m.After(end.MonthOf()); m = m.Next() {
		months = append(months, m)
	}
	return months
}

// MonthsOfYear lists January through December of a year.
func MonthsOfYear(year int) []Month {
	months := make([]Month, 0, 12)
	for mo := time.January; mo <= time.December; mo++ {
		months = append(months, Month{Year: year, Month: mo})
	}
	return months
}

// =============================================================================
// SPAN - Inclusive date range
// =============================================================================

type Span struct {
	Start Date
	End   Date
}

func NewSpan(start, end Date) Span { return Span{Start: start, End: end} }

// IsEmpty reports whether the span covers no days.
func (s Span) IsEmpty() bool { return s.End.Before(s.Start) }

func (s Span) Contains(d Date) bool { return d.AfterOrEqual(s.Start) && d.BeforeOrEqual(s.End) }

// Overlaps uses the inclusive rule: a.start <= b.end AND a.end >= b.start.
func (s Span) Overlaps(other Span) bool {
	return s.Start.BeforeOrEqual(other.End) && s.End.AfterOrEqual(other.Start)
}

// Clamp narrows the span to the given bounds. The result may be empty.
func (s Span) Clamp(lo, hi Date) Span {
	return Span{Start: MaxDate(s.Start, lo), End: MinDate(s.End, hi)}
}

// Days counts the days in the span, zero when empty.
func (s Span) Days() int {
	if s.IsEmpty() {
		return 0
	}
	return DaysBetween(s.Start, s.End) + 1
}

// Each visits every date of the span in order.
func (s Span) Each(fn func(Date) error) error {
	for d := s.Start; d.BeforeOrEqual(s.End); d = d.AddDays(1) {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}
