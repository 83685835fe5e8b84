/*
schedule.go - Target-hour resolution and the holiday calendar

PURPOSE:
  Answers the single most load-bearing question in the engine: how many
  hours does this user owe on this date. Everything downstream (day
  results, credits, monthly targets) is built from this answer.

RESOLUTION ORDER:
  1. Outside [hireDate, endDate]  -> 0
  2. Public holiday               -> 0, regardless of schedule
  3. Per-weekday schedule set     -> schedule[weekday]
  4. Otherwise                    -> weeklyHours / 5 on Mon-Fri, 0 on Sat/Sun

HOLIDAY SOURCE:
  Holidays live in the store and are refreshed from an external oracle on
  first use per year. Oracle failure is logged, never fatal: the engine
  falls back to whatever the store already has and treats missing years
  as "no holidays known".

SEE ALSO:
  - kernel.go: Consumes target hours per day
  - businessdays.go: Counts absence days using the weekday schedule
*/
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// =============================================================================
// WORK SCHEDULE - Per-weekday contracted hours
// =============================================================================

// WorkSchedule maps weekdays to contracted hours. A missing or zero entry
// means the user does not work that weekday. Nil means no override: the
// weekly contract spread over Monday to Friday applies.
type WorkSchedule map[time.Weekday]Hours

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// WeekdayName returns the lowercase English name used in schedule JSON.
func WeekdayName(wd time.Weekday) string {
	for name, w := range weekdayNames {
		if w == wd {
			return name
		}
	}
	return ""
}

// ParseWeekday resolves a lowercase English weekday name.
func ParseWeekday(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[name]
	return wd, ok
}

func (ws WorkSchedule) MarshalJSON() ([]byte, error) {
	out := make(map[string]Hours, len(ws))
	for wd, h := range ws {
		out[WeekdayName(wd)] = h
	}
	return json.Marshal(out)
}

func (ws *WorkSchedule) UnmarshalJSON(b []byte) error {
	var raw map[string]Hours
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed := make(WorkSchedule, len(raw))
	for name, h := range raw {
		wd, ok := ParseWeekday(name)
		if !ok {
			return fmt.Errorf("unknown weekday %q", name)
		}
		parsed[wd] = h
	}
	*ws = parsed
	return nil
}

func (ws WorkSchedule) Validate() error {
	for wd, h := range ws {
		if h.IsNegative() || h.GreaterThan(HoursFromInt(24)) {
			return &ValidationError{
				Field:   "workSchedule." + WeekdayName(wd),
				Message: "hours must be between 0 and 24",
			}
		}
	}
	return nil
}

// WeeklyTotal sums the scheduled hours of one week.
func (ws WorkSchedule) WeeklyTotal() Hours {
	total := Hours{}
	for _, h := range ws {
		total = total.Add(h)
	}
	return total
}

// ActiveWeekdays lists weekdays with hours > 0, Monday first.
func (ws WorkSchedule) ActiveWeekdays() []time.Weekday {
	var days []time.Weekday
	for wd, h := range ws {
		if h.IsPositive() {
			days = append(days, wd)
		}
	}
	sort.Slice(days, func(i, j int) bool {
		// Monday-first ordering, Sunday last.
		a, b := (int(days[i])+6)%7, (int(days[j])+6)%7
		return a < b
	})
	return days
}

// ScheduledHours returns the contracted hours of a weekday before holiday
// and employment-window rules apply.
func ScheduledHours(u *User, wd time.Weekday) Hours {
	if u.WorkSchedule != nil {
		return u.WorkSchedule[wd].Round2()
	}
	if wd == time.Saturday || wd == time.Sunday {
		return Hours{}
	}
	return u.WeeklyHours.DivInt(5).Round2()
}

// WorksOn reports whether the weekday carries any contracted hours.
func WorksOn(u *User, wd time.Weekday) bool { return ScheduledHours(u, wd).IsPositive() }

// =============================================================================
// CALENDAR - Holiday-aware date classification
// =============================================================================

// Calendar caches holidays per year and resolves target hours. Safe for
// concurrent use.
type Calendar struct {
	store  Store
	oracle HolidayOracle

	mu     sync.Mutex
	years  map[int]map[Date]Holiday
	warned map[int]bool
}

func NewCalendar(store Store, oracle HolidayOracle) *Calendar {
	if oracle == nil {
		oracle = NopOracle{}
	}
	return &Calendar{
		store:  store,
		oracle: oracle,
		years:  make(map[int]map[Date]Holiday),
		warned: make(map[int]bool),
	}
}

// HolidaysIn returns the known holidays of a year, loading from the oracle
// into the store on first use. A failing oracle degrades to the stored set.
func (c *Calendar) HolidaysIn(ctx context.Context, year int) (map[Date]Holiday, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holidaysLocked(ctx, year)
}

func (c *Calendar) holidaysLocked(ctx context.Context, year int) (map[Date]Holiday, error) {
	if hs, ok := c.years[year]; ok {
		return hs, nil
	}

	stored, err := c.store.HolidaysInYear(ctx, year)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		if fetched, err := c.oracle.Load(ctx, year); err != nil {
			if !c.warned[year] {
				log.Warn().Int("year", year).Err(err).
					Msg("holiday source unavailable, treating year as holiday-free")
				c.warned[year] = true
			}
		} else if len(fetched) > 0 {
			// Serve the fetched set even if persisting it fails, for
			// example when the store is mid-transaction elsewhere.
			if err := c.store.UpsertHolidays(ctx, fetched); err != nil {
				log.Warn().Int("year", year).Err(err).Msg("could not persist fetched holidays")
			}
			stored = fetched
		}
	}

	byDate := make(map[Date]Holiday, len(stored))
	for _, h := range stored {
		byDate[h.Date] = h
	}
	c.years[year] = byDate
	return byDate, nil
}

// HolidayOn returns the holiday falling on the date, if any.
func (c *Calendar) HolidayOn(ctx context.Context, d Date) (*Holiday, error) {
	hs, err := c.HolidaysIn(ctx, d.Year())
	if err != nil {
		return nil, err
	}
	if h, ok := hs[d]; ok {
		return &h, nil
	}
	return nil, nil
}

func (c *Calendar) IsHoliday(ctx context.Context, d Date) (bool, error) {
	h, err := c.HolidayOn(ctx, d)
	return h != nil, err
}

// Refresh forces a reload of a year from the oracle, replacing the stored
// set. Used by the admin holiday sync.
func (c *Calendar) Refresh(ctx context.Context, year int) (int, error) {
	fetched, err := c.oracle.Load(ctx, year)
	if err != nil {
		return 0, fmt.Errorf("holiday oracle: %w", err)
	}
	if err := c.store.UpsertHolidays(ctx, fetched); err != nil {
		return 0, err
	}
	c.Invalidate(year)
	return len(fetched), nil
}

// Invalidate drops a year's cache so the next read sees the stored set.
// Callers writing holidays directly to the store must invalidate the
// affected years.
func (c *Calendar) Invalidate(year int) {
	c.mu.Lock()
	delete(c.years, year)
	delete(c.warned, year)
	c.mu.Unlock()
}

// TargetHours resolves the contracted hours a user owes on a date.
// Zero outside the employment window, zero on holidays, otherwise the
// weekday's scheduled hours.
func (c *Calendar) TargetHours(ctx context.Context, u *User, d Date) (Hours, error) {
	if !u.EmployedOn(d) {
		return Hours{}, nil
	}
	holiday, err := c.IsHoliday(ctx, d)
	if err != nil {
		return Hours{}, err
	}
	if holiday {
		return Hours{}, nil
	}
	return ScheduledHours(u, d.Weekday()), nil
}
