/*
schedule.go - Named work-schedule presets

PURPOSE:
  Defines the contract templates used when onboarding users: weekly
  hours, optional per-weekday schedule, and the vacation entitlement
  that usually goes with the contract. Demo scenarios and tests build
  users from these instead of repeating schedule literals.

AVAILABLE PRESETS:
  fulltime-40:    40h Mon-Fri, 30 vacation days
  fulltime-38.5:  38.5h Mon-Fri (common German tariff), 30 vacation days
  four-day-32:    32h Mon-Thu, 24 vacation days
  parttime-16:    8h Monday + 8h Tuesday, 12 vacation days
  half-time-20:   4h Mon-Fri, 15 vacation days

ADDING A PRESET:
 1. Add it to the 'presets' slice below.
 2. Keep WeeklyHours equal to the schedule total (Validate checks this).

SEE ALSO:
  - engine/schedule.go: How schedules resolve to daily target hours
  - api/scenarios.go: Demo data built from these presets
*/
package factory

import (
	"fmt"
	"time"

	"github.com/warp/worktime-engine/engine"
)

// Preset is a reusable employment contract template.
type Preset struct {
	ID           string
	Name         string
	Description  string
	WeeklyHours  engine.Hours
	Schedule     engine.WorkSchedule // nil: weekly hours spread Mon-Fri
	VacationDays int
}

// Validate checks internal consistency: schedule hours in range and,
// when a schedule is set, summing to the weekly contract.
func (p Preset) Validate() error {
	if !p.WeeklyHours.IsPositive() {
		return fmt.Errorf("preset %s: weekly hours must be positive", p.ID)
	}
	if p.Schedule == nil {
		return nil
	}
	if err := p.Schedule.Validate(); err != nil {
		return fmt.Errorf("preset %s: %w", p.ID, err)
	}
	if !p.Schedule.WeeklyTotal().Equal(p.WeeklyHours) {
		return fmt.Errorf("preset %s: schedule sums to %s, contract says %s",
			p.ID, p.Schedule.WeeklyTotal(), p.WeeklyHours)
	}
	return nil
}

// MonToFri spreads the same daily hours over Monday to Friday.
func MonToFri(hoursPerDay engine.Hours) engine.WorkSchedule {
	return engine.WorkSchedule{
		time.Monday:    hoursPerDay,
		time.Tuesday:   hoursPerDay,
		time.Wednesday: hoursPerDay,
		time.Thursday:  hoursPerDay,
		time.Friday:    hoursPerDay,
	}
}

var presets = []Preset{
	{
		ID:           "fulltime-40",
		Name:         "Full Time 40h",
		Description:  "Standard 40-hour week, Monday to Friday",
		WeeklyHours:  engine.HoursFromInt(40),
		VacationDays: 30,
	},
	{
		ID:           "fulltime-38.5",
		Name:         "Full Time 38.5h",
		Description:  "Tariff 38.5-hour week, Monday to Friday",
		WeeklyHours:  engine.HoursOf(38.5),
		Schedule:     MonToFri(engine.HoursOf(7.7)),
		VacationDays: 30,
	},
	{
		ID:          "four-day-32",
		Name:        "Four-Day Week",
		Description: "32 hours Monday to Thursday, Fridays off",
		WeeklyHours: engine.HoursFromInt(32),
		Schedule: engine.WorkSchedule{
			time.Monday:    engine.HoursFromInt(8),
			time.Tuesday:   engine.HoursFromInt(8),
			time.Wednesday: engine.HoursFromInt(8),
			time.Thursday:  engine.HoursFromInt(8),
		},
		VacationDays: 24,
	},
	{
		ID:          "parttime-16",
		Name:        "Part Time Mon+Tue",
		Description: "16 hours on Monday and Tuesday only",
		WeeklyHours: engine.HoursFromInt(16),
		Schedule: engine.WorkSchedule{
			time.Monday:  engine.HoursFromInt(8),
			time.Tuesday: engine.HoursFromInt(8),
		},
		VacationDays: 12,
	},
	{
		ID:           "half-time-20",
		Name:         "Half Time 20h",
		Description:  "4 hours every weekday",
		WeeklyHours:  engine.HoursFromInt(20),
		Schedule:     MonToFri(engine.HoursFromInt(4)),
		VacationDays: 15,
	},
}

// Presets returns all contract templates.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// ByID resolves a preset by its identifier.
func ByID(id string) (Preset, error) {
	for _, p := range presets {
		if p.ID == id {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("unknown schedule preset %q", id)
}
