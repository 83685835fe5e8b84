package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/engine/store"
)

// partTimer works Mondays and Tuesdays, 8h each.
func partTimer() *engine.User {
	return &engine.User{
		ID:          "paula",
		Username:    "paula",
		Role:        engine.RoleEmployee,
		WeeklyHours: hrs(16),
		WorkSchedule: engine.WorkSchedule{
			time.Monday:  hrs(8),
			time.Tuesday: hrs(8),
		},
		VacationDaysPerYear: 12,
		HireDate:            d("2025-01-01"),
		Status:              engine.UserActive,
	}
}

func calendarWith(t *testing.T, holidays ...engine.Holiday) *engine.Calendar {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.UpsertHolidays(context.Background(), holidays))
	return engine.NewCalendar(mem, nil)
}

func TestCountAbsenceDays_PartTimerVacation_SkipsHolidayAndOffDays(t *testing.T) {
	// GIVEN: A Mon+Tue part-timer and a Monday holiday in the absence week
	// WHEN: Counting vacation days over the whole week
	// THEN: Only the Tuesday counts; off-days and the holiday do not

	cal := calendarWith(t, engine.Holiday{Date: d("2026-05-25"), Name: "Pfingstmontag", Federal: true})
	ctx := context.Background()

	days, err := engine.CountAbsenceDays(ctx, cal, partTimer(), engine.AbsenceVacation,
		engine.NewSpan(d("2026-05-25"), d("2026-05-31")))
	require.NoError(t, err)
	assert.Equal(t, 1, days)

	credit, err := engine.AbsenceCreditHours(ctx, cal, partTimer(), engine.AbsenceVacation,
		engine.NewSpan(d("2026-05-25"), d("2026-05-31")))
	require.NoError(t, err)
	assert.True(t, credit.Equal(hrs(8)), "credit = %s, want 8", credit)
}

func TestCountAbsenceDays_SickLeave_CountsThroughHolidays(t *testing.T) {
	// GIVEN: The same week and part-timer, but sick leave
	// WHEN: Counting days
	// THEN: Illness does not stop for holidays: Monday and Tuesday count

	cal := calendarWith(t, engine.Holiday{Date: d("2026-05-25"), Name: "Pfingstmontag", Federal: true})

	days, err := engine.CountAbsenceDays(context.Background(), cal, partTimer(), engine.AbsenceSick,
		engine.NewSpan(d("2026-05-25"), d("2026-05-31")))
	require.NoError(t, err)
	assert.Equal(t, 2, days)
}

func TestCountAbsenceDays_ClampsToEmploymentWindow(t *testing.T) {
	// GIVEN: A span starting before the hire date
	// WHEN: Counting days
	// THEN: Pre-hire days do not count

	u := partTimer()
	u.HireDate = d("2026-05-26") // the Tuesday

	days, err := engine.CountAbsenceDays(context.Background(), calendarWith(t), u, engine.AbsenceVacation,
		engine.NewSpan(d("2026-05-25"), d("2026-05-31")))
	require.NoError(t, err)
	assert.Equal(t, 1, days)
}

func TestCountAbsenceDays_NoWorkingDays(t *testing.T) {
	// GIVEN: A Wed-Sun span for a Mon+Tue part-timer
	// WHEN: Counting days
	// THEN: Zero; the service layer turns this into a validation error

	days, err := engine.CountAbsenceDays(context.Background(), calendarWith(t), partTimer(), engine.AbsenceVacation,
		engine.NewSpan(d("2026-05-27"), d("2026-05-31")))
	require.NoError(t, err)
	assert.Equal(t, 0, days)
}

func TestAbsenceCreditHours_FullTimerWeek(t *testing.T) {
	// GIVEN: A 40h Mon-Fri user on vacation for a full week
	// WHEN: Summing the credit
	// THEN: 40 hours, the five weekday targets

	u := &engine.User{
		ID:          "ben",
		Role:        engine.RoleEmployee,
		WeeklyHours: hrs(40),
		HireDate:    d("2025-01-01"),
		Status:      engine.UserActive,
	}

	credit, err := engine.AbsenceCreditHours(context.Background(), calendarWith(t), u, engine.AbsenceVacation,
		engine.NewSpan(d("2026-06-01"), d("2026-06-07")))
	require.NoError(t, err)
	assert.True(t, credit.Equal(hrs(40)), "credit = %s, want 40", credit)
}
