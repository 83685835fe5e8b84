/*
entries_test.go - Validation and rebuild side effects of time entries

Each scenario pins the clock and the employment window so the rebuild
touches exactly the days under test.
*/
package tracking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/engine/store"
	"github.com/warp/worktime-engine/tracking"
)

func d(s string) engine.Date { return engine.MustParseDate(s) }

func hrs(v float64) engine.Hours { return engine.HoursOf(v) }

var (
	adminActor = engine.Actor{ID: "admin", Role: engine.RoleAdmin}
	benActor   = engine.Actor{ID: "ben", Role: engine.RoleEmployee}
)

type trackingEnv struct {
	mem     *store.TxMemory
	entries *tracking.EntryService
	users   *tracking.UserService
	corrs   *tracking.CorrectionService
	ledger  *engine.Ledger
}

func newTrackingEnv(t *testing.T) *trackingEnv {
	t.Helper()
	mem := store.NewTxMemory()
	cal := engine.NewCalendar(mem, nil)
	clock := engine.FixedClock{Date: d("2026-06-30")}
	rb := engine.NewRebuilder(mem, cal, clock)
	return &trackingEnv{
		mem:     mem,
		entries: tracking.NewEntryService(mem, rb, nil),
		users:   tracking.NewUserService(mem, rb, engine.DefaultConfig(), clock, nil),
		corrs:   tracking.NewCorrectionService(mem, rb, nil),
		ledger:  engine.NewLedger(mem),
	}
}

// addBen stores a 40h Mon-Fri employee employed over the given window.
func (env *trackingEnv) addBen(t *testing.T, hire, end string) *engine.User {
	t.Helper()
	u := &engine.User{
		ID:                  "ben",
		Username:            "ben",
		Role:                engine.RoleEmployee,
		WeeklyHours:         hrs(40),
		VacationDaysPerYear: 30,
		HireDate:            d(hire),
		Status:              engine.UserActive,
	}
	if end != "" {
		e := d(end)
		u.EndDate = &e
	}
	require.NoError(t, env.mem.CreateUser(context.Background(), u))
	return u
}

func (env *trackingEnv) balance(t *testing.T) engine.Hours {
	t.Helper()
	b, err := env.ledger.Balance(context.Background(), "ben")
	require.NoError(t, err)
	return b
}

func TestEntryCreate_LogsTimeAndUpdatesTheLedger(t *testing.T) {
	// GIVEN: An employee whose only employment day is an 8h Monday
	// WHEN: 9 hours are logged
	// THEN: The entry is stored with the office default and the ledger
	//       shows +1

	env := newTrackingEnv(t)
	env.addBen(t, "2026-06-01", "2026-06-01")

	entry, err := env.entries.Create(context.Background(), benActor, tracking.EntryInput{
		UserID:    "ben",
		Date:      d("2026-06-01"),
		Hours:     hrs(9),
		StartTime: "08:00",
		EndTime:   "17:30",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.LocationOffice, entry.Location)
	assert.True(t, env.balance(t).Equal(hrs(1)), "balance = %s, want 1", env.balance(t))
}

func TestEntryCreate_Validation(t *testing.T) {
	env := newTrackingEnv(t)
	env.addBen(t, "2026-06-01", "2026-06-05")
	ctx := context.Background()

	base := tracking.EntryInput{UserID: "ben", Date: d("2026-06-01"), Hours: hrs(8)}

	cases := []struct {
		name   string
		mutate func(*tracking.EntryInput)
	}{
		{"zero hours", func(in *tracking.EntryInput) { in.Hours = engine.Hours{} }},
		{"more than a day", func(in *tracking.EntryInput) { in.Hours = hrs(25) }},
		{"sub-minute precision", func(in *tracking.EntryInput) { in.Hours = hrs(8.123) }},
		{"negative break", func(in *tracking.EntryInput) { in.BreakMinutes = -5 }},
		{"start time missing leading zero", func(in *tracking.EntryInput) { in.StartTime = "8:00" }},
		{"end time past midnight", func(in *tracking.EntryInput) { in.EndTime = "24:00" }},
		{"unknown location", func(in *tracking.EntryInput) { in.Location = "beach" }},
		{"after employment end", func(in *tracking.EntryInput) { in.Date = d("2026-06-08") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := env.entries.Create(ctx, benActor, in)
			assert.ErrorIs(t, err, engine.ErrValidation)
		})
	}

	t.Run("before hire date", func(t *testing.T) {
		in := base
		in.Date = d("2026-05-29")
		_, err := env.entries.Create(ctx, benActor, in)
		assert.ErrorIs(t, err, engine.ErrBeforeHireDate)
	})
}

func TestEntryCreate_EmployeeCannotLogForOthers(t *testing.T) {
	env := newTrackingEnv(t)
	env.addBen(t, "2026-06-01", "")

	_, err := env.entries.Create(context.Background(), benActor, tracking.EntryInput{
		UserID: "clara", Date: d("2026-06-01"), Hours: hrs(8),
	})
	assert.True(t, engine.IsForbidden(err))
}

func TestEntryCreate_RejectsDatesCoveredByApprovedAbsence(t *testing.T) {
	// GIVEN: An approved vacation on the target date
	// WHEN: Time is logged on it
	// THEN: The conflict is refused; a sick day would tolerate the entry

	env := newTrackingEnv(t)
	env.addBen(t, "2026-06-01", "2026-06-05")
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, env.mem.CreateAbsence(ctx, &engine.AbsenceRequest{
		ID: "vac", UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2026-06-01"), EndDate: d("2026-06-02"), Days: 2,
		Status: engine.AbsenceApproved, ApprovedAt: &now,
	}))
	require.NoError(t, env.mem.CreateAbsence(ctx, &engine.AbsenceRequest{
		ID: "sick", UserID: "ben", Kind: engine.AbsenceSick,
		StartDate: d("2026-06-03"), EndDate: d("2026-06-03"), Days: 1,
		Status: engine.AbsenceApproved, ApprovedAt: &now,
	}))

	_, err := env.entries.Create(ctx, benActor, tracking.EntryInput{
		UserID: "ben", Date: d("2026-06-01"), Hours: hrs(8),
	})
	assert.ErrorIs(t, err, engine.ErrTimeEntryConflict)

	_, err = env.entries.Create(ctx, benActor, tracking.EntryInput{
		UserID: "ben", Date: d("2026-06-03"), Hours: hrs(3),
	})
	assert.NoError(t, err)
}

func TestEntryUpdate_ReplacesHoursAndRechains(t *testing.T) {
	env := newTrackingEnv(t)
	env.addBen(t, "2026-06-01", "2026-06-01")
	ctx := context.Background()

	entry, err := env.entries.Create(ctx, benActor, tracking.EntryInput{
		UserID: "ben", Date: d("2026-06-01"), Hours: hrs(8),
	})
	require.NoError(t, err)
	require.True(t, env.balance(t).IsZero())

	_, err = env.entries.Update(ctx, benActor, entry.ID, tracking.EntryInput{
		UserID: "ben", Date: d("2026-06-01"), Hours: hrs(10),
	})
	require.NoError(t, err)
	assert.True(t, env.balance(t).Equal(hrs(2)), "balance = %s, want 2", env.balance(t))
}

func TestEntryDelete_TurnsTheDayIntoAMiss(t *testing.T) {
	env := newTrackingEnv(t)
	env.addBen(t, "2026-06-01", "2026-06-01")
	ctx := context.Background()

	entry, err := env.entries.Create(ctx, benActor, tracking.EntryInput{
		UserID: "ben", Date: d("2026-06-01"), Hours: hrs(8),
	})
	require.NoError(t, err)

	require.NoError(t, env.entries.Delete(ctx, benActor, entry.ID))
	assert.True(t, env.balance(t).Equal(hrs(-8)), "an uncovered target day counts against the balance")
}

// =============================================================================
// CORRECTIONS
// =============================================================================

func TestCorrectionCreate_FoldsIntoTheEarnedRow(t *testing.T) {
	// GIVEN: A fully worked 8h day
	// WHEN: An admin adds a +5h migration correction on it
	// THEN: The day's earned row absorbs the correction

	env := newTrackingEnv(t)
	env.addBen(t, "2026-06-01", "2026-06-01")
	ctx := context.Background()

	_, err := env.entries.Create(ctx, benActor, tracking.EntryInput{
		UserID: "ben", Date: d("2026-06-01"), Hours: hrs(8),
	})
	require.NoError(t, err)

	corr, err := env.corrs.Create(ctx, adminActor, tracking.CorrectionInput{
		UserID: "ben", Date: d("2026-06-01"), Hours: hrs(5),
		Reason: "balance migrated from the old spreadsheet", Kind: engine.CorrectionMigration,
	})
	require.NoError(t, err)
	assert.True(t, env.balance(t).Equal(hrs(5)))

	txs, err := env.mem.TransactionsForMonth(ctx, "ben", engine.MustParseMonth("2026-06"))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, engine.TxEarned, txs[0].Type)
	assert.True(t, txs[0].Hours.Equal(hrs(5)))

	require.NoError(t, env.corrs.Delete(ctx, adminActor, corr.ID))
	assert.True(t, env.balance(t).IsZero())
}

func TestCorrectionCreate_Validation(t *testing.T) {
	env := newTrackingEnv(t)
	env.addBen(t, "2026-06-01", "")
	ctx := context.Background()

	_, err := env.corrs.Create(ctx, adminActor, tracking.CorrectionInput{
		UserID: "ben", Date: d("2026-06-01"), Hours: engine.Hours{},
		Reason: "a perfectly fine reason", Kind: engine.CorrectionManual,
	})
	assert.ErrorIs(t, err, engine.ErrValidation, "zero hours")

	_, err = env.corrs.Create(ctx, adminActor, tracking.CorrectionInput{
		UserID: "ben", Date: d("2026-06-01"), Hours: hrs(2),
		Reason: "fix", Kind: engine.CorrectionManual,
	})
	assert.ErrorIs(t, err, engine.ErrValidation, "reason too short")

	_, err = env.corrs.Create(ctx, benActor, tracking.CorrectionInput{
		UserID: "ben", Date: d("2026-06-01"), Hours: hrs(2),
		Reason: "a perfectly fine reason", Kind: engine.CorrectionManual,
	})
	assert.True(t, engine.IsForbidden(err), "corrections are admin-only")
}
