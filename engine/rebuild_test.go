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

// =============================================================================
// TEST SETUP
// =============================================================================

type rebuildEnv struct {
	mem   *store.TxMemory
	cal   *engine.Calendar
	rb    *engine.Rebuilder
	clock engine.FixedClock
}

func newRebuildEnv(t *testing.T) *rebuildEnv {
	t.Helper()
	mem := store.NewTxMemory()
	cal := engine.NewCalendar(mem, nil)
	clock := engine.FixedClock{Date: d("2026-12-31")}
	return &rebuildEnv{
		mem:   mem,
		cal:   cal,
		rb:    engine.NewRebuilder(mem, cal, clock),
		clock: clock,
	}
}

// addUser stores a 40h Mon-Fri employee employed over the given window.
func (env *rebuildEnv) addUser(t *testing.T, id engine.UserID, hire, end string) *engine.User {
	t.Helper()
	u := &engine.User{
		ID:          id,
		Username:    string(id),
		Role:        engine.RoleEmployee,
		WeeklyHours: hrs(40),
		HireDate:    d(hire),
		Status:      engine.UserActive,
	}
	if end != "" {
		e := d(end)
		u.EndDate = &e
	}
	require.NoError(t, env.mem.CreateUser(context.Background(), u))
	return u
}

func (env *rebuildEnv) addEntry(t *testing.T, userID engine.UserID, date string, hours float64) {
	t.Helper()
	require.NoError(t, env.mem.CreateTimeEntry(context.Background(), &engine.TimeEntry{
		ID:        engine.EntryID("e-" + string(userID) + "-" + date),
		UserID:    userID,
		Date:      d(date),
		Hours:     hrs(hours),
		CreatedAt: time.Now(),
	}))
}

func (env *rebuildEnv) addApproved(t *testing.T, userID engine.UserID, kind engine.AbsenceKind, start, end string, days int) {
	t.Helper()
	a := approvedAbsence(kind, start, end)
	a.UserID = userID
	a.Days = days
	require.NoError(t, env.mem.CreateAbsence(context.Background(), a))
}

func (env *rebuildEnv) history(t *testing.T, userID engine.UserID, year int) []engine.Transaction {
	t.Helper()
	txs, err := env.mem.TransactionsInRange(context.Background(), userID,
		engine.NewSpan(engine.NewDate(year, 1, 1), engine.NewDate(year, 12, 31)))
	require.NoError(t, err)
	return txs
}

// =============================================================================
// ROW EMISSION
// =============================================================================

func TestRebuildMonth_ChainsRowsAndWritesProjection(t *testing.T) {
	// GIVEN: A user employed Jan 5-6 who worked 9.5h and 8h
	// WHEN: January is rebuilt
	// THEN: One earned row per day, chained balances, projection written

	env := newRebuildEnv(t)
	env.addUser(t, "u1", "2026-01-05", "2026-01-06")
	env.addEntry(t, "u1", "2026-01-05", 9.5)
	env.addEntry(t, "u1", "2026-01-06", 8)
	ctx := context.Background()

	require.NoError(t, env.rb.RebuildMonth(ctx, "u1", engine.MustParseMonth("2026-01")))

	txs := env.history(t, "u1", 2026)
	require.Len(t, txs, 2)
	assert.Equal(t, engine.TxEarned, txs[0].Type)
	assert.True(t, txs[0].Hours.Equal(hrs(1.5)), "day one earned = %s", txs[0].Hours)
	assert.True(t, txs[1].Hours.IsZero(), "day two earned = %s", txs[1].Hours)
	assert.NoError(t, engine.VerifyChain(engine.Hours{}, txs))
	assert.True(t, txs[1].BalanceAfter.Equal(hrs(1.5)))

	om, err := env.mem.OvertimeMonthFor(ctx, "u1", engine.MustParseMonth("2026-01"))
	require.NoError(t, err)
	assert.True(t, om.TargetHours.Equal(hrs(16)), "target = %s", om.TargetHours)
	assert.True(t, om.ActualHours.Equal(hrs(17.5)), "actual = %s", om.ActualHours)
	assert.True(t, om.Overtime().Equal(hrs(1.5)))
}

func TestRebuildMonth_IsIdempotent(t *testing.T) {
	// GIVEN: A rebuilt month
	// WHEN: It is rebuilt again without fact changes
	// THEN: Same rows, same balances, no duplicates

	env := newRebuildEnv(t)
	env.addUser(t, "u1", "2026-01-05", "2026-01-06")
	env.addEntry(t, "u1", "2026-01-05", 9.5)
	ctx := context.Background()

	require.NoError(t, env.rb.RebuildMonth(ctx, "u1", engine.MustParseMonth("2026-01")))
	first := env.history(t, "u1", 2026)
	require.NoError(t, env.rb.RebuildMonth(ctx, "u1", engine.MustParseMonth("2026-01")))
	second := env.history(t, "u1", 2026)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Type, second[i].Type)
		assert.True(t, first[i].Hours.Equal(second[i].Hours))
		assert.True(t, first[i].BalanceBefore.Equal(second[i].BalanceBefore))
		assert.True(t, first[i].BalanceAfter.Equal(second[i].BalanceAfter))
		assert.True(t, first[i].Date.Equal(second[i].Date))
	}
}

func TestRebuildMonth_VacationEmitsEarnedPlusCredit(t *testing.T) {
	// GIVEN: Work on Mon+Tue, approved vacation Wed-Sun
	// WHEN: The month is rebuilt
	// THEN: Vacation weekdays emit an earned/credit pair netting zero and
	//       the covered weekend emits nothing

	env := newRebuildEnv(t)
	env.addUser(t, "u1", "2026-01-05", "2026-01-11")
	env.addEntry(t, "u1", "2026-01-05", 8)
	env.addEntry(t, "u1", "2026-01-06", 8)
	env.addApproved(t, "u1", engine.AbsenceVacation, "2026-01-07", "2026-01-11", 3)
	ctx := context.Background()

	require.NoError(t, env.rb.RebuildMonth(ctx, "u1", engine.MustParseMonth("2026-01")))

	txs := env.history(t, "u1", 2026)
	// Mon, Tue earned + Wed-Fri pairs; covered weekend produces no rows.
	require.Len(t, txs, 8)

	var credits int
	for _, tx := range txs {
		if tx.Type == engine.TxVacationCredit {
			credits++
			assert.True(t, tx.Hours.Equal(hrs(8)))
			assert.Equal(t, engine.RefAbsence, tx.ReferenceType)
		}
	}
	assert.Equal(t, 3, credits)
	assert.NoError(t, engine.VerifyChain(engine.Hours{}, txs))
	assert.True(t, txs[len(txs)-1].BalanceAfter.IsZero(), "vacation must not move the balance")
}

func TestRebuildMonth_UnpaidLeaveIsNeutral(t *testing.T) {
	// GIVEN: Two worked days and one unpaid day
	// WHEN: The month is rebuilt
	// THEN: The unpaid day nets zero via the adjustment row and the
	//       monthly target shrinks by the unpaid day's hours

	env := newRebuildEnv(t)
	env.addUser(t, "u1", "2026-01-05", "2026-01-07")
	env.addEntry(t, "u1", "2026-01-05", 8)
	env.addEntry(t, "u1", "2026-01-06", 8)
	env.addApproved(t, "u1", engine.AbsenceUnpaid, "2026-01-07", "2026-01-07", 1)
	ctx := context.Background()

	require.NoError(t, env.rb.RebuildMonth(ctx, "u1", engine.MustParseMonth("2026-01")))

	txs := env.history(t, "u1", 2026)
	require.Len(t, txs, 4)
	assert.Equal(t, engine.TxUnpaidAdjustment, txs[3].Type)
	assert.True(t, txs[3].BalanceAfter.IsZero())

	om, err := env.mem.OvertimeMonthFor(ctx, "u1", engine.MustParseMonth("2026-01"))
	require.NoError(t, err)
	assert.True(t, om.TargetHours.Equal(hrs(16)), "effective target = %s, want 16", om.TargetHours)
	assert.True(t, om.Overtime().IsZero())
}

func TestRebuildMonth_OvertimeCompDeductsOnce(t *testing.T) {
	// GIVEN: +2h overtime on Monday, approved comp days Tuesday+Wednesday
	// WHEN: The month is rebuilt
	// THEN: Each comp day nets zero via its credit, and one standalone
	//       compensation row on the start date deducts the full 16h

	env := newRebuildEnv(t)
	env.addUser(t, "u1", "2026-01-05", "2026-01-07")
	env.addEntry(t, "u1", "2026-01-05", 10)
	env.addApproved(t, "u1", engine.AbsenceOvertimeComp, "2026-01-06", "2026-01-07", 2)
	ctx := context.Background()

	require.NoError(t, env.rb.RebuildMonth(ctx, "u1", engine.MustParseMonth("2026-01")))

	txs := env.history(t, "u1", 2026)
	require.Len(t, txs, 6)

	var comp *engine.Transaction
	for i := range txs {
		if txs[i].Type == engine.TxCompensation {
			require.Nil(t, comp, "exactly one compensation row expected")
			comp = &txs[i]
		}
	}
	require.NotNil(t, comp)
	assert.True(t, comp.Date.Equal(d("2026-01-06")))
	assert.True(t, comp.Hours.Equal(hrs(-16)), "compensation = %s, want -16", comp.Hours)

	assert.NoError(t, engine.VerifyChain(engine.Hours{}, txs))
	assert.True(t, txs[len(txs)-1].BalanceAfter.Equal(hrs(-14)))
}

func TestRebuildMonth_CompensationBeyondTodayStillDeducts(t *testing.T) {
	// GIVEN: +10h banked and an approved comp day in the month after today
	// WHEN: That future month is rebuilt twice
	// THEN: Exactly one deduction row exists, chained onto the banked
	//       balance, even though the replay window never reaches the day

	env := newRebuildEnv(t)
	env.addUser(t, "u1", "2026-12-01", "")
	seedChain(t, env.mem.Memory, "u1",
		engine.Transaction{Date: d("2026-12-07"), Type: engine.TxEarned, Hours: hrs(10)},
	)
	env.addApproved(t, "u1", engine.AbsenceOvertimeComp, "2027-01-04", "2027-01-04", 1)
	ctx := context.Background()

	jan := engine.MustParseMonth("2027-01")
	require.NoError(t, env.rb.RebuildMonth(ctx, "u1", jan))
	require.NoError(t, env.rb.RebuildMonth(ctx, "u1", jan))

	txs := env.history(t, "u1", 2027)
	require.Len(t, txs, 1)
	assert.Equal(t, engine.TxCompensation, txs[0].Type)
	assert.True(t, txs[0].Date.Equal(d("2027-01-04")))
	assert.True(t, txs[0].Hours.Equal(hrs(-8)), "compensation = %s, want -8", txs[0].Hours)
	assert.True(t, txs[0].BalanceBefore.Equal(hrs(10)))
	assert.True(t, txs[0].BalanceAfter.Equal(hrs(2)))
}

func TestRebuildMonth_EmptyWindowClearsStaleRows(t *testing.T) {
	// GIVEN: Stale rows in a month before the user's hire date
	// WHEN: That month is rebuilt
	// THEN: The rows are gone and the projection is zeroed

	env := newRebuildEnv(t)
	env.addUser(t, "u1", "2026-03-01", "")
	seedChain(t, env.mem.Memory, "u1",
		engine.Transaction{Date: d("2026-01-05"), Type: engine.TxEarned, Hours: hrs(4)},
	)
	ctx := context.Background()

	require.NoError(t, env.rb.RebuildMonth(ctx, "u1", engine.MustParseMonth("2026-01")))

	assert.Empty(t, env.history(t, "u1", 2026))
	om, err := env.mem.OvertimeMonthFor(ctx, "u1", engine.MustParseMonth("2026-01"))
	require.NoError(t, err)
	assert.True(t, om.TargetHours.IsZero())
	assert.True(t, om.ActualHours.IsZero())
}

// =============================================================================
// CASCADE
// =============================================================================

func TestRebuildCascade_RechainsLaterMonths(t *testing.T) {
	// GIVEN: January and February already rebuilt
	// WHEN: A new January entry appears and the cascade reruns
	// THEN: February's opening balance follows January's new close

	env := newRebuildEnv(t)
	env.addUser(t, "u1", "2026-01-05", "2026-01-05")
	env.addEntry(t, "u1", "2026-01-05", 10)
	ctx := context.Background()

	jan, feb := engine.MustParseMonth("2026-01"), engine.MustParseMonth("2026-02")
	require.NoError(t, env.rb.RebuildMonths(ctx, "u1", []engine.Month{jan, feb}))

	// The employment window ends Jan 5, so only one row exists.
	require.Len(t, env.history(t, "u1", 2026), 1)

	// Extend employment into February and add the new facts.
	u, err := env.mem.UserByID(ctx, "u1")
	require.NoError(t, err)
	end := d("2026-02-02")
	u.EndDate = &end
	require.NoError(t, env.mem.UpdateUser(ctx, u))
	env.addEntry(t, "u1", "2026-02-02", 8)

	require.NoError(t, env.rb.RebuildCascadeFrom(ctx, "u1", jan))

	txs := env.history(t, "u1", 2026)
	require.Len(t, txs, 2)
	assert.NoError(t, engine.VerifyChain(engine.Hours{}, txs))
	assert.True(t, txs[1].BalanceBefore.Equal(hrs(2)), "february opens on january close")
}

func TestCascadeMonths_ReachesLatestRowMonth(t *testing.T) {
	// GIVEN: Today is December but rows exist only through March
	// WHEN: The cascade is computed from February
	// THEN: It spans February through December (the clock month)

	env := newRebuildEnv(t)
	env.addUser(t, "u1", "2026-01-01", "")
	months := env.rb.CascadeMonths(context.Background(), "u1", engine.MustParseMonth("2026-02"))

	require.Len(t, months, 11)
	assert.True(t, months[0].Equal(engine.MustParseMonth("2026-02")))
	assert.True(t, months[len(months)-1].Equal(engine.MustParseMonth("2026-12")))
}

func TestLockCascade_ReleasesAndTracksNewRows(t *testing.T) {
	// GIVEN: No rows yet, today in December
	// WHEN: The cascade from February is locked, released, and a row dated
	//       next March lands before the next acquisition
	// THEN: The second acquisition covers the extended range

	env := newRebuildEnv(t)
	env.addUser(t, "u1", "2026-01-01", "")
	ctx := context.Background()
	feb := engine.MustParseMonth("2026-02")

	months, unlock := env.rb.LockCascade(ctx, "u1", feb)
	unlock()
	require.Len(t, months, 11)

	seedChain(t, env.mem.Memory, "u1",
		engine.Transaction{Date: d("2027-03-01"), Type: engine.TxEarned, Hours: hrs(1)},
	)
	months, unlock = env.rb.LockCascade(ctx, "u1", feb)
	unlock()
	require.Len(t, months, 14)
	assert.True(t, months[len(months)-1].Equal(engine.MustParseMonth("2027-03")))
}
