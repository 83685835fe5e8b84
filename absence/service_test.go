/*
service_test.go - Lifecycle and guard tests for absence requests

The tests run against the in-memory transactional store with a fixed
clock, so each scenario controls exactly which days the rebuild window
covers.
*/
package absence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/absence"
	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/engine/store"
)

func d(s string) engine.Date { return engine.MustParseDate(s) }

func hrs(v float64) engine.Hours { return engine.HoursOf(v) }

var (
	adminActor = engine.Actor{ID: "admin", Role: engine.RoleAdmin}
	benActor   = engine.Actor{ID: "ben", Role: engine.RoleEmployee}
)

// note captures one emitted notification.
type note struct {
	UserID  engine.UserID
	Kind    string
	Payload map[string]any
}

type captureNotifier struct{ notes []note }

func (n *captureNotifier) Emit(_ context.Context, userID engine.UserID, kind string, payload map[string]any) {
	n.notes = append(n.notes, note{UserID: userID, Kind: kind, Payload: payload})
}

type serviceEnv struct {
	mem      *store.TxMemory
	svc      *absence.Service
	notifier *captureNotifier
	ledger   *engine.Ledger
}

// newServiceEnv wires the service over an in-memory store with the clock
// pinned to 2026-06-30 and the delete_entries conflict policy.
func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	mem := store.NewTxMemory()
	cal := engine.NewCalendar(mem, nil)
	clock := engine.FixedClock{Date: d("2026-06-30")}
	notifier := &captureNotifier{}
	svc := absence.NewService(mem, cal, engine.NewRebuilder(mem, cal, clock),
		engine.DefaultConfig(), clock, nil, notifier)
	return &serviceEnv{mem: mem, svc: svc, notifier: notifier, ledger: engine.NewLedger(mem)}
}

// addBen stores the default employee: 40h Mon-Fri, 30 vacation days,
// employed over the given window.
func (env *serviceEnv) addBen(t *testing.T, hire, end string) *engine.User {
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

func (env *serviceEnv) addEntry(t *testing.T, date string, hours float64) {
	t.Helper()
	require.NoError(t, env.mem.CreateTimeEntry(context.Background(), &engine.TimeEntry{
		ID:        engine.EntryID("e-" + date),
		UserID:    "ben",
		Date:      d(date),
		Hours:     hrs(hours),
		CreatedAt: time.Now(),
	}))
}

func (env *serviceEnv) balance(t *testing.T) engine.Hours {
	t.Helper()
	b, err := env.ledger.Balance(context.Background(), "ben")
	require.NoError(t, err)
	return b
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_VacationStaysPendingAndReservesNothing(t *testing.T) {
	// GIVEN: An employee requesting a week of vacation
	// WHEN: The request is created
	// THEN: It is pending with counted days; the vacation account shows it
	//       as pending, not taken, and the ledger is untouched

	env := newServiceEnv(t)
	env.addBen(t, "2026-01-01", "")
	ctx := context.Background()

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID:    "ben",
		Kind:      engine.AbsenceVacation,
		StartDate: d("2026-07-06"),
		EndDate:   d("2026-07-10"),
		Reason:    "summer",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.AbsencePending, req.Status)
	assert.Equal(t, 5, req.Days)
	assert.Nil(t, req.ApprovedAt)

	vb, err := env.mem.VacationBalanceFor(ctx, "ben", 2026)
	require.NoError(t, err)
	assert.Equal(t, 5, vb.Pending)
	assert.Equal(t, 0, vb.Taken)
	assert.True(t, env.balance(t).IsZero())
}

func TestCreate_EmployeeCannotFileForOthers(t *testing.T) {
	env := newServiceEnv(t)
	env.addBen(t, "2026-01-01", "")

	_, err := env.svc.Create(context.Background(), benActor, absence.CreateInput{
		UserID:    "clara",
		Kind:      engine.AbsenceVacation,
		StartDate: d("2026-07-06"),
		EndDate:   d("2026-07-10"),
	})
	assert.True(t, engine.IsForbidden(err))
}

func TestCreate_RejectsOverlapWithExistingRequest(t *testing.T) {
	// GIVEN: A pending request for Jul 6-10
	// WHEN: A second request touches Jul 10
	// THEN: The overlap is refused, naming the blocking request

	env := newServiceEnv(t)
	env.addBen(t, "2026-01-01", "")
	ctx := context.Background()

	first, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2026-07-06"), EndDate: d("2026-07-10"),
	})
	require.NoError(t, err)

	_, err = env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceSpecial,
		StartDate: d("2026-07-10"), EndDate: d("2026-07-13"),
	})
	var overlap *engine.OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, first.ID, overlap.Existing)
}

func TestCreate_RejectsSpanWithLoggedEntries(t *testing.T) {
	// GIVEN: 8h already logged on Jul 6
	// WHEN: Vacation over that date is requested
	// THEN: The conflict is refused at creation; sick leave over the same
	//       date is tolerated

	env := newServiceEnv(t)
	env.addBen(t, "2026-01-01", "")
	env.addEntry(t, "2026-07-06", 8)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2026-07-06"), EndDate: d("2026-07-07"),
	})
	var conflict *engine.EntryConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []engine.Date{d("2026-07-06")}, conflict.Dates)

	_, err = env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceSick,
		StartDate: d("2026-07-06"), EndDate: d("2026-07-07"),
	})
	assert.NoError(t, err)
}

func TestCreate_RejectsWeekendOnlySpan(t *testing.T) {
	env := newServiceEnv(t)
	env.addBen(t, "2026-01-01", "")

	_, err := env.svc.Create(context.Background(), benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2026-07-04"), EndDate: d("2026-07-05"),
	})
	assert.ErrorIs(t, err, engine.ErrNoWorkingDays)
}

func TestCreate_RejectsStartBeforeHireDate(t *testing.T) {
	env := newServiceEnv(t)
	env.addBen(t, "2026-06-01", "")

	_, err := env.svc.Create(context.Background(), benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2026-05-25"), EndDate: d("2026-06-02"),
	})
	assert.ErrorIs(t, err, engine.ErrBeforeHireDate)
}

func TestCreate_VacationGateCountsRemainingDays(t *testing.T) {
	// GIVEN: A contract with only 3 vacation days
	// WHEN: A 5-day request is filed
	// THEN: The gate refuses, reporting requested vs remaining

	env := newServiceEnv(t)
	u := env.addBen(t, "2026-01-01", "")
	u.VacationDaysPerYear = 3
	require.NoError(t, env.mem.UpdateUser(context.Background(), u))

	_, err := env.svc.Create(context.Background(), benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2026-07-06"), EndDate: d("2026-07-10"),
	})
	var gate *engine.InsufficientVacationError
	require.ErrorAs(t, err, &gate)
	assert.Equal(t, 5, gate.Requested)
	assert.Equal(t, 3, gate.Remaining)
}

func TestCreate_NextYearRequestInheritsCarryoverBeforeRollover(t *testing.T) {
	// GIVEN: 28 of 30 days consumed this year, next year not rolled over
	// WHEN: A 31-day vacation for next year is filed
	// THEN: The freshly initialized account carries the 2 leftover days
	//       and the gate admits the request

	env := newServiceEnv(t)
	env.addBen(t, "2026-01-01", "")
	ctx := context.Background()
	require.NoError(t, env.mem.UpsertVacationBalance(ctx, &engine.VacationBalance{
		UserID: "ben", Year: 2026, Entitlement: 30, Taken: 28,
	}))

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2027-01-04"), EndDate: d("2027-02-15"),
	})
	require.NoError(t, err)
	assert.Equal(t, 31, req.Days)

	vb, err := env.mem.VacationBalanceFor(ctx, "ben", 2027)
	require.NoError(t, err)
	assert.Equal(t, 2, vb.Carryover)
	assert.Equal(t, 31, vb.Pending)
}

func TestCreate_OvertimeCompGateChecksBalance(t *testing.T) {
	// GIVEN: Only 4h of accumulated overtime
	// WHEN: A full 8h compensation day is requested
	// THEN: The gate refuses with the exact shortfall

	env := newServiceEnv(t)
	env.addBen(t, "2026-01-01", "")
	require.NoError(t, env.mem.AppendTransactions(context.Background(), []engine.Transaction{{
		UserID: "ben", Date: d("2026-01-15"), Type: engine.TxEarned,
		Hours: hrs(4), BalanceBefore: hrs(0), BalanceAfter: hrs(4),
	}}))

	_, err := env.svc.Create(context.Background(), benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceOvertimeComp,
		StartDate: d("2026-07-06"), EndDate: d("2026-07-06"),
	})
	var gate *engine.InsufficientOvertimeError
	require.ErrorAs(t, err, &gate)
	assert.True(t, gate.Requested.Equal(hrs(8)))
	assert.True(t, gate.Available.Equal(hrs(4)))
}

func TestCreate_SickLeaveAutoApproves(t *testing.T) {
	// GIVEN: An employee employed Mon-Tue only
	// WHEN: Sick leave over both days is filed
	// THEN: The request lands approved without an approver, and the
	//       credits are already in the ledger

	env := newServiceEnv(t)
	env.addBen(t, "2026-06-01", "2026-06-02")
	ctx := context.Background()

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceSick,
		StartDate: d("2026-06-01"), EndDate: d("2026-06-02"),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.AbsenceApproved, req.Status)
	assert.NotNil(t, req.ApprovedAt)
	assert.Nil(t, req.ApprovedBy)

	txs, err := env.mem.TransactionsForMonth(ctx, "ben", engine.MustParseMonth("2026-06"))
	require.NoError(t, err)
	var credits int
	for _, tx := range txs {
		if tx.Type == engine.TxSickCredit {
			credits++
		}
	}
	assert.Equal(t, 2, credits)
	assert.True(t, env.balance(t).IsZero())
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdate_RewritesAPendingRequest(t *testing.T) {
	// GIVEN: A pending five-day vacation
	// WHEN: The owner moves it to a shorter span
	// THEN: Dates and day count follow; the pending counter tracks the change

	env := newServiceEnv(t)
	env.addBen(t, "2026-01-01", "")
	ctx := context.Background()

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID:    "ben",
		Kind:      engine.AbsenceVacation,
		StartDate: d("2026-07-06"),
		EndDate:   d("2026-07-10"),
		Reason:    "summer",
	})
	require.NoError(t, err)

	updated, err := env.svc.Update(ctx, benActor, req.ID, absence.UpdateInput{
		Kind:      engine.AbsenceVacation,
		StartDate: d("2026-07-13"),
		EndDate:   d("2026-07-15"),
		Reason:    "shorter trip",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.AbsencePending, updated.Status)
	assert.Equal(t, d("2026-07-13"), updated.StartDate)
	assert.Equal(t, 3, updated.Days)

	vb, err := env.mem.VacationBalanceFor(ctx, "ben", 2026)
	require.NoError(t, err)
	assert.Equal(t, 3, vb.Pending)
}

func TestUpdate_GuardsRunAgainstTheNewSpan(t *testing.T) {
	env := newServiceEnv(t)
	env.addBen(t, "2026-01-01", "")
	env.addEntry(t, "2026-07-20", 8)
	ctx := context.Background()

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID:    "ben",
		Kind:      engine.AbsenceVacation,
		StartDate: d("2026-07-06"),
		EndDate:   d("2026-07-10"),
	})
	require.NoError(t, err)

	_, err = env.svc.Update(ctx, benActor, req.ID, absence.UpdateInput{
		Kind:      engine.AbsenceVacation,
		StartDate: d("2026-07-20"),
		EndDate:   d("2026-07-21"),
	})
	var conflict *engine.EntryConflictError
	assert.ErrorAs(t, err, &conflict, "logged time blocks the new span")

	_, err = env.svc.Update(ctx, engine.Actor{ID: "clara", Role: engine.RoleEmployee}, req.ID, absence.UpdateInput{
		Kind:      engine.AbsenceVacation,
		StartDate: d("2026-07-13"),
		EndDate:   d("2026-07-14"),
	})
	assert.True(t, engine.IsForbidden(err), "only the owner or an admin may edit")
}

func TestUpdate_DecidedRequestsAreImmutable(t *testing.T) {
	env := newServiceEnv(t)
	env.addBen(t, "2026-06-01", "2026-06-05")
	ctx := context.Background()

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID:    "ben",
		Kind:      engine.AbsenceVacation,
		StartDate: d("2026-06-04"),
		EndDate:   d("2026-06-05"),
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, adminActor, req.ID)
	require.NoError(t, err)

	_, err = env.svc.Update(ctx, benActor, req.ID, absence.UpdateInput{
		Kind:      engine.AbsenceVacation,
		StartDate: d("2026-06-05"),
		EndDate:   d("2026-06-05"),
	})
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
}

// =============================================================================
// APPROVE
// =============================================================================

func TestApprove_MaterializesCreditsAndConsumesVacation(t *testing.T) {
	// GIVEN: Work Mon-Wed, a pending vacation Thu-Fri, employment ends Friday
	// WHEN: An admin approves
	// THEN: Credit rows appear, the balance stays level, and the vacation
	//       account moves the days from pending to taken

	env := newServiceEnv(t)
	env.addBen(t, "2026-06-01", "2026-06-05")
	env.addEntry(t, "2026-06-01", 8)
	env.addEntry(t, "2026-06-02", 8)
	env.addEntry(t, "2026-06-03", 8)
	ctx := context.Background()

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2026-06-04"), EndDate: d("2026-06-05"),
	})
	require.NoError(t, err)

	_, err = env.svc.Approve(ctx, benActor, req.ID)
	assert.True(t, engine.IsForbidden(err), "employees cannot approve")

	approved, err := env.svc.Approve(ctx, adminActor, req.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.AbsenceApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, engine.UserID("admin"), *approved.ApprovedBy)

	assert.True(t, env.balance(t).IsZero(), "a fully covered week nets zero")
	vb, err := env.mem.VacationBalanceFor(ctx, "ben", 2026)
	require.NoError(t, err)
	assert.Equal(t, 2, vb.Taken)
	assert.Equal(t, 0, vb.Pending)

	_, err = env.svc.Approve(ctx, adminActor, req.ID)
	var transition *engine.TransitionError
	assert.ErrorAs(t, err, &transition)
}

func TestApprove_DeletesEntriesLoggedAfterTheRequest(t *testing.T) {
	// GIVEN: A pending vacation and an entry logged afterwards inside it
	// WHEN: The admin approves under the delete_entries policy
	// THEN: The entry is removed and the employee is told what vanished

	env := newServiceEnv(t)
	env.addBen(t, "2026-06-01", "2026-06-05")
	ctx := context.Background()

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2026-06-04"), EndDate: d("2026-06-05"),
	})
	require.NoError(t, err)

	env.addEntry(t, "2026-06-04", 6)

	_, err = env.svc.Approve(ctx, adminActor, req.ID)
	require.NoError(t, err)

	_, err = env.mem.TimeEntryByID(ctx, "e-2026-06-04")
	assert.True(t, engine.IsNotFound(err))

	var kinds []string
	for _, n := range env.notifier.notes {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, engine.NotifyAbsenceApproved)
	assert.Contains(t, kinds, engine.NotifyEntriesDeleted)
}

func TestApprove_RejectPolicyRefusesInsteadOfDeleting(t *testing.T) {
	// GIVEN: The reject_approval conflict policy and a late entry in the span
	// WHEN: The admin approves
	// THEN: The approval fails and the entry survives

	mem := store.NewTxMemory()
	cal := engine.NewCalendar(mem, nil)
	clock := engine.FixedClock{Date: d("2026-06-30")}
	cfg := engine.DefaultConfig()
	cfg.Conflict = engine.ConflictRejectApproval
	svc := absence.NewService(mem, cal, engine.NewRebuilder(mem, cal, clock), cfg, clock, nil, nil)
	ctx := context.Background()

	require.NoError(t, mem.CreateUser(ctx, &engine.User{
		ID: "ben", Username: "ben", Role: engine.RoleEmployee,
		WeeklyHours: hrs(40), VacationDaysPerYear: 30,
		HireDate: d("2026-06-01"), Status: engine.UserActive,
	}))
	req, err := svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2026-06-04"), EndDate: d("2026-06-05"),
	})
	require.NoError(t, err)
	require.NoError(t, mem.CreateTimeEntry(ctx, &engine.TimeEntry{
		ID: "late", UserID: "ben", Date: d("2026-06-04"), Hours: hrs(6), CreatedAt: time.Now(),
	}))

	_, err = svc.Approve(ctx, adminActor, req.ID)
	var conflict *engine.EntryConflictError
	require.ErrorAs(t, err, &conflict)

	_, err = mem.TimeEntryByID(ctx, "late")
	assert.NoError(t, err, "the entry must survive a refused approval")
}

// =============================================================================
// REJECT AND DELETE
// =============================================================================

func TestReject_CancellationRemovesTheCredits(t *testing.T) {
	// GIVEN: An approved vacation covering two past 8h days
	// WHEN: The admin cancels it
	// THEN: The rebuild drops the credits; the days are simply missed

	env := newServiceEnv(t)
	env.addBen(t, "2026-06-04", "2026-06-05")
	ctx := context.Background()

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2026-06-04"), EndDate: d("2026-06-05"),
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, adminActor, req.ID)
	require.NoError(t, err)
	require.True(t, env.balance(t).IsZero())

	rejected, err := env.svc.Reject(ctx, adminActor, req.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.AbsenceRejected, rejected.Status)
	assert.Nil(t, rejected.ApprovedAt)

	assert.True(t, env.balance(t).Equal(hrs(-16)), "balance = %s, want -16", env.balance(t))
	vb, err := env.mem.VacationBalanceFor(ctx, "ben", 2026)
	require.NoError(t, err)
	assert.Equal(t, 0, vb.Taken)
}

func TestDelete_EmployeeMayOnlyDropOwnPendingRequests(t *testing.T) {
	env := newServiceEnv(t)
	env.addBen(t, "2026-01-01", "")
	ctx := context.Background()

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2026-07-06"), EndDate: d("2026-07-10"),
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, benActor, req.ID))
	_, err = env.mem.AbsenceByID(ctx, req.ID)
	assert.True(t, engine.IsNotFound(err))
}

func TestDelete_EmployeeCannotDropApprovedAbsence(t *testing.T) {
	env := newServiceEnv(t)
	env.addBen(t, "2026-06-04", "2026-06-05")
	ctx := context.Background()

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceVacation,
		StartDate: d("2026-06-04"), EndDate: d("2026-06-05"),
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, adminActor, req.ID)
	require.NoError(t, err)

	err = env.svc.Delete(ctx, benActor, req.ID)
	assert.True(t, engine.IsForbidden(err))

	// The admin may, and the rebuild undoes the credits.
	require.NoError(t, env.svc.Delete(ctx, adminActor, req.ID))
	assert.True(t, env.balance(t).Equal(hrs(-16)))
}

func TestOvertimeComp_ApprovalDeductsTheConsumedHours(t *testing.T) {
	// GIVEN: +10h earned in January, employment window covering one Monday
	// WHEN: A compensation day on that Monday is created and approved
	// THEN: The day nets zero against its credit and the standalone
	//       compensation row deducts the 8h, leaving +2

	env := newServiceEnv(t)
	env.addBen(t, "2026-01-01", "2026-06-01")
	ctx := context.Background()
	require.NoError(t, env.mem.AppendTransactions(ctx, []engine.Transaction{{
		UserID: "ben", Date: d("2026-01-15"), Type: engine.TxEarned,
		Hours: hrs(10), BalanceBefore: hrs(0), BalanceAfter: hrs(10),
	}}))

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceOvertimeComp,
		StartDate: d("2026-06-01"), EndDate: d("2026-06-01"),
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, adminActor, req.ID)
	require.NoError(t, err)

	txs, err := env.mem.TransactionsForMonth(ctx, "ben", engine.MustParseMonth("2026-06"))
	require.NoError(t, err)
	var comp int
	for _, tx := range txs {
		if tx.Type == engine.TxCompensation {
			comp++
			assert.True(t, tx.Hours.Equal(hrs(-8)))
		}
	}
	assert.Equal(t, 1, comp)
	assert.True(t, env.balance(t).Equal(hrs(2)), "balance = %s, want 2", env.balance(t))
}

func TestOvertimeComp_FutureDayDeductsAtApproval(t *testing.T) {
	// GIVEN: +10h of accumulated overtime, clock on 2026-06-30
	// WHEN: A compensation day next Monday (2026-07-06) is approved
	// THEN: The deduction lands immediately, and a second compensation
	//       day the week after no longer fits the remaining 2h

	env := newServiceEnv(t)
	env.addBen(t, "2026-01-01", "")
	ctx := context.Background()
	require.NoError(t, env.mem.AppendTransactions(ctx, []engine.Transaction{{
		UserID: "ben", Date: d("2026-01-15"), Type: engine.TxEarned,
		Hours: hrs(10), BalanceBefore: hrs(0), BalanceAfter: hrs(10),
	}}))

	req, err := env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceOvertimeComp,
		StartDate: d("2026-07-06"), EndDate: d("2026-07-06"),
	})
	require.NoError(t, err)
	_, err = env.svc.Approve(ctx, adminActor, req.ID)
	require.NoError(t, err)

	txs, err := env.mem.TransactionsForMonth(ctx, "ben", engine.MustParseMonth("2026-07"))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, engine.TxCompensation, txs[0].Type)
	assert.True(t, txs[0].Hours.Equal(hrs(-8)))
	assert.True(t, env.balance(t).Equal(hrs(2)), "balance = %s, want 2", env.balance(t))

	_, err = env.svc.Create(ctx, benActor, absence.CreateInput{
		UserID: "ben", Kind: engine.AbsenceOvertimeComp,
		StartDate: d("2026-07-13"), EndDate: d("2026-07-13"),
	})
	var gate *engine.InsufficientOvertimeError
	require.ErrorAs(t, err, &gate)
	assert.True(t, gate.Available.Equal(hrs(2)))
}
