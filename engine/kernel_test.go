/*
kernel_test.go - Executable specification of the daily calculation

PURPOSE:
  These tests document the per-day arithmetic. Each test states one
  behavior and drives ComputeDay with hand-built facts.

READING THESE TESTS:
  Each test has GIVEN/WHEN/THEN comments explaining the scenario and
  assertions on the exact resulting hours.
*/
package engine_test

import (
	"testing"
	"time"

	"github.com/warp/worktime-engine/engine"
)

func d(s string) engine.Date { return engine.MustParseDate(s) }

func hrs(v float64) engine.Hours { return engine.HoursOf(v) }

func entry(date string, hours float64) *engine.TimeEntry {
	return &engine.TimeEntry{
		ID:     engine.EntryID("e-" + date),
		UserID: "u1",
		Date:   d(date),
		Hours:  hrs(hours),
	}
}

func approvedAbsence(kind engine.AbsenceKind, start, end string) *engine.AbsenceRequest {
	now := time.Now()
	return &engine.AbsenceRequest{
		ID:         engine.AbsenceID("a-" + start),
		UserID:     "u1",
		Kind:       kind,
		StartDate:  d(start),
		EndDate:    d(end),
		Status:     engine.AbsenceApproved,
		ApprovedAt: &now,
	}
}

func TestComputeDay_RegularDay_OvertimeIsWorkedMinusTarget(t *testing.T) {
	// GIVEN: An 8h target day with 9.5h logged
	// WHEN: The day is computed
	// THEN: 1.5h overtime, nothing credited or reduced

	res := engine.ComputeDay(engine.DayFacts{
		Date:    d("2026-01-05"),
		Target:  hrs(8),
		Entries: []*engine.TimeEntry{entry("2026-01-05", 9.5)},
	})

	if !res.Worked.Equal(hrs(9.5)) {
		t.Fatalf("worked = %s, want 9.5", res.Worked)
	}
	if !res.Overtime.Equal(hrs(1.5)) {
		t.Fatalf("overtime = %s, want 1.5", res.Overtime)
	}
	if !res.AbsenceCredit.IsZero() || !res.UnpaidReduction.IsZero() {
		t.Fatalf("unexpected credit %s / reduction %s", res.AbsenceCredit, res.UnpaidReduction)
	}
}

func TestComputeDay_MissedDay_GoesNegative(t *testing.T) {
	// GIVEN: An 8h target day with nothing logged and no absence
	// WHEN: The day is computed
	// THEN: The day is 8h short

	res := engine.ComputeDay(engine.DayFacts{Date: d("2026-01-05"), Target: hrs(8)})

	if !res.Overtime.Equal(hrs(-8)) {
		t.Fatalf("overtime = %s, want -8", res.Overtime)
	}
}

func TestComputeDay_VacationDay_NetsZero(t *testing.T) {
	// GIVEN: An approved vacation covering an 8h target day
	// WHEN: The day is computed
	// THEN: The full target is credited back and the day nets zero

	res := engine.ComputeDay(engine.DayFacts{
		Date:    d("2026-01-05"),
		Target:  hrs(8),
		Absence: approvedAbsence(engine.AbsenceVacation, "2026-01-05", "2026-01-09"),
	})

	if !res.AbsenceCredit.Equal(hrs(8)) {
		t.Fatalf("credit = %s, want 8", res.AbsenceCredit)
	}
	if !res.Actual.Equal(hrs(8)) {
		t.Fatalf("actual = %s, want 8", res.Actual)
	}
	if !res.Overtime.IsZero() {
		t.Fatalf("overtime = %s, want 0", res.Overtime)
	}
}

func TestComputeDay_UnpaidDay_ReducesTargetInsteadOfCrediting(t *testing.T) {
	// GIVEN: Approved unpaid leave on an 8h target day
	// WHEN: The day is computed
	// THEN: No credit reaches the balance; the target itself shrinks to
	//       zero, so the day still nets zero

	res := engine.ComputeDay(engine.DayFacts{
		Date:    d("2026-01-05"),
		Target:  hrs(8),
		Absence: approvedAbsence(engine.AbsenceUnpaid, "2026-01-05", "2026-01-05"),
	})

	if !res.AbsenceCredit.IsZero() {
		t.Fatalf("credit = %s, want 0", res.AbsenceCredit)
	}
	if !res.UnpaidReduction.Equal(hrs(8)) {
		t.Fatalf("reduction = %s, want 8", res.UnpaidReduction)
	}
	if !res.Overtime.IsZero() {
		t.Fatalf("overtime = %s, want 0", res.Overtime)
	}
	if !res.EffectiveTarget().IsZero() {
		t.Fatalf("effective target = %s, want 0", res.EffectiveTarget())
	}
}

func TestComputeDay_HolidayWork_IsAllOvertime(t *testing.T) {
	// GIVEN: A zero-target day (holiday or weekend) with 4h logged
	// WHEN: The day is computed
	// THEN: All 4 hours are overtime

	res := engine.ComputeDay(engine.DayFacts{
		Date:    d("2026-05-01"),
		Target:  engine.Hours{},
		Entries: []*engine.TimeEntry{entry("2026-05-01", 4)},
	})

	if !res.Overtime.Equal(hrs(4)) {
		t.Fatalf("overtime = %s, want 4", res.Overtime)
	}
}

func TestComputeDay_SickDayWithLoggedTime_KeepsBoth(t *testing.T) {
	// GIVEN: Sick leave approved over an 8h day where 3h were still logged
	//        (sick leave tolerates entries)
	// WHEN: The day is computed
	// THEN: The worked hours stack on top of the credit

	res := engine.ComputeDay(engine.DayFacts{
		Date:    d("2026-01-05"),
		Target:  hrs(8),
		Entries: []*engine.TimeEntry{entry("2026-01-05", 3)},
		Absence: approvedAbsence(engine.AbsenceSick, "2026-01-05", "2026-01-06"),
	})

	if !res.Actual.Equal(hrs(11)) {
		t.Fatalf("actual = %s, want 11", res.Actual)
	}
	if !res.Overtime.Equal(hrs(3)) {
		t.Fatalf("overtime = %s, want 3", res.Overtime)
	}
}

func TestComputeDay_PendingAbsence_HasNoEffect(t *testing.T) {
	// GIVEN: A pending (not yet approved) vacation on an 8h day
	// WHEN: The day is computed
	// THEN: The request is invisible; the day is simply 8h short

	a := approvedAbsence(engine.AbsenceVacation, "2026-01-05", "2026-01-05")
	a.Status = engine.AbsencePending

	res := engine.ComputeDay(engine.DayFacts{Date: d("2026-01-05"), Target: hrs(8), Absence: a})

	if !res.AbsenceCredit.IsZero() {
		t.Fatalf("credit = %s, want 0", res.AbsenceCredit)
	}
	if !res.Overtime.Equal(hrs(-8)) {
		t.Fatalf("overtime = %s, want -8", res.Overtime)
	}
}

func TestComputeDay_CorrectionsFoldIntoActual(t *testing.T) {
	// GIVEN: A full 8h day plus a +2.25h admin correction dated that day
	// WHEN: The day is computed
	// THEN: The correction counts like worked time

	res := engine.ComputeDay(engine.DayFacts{
		Date:    d("2026-01-05"),
		Target:  hrs(8),
		Entries: []*engine.TimeEntry{entry("2026-01-05", 8)},
		Corrections: []*engine.OvertimeCorrection{{
			ID:    "c1",
			Date:  d("2026-01-05"),
			Hours: hrs(2.25),
			Kind:  engine.CorrectionManual,
		}},
	})

	if !res.Corrections.Equal(hrs(2.25)) {
		t.Fatalf("corrections = %s, want 2.25", res.Corrections)
	}
	if !res.Overtime.Equal(hrs(2.25)) {
		t.Fatalf("overtime = %s, want 2.25", res.Overtime)
	}
}

func TestDayFacts_HasActivity(t *testing.T) {
	// GIVEN: Different fact combinations
	// THEN: Only days with some obligation or record count as active

	if (engine.DayFacts{Date: d("2026-01-03")}).HasActivity() {
		t.Fatal("empty zero-target day should be inactive")
	}
	if !(engine.DayFacts{Date: d("2026-01-05"), Target: hrs(8)}).HasActivity() {
		t.Fatal("target alone is activity")
	}
	if !(engine.DayFacts{Date: d("2026-01-03"), Entries: []*engine.TimeEntry{entry("2026-01-03", 2)}}).HasActivity() {
		t.Fatal("weekend work is activity")
	}
}
