/*
kernel.go - The pure daily calculation

PURPOSE:
  Reduce everything known about one (user, date) to a DayResult. This is
  the arithmetic core of the engine; every ledger row and every monthly
  aggregate is derived from these numbers.

THE CALCULATION:
  worked          = sum of time-entry hours on the date
  absenceCredit   = target hours, when a paid absence covers the date
  unpaidReduction = target hours, when unpaid leave covers the date
  corrections     = sum of correction hours dated on the date
  actual          = worked + absenceCredit + corrections
  overtime        = actual - (target - unpaidReduction)

  A paid absence credits the full target back, so a fully absent day nets
  zero. Unpaid leave reduces the target instead, so the day nets zero
  without any credit reaching the balance.

PURITY:
  ComputeDay sees only the facts handed to it. No store, no clock, no
  logging. Property-style tests drive it with generated fact sets.

SEE ALSO:
  - rebuild.go: Gathers facts per day and turns results into ledger rows
  - schedule.go: Produces the TargetHours input
*/
package engine

// =============================================================================
// DAY FACTS - Kernel input
// =============================================================================

// DayFacts is everything that influences a single day. Absence is the
// approved absence covering the date, nil when the day is uncovered; at
// most one can exist because non-rejected absences never overlap.
type DayFacts struct {
	Date        Date
	Target      Hours
	Entries     []*TimeEntry
	Absence     *AbsenceRequest
	Corrections []*OvertimeCorrection
}

// HasActivity reports whether any fact or obligation touches the day.
// Days without activity produce no ledger rows.
func (f DayFacts) HasActivity() bool {
	return len(f.Entries) > 0 || f.Absence != nil || len(f.Corrections) > 0 || !f.Target.IsZero()
}

// =============================================================================
// DAY RESULT - Kernel output
// =============================================================================

type DayResult struct {
	Date            Date
	Target          Hours
	Worked          Hours
	AbsenceCredit   Hours
	UnpaidReduction Hours
	Corrections     Hours
	Actual          Hours
	Overtime        Hours

	// Absence echoes the covering absence so row emission can reference it.
	Absence *AbsenceRequest
}

// EffectiveTarget is the obligation that remains after unpaid reduction.
// Monthly target aggregates sum this, not the raw target.
func (r DayResult) EffectiveTarget() Hours { return r.Target.Sub(r.UnpaidReduction) }

// =============================================================================
// THE KERNEL
// =============================================================================

// ComputeDay runs the daily calculation over injected facts.
func ComputeDay(f DayFacts) DayResult {
	res := DayResult{
		Date:    f.Date,
		Target:  f.Target,
		Absence: f.Absence,
	}

	for _, e := range f.Entries {
		res.Worked = res.Worked.Add(e.Hours)
	}
	for _, c := range f.Corrections {
		res.Corrections = res.Corrections.Add(c.Hours)
	}

	if f.Absence != nil && f.Absence.Status == AbsenceApproved {
		if f.Absence.Kind.Traits().Paid {
			res.AbsenceCredit = f.Target
		} else {
			res.UnpaidReduction = f.Target
		}
	}

	res.Actual = res.Worked.Add(res.AbsenceCredit).Add(res.Corrections)
	res.Overtime = res.Actual.Sub(res.Target.Sub(res.UnpaidReduction))
	return res
}
