/*
vacation.go - The per-(user, year) vacation day account

PURPOSE:
  Vacation is counted in whole days against a yearly entitlement plus
  whatever carried over from the previous year. Taken and pending are
  derived from absence requests and recomputed whenever a vacation
  request changes state, never adjusted incrementally.

SEE ALSO:
  - rollover.go: Writes next year's entitlement and carry-over
  - absence/service.go: Gates approvals on Remaining()
*/
package engine

import "context"

// =============================================================================
// VACATION BALANCE
// =============================================================================

// VacationBalance tracks whole vacation days. Taken counts approved
// requests of the year, Pending counts requests awaiting decision.
type VacationBalance struct {
	UserID      UserID
	Year        int
	Entitlement int
	Carryover   int
	Taken       int
	Pending     int
}

// Remaining is what an approval may still consume. Pending requests do
// not reserve days.
func (vb *VacationBalance) Remaining() int { return vb.Entitlement + vb.Carryover - vb.Taken }

// =============================================================================
// RECOMPUTE - Derive taken/pending from the absence facts
// =============================================================================

// RecomputeVacation refreshes the taken and pending counters of a year
// from the user's vacation requests and persists the row. Entitlement and
// carry-over are preserved; a missing row starts from the user's contract
// entitlement and inherits carry-over from the previous year's row under
// the given policy, so a request filed for next year before the rollover
// runs is gated against the same days the rollover would grant.
func RecomputeVacation(ctx context.Context, s Store, u *User, year int, policy CarryoverPolicy) (*VacationBalance, error) {
	vb, err := s.VacationBalanceFor(ctx, u.ID, year)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if vb == nil {
		vb = &VacationBalance{
			UserID:      u.ID,
			Year:        year,
			Entitlement: u.VacationDaysPerYear,
		}
		prev, err := s.VacationBalanceFor(ctx, u.ID, year-1)
		if err != nil && !IsNotFound(err) {
			return nil, err
		}
		if prev != nil {
			vb.Carryover = CarryoverDays(policy, prev.Remaining())
		}
	}

	span := NewSpan(NewDate(year, 1, 1), NewDate(year, 12, 31))
	absences, err := s.AbsencesInRange(ctx, u.ID, span, nil)
	if err != nil {
		return nil, err
	}

	vb.Taken, vb.Pending = 0, 0
	for _, a := range absences {
		if a.Kind != AbsenceVacation {
			continue
		}
		// Requests spanning a year boundary count toward the year they
		// start in.
		if a.StartDate.Year() != year {
			continue
		}
		switch a.Status {
		case AbsenceApproved:
			vb.Taken += a.Days
		case AbsencePending:
			vb.Pending += a.Days
		}
	}

	if err := s.UpsertVacationBalance(ctx, vb); err != nil {
		return nil, err
	}
	return vb, nil
}

// =============================================================================
// CARRY-OVER POLICY
// =============================================================================

// CarryoverDays applies the configured policy to the days left at year
// end. Negative remainders never carry.
func CarryoverDays(policy CarryoverPolicy, remaining int) int {
	if remaining <= 0 {
		return 0
	}
	if policy == CarryoverCapped && remaining > CarryoverCapDays {
		return CarryoverCapDays
	}
	return remaining
}
