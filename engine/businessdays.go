package engine

import "context"

// =============================================================================
// BUSINESS-DAY COUNTING - How long is an absence, really
// =============================================================================
//
// An absence request covers a calendar span, but only some of those days
// consume entitlement or earn credits. The counting rule depends on the
// kind:
//
//   - Weekdays with zero scheduled hours never count.
//   - Days outside the employment window never count.
//   - Holidays do not count for vacation and overtime compensation (the
//     holiday already frees the day), but do count for sick and unpaid
//     leave (illness does not pause for holidays).

// CountAbsenceDays returns the number of days in the span that the kind's
// counting rule recognizes as business days.
func CountAbsenceDays(ctx context.Context, cal *Calendar, u *User, kind AbsenceKind, span Span) (int, error) {
	count := 0
	err := eachCountedDay(ctx, cal, u, kind, span, func(Date, Hours) {
		count++
	})
	return count, err
}

// AbsenceCreditHours sums the per-day target hours over the counted days.
// This is the credit a paid absence earns and the deduction an overtime
// compensation costs.
func AbsenceCreditHours(ctx context.Context, cal *Calendar, u *User, kind AbsenceKind, span Span) (Hours, error) {
	total := Hours{}
	err := eachCountedDay(ctx, cal, u, kind, span, func(_ Date, target Hours) {
		total = total.Add(target)
	})
	return total, err
}

func eachCountedDay(ctx context.Context, cal *Calendar, u *User, kind AbsenceKind, span Span, fn func(Date, Hours)) error {
	upper := span.End
	if u.EndDate != nil {
		upper = MinDate(upper, *u.EndDate)
	}
	clamped := span.Clamp(u.HireDate, upper)
	if clamped.IsEmpty() {
		return nil
	}

	traits := kind.Traits()
	return clamped.Each(func(d Date) error {
		if !WorksOn(u, d.Weekday()) {
			return nil
		}
		holiday, err := cal.IsHoliday(ctx, d)
		if err != nil {
			return err
		}
		if holiday && !traits.CountsHolidays {
			return nil
		}
		target, err := cal.TargetHours(ctx, u, d)
		if err != nil {
			return err
		}
		fn(d, target)
		return nil
	})
}
