package engine

import "time"

// =============================================================================
// ABSENCE KINDS
// =============================================================================
//
// Each absence kind carries a fixed trait set. The kernel, the business-day
// counter and the approval flow all consult the traits instead of switching
// on the kind, so adding a kind is a single table entry.

type AbsenceKind string

const (
	AbsenceVacation     AbsenceKind = "vacation"
	AbsenceSick         AbsenceKind = "sick"
	AbsenceOvertimeComp AbsenceKind = "overtime_comp"
	AbsenceSpecial      AbsenceKind = "special"
	AbsenceUnpaid       AbsenceKind = "unpaid"
)

type KindTraits struct {
	// Paid absences credit target hours back to the balance. Unpaid leave
	// instead reduces the target itself.
	Paid bool

	// AutoApprove skips the pending state entirely.
	AutoApprove bool

	// CountsHolidays includes holidays in the business-day count. Illness
	// and unpaid leave do not stop for public holidays; vacation does.
	CountsHolidays bool

	// DeductsVacation consumes the yearly vacation entitlement.
	DeductsVacation bool

	// DeductsOvertime requires and consumes accumulated overtime balance.
	DeductsOvertime bool

	// CoexistsWithEntries allows time entries on covered dates. Everything
	// except sick leave conflicts with logged time.
	CoexistsWithEntries bool

	// CreditType is the ledger transaction type of the per-day credit row.
	CreditType TxType
}

var kindTraits = map[AbsenceKind]KindTraits{
	AbsenceVacation: {
		Paid:            true,
		DeductsVacation: true,
		CreditType:      TxVacationCredit,
	},
	AbsenceSick: {
		Paid:                true,
		AutoApprove:         true,
		CountsHolidays:      true,
		CoexistsWithEntries: true,
		CreditType:          TxSickCredit,
	},
	AbsenceOvertimeComp: {
		Paid:            true,
		DeductsOvertime: true,
		CreditType:      TxOvertimeCompCredit,
	},
	AbsenceSpecial: {
		Paid:       true,
		CreditType: TxSpecialCredit,
	},
	AbsenceUnpaid: {
		CountsHolidays: true,
		CreditType:     TxUnpaidAdjustment,
	},
}

func (k AbsenceKind) Traits() KindTraits { return kindTraits[k] }

func (k AbsenceKind) Valid() bool {
	_, ok := kindTraits[k]
	return ok
}

// Label is the human-readable form used in descriptions and notifications.
func (k AbsenceKind) Label() string {
	switch k {
	case AbsenceVacation:
		return "vacation"
	case AbsenceSick:
		return "sick leave"
	case AbsenceOvertimeComp:
		return "overtime compensation"
	case AbsenceSpecial:
		return "special leave"
	case AbsenceUnpaid:
		return "unpaid leave"
	}
	return string(k)
}

// AbsenceKinds lists all known kinds in a stable order.
func AbsenceKinds() []AbsenceKind {
	return []AbsenceKind{AbsenceVacation, AbsenceSick, AbsenceOvertimeComp, AbsenceSpecial, AbsenceUnpaid}
}

// =============================================================================
// ABSENCE REQUESTS
// =============================================================================

type AbsenceStatus string

const (
	AbsencePending  AbsenceStatus = "pending"
	AbsenceApproved AbsenceStatus = "approved"
	AbsenceRejected AbsenceStatus = "rejected"
)

func (s AbsenceStatus) Valid() bool {
	return s == AbsencePending || s == AbsenceApproved || s == AbsenceRejected
}

// AbsenceRequest covers an inclusive date range with a single kind.
// Days holds the business-day count per the kind's counting rule, fixed at
// creation time.
type AbsenceRequest struct {
	ID         AbsenceID
	UserID     UserID
	Kind       AbsenceKind
	StartDate  Date
	EndDate    Date
	Days       int
	Status     AbsenceStatus
	Reason     string
	ApprovedBy *UserID
	ApprovedAt *time.Time
	CreatedAt  time.Time
}

func (a *AbsenceRequest) Span() Span { return NewSpan(a.StartDate, a.EndDate) }

// Covers reports whether the request includes the date.
func (a *AbsenceRequest) Covers(d Date) bool { return a.Span().Contains(d) }

// Blocking reports whether the request excludes other absences on the same
// dates. Rejected requests never block.
func (a *AbsenceRequest) Blocking() bool { return a.Status != AbsenceRejected }
