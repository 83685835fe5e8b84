/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the HTTP contract. These types decouple
  the engine's domain model from the wire format:
  - Dates travel as "2006-01-02" strings, months as "2006-01"
  - Hour amounts travel as JSON numbers
  - Work schedules travel as {"monday": 8, ...} maps
  - Internal fields (password hashes, soft-delete markers) never leave

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  DTOs are pure data carriers. Parsing errors (bad dates, unknown kinds)
  surface in the handlers; domain validation lives in the services.

SEE ALSO:
  - handlers.go: Parses requests and builds responses with these types
*/
package api

import (
	"time"

	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/store/sqlite"
)

// =============================================================================
// USERS
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID                  string             `json:"id"`
	Username            string             `json:"username"`
	Email               string             `json:"email,omitempty"`
	FirstName           string             `json:"first_name"`
	LastName            string             `json:"last_name"`
	Role                string             `json:"role"`
	WeeklyHours         float64            `json:"weekly_hours"`
	WorkSchedule        map[string]float64 `json:"work_schedule,omitempty"`
	VacationDaysPerYear int                `json:"vacation_days_per_year"`
	HireDate            string             `json:"hire_date"`
	EndDate             *string            `json:"end_date,omitempty"`
	Status              string             `json:"status"`
}

// CreateUserRequest is the request to create a user.
type CreateUserRequest struct {
	Username            string             `json:"username"`
	Email               string             `json:"email"`
	Password            string             `json:"password"`
	FirstName           string             `json:"first_name"`
	LastName            string             `json:"last_name"`
	Role                string             `json:"role"`
	WeeklyHours         float64            `json:"weekly_hours"`
	WorkSchedule        map[string]float64 `json:"work_schedule,omitempty"`
	VacationDaysPerYear int                `json:"vacation_days_per_year"`
	HireDate            string             `json:"hire_date"`
	EndDate             *string            `json:"end_date,omitempty"`
}

// UpdateUserRequest applies partially: absent fields stay untouched.
type UpdateUserRequest struct {
	Email               *string             `json:"email,omitempty"`
	Password            *string             `json:"password,omitempty"`
	FirstName           *string             `json:"first_name,omitempty"`
	LastName            *string             `json:"last_name,omitempty"`
	Role                *string             `json:"role,omitempty"`
	Status              *string             `json:"status,omitempty"`
	WeeklyHours         *float64            `json:"weekly_hours,omitempty"`
	WorkSchedule        *map[string]float64 `json:"work_schedule,omitempty"`
	VacationDaysPerYear *int                `json:"vacation_days_per_year,omitempty"`
	HireDate            *string             `json:"hire_date,omitempty"`
	EndDate             *string             `json:"end_date,omitempty"`
	ClearEndDate        bool                `json:"clear_end_date,omitempty"`
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

// EntryDTO represents a time entry in API responses.
type EntryDTO struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	Date         string  `json:"date"`
	Hours        float64 `json:"hours"`
	BreakMinutes int     `json:"break_minutes"`
	StartTime    string  `json:"start_time,omitempty"`
	EndTime      string  `json:"end_time,omitempty"`
	Location     string  `json:"location"`
	CreatedAt    string  `json:"created_at,omitempty"`
}

// EntryRequest is the request body for creating or updating an entry.
// UserID is required on create and ignored on update.
type EntryRequest struct {
	UserID       string  `json:"user_id,omitempty"`
	Date         string  `json:"date"`
	Hours        float64 `json:"hours"`
	BreakMinutes int     `json:"break_minutes"`
	StartTime    string  `json:"start_time,omitempty"`
	EndTime      string  `json:"end_time,omitempty"`
	Location     string  `json:"location,omitempty"`
}

// =============================================================================
// ABSENCES
// =============================================================================

// AbsenceDTO represents an absence request in API responses.
type AbsenceDTO struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	Type       string  `json:"type"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	Days       int     `json:"days"`
	Status     string  `json:"status"`
	Reason     string  `json:"reason,omitempty"`
	ApprovedBy *string `json:"approved_by,omitempty"`
	ApprovedAt *string `json:"approved_at,omitempty"`
	CreatedAt  string  `json:"created_at,omitempty"`
}

// CreateAbsenceRequest is the request to file an absence.
type CreateAbsenceRequest struct {
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason,omitempty"`
}

// UpdateAbsenceRequest rewrites a pending absence.
type UpdateAbsenceRequest struct {
	Type      string `json:"type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason,omitempty"`
}

// =============================================================================
// CORRECTIONS
// =============================================================================

// CorrectionDTO represents a manual overtime correction.
type CorrectionDTO struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Date      string  `json:"date"`
	Hours     float64 `json:"hours"`
	Reason    string  `json:"reason"`
	Type      string  `json:"correction_type"`
	CreatedBy string  `json:"created_by,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// CreateCorrectionRequest is the request to add a correction.
type CreateCorrectionRequest struct {
	UserID string  `json:"user_id"`
	Date   string  `json:"date"`
	Hours  float64 `json:"hours"`
	Reason string  `json:"reason"`
	Type   string  `json:"correction_type"`
}

// =============================================================================
// LEDGER AND PROJECTIONS
// =============================================================================

// TransactionDTO represents one overtime ledger row.
type TransactionDTO struct {
	ID            int64   `json:"id"`
	UserID        string  `json:"user_id"`
	Date          string  `json:"date"`
	Type          string  `json:"type"`
	Hours         float64 `json:"hours"`
	BalanceBefore float64 `json:"balance_before"`
	BalanceAfter  float64 `json:"balance_after"`
	Description   string  `json:"description,omitempty"`
	ReferenceType string  `json:"reference_type,omitempty"`
	ReferenceID   string  `json:"reference_id,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// BalanceDTO is the current or as-of overtime balance.
type BalanceDTO struct {
	UserID  string  `json:"user_id"`
	Balance float64 `json:"balance"`
	AsOf    string  `json:"as_of"`
}

// OvertimeMonthDTO is the materialized monthly aggregate.
type OvertimeMonthDTO struct {
	UserID      string  `json:"user_id"`
	Month       string  `json:"month"`
	TargetHours float64 `json:"target_hours"`
	ActualHours float64 `json:"actual_hours"`
	Overtime    float64 `json:"overtime"`
	Carryover   float64 `json:"carryover_from_previous_year"`
}

// YearOverviewDTO collects the months of a year plus the running total.
type YearOverviewDTO struct {
	UserID        string             `json:"user_id"`
	Year          int                `json:"year"`
	Carryover     float64            `json:"carryover"`
	TotalOvertime float64            `json:"total_overtime"`
	Months        []OvertimeMonthDTO `json:"months"`
}

// DayBreakdownDTO is the drill-down view of a single day.
type DayBreakdownDTO struct {
	Date            string      `json:"date"`
	Target          float64     `json:"target"`
	Worked          float64     `json:"worked"`
	AbsenceCredit   float64     `json:"absence_credit"`
	UnpaidReduction float64     `json:"unpaid_reduction"`
	Corrections     float64     `json:"corrections"`
	Actual          float64     `json:"actual"`
	Overtime        float64     `json:"overtime"`
	Absence         *AbsenceDTO `json:"absence,omitempty"`
}

// =============================================================================
// VACATION
// =============================================================================

// VacationDTO is the per-year vacation day account.
type VacationDTO struct {
	UserID      string `json:"user_id"`
	Year        int    `json:"year"`
	Entitlement int    `json:"entitlement"`
	Carryover   int    `json:"carryover"`
	Taken       int    `json:"taken"`
	Pending     int    `json:"pending"`
	Remaining   int    `json:"remaining"`
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// HolidayDTO represents a public holiday.
type HolidayDTO struct {
	Date    string `json:"date"`
	Name    string `json:"name"`
	Federal bool   `json:"federal"`
}

// UpsertHolidaysRequest inserts or replaces holidays keyed by date.
type UpsertHolidaysRequest struct {
	Holidays []HolidayDTO `json:"holidays"`
}

// =============================================================================
// ADMIN
// =============================================================================

// UserRolloverDTO is one user's share of a rollover result.
type UserRolloverDTO struct {
	UserID            string  `json:"user_id"`
	Username          string  `json:"username"`
	OvertimeCarryover float64 `json:"overtime_carryover"`
	VacationRemaining int     `json:"vacation_remaining"`
	VacationCarryover int     `json:"vacation_carryover"`
	Entitlement       int     `json:"entitlement"`
}

// RolloverResultDTO is the outcome of a year-end close or preview.
type RolloverResultDTO struct {
	Year     int               `json:"year"`
	DryRun   bool              `json:"dry_run"`
	Users    []UserRolloverDTO `json:"users"`
	ClosedAt string            `json:"closed_at"`
}

// AuditEntryDTO is one row of the admin audit trail.
type AuditEntryDTO struct {
	ID        int64          `json:"id"`
	ActorID   string         `json:"actor_id,omitempty"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id"`
	Diff      map[string]any `json:"diff,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toUserDTO(u *engine.User) UserDTO {
	dto := UserDTO{
		ID:                  string(u.ID),
		Username:            u.Username,
		Email:               u.Email,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		Role:                string(u.Role),
		WeeklyHours:         u.WeeklyHours.Float64(),
		VacationDaysPerYear: u.VacationDaysPerYear,
		HireDate:            u.HireDate.String(),
		Status:              string(u.Status),
	}
	if u.WorkSchedule != nil {
		dto.WorkSchedule = scheduleToMap(u.WorkSchedule)
	}
	if u.EndDate != nil {
		s := u.EndDate.String()
		dto.EndDate = &s
	}
	return dto
}

func toUserDTOs(users []*engine.User) []UserDTO {
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	return dtos
}

func scheduleToMap(ws engine.WorkSchedule) map[string]float64 {
	out := make(map[string]float64, len(ws))
	for wd, h := range ws {
		out[engine.WeekdayName(wd)] = h.Float64()
	}
	return out
}

func scheduleFromMap(m map[string]float64) (engine.WorkSchedule, error) {
	if m == nil {
		return nil, nil
	}
	ws := make(engine.WorkSchedule, len(m))
	for name, hours := range m {
		wd, ok := engine.ParseWeekday(name)
		if !ok {
			return nil, &engine.ValidationError{Field: "work_schedule", Message: "unknown weekday " + name}
		}
		ws[wd] = engine.HoursOf(hours)
	}
	return ws, nil
}

func toEntryDTO(e *engine.TimeEntry) EntryDTO {
	return EntryDTO{
		ID:           string(e.ID),
		UserID:       string(e.UserID),
		Date:         e.Date.String(),
		Hours:        e.Hours.Float64(),
		BreakMinutes: e.BreakMinutes,
		StartTime:    e.StartTime,
		EndTime:      e.EndTime,
		Location:     string(e.Location),
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

func toEntryDTOs(entries []*engine.TimeEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toAbsenceDTO(a *engine.AbsenceRequest) AbsenceDTO {
	dto := AbsenceDTO{
		ID:        string(a.ID),
		UserID:    string(a.UserID),
		Type:      string(a.Kind),
		StartDate: a.StartDate.String(),
		EndDate:   a.EndDate.String(),
		Days:      a.Days,
		Status:    string(a.Status),
		Reason:    a.Reason,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	if a.ApprovedBy != nil {
		s := string(*a.ApprovedBy)
		dto.ApprovedBy = &s
	}
	if a.ApprovedAt != nil {
		s := a.ApprovedAt.Format(time.RFC3339)
		dto.ApprovedAt = &s
	}
	return dto
}

func toAbsenceDTOs(absences []*engine.AbsenceRequest) []AbsenceDTO {
	dtos := make([]AbsenceDTO, len(absences))
	for i, a := range absences {
		dtos[i] = toAbsenceDTO(a)
	}
	return dtos
}

func toCorrectionDTO(c *engine.OvertimeCorrection) CorrectionDTO {
	return CorrectionDTO{
		ID:        string(c.ID),
		UserID:    string(c.UserID),
		Date:      c.Date.String(),
		Hours:     c.Hours.Float64(),
		Reason:    c.Reason,
		Type:      string(c.Kind),
		CreatedBy: string(c.CreatedBy),
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func toCorrectionDTOs(corrections []*engine.OvertimeCorrection) []CorrectionDTO {
	dtos := make([]CorrectionDTO, len(corrections))
	for i, c := range corrections {
		dtos[i] = toCorrectionDTO(c)
	}
	return dtos
}

func toTransactionDTO(tx engine.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:            tx.ID,
		UserID:        string(tx.UserID),
		Date:          tx.Date.String(),
		Type:          string(tx.Type),
		Hours:         tx.Hours.Float64(),
		BalanceBefore: tx.BalanceBefore.Float64(),
		BalanceAfter:  tx.BalanceAfter.Float64(),
		Description:   tx.Description,
		ReferenceType: tx.ReferenceType,
		ReferenceID:   tx.ReferenceID,
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []engine.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toOvertimeMonthDTO(om *engine.OvertimeMonth) OvertimeMonthDTO {
	return OvertimeMonthDTO{
		UserID:      string(om.UserID),
		Month:       om.Month.String(),
		TargetHours: om.TargetHours.Float64(),
		ActualHours: om.ActualHours.Float64(),
		Overtime:    om.Overtime().Float64(),
		Carryover:   om.CarryoverFromPreviousYear.Float64(),
	}
}

func toYearOverviewDTO(ov *engine.YearOverview) YearOverviewDTO {
	dto := YearOverviewDTO{
		UserID:        string(ov.UserID),
		Year:          ov.Year,
		Carryover:     ov.Carryover.Float64(),
		TotalOvertime: ov.TotalOvertime().Float64(),
		Months:        make([]OvertimeMonthDTO, len(ov.Months)),
	}
	for i := range ov.Months {
		dto.Months[i] = toOvertimeMonthDTO(&ov.Months[i])
	}
	return dto
}

func toDayBreakdownDTO(d *engine.DayResult) DayBreakdownDTO {
	dto := DayBreakdownDTO{
		Date:            d.Date.String(),
		Target:          d.Target.Float64(),
		Worked:          d.Worked.Float64(),
		AbsenceCredit:   d.AbsenceCredit.Float64(),
		UnpaidReduction: d.UnpaidReduction.Float64(),
		Corrections:     d.Corrections.Float64(),
		Actual:          d.Actual.Float64(),
		Overtime:        d.Overtime.Float64(),
	}
	if d.Absence != nil {
		a := toAbsenceDTO(d.Absence)
		dto.Absence = &a
	}
	return dto
}

func toVacationDTO(vb *engine.VacationBalance) VacationDTO {
	return VacationDTO{
		UserID:      string(vb.UserID),
		Year:        vb.Year,
		Entitlement: vb.Entitlement,
		Carryover:   vb.Carryover,
		Taken:       vb.Taken,
		Pending:     vb.Pending,
		Remaining:   vb.Remaining(),
	}
}

func toHolidayDTOs(hs []engine.Holiday) []HolidayDTO {
	dtos := make([]HolidayDTO, len(hs))
	for i, h := range hs {
		dtos[i] = HolidayDTO{Date: h.Date.String(), Name: h.Name, Federal: h.Federal}
	}
	return dtos
}

func toRolloverResultDTO(res *engine.RolloverResult) RolloverResultDTO {
	dto := RolloverResultDTO{
		Year:     res.Year,
		DryRun:   res.DryRun,
		Users:    make([]UserRolloverDTO, len(res.Users)),
		ClosedAt: res.ClosedAt.Format(time.RFC3339),
	}
	for i, ur := range res.Users {
		dto.Users[i] = UserRolloverDTO{
			UserID:            string(ur.UserID),
			Username:          ur.Username,
			OvertimeCarryover: ur.OvertimeCarryover.Float64(),
			VacationRemaining: ur.VacationRemaining,
			VacationCarryover: ur.VacationCarryover,
			Entitlement:       ur.Entitlement,
		}
	}
	return dto
}

func toAuditEntryDTOs(entries []sqlite.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:        e.ID,
			ActorID:   string(e.ActorID),
			Action:    string(e.Action),
			Entity:    e.Entity,
			EntityID:  e.EntityID,
			Diff:      e.Diff,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}
	return dtos
}
