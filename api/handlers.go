/*
handlers.go - HTTP API handlers for the working-time accounting engine

PURPOSE:
  Exposes the accounting engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the domain
  services. No accounting rule lives here.

ENDPOINTS:
  Users:
    GET    /api/users                   List users (admin)
    POST   /api/users                   Create user (admin)
    GET    /api/users/{id}              Get user
    PUT    /api/users/{id}              Update user
    DELETE /api/users/{id}              Soft-delete user (admin)

  Reads per user:
    GET /api/users/{id}/balance                 Current or as-of balance
    GET /api/users/{id}/months/{year}/{month}   Monthly overtime report
    GET /api/users/{id}/years/{year}            Year overview
    GET /api/users/{id}/transactions            Ledger history
    GET /api/users/{id}/days/{date}             Single-day breakdown
    GET /api/users/{id}/entries                 Time entries in range
    GET /api/users/{id}/absences                Absence requests
    GET /api/users/{id}/corrections             Corrections
    GET /api/users/{id}/vacation/{year}         Vacation account

  Facts:
    POST   /api/time-entries            Log working time
    PUT    /api/time-entries/{id}       Edit an entry
    DELETE /api/time-entries/{id}       Remove an entry
    POST   /api/absences                File an absence
    POST   /api/absences/{id}/approve   Approve (admin)
    POST   /api/absences/{id}/reject    Reject (admin)
    DELETE /api/absences/{id}           Delete/cancel
    POST   /api/corrections             Add a correction (admin)
    DELETE /api/corrections/{id}        Remove a correction (admin)

  Calendar and admin:
    GET  /api/holidays?year=            Holidays of a year
    POST /api/holidays                  Upsert holidays (admin)
    POST /api/holidays/refresh?year=    Re-fetch from the oracle (admin)
    POST /api/rollover/{year}           Close a year (admin)
    GET  /api/rollover/{year}/preview   Dry-run the close (admin)
    GET  /api/admin/audit?limit=        Audit trail (admin)

ACTOR RESOLUTION:
  Every /api request carries an X-Actor-ID header naming an active user.
  Role checks happen in the services; the handlers only resolve the
  header to an engine.Actor. There is no session authentication.

ERROR HANDLING:
  Engine errors map to status codes via their category:
  - 400: validation, pre-hire dates, empty ranges
  - 401: missing or unknown actor
  - 403: actor may not touch the record
  - 404: missing record
  - 409: overlaps, entry/absence exclusion, balance gates, duplicates
  - 502: holiday source unavailable
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scenarios.go: Demo scenario loaders
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/worktime-engine/absence"
	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/store/sqlite"
	"github.com/warp/worktime-engine/tracking"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter wipes all data. Only the demo scenario endpoints use it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Deps bundles the services the handlers dispatch to. Audit and Reset
// are optional; the endpoints needing them answer 404 when absent.
type Deps struct {
	Store       engine.TxStore
	Users       *tracking.UserService
	Entries     *tracking.EntryService
	Corrections *tracking.CorrectionService
	Absences    *absence.Service
	Reports     *engine.Reports
	Rollover    *engine.Rollover
	Calendar    *engine.Calendar
	Config      engine.Config
	Clock       engine.Clock
	Audit       *sqlite.AuditLog
	Reset       Resetter
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	store       engine.TxStore
	users       *tracking.UserService
	entries     *tracking.EntryService
	corrections *tracking.CorrectionService
	absences    *absence.Service
	reports     *engine.Reports
	rollover    *engine.Rollover
	cal         *engine.Calendar
	cfg         engine.Config
	clock       engine.Clock
	audit       *sqlite.AuditLog
	reset       Resetter

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(d Deps) *Handler {
	if d.Clock == nil {
		d.Clock = engine.NewClock(time.UTC)
	}
	if d.Config.Carryover == "" {
		d.Config.Carryover = engine.CarryoverCapped
	}
	return &Handler{
		store:       d.Store,
		users:       d.Users,
		entries:     d.Entries,
		corrections: d.Corrections,
		absences:    d.Absences,
		reports:     d.Reports,
		rollover:    d.Rollover,
		cal:         d.Calendar,
		cfg:         d.Config,
		clock:       d.Clock,
		audit:       d.Audit,
		reset:       d.Reset,
	}
}

// actorHeader identifies the caller until real session auth exists.
const actorHeader = "X-Actor-ID"

// requireActor resolves the caller from the X-Actor-ID header and writes
// a 401 when that fails.
func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (engine.Actor, bool) {
	id := r.Header.Get(actorHeader)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "X-Actor-ID header required", nil)
		return engine.Actor{}, false
	}
	u, err := h.store.UserByID(r.Context(), engine.UserID(id))
	if err != nil {
		if engine.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "Unknown actor", nil)
		} else {
			writeError(w, http.StatusInternalServerError, "Failed to resolve actor", err)
		}
		return engine.Actor{}, false
	}
	if u.DeletedAt != nil || u.Status != engine.UserActive {
		writeError(w, http.StatusUnauthorized, "Actor is not active", nil)
		return engine.Actor{}, false
	}
	return engine.Actor{ID: u.ID, Role: u.Role}, true
}

// =============================================================================
// HEALTH
// =============================================================================

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users. Admin only.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	users, err := h.users.List(r.Context(), actor)
	if err != nil {
		serviceError(w, "Failed to list users", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTOs(users))
}

// GetUser returns a single user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	u, err := h.users.Get(r.Context(), actor, engine.UserID(chi.URLParam(r, "id")))
	if err != nil {
		serviceError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// CreateUser creates a new user. Admin only.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	hireDate, err := engine.ParseDate(req.HireDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hire_date format (use YYYY-MM-DD)", err)
		return
	}
	schedule, err := scheduleFromMap(req.WorkSchedule)
	if err != nil {
		serviceError(w, "Invalid work_schedule", err)
		return
	}
	in := tracking.CreateUserInput{
		Username:            req.Username,
		Email:               req.Email,
		Password:            req.Password,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		Role:                engine.Role(req.Role),
		WeeklyHours:         engine.HoursOf(req.WeeklyHours),
		WorkSchedule:        schedule,
		VacationDaysPerYear: req.VacationDaysPerYear,
		HireDate:            hireDate,
	}
	if req.EndDate != nil {
		end, err := engine.ParseDate(*req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
			return
		}
		in.EndDate = &end
	}

	u, err := h.users.Create(r.Context(), actor, in)
	if err != nil {
		serviceError(w, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// UpdateUser applies a partial update. Contract fields are admin only.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := tracking.UpdateUserInput{
		Email:               req.Email,
		Password:            req.Password,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		VacationDaysPerYear: req.VacationDaysPerYear,
		ClearEndDate:        req.ClearEndDate,
	}
	if req.Role != nil {
		role := engine.Role(*req.Role)
		in.Role = &role
	}
	if req.Status != nil {
		status := engine.UserStatus(*req.Status)
		in.Status = &status
	}
	if req.WeeklyHours != nil {
		weekly := engine.HoursOf(*req.WeeklyHours)
		in.WeeklyHours = &weekly
	}
	if req.WorkSchedule != nil {
		schedule, err := scheduleFromMap(*req.WorkSchedule)
		if err != nil {
			serviceError(w, "Invalid work_schedule", err)
			return
		}
		in.WorkSchedule = &schedule
	}
	if req.HireDate != nil {
		hire, err := engine.ParseDate(*req.HireDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid hire_date format (use YYYY-MM-DD)", err)
			return
		}
		in.HireDate = &hire
	}
	if req.EndDate != nil {
		end, err := engine.ParseDate(*req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
			return
		}
		in.EndDate = &end
	}

	u, err := h.users.Update(r.Context(), actor, engine.UserID(chi.URLParam(r, "id")), in)
	if err != nil {
		serviceError(w, "Failed to update user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// DeleteUser soft-deletes a user. Admin only.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.users.SoftDelete(r.Context(), actor, engine.UserID(chi.URLParam(r, "id"))); err != nil {
		serviceError(w, "Failed to delete user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// READ HANDLERS - Balance, reports, history
// =============================================================================

// GetBalance returns the current overtime balance, or the balance at the
// end of ?as_of=YYYY-MM-DD.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	userID := engine.UserID(chi.URLParam(r, "id"))
	if !actor.May(userID) {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}

	asOf := h.clock.Today()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		d, err := engine.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return
		}
		asOf = d
	}

	balance, err := h.reports.BalanceAt(r.Context(), userID, asOf)
	if err != nil {
		serviceError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		UserID:  string(userID),
		Balance: balance.Float64(),
		AsOf:    asOf.String(),
	})
}

// GetMonthlyReport returns the materialized aggregate of one month,
// building it on first read.
func (h *Handler) GetMonthlyReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	userID := engine.UserID(chi.URLParam(r, "id"))
	if !actor.May(userID) {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	monthNum, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || monthNum < 1 || monthNum > 12 {
		writeError(w, http.StatusBadRequest, "Invalid month (use 1-12)", err)
		return
	}

	om, err := h.reports.MonthlyOvertime(r.Context(), userID, engine.Month{Year: year, Month: time.Month(monthNum)})
	if err != nil {
		serviceError(w, "Failed to load month", err)
		return
	}
	writeJSON(w, http.StatusOK, toOvertimeMonthDTO(om))
}

// GetYearOverview returns the months of a year plus carry-over and the
// running total.
func (h *Handler) GetYearOverview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	userID := engine.UserID(chi.URLParam(r, "id"))
	if !actor.May(userID) {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	ov, err := h.reports.YearOverview(r.Context(), userID, year)
	if err != nil {
		serviceError(w, "Failed to load year", err)
		return
	}
	writeJSON(w, http.StatusOK, toYearOverviewDTO(ov))
}

// GetTransactions lists ledger rows. ?from= and ?to= bound the span;
// the default is the current year.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	userID := engine.UserID(chi.URLParam(r, "id"))
	if !actor.May(userID) {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}

	year := h.clock.Today().Year()
	span := engine.NewSpan(engine.NewDate(year, 1, 1), engine.NewDate(year, 12, 31))
	span, err := spanQuery(r, span)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	txs, err := h.reports.History(r.Context(), userID, span)
	if err != nil {
		serviceError(w, "Failed to load transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetDayBreakdown recomputes one day from live facts.
func (h *Handler) GetDayBreakdown(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	userID := engine.UserID(chi.URLParam(r, "id"))
	if !actor.May(userID) {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}
	d, err := engine.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	res, err := h.reports.DayBreakdown(r.Context(), userID, d)
	if err != nil {
		serviceError(w, "Failed to compute day", err)
		return
	}
	writeJSON(w, http.StatusOK, toDayBreakdownDTO(res))
}

// GetVacation returns the vacation account of a year, repairing the
// derived counters on read.
func (h *Handler) GetVacation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	userID := engine.UserID(chi.URLParam(r, "id"))
	if !actor.May(userID) {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	u, err := h.store.UserByID(r.Context(), userID)
	if err != nil {
		serviceError(w, "Failed to get user", err)
		return
	}
	vb, err := engine.RecomputeVacation(r.Context(), h.store, u, year, h.cfg.Carryover)
	if err != nil {
		serviceError(w, "Failed to load vacation balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toVacationDTO(vb))
}

// =============================================================================
// TIME ENTRY HANDLERS
// =============================================================================

// ListEntries returns a user's entries. ?from= and ?to= bound the span;
// the default is the current month.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	userID := engine.UserID(chi.URLParam(r, "id"))

	month := h.clock.Today().MonthOf()
	span := engine.NewSpan(month.First(), month.Last())
	span, err := spanQuery(r, span)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	entries, err := h.entries.InRange(r.Context(), actor, userID, span)
	if err != nil {
		serviceError(w, "Failed to list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// CreateEntry logs working time.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	in, err := entryInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	entry, err := h.entries.Create(r.Context(), actor, in)
	if err != nil {
		serviceError(w, "Failed to create entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// UpdateEntry replaces an entry's fields.
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	in, err := entryInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	entry, err := h.entries.Update(r.Context(), actor, engine.EntryID(chi.URLParam(r, "id")), in)
	if err != nil {
		serviceError(w, "Failed to update entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// DeleteEntry removes an entry.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.entries.Delete(r.Context(), actor, engine.EntryID(chi.URLParam(r, "id"))); err != nil {
		serviceError(w, "Failed to delete entry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func entryInput(req EntryRequest) (tracking.EntryInput, error) {
	d, err := engine.ParseDate(req.Date)
	if err != nil {
		return tracking.EntryInput{}, err
	}
	return tracking.EntryInput{
		UserID:       engine.UserID(req.UserID),
		Date:         d,
		Hours:        engine.HoursOf(req.Hours),
		BreakMinutes: req.BreakMinutes,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Location:     engine.EntryLocation(req.Location),
	}, nil
}

// =============================================================================
// ABSENCE HANDLERS
// =============================================================================

// ListUserAbsences returns the absences of one user, newest first.
func (h *Handler) ListUserAbsences(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	absences, err := h.absences.ForUser(r.Context(), actor, engine.UserID(chi.URLParam(r, "id")))
	if err != nil {
		serviceError(w, "Failed to list absences", err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTOs(absences))
}

// PendingAbsences lists requests awaiting decision. Admin only.
func (h *Handler) PendingAbsences(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	absences, err := h.absences.Pending(r.Context(), actor)
	if err != nil {
		serviceError(w, "Failed to list pending absences", err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTOs(absences))
}

// GetAbsence returns a single absence request.
func (h *Handler) GetAbsence(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	a, err := h.absences.Get(r.Context(), actor, engine.AbsenceID(chi.URLParam(r, "id")))
	if err != nil {
		serviceError(w, "Failed to get absence", err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTO(a))
}

// CreateAbsence files an absence request. Sick leave auto-approves.
func (h *Handler) CreateAbsence(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req CreateAbsenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := engine.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := engine.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	a, err := h.absences.Create(r.Context(), actor, absence.CreateInput{
		UserID:    engine.UserID(req.UserID),
		Kind:      engine.AbsenceKind(req.Type),
		StartDate: start,
		EndDate:   end,
		Reason:    req.Reason,
	})
	if err != nil {
		serviceError(w, "Failed to create absence", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAbsenceDTO(a))
}

// UpdateAbsence rewrites a pending request with new dates, type or reason.
func (h *Handler) UpdateAbsence(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req UpdateAbsenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := engine.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := engine.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	a, err := h.absences.Update(r.Context(), actor, engine.AbsenceID(chi.URLParam(r, "id")), absence.UpdateInput{
		Kind:      engine.AbsenceKind(req.Type),
		StartDate: start,
		EndDate:   end,
		Reason:    req.Reason,
	})
	if err != nil {
		serviceError(w, "Failed to update absence", err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTO(a))
}

// ApproveAbsence approves a pending request. Admin only.
func (h *Handler) ApproveAbsence(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	a, err := h.absences.Approve(r.Context(), actor, engine.AbsenceID(chi.URLParam(r, "id")))
	if err != nil {
		serviceError(w, "Failed to approve absence", err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTO(a))
}

// RejectAbsence rejects a pending or approved request. Admin only.
func (h *Handler) RejectAbsence(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	a, err := h.absences.Reject(r.Context(), actor, engine.AbsenceID(chi.URLParam(r, "id")))
	if err != nil {
		serviceError(w, "Failed to reject absence", err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTO(a))
}

// DeleteAbsence removes a request; approved ones only by admins.
func (h *Handler) DeleteAbsence(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.absences.Delete(r.Context(), actor, engine.AbsenceID(chi.URLParam(r, "id"))); err != nil {
		serviceError(w, "Failed to delete absence", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// CORRECTION HANDLERS
// =============================================================================

// ListCorrections returns the corrections applied to a user.
func (h *Handler) ListCorrections(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	corrections, err := h.corrections.ForUser(r.Context(), actor, engine.UserID(chi.URLParam(r, "id")))
	if err != nil {
		serviceError(w, "Failed to list corrections", err)
		return
	}
	writeJSON(w, http.StatusOK, toCorrectionDTOs(corrections))
}

// CreateCorrection adds a manual balance adjustment. Admin only.
func (h *Handler) CreateCorrection(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req CreateCorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	corr, err := h.corrections.Create(r.Context(), actor, tracking.CorrectionInput{
		UserID: engine.UserID(req.UserID),
		Date:   d,
		Hours:  engine.HoursOf(req.Hours),
		Reason: req.Reason,
		Kind:   engine.CorrectionKind(req.Type),
	})
	if err != nil {
		serviceError(w, "Failed to create correction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCorrectionDTO(corr))
}

// DeleteCorrection removes a correction. Admin only.
func (h *Handler) DeleteCorrection(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.corrections.Delete(r.Context(), actor, engine.CorrectionID(chi.URLParam(r, "id"))); err != nil {
		serviceError(w, "Failed to delete correction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns the holidays of ?year= (default: current year),
// fetching them from the oracle on first read.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireActor(w, r); !ok {
		return
	}
	year := h.clock.Today().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}

	byDate, err := h.cal.HolidaysIn(r.Context(), year)
	if err != nil {
		serviceError(w, "Failed to load holidays", err)
		return
	}
	holidays := make([]engine.Holiday, 0, len(byDate))
	for _, hd := range byDate {
		holidays = append(holidays, hd)
	}
	sort.Slice(holidays, func(i, j int) bool { return holidays[i].Date.Before(holidays[j].Date) })
	writeJSON(w, http.StatusOK, toHolidayDTOs(holidays))
}

// UpsertHolidays inserts or replaces holidays. Admin only. Affected
// months are NOT rebuilt automatically; holidays are expected to be
// loaded before facts reference them.
func (h *Handler) UpsertHolidays(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}
	var req UpsertHolidaysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	holidays := make([]engine.Holiday, 0, len(req.Holidays))
	years := map[int]bool{}
	for _, dto := range req.Holidays {
		d, err := engine.ParseDate(dto.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		holidays = append(holidays, engine.Holiday{Date: d, Name: dto.Name, Federal: dto.Federal})
		years[d.Year()] = true
	}
	if err := h.store.UpsertHolidays(r.Context(), holidays); err != nil {
		serviceError(w, "Failed to save holidays", err)
		return
	}
	for year := range years {
		h.cal.Invalidate(year)
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": len(holidays)})
}

// RefreshHolidays re-fetches ?year= from the oracle. Admin only.
func (h *Handler) RefreshHolidays(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}
	year := h.clock.Today().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}

	n, err := h.cal.Refresh(r.Context(), year)
	if err != nil {
		serviceError(w, "Failed to refresh holidays", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"year": year, "fetched": n})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunRollover closes the year in the URL for every active user. Admin
// only.
func (h *Handler) RunRollover(w http.ResponseWriter, r *http.Request) {
	h.runRollover(w, r, false)
}

// PreviewRollover computes the close without persisting. Admin only.
func (h *Handler) PreviewRollover(w http.ResponseWriter, r *http.Request) {
	h.runRollover(w, r, true)
}

func (h *Handler) runRollover(w http.ResponseWriter, r *http.Request, dryRun bool) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	res, err := h.rollover.Run(r.Context(), actor.ID, year, dryRun)
	if err != nil {
		serviceError(w, "Failed to run rollover", err)
		return
	}
	writeJSON(w, http.StatusOK, toRolloverResultDTO(res))
}

// GetAuditLog returns the newest audit entries. Admin only.
func (h *Handler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "Forbidden", nil)
		return
	}
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "Audit log not configured", nil)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	entries, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		serviceError(w, "Failed to read audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditEntryDTOs(entries))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// serviceError maps the engine's error categories to HTTP statuses.
func serviceError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsForbidden(err):
		writeError(w, http.StatusForbidden, message, err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, engine.ErrUpstream):
		writeError(w, http.StatusBadGateway, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// spanQuery narrows a default span with optional ?from= and ?to= dates.
func spanQuery(r *http.Request, fallback engine.Span) (engine.Span, error) {
	start, end := fallback.Start, fallback.End
	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := engine.ParseDate(raw)
		if err != nil {
			return engine.Span{}, err
		}
		start = d
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		d, err := engine.ParseDate(raw)
		if err != nil {
			return engine.Span{}, err
		}
		end = d
	}
	return engine.NewSpan(start, end), nil
}
