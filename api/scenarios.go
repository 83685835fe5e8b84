/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates users, holidays,
	time entries, absences, and corrections through the regular services,
	so the ledgers it produces are exactly what production writes would
	produce.

AVAILABLE SCENARIOS:

	small-agency:      Admin plus two employees with a mixed history
	part-time-holiday: Part-timer whose vacation week contains a holiday
	overtime-comp:     Overtime built up in entries, spent as a comp day
	year-end-close:    Previous year complete, ready for rollover preview

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed holidays and invalidate the calendar cache
 3. Create users from factory presets
 4. Log entries / file absences / add corrections via the services

USAGE VIA API:

	POST /api/scenarios/part-time-holiday

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, today)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo
	environments; the endpoints answer 404 when no Resetter is wired.

SEE ALSO:
  - handlers.go: Handler wiring, writeJSON/writeError
  - factory/schedule.go: Contract presets the users are built from
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/worktime-engine/absence"
	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/factory"
	"github.com/warp/worktime-engine/tracking"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-agency",
		Name:        "Small Agency",
		Description: "Admin plus two employees: entries, approved vacation, a migration correction, one pending request",
	},
	{
		ID:          "part-time-holiday",
		Name:        "Part-Time Holiday Week",
		Description: "Monday+Tuesday part-timer on vacation over a week with a Monday holiday",
	},
	{
		ID:          "overtime-comp",
		Name:        "Overtime Compensation",
		Description: "A month of 10-hour days, then a day off paid from the overtime balance",
	},
	{
		ID:          "year-end-close",
		Name:        "Year-End Close",
		Description: "Previous year fully booked, rollover preview ready to run",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// ResetDatabase wipes all data without loading anything.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.reset == nil {
		writeError(w, http.StatusNotFound, "Reset not available", nil)
		return
	}
	if err := h.wipe(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadScenario resets the database and loads the scenario named in the URL.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.reset == nil {
		writeError(w, http.StatusNotFound, "Scenarios not available", nil)
		return
	}
	id := chi.URLParam(r, "id")

	ctx := r.Context()
	if err := h.wipe(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	today := h.clock.Today()

	var err error
	switch id {
	case "small-agency":
		err = h.loadSmallAgencyScenario(ctx, today)
	case "part-time-holiday":
		err = h.loadPartTimeHolidayScenario(ctx, today)
	case "overtime-comp":
		err = h.loadOvertimeCompScenario(ctx, today)
	case "year-end-close":
		err = h.loadYearEndCloseScenario(ctx, today)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": id})
}

// wipe clears the store, the loaded-scenario marker, and the holiday
// cache of the years scenarios touch.
func (h *Handler) wipe(ctx context.Context) error {
	if err := h.reset.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	year := h.clock.Today().Year()
	for y := year - 2; y <= year+1; y++ {
		h.cal.Invalidate(y)
	}
	return nil
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

// scenarioActor bootstraps user creation before any admin exists. The
// services only check the role, not the record.
var scenarioActor = engine.Actor{ID: "scenario-loader", Role: engine.RoleAdmin}

func (h *Handler) seedAdmin(ctx context.Context, hire engine.Date) (engine.Actor, error) {
	admin, err := h.users.Create(ctx, scenarioActor, tracking.CreateUserInput{
		Username:            "anna.admin",
		Email:               "anna@example.com",
		Password:            "demo-password",
		FirstName:           "Anna",
		LastName:            "Arendt",
		Role:                engine.RoleAdmin,
		WeeklyHours:         engine.HoursFromInt(40),
		VacationDaysPerYear: 30,
		HireDate:            hire,
	})
	if err != nil {
		return engine.Actor{}, err
	}
	return engine.Actor{ID: admin.ID, Role: admin.Role}, nil
}

func (h *Handler) seedEmployee(ctx context.Context, admin engine.Actor, presetID, username, first, last string, hire engine.Date) (*engine.User, error) {
	preset, err := factory.ByID(presetID)
	if err != nil {
		return nil, err
	}
	return h.users.Create(ctx, admin, tracking.CreateUserInput{
		Username:            username,
		Email:               username + "@example.com",
		Password:            "demo-password",
		FirstName:           first,
		LastName:            last,
		Role:                engine.RoleEmployee,
		WeeklyHours:         preset.WeeklyHours,
		WorkSchedule:        preset.Schedule,
		VacationDaysPerYear: preset.VacationDays,
		HireDate:            hire,
	})
}

// seedHolidays writes the nationwide German holidays of the given years
// directly to the store. Scenarios do not depend on the oracle.
func (h *Handler) seedHolidays(ctx context.Context, years ...int) error {
	var hs []engine.Holiday
	for _, y := range years {
		hs = append(hs,
			engine.Holiday{Date: engine.NewDate(y, time.January, 1), Name: "Neujahr", Federal: true},
			engine.Holiday{Date: engine.NewDate(y, time.May, 1), Name: "Tag der Arbeit", Federal: true},
			engine.Holiday{Date: engine.NewDate(y, time.October, 3), Name: "Tag der Deutschen Einheit", Federal: true},
			engine.Holiday{Date: engine.NewDate(y, time.December, 25), Name: "1. Weihnachtstag", Federal: true},
			engine.Holiday{Date: engine.NewDate(y, time.December, 26), Name: "2. Weihnachtstag", Federal: true},
		)
	}
	if err := h.store.UpsertHolidays(ctx, hs); err != nil {
		return err
	}
	for _, y := range years {
		h.cal.Invalidate(y)
	}
	return nil
}

// logWorkdays creates one entry per scheduled workday in the span,
// skipping holidays and any extra spans (absences booked beforehand).
func (h *Handler) logWorkdays(ctx context.Context, u *engine.User, span engine.Span, hours engine.Hours, loc engine.EntryLocation, skip ...engine.Span) error {
	actor := engine.Actor{ID: u.ID, Role: u.Role}
	return span.Each(func(d engine.Date) error {
		if !engine.WorksOn(u, d.Weekday()) {
			return nil
		}
		for _, s := range skip {
			if s.Contains(d) {
				return nil
			}
		}
		holiday, err := h.cal.IsHoliday(ctx, d)
		if err != nil {
			return err
		}
		if holiday {
			return nil
		}
		_, err = h.entries.Create(ctx, actor, tracking.EntryInput{
			UserID:       u.ID,
			Date:         d,
			Hours:        hours,
			BreakMinutes: 30,
			Location:     loc,
		})
		return err
	})
}

// fileAbsence creates a request as the employee and, when asked,
// approves it as the admin.
func (h *Handler) fileAbsence(ctx context.Context, admin engine.Actor, u *engine.User, kind engine.AbsenceKind, start, end engine.Date, reason string, approve bool) (*engine.AbsenceRequest, error) {
	req, err := h.absences.Create(ctx, engine.Actor{ID: u.ID, Role: u.Role}, absence.CreateInput{
		UserID:    u.ID,
		Kind:      kind,
		StartDate: start,
		EndDate:   end,
		Reason:    reason,
	})
	if err != nil {
		return nil, err
	}
	if approve && req.Status == engine.AbsencePending {
		return h.absences.Approve(ctx, admin, req.ID)
	}
	return req, nil
}

// mondayOf returns the Monday of the week containing d.
func mondayOf(d engine.Date) engine.Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSmallAgencyScenario(ctx context.Context, today engine.Date) error {
	prev := today.Year() - 1

	if err := h.seedHolidays(ctx, prev, today.Year()); err != nil {
		return err
	}
	admin, err := h.seedAdmin(ctx, engine.NewDate(prev-2, time.January, 1))
	if err != nil {
		return err
	}

	ben, err := h.seedEmployee(ctx, admin, "fulltime-40", "ben.bauer", "Ben", "Bauer", engine.NewDate(prev, time.January, 1))
	if err != nil {
		return err
	}
	clara, err := h.seedEmployee(ctx, admin, "half-time-20", "clara.cruz", "Clara", "Cruz", engine.NewDate(prev, time.March, 1))
	if err != nil {
		return err
	}

	// Ben joined with a balance from the old tracking tool.
	if _, err := h.corrections.Create(ctx, admin, tracking.CorrectionInput{
		UserID: ben.ID,
		Date:   ben.HireDate,
		Hours:  engine.HoursOf(12.5),
		Reason: "Balance migrated from the previous tracking tool",
		Kind:   engine.CorrectionMigration,
	}); err != nil {
		return err
	}

	// A regular June plus two long home-office Mondays in July.
	june := engine.NewSpan(engine.NewDate(prev, time.June, 1), engine.NewDate(prev, time.June, 30))
	if err := h.logWorkdays(ctx, ben, june, engine.HoursFromInt(8), engine.LocationOffice); err != nil {
		return err
	}
	benActor := engine.Actor{ID: ben.ID, Role: ben.Role}
	for _, d := range []engine.Date{engine.NewDate(prev, time.July, 6), engine.NewDate(prev, time.July, 13)} {
		if _, err := h.entries.Create(ctx, benActor, tracking.EntryInput{
			UserID: ben.ID, Date: d, Hours: engine.HoursFromInt(10), BreakMinutes: 45, Location: engine.LocationHomeOffice,
		}); err != nil {
			return err
		}
	}

	if err := h.logWorkdays(ctx, clara, june, engine.HoursFromInt(4), engine.LocationHomeOffice); err != nil {
		return err
	}

	// Approved summer vacation for Ben, a sick day for Clara, and one
	// request still waiting on the admin.
	if _, err := h.fileAbsence(ctx, admin, ben, engine.AbsenceVacation,
		engine.NewDate(prev, time.August, 3), engine.NewDate(prev, time.August, 14),
		"Summer vacation", true); err != nil {
		return err
	}
	sickDay := mondayOf(engine.NewDate(prev, time.June, 15)).AddDays(1)
	if _, err := h.fileAbsence(ctx, admin, clara, engine.AbsenceSick,
		sickDay, sickDay, "", false); err != nil {
		return err
	}
	nextBreak := mondayOf(today.AddDays(21))
	_, err = h.fileAbsence(ctx, admin, ben, engine.AbsenceVacation,
		nextBreak, nextBreak.AddDays(4), "Autumn break", false)
	return err
}

func (h *Handler) loadPartTimeHolidayScenario(ctx context.Context, today engine.Date) error {
	prev := today.Year() - 1

	if err := h.seedHolidays(ctx, prev, today.Year()); err != nil {
		return err
	}
	admin, err := h.seedAdmin(ctx, engine.NewDate(prev-1, time.January, 1))
	if err != nil {
		return err
	}
	paula, err := h.seedEmployee(ctx, admin, "parttime-16", "paula.petersen", "Paula", "Petersen", engine.NewDate(prev, time.January, 1))
	if err != nil {
		return err
	}

	// A Monday holiday in the week Paula takes off. Only her Tuesday
	// counts as a vacation day; the Monday is credited as a holiday.
	holidayMonday := mondayOf(engine.NewDate(prev, time.June, 15))
	if err := h.store.UpsertHolidays(ctx, []engine.Holiday{
		{Date: holidayMonday, Name: "Pfingstmontag", Federal: true},
	}); err != nil {
		return err
	}
	h.cal.Invalidate(prev)

	// Regular Mondays and Tuesdays through April and May.
	if err := h.logWorkdays(ctx, paula,
		engine.NewSpan(engine.NewDate(prev, time.April, 1), engine.NewDate(prev, time.May, 31)),
		engine.HoursFromInt(8), engine.LocationOffice); err != nil {
		return err
	}

	_, err = h.fileAbsence(ctx, admin, paula, engine.AbsenceVacation,
		holidayMonday, holidayMonday.AddDays(6),
		"Week off around the holiday", true)
	return err
}

func (h *Handler) loadOvertimeCompScenario(ctx context.Context, today engine.Date) error {
	prev := today.Year() - 1

	if err := h.seedHolidays(ctx, prev, today.Year()); err != nil {
		return err
	}
	admin, err := h.seedAdmin(ctx, engine.NewDate(prev-1, time.January, 1))
	if err != nil {
		return err
	}
	omar, err := h.seedEmployee(ctx, admin, "fulltime-40", "omar.oezdemir", "Omar", "Oezdemir", engine.NewDate(prev, time.January, 1))
	if err != nil {
		return err
	}

	// Contract hours from hire to today, except a September crunch at
	// ten hours a day. The comp day stays unlogged so the request can
	// be filed over it; every other day is covered, otherwise the
	// misses would eat the built-up balance before it is spent.
	compDay := mondayOf(engine.NewDate(prev, time.October, 15))
	comp := engine.NewSpan(compDay, compDay)
	crunch := engine.NewSpan(engine.NewDate(prev, time.September, 1), engine.NewDate(prev, time.September, 30))

	if err := h.logWorkdays(ctx, omar,
		engine.NewSpan(omar.HireDate, crunch.Start.AddDays(-1)),
		engine.HoursFromInt(8), engine.LocationOffice); err != nil {
		return err
	}
	if err := h.logWorkdays(ctx, omar, crunch, engine.HoursFromInt(10), engine.LocationOffice); err != nil {
		return err
	}
	if err := h.logWorkdays(ctx, omar,
		engine.NewSpan(crunch.End.AddDays(1), today),
		engine.HoursFromInt(8), engine.LocationOffice, comp); err != nil {
		return err
	}

	// One day paid back from the balance in October.
	_, err = h.fileAbsence(ctx, admin, omar, engine.AbsenceOvertimeComp,
		compDay, compDay, "Recovery day after the release", true)
	return err
}

func (h *Handler) loadYearEndCloseScenario(ctx context.Context, today engine.Date) error {
	prev := today.Year() - 1

	if err := h.seedHolidays(ctx, prev, today.Year()); err != nil {
		return err
	}
	admin, err := h.seedAdmin(ctx, engine.NewDate(prev-2, time.January, 1))
	if err != nil {
		return err
	}

	frida, err := h.seedEmployee(ctx, admin, "fulltime-38.5", "frida.fuchs", "Frida", "Fuchs", engine.NewDate(prev, time.January, 1))
	if err != nil {
		return err
	}
	theo, err := h.seedEmployee(ctx, admin, "four-day-32", "theo.thaler", "Theo", "Thaler", engine.NewDate(prev, time.February, 1))
	if err != nil {
		return err
	}

	// Absences first, entries after: logged time on an absence span would
	// be rejected.
	fridaVacation := engine.NewSpan(engine.NewDate(prev, time.July, 20), engine.NewDate(prev, time.July, 31))
	fridaUnpaid := engine.NewSpan(engine.NewDate(prev, time.November, 2), engine.NewDate(prev, time.November, 6))
	theoVacation := engine.NewSpan(engine.NewDate(prev, time.August, 10), engine.NewDate(prev, time.August, 14))

	if _, err := h.fileAbsence(ctx, admin, frida, engine.AbsenceVacation,
		fridaVacation.Start, fridaVacation.End, "Summer vacation", true); err != nil {
		return err
	}
	if _, err := h.fileAbsence(ctx, admin, frida, engine.AbsenceUnpaid,
		fridaUnpaid.Start, fridaUnpaid.End, "Unpaid leave for a family matter", true); err != nil {
		return err
	}
	if _, err := h.fileAbsence(ctx, admin, theo, engine.AbsenceVacation,
		theoVacation.Start, theoVacation.End, "Hiking week", true); err != nil {
		return err
	}

	// Frida overdelivers slightly all year, Theo works to contract.
	for m := time.January; m <= time.December; m++ {
		first := engine.NewDate(prev, m, 1)
		span := engine.NewSpan(first, first.AddMonths(1).AddDays(-1))
		if err := h.logWorkdays(ctx, frida, span, engine.HoursFromInt(8), engine.LocationOffice, fridaVacation, fridaUnpaid); err != nil {
			return err
		}
		if m >= time.February {
			if err := h.logWorkdays(ctx, theo, span, engine.HoursFromInt(8), engine.LocationHomeOffice, theoVacation); err != nil {
				return err
			}
		}
	}
	return nil
}
