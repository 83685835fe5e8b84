/*
Package tracking manages the source facts of the accounting engine: the
users whose time is tracked, their logged time entries, and manual
overtime corrections. Every mutation here triggers the rebuild cascade
that keeps the derived ledger and projections consistent.

SEE ALSO:
  - engine/rebuild.go: The cascade invoked after each mutation
  - absence/service.go: The absence side of the fact model
*/
package tracking

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/warp/worktime-engine/engine"
)

// =============================================================================
// ENTRY SERVICE
// =============================================================================

type EntryService struct {
	store     engine.TxStore
	rebuilder *engine.Rebuilder
	audit     engine.AuditLogger
}

func NewEntryService(store engine.TxStore, rebuilder *engine.Rebuilder, audit engine.AuditLogger) *EntryService {
	if audit == nil {
		audit = engine.NopAudit{}
	}
	return &EntryService{store: store, rebuilder: rebuilder, audit: audit}
}

type EntryInput struct {
	UserID       engine.UserID
	Date         engine.Date
	Hours        engine.Hours
	BreakMinutes int
	StartTime    string
	EndTime      string
	Location     engine.EntryLocation
}

var clockFormat = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

func (in *EntryInput) validate(u *engine.User) error {
	if !in.Hours.IsPositive() || in.Hours.GreaterThan(engine.HoursFromInt(24)) {
		return &engine.ValidationError{Field: "hours", Message: "must be between 0 and 24"}
	}
	if !in.Hours.Equal(in.Hours.Round2()) {
		return &engine.ValidationError{Field: "hours", Message: "at most 2 decimal places"}
	}
	if in.BreakMinutes < 0 {
		return &engine.ValidationError{Field: "breakMinutes", Message: "must not be negative"}
	}
	if in.StartTime != "" && !clockFormat.MatchString(in.StartTime) {
		return &engine.ValidationError{Field: "startTime", Message: "expected HH:MM"}
	}
	if in.EndTime != "" && !clockFormat.MatchString(in.EndTime) {
		return &engine.ValidationError{Field: "endTime", Message: "expected HH:MM"}
	}
	switch in.Location {
	case "", engine.LocationOffice, engine.LocationHomeOffice, engine.LocationField:
	default:
		return &engine.ValidationError{Field: "location", Message: fmt.Sprintf("unknown location %q", in.Location)}
	}
	if in.Date.Before(u.HireDate) {
		return fmt.Errorf("entry on %s, hired %s: %w", in.Date, u.HireDate, engine.ErrBeforeHireDate)
	}
	if u.EndDate != nil && in.Date.After(*u.EndDate) {
		return &engine.ValidationError{Field: "date", Message: "after employment end"}
	}
	return nil
}

// Create logs working time. Dates covered by an approved non-sick absence
// are rejected; sick leave tolerates logged time.
func (es *EntryService) Create(ctx context.Context, actor engine.Actor, in EntryInput) (*engine.TimeEntry, error) {
	if !actor.May(in.UserID) {
		return nil, fmt.Errorf("create entry for %s: %w", in.UserID, engine.ErrForbidden)
	}
	u, err := es.store.UserByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := in.validate(u); err != nil {
		return nil, err
	}
	if err := es.checkAbsenceConflict(ctx, in.UserID, in.Date); err != nil {
		return nil, err
	}

	entry := &engine.TimeEntry{
		ID:           engine.EntryID(uuid.NewString()),
		UserID:       in.UserID,
		Date:         in.Date,
		Hours:        in.Hours,
		BreakMinutes: in.BreakMinutes,
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		Location:     in.Location,
		CreatedAt:    time.Now(),
	}
	if entry.Location == "" {
		entry.Location = engine.LocationOffice
	}

	err = es.mutate(ctx, in.UserID, in.Date.MonthOf(), func(txs engine.Store) error {
		return txs.CreateTimeEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	es.audit.Record(ctx, actor.ID, engine.AuditEntryCreated, "time_entry", string(entry.ID), map[string]any{
		"date": entry.Date.String(), "hours": entry.Hours.String(),
	})
	return entry, nil
}

// Update replaces an entry's fields and rebuilds from the earlier of the
// old and new month.
func (es *EntryService) Update(ctx context.Context, actor engine.Actor, id engine.EntryID, in EntryInput) (*engine.TimeEntry, error) {
	entry, err := es.store.TimeEntryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.May(entry.UserID) {
		return nil, fmt.Errorf("update entry %s: %w", id, engine.ErrForbidden)
	}
	u, err := es.store.UserByID(ctx, entry.UserID)
	if err != nil {
		return nil, err
	}
	in.UserID = entry.UserID
	if err := in.validate(u); err != nil {
		return nil, err
	}
	if !in.Date.Equal(entry.Date) {
		if err := es.checkAbsenceConflict(ctx, entry.UserID, in.Date); err != nil {
			return nil, err
		}
	}

	from := engine.MinDate(entry.Date, in.Date).MonthOf()
	entry.Date = in.Date
	entry.Hours = in.Hours
	entry.BreakMinutes = in.BreakMinutes
	entry.StartTime = in.StartTime
	entry.EndTime = in.EndTime
	if in.Location != "" {
		entry.Location = in.Location
	}

	err = es.mutate(ctx, entry.UserID, from, func(txs engine.Store) error {
		return txs.UpdateTimeEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	es.audit.Record(ctx, actor.ID, engine.AuditEntryUpdated, "time_entry", string(entry.ID), map[string]any{
		"date": entry.Date.String(), "hours": entry.Hours.String(),
	})
	return entry, nil
}

func (es *EntryService) Delete(ctx context.Context, actor engine.Actor, id engine.EntryID) error {
	entry, err := es.store.TimeEntryByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.May(entry.UserID) {
		return fmt.Errorf("delete entry %s: %w", id, engine.ErrForbidden)
	}

	err = es.mutate(ctx, entry.UserID, entry.Date.MonthOf(), func(txs engine.Store) error {
		return txs.DeleteTimeEntry(ctx, id)
	})
	if err != nil {
		return err
	}

	es.audit.Record(ctx, actor.ID, engine.AuditEntryDeleted, "time_entry", string(id), map[string]any{
		"date": entry.Date.String(),
	})
	return nil
}

func (es *EntryService) InRange(ctx context.Context, actor engine.Actor, userID engine.UserID, span engine.Span) ([]*engine.TimeEntry, error) {
	if !actor.May(userID) {
		return nil, fmt.Errorf("entries of %s: %w", userID, engine.ErrForbidden)
	}
	return es.store.EntriesInRange(ctx, userID, span)
}

// mutate runs the write and the rebuild cascade in one transaction under
// the month locks.
func (es *EntryService) mutate(ctx context.Context, userID engine.UserID, from engine.Month, write func(engine.Store) error) error {
	cascade, unlock := es.rebuilder.LockCascade(ctx, userID, from)
	defer unlock()

	return es.store.WithTx(ctx, func(txs engine.Store) error {
		if err := write(txs); err != nil {
			return err
		}
		for _, m := range cascade {
			if err := es.rebuilder.RebuildIn(ctx, txs, userID, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// checkAbsenceConflict enforces the exclusion of logged time and approved
// non-sick absences on the same date.
func (es *EntryService) checkAbsenceConflict(ctx context.Context, userID engine.UserID, d engine.Date) error {
	absences, err := es.store.AbsencesInRange(ctx, userID, engine.NewSpan(d, d),
		[]engine.AbsenceStatus{engine.AbsenceApproved})
	if err != nil {
		return err
	}
	for _, a := range absences {
		if !a.Kind.Traits().CoexistsWithEntries {
			return fmt.Errorf("date %s is covered by approved %s: %w", d, a.Kind.Label(), engine.ErrTimeEntryConflict)
		}
	}
	return nil
}
