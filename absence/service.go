/*
Package absence implements the absence request lifecycle: creation with
its admission guards, the pending/approved/rejected state machine, and the
side effects a decision has on the overtime ledger and vacation account.

PURPOSE:
  Absences are the most entangled facts in the system. Approving one can
  delete time entries, credit target hours day by day, deduct overtime,
  consume vacation entitlement and shift every later balance. This package
  sequences those effects inside single transactions so observers never
  see half an approval.

STATE MACHINE:
  pending  -> approved   (admin decision; sick skips straight here)
  pending  -> rejected
  approved -> rejected   (cancellation; rebuild removes the credits)
  rejected -> approved   (re-approval; the full approve path runs again)

GUARDS AT CREATION:
  - start date inside employment
  - no overlap with pending or approved absences
  - no time entries in the range (except sick leave)
  - at least one business day under the kind's counting rule
  - vacation: enough entitlement remaining
  - overtime compensation: enough balance accumulated

SEE ALSO:
  - engine/kinds.go: The per-kind traits the guards consult
  - engine/rebuild.go: The rebuild cascade every decision triggers
*/
package absence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/warp/worktime-engine/engine"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store     engine.TxStore
	cal       *engine.Calendar
	rebuilder *engine.Rebuilder
	cfg       engine.Config
	clock     engine.Clock
	audit     engine.AuditLogger
	notifier  engine.Notifier
}

func NewService(store engine.TxStore, cal *engine.Calendar, rebuilder *engine.Rebuilder, cfg engine.Config, clock engine.Clock, audit engine.AuditLogger, notifier engine.Notifier) *Service {
	if audit == nil {
		audit = engine.NopAudit{}
	}
	if notifier == nil {
		notifier = engine.NopNotifier{}
	}
	return &Service{
		store:     store,
		cal:       cal,
		rebuilder: rebuilder,
		cfg:       cfg,
		clock:     clock,
		audit:     audit,
		notifier:  notifier,
	}
}

// =============================================================================
// CREATE
// =============================================================================

type CreateInput struct {
	UserID    engine.UserID
	Kind      engine.AbsenceKind
	StartDate engine.Date
	EndDate   engine.Date
	Reason    string
}

// Create validates and stores a new request. Kinds with auto-approval
// (sick leave) run the full approve path in the same transaction.
func (s *Service) Create(ctx context.Context, actor engine.Actor, in CreateInput) (*engine.AbsenceRequest, error) {
	if !actor.May(in.UserID) {
		return nil, fmt.Errorf("create absence for %s: %w", in.UserID, engine.ErrForbidden)
	}
	if !in.Kind.Valid() {
		return nil, &engine.ValidationError{Field: "type", Message: fmt.Sprintf("unknown absence type %q", in.Kind)}
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, &engine.ValidationError{Field: "endDate", Message: "end date before start date"}
	}

	u, err := s.store.UserByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if in.StartDate.Before(u.HireDate) {
		return nil, fmt.Errorf("absence starts %s, hired %s: %w", in.StartDate, u.HireDate, engine.ErrBeforeHireDate)
	}

	span := engine.NewSpan(in.StartDate, in.EndDate)
	if err := s.checkOverlap(ctx, s.store, in.UserID, span, ""); err != nil {
		return nil, err
	}
	if err := s.checkEntryConflict(ctx, s.store, u.ID, in.Kind, span); err != nil {
		return nil, err
	}

	days, err := engine.CountAbsenceDays(ctx, s.cal, u, in.Kind, span)
	if err != nil {
		return nil, err
	}
	if days == 0 {
		return nil, fmt.Errorf("%s..%s: %w", in.StartDate, in.EndDate, engine.ErrNoWorkingDays)
	}
	if err := s.checkGates(ctx, s.store, u, in.Kind, span, days); err != nil {
		return nil, err
	}

	now := time.Now()
	req := &engine.AbsenceRequest{
		ID:        engine.AbsenceID(uuid.NewString()),
		UserID:    in.UserID,
		Kind:      in.Kind,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Days:      days,
		Status:    engine.AbsencePending,
		Reason:    in.Reason,
		CreatedAt: now,
	}

	if req.Kind.Traits().AutoApprove {
		return req, s.approve(ctx, actor, req, true)
	}

	err = s.store.WithTx(ctx, func(txs engine.Store) error {
		if err := txs.CreateAbsence(ctx, req); err != nil {
			return err
		}
		if req.Kind == engine.AbsenceVacation {
			if _, err := engine.RecomputeVacation(ctx, txs, u, req.StartDate.Year(), s.cfg.Carryover); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.ID, engine.AuditAbsenceCreated, "absence", string(req.ID), map[string]any{
		"type": string(req.Kind), "start": req.StartDate.String(), "end": req.EndDate.String(), "days": days,
	})
	return req, nil
}

// =============================================================================
// UPDATE
// =============================================================================

type UpdateInput struct {
	Kind      engine.AbsenceKind
	StartDate engine.Date
	EndDate   engine.Date
	Reason    string
}

// Update rewrites a pending request. Decided requests are immutable; the
// caller cancels and refiles instead. Every admission guard runs again
// against the new dates.
func (s *Service) Update(ctx context.Context, actor engine.Actor, id engine.AbsenceID, in UpdateInput) (*engine.AbsenceRequest, error) {
	req, err := s.store.AbsenceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.May(req.UserID) {
		return nil, fmt.Errorf("update absence %s: %w", id, engine.ErrForbidden)
	}
	if req.Status != engine.AbsencePending {
		return nil, &engine.TransitionError{From: req.Status, To: engine.AbsencePending}
	}
	if !in.Kind.Valid() {
		return nil, &engine.ValidationError{Field: "type", Message: fmt.Sprintf("unknown absence type %q", in.Kind)}
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, &engine.ValidationError{Field: "endDate", Message: "end date before start date"}
	}

	u, err := s.store.UserByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if in.StartDate.Before(u.HireDate) {
		return nil, fmt.Errorf("absence starts %s, hired %s: %w", in.StartDate, u.HireDate, engine.ErrBeforeHireDate)
	}

	span := engine.NewSpan(in.StartDate, in.EndDate)
	if err := s.checkOverlap(ctx, s.store, req.UserID, span, req.ID); err != nil {
		return nil, err
	}
	if err := s.checkEntryConflict(ctx, s.store, u.ID, in.Kind, span); err != nil {
		return nil, err
	}

	days, err := engine.CountAbsenceDays(ctx, s.cal, u, in.Kind, span)
	if err != nil {
		return nil, err
	}
	if days == 0 {
		return nil, fmt.Errorf("%s..%s: %w", in.StartDate, in.EndDate, engine.ErrNoWorkingDays)
	}
	if err := s.checkGates(ctx, s.store, u, in.Kind, span, days); err != nil {
		return nil, err
	}

	oldYear, oldKind := req.StartDate.Year(), req.Kind
	req.Kind = in.Kind
	req.StartDate = in.StartDate
	req.EndDate = in.EndDate
	req.Days = days
	req.Reason = in.Reason

	err = s.store.WithTx(ctx, func(txs engine.Store) error {
		if err := txs.UpdateAbsence(ctx, req); err != nil {
			return err
		}
		// A pending request only shows up in the vacation account's
		// pending counter, but that must track both touched years.
		if oldKind == engine.AbsenceVacation {
			if _, err := engine.RecomputeVacation(ctx, txs, u, oldYear, s.cfg.Carryover); err != nil {
				return err
			}
		}
		if req.Kind == engine.AbsenceVacation && (oldKind != engine.AbsenceVacation || req.StartDate.Year() != oldYear) {
			if _, err := engine.RecomputeVacation(ctx, txs, u, req.StartDate.Year(), s.cfg.Carryover); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.ID, engine.AuditAbsenceUpdated, "absence", string(req.ID), map[string]any{
		"type": string(req.Kind), "start": req.StartDate.String(), "end": req.EndDate.String(), "days": days,
	})
	return req, nil
}

// =============================================================================
// APPROVE
// =============================================================================

// Approve moves a pending or rejected request to approved and materializes
// its effects: conflicting entries handled per policy, every overlapped
// month rebuilt, vacation counters refreshed.
func (s *Service) Approve(ctx context.Context, actor engine.Actor, id engine.AbsenceID) (*engine.AbsenceRequest, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("approve absence: %w", engine.ErrForbidden)
	}
	req, err := s.store.AbsenceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == engine.AbsenceApproved {
		return nil, &engine.TransitionError{From: req.Status, To: engine.AbsenceApproved}
	}
	return req, s.approve(ctx, actor, req, false)
}

// approve runs the shared approve path. With create set, the request is
// inserted rather than updated. Re-approval of a rejected request runs
// through here unchanged: all guards are evaluated from scratch.
func (s *Service) approve(ctx context.Context, actor engine.Actor, req *engine.AbsenceRequest, create bool) error {
	cascade, unlock := s.rebuilder.LockCascade(ctx, req.UserID, req.StartDate.MonthOf())
	defer unlock()

	var deletedEntries []*engine.TimeEntry

	err := s.store.WithTx(ctx, func(txs engine.Store) error {
		u, err := txs.UserByID(ctx, req.UserID)
		if err != nil {
			return err
		}
		span := req.Span()

		// 1. Re-run the admission guards against live state.
		if err := s.checkOverlap(ctx, txs, req.UserID, span, req.ID); err != nil {
			return err
		}
		if err := s.checkGates(ctx, txs, u, req.Kind, span, req.Days); err != nil {
			return err
		}

		// 2. Resolve time-entry conflicts per the configured policy.
		if !req.Kind.Traits().CoexistsWithEntries {
			switch s.cfg.Conflict {
			case engine.ConflictRejectApproval:
				if err := s.checkEntryConflict(ctx, txs, u.ID, req.Kind, span); err != nil {
					return err
				}
			default:
				deletedEntries, err = txs.DeleteEntriesInRange(ctx, req.UserID, span)
				if err != nil {
					return err
				}
			}
		}

		// 3. Persist the status change.
		now := time.Now()
		req.Status = engine.AbsenceApproved
		req.ApprovedAt = &now
		if req.Kind.Traits().AutoApprove {
			req.ApprovedBy = nil
		} else {
			id := actor.ID
			req.ApprovedBy = &id
		}
		if create {
			if err := txs.CreateAbsence(ctx, req); err != nil {
				return err
			}
		} else {
			if err := txs.UpdateAbsence(ctx, req); err != nil {
				return err
			}
		}

		// 4. Rebuild every month from the first affected one forward.
		for _, m := range cascade {
			if err := s.rebuilder.RebuildIn(ctx, txs, req.UserID, m); err != nil {
				return err
			}
		}

		// 5. Refresh the vacation account.
		if req.Kind == engine.AbsenceVacation {
			if _, err := engine.RecomputeVacation(ctx, txs, u, req.StartDate.Year(), s.cfg.Carryover); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, actor.ID, engine.AuditAbsenceApproved, "absence", string(req.ID), map[string]any{
		"type": string(req.Kind), "start": req.StartDate.String(), "end": req.EndDate.String(),
		"deletedEntries": len(deletedEntries),
	})
	s.notifier.Emit(ctx, req.UserID, engine.NotifyAbsenceApproved, map[string]any{
		"absenceId": string(req.ID),
		"type":      string(req.Kind),
		"start":     req.StartDate.String(),
		"end":       req.EndDate.String(),
	})
	if len(deletedEntries) > 0 {
		s.notifier.Emit(ctx, req.UserID, engine.NotifyEntriesDeleted, deletedEntriesPayload(req, deletedEntries))
		log.Info().
			Str("absence", string(req.ID)).
			Int("entries", len(deletedEntries)).
			Msg("deleted conflicting time entries on approval")
	}
	return nil
}

func deletedEntriesPayload(req *engine.AbsenceRequest, entries []*engine.TimeEntry) map[string]any {
	deleted := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		deleted = append(deleted, map[string]any{"date": e.Date.String(), "hours": e.Hours.String()})
	}
	return map[string]any{"absenceId": string(req.ID), "deleted": deleted}
}

// =============================================================================
// REJECT
// =============================================================================

// Reject refuses a pending request or cancels an approved one. For an
// approved absence the rebuild drops its credit and compensation rows,
// restoring the balance trajectory the credits had created.
func (s *Service) Reject(ctx context.Context, actor engine.Actor, id engine.AbsenceID) (*engine.AbsenceRequest, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("reject absence: %w", engine.ErrForbidden)
	}
	req, err := s.store.AbsenceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == engine.AbsenceRejected {
		return nil, &engine.TransitionError{From: req.Status, To: engine.AbsenceRejected}
	}
	wasApproved := req.Status == engine.AbsenceApproved

	cascade, unlock := s.rebuilder.LockCascade(ctx, req.UserID, req.StartDate.MonthOf())
	defer unlock()

	err = s.store.WithTx(ctx, func(txs engine.Store) error {
		u, err := txs.UserByID(ctx, req.UserID)
		if err != nil {
			return err
		}

		req.Status = engine.AbsenceRejected
		req.ApprovedBy = nil
		req.ApprovedAt = nil
		if err := txs.UpdateAbsence(ctx, req); err != nil {
			return err
		}

		if wasApproved {
			for _, m := range cascade {
				if err := s.rebuilder.RebuildIn(ctx, txs, req.UserID, m); err != nil {
					return err
				}
			}
		}
		if req.Kind == engine.AbsenceVacation {
			if _, err := engine.RecomputeVacation(ctx, txs, u, req.StartDate.Year(), s.cfg.Carryover); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.ID, engine.AuditAbsenceRejected, "absence", string(req.ID), map[string]any{
		"type": string(req.Kind), "wasApproved": wasApproved,
	})
	s.notifier.Emit(ctx, req.UserID, engine.NotifyAbsenceRejected, map[string]any{
		"absenceId": string(req.ID),
		"type":      string(req.Kind),
	})
	return req, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a request. Admins delete any state; employees only their
// own pending requests. Deleting an approved absence rebuilds the months
// it had credited.
func (s *Service) Delete(ctx context.Context, actor engine.Actor, id engine.AbsenceID) error {
	req, err := s.store.AbsenceByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		if req.UserID != actor.ID || req.Status != engine.AbsencePending {
			return fmt.Errorf("delete absence %s: %w", id, engine.ErrForbidden)
		}
	}
	wasApproved := req.Status == engine.AbsenceApproved

	cascade, unlock := s.rebuilder.LockCascade(ctx, req.UserID, req.StartDate.MonthOf())
	defer unlock()

	err = s.store.WithTx(ctx, func(txs engine.Store) error {
		u, err := txs.UserByID(ctx, req.UserID)
		if err != nil {
			return err
		}
		if err := txs.DeleteAbsence(ctx, id); err != nil {
			return err
		}
		if wasApproved {
			for _, m := range cascade {
				if err := s.rebuilder.RebuildIn(ctx, txs, req.UserID, m); err != nil {
					return err
				}
			}
		}
		if req.Kind == engine.AbsenceVacation {
			if _, err := engine.RecomputeVacation(ctx, txs, u, req.StartDate.Year(), s.cfg.Carryover); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, actor.ID, engine.AuditAbsenceDeleted, "absence", string(id), map[string]any{
		"type": string(req.Kind), "wasApproved": wasApproved,
	})
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) Get(ctx context.Context, actor engine.Actor, id engine.AbsenceID) (*engine.AbsenceRequest, error) {
	req, err := s.store.AbsenceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.May(req.UserID) {
		return nil, fmt.Errorf("absence %s: %w", id, engine.ErrForbidden)
	}
	return req, nil
}

func (s *Service) ForUser(ctx context.Context, actor engine.Actor, userID engine.UserID) ([]*engine.AbsenceRequest, error) {
	if !actor.May(userID) {
		return nil, fmt.Errorf("absences of %s: %w", userID, engine.ErrForbidden)
	}
	return s.store.AbsencesForUser(ctx, userID)
}

// Pending lists the admin approval queue.
func (s *Service) Pending(ctx context.Context, actor engine.Actor) ([]*engine.AbsenceRequest, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("pending absences: %w", engine.ErrForbidden)
	}
	status := engine.AbsencePending
	return s.store.ListAbsences(ctx, &status)
}

// =============================================================================
// GUARDS
// =============================================================================

// checkOverlap rejects when any pending or approved absence intersects the
// span. The request being re-evaluated is excluded by id.
func (s *Service) checkOverlap(ctx context.Context, store engine.Store, userID engine.UserID, span engine.Span, self engine.AbsenceID) error {
	existing, err := store.AbsencesInRange(ctx, userID, span,
		[]engine.AbsenceStatus{engine.AbsencePending, engine.AbsenceApproved})
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == self {
			continue
		}
		return &engine.OverlapError{UserID: userID, Existing: other.ID, Span: other.Span()}
	}
	return nil
}

// checkEntryConflict rejects when logged time occupies the span, unless
// the kind tolerates it.
func (s *Service) checkEntryConflict(ctx context.Context, store engine.Store, userID engine.UserID, kind engine.AbsenceKind, span engine.Span) error {
	if kind.Traits().CoexistsWithEntries {
		return nil
	}
	entries, err := store.EntriesInRange(ctx, userID, span)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	seen := make(map[engine.Date]bool)
	var dates []engine.Date
	for _, e := range entries {
		if !seen[e.Date] {
			seen[e.Date] = true
			dates = append(dates, e.Date)
		}
	}
	return &engine.EntryConflictError{UserID: userID, Dates: dates, Entries: len(entries)}
}

// checkGates enforces the balance gates of vacation and overtime
// compensation.
func (s *Service) checkGates(ctx context.Context, store engine.Store, u *engine.User, kind engine.AbsenceKind, span engine.Span, days int) error {
	traits := kind.Traits()
	if traits.DeductsVacation {
		vb, err := engine.RecomputeVacation(ctx, store, u, span.Start.Year(), s.cfg.Carryover)
		if err != nil {
			return err
		}
		if vb.Remaining() < days {
			return &engine.InsufficientVacationError{
				UserID:    u.ID,
				Year:      span.Start.Year(),
				Requested: days,
				Remaining: vb.Remaining(),
			}
		}
	}
	if traits.DeductsOvertime {
		needed, err := engine.AbsenceCreditHours(ctx, s.cal, u, kind, span)
		if err != nil {
			return err
		}
		balance, err := engine.NewLedger(store).Balance(ctx, u.ID)
		if err != nil {
			return err
		}
		if balance.LessThan(needed) {
			return &engine.InsufficientOvertimeError{UserID: u.ID, Requested: needed, Available: balance}
		}
	}
	return nil
}
