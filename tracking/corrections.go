package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/worktime-engine/engine"
)

// =============================================================================
// CORRECTION SERVICE
// =============================================================================
//
// Corrections are admin-entered balance adjustments. They never touch the
// ledger directly: the rebuild folds them into the earned row of their
// date, so the audit trail explains where the hours came from.

type CorrectionService struct {
	store     engine.TxStore
	rebuilder *engine.Rebuilder
	audit     engine.AuditLogger
}

func NewCorrectionService(store engine.TxStore, rebuilder *engine.Rebuilder, audit engine.AuditLogger) *CorrectionService {
	if audit == nil {
		audit = engine.NopAudit{}
	}
	return &CorrectionService{store: store, rebuilder: rebuilder, audit: audit}
}

type CorrectionInput struct {
	UserID engine.UserID
	Date   engine.Date
	Hours  engine.Hours
	Reason string
	Kind   engine.CorrectionKind
}

// minReasonLen keeps corrections explainable; a bare "fix" is not an
// audit trail.
const minReasonLen = 10

func (ci *CorrectionInput) validate(u *engine.User) error {
	if ci.Hours.IsZero() {
		return &engine.ValidationError{Field: "hours", Message: "must not be zero"}
	}
	if !ci.Hours.Equal(ci.Hours.Round2()) {
		return &engine.ValidationError{Field: "hours", Message: "at most 2 decimal places"}
	}
	if len(ci.Reason) < minReasonLen {
		return &engine.ValidationError{Field: "reason", Message: fmt.Sprintf("at least %d characters", minReasonLen)}
	}
	if !ci.Kind.Valid() {
		return &engine.ValidationError{Field: "correctionType", Message: fmt.Sprintf("unknown type %q", ci.Kind)}
	}
	if ci.Date.Before(u.HireDate) {
		return fmt.Errorf("correction on %s, hired %s: %w", ci.Date, u.HireDate, engine.ErrBeforeHireDate)
	}
	return nil
}

// Create stores a correction and rebuilds from its month forward.
func (cs *CorrectionService) Create(ctx context.Context, actor engine.Actor, in CorrectionInput) (*engine.OvertimeCorrection, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("create correction: %w", engine.ErrForbidden)
	}
	u, err := cs.store.UserByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := in.validate(u); err != nil {
		return nil, err
	}

	corr := &engine.OvertimeCorrection{
		ID:        engine.CorrectionID(uuid.NewString()),
		UserID:    in.UserID,
		Date:      in.Date,
		Hours:     in.Hours,
		Reason:    in.Reason,
		Kind:      in.Kind,
		CreatedBy: actor.ID,
		CreatedAt: time.Now(),
	}

	cascade, unlock := cs.rebuilder.LockCascade(ctx, in.UserID, in.Date.MonthOf())
	defer unlock()

	err = cs.store.WithTx(ctx, func(txs engine.Store) error {
		if err := txs.CreateCorrection(ctx, corr); err != nil {
			return err
		}
		for _, m := range cascade {
			if err := cs.rebuilder.RebuildIn(ctx, txs, in.UserID, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cs.audit.Record(ctx, actor.ID, engine.AuditCorrection, "correction", string(corr.ID), map[string]any{
		"user": string(in.UserID), "date": in.Date.String(), "hours": in.Hours.String(), "reason": in.Reason,
	})
	return corr, nil
}

// Delete removes a correction and rebuilds from its month forward.
func (cs *CorrectionService) Delete(ctx context.Context, actor engine.Actor, id engine.CorrectionID) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("delete correction: %w", engine.ErrForbidden)
	}
	corr, err := cs.store.CorrectionByID(ctx, id)
	if err != nil {
		return err
	}

	cascade, unlock := cs.rebuilder.LockCascade(ctx, corr.UserID, corr.Date.MonthOf())
	defer unlock()

	err = cs.store.WithTx(ctx, func(txs engine.Store) error {
		if err := txs.DeleteCorrection(ctx, id); err != nil {
			return err
		}
		for _, m := range cascade {
			if err := cs.rebuilder.RebuildIn(ctx, txs, corr.UserID, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	cs.audit.Record(ctx, actor.ID, engine.AuditCorrectionDeleted, "correction", string(id), map[string]any{
		"user": string(corr.UserID), "date": corr.Date.String(), "hours": corr.Hours.String(),
	})
	return nil
}

func (cs *CorrectionService) ForUser(ctx context.Context, actor engine.Actor, userID engine.UserID) ([]*engine.OvertimeCorrection, error) {
	if !actor.May(userID) {
		return nil, fmt.Errorf("corrections of %s: %w", userID, engine.ErrForbidden)
	}
	return cs.store.CorrectionsForUser(ctx, userID)
}
