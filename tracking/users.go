package tracking

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/worktime-engine/engine"
)

// =============================================================================
// USER SERVICE
// =============================================================================
//
// Contract fields (weekly hours, schedule, hire and end date) shape every
// target-hour calculation, so changing them rebuilds the user's derived
// state from the earliest affected month forward.

type UserService struct {
	store     engine.TxStore
	rebuilder *engine.Rebuilder
	cfg       engine.Config
	clock     engine.Clock
	audit     engine.AuditLogger
}

func NewUserService(store engine.TxStore, rebuilder *engine.Rebuilder, cfg engine.Config, clock engine.Clock, audit engine.AuditLogger) *UserService {
	if audit == nil {
		audit = engine.NopAudit{}
	}
	return &UserService{store: store, rebuilder: rebuilder, cfg: cfg, clock: clock, audit: audit}
}

var usernameFormat = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)

type CreateUserInput struct {
	Username            string
	Email               string
	Password            string
	FirstName           string
	LastName            string
	Role                engine.Role
	WeeklyHours         engine.Hours
	WorkSchedule        engine.WorkSchedule
	VacationDaysPerYear int
	HireDate            engine.Date
	EndDate             *engine.Date
}

func (in *CreateUserInput) validate() error {
	if !usernameFormat.MatchString(in.Username) {
		return &engine.ValidationError{Field: "username", Message: "3-32 chars, lowercase letters, digits, . _ -"}
	}
	if len(in.Password) < 8 {
		return &engine.ValidationError{Field: "password", Message: "at least 8 characters"}
	}
	if in.Role != "" && !in.Role.Valid() {
		return &engine.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", in.Role)}
	}
	if err := validateContract(in.WeeklyHours, in.WorkSchedule, in.VacationDaysPerYear); err != nil {
		return err
	}
	if in.HireDate.IsZero() {
		return &engine.ValidationError{Field: "hireDate", Message: "required"}
	}
	if in.EndDate != nil && in.EndDate.Before(in.HireDate) {
		return &engine.ValidationError{Field: "endDate", Message: "before hire date"}
	}
	return nil
}

func validateContract(weekly engine.Hours, schedule engine.WorkSchedule, vacationDays int) error {
	if weekly.IsNegative() || weekly.GreaterThan(engine.HoursFromInt(80)) {
		return &engine.ValidationError{Field: "weeklyHours", Message: "must be between 0 and 80"}
	}
	if schedule != nil {
		if err := schedule.Validate(); err != nil {
			return err
		}
	}
	if vacationDays < 0 || vacationDays > 60 {
		return &engine.ValidationError{Field: "vacationDaysPerYear", Message: "must be between 0 and 60"}
	}
	return nil
}

// Create adds a user and initializes the hire year's vacation account.
func (us *UserService) Create(ctx context.Context, actor engine.Actor, in CreateUserInput) (*engine.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("create user: %w", engine.ErrForbidden)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &engine.User{
		ID:                  engine.UserID(uuid.NewString()),
		Username:            in.Username,
		Email:               in.Email,
		PasswordHash:        string(hash),
		FirstName:           in.FirstName,
		LastName:            in.LastName,
		Role:                in.Role,
		WeeklyHours:         in.WeeklyHours,
		WorkSchedule:        in.WorkSchedule,
		VacationDaysPerYear: in.VacationDaysPerYear,
		HireDate:            in.HireDate,
		EndDate:             in.EndDate,
		Status:              engine.UserActive,
	}
	if u.Role == "" {
		u.Role = engine.RoleEmployee
	}

	err = us.store.WithTx(ctx, func(txs engine.Store) error {
		if err := txs.CreateUser(ctx, u); err != nil {
			return err
		}
		_, err := engine.RecomputeVacation(ctx, txs, u, u.HireDate.Year(), us.cfg.Carryover)
		return err
	})
	if err != nil {
		return nil, err
	}

	us.audit.Record(ctx, actor.ID, engine.AuditUserCreated, "user", string(u.ID), map[string]any{
		"username": u.Username, "role": string(u.Role),
	})
	return u, nil
}

// UpdateUserInput applies partially: nil leaves a field untouched.
type UpdateUserInput struct {
	Email               *string
	Password            *string
	FirstName           *string
	LastName            *string
	Role                *engine.Role
	Status              *engine.UserStatus
	WeeklyHours         *engine.Hours
	WorkSchedule        *engine.WorkSchedule
	VacationDaysPerYear *int
	HireDate            *engine.Date
	EndDate             *engine.Date
	ClearEndDate        bool
}

func (in *UpdateUserInput) touchesContract() bool {
	return in.WeeklyHours != nil || in.WorkSchedule != nil || in.HireDate != nil ||
		in.EndDate != nil || in.ClearEndDate || in.VacationDaysPerYear != nil ||
		in.Role != nil || in.Status != nil
}

// Update edits a user. Employees may change their own profile fields;
// contract fields are admin-only and trigger the rebuild cascade.
func (us *UserService) Update(ctx context.Context, actor engine.Actor, id engine.UserID, in UpdateUserInput) (*engine.User, error) {
	if !actor.May(id) {
		return nil, fmt.Errorf("update user %s: %w", id, engine.ErrForbidden)
	}
	if !actor.IsAdmin() && in.touchesContract() {
		return nil, fmt.Errorf("update contract of %s: %w", id, engine.ErrForbidden)
	}

	u, err := us.store.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *u

	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.Password != nil {
		if len(*in.Password) < 8 {
			return nil, &engine.ValidationError{Field: "password", Message: "at least 8 characters"}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = string(hash)
	}
	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, &engine.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", *in.Role)}
		}
		u.Role = *in.Role
	}
	if in.Status != nil {
		u.Status = *in.Status
	}
	if in.WeeklyHours != nil {
		u.WeeklyHours = *in.WeeklyHours
	}
	if in.WorkSchedule != nil {
		u.WorkSchedule = *in.WorkSchedule
		if len(u.WorkSchedule) == 0 {
			u.WorkSchedule = nil
		}
	}
	if in.VacationDaysPerYear != nil {
		u.VacationDaysPerYear = *in.VacationDaysPerYear
	}
	if in.HireDate != nil {
		u.HireDate = *in.HireDate
	}
	if in.ClearEndDate {
		u.EndDate = nil
	} else if in.EndDate != nil {
		d := *in.EndDate
		u.EndDate = &d
	}

	if err := validateContract(u.WeeklyHours, u.WorkSchedule, u.VacationDaysPerYear); err != nil {
		return nil, err
	}
	if u.EndDate != nil && u.EndDate.Before(u.HireDate) {
		return nil, &engine.ValidationError{Field: "endDate", Message: "before hire date"}
	}

	from, needsRebuild := rebuildStart(&before, u)
	var cascade []engine.Month
	if needsRebuild {
		var unlock func()
		cascade, unlock = us.rebuilder.LockCascade(ctx, u.ID, from)
		defer unlock()
	}

	err = us.store.WithTx(ctx, func(txs engine.Store) error {
		if err := txs.UpdateUser(ctx, u); err != nil {
			return err
		}
		for _, m := range cascade {
			if err := us.rebuilder.RebuildIn(ctx, txs, u.ID, m); err != nil {
				return err
			}
		}
		if in.VacationDaysPerYear != nil {
			year := us.clock.Today().Year()
			vb, err := engine.RecomputeVacation(ctx, txs, u, year, us.cfg.Carryover)
			if err != nil {
				return err
			}
			vb.Entitlement = u.VacationDaysPerYear
			if err := txs.UpsertVacationBalance(ctx, vb); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	us.audit.Record(ctx, actor.ID, engine.AuditUserUpdated, "user", string(u.ID), map[string]any{
		"rebuilt": needsRebuild,
	})
	return u, nil
}

// rebuildStart finds the earliest month whose target hours a contract
// change can shift.
func rebuildStart(before, after *engine.User) (engine.Month, bool) {
	var (
		from  engine.Month
		found bool
	)
	mark := func(m engine.Month) {
		if !found || m.Before(from) {
			from, found = m, true
		}
	}

	if !before.WeeklyHours.Equal(after.WeeklyHours) || !schedulesEqual(before.WorkSchedule, after.WorkSchedule) {
		mark(after.HireDate.MonthOf())
	}
	if !before.HireDate.Equal(after.HireDate) {
		mark(engine.MinDate(before.HireDate, after.HireDate).MonthOf())
	}
	switch {
	case before.EndDate == nil && after.EndDate != nil:
		mark(after.EndDate.MonthOf())
	case before.EndDate != nil && after.EndDate == nil:
		mark(before.EndDate.MonthOf())
	case before.EndDate != nil && after.EndDate != nil && !before.EndDate.Equal(*after.EndDate):
		mark(engine.MinDate(*before.EndDate, *after.EndDate).MonthOf())
	}
	return from, found
}

func schedulesEqual(a, b engine.WorkSchedule) bool {
	if len(a) != len(b) {
		return false
	}
	for wd, h := range a {
		if !b[wd].Equal(h) {
			return false
		}
	}
	return true
}

// SoftDelete marks a user deleted, keeping their ledger history intact.
func (us *UserService) SoftDelete(ctx context.Context, actor engine.Actor, id engine.UserID) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("delete user %s: %w", id, engine.ErrForbidden)
	}
	if actor.ID == id {
		return &engine.ValidationError{Field: "id", Message: "cannot delete your own account"}
	}
	if err := us.store.SoftDeleteUser(ctx, id, time.Now()); err != nil {
		return err
	}
	us.audit.Record(ctx, actor.ID, engine.AuditUserDeleted, "user", string(id), nil)
	return nil
}

func (us *UserService) Get(ctx context.Context, actor engine.Actor, id engine.UserID) (*engine.User, error) {
	if !actor.May(id) {
		return nil, fmt.Errorf("user %s: %w", id, engine.ErrForbidden)
	}
	return us.store.UserByID(ctx, id)
}

// List returns all users. Admin only; employees see themselves via Get.
func (us *UserService) List(ctx context.Context, actor engine.Actor) ([]*engine.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("list users: %w", engine.ErrForbidden)
	}
	return us.store.ListUsers(ctx)
}
