package tracking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/tracking"
)

func validUserInput() tracking.CreateUserInput {
	return tracking.CreateUserInput{
		Username:            "clara.m",
		Email:               "clara@example.org",
		Password:            "correct horse battery",
		FirstName:           "Clara",
		LastName:            "M",
		WeeklyHours:         hrs(20),
		VacationDaysPerYear: 15,
		HireDate:            d("2026-02-01"),
	}
}

func TestUserCreate_HashesPasswordAndSeedsVacation(t *testing.T) {
	// GIVEN: A valid new employee
	// WHEN: An admin creates them
	// THEN: The password is stored hashed, the role defaults to employee
	//       and the hire year's vacation account exists

	env := newTrackingEnv(t)
	ctx := context.Background()

	u, err := env.users.Create(ctx, adminActor, validUserInput())
	require.NoError(t, err)
	assert.Equal(t, engine.RoleEmployee, u.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct horse battery")))
	assert.NotEqual(t, "correct horse battery", u.PasswordHash)

	vb, err := env.mem.VacationBalanceFor(ctx, u.ID, 2026)
	require.NoError(t, err)
	assert.Equal(t, 15, vb.Entitlement)
	assert.Equal(t, 15, vb.Remaining())
}

func TestUserCreate_Validation(t *testing.T) {
	env := newTrackingEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*tracking.CreateUserInput)
	}{
		{"username too short", func(in *tracking.CreateUserInput) { in.Username = "ab" }},
		{"username uppercase", func(in *tracking.CreateUserInput) { in.Username = "Clara" }},
		{"password too short", func(in *tracking.CreateUserInput) { in.Password = "hunter2" }},
		{"unknown role", func(in *tracking.CreateUserInput) { in.Role = "manager" }},
		{"weekly hours out of range", func(in *tracking.CreateUserInput) { in.WeeklyHours = hrs(100) }},
		{"negative weekly hours", func(in *tracking.CreateUserInput) { in.WeeklyHours = hrs(-1) }},
		{"vacation days out of range", func(in *tracking.CreateUserInput) { in.VacationDaysPerYear = 70 }},
		{"missing hire date", func(in *tracking.CreateUserInput) { in.HireDate = engine.Date{} }},
		{
			"end before hire", func(in *tracking.CreateUserInput) {
				e := d("2026-01-15")
				in.EndDate = &e
			},
		},
		{
			"invalid schedule day", func(in *tracking.CreateUserInput) {
				in.WorkSchedule = engine.WorkSchedule{time.Monday: hrs(25)}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validUserInput()
			tc.mutate(&in)
			_, err := env.users.Create(ctx, adminActor, in)
			assert.ErrorIs(t, err, engine.ErrValidation)
		})
	}

	t.Run("employees cannot create users", func(t *testing.T) {
		_, err := env.users.Create(ctx, benActor, validUserInput())
		assert.True(t, engine.IsForbidden(err))
	})
}

func TestUserUpdate_ContractChangeRebuildsTargets(t *testing.T) {
	// GIVEN: A 40h user with one fully worked 8h day
	// WHEN: An admin halves the weekly hours
	// THEN: The day's target drops to 4 and the rebuilt ledger shows +4

	env := newTrackingEnv(t)
	env.addBen(t, "2026-06-01", "2026-06-01")
	ctx := context.Background()

	_, err := env.entries.Create(ctx, benActor, tracking.EntryInput{
		UserID: "ben", Date: d("2026-06-01"), Hours: hrs(8),
	})
	require.NoError(t, err)
	require.True(t, env.balance(t).IsZero())

	weekly := hrs(20)
	_, err = env.users.Update(ctx, adminActor, "ben", tracking.UpdateUserInput{WeeklyHours: &weekly})
	require.NoError(t, err)
	assert.True(t, env.balance(t).Equal(hrs(4)), "balance = %s, want 4", env.balance(t))
}

func TestUserUpdate_EmployeesCannotTouchTheirContract(t *testing.T) {
	env := newTrackingEnv(t)
	env.addBen(t, "2026-06-01", "")
	ctx := context.Background()

	weekly := hrs(10)
	_, err := env.users.Update(ctx, benActor, "ben", tracking.UpdateUserInput{WeeklyHours: &weekly})
	assert.True(t, engine.IsForbidden(err))

	name := "Benjamin"
	u, err := env.users.Update(ctx, benActor, "ben", tracking.UpdateUserInput{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Benjamin", u.FirstName)
}

func TestUserUpdate_EntitlementChangeAdjustsCurrentYear(t *testing.T) {
	env := newTrackingEnv(t)
	env.addBen(t, "2026-01-01", "")
	ctx := context.Background()

	days := 20
	_, err := env.users.Update(ctx, adminActor, "ben", tracking.UpdateUserInput{VacationDaysPerYear: &days})
	require.NoError(t, err)

	vb, err := env.mem.VacationBalanceFor(ctx, "ben", 2026)
	require.NoError(t, err)
	assert.Equal(t, 20, vb.Entitlement)
}

func TestUserSoftDelete_KeepsTheRecordMarksInactive(t *testing.T) {
	env := newTrackingEnv(t)
	env.addBen(t, "2026-01-01", "")
	ctx := context.Background()

	err := env.users.SoftDelete(ctx, engine.Actor{ID: "ben", Role: engine.RoleAdmin}, "ben")
	assert.ErrorIs(t, err, engine.ErrValidation, "self-deletion is refused")

	require.NoError(t, env.users.SoftDelete(ctx, adminActor, "ben"))
	u, err := env.mem.UserByID(ctx, "ben")
	require.NoError(t, err)
	assert.Equal(t, engine.UserInactive, u.Status)
	assert.NotNil(t, u.DeletedAt)
}

func TestUserList_IsAdminOnly(t *testing.T) {
	env := newTrackingEnv(t)
	env.addBen(t, "2026-01-01", "")
	ctx := context.Background()

	_, err := env.users.List(ctx, benActor)
	assert.True(t, engine.IsForbidden(err))

	users, err := env.users.List(ctx, adminActor)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
