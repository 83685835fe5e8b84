/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.Store and engine.TxStore on SQLite. The same schema and
  statements port to PostgreSQL with minor dialect changes.

KEY TABLES:
  users:                 Accounts with contract fields (weekly hours,
                         schedule, hire/end dates)
  time_entries:          Logged working time, one row per block
  absence_requests:      The absence state machine's facts
  overtime_corrections:  Manual balance adjustment facts
  holidays:              Public holidays keyed by date
  overtime_transactions: Derived ledger rows, rewritten per month
  overtime_balance:      Derived per-(user, month) projection
  vacation_balance:      Per-(user, year) vacation account
  audit_log:             Who did what, best-effort

DERIVED STATE:
  overtime_transactions and overtime_balance are owned by the rebuilder:
  rows are deleted and re-inserted one whole month at a time inside the
  surrounding transaction. The only column the rebuilder leaves alone is
  overtime_balance.carryover_from_previous_year, written by the year-end
  rollover.

CONCURRENCY:
  The database is opened in WAL mode with a busy timeout, so readers never
  block and a second writer waits instead of failing. Store methods may be
  called concurrently; multi-table mutations go through WithTx.

USAGE:
  store, err := sqlite.New("./data/worktime.db")
  if err != nil {
      log.Fatal().Err(err).Msg("open store")
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
  - engine/rebuild.go: The writer of the derived tables
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/warp/worktime-engine/engine"
)

// Store implements engine.TxStore on a SQLite database.
type Store struct {
	session
	db *sql.DB
}

var _ engine.TxStore = (*Store)(nil)

// New opens (creating if needed) the database at the given path and
// migrates the schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	if dbPath == ":memory:" {
		// A plain :memory: database exists per connection, so every
		// pooled connection would see its own empty schema. A shared
		// cache gives all connections the same database.
		dsn = "file::memory:?cache=shared&_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, session: session{q: db}}
	if err := store.verifyPragmas(dbPath == ":memory:"); err != nil {
		db.Close()
		return nil, err
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// verifyPragmas confirms the DSN pragmas actually took effect. Running
// without foreign keys or WAL silently corrupts the ledger guarantees,
// so the store refuses to serve instead. In-memory databases cannot use
// WAL and are exempt from the journal check.
func (s *Store) verifyPragmas(inMemory bool) error {
	var fk int
	if err := s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		return fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	if fk != 1 {
		return fmt.Errorf("foreign key enforcement is off, refusing to serve")
	}
	if inMemory {
		return nil
	}
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to read journal_mode pragma: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return fmt.Errorf("journal mode is %q, want wal, refusing to serve", mode)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset wipes every table. Only the demo scenario loaders call this;
// nothing in the engine ever does.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"overtime_transactions",
		"overtime_balance",
		"vacation_balance",
		"time_entries",
		"absence_requests",
		"overtime_corrections",
		"audit_log",
		"holidays",
		"users",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to reset %s: %w", t, err)
		}
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT UNIQUE,
		password_hash TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL CHECK (role IN ('admin', 'employee')),
		weekly_hours TEXT NOT NULL,
		work_schedule TEXT,
		vacation_days_per_year INTEGER NOT NULL DEFAULT 0,
		hire_date TEXT NOT NULL,
		end_date TEXT,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive')),
		deleted_at TEXT
	);

	-- Logged working time
	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		break_minutes INTEGER NOT NULL DEFAULT 0,
		start_time TEXT,
		end_time TEXT,
		location TEXT NOT NULL DEFAULT 'office'
			CHECK (location IN ('office', 'homeoffice', 'field')),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_user_date
		ON time_entries(user_id, date);

	-- Absence requests
	CREATE TABLE IF NOT EXISTS absence_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		type TEXT NOT NULL
			CHECK (type IN ('vacation', 'sick', 'overtime_comp', 'special', 'unpaid')),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'approved', 'rejected')),
		reason TEXT,
		approved_by TEXT,
		approved_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_absences_user_start
		ON absence_requests(user_id, start_date);
	CREATE INDEX IF NOT EXISTS idx_absences_status
		ON absence_requests(status);

	-- Manual balance adjustments (source facts, not ledger rows)
	CREATE TABLE IF NOT EXISTS overtime_corrections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		reason TEXT NOT NULL,
		correction_type TEXT NOT NULL
			CHECK (correction_type IN ('system_error', 'absence_credit', 'migration', 'manual')),
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_corrections_user_date
		ON overtime_corrections(user_id, date);

	-- Public holidays
	CREATE TABLE IF NOT EXISTS holidays (
		date TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		federal INTEGER NOT NULL DEFAULT 1
	);

	-- Ledger (derived, rewritten one month at a time by the rebuilder)
	CREATE TABLE IF NOT EXISTS overtime_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(id),
		date TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN (
			'earned', 'vacation_credit', 'sick_credit', 'overtime_comp_credit',
			'special_credit', 'unpaid_adjustment', 'compensation', 'correction',
			'carry_over', 'payout', 'year_end_balance', 'initial_balance')),
		hours TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		reference_type TEXT,
		reference_id TEXT,
		created_at TEXT NOT NULL
	);

	-- (user, date, id) is the replay order; id alone the total order tiebreak
	CREATE INDEX IF NOT EXISTS idx_transactions_user_date
		ON overtime_transactions(user_id, date, id);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON overtime_transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- Monthly projection (derived)
	CREATE TABLE IF NOT EXISTS overtime_balance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(id),
		month TEXT NOT NULL,
		target_hours TEXT NOT NULL DEFAULT '0',
		actual_hours TEXT NOT NULL DEFAULT '0',
		carryover_from_previous_year TEXT NOT NULL DEFAULT '0',
		UNIQUE(user_id, month)
	);

	-- Vacation accounts
	CREATE TABLE IF NOT EXISTS vacation_balance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES users(id),
		year INTEGER NOT NULL,
		entitlement INTEGER NOT NULL DEFAULT 0,
		carryover INTEGER NOT NULL DEFAULT 0,
		taken INTEGER NOT NULL DEFAULT 0,
		pending INTEGER NOT NULL DEFAULT 0,
		UNIQUE(user_id, year)
	);

	-- Audit trail
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_id TEXT,
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		diff_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_log(entity, entity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(session{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// querier is satisfied by both *sql.DB and *sql.Tx, so every statement is
// written once and runs inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// session carries the statements over one querier. The root Store embeds a
// session over the pool; WithTx hands fn a session over the open sql.Tx.
type session struct {
	q querier
}

var _ engine.Store = session{}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, username, email, password_hash, first_name, last_name, role,
	weekly_hours, work_schedule, vacation_days_per_year, hire_date, end_date, status, deleted_at`

func (s session) CreateUser(ctx context.Context, u *engine.User) error {
	schedule, err := scheduleJSON(u.WorkSchedule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.q.ExecContext(ctx, query,
		u.ID, u.Username, nullString(u.Email), u.PasswordHash,
		u.FirstName, u.LastName, u.Role,
		u.WeeklyHours.String(), schedule, u.VacationDaysPerYear,
		u.HireDate.String(), nullDate(u.EndDate), u.Status, nullTime(u.DeletedAt),
	)
	return mapUserConflict(err, u)
}

func (s session) UserByID(ctx context.Context, id engine.UserID) (*engine.User, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Entity: "user", ID: string(id)}
	}
	return u, err
}

func (s session) UserByUsername(ctx context.Context, username string) (*engine.User, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Entity: "user", ID: username}
	}
	return u, err
}

func (s session) UpdateUser(ctx context.Context, u *engine.User) error {
	schedule, err := scheduleJSON(u.WorkSchedule)
	if err != nil {
		return err
	}

	query := `
		UPDATE users SET
			username = ?, email = ?, password_hash = ?, first_name = ?, last_name = ?,
			role = ?, weekly_hours = ?, work_schedule = ?, vacation_days_per_year = ?,
			hire_date = ?, end_date = ?, status = ?, deleted_at = ?
		WHERE id = ?
	`
	res, err := s.q.ExecContext(ctx, query,
		u.Username, nullString(u.Email), u.PasswordHash, u.FirstName, u.LastName,
		u.Role, u.WeeklyHours.String(), schedule, u.VacationDaysPerYear,
		u.HireDate.String(), nullDate(u.EndDate), u.Status, nullTime(u.DeletedAt),
		u.ID,
	)
	if err != nil {
		return mapUserConflict(err, u)
	}
	return requireHit(res, &engine.NotFoundError{Entity: "user", ID: string(u.ID)})
}

func (s session) ListUsers(ctx context.Context) ([]*engine.User, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*engine.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s session) SoftDeleteUser(ctx context.Context, id engine.UserID, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE users SET deleted_at = ?, status = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), engine.UserInactive, id)
	if err != nil {
		return err
	}
	return requireHit(res, &engine.NotFoundError{Entity: "user", ID: string(id)})
}

func scanUser(row scanner) (*engine.User, error) {
	var (
		u         engine.User
		email     sql.NullString
		schedule  sql.NullString
		weekly    string
		hireDate  string
		endDate   sql.NullString
		deletedAt sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Username, &email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &weekly, &schedule, &u.VacationDaysPerYear,
		&hireDate, &endDate, &u.Status, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Email = email.String
	if u.WeeklyHours, err = engine.ParseHours(weekly); err != nil {
		return nil, fmt.Errorf("user %s: weekly_hours: %w", u.ID, err)
	}
	if schedule.Valid && schedule.String != "" {
		if err := json.Unmarshal([]byte(schedule.String), &u.WorkSchedule); err != nil {
			return nil, fmt.Errorf("user %s: work_schedule: %w", u.ID, err)
		}
	}
	if u.HireDate, err = engine.ParseDate(hireDate); err != nil {
		return nil, fmt.Errorf("user %s: hire_date: %w", u.ID, err)
	}
	if u.EndDate, err = parseNullDate(endDate); err != nil {
		return nil, fmt.Errorf("user %s: end_date: %w", u.ID, err)
	}
	if u.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, fmt.Errorf("user %s: deleted_at: %w", u.ID, err)
	}
	return &u, nil
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

const entryColumns = `id, user_id, date, hours, break_minutes, start_time, end_time, location, created_at`

func (s session) CreateTimeEntry(ctx context.Context, e *engine.TimeEntry) error {
	query := `
		INSERT INTO time_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		e.ID, e.UserID, e.Date.String(), e.Hours.String(), e.BreakMinutes,
		nullString(e.StartTime), nullString(e.EndTime), e.Location,
		createdAt(e.CreatedAt),
	)
	return err
}

func (s session) TimeEntryByID(ctx context.Context, id engine.EntryID) (*engine.TimeEntry, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Entity: "time entry", ID: string(id)}
	}
	return e, err
}

func (s session) UpdateTimeEntry(ctx context.Context, e *engine.TimeEntry) error {
	query := `
		UPDATE time_entries SET
			date = ?, hours = ?, break_minutes = ?, start_time = ?, end_time = ?, location = ?
		WHERE id = ?
	`
	res, err := s.q.ExecContext(ctx, query,
		e.Date.String(), e.Hours.String(), e.BreakMinutes,
		nullString(e.StartTime), nullString(e.EndTime), e.Location, e.ID,
	)
	if err != nil {
		return err
	}
	return requireHit(res, &engine.NotFoundError{Entity: "time entry", ID: string(e.ID)})
}

func (s session) DeleteTimeEntry(ctx context.Context, id engine.EntryID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireHit(res, &engine.NotFoundError{Entity: "time entry", ID: string(id)})
}

func (s session) EntriesInRange(ctx context.Context, userID engine.UserID, span engine.Span) ([]*engine.TimeEntry, error) {
	query := `
		SELECT ` + entryColumns + ` FROM time_entries
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date, id
	`
	rows, err := s.q.QueryContext(ctx, query, userID, span.Start.String(), span.End.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*engine.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s session) DeleteEntriesInRange(ctx context.Context, userID engine.UserID, span engine.Span) ([]*engine.TimeEntry, error) {
	entries, err := s.EntriesInRange(ctx, userID, span)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	_, err = s.q.ExecContext(ctx,
		`DELETE FROM time_entries WHERE user_id = ? AND date >= ? AND date <= ?`,
		userID, span.Start.String(), span.End.String())
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func scanEntry(row scanner) (*engine.TimeEntry, error) {
	var (
		e          engine.TimeEntry
		date       string
		hours      string
		start, end sql.NullString
		created    string
	)
	err := row.Scan(&e.ID, &e.UserID, &date, &hours, &e.BreakMinutes, &start, &end, &e.Location, &created)
	if err != nil {
		return nil, err
	}

	if e.Date, err = engine.ParseDate(date); err != nil {
		return nil, fmt.Errorf("entry %s: date: %w", e.ID, err)
	}
	if e.Hours, err = engine.ParseHours(hours); err != nil {
		return nil, fmt.Errorf("entry %s: hours: %w", e.ID, err)
	}
	e.StartTime = start.String
	e.EndTime = end.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &e, nil
}

// =============================================================================
// ABSENCES
// =============================================================================

const absenceColumns = `id, user_id, type, start_date, end_date, days, status, reason,
	approved_by, approved_at, created_at`

func (s session) CreateAbsence(ctx context.Context, a *engine.AbsenceRequest) error {
	query := `
		INSERT INTO absence_requests (` + absenceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		a.ID, a.UserID, a.Kind, a.StartDate.String(), a.EndDate.String(), a.Days,
		a.Status, nullString(a.Reason), nullUserID(a.ApprovedBy), nullTime(a.ApprovedAt),
		createdAt(a.CreatedAt),
	)
	return err
}

func (s session) AbsenceByID(ctx context.Context, id engine.AbsenceID) (*engine.AbsenceRequest, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+absenceColumns+` FROM absence_requests WHERE id = ?`, id)
	a, err := scanAbsence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Entity: "absence", ID: string(id)}
	}
	return a, err
}

func (s session) UpdateAbsence(ctx context.Context, a *engine.AbsenceRequest) error {
	query := `
		UPDATE absence_requests SET
			type = ?, start_date = ?, end_date = ?, days = ?, status = ?,
			reason = ?, approved_by = ?, approved_at = ?
		WHERE id = ?
	`
	res, err := s.q.ExecContext(ctx, query,
		a.Kind, a.StartDate.String(), a.EndDate.String(), a.Days, a.Status,
		nullString(a.Reason), nullUserID(a.ApprovedBy), nullTime(a.ApprovedAt),
		a.ID,
	)
	if err != nil {
		return err
	}
	return requireHit(res, &engine.NotFoundError{Entity: "absence", ID: string(a.ID)})
}

func (s session) DeleteAbsence(ctx context.Context, id engine.AbsenceID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM absence_requests WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireHit(res, &engine.NotFoundError{Entity: "absence", ID: string(id)})
}

func (s session) AbsencesForUser(ctx context.Context, userID engine.UserID) ([]*engine.AbsenceRequest, error) {
	query := `
		SELECT ` + absenceColumns + ` FROM absence_requests
		WHERE user_id = ?
		ORDER BY start_date, id
	`
	return s.queryAbsences(ctx, query, userID)
}

func (s session) AbsencesInRange(ctx context.Context, userID engine.UserID, span engine.Span, statuses []engine.AbsenceStatus) ([]*engine.AbsenceRequest, error) {
	query := `
		SELECT ` + absenceColumns + ` FROM absence_requests
		WHERE user_id = ? AND start_date <= ? AND end_date >= ?
	`
	args := []any{userID, span.End.String(), span.Start.String()}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY start_date, id`
	return s.queryAbsences(ctx, query, args...)
}

func (s session) ListAbsences(ctx context.Context, status *engine.AbsenceStatus) ([]*engine.AbsenceRequest, error) {
	query := `SELECT ` + absenceColumns + ` FROM absence_requests`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC, id`
	return s.queryAbsences(ctx, query, args...)
}

func (s session) queryAbsences(ctx context.Context, query string, args ...any) ([]*engine.AbsenceRequest, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var absences []*engine.AbsenceRequest
	for rows.Next() {
		a, err := scanAbsence(rows)
		if err != nil {
			return nil, err
		}
		absences = append(absences, a)
	}
	return absences, rows.Err()
}

func scanAbsence(row scanner) (*engine.AbsenceRequest, error) {
	var (
		a          engine.AbsenceRequest
		start, end string
		reason     sql.NullString
		approvedBy sql.NullString
		approvedAt sql.NullString
		created    string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Kind, &start, &end, &a.Days, &a.Status,
		&reason, &approvedBy, &approvedAt, &created)
	if err != nil {
		return nil, err
	}

	if a.StartDate, err = engine.ParseDate(start); err != nil {
		return nil, fmt.Errorf("absence %s: start_date: %w", a.ID, err)
	}
	if a.EndDate, err = engine.ParseDate(end); err != nil {
		return nil, fmt.Errorf("absence %s: end_date: %w", a.ID, err)
	}
	a.Reason = reason.String
	if approvedBy.Valid {
		id := engine.UserID(approvedBy.String)
		a.ApprovedBy = &id
	}
	if a.ApprovedAt, err = parseNullTime(approvedAt); err != nil {
		return nil, fmt.Errorf("absence %s: approved_at: %w", a.ID, err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &a, nil
}

// =============================================================================
// CORRECTIONS
// =============================================================================

const correctionColumns = `id, user_id, date, hours, reason, correction_type, created_by, created_at`

func (s session) CreateCorrection(ctx context.Context, c *engine.OvertimeCorrection) error {
	query := `
		INSERT INTO overtime_corrections (` + correctionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.q.ExecContext(ctx, query,
		c.ID, c.UserID, c.Date.String(), c.Hours.String(), c.Reason, c.Kind,
		nullString(string(c.CreatedBy)), createdAt(c.CreatedAt),
	)
	return err
}

func (s session) CorrectionByID(ctx context.Context, id engine.CorrectionID) (*engine.OvertimeCorrection, error) {
	query := `
		SELECT ` + correctionColumns + ` FROM overtime_corrections
		WHERE id = ?
	`
	corrections, err := s.queryCorrections(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(corrections) == 0 {
		return nil, &engine.NotFoundError{Entity: "correction", ID: string(id)}
	}
	return corrections[0], nil
}

func (s session) DeleteCorrection(ctx context.Context, id engine.CorrectionID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM overtime_corrections WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireHit(res, &engine.NotFoundError{Entity: "correction", ID: string(id)})
}

func (s session) CorrectionsForUser(ctx context.Context, userID engine.UserID) ([]*engine.OvertimeCorrection, error) {
	query := `
		SELECT ` + correctionColumns + ` FROM overtime_corrections
		WHERE user_id = ?
		ORDER BY date, id
	`
	return s.queryCorrections(ctx, query, userID)
}

func (s session) CorrectionsInRange(ctx context.Context, userID engine.UserID, span engine.Span) ([]*engine.OvertimeCorrection, error) {
	query := `
		SELECT ` + correctionColumns + ` FROM overtime_corrections
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date, id
	`
	return s.queryCorrections(ctx, query, userID, span.Start.String(), span.End.String())
}

func (s session) queryCorrections(ctx context.Context, query string, args ...any) ([]*engine.OvertimeCorrection, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var corrections []*engine.OvertimeCorrection
	for rows.Next() {
		var (
			c         engine.OvertimeCorrection
			date      string
			hours     string
			createdBy sql.NullString
			created   string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &date, &hours, &c.Reason, &c.Kind, &createdBy, &created); err != nil {
			return nil, err
		}
		if c.Date, err = engine.ParseDate(date); err != nil {
			return nil, fmt.Errorf("correction %s: date: %w", c.ID, err)
		}
		if c.Hours, err = engine.ParseHours(hours); err != nil {
			return nil, fmt.Errorf("correction %s: hours: %w", c.ID, err)
		}
		c.CreatedBy = engine.UserID(createdBy.String)
		c.CreatedAt, _ = time.Parse(time.RFC3339, created)
		corrections = append(corrections, &c)
	}
	return corrections, rows.Err()
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s session) UpsertHolidays(ctx context.Context, hs []engine.Holiday) error {
	query := `
		INSERT INTO holidays (date, name, federal)
		VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			name = excluded.name,
			federal = excluded.federal
	`
	for _, h := range hs {
		if _, err := s.q.ExecContext(ctx, query, h.Date.String(), h.Name, h.Federal); err != nil {
			return err
		}
	}
	return nil
}

func (s session) HolidaysInYear(ctx context.Context, year int) ([]engine.Holiday, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT date, name, federal FROM holidays WHERE date >= ? AND date <= ? ORDER BY date`,
		fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-12-31", year))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []engine.Holiday
	for rows.Next() {
		var (
			h    engine.Holiday
			date string
		)
		if err := rows.Scan(&date, &h.Name, &h.Federal); err != nil {
			return nil, err
		}
		if h.Date, err = engine.ParseDate(date); err != nil {
			return nil, fmt.Errorf("holiday: date: %w", err)
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// LEDGER
// =============================================================================

const txColumns = `id, user_id, date, type, hours, balance_before, balance_after,
	description, reference_type, reference_id, created_at`

func (s session) AppendTransactions(ctx context.Context, txs []engine.Transaction) error {
	query := `
		INSERT INTO overtime_transactions
			(user_id, date, type, hours, balance_before, balance_after,
			 description, reference_type, reference_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range txs {
		tx := &txs[i]
		res, err := s.q.ExecContext(ctx, query,
			tx.UserID, tx.Date.String(), tx.Type, tx.Hours.String(),
			tx.BalanceBefore.String(), tx.BalanceAfter.String(),
			tx.Description, nullString(tx.ReferenceType), nullString(tx.ReferenceID),
			createdAt(tx.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}
		if tx.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (s session) DeleteTransactionsForMonth(ctx context.Context, userID engine.UserID, month engine.Month) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM overtime_transactions WHERE user_id = ? AND date >= ? AND date <= ?`,
		userID, month.First().String(), month.Last().String())
	return err
}

func (s session) TransactionsForMonth(ctx context.Context, userID engine.UserID, month engine.Month) ([]engine.Transaction, error) {
	return s.TransactionsInRange(ctx, userID, engine.NewSpan(month.First(), month.Last()))
}

func (s session) TransactionsInRange(ctx context.Context, userID engine.UserID, span engine.Span) ([]engine.Transaction, error) {
	query := `
		SELECT ` + txColumns + ` FROM overtime_transactions
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date, id
	`
	rows, err := s.q.QueryContext(ctx, query, userID, span.Start.String(), span.End.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []engine.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (s session) LatestTransaction(ctx context.Context, userID engine.UserID) (*engine.Transaction, error) {
	query := `
		SELECT ` + txColumns + ` FROM overtime_transactions
		WHERE user_id = ?
		ORDER BY date DESC, id DESC LIMIT 1
	`
	tx, err := scanTransaction(s.q.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return tx, err
}

func (s session) LatestTransactionOnOrBefore(ctx context.Context, userID engine.UserID, d engine.Date) (*engine.Transaction, error) {
	query := `
		SELECT ` + txColumns + ` FROM overtime_transactions
		WHERE user_id = ? AND date <= ?
		ORDER BY date DESC, id DESC LIMIT 1
	`
	tx, err := scanTransaction(s.q.QueryRowContext(ctx, query, userID, d.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return tx, err
}

func scanTransaction(row scanner) (*engine.Transaction, error) {
	var (
		tx            engine.Transaction
		date          string
		hours         string
		before, after string
		refType       sql.NullString
		refID         sql.NullString
		created       string
	)
	err := row.Scan(&tx.ID, &tx.UserID, &date, &tx.Type, &hours, &before, &after,
		&tx.Description, &refType, &refID, &created)
	if err != nil {
		return nil, err
	}

	if tx.Date, err = engine.ParseDate(date); err != nil {
		return nil, fmt.Errorf("transaction %d: date: %w", tx.ID, err)
	}
	if tx.Hours, err = engine.ParseHours(hours); err != nil {
		return nil, fmt.Errorf("transaction %d: hours: %w", tx.ID, err)
	}
	if tx.BalanceBefore, err = engine.ParseHours(before); err != nil {
		return nil, fmt.Errorf("transaction %d: balance_before: %w", tx.ID, err)
	}
	if tx.BalanceAfter, err = engine.ParseHours(after); err != nil {
		return nil, fmt.Errorf("transaction %d: balance_after: %w", tx.ID, err)
	}
	tx.ReferenceType = refType.String
	tx.ReferenceID = refID.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &tx, nil
}

// =============================================================================
// MONTHLY PROJECTION
// =============================================================================

func (s session) UpsertOvertimeMonth(ctx context.Context, om *engine.OvertimeMonth) error {
	// The rebuilder never owns the carry-over column; keep whatever the
	// rollover wrote.
	query := `
		INSERT INTO overtime_balance (user_id, month, target_hours, actual_hours, carryover_from_previous_year)
		VALUES (?, ?, ?, ?, '0')
		ON CONFLICT(user_id, month) DO UPDATE SET
			target_hours = excluded.target_hours,
			actual_hours = excluded.actual_hours
	`
	_, err := s.q.ExecContext(ctx, query,
		om.UserID, om.Month.String(), om.TargetHours.String(), om.ActualHours.String())
	return err
}

func (s session) OvertimeMonthFor(ctx context.Context, userID engine.UserID, month engine.Month) (*engine.OvertimeMonth, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT user_id, month, target_hours, actual_hours, carryover_from_previous_year
		FROM overtime_balance WHERE user_id = ? AND month = ?
	`, userID, month.String())
	om, err := scanOvertimeMonth(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Entity: "overtime month", ID: month.String()}
	}
	return om, err
}

func (s session) OvertimeMonthsInYear(ctx context.Context, userID engine.UserID, year int) ([]engine.OvertimeMonth, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT user_id, month, target_hours, actual_hours, carryover_from_previous_year
		FROM overtime_balance
		WHERE user_id = ? AND month >= ? AND month <= ?
		ORDER BY month
	`, userID, fmt.Sprintf("%04d-01", year), fmt.Sprintf("%04d-12", year))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var months []engine.OvertimeMonth
	for rows.Next() {
		om, err := scanOvertimeMonth(rows)
		if err != nil {
			return nil, err
		}
		months = append(months, *om)
	}
	return months, rows.Err()
}

func (s session) SetCarryover(ctx context.Context, userID engine.UserID, month engine.Month, carryover engine.Hours) error {
	query := `
		INSERT INTO overtime_balance (user_id, month, carryover_from_previous_year)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, month) DO UPDATE SET
			carryover_from_previous_year = excluded.carryover_from_previous_year
	`
	_, err := s.q.ExecContext(ctx, query, userID, month.String(), carryover.String())
	return err
}

func scanOvertimeMonth(row scanner) (*engine.OvertimeMonth, error) {
	var (
		om                    engine.OvertimeMonth
		month                 string
		target, actual, carry string
	)
	err := row.Scan(&om.UserID, &month, &target, &actual, &carry)
	if err != nil {
		return nil, err
	}

	if om.Month, err = engine.ParseMonth(month); err != nil {
		return nil, fmt.Errorf("overtime month: %w", err)
	}
	if om.TargetHours, err = engine.ParseHours(target); err != nil {
		return nil, fmt.Errorf("overtime month %s: target_hours: %w", month, err)
	}
	if om.ActualHours, err = engine.ParseHours(actual); err != nil {
		return nil, fmt.Errorf("overtime month %s: actual_hours: %w", month, err)
	}
	if om.CarryoverFromPreviousYear, err = engine.ParseHours(carry); err != nil {
		return nil, fmt.Errorf("overtime month %s: carryover: %w", month, err)
	}
	return &om, nil
}

// =============================================================================
// VACATION BALANCE
// =============================================================================

func (s session) VacationBalanceFor(ctx context.Context, userID engine.UserID, year int) (*engine.VacationBalance, error) {
	var vb engine.VacationBalance
	err := s.q.QueryRowContext(ctx, `
		SELECT user_id, year, entitlement, carryover, taken, pending
		FROM vacation_balance WHERE user_id = ? AND year = ?
	`, userID, year).Scan(&vb.UserID, &vb.Year, &vb.Entitlement, &vb.Carryover, &vb.Taken, &vb.Pending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Entity: "vacation balance", ID: string(userID)}
	}
	if err != nil {
		return nil, err
	}
	return &vb, nil
}

func (s session) UpsertVacationBalance(ctx context.Context, vb *engine.VacationBalance) error {
	query := `
		INSERT INTO vacation_balance (user_id, year, entitlement, carryover, taken, pending)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, year) DO UPDATE SET
			entitlement = excluded.entitlement,
			carryover = excluded.carryover,
			taken = excluded.taken,
			pending = excluded.pending
	`
	_, err := s.q.ExecContext(ctx, query,
		vb.UserID, vb.Year, vb.Entitlement, vb.Carryover, vb.Taken, vb.Pending)
	return err
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AuditLog persists audit records in the same database. Failures are
// logged, never propagated: audit must not fail the audited operation.
type AuditLog struct {
	q querier
}

var _ engine.AuditLogger = (*AuditLog)(nil)

// AuditLog returns the audit sink writing to this store's database.
func (s *Store) AuditLog() *AuditLog {
	return &AuditLog{q: s.db}
}

func (a *AuditLog) Record(ctx context.Context, actorID engine.UserID, action engine.AuditAction, entity string, entityID string, diff map[string]any) {
	var diffJSON sql.NullString
	if len(diff) > 0 {
		b, err := json.Marshal(diff)
		if err == nil {
			diffJSON = sql.NullString{String: string(b), Valid: true}
		}
	}
	_, err := a.q.ExecContext(ctx, `
		INSERT INTO audit_log (actor_id, action, entity, entity_id, diff_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, nullString(string(actorID)), action, entity, entityID, diffJSON,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		log.Warn().Err(err).Str("action", string(action)).Msg("audit record dropped")
	}
}

// AuditEntry is one persisted audit record.
type AuditEntry struct {
	ID        int64
	ActorID   engine.UserID
	Action    engine.AuditAction
	Entity    string
	EntityID  string
	Diff      map[string]any
	CreatedAt time.Time
}

// Recent returns the newest audit records, newest first.
func (a *AuditLog) Recent(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.q.QueryContext(ctx, `
		SELECT id, actor_id, action, entity, entity_id, diff_json, created_at
		FROM audit_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			e        AuditEntry
			actorID  sql.NullString
			diffJSON sql.NullString
			created  string
		)
		if err := rows.Scan(&e.ID, &actorID, &e.Action, &e.Entity, &e.EntityID, &diffJSON, &created); err != nil {
			return nil, err
		}
		e.ActorID = engine.UserID(actorID.String)
		if diffJSON.Valid && diffJSON.String != "" {
			json.Unmarshal([]byte(diffJSON.String), &e.Diff)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *engine.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullUserID(id *engine.UserID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func parseNullDate(s sql.NullString) (*engine.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := engine.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func createdAt(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func scheduleJSON(ws engine.WorkSchedule) (sql.NullString, error) {
	if ws == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(ws)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func requireHit(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func mapUserConflict(err error, u *engine.User) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.username"):
		return fmt.Errorf("username %q already taken: %w", u.Username, engine.ErrConflict)
	case strings.Contains(msg, "users.email"):
		return fmt.Errorf("email %q already in use: %w", u.Email, engine.ErrConflict)
	}
	return err
}
