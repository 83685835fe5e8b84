// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/worktime-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	users        map[engine.UserID]engine.User
	entries      map[engine.EntryID]engine.TimeEntry
	absences     map[engine.AbsenceID]engine.AbsenceRequest
	corrections  map[engine.CorrectionID]engine.OvertimeCorrection
	holidays     map[engine.Date]engine.Holiday
	transactions map[engine.UserID][]engine.Transaction
	months       map[monthKey]engine.OvertimeMonth
	vacations    map[vacationKey]engine.VacationBalance
	nextTxID     int64
}

var (
	_ engine.Store   = (*Memory)(nil)
	_ engine.TxStore = (*TxMemory)(nil)
)

type monthKey struct {
	UserID engine.UserID
	Month  engine.Month
}

type vacationKey struct {
	UserID engine.UserID
	Year   int
}

func NewMemory() *Memory {
	return &Memory{
		users:        make(map[engine.UserID]engine.User),
		entries:      make(map[engine.EntryID]engine.TimeEntry),
		absences:     make(map[engine.AbsenceID]engine.AbsenceRequest),
		corrections:  make(map[engine.CorrectionID]engine.OvertimeCorrection),
		holidays:     make(map[engine.Date]engine.Holiday),
		transactions: make(map[engine.UserID][]engine.Transaction),
		months:       make(map[monthKey]engine.OvertimeMonth),
		vacations:    make(map[vacationKey]engine.VacationBalance),
		nextTxID:     1,
	}
}

// Reset drops all data, matching the sqlite store's Reset.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[engine.UserID]engine.User)
	m.entries = make(map[engine.EntryID]engine.TimeEntry)
	m.absences = make(map[engine.AbsenceID]engine.AbsenceRequest)
	m.corrections = make(map[engine.CorrectionID]engine.OvertimeCorrection)
	m.holidays = make(map[engine.Date]engine.Holiday)
	m.transactions = make(map[engine.UserID][]engine.Transaction)
	m.months = make(map[monthKey]engine.OvertimeMonth)
	m.vacations = make(map[vacationKey]engine.VacationBalance)
	m.nextTxID = 1
	return nil
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) CreateUser(_ context.Context, u *engine.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) UserByID(_ context.Context, id engine.UserID) (*engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, &engine.NotFoundError{Entity: "user", ID: string(id)}
	}
	return &u, nil
}

func (m *Memory) UserByUsername(_ context.Context, username string) (*engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username && u.DeletedAt == nil {
			u := u
			return &u, nil
		}
	}
	return nil, &engine.NotFoundError{Entity: "user", ID: username}
}

func (m *Memory) UpdateUser(_ context.Context, u *engine.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return &engine.NotFoundError{Entity: "user", ID: string(u.ID)}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) ListUsers(_ context.Context) ([]*engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.User
	for _, u := range m.users {
		if u.DeletedAt != nil {
			continue
		}
		u := u
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *Memory) SoftDeleteUser(_ context.Context, id engine.UserID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return &engine.NotFoundError{Entity: "user", ID: string(id)}
	}
	u.DeletedAt = &at
	u.Status = engine.UserInactive
	m.users[id] = u
	return nil
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

func (m *Memory) CreateTimeEntry(_ context.Context, e *engine.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = *e
	return nil
}

func (m *Memory) TimeEntryByID(_ context.Context, id engine.EntryID) (*engine.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, &engine.NotFoundError{Entity: "time entry", ID: string(id)}
	}
	return &e, nil
}

func (m *Memory) UpdateTimeEntry(_ context.Context, e *engine.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		return &engine.NotFoundError{Entity: "time entry", ID: string(e.ID)}
	}
	m.entries[e.ID] = *e
	return nil
}

func (m *Memory) DeleteTimeEntry(_ context.Context, id engine.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return &engine.NotFoundError{Entity: "time entry", ID: string(id)}
	}
	delete(m.entries, id)
	return nil
}

func (m *Memory) EntriesInRange(_ context.Context, userID engine.UserID, span engine.Span) ([]*engine.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesInRangeLocked(userID, span), nil
}

func (m *Memory) entriesInRangeLocked(userID engine.UserID, span engine.Span) []*engine.TimeEntry {
	var out []*engine.TimeEntry
	for _, e := range m.entries {
		if e.UserID == userID && span.Contains(e.Date) {
			e := e
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) DeleteEntriesInRange(_ context.Context, userID engine.UserID, span engine.Span) ([]*engine.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := m.entriesInRangeLocked(userID, span)
	for _, e := range deleted {
		delete(m.entries, e.ID)
	}
	return deleted, nil
}

// =============================================================================
// ABSENCES
// =============================================================================

func (m *Memory) CreateAbsence(_ context.Context, a *engine.AbsenceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.absences[a.ID] = *a
	return nil
}

func (m *Memory) AbsenceByID(_ context.Context, id engine.AbsenceID) (*engine.AbsenceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.absences[id]
	if !ok {
		return nil, &engine.NotFoundError{Entity: "absence", ID: string(id)}
	}
	return &a, nil
}

func (m *Memory) UpdateAbsence(_ context.Context, a *engine.AbsenceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.absences[a.ID]; !ok {
		return &engine.NotFoundError{Entity: "absence", ID: string(a.ID)}
	}
	m.absences[a.ID] = *a
	return nil
}

func (m *Memory) DeleteAbsence(_ context.Context, id engine.AbsenceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.absences[id]; !ok {
		return &engine.NotFoundError{Entity: "absence", ID: string(id)}
	}
	delete(m.absences, id)
	return nil
}

func (m *Memory) AbsencesForUser(_ context.Context, userID engine.UserID) ([]*engine.AbsenceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.AbsenceRequest
	for _, a := range m.absences {
		if a.UserID == userID {
			a := a
			out = append(out, &a)
		}
	}
	sortAbsences(out)
	return out, nil
}

func (m *Memory) AbsencesInRange(_ context.Context, userID engine.UserID, span engine.Span, statuses []engine.AbsenceStatus) ([]*engine.AbsenceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.AbsenceRequest
	for _, a := range m.absences {
		if a.UserID != userID || !a.Span().Overlaps(span) {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, a.Status) {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sortAbsences(out)
	return out, nil
}

func (m *Memory) ListAbsences(_ context.Context, status *engine.AbsenceStatus) ([]*engine.AbsenceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.AbsenceRequest
	for _, a := range m.absences {
		if status != nil && a.Status != *status {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func sortAbsences(out []*engine.AbsenceRequest) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
}

func containsStatus(statuses []engine.AbsenceStatus, s engine.AbsenceStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// =============================================================================
// CORRECTIONS
// =============================================================================

func (m *Memory) CreateCorrection(_ context.Context, c *engine.OvertimeCorrection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corrections[c.ID] = *c
	return nil
}

func (m *Memory) CorrectionByID(_ context.Context, id engine.CorrectionID) (*engine.OvertimeCorrection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.corrections[id]
	if !ok {
		return nil, &engine.NotFoundError{Entity: "correction", ID: string(id)}
	}
	return &c, nil
}

func (m *Memory) DeleteCorrection(_ context.Context, id engine.CorrectionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.corrections[id]; !ok {
		return &engine.NotFoundError{Entity: "correction", ID: string(id)}
	}
	delete(m.corrections, id)
	return nil
}

func (m *Memory) CorrectionsForUser(_ context.Context, userID engine.UserID) ([]*engine.OvertimeCorrection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.OvertimeCorrection
	for _, c := range m.corrections {
		if c.UserID == userID {
			c := c
			out = append(out, &c)
		}
	}
	sortCorrections(out)
	return out, nil
}

func (m *Memory) CorrectionsInRange(_ context.Context, userID engine.UserID, span engine.Span) ([]*engine.OvertimeCorrection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*engine.OvertimeCorrection
	for _, c := range m.corrections {
		if c.UserID == userID && span.Contains(c.Date) {
			c := c
			out = append(out, &c)
		}
	}
	sortCorrections(out)
	return out, nil
}

func sortCorrections(out []*engine.OvertimeCorrection) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (m *Memory) UpsertHolidays(_ context.Context, hs []engine.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hs {
		m.holidays[h.Date] = h
	}
	return nil
}

func (m *Memory) HolidaysInYear(_ context.Context, year int) ([]engine.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Holiday
	for _, h := range m.holidays {
		if h.Date.Year() == year {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (m *Memory) AppendTransactions(_ context.Context, txs []engine.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		tx.ID = m.nextTxID
		m.nextTxID++
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = time.Now()
		}
		m.insertTxLocked(tx)
	}
	return nil
}

// insertTxLocked keeps the per-user slice sorted by (date, id) using a
// binary search for the insertion point.
func (m *Memory) insertTxLocked(tx engine.Transaction) {
	txs := m.transactions[tx.UserID]
	i := sort.Search(len(txs), func(i int) bool {
		if !txs[i].Date.Equal(tx.Date) {
			return txs[i].Date.After(tx.Date)
		}
		return txs[i].ID > tx.ID
	})
	txs = append(txs, engine.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.UserID] = txs
}

func (m *Memory) DeleteTransactionsForMonth(_ context.Context, userID engine.UserID, month engine.Month) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []engine.Transaction
	for _, tx := range m.transactions[userID] {
		if !month.Contains(tx.Date) {
			kept = append(kept, tx)
		}
	}
	m.transactions[userID] = kept
	return nil
}

func (m *Memory) TransactionsForMonth(_ context.Context, userID engine.UserID, month engine.Month) ([]engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Transaction
	for _, tx := range m.transactions[userID] {
		if month.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *Memory) TransactionsInRange(_ context.Context, userID engine.UserID, span engine.Span) ([]engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Transaction
	for _, tx := range m.transactions[userID] {
		if span.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *Memory) LatestTransaction(_ context.Context, userID engine.UserID) (*engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txs := m.transactions[userID]
	if len(txs) == 0 {
		return nil, nil
	}
	tx := txs[len(txs)-1]
	return &tx, nil
}

func (m *Memory) LatestTransactionOnOrBefore(_ context.Context, userID engine.UserID, d engine.Date) (*engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txs := m.transactions[userID]
	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].Date.BeforeOrEqual(d) {
			tx := txs[i]
			return &tx, nil
		}
	}
	return nil, nil
}

// =============================================================================
// MONTHLY PROJECTION
// =============================================================================

func (m *Memory) UpsertOvertimeMonth(_ context.Context, om *engine.OvertimeMonth) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := monthKey{UserID: om.UserID, Month: om.Month}
	row := *om
	// The rebuilder never owns the carry-over column; keep whatever the
	// rollover wrote.
	if existing, ok := m.months[k]; ok {
		row.CarryoverFromPreviousYear = existing.CarryoverFromPreviousYear
	} else {
		row.CarryoverFromPreviousYear = engine.Hours{}
	}
	m.months[k] = row
	return nil
}

func (m *Memory) OvertimeMonthFor(_ context.Context, userID engine.UserID, month engine.Month) (*engine.OvertimeMonth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	om, ok := m.months[monthKey{UserID: userID, Month: month}]
	if !ok {
		return nil, &engine.NotFoundError{Entity: "overtime month", ID: month.String()}
	}
	return &om, nil
}

func (m *Memory) OvertimeMonthsInYear(_ context.Context, userID engine.UserID, year int) ([]engine.OvertimeMonth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.OvertimeMonth
	for k, om := range m.months {
		if k.UserID == userID && k.Month.Year == year {
			out = append(out, om)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

func (m *Memory) SetCarryover(_ context.Context, userID engine.UserID, month engine.Month, carryover engine.Hours) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := monthKey{UserID: userID, Month: month}
	om, ok := m.months[k]
	if !ok {
		om = engine.OvertimeMonth{UserID: userID, Month: month}
	}
	om.CarryoverFromPreviousYear = carryover
	m.months[k] = om
	return nil
}

// =============================================================================
// VACATION BALANCE
// =============================================================================

func (m *Memory) VacationBalanceFor(_ context.Context, userID engine.UserID, year int) (*engine.VacationBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vb, ok := m.vacations[vacationKey{UserID: userID, Year: year}]
	if !ok {
		return nil, &engine.NotFoundError{Entity: "vacation balance", ID: string(userID)}
	}
	return &vb, nil
}

func (m *Memory) UpsertVacationBalance(_ context.Context, vb *engine.VacationBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vacations[vacationKey{UserID: vb.UserID, Year: vb.Year}] = *vb
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn with rollback-on-error semantics, simulated with a
// full snapshot. Transactions are serialized; fn operates on the store
// itself, so reads inside the transaction see its own writes.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users        map[engine.UserID]engine.User
	entries      map[engine.EntryID]engine.TimeEntry
	absences     map[engine.AbsenceID]engine.AbsenceRequest
	corrections  map[engine.CorrectionID]engine.OvertimeCorrection
	holidays     map[engine.Date]engine.Holiday
	transactions map[engine.UserID][]engine.Transaction
	months       map[monthKey]engine.OvertimeMonth
	vacations    map[vacationKey]engine.VacationBalance
	nextTxID     int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	s := memorySnapshot{
		users:        make(map[engine.UserID]engine.User, len(tm.users)),
		entries:      make(map[engine.EntryID]engine.TimeEntry, len(tm.entries)),
		absences:     make(map[engine.AbsenceID]engine.AbsenceRequest, len(tm.absences)),
		corrections:  make(map[engine.CorrectionID]engine.OvertimeCorrection, len(tm.corrections)),
		holidays:     make(map[engine.Date]engine.Holiday, len(tm.holidays)),
		transactions: make(map[engine.UserID][]engine.Transaction, len(tm.transactions)),
		months:       make(map[monthKey]engine.OvertimeMonth, len(tm.months)),
		vacations:    make(map[vacationKey]engine.VacationBalance, len(tm.vacations)),
		nextTxID:     tm.nextTxID,
	}
	for k, v := range tm.users {
		s.users[k] = v
	}
	for k, v := range tm.entries {
		s.entries[k] = v
	}
	for k, v := range tm.absences {
		s.absences[k] = v
	}
	for k, v := range tm.corrections {
		s.corrections[k] = v
	}
	for k, v := range tm.holidays {
		s.holidays[k] = v
	}
	for k, v := range tm.transactions {
		s.transactions[k] = append([]engine.Transaction{}, v...)
	}
	for k, v := range tm.months {
		s.months[k] = v
	}
	for k, v := range tm.vacations {
		s.vacations[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.users = s.users
	tm.entries = s.entries
	tm.absences = s.absences
	tm.corrections = s.corrections
	tm.holidays = s.holidays
	tm.transactions = s.transactions
	tm.months = s.months
	tm.vacations = s.vacations
	tm.nextTxID = s.nextTxID
}
