// Package memory provides an in-memory timeoff.TxStore for tests and
// local runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/timeoff"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store keeps every table in maps. Writers are serialized by txMu, which
// WithTx holds for the whole unit of work, so a rollback can never discard
// another writer's changes.
type Store struct {
	view

	txMu sync.Mutex
	mu   sync.RWMutex
	data *tables
}

type tables struct {
	leaveTypes map[timeoff.LeaveTypeID]timeoff.LeaveType
	balances   map[timeoff.BalanceID]timeoff.LeaveBalance
	leaves     map[timeoff.LeaveID]timeoff.Leave
	persons    map[timeoff.PersonID]timeoff.Person
	holidays   map[string]generic.Holiday
	audit      []generic.AuditEntry
}

var errDuplicateKey = errors.New("balance key already exists")

var (
	_ timeoff.TxStore      = (*Store)(nil)
	_ timeoff.PersonStore  = (*Store)(nil)
	_ generic.HolidayStore = (*Store)(nil)
)

func New() *Store {
	s := &Store{data: &tables{
		leaveTypes: make(map[timeoff.LeaveTypeID]timeoff.LeaveType),
		balances:   make(map[timeoff.BalanceID]timeoff.LeaveBalance),
		leaves:     make(map[timeoff.LeaveID]timeoff.Leave),
		persons:    make(map[timeoff.PersonID]timeoff.Person),
		holidays:   make(map[string]generic.Holiday),
	}}
	s.view = view{s: s}
	return s
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (s *Store) WithTx(ctx context.Context, fn func(timeoff.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(&view{s: s, inTx: true}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Reset clears all data.
func (s *Store) Reset(_ context.Context) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	empty := New().data
	s.mu.Lock()
	s.data = empty
	s.mu.Unlock()
	return nil
}

func (t *tables) clone() *tables {
	c := &tables{
		leaveTypes: make(map[timeoff.LeaveTypeID]timeoff.LeaveType, len(t.leaveTypes)),
		balances:   make(map[timeoff.BalanceID]timeoff.LeaveBalance, len(t.balances)),
		leaves:     make(map[timeoff.LeaveID]timeoff.Leave, len(t.leaves)),
		persons:    make(map[timeoff.PersonID]timeoff.Person, len(t.persons)),
		holidays:   make(map[string]generic.Holiday, len(t.holidays)),
		audit:      append([]generic.AuditEntry(nil), t.audit...),
	}
	for k, v := range t.leaveTypes {
		c.leaveTypes[k] = v
	}
	for k, v := range t.balances {
		c.balances[k] = v
	}
	for k, v := range t.leaves {
		c.leaves[k] = v
	}
	for k, v := range t.persons {
		c.persons[k] = v
	}
	for k, v := range t.holidays {
		c.holidays[k] = v
	}
	return c
}

// =============================================================================
// VIEW - Shared by the store and its transactions
// =============================================================================

type view struct {
	s    *Store
	inTx bool
}

func (v *view) write(fn func(t *tables) error) error {
	if !v.inTx {
		v.s.txMu.Lock()
		defer v.s.txMu.Unlock()
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(v.s.data)
}

func (v *view) read(fn func(t *tables) error) error {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return fn(v.s.data)
}

// Leave types

func (v *view) SaveLeaveType(_ context.Context, lt timeoff.LeaveType) error {
	return v.write(func(t *tables) error {
		t.leaveTypes[lt.ID] = lt
		return nil
	})
}

func (v *view) GetLeaveType(_ context.Context, id timeoff.LeaveTypeID) (timeoff.LeaveType, error) {
	var lt timeoff.LeaveType
	err := v.read(func(t *tables) error {
		found, ok := t.leaveTypes[id]
		if !ok {
			return &timeoff.NotFoundError{Entity: "leave type", ID: string(id)}
		}
		lt = found
		return nil
	})
	return lt, err
}

func (v *view) ListLeaveTypes(_ context.Context) ([]timeoff.LeaveType, error) {
	var out []timeoff.LeaveType
	err := v.read(func(t *tables) error {
		for _, lt := range t.leaveTypes {
			out = append(out, lt)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (v *view) DeleteLeaveType(_ context.Context, id timeoff.LeaveTypeID) error {
	return v.write(func(t *tables) error {
		if _, ok := t.leaveTypes[id]; !ok {
			return &timeoff.NotFoundError{Entity: "leave type", ID: string(id)}
		}
		delete(t.leaveTypes, id)
		return nil
	})
}

func (v *view) LeaveTypeInUse(_ context.Context, id timeoff.LeaveTypeID) (bool, error) {
	inUse := false
	err := v.read(func(t *tables) error {
		for _, l := range t.leaves {
			if l.LeaveTypeID == id {
				inUse = true
				return nil
			}
		}
		for _, b := range t.balances {
			if b.LeaveTypeID == id {
				inUse = true
				return nil
			}
		}
		return nil
	})
	return inUse, err
}

// Balances

func (v *view) SaveBalance(_ context.Context, b timeoff.LeaveBalance) error {
	return v.write(func(t *tables) error {
		for id, other := range t.balances {
			if id != b.ID && other.Key() == b.Key() {
				return generic.StorageError("save balance", errDuplicateKey)
			}
		}
		t.balances[b.ID] = b
		return nil
	})
}

func (v *view) GetBalance(_ context.Context, key timeoff.BalanceKey) (timeoff.LeaveBalance, error) {
	var out timeoff.LeaveBalance
	err := v.read(func(t *tables) error {
		for _, b := range t.balances {
			if b.Key() == key {
				out = b
				return nil
			}
		}
		return &timeoff.NotFoundError{Entity: "balance", ID: key.String()}
	})
	return out, err
}

func (v *view) GetBalanceByID(_ context.Context, id timeoff.BalanceID) (timeoff.LeaveBalance, error) {
	var out timeoff.LeaveBalance
	err := v.read(func(t *tables) error {
		b, ok := t.balances[id]
		if !ok {
			return &timeoff.NotFoundError{Entity: "balance", ID: string(id)}
		}
		out = b
		return nil
	})
	return out, err
}

func (v *view) ListBalances(_ context.Context, filter timeoff.BalanceFilter) ([]timeoff.LeaveBalance, error) {
	var out []timeoff.LeaveBalance
	err := v.read(func(t *tables) error {
		for _, b := range t.balances {
			if filter.Matches(b) {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.PersonID != b.PersonID {
			return a.PersonID < b.PersonID
		}
		return a.LeaveTypeID < b.LeaveTypeID
	})
	return out, err
}

func (v *view) DeleteBalance(_ context.Context, id timeoff.BalanceID) error {
	return v.write(func(t *tables) error {
		if _, ok := t.balances[id]; !ok {
			return &timeoff.NotFoundError{Entity: "balance", ID: string(id)}
		}
		delete(t.balances, id)
		return nil
	})
}

// Leaves

func (v *view) SaveLeave(_ context.Context, l timeoff.Leave) error {
	return v.write(func(t *tables) error {
		t.leaves[l.ID] = l
		return nil
	})
}

func (v *view) GetLeave(_ context.Context, id timeoff.LeaveID) (timeoff.Leave, error) {
	var out timeoff.Leave
	err := v.read(func(t *tables) error {
		l, ok := t.leaves[id]
		if !ok {
			return &timeoff.NotFoundError{Entity: "leave", ID: string(id)}
		}
		out = l
		return nil
	})
	return out, err
}

func (v *view) ListLeaves(_ context.Context, filter timeoff.LeaveFilter) ([]timeoff.Leave, error) {
	var out []timeoff.Leave
	err := v.read(func(t *tables) error {
		for _, l := range t.leaves {
			if filter.Matches(l) {
				out = append(out, l)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

// Audit

func (v *view) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	return v.write(func(t *tables) error {
		t.audit = append(t.audit, entry)
		return nil
	})
}

// QueryAudit returns matching entries, newest first.
func (v *view) QueryAudit(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	var out []generic.AuditEntry
	err := v.read(func(t *tables) error {
		for i := len(t.audit) - 1; i >= 0; i-- {
			if filter.Matches(t.audit[i]) {
				out = append(out, t.audit[i])
				if filter.Limit > 0 && len(out) == filter.Limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

// Persons

func (v *view) SavePerson(_ context.Context, p timeoff.Person) error {
	p.Exists = true
	return v.write(func(t *tables) error {
		t.persons[p.ID] = p
		return nil
	})
}

// GetPerson reports a missing person as Exists=false.
func (v *view) GetPerson(_ context.Context, id timeoff.PersonID) (timeoff.Person, error) {
	out := timeoff.Person{ID: id}
	err := v.read(func(t *tables) error {
		if p, ok := t.persons[id]; ok {
			out = p
		}
		return nil
	})
	return out, err
}

func (v *view) ListPersons(_ context.Context) ([]timeoff.Person, error) {
	var out []timeoff.Person
	err := v.read(func(t *tables) error {
		for _, p := range t.persons {
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// Holidays

func (v *view) SaveHoliday(_ context.Context, h generic.Holiday) error {
	return v.write(func(t *tables) error {
		t.holidays[h.ID] = h
		return nil
	})
}

func (v *view) DeleteHoliday(_ context.Context, id string) error {
	return v.write(func(t *tables) error {
		if _, ok := t.holidays[id]; !ok {
			return &timeoff.NotFoundError{Entity: "holiday", ID: id}
		}
		delete(t.holidays, id)
		return nil
	})
}

func (v *view) ListHolidays(_ context.Context, companyID string, year int) ([]generic.Holiday, error) {
	var out []generic.Holiday
	err := v.read(func(t *tables) error {
		for _, h := range t.holidays {
			if h.CompanyID != "" && h.CompanyID != companyID {
				continue
			}
			if year != 0 && !h.Recurring && h.Date.Year() != year {
				continue
			}
			out = append(out, h)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, err
}

func (v *view) IsHoliday(companyID string, date generic.TimePoint) bool {
	found := false
	_ = v.read(func(t *tables) error {
		for _, h := range t.holidays {
			if h.Matches(companyID, date) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found
}
