// Package store provides in-memory implementations of the recurring interfaces.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/recurring-engine/recurring"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	accounts  map[key]recurring.Account
	instances map[recurring.DedupKey]string
	runs      map[string]recurring.ProjectionRun
	order     []key

	// PingErr, when set, is returned by Ping (simulates an unreachable backend).
	PingErr error
}

type key struct {
	Kind recurring.Kind
	ID   string
}

func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[key]recurring.Account),
		instances: make(map[recurring.DedupKey]string),
		runs:      make(map[string]recurring.ProjectionRun),
	}
}

func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PingErr
}

// ListTemplates returns pending recurring accounts of kind in insertion order.
func (m *Memory) ListTemplates(_ context.Context, kind recurring.Kind) ([]recurring.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []recurring.Account
	for _, k := range m.order {
		a := m.accounts[k]
		if a.Kind == kind && a.IsRecurring && a.Status == recurring.StatusPending {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *Memory) FindInstance(_ context.Context, dk recurring.DedupKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.instances[dk]
	return ok, nil
}

func (m *Memory) InsertInstance(_ context.Context, inst recurring.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.instances[inst.Key()]; ok {
		return recurring.ErrDuplicateInstance
	}
	return m.insertLocked(inst)
}

func (m *Memory) SaveAccount(_ context.Context, a recurring.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !a.IsRecurring {
		if _, ok := m.instances[a.Key()]; ok {
			return recurring.ErrDuplicateInstance
		}
	}
	return m.insertLocked(a)
}

func (m *Memory) insertLocked(a recurring.Account) error {
	k := key{Kind: a.Kind, ID: a.ID}
	if _, ok := m.accounts[k]; ok {
		return recurring.ErrDuplicateAccount
	}
	m.accounts[k] = a
	m.order = append(m.order, k)
	if !a.IsRecurring {
		m.instances[a.Key()] = a.ID
	}
	return nil
}

func (m *Memory) GetAccount(_ context.Context, kind recurring.Kind, id string) (*recurring.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[key{Kind: kind, ID: id}]
	if !ok {
		return nil, recurring.ErrAccountNotFound
	}
	return &a, nil
}

// ListAccounts returns matching accounts ordered by due date.
func (m *Memory) ListAccounts(_ context.Context, kind recurring.Kind, f recurring.AccountFilter) ([]recurring.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []recurring.Account
	for _, k := range m.order {
		a := m.accounts[k]
		if a.Kind != kind {
			continue
		}
		if f.CompanyID != "" && a.CompanyID != f.CompanyID {
			continue
		}
		if f.Recurring != nil && a.IsRecurring != *f.Recurring {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		result = append(result, a)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].DueDate.Before(result[j].DueDate)
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// Instances returns every non-recurring account, for assertions in tests.
func (m *Memory) Instances() []recurring.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []recurring.Account
	for _, k := range m.order {
		if a := m.accounts[k]; !a.IsRecurring {
			result = append(result, a)
		}
	}
	return result
}

// =============================================================================
// RUN RECORDER
// =============================================================================

func (m *Memory) SaveRun(_ context.Context, run recurring.ProjectionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

// ListRuns returns runs newest first.
func (m *Memory) ListRuns(_ context.Context, limit int) ([]recurring.ProjectionRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]recurring.ProjectionRun, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// =============================================================================
// MEMORY LOCK
// =============================================================================

// Lock is a process-local RunLocker.
type Lock struct {
	mu   sync.Mutex
	held bool
}

func (l *Lock) TryLock(context.Context) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, true, nil
}

var (
	_ recurring.AccountStore = (*Memory)(nil)
	_ recurring.RunRecorder  = (*Memory)(nil)
	_ recurring.RunLocker    = (*Lock)(nil)
)
