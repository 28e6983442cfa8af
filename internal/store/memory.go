package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"DipSentinel/internal/model"
)

// MemoryStore keeps everything in process memory. Used for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	rules   map[model.RuleKey]model.RuleRecord
	budgets map[model.AccountID]model.BudgetState
	plans   map[model.AccountID][]model.PlanEntry
	history []HistoryEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:   make(map[model.RuleKey]model.RuleRecord),
		budgets: make(map[model.AccountID]model.BudgetState),
		plans:   make(map[model.AccountID][]model.PlanEntry),
	}
}

func (m *MemoryStore) LoadRules(_ context.Context) ([]model.RuleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.RuleRecord, 0, len(m.rules))
	for _, r := range m.rules {
		c := r.Clone()
		c.Normalize()
		out = append(out, c)
	}
	sortRules(out)
	return out, nil
}

func (m *MemoryStore) GetRule(_ context.Context, key model.RuleKey) (model.RuleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[key]
	if !ok {
		return model.RuleRecord{}, errors.Wrapf(ErrNotFound, "rule %s", key)
	}
	c := r.Clone()
	c.Normalize()
	return c, nil
}

func (m *MemoryStore) ListRules(_ context.Context, account model.AccountID) ([]model.RuleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.RuleRecord
	for k, r := range m.rules {
		if k.AccountID == account {
			c := r.Clone()
			c.Normalize()
			out = append(out, c)
		}
	}
	sortRules(out)
	return out, nil
}

func (m *MemoryStore) SaveRule(_ context.Context, rec model.RuleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rec.Key()] = rec.Clone()
	return nil
}

func (m *MemoryStore) DeleteRule(_ context.Context, key model.RuleKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[key]; !ok {
		return errors.Wrapf(ErrNotFound, "rule %s", key)
	}
	delete(m.rules, key)
	return nil
}

func (m *MemoryStore) GetBudget(_ context.Context, account model.AccountID) (model.BudgetState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.budgets[account]
	if !ok {
		return model.BudgetState{}, errors.Wrapf(ErrNotFound, "budget %d", account)
	}
	return b, nil
}

func (m *MemoryStore) SaveBudget(_ context.Context, state model.BudgetState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[state.AccountID] = state
	return nil
}

func (m *MemoryStore) LoadBudgets(_ context.Context) ([]model.BudgetState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.BudgetState, 0, len(m.budgets))
	for _, b := range m.budgets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (m *MemoryStore) GetPlan(_ context.Context, account model.AccountID) ([]model.PlanEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.PlanEntry(nil), m.plans[account]...), nil
}

func (m *MemoryStore) ReplacePlan(_ context.Context, account model.AccountID, entries []model.PlanEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(entries) == 0 {
		delete(m.plans, account)
		return nil
	}
	m.plans[account] = append([]model.PlanEntry(nil), entries...)
	return nil
}

func (m *MemoryStore) PlanAccounts(_ context.Context) ([]model.AccountID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.AccountID, 0, len(m.plans))
	for a := range m.plans {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *MemoryStore) RecordIntent(_ context.Context, intent model.NotificationIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, historyFromIntent(intent))
	return nil
}

// History returns a copy of the recorded alert history.
func (m *MemoryStore) History() []HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]HistoryEntry(nil), m.history...)
}

func (m *MemoryStore) Close() error { return nil }

func sortRules(rules []model.RuleRecord) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].AccountID != rules[j].AccountID {
			return rules[i].AccountID < rules[j].AccountID
		}
		return rules[i].Instrument < rules[j].Instrument
	})
}
