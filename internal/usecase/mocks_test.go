package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

// mockStore implements domain.KVStore for testing
type mockStore struct {
	mu        sync.Mutex
	values    map[string]json.RawMessage
	getErr    error
	setErr    error
	setCalls  int
	listeners []func(domain.ChangeEvent)
}

func newMockStore() *mockStore {
	return &mockStore{values: make(map[string]json.RawMessage)}
}

func (m *mockStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[string]json.RawMessage)
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *mockStore) Set(ctx context.Context, items map[string]json.RawMessage) error {
	m.mu.Lock()
	if m.setErr != nil {
		m.mu.Unlock()
		return m.setErr
	}
	m.setCalls++
	changes := make(map[string]domain.StorageChange)
	for k, v := range items {
		changes[k] = domain.StorageChange{OldValue: m.values[k], NewValue: v}
		m.values[k] = v
	}
	listeners := append([]func(domain.ChangeEvent){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(domain.ChangeEvent{Changes: changes, Area: "sync", Origin: "test"})
	}
	return nil
}

func (m *mockStore) Subscribe(fn func(domain.ChangeEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
	return func() {}
}

func (m *mockStore) put(key, raw string) {
	m.values[key] = json.RawMessage(raw)
}

// mockEngine implements domain.RuleEngine for testing
type mockEngine struct {
	rules     []domain.BlockingRule
	updates   []domain.RuleUpdate
	updateErr error
	readErr   error
}

func (m *mockEngine) DynamicRules(ctx context.Context) ([]domain.BlockingRule, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return append([]domain.BlockingRule(nil), m.rules...), nil
}

func (m *mockEngine) UpdateDynamicRules(ctx context.Context, update domain.RuleUpdate) error {
	m.updates = append(m.updates, update)
	if m.updateErr != nil {
		return m.updateErr
	}
	next, err := policy.ApplyRuleUpdate(m.rules, update)
	if err != nil {
		return err
	}
	m.rules = next
	return nil
}

func (m *mockEngine) filters() []string {
	out := make([]string, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r.Condition.URLFilter)
	}
	return out
}

// mockRequester implements domain.ResyncRequester for testing
type mockRequester struct {
	calls int
	err   error
}

func (m *mockRequester) RequestResync(ctx context.Context) error {
	m.calls++
	return m.err
}

var errBoom = errors.New("boom")
