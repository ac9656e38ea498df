package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// StoreArea is the storage area name reported in change events.
const StoreArea = "sync"

// MemoryStore implements domain.KVStore in process memory.
// Used by tests and by one-shot commands that never persist.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
	origin string
	subs   subscribers
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]json.RawMessage),
		origin: uuid.NewString(),
	}
}

// Get returns the requested keys that exist.
func (s *MemoryStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			out[k] = clone(v)
		}
	}
	return out, nil
}

// Set writes every key and notifies subscribers of the keys whose value changed.
func (s *MemoryStore) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for k, v := range items {
		if !json.Valid(v) {
			return &invalidValueError{key: k}
		}
	}

	s.mu.Lock()
	changes := make(map[string]domain.StorageChange, len(items))
	for k, v := range items {
		old := s.values[k]
		s.values[k] = clone(v)
		if bytes.Equal(old, v) {
			continue
		}
		changes[k] = domain.StorageChange{OldValue: old, NewValue: clone(v)}
	}
	s.mu.Unlock()

	if len(changes) > 0 {
		s.subs.notify(domain.ChangeEvent{Changes: changes, Area: StoreArea, Origin: s.origin})
	}
	return nil
}

// Subscribe registers fn for change events.
func (s *MemoryStore) Subscribe(fn func(domain.ChangeEvent)) func() {
	return s.subs.add(fn)
}

// Origin returns this store's instance id.
func (s *MemoryStore) Origin() string {
	return s.origin
}

// subscribers is a listener list shared by the store implementations.
// Listeners run synchronously on the notifying goroutine.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(domain.ChangeEvent)
}

func (l *subscribers) add(fn func(domain.ChangeEvent)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(domain.ChangeEvent))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *subscribers) notify(ev domain.ChangeEvent) {
	l.mu.Lock()
	fns := make([]func(domain.ChangeEvent), 0, len(l.fns))
	for i := 0; i < l.next; i++ {
		if fn, ok := l.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

type invalidValueError struct {
	key string
}

func (e *invalidValueError) Error() string {
	return "value for key " + e.key + " is not valid JSON"
}

func clone(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}

// Ensure MemoryStore implements domain.KVStore.
var _ domain.KVStore = (*MemoryStore)(nil)
