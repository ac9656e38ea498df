package infra

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := &eventRecorder{}
	store.Subscribe(rec.record)

	got, err := store.Get(ctx, "schedules")
	require.NoError(t, err)
	assert.Empty(t, got)

	value := json.RawMessage(`[1]`)
	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{"schedules": value}))
	value[1] = '9' // caller mutation must not leak in

	got, err = store.Get(ctx, "schedules", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string]json.RawMessage{"schedules": json.RawMessage(`[1]`)}, got)

	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{"schedules": json.RawMessage(`[1]`)}))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, StoreArea, events[0].Area)
	assert.Equal(t, store.Origin(), events[0].Origin)
	assert.Nil(t, events[0].Changes["schedules"].OldValue)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Set(ctx, map[string]json.RawMessage{"a": json.RawMessage(`1`)}))
	_, err := store.Get(ctx, "a")
	assert.Error(t, err)
}

func TestMemoryStore_UnsubscribeIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	unsubscribe := store.Subscribe(func(_ domain.ChangeEvent) { calls++ })
	unsubscribe()
	unsubscribe()

	require.NoError(t, store.Set(context.Background(), map[string]json.RawMessage{"a": json.RawMessage(`1`)}))
	assert.Zero(t, calls)
}
