package kvstore

import (
	"testing"
	"time"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetNXClaimsOnce(t *testing.T) {
	store := NewMemory(clock.NewFake(time.Now()))

	ok, err := store.SetNX(t.Context(), "exec:rule-1:evt-1", "1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(t.Context(), "exec:rule-1:evt-1", "1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_KeysExpire(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemory(fake)

	require.NoError(t, store.Set(t.Context(), "deal:1:value", "100", time.Minute))

	value, ok, err := store.Get(t.Context(), "deal:1:value")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "100", value)

	fake.Add(time.Minute)

	_, ok, err = store.Get(t.Context(), "deal:1:value")
	require.NoError(t, err)
	assert.False(t, ok)

	claimed, err := store.SetNX(t.Context(), "deal:1:value", "200", 0)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemory_Delete(t *testing.T) {
	store := NewMemory(nil)

	require.NoError(t, store.Set(t.Context(), "k", "v", 0))
	require.NoError(t, store.Delete(t.Context(), "k"))

	_, ok, err := store.Get(t.Context(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNew_SelectsImplementation(t *testing.T) {
	store, err := New("memory://")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)

	_, err = New("etcd://localhost")
	assert.ErrorIs(t, err, ErrUnsupportedStore)
}
