package targets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbtrade/mdstore/internal/storage"
)

func newTargetManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemoryBackend(), nil)
}

func TestManager_AddAndGet(t *testing.T) {
	m := newTargetManager(t)
	ctx := context.Background()

	added, err := m.Add(ctx, Target{Coin: "BTC_USDT", Exchange: "binance", ExchangeID: "BTCUSDT", Interval: "1h", Enabled: true})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.NotZero(t, added.LastUpdated)

	got, err := m.Get(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, added, got)

	_, err = m.Get(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestManager_AddRequiresFields(t *testing.T) {
	m := newTargetManager(t)
	_, err := m.Add(context.Background(), Target{Coin: "BTC_USDT"})
	assert.Error(t, err)
}

func TestManager_ListEnabledFilter(t *testing.T) {
	m := newTargetManager(t)
	ctx := context.Background()

	on, err := m.Add(ctx, Target{Coin: "BTC_USDT", Exchange: "binance", Interval: "1h", Enabled: true})
	require.NoError(t, err)
	_, err = m.Add(ctx, Target{Coin: "ETH_USDT", Exchange: "binance", Interval: "1h", Enabled: false})
	require.NoError(t, err)

	all, err := m.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	enabled, err := m.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, on.ID, enabled[0].ID)
}

func TestManager_ListEmptyStore(t *testing.T) {
	m := newTargetManager(t)
	all, err := m.List(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestManager_Update(t *testing.T) {
	m := newTargetManager(t)
	ctx := context.Background()

	added, err := m.Add(ctx, Target{Coin: "BTC_USDT", Exchange: "binance", Interval: "1h", Enabled: true})
	require.NoError(t, err)

	updated, err := m.Update(ctx, added.ID, func(t *Target) {
		t.Enabled = false
		t.Interval = "4h"
	})
	require.NoError(t, err)
	assert.False(t, updated.Enabled)
	assert.Equal(t, "4h", updated.Interval)
	assert.Equal(t, added.ID, updated.ID)

	got, err := m.Get(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	_, err = m.Update(ctx, "no-such-id", func(t *Target) {})
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestManager_DeleteToEmptyKeepsTable(t *testing.T) {
	m := newTargetManager(t)
	ctx := context.Background()

	added, err := m.Add(ctx, Target{Coin: "BTC_USDT", Exchange: "binance", Interval: "1h", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, added.ID))

	// The table still exists and lists empty rather than erroring.
	all, err := m.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.ErrorIs(t, m.Delete(ctx, added.ID), ErrTargetNotFound)

	// The store is usable again after a full wipe.
	again, err := m.Add(ctx, Target{Coin: "SOL_USDT", Exchange: "binance", Interval: "1h", Enabled: true})
	require.NoError(t, err)
	all, err = m.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, again.ID, all[0].ID)
}
