package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbtrade/mdstore/internal/models"
	"github.com/cbtrade/mdstore/internal/storage"
)

func newManager(t *testing.T) (*storage.Manager, *storage.MemoryBackend) {
	t.Helper()
	backend := storage.NewMemoryBackend()
	m, err := storage.NewManager(backend)
	require.NoError(t, err)
	return m, backend
}

func hourlyBatch(meta models.Metadata, start time.Time, n int) *models.Batch {
	records := make([]models.OHLCVRecord, n)
	for i := 0; i < n; i++ {
		records[i] = models.OHLCVRecord{
			Timestamp: start.Add(time.Duration(i) * time.Hour).UnixMilli(),
			Open:      100,
			High:      110,
			Low:       90,
			Close:     105,
			Volume:    float64(i + 1),
		}
	}
	return models.NewBatch(meta, records)
}

var btcMeta = models.Metadata{DataType: "ohlcv", Exchange: "binance", Coin: "BTC_USDT", Interval: "1h"}

func TestManager_RequiresBackend(t *testing.T) {
	_, err := storage.NewManager(nil)
	assert.Error(t, err)
}

func TestManager_SaveAndGetRangeRoundTrip(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	batch := hourlyBatch(btcMeta, start, 180)
	require.NoError(t, m.SaveEntry(ctx, batch, storage.ModeOverwrite))

	got, err := m.GetRange(ctx, btcMeta, storage.RangeQuery{
		Start: start,
		End:   start.Add(200 * time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 180, got.Len())
	assert.ElementsMatch(t, batch.Timestamps(), got.Timestamps())
}

func TestManager_GetRangeMissingTable(t *testing.T) {
	m, _ := newManager(t)
	got, err := m.GetRange(context.Background(), btcMeta, storage.RangeQuery{
		Start: time.Unix(0, 0),
		End:   time.Now(),
	})
	require.NoError(t, err)
	assert.Nil(t, got, "missing dataset reads as nil, not an error")
}

func TestManager_GetRangeEmptyWindow(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.SaveEntry(ctx, hourlyBatch(btcMeta, start, 24), storage.ModeAppend))

	got, err := m.GetRange(ctx, btcMeta, storage.RangeQuery{
		Start: start.Add(1000 * time.Hour),
		End:   start.Add(2000 * time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, got, "existing dataset with no rows in range reads as empty")
	assert.True(t, got.IsEmpty())
}

func TestManager_Pagination(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.SaveEntry(ctx, hourlyBatch(btcMeta, start, 50), storage.ModeOverwrite))

	q := storage.RangeQuery{Start: start, End: start.Add(60 * time.Hour)}
	full, err := m.GetRange(ctx, btcMeta, q)
	require.NoError(t, err)
	require.Equal(t, 50, full.Len())

	// Fixed limit/offset pages reassemble the full result in order.
	var paged []int64
	for offset := 0; ; offset += 20 {
		pq := q
		pq.Limit, pq.Offset = 20, offset
		page, err := m.GetRange(ctx, btcMeta, pq)
		require.NoError(t, err)
		if page.IsEmpty() {
			break
		}
		paged = append(paged, page.Timestamps()...)
		if page.Len() < 20 {
			break
		}
	}
	assert.Equal(t, full.Timestamps(), paged)

	// Offset past the end yields an empty batch, not nil.
	pq := q
	pq.Offset = 100
	page, err := m.GetRange(ctx, btcMeta, pq)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.True(t, page.IsEmpty())
}

func TestManager_AppendKeepsExistingRows(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first := hourlyBatch(btcMeta, start, 24)
	second := hourlyBatch(btcMeta, start.Add(24*time.Hour), 24)
	require.NoError(t, m.SaveEntry(ctx, first, storage.ModeAppend))
	require.NoError(t, m.SaveEntry(ctx, second, storage.ModeAppend))

	got, err := m.GetRange(ctx, btcMeta, storage.RangeQuery{Start: start, End: start.Add(48 * time.Hour)})
	require.NoError(t, err)
	want := append(first.Timestamps(), second.Timestamps()...)
	assert.ElementsMatch(t, want, got.Timestamps())
}

func TestManager_SaveEmptyBatchIsNoOp(t *testing.T) {
	m, backend := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveEntry(ctx, models.NewBatch(btcMeta, nil), storage.ModeAppend))
	require.NoError(t, m.SaveEntry(ctx, nil, storage.ModeAppend))
	assert.Equal(t, 0, backend.Len(), "empty saves leave storage untouched")
}

func TestManager_SaveInvalidBatch(t *testing.T) {
	m, _ := newManager(t)
	bad := models.NewBatch(btcMeta, []models.OHLCVRecord{{Timestamp: 0}})
	err := m.SaveEntry(context.Background(), bad, storage.ModeAppend)
	assert.Error(t, err)
}

func TestManager_SaveIncompleteDescriptor(t *testing.T) {
	m, _ := newManager(t)
	incomplete := models.Metadata{DataType: "ohlcv", Exchange: "binance"}
	err := m.SaveEntry(context.Background(), hourlyBatch(incomplete, time.Now().UTC(), 1), storage.ModeAppend)
	assert.Error(t, err)
}

func TestManager_ListCoins(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	eth := btcMeta
	eth.Coin = "eth_usdt"
	require.NoError(t, m.SaveEntry(ctx, hourlyBatch(btcMeta, start, 1), storage.ModeAppend))
	require.NoError(t, m.SaveEntry(ctx, hourlyBatch(eth, start, 1), storage.ModeAppend))

	coins, err := m.ListCoins(ctx, "binance", "ohlcv")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC_USDT", "ETH_USDT"}, coins)

	coins, err = m.ListCoins(ctx, "unknown", "ohlcv")
	require.NoError(t, err)
	assert.Empty(t, coins)

	_, err = m.ListCoins(ctx, "", "ohlcv")
	assert.Error(t, err)
}

func TestManager_CheckCoinExists(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.SaveEntry(ctx, hourlyBatch(btcMeta, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 1), storage.ModeAppend))

	ok, err := m.CheckCoinExists(ctx, "binance", "BTC_USDT", "ohlcv", "1h")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.CheckCoinExists(ctx, "binance", "BTC_USDT", "ohlcv", "4h")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.CheckCoinExists(ctx, "binance", "", "ohlcv", "1h")
	assert.Error(t, err)
}
