package table_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbtrade/mdstore/internal/columnar"
	"github.com/cbtrade/mdstore/internal/models"
	"github.com/cbtrade/mdstore/internal/storage"
	"github.com/cbtrade/mdstore/internal/table"
)

const tsCol = models.ColTimestamp

var calendarCols = []string{table.PartitionYear, table.PartitionMonth, table.PartitionDay}

// countingBackend records which parquet files were actually fetched.
type countingBackend struct {
	*storage.MemoryBackend
	parquetLoads []string
}

func (c *countingBackend) LoadBytes(ctx context.Context, identifier string) ([]byte, error) {
	if strings.HasSuffix(identifier, ".parquet") {
		c.parquetLoads = append(c.parquetLoads, identifier)
	}
	return c.MemoryBackend.LoadBytes(ctx, identifier)
}

// hourlyFrame builds a frame of n hourly candles starting at start.
func hourlyFrame(t *testing.T, start time.Time, n int) (*columnar.Frame, []int64) {
	t.Helper()
	records := make([]models.OHLCVRecord, n)
	stamps := make([]int64, n)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Hour).UnixMilli()
		records[i] = models.OHLCVRecord{
			Timestamp: ts,
			Open:      100 + float64(i),
			High:      110 + float64(i),
			Low:       90 + float64(i),
			Close:     105 + float64(i),
			Volume:    float64(10 * (i + 1)),
		}
		stamps[i] = ts
	}
	batch := models.NewBatch(models.Metadata{DataType: "ohlcv", Exchange: "binance", Coin: "BTC_USDT", Interval: "1h"}, records)
	return batch.ToFrame(), stamps
}

func timestampsOf(t *testing.T, f *columnar.Frame) []int64 {
	t.Helper()
	out := make([]int64, 0, f.NumRows())
	for i := 0; i < f.NumRows(); i++ {
		ts, ok := f.Int64At(tsCol, i)
		require.True(t, ok)
		out = append(out, ts)
	}
	return out
}

func TestWriteReadRoundTrip_CalendarPartitions(t *testing.T) {
	backend := storage.NewMemoryBackend()
	writer := table.NewWriter(backend, tsCol, nil)
	reader := table.NewReader(backend, tsCol, nil)
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	frame, stamps := hourlyFrame(t, start, 180) // spans 8 calendar days

	require.NoError(t, writer.Save(ctx, "ohlcv/binance/BTC_USDT/1h", frame, table.ModeOverwrite, calendarCols))

	// Physical layout: hive-style partition directories plus a commit file.
	items, err := backend.ListItems(ctx, "ohlcv/binance/BTC_USDT/1h/")
	require.NoError(t, err)
	var parts, commits int
	for _, item := range items {
		if strings.HasSuffix(item, ".parquet") {
			parts++
			assert.Contains(t, item, "year=2024/month=03/day=")
		}
		if strings.Contains(item, table.LogDir) {
			commits++
		}
	}
	assert.Equal(t, 8, parts, "one file per touched day")
	assert.Equal(t, 1, commits)

	got, err := reader.LoadRange(ctx, "ohlcv/binance/BTC_USDT/1h",
		start, start.Add(200*time.Hour), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.ElementsMatch(t, stamps, timestampsOf(t, got))
}

func TestLoadRange_MissingTable(t *testing.T) {
	reader := table.NewReader(storage.NewMemoryBackend(), tsCol, nil)
	got, err := reader.LoadRange(context.Background(), "ohlcv/none/NONE/1h",
		time.Unix(0, 0), time.Now(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSave_AppendDoesNotClobber(t *testing.T) {
	backend := storage.NewMemoryBackend()
	writer := table.NewWriter(backend, tsCol, nil)
	reader := table.NewReader(backend, tsCol, nil)
	ctx := context.Background()
	path := "ohlcv/binance/ETH_USDT/1h"

	day1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	f1, s1 := hourlyFrame(t, day1, 24)
	f2, s2 := hourlyFrame(t, day2, 24)

	require.NoError(t, writer.Save(ctx, path, f1, table.ModeAppend, calendarCols))
	require.NoError(t, writer.Save(ctx, path, f2, table.ModeAppend, calendarCols))

	got, err := reader.LoadRange(ctx, path, day1, day2.Add(24*time.Hour), nil, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, append(append([]int64{}, s1...), s2...), timestampsOf(t, got))
}

func TestSave_OverwriteTruncates(t *testing.T) {
	backend := storage.NewMemoryBackend()
	writer := table.NewWriter(backend, tsCol, nil)
	reader := table.NewReader(backend, tsCol, nil)
	ctx := context.Background()
	path := "ohlcv/binance/SOL_USDT/1h"

	day1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f1, _ := hourlyFrame(t, day1, 24)
	f2, s2 := hourlyFrame(t, day1.Add(48*time.Hour), 12)

	require.NoError(t, writer.Save(ctx, path, f1, table.ModeAppend, calendarCols))
	require.NoError(t, writer.Save(ctx, path, f2, table.ModeOverwrite, calendarCols))

	got, err := reader.LoadRange(ctx, path, day1, day1.Add(100*time.Hour), nil, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, s2, timestampsOf(t, got))
}

func TestSave_EmptyOverwriteLeavesEmptyTable(t *testing.T) {
	backend := storage.NewMemoryBackend()
	writer := table.NewWriter(backend, tsCol, nil)
	reader := table.NewReader(backend, tsCol, nil)
	ctx := context.Background()
	path := "targets"

	f1, _ := hourlyFrame(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 3)
	require.NoError(t, writer.Save(ctx, path, f1, table.ModeAppend, nil))

	empty := columnar.New()
	require.NoError(t, empty.AddColumn(tsCol, columnar.TypeInt64, nil))
	require.NoError(t, writer.Save(ctx, path, empty, table.ModeOverwrite, nil))

	got, err := reader.LoadRange(ctx, path, time.Unix(0, 0), time.Now().Add(time.Hour), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, got, "truncated table still exists")
	assert.Equal(t, 0, got.NumRows())
}

func TestSave_InvalidMode(t *testing.T) {
	writer := table.NewWriter(storage.NewMemoryBackend(), tsCol, nil)
	f, _ := hourlyFrame(t, time.Now().UTC(), 1)
	err := writer.Save(context.Background(), "p", f, "merge", nil)
	assert.Error(t, err)
}

func TestSave_MissingTimestampWritesUnpartitioned(t *testing.T) {
	backend := storage.NewMemoryBackend()
	writer := table.NewWriter(backend, tsCol, nil)
	ctx := context.Background()

	f := columnar.New()
	require.NoError(t, f.AddColumn("note", columnar.TypeString, []any{"a", "b"}))
	require.NoError(t, writer.Save(ctx, "misc", f, table.ModeAppend, calendarCols))

	items, err := backend.ListItems(ctx, "misc/")
	require.NoError(t, err)
	for _, item := range items {
		assert.NotContains(t, item, "year=")
	}
}

func TestLoadRange_PrunesFilesOutsideRange(t *testing.T) {
	backend := &countingBackend{MemoryBackend: storage.NewMemoryBackend()}
	writer := table.NewWriter(backend, tsCol, nil)
	reader := table.NewReader(backend, tsCol, nil)
	ctx := context.Background()
	path := "ohlcv/binance/BTC_USDT/1h"

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	frame, _ := hourlyFrame(t, start, 72) // 3 day files
	require.NoError(t, writer.Save(ctx, path, frame, table.ModeAppend, calendarCols))

	backend.parquetLoads = nil
	day2 := start.Add(24 * time.Hour)
	got, err := reader.LoadRange(ctx, path, day2, day2.Add(23*time.Hour), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 24, got.NumRows())
	assert.Len(t, backend.parquetLoads, 1, "only the matching day file is fetched")
}

func TestLoadRange_ProjectionAndFilters(t *testing.T) {
	backend := storage.NewMemoryBackend()
	writer := table.NewWriter(backend, tsCol, nil)
	reader := table.NewReader(backend, tsCol, nil)
	ctx := context.Background()
	path := "ohlcv/binance/BTC_USDT/1h"

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	frame, _ := hourlyFrame(t, start, 10) // volumes 10..100
	require.NoError(t, writer.Save(ctx, path, frame, table.ModeAppend, calendarCols))

	got, err := reader.LoadRange(ctx, path, start, start.Add(10*time.Hour),
		[]table.Filter{{Column: models.ColVolume, Op: ">", Value: 55.0}},
		[]string{models.ColClose})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5, got.NumRows(), "volumes 60..100 pass the filter")
	assert.True(t, got.HasColumn(models.ColClose))
	assert.False(t, got.HasColumn(models.ColVolume), "filter-only columns are dropped")

	// Unknown filter operators are rejected up front.
	_, err = reader.LoadRange(ctx, path, start, start.Add(time.Hour),
		[]table.Filter{{Column: models.ColVolume, Op: "~", Value: 1.0}}, nil)
	assert.Error(t, err)
}

func TestLoadRange_SchemaMergeAcrossCommits(t *testing.T) {
	backend := storage.NewMemoryBackend()
	writer := table.NewWriter(backend, tsCol, nil)
	reader := table.NewReader(backend, tsCol, nil)
	ctx := context.Background()
	path := "mixed"

	old := columnar.New()
	require.NoError(t, old.AddColumn(tsCol, columnar.TypeInt64, []any{int64(1000)}))
	require.NoError(t, old.AddColumn("price", columnar.TypeFloat64, []any{9.5}))
	require.NoError(t, writer.Save(ctx, path, old, table.ModeAppend, nil))

	extended := columnar.New()
	require.NoError(t, extended.AddColumn(tsCol, columnar.TypeInt64, []any{int64(2000)}))
	require.NoError(t, extended.AddColumn("price", columnar.TypeFloat64, []any{10.5}))
	require.NoError(t, extended.AddColumn("source", columnar.TypeString, []any{"feed"}))
	require.NoError(t, writer.Save(ctx, path, extended, table.ModeAppend, nil))

	got, err := reader.LoadRange(ctx, path, time.UnixMilli(0), time.UnixMilli(5000), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, got.NumRows())
	require.True(t, got.HasColumn("source"))

	// The pre-extension row reads the new column as null.
	nulls := 0
	for i := 0; i < got.NumRows(); i++ {
		if _, ok := got.StringAt("source", i); !ok {
			nulls++
		}
	}
	assert.Equal(t, 1, nulls)
}

func TestReader_Exists(t *testing.T) {
	backend := storage.NewMemoryBackend()
	writer := table.NewWriter(backend, tsCol, nil)
	reader := table.NewReader(backend, tsCol, nil)
	ctx := context.Background()

	ok, err := reader.Exists(ctx, "t")
	require.NoError(t, err)
	assert.False(t, ok)

	f, _ := hourlyFrame(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, writer.Save(ctx, "t", f, table.ModeAppend, nil))

	ok, err = reader.Exists(ctx, "t")
	require.NoError(t, err)
	assert.True(t, ok)
}
