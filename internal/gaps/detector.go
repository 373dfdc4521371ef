// Package gaps finds missing interval timestamps in stored OHLCV series and
// backfills them from an exchange.
package gaps

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/cbtrade/mdstore/internal/exchange"
	"github.com/cbtrade/mdstore/internal/models"
	"github.com/cbtrade/mdstore/internal/storage"
)

// Range is a half-open span [Start, End) of consecutive missing interval
// slots.
type Range struct {
	Start time.Time
	End   time.Time
}

// ParseInterval converts an interval token like "1m", "4h" or "1d" into a
// duration.
func ParseInterval(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	value, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	switch interval[len(interval)-1] {
	case 's':
		return time.Duration(value) * time.Second, nil
	case 'm':
		return time.Duration(value) * time.Minute, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid interval unit in %q", interval)
	}
}

// MissingTimestamps walks the expected interval grid across [start, end]
// and returns the millisecond timestamps absent from records, sorted.
func MissingTimestamps(records []models.OHLCVRecord, interval time.Duration, start, end time.Time) []int64 {
	if interval <= 0 || end.Before(start) {
		return nil
	}
	present := make(map[int64]struct{}, len(records))
	for _, r := range records {
		present[r.Timestamp] = struct{}{}
	}
	var missing []int64
	step := interval.Milliseconds()
	for ts := start.UTC().UnixMilli(); ts <= end.UTC().UnixMilli(); ts += step {
		if _, ok := present[ts]; !ok {
			missing = append(missing, ts)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// CoalesceRanges merges consecutive missing timestamps into ranges. Each
// range ends one interval after its last missing slot.
func CoalesceRanges(missing []int64, interval time.Duration) []Range {
	if len(missing) == 0 {
		return nil
	}
	step := interval.Milliseconds()
	var ranges []Range
	startMs := missing[0]
	prev := missing[0]
	for _, ts := range missing[1:] {
		if ts-prev != step {
			ranges = append(ranges, Range{
				Start: time.UnixMilli(startMs).UTC(),
				End:   time.UnixMilli(prev + step).UTC(),
			})
			startMs = ts
		}
		prev = ts
	}
	ranges = append(ranges, Range{
		Start: time.UnixMilli(startMs).UTC(),
		End:   time.UnixMilli(prev + step).UTC(),
	})
	return ranges
}

// Backfiller detects gaps in stored series and fills them from an exchange.
type Backfiller struct {
	client  exchange.Client
	manager *storage.Manager
	logger  *slog.Logger
}

// NewBackfiller creates a Backfiller.
func NewBackfiller(client exchange.Client, manager *storage.Manager, logger *slog.Logger) *Backfiller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfiller{client: client, manager: manager, logger: logger.With("component", "gap_backfiller")}
}

// Detect returns the missing ranges of a dataset inside [start, end].
func (b *Backfiller) Detect(ctx context.Context, meta models.Metadata, start, end time.Time) ([]Range, error) {
	interval, err := ParseInterval(meta.Normalize().Interval)
	if err != nil {
		return nil, err
	}
	batch, err := b.manager.GetRange(ctx, meta, storage.RangeQuery{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("failed to read stored series for %s: %w", meta, err)
	}
	var records []models.OHLCVRecord
	if batch != nil {
		records = batch.Records
	}
	missing := MissingTimestamps(records, interval, start, end)
	return CoalesceRanges(missing, interval), nil
}

// Backfill fetches every missing range from the exchange and appends the
// results. Returns the number of records written.
func (b *Backfiller) Backfill(ctx context.Context, meta models.Metadata, start, end time.Time) (int, error) {
	ranges, err := b.Detect(ctx, meta, start, end)
	if err != nil {
		return 0, err
	}
	if len(ranges) == 0 {
		b.logger.Info("no gaps to fill", "dataset", meta.String())
		return 0, nil
	}
	n := meta.Normalize()
	filled := 0
	for _, r := range ranges {
		batch, err := b.client.FetchCandles(ctx, exchange.FetchRequest{
			Coin:     n.Coin,
			Interval: n.Interval,
			Start:    r.Start,
			End:      r.End.Add(-time.Millisecond),
		})
		if err != nil {
			return filled, fmt.Errorf("failed to fetch gap %s..%s: %w", r.Start, r.End, err)
		}
		if batch.IsEmpty() {
			b.logger.Warn("exchange returned no data for gap",
				"dataset", meta.String(), "start", r.Start, "end", r.End)
			continue
		}
		batch.Metadata = n
		if err := b.manager.SaveEntry(ctx, batch, storage.ModeAppend); err != nil {
			return filled, fmt.Errorf("failed to save gap fill: %w", err)
		}
		filled += batch.Len()
		b.logger.Info("filled gap", "dataset", meta.String(),
			"start", r.Start, "end", r.End, "records", batch.Len())
	}
	return filled, nil
}
