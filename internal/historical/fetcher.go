// Package historical serves stored OHLCV data to read-side consumers:
// paged fetches, latest-entry lookups and chunked streaming into a push sink.
package historical

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cbtrade/mdstore/internal/models"
	"github.com/cbtrade/mdstore/internal/storage"
)

// Fetcher answers paged historical queries. Unlike the storage manager it
// never returns a nil batch: a missing dataset reads as empty.
type Fetcher struct {
	manager *storage.Manager
	logger  *slog.Logger
}

// NewFetcher creates a historical fetcher over the storage manager.
func NewFetcher(manager *storage.Manager, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{manager: manager, logger: logger.With("component", "historical_fetcher")}
}

// FetchData reads one page of records for the dataset inside [start, end].
// Limit <= 0 means no limit. The result is never nil.
func (f *Fetcher) FetchData(ctx context.Context, meta models.Metadata, start, end time.Time, limit, offset int) (*models.Batch, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset must be non-negative, got %d", offset)
	}
	batch, err := f.manager.GetRange(ctx, meta, storage.RangeQuery{
		Start:  start,
		End:    end,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", meta, err)
	}
	if batch == nil {
		f.logger.Debug("no stored data for dataset", "dataset", meta.String())
		return models.NewBatch(meta, nil), nil
	}
	return batch, nil
}

// DefaultLatestWindow bounds how far back GetLatestEntry looks.
const DefaultLatestWindow = 24 * time.Hour

// CurrentFetcher resolves the most recent stored record of a dataset by
// scanning a bounded trailing window rather than the whole table. Records
// older than the window are not found; callers treat that as "no current
// data".
type CurrentFetcher struct {
	manager *storage.Manager
	window  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewCurrentFetcher creates a CurrentFetcher. A non-positive window falls
// back to DefaultLatestWindow.
func NewCurrentFetcher(manager *storage.Manager, window time.Duration, logger *slog.Logger) *CurrentFetcher {
	if window <= 0 {
		window = DefaultLatestWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CurrentFetcher{
		manager: manager,
		window:  window,
		logger:  logger.With("component", "current_fetcher"),
		now:     time.Now,
	}
}

// GetLatestEntry returns the record with the maximum timestamp inside the
// trailing window, or nil when the window holds no data (or the dataset does
// not exist).
func (f *CurrentFetcher) GetLatestEntry(ctx context.Context, meta models.Metadata) (*models.OHLCVRecord, error) {
	end := f.now().UTC()
	start := end.Add(-f.window)
	batch, err := f.manager.GetRange(ctx, meta, storage.RangeQuery{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest entry for %s: %w", meta, err)
	}
	if batch == nil || batch.IsEmpty() {
		return nil, nil
	}
	latest := batch.Records[0]
	for _, r := range batch.Records[1:] {
		if r.Timestamp > latest.Timestamp {
			latest = r
		}
	}
	return &latest, nil
}
