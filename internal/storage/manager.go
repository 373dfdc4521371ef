package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cbtrade/mdstore/internal/models"
	"github.com/cbtrade/mdstore/internal/table"
)

// Write modes accepted by SaveEntry.
const (
	ModeAppend    = table.ModeAppend
	ModeOverwrite = table.ModeOverwrite
)

// Manager is the façade collaborators use to persist and query record
// batches. It composes a Backend with path and partition strategies and the
// table engine, and never exposes physical layout to its callers.
//
// A Manager assumes a single caller at a time; it holds no locks of its own.
type Manager struct {
	backend    Backend
	paths      PathStrategy
	partitions PartitionStrategy
	reader     *table.Reader
	writer     *table.Writer
	logger     *slog.Logger
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithPathStrategy overrides the default OHLCV path strategy.
func WithPathStrategy(s PathStrategy) ManagerOption {
	return func(m *Manager) { m.paths = s }
}

// WithPartitionStrategy overrides the default calendar partition strategy.
func WithPartitionStrategy(s PartitionStrategy) ManagerOption {
	return func(m *Manager) { m.partitions = s }
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a Manager over the given backend. A nil backend is a
// configuration error.
func NewManager(backend Backend, opts ...ManagerOption) (*Manager, error) {
	if backend == nil {
		return nil, fmt.Errorf("manager requires a storage backend")
	}
	m := &Manager{
		backend:    backend,
		paths:      NewOHLCVPathStrategy(),
		partitions: NewCalendarPartitionStrategy(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "storage_manager", "backend", backend.Kind())
	m.reader = table.NewReader(backend, models.ColTimestamp, m.logger)
	m.writer = table.NewWriter(backend, models.ColTimestamp, m.logger)
	return m, nil
}

// Backend returns the underlying byte backend.
func (m *Manager) Backend() Backend { return m.backend }

// SaveEntry persists a batch to the dataset's table. Mode is "append" or
// "overwrite". Saving an empty batch is a warned no-op that leaves storage
// untouched.
func (m *Manager) SaveEntry(ctx context.Context, batch *models.Batch, mode string) error {
	if batch == nil || batch.IsEmpty() {
		m.logger.Warn("skipping save of empty batch")
		return nil
	}
	if err := batch.Validate(); err != nil {
		return err
	}
	basePath, err := m.paths.BasePath(batch.Metadata)
	if err != nil {
		return err
	}
	partitionCols := m.partitions.PartitionColumns(batch.Metadata)
	if err := m.writer.Save(ctx, basePath, batch.ToFrame(), mode, partitionCols); err != nil {
		m.logger.Error("batch save failed", "path", basePath, "mode", mode, "error", err)
		return fmt.Errorf("failed to save batch to %s: %w", basePath, err)
	}
	m.logger.Info("saved batch", "path", basePath, "mode", mode, "records", batch.Len())
	return nil
}

// RangeQuery describes a GetRange call: the inclusive time range, an
// optional column projection, extra filters, and pagination. Limit <= 0
// means no limit; Offset past the end yields an empty batch.
type RangeQuery struct {
	Start   time.Time
	End     time.Time
	Columns []string
	Filters []table.Filter
	Limit   int
	Offset  int
}

// GetRange reads records of a dataset inside a time range. The full
// filtered result is retrieved first and pagination slices it afterwards,
// so a fixed limit/offset walk is consistent within an unchanged table.
// Returns nil when the dataset's table does not exist, and an empty batch
// when it exists but holds no matching rows.
func (m *Manager) GetRange(ctx context.Context, meta models.Metadata, q RangeQuery) (*models.Batch, error) {
	basePath, err := m.paths.BasePath(meta)
	if err != nil {
		return nil, err
	}
	frame, err := m.reader.LoadRange(ctx, basePath, q.Start, q.End, q.Filters, q.Columns)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", basePath, err)
	}
	if frame == nil {
		m.logger.Debug("table does not exist", "path", basePath)
		return nil, nil
	}
	if q.Offset > 0 || q.Limit > 0 {
		frame = frame.Slice(q.Offset, q.Limit)
	}
	return models.BatchFromFrame(meta, frame), nil
}

// ListCoins returns the coins stored for an exchange and data type,
// upper-cased and sorted.
func (m *Manager) ListCoins(ctx context.Context, exchange, dataType string) ([]string, error) {
	if strings.TrimSpace(exchange) == "" {
		return nil, fmt.Errorf("exchange is required to list coins")
	}
	prefix, err := m.paths.PathPrefix(models.Metadata{DataType: dataType, Exchange: exchange})
	if err != nil {
		return nil, err
	}
	dirs, err := m.backend.ListDirectories(ctx, prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list coins under %s: %w", prefix, err)
	}
	coins := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		segments := strings.Split(strings.Trim(dir, "/"), "/")
		coins = append(coins, strings.ToUpper(segments[len(segments)-1]))
	}
	sort.Strings(coins)
	return coins, nil
}

// CheckCoinExists reports whether any data is stored for the full
// descriptor.
func (m *Manager) CheckCoinExists(ctx context.Context, exchange, coin, dataType, interval string) (bool, error) {
	basePath, err := m.paths.BasePath(models.Metadata{
		DataType: dataType,
		Exchange: exchange,
		Coin:     coin,
		Interval: interval,
	})
	if err != nil {
		return false, err
	}
	items, err := m.backend.ListItems(ctx, basePath+"/")
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", basePath, err)
	}
	return len(items) > 0, nil
}
