package historical

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cbtrade/mdstore/internal/models"
)

// DefaultChunkSize is the page size used when a stream request does not set
// one.
const DefaultChunkSize = 1000

// Manager coordinates the read-side API: paged fetches, latest-entry
// lookups, and chunked streaming of a time range into a Sink.
type Manager struct {
	fetcher *Fetcher
	current *CurrentFetcher
	logger  *slog.Logger
}

// NewManager creates the historical manager.
func NewManager(fetcher *Fetcher, current *CurrentFetcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{fetcher: fetcher, current: current, logger: logger.With("component", "historical_manager")}
}

// FetchData proxies a single paged fetch.
func (m *Manager) FetchData(ctx context.Context, meta models.Metadata, start, end time.Time, limit, offset int) (*models.Batch, error) {
	return m.fetcher.FetchData(ctx, meta, start, end, limit, offset)
}

// GetMostCurrentData returns the latest record inside the current fetcher's
// trailing window, or nil when there is none.
func (m *Manager) GetMostCurrentData(ctx context.Context, meta models.Metadata) (*models.OHLCVRecord, error) {
	return m.current.GetLatestEntry(ctx, meta)
}

// StreamHistoricalData pages through [start, end] in chunkSize steps and
// pushes each non-empty page to the sink, followed by a completion message.
// On a fetch or sink failure the loop stops early; an error message is sent
// to the sink best-effort before returning.
func (m *Manager) StreamHistoricalData(ctx context.Context, meta models.Metadata, start, end time.Time, sink Sink, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	n := meta.Normalize()
	base := Message{Exchange: n.Exchange, Coin: n.Coin, Interval: n.Interval}

	offset := 0
	for {
		batch, err := m.fetcher.FetchData(ctx, meta, start, end, chunkSize, offset)
		if err != nil {
			m.sendError(ctx, sink, base, err)
			return err
		}
		if batch.Len() > 0 {
			msg := base
			msg.Type = MessageTypeChunk
			msg.Offset = offset
			msg.Data = batch.Records
			if err := sink.Send(ctx, msg); err != nil {
				m.logger.Error("sink rejected chunk, terminating stream",
					"dataset", meta.String(), "offset", offset, "error", err)
				m.sendError(ctx, sink, base, err)
				return fmt.Errorf("failed to stream chunk at offset %d: %w", offset, err)
			}
		}
		if batch.Len() < chunkSize {
			break
		}
		offset += chunkSize
	}

	done := base
	done.Type = MessageTypeComplete
	if err := sink.Send(ctx, done); err != nil {
		m.logger.Warn("failed to send completion message", "dataset", meta.String(), "error", err)
	}
	m.logger.Info("historical stream complete", "dataset", meta.String(), "final_offset", offset)
	return nil
}

// sendError pushes an error message to the sink, swallowing any failure.
func (m *Manager) sendError(ctx context.Context, sink Sink, base Message, cause error) {
	msg := base
	msg.Type = MessageTypeError
	msg.Error = cause.Error()
	if err := sink.Send(ctx, msg); err != nil {
		m.logger.Debug("failed to deliver error message to sink", "error", err)
	}
}
