// Package collector drives the ingestion loop: for every enabled target it
// fetches new candles from the exchange and appends them to storage,
// resuming from the most recent stored record.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cbtrade/mdstore/internal/exchange"
	"github.com/cbtrade/mdstore/internal/gaps"
	"github.com/cbtrade/mdstore/internal/historical"
	"github.com/cbtrade/mdstore/internal/models"
	"github.com/cbtrade/mdstore/internal/storage"
	"github.com/cbtrade/mdstore/internal/targets"
)

// Collector orchestrates one collection pass over the target list.
// Targets are processed sequentially; one failing target does not stop the
// pass.
type Collector struct {
	targets  *targets.Manager
	client   exchange.Client
	manager  *storage.Manager
	current  *historical.CurrentFetcher
	lookback time.Duration
	logger   *slog.Logger
}

// New creates a Collector. lookback bounds how far back a first collection
// for a fresh target reaches.
func New(tm *targets.Manager, client exchange.Client, manager *storage.Manager, current *historical.CurrentFetcher, lookback time.Duration, logger *slog.Logger) *Collector {
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		targets:  tm,
		client:   client,
		manager:  manager,
		current:  current,
		lookback: lookback,
		logger:   logger.With("component", "collector"),
	}
}

// RunOnce collects every enabled target once. Returns the total number of
// records written and the first error encountered (after finishing the
// pass).
func (c *Collector) RunOnce(ctx context.Context) (int, error) {
	enabled, err := c.targets.List(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("failed to list targets: %w", err)
	}
	if len(enabled) == 0 {
		c.logger.Info("no enabled targets")
		return 0, nil
	}
	total := 0
	var firstErr error
	for _, t := range enabled {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := c.CollectTarget(ctx, t)
		total += n
		if err != nil {
			c.logger.Error("target collection failed",
				"target_id", t.ID, "coin", t.Coin, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	c.logger.Info("collection pass complete", "targets", len(enabled), "records", total)
	return total, firstErr
}

// CollectTarget fetches and stores new candles for a single target.
func (c *Collector) CollectTarget(ctx context.Context, t targets.Target) (int, error) {
	meta := models.Metadata{
		DataType: models.DataTypeOHLCV,
		Exchange: t.Exchange,
		Coin:     t.Coin,
		Interval: t.Interval,
	}
	interval, err := gaps.ParseInterval(meta.Normalize().Interval)
	if err != nil {
		return 0, err
	}

	end := time.Now().UTC()
	start := end.Add(-c.lookback)
	latest, err := c.current.GetLatestEntry(ctx, meta)
	if err != nil {
		return 0, err
	}
	if latest != nil {
		resume := latest.Time().Add(interval)
		if resume.After(start) {
			start = resume
		}
	}
	if !start.Before(end) {
		c.logger.Debug("target already current", "target_id", t.ID, "coin", t.Coin)
		return 0, nil
	}

	batch, err := c.client.FetchCandles(ctx, exchange.FetchRequest{
		Coin:     t.Coin,
		Interval: t.Interval,
		Start:    start,
		End:      end,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch failed: %w", err)
	}
	if batch.IsEmpty() {
		c.logger.Debug("no new candles", "target_id", t.ID, "coin", t.Coin)
		return 0, nil
	}
	batch.Metadata = meta.Normalize()
	if err := c.manager.SaveEntry(ctx, batch, storage.ModeAppend); err != nil {
		return 0, fmt.Errorf("save failed: %w", err)
	}
	c.logger.Info("collected target",
		"target_id", t.ID, "coin", t.Coin, "records", batch.Len(),
		"start", start, "end", end)
	return batch.Len(), nil
}
