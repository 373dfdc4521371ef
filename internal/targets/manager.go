// Package targets manages the list of collection targets as a small table
// stored at a fixed path inside the storage backend.
package targets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cbtrade/mdstore/internal/columnar"
	"github.com/cbtrade/mdstore/internal/storage"
	"github.com/cbtrade/mdstore/internal/table"
)

// TablePath is where the target list lives inside the backend.
const TablePath = "targets"

// Target is one dataset to collect.
type Target struct {
	ID          string `json:"target_id"`
	Coin        string `json:"coin"`
	Exchange    string `json:"exchange"`
	ExchangeID  string `json:"exchange_id"`
	Interval    string `json:"interval"`
	Enabled     bool   `json:"enabled"`
	LastUpdated int64  `json:"last_updated"`
}

// ErrTargetNotFound is returned when an ID does not match any target.
var ErrTargetNotFound = fmt.Errorf("target not found")

// Manager provides CRUD over the target table. Updates and deletes rewrite
// the whole table; deleting the last target leaves an empty table behind,
// not a missing one.
type Manager struct {
	reader *table.Reader
	writer *table.Writer
	logger *slog.Logger
}

// NewManager creates a target manager over the given backend.
func NewManager(backend storage.Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "target_manager")
	return &Manager{
		// Targets have no time dimension; the reader runs without range
		// pruning.
		reader: table.NewReader(backend, "", logger),
		writer: table.NewWriter(backend, "", logger),
		logger: logger,
	}
}

// Add stores a new target. A missing ID is generated; LastUpdated is set to
// now.
func (m *Manager) Add(ctx context.Context, t Target) (Target, error) {
	if t.Coin == "" || t.Exchange == "" || t.Interval == "" {
		return Target{}, fmt.Errorf("target requires coin, exchange and interval")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.LastUpdated = time.Now().UnixMilli()
	if err := m.writer.Save(ctx, TablePath, frameOf([]Target{t}), table.ModeAppend, nil); err != nil {
		return Target{}, fmt.Errorf("failed to add target: %w", err)
	}
	m.logger.Info("added target", "target_id", t.ID, "coin", t.Coin, "exchange", t.Exchange)
	return t, nil
}

// Get returns the target with the given ID.
func (m *Manager) Get(ctx context.Context, id string) (Target, error) {
	frame, err := m.reader.LoadRange(ctx, TablePath, time.Time{}, time.Time{},
		[]table.Filter{{Column: "target_id", Op: "==", Value: id}}, nil)
	if err != nil {
		return Target{}, fmt.Errorf("failed to read targets: %w", err)
	}
	targets := targetsOf(frame)
	if len(targets) == 0 {
		return Target{}, fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}
	return targets[len(targets)-1], nil
}

// List returns all targets. When enabledOnly is true, disabled targets are
// filtered out server-side.
func (m *Manager) List(ctx context.Context, enabledOnly bool) ([]Target, error) {
	var filters []table.Filter
	if enabledOnly {
		filters = []table.Filter{{Column: "enabled", Op: "==", Value: true}}
	}
	frame, err := m.reader.LoadRange(ctx, TablePath, time.Time{}, time.Time{}, filters, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets: %w", err)
	}
	return targetsOf(frame), nil
}

// Update applies mutate to the stored target and rewrites the table.
func (m *Manager) Update(ctx context.Context, id string, mutate func(*Target)) (Target, error) {
	all, err := m.List(ctx, false)
	if err != nil {
		return Target{}, err
	}
	var updated *Target
	for i := range all {
		if all[i].ID == id {
			mutate(&all[i])
			all[i].ID = id // the ID itself is immutable
			all[i].LastUpdated = time.Now().UnixMilli()
			updated = &all[i]
			break
		}
	}
	if updated == nil {
		return Target{}, fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}
	if err := m.writer.Save(ctx, TablePath, frameOf(all), table.ModeOverwrite, nil); err != nil {
		return Target{}, fmt.Errorf("failed to update target: %w", err)
	}
	m.logger.Info("updated target", "target_id", id)
	return *updated, nil
}

// Delete removes the target and rewrites the table. Removing the last
// target commits an empty overwrite so the table keeps existing.
func (m *Manager) Delete(ctx context.Context, id string) error {
	all, err := m.List(ctx, false)
	if err != nil {
		return err
	}
	kept := make([]Target, 0, len(all))
	for _, t := range all {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(all) {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, id)
	}
	if err := m.writer.Save(ctx, TablePath, frameOf(kept), table.ModeOverwrite, nil); err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	m.logger.Info("deleted target", "target_id", id)
	return nil
}

func frameOf(targets []Target) *columnar.Frame {
	n := len(targets)
	ids := make([]any, n)
	coins := make([]any, n)
	exchanges := make([]any, n)
	exchangeIDs := make([]any, n)
	intervals := make([]any, n)
	enabled := make([]any, n)
	updated := make([]any, n)
	for i, t := range targets {
		ids[i] = t.ID
		coins[i] = t.Coin
		exchanges[i] = t.Exchange
		exchangeIDs[i] = t.ExchangeID
		intervals[i] = t.Interval
		enabled[i] = t.Enabled
		updated[i] = t.LastUpdated
	}
	f := columnar.New()
	_ = f.AddColumn("target_id", columnar.TypeString, ids)
	_ = f.AddColumn("coin", columnar.TypeString, coins)
	_ = f.AddColumn("exchange", columnar.TypeString, exchanges)
	_ = f.AddColumn("exchange_id", columnar.TypeString, exchangeIDs)
	_ = f.AddColumn("interval", columnar.TypeString, intervals)
	_ = f.AddColumn("enabled", columnar.TypeBool, enabled)
	_ = f.AddColumn("last_updated", columnar.TypeInt64, updated)
	return f
}

func targetsOf(frame *columnar.Frame) []Target {
	if frame == nil {
		return nil
	}
	out := make([]Target, 0, frame.NumRows())
	for i := 0; i < frame.NumRows(); i++ {
		t := Target{}
		t.ID, _ = frame.StringAt("target_id", i)
		t.Coin, _ = frame.StringAt("coin", i)
		t.Exchange, _ = frame.StringAt("exchange", i)
		t.ExchangeID, _ = frame.StringAt("exchange_id", i)
		t.Interval, _ = frame.StringAt("interval", i)
		t.Enabled, _ = frame.BoolAt("enabled", i)
		t.LastUpdated, _ = frame.Int64At("last_updated", i)
		out = append(out, t)
	}
	return out
}
