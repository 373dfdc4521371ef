package table

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cbtrade/mdstore/internal/columnar"
)

// Reader answers range queries against tables inside a Backend.
type Reader struct {
	backend Backend
	tsCol   string
	logger  *slog.Logger
}

// NewReader creates a table reader. tsCol names the millisecond timestamp
// column used for range pruning; pass an empty string for tables without a
// time dimension.
func NewReader(backend Backend, tsCol string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{backend: backend, tsCol: tsCol, logger: logger.With("component", "table_reader")}
}

// LoadRange reads rows of the table at basePath whose timestamp falls in
// [start, end], both inclusive, with the extra filters ANDed in. A nil frame
// with a nil error means the table does not exist. Rows come back in commit
// order (insertion order), not sorted by time.
//
// Files whose recorded min/max timestamps fall entirely outside the range
// are never fetched. Only the columns needed by the projection and the
// filters are decoded; filter-only columns are dropped from the result.
func (r *Reader) LoadRange(ctx context.Context, basePath string, start, end time.Time, filters []Filter, columns []string) (*columnar.Frame, error) {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}
	commits, err := readLog(ctx, r.backend, basePath)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, nil
	}
	schema := mergedSchema(commits)
	files := liveFiles(commits)

	hasTS := false
	for _, f := range schema {
		if r.tsCol != "" && f.Name == r.tsCol {
			hasTS = true
			break
		}
	}
	if r.tsCol != "" && !hasTS {
		r.logger.Warn("timestamp column missing from table, skipping range filter",
			"path", basePath, "timestamp_column", r.tsCol)
	}
	startMs := start.UTC().UnixMilli()
	endMs := end.UTC().UnixMilli()

	wanted, projected, err := planColumns(schema, columns, filters, r.tsCol, hasTS)
	if err != nil {
		return nil, err
	}

	result := columnar.New()
	scanned, pruned := 0, 0
	for _, file := range files {
		if hasTS && file.MinTimestamp != nil && file.MaxTimestamp != nil &&
			(*file.MaxTimestamp < startMs || *file.MinTimestamp > endMs) {
			pruned++
			continue
		}
		data, err := r.backend.LoadBytes(ctx, file.Path)
		if err != nil {
			r.logger.Error("data file read failed", "path", file.Path, "error", err)
			return nil, fmt.Errorf("failed to read data file %s: %w", file.Path, err)
		}
		frame, err := decodeColumns(data, file.Schema, wanted)
		if err != nil {
			return nil, fmt.Errorf("failed to decode data file %s: %w", file.Path, err)
		}
		frame = filterRows(frame, r.tsCol, hasTS, startMs, endMs, filters)
		if err := result.Append(frame); err != nil {
			return nil, err
		}
		scanned++
	}
	r.logger.Debug("range scan complete",
		"path", basePath, "files_scanned", scanned, "files_pruned", pruned, "rows", result.NumRows())

	if len(result.Fields()) == 0 {
		// No live files: materialize the schema so callers see columns.
		for _, f := range wanted {
			_ = result.AddColumn(f.Name, f.Type, nil)
		}
	}
	if projected != nil {
		selected, err := result.Select(projected)
		if err != nil {
			return nil, err
		}
		return selected, nil
	}
	return result, nil
}

// Exists reports whether a table (any committed version) is present.
func (r *Reader) Exists(ctx context.Context, basePath string) (bool, error) {
	items, err := r.backend.ListItems(ctx, basePath+"/"+LogDir+"/")
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

// planColumns resolves the set of columns to decode (projection ∪ timestamp
// ∪ filter columns) and the final projection to return. A nil projection
// means "all decoded columns".
func planColumns(schema []columnar.Field, columns []string, filters []Filter, tsCol string, hasTS bool) (wanted []columnar.Field, projected []string, err error) {
	byName := make(map[string]columnar.Field, len(schema))
	for _, f := range schema {
		byName[f.Name] = f
	}
	if columns == nil {
		return schema, nil, nil
	}
	seen := make(map[string]struct{})
	add := func(name string) error {
		if _, ok := seen[name]; ok {
			return nil
		}
		f, ok := byName[name]
		if !ok {
			return fmt.Errorf("unknown column %q", name)
		}
		seen[name] = struct{}{}
		wanted = append(wanted, f)
		return nil
	}
	for _, name := range columns {
		if err := add(name); err != nil {
			return nil, nil, err
		}
	}
	if hasTS {
		if err := add(tsCol); err != nil {
			return nil, nil, err
		}
	}
	for _, f := range filters {
		if err := add(f.Column); err != nil {
			return nil, nil, err
		}
	}
	return wanted, columns, nil
}

// filterRows applies the time range and extra filters, keeping row order.
func filterRows(frame *columnar.Frame, tsCol string, hasTS bool, startMs, endMs int64, filters []Filter) *columnar.Frame {
	if !hasTS && len(filters) == 0 {
		return frame
	}
	keep := make([]int, 0, frame.NumRows())
rows:
	for i := 0; i < frame.NumRows(); i++ {
		if hasTS {
			ts, ok := frame.Int64At(tsCol, i)
			if !ok || ts < startMs || ts > endMs {
				continue
			}
		}
		for _, f := range filters {
			c := frame.Column(f.Column)
			if c == nil || !f.Matches(c.Values[i]) {
				continue rows
			}
		}
		keep = append(keep, i)
	}
	if len(keep) == frame.NumRows() {
		return frame
	}
	return frame.Take(keep)
}
