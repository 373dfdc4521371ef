package table

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cbtrade/mdstore/internal/columnar"
)

// Writer commits frames to tables inside a Backend.
type Writer struct {
	backend Backend
	tsCol   string
	logger  *slog.Logger
}

// NewWriter creates a table writer. tsCol names the millisecond timestamp
// column used for partition derivation and file statistics.
func NewWriter(backend Backend, tsCol string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{backend: backend, tsCol: tsCol, logger: logger.With("component", "table_writer")}
}

// Save commits the frame to the table at basePath. Mode "append" adds the
// new files to the table; "overwrite" makes them the entire table content.
// An empty frame with mode "overwrite" truncates the table while recording
// its schema; an empty append is a no-file commit.
//
// When partitionCols are the calendar set and the frame lacks them, they are
// derived from the UTC timestamp column; if the timestamp column is missing
// too, the write proceeds unpartitioned with a warning.
func (w *Writer) Save(ctx context.Context, basePath string, frame *columnar.Frame, mode string, partitionCols []string) error {
	if mode != ModeAppend && mode != ModeOverwrite {
		return fmt.Errorf("invalid write mode %q: must be %q or %q", mode, ModeAppend, ModeOverwrite)
	}
	if frame == nil {
		return fmt.Errorf("cannot save a nil frame")
	}
	commits, err := readLog(ctx, w.backend, basePath)
	if err != nil {
		return err
	}
	if err := w.backend.MakeDirs(ctx, basePath); err != nil {
		return err
	}

	frame, partitionCols = w.withPartitionColumns(basePath, frame, partitionCols)

	groups := groupByPartition(frame, partitionCols)
	files := make([]DataFile, 0, len(groups))
	for _, g := range groups {
		data, err := encodeFrame(g.frame)
		if err != nil {
			return fmt.Errorf("failed to encode data file for %s: %w", basePath, err)
		}
		path := basePath + "/"
		if dir := partitionDir(partitionCols, g.values); dir != "" {
			path += dir + "/"
		}
		path += "part-" + uuid.NewString() + ".parquet"
		if err := w.backend.SaveBytes(ctx, path, data); err != nil {
			w.logger.Error("data file write failed", "path", path, "error", err)
			return err
		}
		df := DataFile{
			Path:      path,
			Rows:      int64(g.frame.NumRows()),
			Partition: g.values,
			Schema:    g.frame.Fields(),
		}
		df.MinTimestamp, df.MaxTimestamp = timestampStats(g.frame, w.tsCol)
		files = append(files, df)
	}

	commit := Commit{
		Version:   nextVersion(commits),
		CreatedAt: time.Now().UnixMilli(),
		Operation: mode,
		Truncate:  mode == ModeOverwrite,
		Schema:    frame.Fields(),
		Files:     files,
	}
	if err := writeCommit(ctx, w.backend, basePath, commit); err != nil {
		return err
	}
	w.logger.Info("committed table version",
		"path", basePath,
		"version", commit.Version,
		"mode", mode,
		"files", len(files),
		"rows", frame.NumRows())
	return nil
}

// withPartitionColumns derives calendar partition columns from the timestamp
// column when they are requested but absent from the frame.
func (w *Writer) withPartitionColumns(basePath string, frame *columnar.Frame, partitionCols []string) (*columnar.Frame, []string) {
	if len(partitionCols) == 0 {
		return frame, nil
	}
	missing := false
	for _, col := range partitionCols {
		if !frame.HasColumn(col) {
			missing = true
			break
		}
	}
	if !missing {
		return frame, partitionCols
	}
	if !isCalendarSet(partitionCols) {
		w.logger.Warn("partition columns absent from data, writing unpartitioned",
			"path", basePath, "partition_columns", partitionCols)
		return frame, nil
	}
	tsCol := frame.Column(w.tsCol)
	if tsCol == nil || tsCol.Type != columnar.TypeInt64 {
		w.logger.Warn("timestamp column missing, writing unpartitioned",
			"path", basePath, "timestamp_column", w.tsCol)
		return frame, nil
	}
	n := frame.NumRows()
	years := make([]any, n)
	months := make([]any, n)
	days := make([]any, n)
	for i := 0; i < n; i++ {
		ms, ok := frame.Int64At(w.tsCol, i)
		if !ok {
			continue
		}
		t := time.UnixMilli(ms).UTC()
		years[i] = int32(t.Year())
		months[i] = int32(t.Month())
		days[i] = int32(t.Day())
	}
	out := columnar.New()
	for _, c := range frame.Fields() {
		col := frame.Column(c.Name)
		_ = out.AddColumn(col.Name, col.Type, col.Values)
	}
	_ = out.AddColumn(PartitionYear, columnar.TypeInt32, years)
	_ = out.AddColumn(PartitionMonth, columnar.TypeInt32, months)
	_ = out.AddColumn(PartitionDay, columnar.TypeInt32, days)
	return out, partitionCols
}

func isCalendarSet(cols []string) bool {
	if len(cols) != 3 {
		return false
	}
	seen := map[string]bool{}
	for _, c := range cols {
		seen[c] = true
	}
	return seen[PartitionYear] && seen[PartitionMonth] && seen[PartitionDay]
}

type partitionGroup struct {
	values map[string]int32
	frame  *columnar.Frame
}

// groupByPartition splits a frame into per-partition sub-frames, preserving
// row order inside each group. An empty partitionCols yields one group.
func groupByPartition(frame *columnar.Frame, partitionCols []string) []partitionGroup {
	if frame.NumRows() == 0 {
		return nil
	}
	if len(partitionCols) == 0 {
		return []partitionGroup{{frame: frame}}
	}
	type bucket struct {
		values  map[string]int32
		indices []int
	}
	order := make([]string, 0)
	buckets := make(map[string]*bucket)
	for i := 0; i < frame.NumRows(); i++ {
		values := make(map[string]int32, len(partitionCols))
		key := ""
		for _, col := range partitionCols {
			c := frame.Column(col)
			var v int32
			if c != nil && c.Values[i] != nil {
				if iv, ok := c.Values[i].(int32); ok {
					v = iv
				}
			}
			values[col] = v
			key += fmt.Sprintf("%s=%d/", col, v)
		}
		bk, ok := buckets[key]
		if !ok {
			bk = &bucket{values: values}
			buckets[key] = bk
			order = append(order, key)
		}
		bk.indices = append(bk.indices, i)
	}
	groups := make([]partitionGroup, 0, len(buckets))
	for _, key := range order {
		bk := buckets[key]
		groups = append(groups, partitionGroup{values: bk.values, frame: frame.Take(bk.indices)})
	}
	return groups
}

// timestampStats returns the min and max of the timestamp column, or nils
// when the column is absent or entirely null.
func timestampStats(frame *columnar.Frame, tsCol string) (*int64, *int64) {
	c := frame.Column(tsCol)
	if c == nil {
		return nil, nil
	}
	var minTS, maxTS int64
	found := false
	for i := range c.Values {
		v, ok := frame.Int64At(tsCol, i)
		if !ok {
			continue
		}
		if !found || v < minTS {
			minTS = v
		}
		if !found || v > maxTS {
			maxTS = v
		}
		found = true
	}
	if !found {
		return nil, nil
	}
	return &minTS, &maxTS
}
