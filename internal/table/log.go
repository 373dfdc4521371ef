// Package table implements a versioned columnar table stored inside a byte
// Backend: a monotonically numbered JSON commit log under _log/ plus
// immutable parquet data files, optionally laid out in calendar partitions.
// Reads replay the log, prune files by timestamp statistics and decode only
// the columns a query needs.
package table

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cbtrade/mdstore/internal/columnar"
)

// LogDir is the directory holding commit files under a table base path.
const LogDir = "_log"

// Write modes accepted by Save.
const (
	ModeAppend    = "append"
	ModeOverwrite = "overwrite"
)

// DataFile describes one immutable parquet file added by a commit.
// Timestamp statistics are milliseconds since epoch and are nil when the
// file has no timestamp column.
type DataFile struct {
	Path         string           `json:"path"`
	Rows         int64            `json:"rows"`
	MinTimestamp *int64           `json:"min_timestamp,omitempty"`
	MaxTimestamp *int64           `json:"max_timestamp,omitempty"`
	Partition    map[string]int32 `json:"partition,omitempty"`
	Schema       []columnar.Field `json:"schema"`
}

// Commit is one entry of the table log. A truncating commit discards every
// file added by earlier versions.
type Commit struct {
	Version   int64            `json:"version"`
	CreatedAt int64            `json:"created_at"`
	Operation string           `json:"operation"`
	Truncate  bool             `json:"truncate"`
	Schema    []columnar.Field `json:"schema"`
	Files     []DataFile       `json:"files"`
}

func commitPath(basePath string, version int64) string {
	return fmt.Sprintf("%s/%s/%020d.json", basePath, LogDir, version)
}

// readLog loads every commit of the table at basePath, ordered by version.
// A table with no log directory yields an empty slice and no error.
func readLog(ctx context.Context, backend Backend, basePath string) ([]Commit, error) {
	items, err := backend.ListItems(ctx, basePath+"/"+LogDir+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list commit log at %s: %w", basePath, err)
	}
	commits := make([]Commit, 0, len(items))
	for _, item := range items {
		if !strings.HasSuffix(item, ".json") {
			continue
		}
		data, err := backend.LoadBytes(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("failed to load commit %s: %w", item, err)
		}
		var c Commit
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to decode commit %s: %w", item, err)
		}
		commits = append(commits, c)
	}
	sort.Slice(commits, func(i, j int) bool { return commits[i].Version < commits[j].Version })
	return commits, nil
}

// writeCommit persists a commit as the next log entry.
func writeCommit(ctx context.Context, backend Backend, basePath string, c Commit) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode commit %d: %w", c.Version, err)
	}
	if err := backend.SaveBytes(ctx, commitPath(basePath, c.Version), data); err != nil {
		return fmt.Errorf("failed to write commit %d: %w", c.Version, err)
	}
	return nil
}

// liveFiles replays the log and returns the files visible at the latest
// version, in commit order.
func liveFiles(commits []Commit) []DataFile {
	var files []DataFile
	for _, c := range commits {
		if c.Truncate {
			files = files[:0]
		}
		files = append(files, c.Files...)
	}
	return files
}

// mergedSchema unions the schemas recorded across commits and files,
// keeping first-seen column order. Later type conflicts keep the first type.
func mergedSchema(commits []Commit) []columnar.Field {
	var fields []columnar.Field
	seen := make(map[string]struct{})
	add := func(fs []columnar.Field) {
		for _, f := range fs {
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = struct{}{}
			fields = append(fields, f)
		}
	}
	truncated := 0
	for i, c := range commits {
		if c.Truncate {
			truncated = i
		}
	}
	for _, c := range commits[truncated:] {
		add(c.Schema)
		for _, f := range c.Files {
			add(f.Schema)
		}
	}
	return fields
}

// nextVersion returns the version number for a new commit.
func nextVersion(commits []Commit) int64 {
	if len(commits) == 0 {
		return 0
	}
	return commits[len(commits)-1].Version + 1
}
