package table

import "context"

// Backend is the slice of the storage backend surface the table engine
// needs. The storage package's backends satisfy it.
type Backend interface {
	SaveBytes(ctx context.Context, identifier string, data []byte) error
	LoadBytes(ctx context.Context, identifier string) ([]byte, error)
	ListItems(ctx context.Context, prefix string) ([]string, error)
	MakeDirs(ctx context.Context, identifier string) error
}

// Calendar partition column names derived from the timestamp column.
const (
	PartitionYear  = "year"
	PartitionMonth = "month"
	PartitionDay   = "day"
)
