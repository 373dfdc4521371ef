package storage

import (
	"github.com/cbtrade/mdstore/internal/models"
	"github.com/cbtrade/mdstore/internal/table"
)

// Calendar partition column names derived from the record timestamp.
const (
	PartitionYear  = table.PartitionYear
	PartitionMonth = table.PartitionMonth
	PartitionDay   = table.PartitionDay
)

// PartitionStrategy decides which columns a dataset is partitioned by.
// Partition columns control physical file layout only; they never change
// the logical content of a table.
type PartitionStrategy interface {
	PartitionColumns(meta models.Metadata) []string
}

// CalendarPartitionStrategy partitions by year/month/day derived from the
// millisecond timestamp column at write time.
type CalendarPartitionStrategy struct{}

// NewCalendarPartitionStrategy returns the year/month/day strategy.
func NewCalendarPartitionStrategy() *CalendarPartitionStrategy {
	return &CalendarPartitionStrategy{}
}

// PartitionColumns implements PartitionStrategy.
func (s *CalendarPartitionStrategy) PartitionColumns(models.Metadata) []string {
	return []string{PartitionYear, PartitionMonth, PartitionDay}
}

// NoPartitionStrategy writes every commit as unpartitioned files.
type NoPartitionStrategy struct{}

// NewNoPartitionStrategy returns the unpartitioned strategy.
func NewNoPartitionStrategy() *NoPartitionStrategy {
	return &NoPartitionStrategy{}
}

// PartitionColumns implements PartitionStrategy.
func (s *NoPartitionStrategy) PartitionColumns(models.Metadata) []string {
	return nil
}
