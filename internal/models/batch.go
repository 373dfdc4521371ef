package models

import (
	"fmt"

	"github.com/cbtrade/mdstore/internal/columnar"
)

// Column names of the canonical OHLCV frame schema.
const (
	ColTimestamp = "timestamp"
	ColOpen      = "open"
	ColHigh      = "high"
	ColLow       = "low"
	ColClose     = "close"
	ColVolume    = "volume"
)

// Batch is an ordered set of records tied to a dataset descriptor.
// An empty batch is valid and round-trips to a zero-row frame.
type Batch struct {
	Metadata Metadata
	Records  []OHLCVRecord
}

// NewBatch builds a batch with a normalized descriptor.
func NewBatch(meta Metadata, records []OHLCVRecord) *Batch {
	return &Batch{Metadata: meta.Normalize(), Records: records}
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// IsEmpty reports whether the batch holds no records.
func (b *Batch) IsEmpty() bool {
	return b.Len() == 0
}

// Timestamps returns the record timestamps in batch order.
func (b *Batch) Timestamps() []int64 {
	out := make([]int64, b.Len())
	for i, r := range b.Records {
		out[i] = r.Timestamp
	}
	return out
}

// Validate validates every record, failing on the first invalid one.
func (b *Batch) Validate() error {
	for i, r := range b.Records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// ToFrame converts the batch to a columnar frame using the canonical schema.
// The frame owns fresh value slices; mutating it never touches the batch.
func (b *Batch) ToFrame() *columnar.Frame {
	n := b.Len()
	ts := make([]any, n)
	open := make([]any, n)
	high := make([]any, n)
	low := make([]any, n)
	closeP := make([]any, n)
	volume := make([]any, n)
	for i, r := range b.Records {
		ts[i] = r.Timestamp
		open[i] = r.Open
		high[i] = r.High
		low[i] = r.Low
		closeP[i] = r.Close
		volume[i] = r.Volume
	}
	f := columnar.New()
	_ = f.AddColumn(ColTimestamp, columnar.TypeInt64, ts)
	_ = f.AddColumn(ColOpen, columnar.TypeFloat64, open)
	_ = f.AddColumn(ColHigh, columnar.TypeFloat64, high)
	_ = f.AddColumn(ColLow, columnar.TypeFloat64, low)
	_ = f.AddColumn(ColClose, columnar.TypeFloat64, closeP)
	_ = f.AddColumn(ColVolume, columnar.TypeFloat64, volume)
	return f
}

// BatchFromFrame converts a frame back into a batch. Columns missing from the
// frame read as zero values; null cells read as zero. Extra frame columns
// (partition columns, for example) are ignored.
func BatchFromFrame(meta Metadata, f *columnar.Frame) *Batch {
	n := f.NumRows()
	records := make([]OHLCVRecord, n)
	for i := 0; i < n; i++ {
		r := OHLCVRecord{}
		if v, ok := f.Int64At(ColTimestamp, i); ok {
			r.Timestamp = v
		}
		if v, ok := f.Float64At(ColOpen, i); ok {
			r.Open = v
		}
		if v, ok := f.Float64At(ColHigh, i); ok {
			r.High = v
		}
		if v, ok := f.Float64At(ColLow, i); ok {
			r.Low = v
		}
		if v, ok := f.Float64At(ColClose, i); ok {
			r.Close = v
		}
		if v, ok := f.Float64At(ColVolume, i); ok {
			r.Volume = v
		}
		records[i] = r
	}
	return NewBatch(meta, records)
}
