// Package models provides the core data structures for OHLCV market data:
// dataset descriptors, records, and record batches with columnar conversion.
package models

import (
	"fmt"
	"strings"
)

// DataTypeOHLCV is the data-type tag for candle datasets.
const DataTypeOHLCV = "ohlcv"

// Metadata describes a dataset: what kind of data it is and which
// exchange/coin/interval it belongs to. It is the input to path strategies
// and travels with every batch.
type Metadata struct {
	DataType string `json:"data_type"`
	Exchange string `json:"exchange"`
	Coin     string `json:"coin"`
	Interval string `json:"interval"`
}

// Normalize returns the canonical form of the descriptor:
// data type and interval lower-cased, exchange lower-cased with internal
// spaces replaced by underscores, coin upper-cased with "/" replaced by "_".
// Surrounding whitespace is trimmed from every field.
func (m Metadata) Normalize() Metadata {
	return Metadata{
		DataType: strings.ToLower(strings.TrimSpace(m.DataType)),
		Exchange: strings.ReplaceAll(strings.ToLower(strings.TrimSpace(m.Exchange)), " ", "_"),
		Coin:     strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(m.Coin)), "/", "_"),
		Interval: strings.ToLower(strings.TrimSpace(m.Interval)),
	}
}

// Equal reports whether two descriptors identify the same dataset after
// normalization.
func (m Metadata) Equal(other Metadata) bool {
	return m.Normalize() == other.Normalize()
}

// String returns a compact human-readable form of the descriptor.
func (m Metadata) String() string {
	n := m.Normalize()
	return fmt.Sprintf("%s/%s/%s/%s", n.DataType, n.Exchange, n.Coin, n.Interval)
}
