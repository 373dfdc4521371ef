package storage

import (
	"fmt"
	"strings"

	"github.com/cbtrade/mdstore/internal/models"
)

// PathStrategy maps dataset descriptors onto storage paths and back.
// Implementations are pure: no I/O, no state beyond configuration.
type PathStrategy interface {
	// BasePath returns the canonical table path for a complete descriptor.
	// Missing exchange, coin or interval is an error.
	BasePath(meta models.Metadata) (string, error)

	// PathPrefix returns the longest unambiguous path prefix for a possibly
	// partial descriptor: the data-type tag alone, then +exchange, +coin,
	// +interval as leading fields are present.
	PathPrefix(meta models.Metadata) (string, error)

	// Metadata parses a base path back into the descriptor it encodes.
	// The inverse of BasePath: Metadata(BasePath(d)) equals d normalized.
	Metadata(path string) (models.Metadata, error)
}

// OHLCVPathStrategy lays candle datasets out as
// {data_type}/{exchange}/{COIN}/{interval}, e.g. ohlcv/binance/BTC_USDT/1h.
type OHLCVPathStrategy struct {
	dataType string
}

// NewOHLCVPathStrategy returns the path strategy for OHLCV datasets.
func NewOHLCVPathStrategy() *OHLCVPathStrategy {
	return &OHLCVPathStrategy{dataType: models.DataTypeOHLCV}
}

// BasePath implements PathStrategy.
func (s *OHLCVPathStrategy) BasePath(meta models.Metadata) (string, error) {
	n := meta.Normalize()
	if n.Exchange == "" {
		return "", fmt.Errorf("exchange is required to build a path")
	}
	if n.Coin == "" {
		return "", fmt.Errorf("coin is required to build a path")
	}
	if n.Interval == "" {
		return "", fmt.Errorf("interval is required to build a path")
	}
	return strings.Join([]string{s.dataType, n.Exchange, n.Coin, n.Interval}, "/"), nil
}

// PathPrefix implements PathStrategy. Fields are consumed in order; the
// first missing field ends the prefix.
func (s *OHLCVPathStrategy) PathPrefix(meta models.Metadata) (string, error) {
	n := meta.Normalize()
	segments := []string{s.dataType}
	if n.Exchange != "" {
		segments = append(segments, n.Exchange)
		if n.Coin != "" {
			segments = append(segments, n.Coin)
			if n.Interval != "" {
				segments = append(segments, n.Interval)
			}
		}
	}
	return strings.Join(segments, "/"), nil
}

// Metadata implements PathStrategy. The path must have exactly four
// non-empty segments and carry this strategy's data-type tag.
func (s *OHLCVPathStrategy) Metadata(path string) (models.Metadata, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) != 4 {
		return models.Metadata{}, fmt.Errorf("invalid path %q: expected 4 segments, got %d", path, len(segments))
	}
	for _, seg := range segments {
		if seg == "" {
			return models.Metadata{}, fmt.Errorf("invalid path %q: empty segment", path)
		}
	}
	if segments[0] != s.dataType {
		return models.Metadata{}, fmt.Errorf("invalid path %q: expected data type %q, got %q", path, s.dataType, segments[0])
	}
	return models.Metadata{
		DataType: segments[0],
		Exchange: segments[1],
		Coin:     segments[2],
		Interval: segments[3],
	}, nil
}
