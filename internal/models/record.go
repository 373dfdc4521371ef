package models

import (
	"fmt"
	"math"
	"time"
)

// ValidationError reports a record field that failed validation.
type ValidationError struct {
	Field   string // Field is the name of the field that failed validation
	Message string // Message describes the validation failure
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// OHLCVRecord is a single candle. Timestamp is milliseconds since the Unix
// epoch, UTC, and is the only required field; prices and volume may be zero
// when an upstream source omits them.
type OHLCVRecord struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// NewOHLCVRecord builds a record and validates it. The error is returned
// before the record reaches any storage layer.
func NewOHLCVRecord(timestamp int64, open, high, low, close, volume float64) (OHLCVRecord, error) {
	r := OHLCVRecord{
		Timestamp: timestamp,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}
	if err := r.Validate(); err != nil {
		return OHLCVRecord{}, err
	}
	return r, nil
}

// OHLCVRecordFromMap builds a record from a decoded JSON object, as received
// from collaborators that hand records over the wire. The timestamp key is
// required and must be an integral number; all other keys are optional
// numbers defaulting to zero.
func OHLCVRecordFromMap(m map[string]any) (OHLCVRecord, error) {
	raw, ok := m["timestamp"]
	if !ok {
		return OHLCVRecord{}, &ValidationError{Field: "timestamp", Message: "timestamp is required"}
	}
	ts, err := toMillis(raw)
	if err != nil {
		return OHLCVRecord{}, &ValidationError{Field: "timestamp", Message: err.Error()}
	}
	r := OHLCVRecord{Timestamp: ts}
	for key, dst := range map[string]*float64{
		"open":   &r.Open,
		"high":   &r.High,
		"low":    &r.Low,
		"close":  &r.Close,
		"volume": &r.Volume,
	} {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		f, err := toFloat(v)
		if err != nil {
			return OHLCVRecord{}, &ValidationError{Field: key, Message: err.Error()}
		}
		*dst = f
	}
	if err := r.Validate(); err != nil {
		return OHLCVRecord{}, err
	}
	return r, nil
}

// Validate checks the record invariants: a positive timestamp, non-negative
// prices and volume, and finite values throughout.
func (r OHLCVRecord) Validate() error {
	if r.Timestamp <= 0 {
		return &ValidationError{Field: "timestamp", Message: "timestamp must be a positive millisecond epoch value"}
	}
	for field, v := range map[string]float64{
		"open":   r.Open,
		"high":   r.High,
		"low":    r.Low,
		"close":  r.Close,
		"volume": r.Volume,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: field, Message: "value must be finite"}
		}
		if v < 0 {
			return &ValidationError{Field: field, Message: "value must be non-negative"}
		}
	}
	return nil
}

// Time returns the record timestamp as a UTC time.Time.
func (r OHLCVRecord) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

func toMillis(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float64:
		// encoding/json decodes all numbers as float64.
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("timestamp must be an integer, got %v", t)
		}
		return int64(t), nil
	default:
		return 0, fmt.Errorf("timestamp must be an integer, got %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
