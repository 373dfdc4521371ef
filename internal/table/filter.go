package table

import (
	"fmt"
)

// Filter is a single column comparison ANDed with the time range of a read.
// Rows where the column is null never match.
type Filter struct {
	Column string
	Op     string // one of == != > >= < <=
	Value  any
}

// Validate checks the operator and value type.
func (f Filter) Validate() error {
	switch f.Op {
	case "==", "!=", ">", ">=", "<", "<=":
	default:
		return fmt.Errorf("unsupported filter operator %q", f.Op)
	}
	if f.Column == "" {
		return fmt.Errorf("filter column cannot be empty")
	}
	return nil
}

// Matches reports whether a cell value satisfies the filter.
func (f Filter) Matches(cell any) bool {
	if cell == nil {
		return false
	}
	if cn, cok := asFloat(cell); cok {
		fn, fok := asFloat(f.Value)
		if !fok {
			return false
		}
		return compareOrdered(cn, fn, f.Op)
	}
	switch c := cell.(type) {
	case string:
		s, ok := f.Value.(string)
		if !ok {
			return false
		}
		return compareOrdered(c, s, f.Op)
	case bool:
		b, ok := f.Value.(bool)
		if !ok {
			return false
		}
		switch f.Op {
		case "==":
			return c == b
		case "!=":
			return c != b
		}
		return false
	}
	return false
}

func compareOrdered[T float64 | string](a, b T, op string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "<":
		return a < b
	case "<=":
		return a <= b
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case int:
		return float64(t), true
	}
	return 0, false
}
