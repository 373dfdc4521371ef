package columnar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intCol(vals ...int64) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

func TestFrame_AddColumn(t *testing.T) {
	f := New()
	require.NoError(t, f.AddColumn("a", TypeInt64, intCol(1, 2, 3)))
	require.NoError(t, f.AddColumn("b", TypeString, []any{"x", nil, "z"}))

	assert.Equal(t, 3, f.NumRows())
	assert.Equal(t, 2, f.NumCols())
	assert.True(t, f.HasColumn("a"))
	assert.False(t, f.HasColumn("c"))

	// Length mismatch and duplicate names are rejected.
	assert.Error(t, f.AddColumn("c", TypeInt64, intCol(1)))
	assert.Error(t, f.AddColumn("a", TypeInt64, intCol(1, 2, 3)))
	assert.Error(t, f.AddColumn("", TypeInt64, intCol(1, 2, 3)))
}

func TestFrame_TypedAccessors(t *testing.T) {
	f := New()
	require.NoError(t, f.AddColumn("ts", TypeInt64, []any{int64(10), nil}))
	require.NoError(t, f.AddColumn("price", TypeFloat64, []any{1.5, 2.5}))

	v, ok := f.Int64At("ts", 0)
	assert.True(t, ok)
	assert.Equal(t, int64(10), v)

	_, ok = f.Int64At("ts", 1)
	assert.False(t, ok, "null cell reads as absent")

	_, ok = f.Int64At("missing", 0)
	assert.False(t, ok)

	p, ok := f.Float64At("price", 1)
	assert.True(t, ok)
	assert.Equal(t, 2.5, p)
}

func TestFrame_Slice(t *testing.T) {
	f := New()
	require.NoError(t, f.AddColumn("a", TypeInt64, intCol(1, 2, 3, 4, 5)))

	s := f.Slice(1, 2)
	require.Equal(t, 2, s.NumRows())
	v, _ := s.Int64At("a", 0)
	assert.Equal(t, int64(2), v)

	// Limit <= 0 means "to the end".
	s = f.Slice(3, 0)
	assert.Equal(t, 2, s.NumRows())

	// Offset past the end keeps the schema with no rows.
	s = f.Slice(10, 5)
	assert.Equal(t, 0, s.NumRows())
	assert.True(t, s.HasColumn("a"))
}

func TestFrame_Select(t *testing.T) {
	f := New()
	require.NoError(t, f.AddColumn("a", TypeInt64, intCol(1)))
	require.NoError(t, f.AddColumn("b", TypeInt64, intCol(2)))

	s, err := f.Select([]string{"b"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.NumCols())
	assert.True(t, s.HasColumn("b"))

	_, err = f.Select([]string{"nope"})
	assert.Error(t, err)
}

func TestFrame_AppendMergesSchemas(t *testing.T) {
	f := New()
	require.NoError(t, f.AddColumn("a", TypeInt64, intCol(1, 2)))

	other := New()
	require.NoError(t, other.AddColumn("a", TypeInt64, intCol(3)))
	require.NoError(t, other.AddColumn("b", TypeString, []any{"x"}))

	require.NoError(t, f.Append(other))
	assert.Equal(t, 3, f.NumRows())
	assert.Equal(t, 2, f.NumCols())

	// Old rows read the new column as null.
	_, ok := f.StringAt("b", 0)
	assert.False(t, ok)
	s, ok := f.StringAt("b", 2)
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	// Appending into an empty frame adopts the other's schema.
	empty := New()
	require.NoError(t, empty.Append(f))
	assert.Equal(t, 3, empty.NumRows())

	// Type conflicts are rejected.
	bad := New()
	require.NoError(t, bad.AddColumn("a", TypeString, []any{"oops"}))
	assert.Error(t, f.Append(bad))
}

func TestFrame_Take(t *testing.T) {
	f := New()
	require.NoError(t, f.AddColumn("a", TypeInt64, intCol(10, 20, 30)))
	s := f.Take([]int{2, 0})
	require.Equal(t, 2, s.NumRows())
	v, _ := s.Int64At("a", 0)
	assert.Equal(t, int64(30), v)
}
