// Package series implements the polymorphic column abstractions: a series is
// one typed column, a multi-series is an ordered concatenation of series
// whose per-part types may differ.
package series

import (
	"fmt"
	"iter"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/types"
	"github.com/tenzir/tenzir-sub011/internal/view"
)

// Series is a contiguous representation of nullable data of one logical
// type, e.g. a column of a batch. Type and array agree by construction;
// there is no implicit coercion. Series are value-cheap: the array is shared.
type Series struct {
	Type  types.Type
	Array arrow.Array
}

// New pairs a logical type with its array. It panics when the array does not
// carry the type's canonical storage; such a pair is a programming error.
func New(t types.Type, arr arrow.Array) Series {
	if !arrow.TypeEqual(types.ToArrow(t), arr.DataType()) {
		panic(fmt.Sprintf("series type %s does not match array storage %s", t, arr.DataType()))
	}
	return Series{Type: t, Array: arr}
}

// Null returns an all-null series of the given type and length.
func Null(t types.Type, n int) Series {
	return Series{Type: t, Array: builder.NullArray(t, n)}
}

// Len returns the number of rows.
func (s Series) Len() int {
	if s.Array == nil {
		return 0
	}
	return s.Array.Len()
}

// Slice returns the zero-copy subview [begin, end) with preserved type.
func (s Series) Slice(begin, end int) Series {
	return Series{Type: s.Type, Array: array.NewSlice(s.Array, int64(begin), int64(end))}
}

// ValueAt returns the data view of one row.
func (s Series) ValueAt(i int) types.Data {
	return view.ValueAt(s.Type, s.Array, i)
}

// IsNull reports whether the row is null.
func (s Series) IsNull(i int) bool {
	return s.Array.IsNull(i)
}

// Values lazily iterates all rows as data views.
func (s Series) Values() iter.Seq[types.Data] {
	return view.Values(s.Type, s.Array)
}

// AsRecord narrows the series to a record type.
func (s Series) AsRecord() (types.RecordType, *array.Struct, bool) {
	rt, ok := s.Type.(types.RecordType)
	if !ok {
		return types.RecordType{}, nil, false
	}
	return rt, s.Array.(*array.Struct), true
}

// AsList narrows the series to a list type.
func (s Series) AsList() (types.ListType, *array.List, bool) {
	lt, ok := s.Type.(types.ListType)
	if !ok {
		return types.ListType{}, nil, false
	}
	return lt, s.Array.(*array.List), true
}

// Multi is an ordered vector of series whose concatenated length is the
// logical column length. A zero-length multi-series is distinct from one
// holding a single zero-length part.
type Multi struct {
	parts []Series
}

// One wraps a single series.
func One(s Series) Multi {
	return Multi{parts: []Series{s}}
}

// Make assembles a multi-series from parts.
func Make(parts ...Series) Multi {
	return Multi{parts: parts}
}

// Len returns the total logical length, the sum of all part lengths.
func (m Multi) Len() int {
	total := 0
	for _, p := range m.parts {
		total += p.Len()
	}
	return total
}

// Parts returns the underlying parts in order.
func (m Multi) Parts() []Series {
	return m.parts
}

// Part returns the i-th part.
func (m Multi) Part(i int) Series {
	return m.parts[i]
}

// Append adds a series at the end.
func (m *Multi) Append(s Series) {
	m.parts = append(m.parts, s)
}

// Splice adds all parts of another multi-series at the end.
func (m *Multi) Splice(other Multi) {
	m.parts = append(m.parts, other.parts...)
}

// resolve maps a row index to (part index, row within part).
func (m Multi) resolve(row int) (int, int) {
	for i, p := range m.parts {
		if row < p.Len() {
			return i, row
		}
		row -= p.Len()
	}
	panic(fmt.Sprintf("row %d out of range for multi-series of length %d", row, m.Len()))
}

// ValueAt returns the data view of one logical row.
func (m Multi) ValueAt(row int) types.Data {
	i, r := m.resolve(row)
	return m.parts[i].ValueAt(r)
}

// IsNull reports whether the logical row is null.
func (m Multi) IsNull(row int) bool {
	i, r := m.resolve(row)
	return m.parts[i].IsNull(r)
}

// NullCount returns the total number of null rows.
func (m Multi) NullCount() int {
	total := 0
	for _, p := range m.parts {
		total += p.Array.NullN()
	}
	return total
}

// Values lazily iterates all logical rows across parts.
func (m Multi) Values() iter.Seq[types.Data] {
	return func(yield func(types.Data) bool) {
		for _, p := range m.parts {
			for d := range p.Values() {
				if !yield(d) {
					return
				}
			}
		}
	}
}
