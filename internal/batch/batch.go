// Package batch defines the engine's unit of data flow: a record-typed
// columnar slice with a schema name and attributes.
package batch

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/google/uuid"

	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

// Batch is a top-level record-typed series. The schema name identifies the
// event type (e.g. "ocsf.authentication"); attributes travel on the schema
// type itself. The ID is a random identifier assigned when the batch is built;
// logging and diagnostics do not include it.
type Batch struct {
	Name   string
	Schema types.RecordType
	Array  *array.Struct
	ID     uuid.UUID
}

// New pairs a schema with its struct array.
func New(name string, schema types.RecordType, arr *array.Struct) Batch {
	return Batch{Name: name, Schema: schema, Array: arr, ID: uuid.New()}
}

// Empty returns a batch of zero rows for the schema.
func Empty(name string, schema types.RecordType) Batch {
	arr := builder.NullArray(schema, 0).(*array.Struct)
	return New(name, schema, arr)
}

// FromSeries converts a record-typed series into a batch.
func FromSeries(name string, s series.Series) (Batch, error) {
	rt, arr, ok := s.AsRecord()
	if !ok {
		return Batch{}, fmt.Errorf("batch requires a record-typed series, got %s", s.Type)
	}
	return New(name, rt, arr), nil
}

// Rows returns the number of events in the batch.
func (b Batch) Rows() int {
	if b.Array == nil {
		return 0
	}
	return b.Array.Len()
}

// Columns returns the number of top-level fields.
func (b Batch) Columns() int {
	return len(b.Schema.Fields)
}

// Column returns the i-th top-level column as a series.
func (b Batch) Column(i int) series.Series {
	return series.Series{Type: b.Schema.Fields[i].Type, Array: b.Array.Field(i)}
}

// ColumnByName returns the named top-level column.
func (b Batch) ColumnByName(name string) (series.Series, bool) {
	i := b.Schema.FieldIndex(name)
	if i < 0 {
		return series.Series{}, false
	}
	return b.Column(i), true
}

// ToSeries views the whole batch as one record-typed series.
func (b Batch) ToSeries() series.Series {
	return series.Series{Type: b.Schema, Array: b.Array}
}

// Slice returns the zero-copy row range [begin, end) under the same schema.
func (b Batch) Slice(begin, end int) Batch {
	sliced := array.NewSlice(b.Array, int64(begin), int64(end)).(*array.Struct)
	return New(b.Name, b.Schema, sliced)
}

// ResolveEnumerations rewrites every enumeration column, however deeply
// nested, into its string labels. Sinks without a native enumeration type
// call this before schema mediation.
func ResolveEnumerations(b Batch) Batch {
	if !hasEnumeration(b.Schema) {
		return b
	}
	t, arr := resolveArray(b.Schema, b.Array)
	return Batch{Name: b.Name, Schema: t.(types.RecordType), Array: arr.(*array.Struct), ID: b.ID}
}

func hasEnumeration(t types.Type) bool {
	switch t := t.(type) {
	case types.EnumerationType:
		return true
	case types.ListType:
		return hasEnumeration(t.Elem)
	case types.RecordType:
		for _, f := range t.Fields {
			if hasEnumeration(f.Type) {
				return true
			}
		}
	}
	return false
}

func resolveArray(t types.Type, arr arrow.Array) (types.Type, arrow.Array) {
	switch t := t.(type) {
	case types.EnumerationType:
		indices := arr.(*array.Uint64)
		sb := builder.New(types.StringType{})
		for i := 0; i < indices.Len(); i++ {
			if indices.IsNull(i) {
				sb.AppendNull()
				continue
			}
			label, ok := t.Field(indices.Value(i))
			if !ok {
				sb.AppendNull()
				continue
			}
			sb.(*array.StringBuilder).Append(label)
		}
		return types.StringType{}, builder.Finish(sb)
	case types.ListType:
		if !hasEnumeration(t.Elem) {
			return t, arr
		}
		list := arr.(*array.List)
		elemType, values := resolveArray(t.Elem, list.ListValues())
		return types.NewList(elemType), builder.MakeListArray(list, values)
	case types.RecordType:
		if !hasEnumeration(t) {
			return t, arr
		}
		strct := arr.(*array.Struct)
		fields := make([]types.Field, len(t.Fields))
		children := make([]arrow.Array, len(t.Fields))
		for i, f := range t.Fields {
			ft, child := resolveArray(f.Type, strct.Field(i))
			fields[i] = types.Field{Name: f.Name, Type: ft}
			children[i] = child
		}
		resolved := types.RecordType{Fields: fields}
		return resolved, builder.MakeStructArray(resolved, strct.Len(), children, strct)
	default:
		return t, arr
	}
}
