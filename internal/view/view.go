// Package view provides zero-copy readers over columnar arrays. A view either
// yields a concrete scalar value or, for lists and records, a structural view
// that iterates the same array without materializing elements.
package view

import (
	"fmt"
	"iter"
	"net/netip"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/types"
)

// Record is a structural view of one row of a struct array. It satisfies
// types.Data; iterating yields (name, value) pairs in field order. A view of
// a null row has no fields.
type Record struct {
	Type  types.RecordType
	Array *array.Struct
	Row   int
	valid bool
}

func (Record) Kind() types.Kind { return types.KindRecord }

func (r Record) String() string {
	return Materialize(r).String()
}

// Valid reports whether the underlying row is non-null.
func (r Record) Valid() bool { return r.valid }

// Len returns the number of fields visible through the view.
func (r Record) Len() int {
	if !r.valid {
		return 0
	}
	return len(r.Type.Fields)
}

// Fields iterates the record's fields in declaration order.
func (r Record) Fields() iter.Seq2[string, types.Data] {
	return func(yield func(string, types.Data) bool) {
		if !r.valid {
			return
		}
		for i, f := range r.Type.Fields {
			if !yield(f.Name, ValueAt(f.Type, r.Array.Field(i), r.Row)) {
				return
			}
		}
	}
}

// Field returns the view of the named field.
func (r Record) Field(name string) (types.Data, bool) {
	if !r.valid {
		return nil, false
	}
	i := r.Type.FieldIndex(name)
	if i < 0 {
		return nil, false
	}
	return ValueAt(r.Type.Fields[i].Type, r.Array.Field(i), r.Row), true
}

// List is a structural view of one row of a list array. It satisfies
// types.Data; iterating yields the element views between the row's offsets.
// A view of a null row is empty.
type List struct {
	Type  types.ListType
	Array *array.List
	Row   int
	valid bool
}

func (List) Kind() types.Kind { return types.KindList }

func (l List) String() string {
	return Materialize(l).String()
}

// Valid reports whether the underlying row is non-null.
func (l List) Valid() bool { return l.valid }

// Len returns the number of elements visible through the view.
func (l List) Len() int {
	if !l.valid {
		return 0
	}
	start, end := l.Array.ValueOffsets(l.Row)
	return int(end - start)
}

// Elems iterates the list's elements.
func (l List) Elems() iter.Seq[types.Data] {
	return func(yield func(types.Data) bool) {
		if !l.valid {
			return
		}
		start, end := l.Array.ValueOffsets(l.Row)
		values := l.Array.ListValues()
		for i := start; i < end; i++ {
			if !yield(ValueAt(l.Type.Elem, values, int(i))) {
				return
			}
		}
	}
}

// RecordAt returns the structural view of row i. Null rows view as empty.
func RecordAt(t types.RecordType, arr *array.Struct, i int) Record {
	return Record{Type: t, Array: arr, Row: i, valid: arr.IsValid(i)}
}

// ListAt returns the structural view of row i. Null rows view as empty.
func ListAt(t types.ListType, arr *array.List, i int) List {
	return List{Type: t, Array: arr, Row: i, valid: arr.IsValid(i)}
}

// IPAt reads a v4-mapped 128-bit address from a fixed-size binary array.
func IPAt(arr *array.FixedSizeBinary, i int) netip.Addr {
	var buf [16]byte
	copy(buf[:], arr.Value(i))
	return netip.AddrFrom16(buf)
}

// SubnetAt reads a subnet from its struct storage.
func SubnetAt(arr *array.Struct, i int) netip.Prefix {
	ips := arr.Field(0).(*array.FixedSizeBinary)
	lengths := arr.Field(1).(*array.Uint8)
	return netip.PrefixFrom(IPAt(ips, i), int(lengths.Value(i)))
}

// ValueAt yields the data view of row i as a tagged variant for runtime
// dispatch. Null rows of scalar types yield types.Null; null record and list
// rows yield a structural view whose Valid reports false.
func ValueAt(t types.Type, arr arrow.Array, i int) types.Data {
	if i < 0 || i >= arr.Len() {
		panic(fmt.Sprintf("row %d out of range for array of length %d", i, arr.Len()))
	}
	switch t := t.(type) {
	case types.RecordType:
		return RecordAt(t, arr.(*array.Struct), i)
	case types.ListType:
		return ListAt(t, arr.(*array.List), i)
	}
	if arr.IsNull(i) {
		return types.Null{}
	}
	switch t := t.(type) {
	case types.NullType:
		return types.Null{}
	case types.BoolType:
		return types.Bool(arr.(*array.Boolean).Value(i))
	case types.Int64Type:
		return types.Int64(arr.(*array.Int64).Value(i))
	case types.UInt64Type:
		return types.UInt64(arr.(*array.Uint64).Value(i))
	case types.DoubleType:
		return types.Double(arr.(*array.Float64).Value(i))
	case types.DurationType:
		return types.Duration(time.Duration(arr.(*array.Duration).Value(i)))
	case types.TimeType:
		ts := arr.(*array.Timestamp).Value(i)
		return types.Time(time.Unix(0, int64(ts)).UTC())
	case types.StringType:
		return types.String(arr.(*array.String).Value(i))
	case types.BlobType:
		return types.Blob(arr.(*array.Binary).Value(i))
	case types.IPType:
		return types.IP(IPAt(arr.(*array.FixedSizeBinary), i))
	case types.SubnetType:
		return types.Subnet(SubnetAt(arr.(*array.Struct), i))
	case types.EnumerationType:
		index := arr.(*array.Uint64).Value(i)
		label, _ := t.Field(index)
		return types.Enum{Index: index, Label: label}
	case types.SecretType:
		return types.Secret(arr.(*array.Binary).Value(i))
	default:
		panic(fmt.Sprintf("no view for type %s", t))
	}
}

// Values lazily iterates all rows of an array as data views.
func Values(t types.Type, arr arrow.Array) iter.Seq[types.Data] {
	return func(yield func(types.Data) bool) {
		for i := 0; i < arr.Len(); i++ {
			if !yield(ValueAt(t, arr, i)) {
				return
			}
		}
	}
}

// Materialize copies a view into an owned data value. Structural views
// become types.Record and types.List; scalars pass through.
func Materialize(d types.Data) types.Data {
	switch d := d.(type) {
	case Record:
		var out types.Record
		for name, value := range d.Fields() {
			out.Fields = append(out.Fields, types.RecordField{Name: name, Value: Materialize(value)})
		}
		return out
	case List:
		var out types.List
		for elem := range d.Elems() {
			out.Elems = append(out.Elems, Materialize(elem))
		}
		return out
	default:
		return d
	}
}
