// Package builder wraps Arrow array builders with logical-type aware append
// helpers. Builders are single-producer values that are consumed exactly once
// by Finish; until then they have no externally visible effect.
package builder

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/tenzir/tenzir-sub011/internal/types"
	"github.com/tenzir/tenzir-sub011/internal/view"
)

// Mem is the allocator used by the engine. Arrays are immutable after
// construction and may be shared freely between goroutines.
var Mem = memory.NewGoAllocator()

// New returns a builder producing the canonical storage of the logical type.
func New(t types.Type) array.Builder {
	return array.NewBuilder(Mem, types.ToArrow(t))
}

// Finish consumes the builder and returns the immutable array.
func Finish(b array.Builder) arrow.Array {
	defer b.Release()
	return b.NewArray()
}

// NullArray returns an all-null array of the given logical type and length.
func NullArray(t types.Type, n int) arrow.Array {
	return array.MakeArrayOfNull(Mem, types.ToArrow(t), n)
}

// Append appends one data value to a builder for the logical type t. A nil
// or null value appends a null row. Structural views append deep copies.
func Append(b array.Builder, t types.Type, d types.Data) error {
	if d == nil {
		b.AppendNull()
		return nil
	}
	if _, isNullType := t.(types.NullType); !isNullType && d.Kind() == types.KindNull {
		b.AppendNull()
		return nil
	}
	switch t := t.(type) {
	case types.NullType:
		b.AppendNull()
		return nil
	case types.BoolType:
		v, ok := d.(types.Bool)
		if !ok {
			return mismatch(t, d)
		}
		b.(*array.BooleanBuilder).Append(bool(v))
	case types.Int64Type:
		v, ok := d.(types.Int64)
		if !ok {
			return mismatch(t, d)
		}
		b.(*array.Int64Builder).Append(int64(v))
	case types.UInt64Type:
		v, ok := d.(types.UInt64)
		if !ok {
			return mismatch(t, d)
		}
		b.(*array.Uint64Builder).Append(uint64(v))
	case types.DoubleType:
		v, ok := d.(types.Double)
		if !ok {
			return mismatch(t, d)
		}
		b.(*array.Float64Builder).Append(float64(v))
	case types.DurationType:
		v, ok := d.(types.Duration)
		if !ok {
			return mismatch(t, d)
		}
		b.(*array.DurationBuilder).Append(arrow.Duration(time.Duration(v).Nanoseconds()))
	case types.TimeType:
		v, ok := d.(types.Time)
		if !ok {
			return mismatch(t, d)
		}
		b.(*array.TimestampBuilder).Append(arrow.Timestamp(time.Time(v).UnixNano()))
	case types.StringType:
		v, ok := d.(types.String)
		if !ok {
			return mismatch(t, d)
		}
		b.(*array.StringBuilder).Append(string(v))
	case types.BlobType:
		v, ok := d.(types.Blob)
		if !ok {
			return mismatch(t, d)
		}
		b.(*array.BinaryBuilder).Append(v)
	case types.IPType:
		v, ok := d.(types.IP)
		if !ok {
			return mismatch(t, d)
		}
		buf := v.Addr().As16()
		b.(*array.FixedSizeBinaryBuilder).Append(buf[:])
	case types.SubnetType:
		v, ok := d.(types.Subnet)
		if !ok {
			return mismatch(t, d)
		}
		sb := b.(*array.StructBuilder)
		sb.Append(true)
		p := netip.Prefix(v)
		addr := p.Addr()
		if addr.Is4() {
			addr = netip.AddrFrom16(addr.As16())
		}
		buf := addr.As16()
		sb.FieldBuilder(0).(*array.FixedSizeBinaryBuilder).Append(buf[:])
		sb.FieldBuilder(1).(*array.Uint8Builder).Append(uint8(p.Bits()))
	case types.EnumerationType:
		switch v := d.(type) {
		case types.Enum:
			b.(*array.Uint64Builder).Append(v.Index)
		case types.String:
			index, ok := t.Resolve(string(v))
			if !ok {
				return fmt.Errorf("%q is not a label of %s", v, t)
			}
			b.(*array.Uint64Builder).Append(index)
		default:
			return mismatch(t, d)
		}
	case types.SecretType:
		v, ok := d.(types.Secret)
		if !ok {
			return mismatch(t, d)
		}
		b.(*array.BinaryBuilder).Append(v)
	case types.ListType:
		lb := b.(*array.ListBuilder)
		switch v := d.(type) {
		case types.List:
			lb.Append(true)
			for _, e := range v.Elems {
				if err := Append(lb.ValueBuilder(), t.Elem, e); err != nil {
					return err
				}
			}
		case view.List:
			if !v.Valid() {
				lb.AppendNull()
				return nil
			}
			lb.Append(true)
			for e := range v.Elems() {
				if err := Append(lb.ValueBuilder(), t.Elem, e); err != nil {
					return err
				}
			}
		default:
			return mismatch(t, d)
		}
	case types.RecordType:
		sb := b.(*array.StructBuilder)
		switch v := d.(type) {
		case types.Record:
			sb.Append(true)
			for i, f := range t.Fields {
				value, _ := v.Field(f.Name)
				if err := Append(sb.FieldBuilder(i), f.Type, value); err != nil {
					return err
				}
			}
		case view.Record:
			if !v.Valid() {
				sb.AppendNull()
				return nil
			}
			sb.Append(true)
			for i, f := range t.Fields {
				value, _ := v.Field(f.Name)
				if err := Append(sb.FieldBuilder(i), f.Type, value); err != nil {
					return err
				}
			}
		default:
			return mismatch(t, d)
		}
	default:
		return fmt.Errorf("cannot append to %s", t)
	}
	return nil
}

func mismatch(t types.Type, d types.Data) error {
	return fmt.Errorf("expected %s, got %s", t.Kind(), d.Kind())
}

// AppendArraySlice appends rows [offset, offset+count) of an array of the
// same logical type.
func AppendArraySlice(b array.Builder, t types.Type, arr arrow.Array, offset, count int) error {
	for i := range count {
		row := offset + i
		if arr.IsNull(row) {
			b.AppendNull()
			continue
		}
		if err := Append(b, t, view.ValueAt(t, arr, row)); err != nil {
			return err
		}
	}
	return nil
}

// FromData builds an array of the logical type from materialized values.
func FromData(t types.Type, values []types.Data) (arrow.Array, error) {
	b := New(t)
	for _, d := range values {
		if err := Append(b, t, d); err != nil {
			b.Release()
			return nil, err
		}
	}
	return Finish(b), nil
}

// Repeat builds an array holding the same value n times. Expression
// constants inflate to series this way.
func Repeat(t types.Type, d types.Data, n int) (arrow.Array, error) {
	b := New(t)
	b.Reserve(n)
	for range n {
		if err := Append(b, t, d); err != nil {
			b.Release()
			return nil, err
		}
	}
	return Finish(b), nil
}
