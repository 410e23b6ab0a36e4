package types

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
)

// ipByteWidth is the storage width of the ip ground type. IPv4 addresses are
// stored v4-mapped.
const ipByteWidth = 16

// SubnetStorage is the Arrow storage layout of the subnet ground type.
var SubnetStorage = arrow.StructOf(
	arrow.Field{Name: "ip", Type: &arrow.FixedSizeBinaryType{ByteWidth: ipByteWidth}, Nullable: true},
	arrow.Field{Name: "length", Type: arrow.PrimitiveTypes.Uint8, Nullable: true},
)

// IPStorage is the Arrow storage layout of the ip ground type.
var IPStorage = &arrow.FixedSizeBinaryType{ByteWidth: ipByteWidth}

// ToArrow returns the canonical Arrow storage type for a logical type.
func ToArrow(t Type) arrow.DataType {
	switch t := t.(type) {
	case NullType:
		return arrow.Null
	case BoolType:
		return arrow.FixedWidthTypes.Boolean
	case Int64Type:
		return arrow.PrimitiveTypes.Int64
	case UInt64Type:
		return arrow.PrimitiveTypes.Uint64
	case DoubleType:
		return arrow.PrimitiveTypes.Float64
	case DurationType:
		return arrow.FixedWidthTypes.Duration_ns
	case TimeType:
		return arrow.FixedWidthTypes.Timestamp_ns
	case StringType:
		return arrow.BinaryTypes.String
	case BlobType:
		return arrow.BinaryTypes.Binary
	case IPType:
		return IPStorage
	case SubnetType:
		return SubnetStorage
	case EnumerationType:
		return arrow.PrimitiveTypes.Uint64
	case SecretType:
		return arrow.BinaryTypes.Binary
	case ListType:
		return arrow.ListOf(ToArrow(t.Elem))
	case RecordType:
		fields := make([]arrow.Field, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = arrow.Field{Name: f.Name, Type: ToArrow(f.Type), Nullable: true}
		}
		return arrow.StructOf(fields...)
	case MapType:
		return arrow.MapOf(ToArrow(t.Key), ToArrow(t.Value))
	default:
		panic(fmt.Sprintf("no arrow storage for %T", t))
	}
}

// FromArrow derives a logical type from an Arrow storage type. The mapping is
// partial: a 16-byte fixed-size binary maps to ip and any other fixed-size
// binary to blob, while subnet, enumeration and secret are not recoverable
// from plain storage and come back as record, uint64 and blob. Callers that
// know the logical type keep it alongside the array instead of
// round-tripping through storage.
func FromArrow(dt arrow.DataType) (Type, error) {
	switch dt := dt.(type) {
	case *arrow.NullType:
		return NullType{}, nil
	case *arrow.BooleanType:
		return BoolType{}, nil
	case *arrow.Int64Type:
		return Int64Type{}, nil
	case *arrow.Uint64Type:
		return UInt64Type{}, nil
	case *arrow.Float64Type:
		return DoubleType{}, nil
	case *arrow.DurationType:
		return DurationType{}, nil
	case *arrow.TimestampType:
		return TimeType{}, nil
	case *arrow.StringType:
		return StringType{}, nil
	case *arrow.BinaryType:
		return BlobType{}, nil
	case *arrow.FixedSizeBinaryType:
		if dt.ByteWidth == ipByteWidth {
			return IPType{}, nil
		}
		return BlobType{}, nil
	case *arrow.ListType:
		elem, err := FromArrow(dt.Elem())
		if err != nil {
			return nil, err
		}
		return NewList(elem), nil
	case *arrow.StructType:
		fields := make([]Field, dt.NumFields())
		for i := range dt.NumFields() {
			f := dt.Field(i)
			ft, err := FromArrow(f.Type)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Name: f.Name, Type: ft}
		}
		return NewRecord(fields)
	case *arrow.MapType:
		key, err := FromArrow(dt.KeyType())
		if err != nil {
			return nil, err
		}
		value, err := FromArrow(dt.ItemType())
		if err != nil {
			return nil, err
		}
		return MapType{Key: key, Value: value}, nil
	default:
		return nil, fmt.Errorf("unsupported arrow type %s", dt)
	}
}
