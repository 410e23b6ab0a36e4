package types

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// Data is a concrete runtime value, used for expression constants and for
// values pulled out of columnar arrays. Structural views over arrays satisfy
// this interface as well; see the view package.
type Data interface {
	Kind() Kind
	String() string
}

type Null struct{}

func (Null) Kind() Kind     { return KindNull }
func (Null) String() string { return "null" }

type Bool bool

func (Bool) Kind() Kind       { return KindBool }
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

type Int64 int64

func (Int64) Kind() Kind       { return KindInt64 }
func (v Int64) String() string { return strconv.FormatInt(int64(v), 10) }

type UInt64 uint64

func (UInt64) Kind() Kind       { return KindUInt64 }
func (v UInt64) String() string { return strconv.FormatUint(uint64(v), 10) }

type Double float64

func (Double) Kind() Kind { return KindDouble }
func (v Double) String() string {
	return strconv.FormatFloat(float64(v), 'g', -1, 64)
}

type Duration time.Duration

func (Duration) Kind() Kind       { return KindDuration }
func (v Duration) String() string { return time.Duration(v).String() }

type Time time.Time

func (Time) Kind() Kind { return KindTime }
func (v Time) String() string {
	return time.Time(v).UTC().Format(time.RFC3339Nano)
}

type String string

func (String) Kind() Kind       { return KindString }
func (v String) String() string { return strconv.Quote(string(v)) }

type Blob []byte

func (Blob) Kind() Kind       { return KindBlob }
func (v Blob) String() string { return "0x" + hex.EncodeToString(v) }

type IP netip.Addr

func (IP) Kind() Kind       { return KindIP }
func (v IP) String() string { return netip.Addr(v).String() }

// Addr returns the address in its canonical 128-bit form.
func (v IP) Addr() netip.Addr {
	a := netip.Addr(v)
	if a.Is4() {
		return netip.AddrFrom16(a.As16())
	}
	return a
}

type Subnet netip.Prefix

func (Subnet) Kind() Kind       { return KindSubnet }
func (v Subnet) String() string { return netip.Prefix(v).String() }

// Contains reports whether the subnet contains the address.
func (v Subnet) Contains(addr netip.Addr) bool {
	p := netip.Prefix(v)
	if p.Addr().Is4() && addr.Is4In6() {
		addr = addr.Unmap()
	}
	return p.Contains(addr)
}

// ContainsSubnet reports whether the subnet fully contains the other subnet.
func (v Subnet) ContainsSubnet(other Subnet) bool {
	p, q := netip.Prefix(v), netip.Prefix(other)
	return p.Bits() <= q.Bits() && v.Contains(q.Addr())
}

// Enum is an enumeration value: the stored index plus its resolved label.
type Enum struct {
	Index uint64
	Label string
}

func (Enum) Kind() Kind       { return KindEnumeration }
func (v Enum) String() string { return v.Label }

type Secret []byte

func (Secret) Kind() Kind     { return KindSecret }
func (Secret) String() string { return "***" }

// List is a materialized list value.
type List struct {
	Elems []Data
}

func (List) Kind() Kind { return KindList }

func (v List) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, e := range v.Elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.String())
	}
	sb.WriteString("]")
	return sb.String()
}

// RecordField is one named member of a materialized record value.
type RecordField struct {
	Name  string
	Value Data
}

// Record is a materialized record value with insertion-ordered fields.
type Record struct {
	Fields []RecordField
}

func (Record) Kind() Kind { return KindRecord }

func (v Record) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, f := range v.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(f.Value.String())
	}
	sb.WriteString("}")
	return sb.String()
}

// Field returns the value of the named field.
func (v Record) Field(name string) (Data, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Check reports whether a data value matches a declared type. Records check
// order-insensitively by name, lists element-wise, ground types by kind. A
// null value matches every type.
func Check(t Type, d Data) bool {
	if d == nil || d.Kind() == KindNull {
		return true
	}
	switch t := t.(type) {
	case RecordType:
		r, ok := d.(Record)
		if !ok {
			return false
		}
		if len(r.Fields) != len(t.Fields) {
			return false
		}
		for _, f := range r.Fields {
			ft, ok := t.FieldType(f.Name)
			if !ok || !Check(ft, f.Value) {
				return false
			}
		}
		return true
	case ListType:
		l, ok := d.(List)
		if !ok {
			return false
		}
		for _, e := range l.Elems {
			if !Check(t.Elem, e) {
				return false
			}
		}
		return true
	default:
		return t.Kind() == d.Kind()
	}
}

// Infer derives the narrowest type from a concrete data value. It fails for
// composites without a decidable element type, such as the empty list.
func Infer(d Data) (Type, error) {
	if d == nil {
		return NullType{}, nil
	}
	switch d := d.(type) {
	case Record:
		fields := make([]Field, 0, len(d.Fields))
		for _, f := range d.Fields {
			ft, err := Infer(f.Value)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Name: f.Name, Type: ft})
		}
		return NewRecord(fields)
	case List:
		if len(d.Elems) == 0 {
			return nil, fmt.Errorf("cannot infer element type of empty list")
		}
		elem, err := Infer(d.Elems[0])
		if err != nil {
			return nil, err
		}
		for _, e := range d.Elems[1:] {
			et, err := Infer(e)
			if err != nil {
				return nil, err
			}
			if !Equal(elem, et) {
				return nil, fmt.Errorf("list elements have mixed types %s and %s", elem, et)
			}
		}
		return NewList(elem), nil
	case Null:
		return NullType{}, nil
	case Bool:
		return BoolType{}, nil
	case Int64:
		return Int64Type{}, nil
	case UInt64:
		return UInt64Type{}, nil
	case Double:
		return DoubleType{}, nil
	case Duration:
		return DurationType{}, nil
	case Time:
		return TimeType{}, nil
	case String:
		return StringType{}, nil
	case Blob:
		return BlobType{}, nil
	case IP:
		return IPType{}, nil
	case Subnet:
		return SubnetType{}, nil
	case Secret:
		return SecretType{}, nil
	default:
		return nil, fmt.Errorf("cannot infer type of %T", d)
	}
}
