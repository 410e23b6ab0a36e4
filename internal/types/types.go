package types

import (
	"fmt"
	"strings"
)

// Kind discriminates the closed set of logical types.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindUInt64
	KindDouble
	KindDuration
	KindTime
	KindString
	KindBlob
	KindIP
	KindSubnet
	KindEnumeration
	KindSecret
	KindList
	KindRecord
	KindMap
)

var kindNames = [...]string{
	KindNull:        "null",
	KindBool:        "bool",
	KindInt64:       "int64",
	KindUInt64:      "uint64",
	KindDouble:      "double",
	KindDuration:    "duration",
	KindTime:        "time",
	KindString:      "string",
	KindBlob:        "blob",
	KindIP:          "ip",
	KindSubnet:      "subnet",
	KindEnumeration: "enumeration",
	KindSecret:      "secret",
	KindList:        "list",
	KindRecord:      "record",
	KindMap:         "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Numeric reports whether the kind participates in arithmetic promotion.
func (k Kind) Numeric() bool {
	return k == KindInt64 || k == KindUInt64 || k == KindDouble
}

// Attribute is a string key/value pair attached to a type. Attributes carry
// schema-level directives such as `print_json` or `profile`.
type Attribute struct {
	Key   string
	Value string
}

// Type is the interface for all logical types. Types are immutable once
// constructed; the With* helpers return modified copies.
type Type interface {
	Kind() Kind
	String() string
	Attributes() []Attribute
}

// GetAttribute returns the value of the first attribute with the given key.
func GetAttribute(t Type, key string) (string, bool) {
	for _, a := range t.Attributes() {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// HasAttribute reports whether the type carries an attribute with the key.
func HasAttribute(t Type, key string) bool {
	_, ok := GetAttribute(t, key)
	return ok
}

// attrs is embedded by every concrete type to carry its attribute list.
type attrs struct {
	list []Attribute
}

func (a attrs) Attributes() []Attribute {
	return a.list
}

type NullType struct{ attrs }

func (NullType) Kind() Kind     { return KindNull }
func (NullType) String() string { return "null" }

type BoolType struct{ attrs }

func (BoolType) Kind() Kind     { return KindBool }
func (BoolType) String() string { return "bool" }

type Int64Type struct{ attrs }

func (Int64Type) Kind() Kind     { return KindInt64 }
func (Int64Type) String() string { return "int64" }

type UInt64Type struct{ attrs }

func (UInt64Type) Kind() Kind     { return KindUInt64 }
func (UInt64Type) String() string { return "uint64" }

type DoubleType struct{ attrs }

func (DoubleType) Kind() Kind     { return KindDouble }
func (DoubleType) String() string { return "double" }

// DurationType is a signed 64-bit nanosecond span.
type DurationType struct{ attrs }

func (DurationType) Kind() Kind     { return KindDuration }
func (DurationType) String() string { return "duration" }

// TimeType is a signed 64-bit nanosecond offset since the Unix epoch.
type TimeType struct{ attrs }

func (TimeType) Kind() Kind     { return KindTime }
func (TimeType) String() string { return "time" }

type StringType struct{ attrs }

func (StringType) Kind() Kind     { return KindString }
func (StringType) String() string { return "string" }

type BlobType struct{ attrs }

func (BlobType) Kind() Kind     { return KindBlob }
func (BlobType) String() string { return "blob" }

// IPType stores addresses as 128-bit values; IPv4 addresses are v4-mapped.
type IPType struct{ attrs }

func (IPType) Kind() Kind     { return KindIP }
func (IPType) String() string { return "ip" }

// SubnetType is an ip plus a prefix length in bits (0..128).
type SubnetType struct{ attrs }

func (SubnetType) Kind() Kind     { return KindSubnet }
func (SubnetType) String() string { return "subnet" }

// EnumField is one named value of an enumeration.
type EnumField struct {
	Name  string
	Value uint64
}

// EnumerationType is a named integer. Field values must be dense and labels
// unique; NewEnumeration enforces this.
type EnumerationType struct {
	attrs
	Fields []EnumField
}

func (EnumerationType) Kind() Kind { return KindEnumeration }

func (t EnumerationType) String() string {
	var sb strings.Builder
	sb.WriteString("enumeration{")
	for i, f := range t.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %d", f.Name, f.Value)
	}
	sb.WriteString("}")
	return sb.String()
}

// Field returns the label for a value.
func (t EnumerationType) Field(value uint64) (string, bool) {
	for _, f := range t.Fields {
		if f.Value == value {
			return f.Name, true
		}
	}
	return "", false
}

// Resolve returns the value for a label.
func (t EnumerationType) Resolve(name string) (uint64, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// NewEnumeration validates labels and density of the field values.
func NewEnumeration(fields []EnumField) (EnumerationType, error) {
	seen := make(map[string]struct{}, len(fields))
	values := make(map[uint64]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return EnumerationType{}, fmt.Errorf("enumeration field name must not be empty")
		}
		if _, ok := seen[f.Name]; ok {
			return EnumerationType{}, fmt.Errorf("duplicate enumeration label %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if _, ok := values[f.Value]; ok {
			return EnumerationType{}, fmt.Errorf("duplicate enumeration value %d", f.Value)
		}
		values[f.Value] = struct{}{}
	}
	for i := range uint64(len(fields)) {
		if _, ok := values[i]; !ok {
			return EnumerationType{}, fmt.Errorf("enumeration values must be dense, missing %d", i)
		}
	}
	return EnumerationType{Fields: fields}, nil
}

// SecretType is an opaque value annotated by a list of pending
// transformations that downstream secret resolution applies in order.
type SecretType struct {
	attrs
	Operations []string
}

func (SecretType) Kind() Kind     { return KindSecret }
func (SecretType) String() string { return "secret" }

// ListType is a sequence of values of a single element type.
type ListType struct {
	attrs
	Elem Type
}

func (ListType) Kind() Kind { return KindList }

func (t ListType) String() string {
	return "list<" + t.Elem.String() + ">"
}

// NewList returns a list type, panicking on a nil element type: a list
// without an element type is not constructible.
func NewList(elem Type) ListType {
	if elem == nil {
		panic("list element type must be defined")
	}
	return ListType{Elem: elem}
}

// Field is one named field of a record.
type Field struct {
	Name string
	Type Type
}

// RecordType is an insertion-ordered sequence of named fields. Field names
// are unique within a record and never empty.
type RecordType struct {
	attrs
	Fields []Field
}

func (RecordType) Kind() Kind { return KindRecord }

func (t RecordType) String() string {
	var sb strings.Builder
	sb.WriteString("record{")
	for i, f := range t.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(f.Type.String())
	}
	sb.WriteString("}")
	return sb.String()
}

// FieldIndex returns the position of the named field, or -1.
func (t RecordType) FieldIndex(name string) int {
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// FieldType returns the type of the named field.
func (t RecordType) FieldType(name string) (Type, bool) {
	if i := t.FieldIndex(name); i >= 0 {
		return t.Fields[i].Type, true
	}
	return nil, false
}

// NewRecord validates field names for emptiness and uniqueness.
func NewRecord(fields []Field) (RecordType, error) {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return RecordType{}, fmt.Errorf("record field name must not be empty")
		}
		if _, ok := seen[f.Name]; ok {
			return RecordType{}, fmt.Errorf("duplicate record field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Type == nil {
			return RecordType{}, fmt.Errorf("record field %q has no type", f.Name)
		}
	}
	return RecordType{Fields: fields}, nil
}

// MustRecord is NewRecord for statically-known field lists.
func MustRecord(fields ...Field) RecordType {
	r, err := NewRecord(fields)
	if err != nil {
		panic(err)
	}
	return r
}

// MapType is represented for compatibility with older schemas but never
// produced by the engine. Deprecated.
type MapType struct {
	attrs
	Key   Type
	Value Type
}

func (MapType) Kind() Kind { return KindMap }

func (t MapType) String() string {
	return "map<" + t.Key.String() + ", " + t.Value.String() + ">"
}

// WithAttributes returns a copy of t with the attributes appended in order.
func WithAttributes(t Type, extra ...Attribute) Type {
	if len(extra) == 0 {
		return t
	}
	merged := append(append([]Attribute{}, t.Attributes()...), extra...)
	a := attrs{list: merged}
	switch t := t.(type) {
	case NullType:
		return NullType{a}
	case BoolType:
		return BoolType{a}
	case Int64Type:
		return Int64Type{a}
	case UInt64Type:
		return UInt64Type{a}
	case DoubleType:
		return DoubleType{a}
	case DurationType:
		return DurationType{a}
	case TimeType:
		return TimeType{a}
	case StringType:
		return StringType{a}
	case BlobType:
		return BlobType{a}
	case IPType:
		return IPType{a}
	case SubnetType:
		return SubnetType{a}
	case EnumerationType:
		return EnumerationType{a, t.Fields}
	case SecretType:
		return SecretType{a, t.Operations}
	case ListType:
		return ListType{a, t.Elem}
	case RecordType:
		return RecordType{a, t.Fields}
	case MapType:
		return MapType{a, t.Key, t.Value}
	default:
		panic(fmt.Sprintf("unknown type %T", t))
	}
}

// Equal compares two types structurally, ignoring attributes.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch a := a.(type) {
	case ListType:
		return Equal(a.Elem, b.(ListType).Elem)
	case RecordType:
		bf := b.(RecordType).Fields
		if len(a.Fields) != len(bf) {
			return false
		}
		for i, f := range a.Fields {
			if f.Name != bf[i].Name || !Equal(f.Type, bf[i].Type) {
				return false
			}
		}
		return true
	case MapType:
		bm := b.(MapType)
		return Equal(a.Key, bm.Key) && Equal(a.Value, bm.Value)
	case EnumerationType:
		bf := b.(EnumerationType).Fields
		if len(a.Fields) != len(bf) {
			return false
		}
		for i, f := range a.Fields {
			if f != bf[i] {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Unify returns the common type two series of the given types can be joined
// under. The engine provides identity unification plus the numeric widening
// path into double; every other combination fails.
func Unify(a, b Type) (Type, bool) {
	if Equal(a, b) {
		return a, true
	}
	ak, bk := a.Kind(), b.Kind()
	if ak == KindDouble && bk.Numeric() {
		return a, true
	}
	if bk == KindDouble && ak.Numeric() {
		return b, true
	}
	return nil, false
}
