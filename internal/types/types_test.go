package types

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindNames(t *testing.T) {
	cases := map[Kind]string{
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
	for kind, name := range cases {
		assert.Equal(t, name, kind.String())
	}
}

func TestAttributes(t *testing.T) {
	base := StringType{}
	assert.Empty(t, base.Attributes())
	withAttrs := WithAttributes(base, Attribute{Key: "print_json"}, Attribute{Key: "profile", Value: "host"})
	value, ok := GetAttribute(withAttrs, "profile")
	require.True(t, ok)
	assert.Equal(t, "host", value)
	assert.True(t, HasAttribute(withAttrs, "print_json"))
	_, ok = GetAttribute(withAttrs, "missing")
	assert.False(t, ok)
	// The original type is unchanged.
	assert.Empty(t, base.Attributes())
}

func TestAttributeFirstWins(t *testing.T) {
	typ := WithAttributes(StringType{},
		Attribute{Key: "profile", Value: "first"},
		Attribute{Key: "profile", Value: "second"})
	value, ok := GetAttribute(typ, "profile")
	require.True(t, ok)
	assert.Equal(t, "first", value)
}

func TestRecordValidation(t *testing.T) {
	_, err := NewRecord([]Field{{Name: "", Type: Int64Type{}}})
	assert.Error(t, err)
	_, err = NewRecord([]Field{
		{Name: "x", Type: Int64Type{}},
		{Name: "x", Type: StringType{}},
	})
	assert.Error(t, err)
	rec, err := NewRecord([]Field{
		{Name: "x", Type: Int64Type{}},
		{Name: "y", Type: StringType{}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.FieldIndex("y"))
	assert.Equal(t, -1, rec.FieldIndex("z"))
}

func TestEnumerationValidation(t *testing.T) {
	_, err := NewEnumeration([]EnumField{{Name: "a", Value: 0}, {Name: "a", Value: 1}})
	assert.Error(t, err, "duplicate labels must be rejected")
	_, err = NewEnumeration([]EnumField{{Name: "a", Value: 0}, {Name: "b", Value: 2}})
	assert.Error(t, err, "values must be dense")
	enum, err := NewEnumeration([]EnumField{{Name: "a", Value: 1}, {Name: "b", Value: 0}})
	require.NoError(t, err)
	label, ok := enum.Field(1)
	require.True(t, ok)
	assert.Equal(t, "a", label)
	value, ok := enum.Resolve("b")
	require.True(t, ok)
	assert.EqualValues(t, 0, value)
}

func TestEqualIgnoresAttributes(t *testing.T) {
	a := NewList(Int64Type{})
	b := WithAttributes(NewList(Int64Type{}), Attribute{Key: "x"})
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, NewList(StringType{})))
}

func TestUnify(t *testing.T) {
	u, ok := Unify(Int64Type{}, Int64Type{})
	require.True(t, ok)
	assert.Equal(t, KindInt64, u.Kind())
	u, ok = Unify(DoubleType{}, Int64Type{})
	require.True(t, ok)
	assert.Equal(t, KindDouble, u.Kind())
	u, ok = Unify(UInt64Type{}, DoubleType{})
	require.True(t, ok)
	assert.Equal(t, KindDouble, u.Kind())
	_, ok = Unify(Int64Type{}, UInt64Type{})
	assert.False(t, ok)
	_, ok = Unify(StringType{}, Int64Type{})
	assert.False(t, ok)
}

func TestCheck(t *testing.T) {
	rec := MustRecord(
		Field{Name: "x", Type: Int64Type{}},
		Field{Name: "y", Type: StringType{}},
	)
	// Order-insensitive by name.
	assert.True(t, Check(rec, Record{Fields: []RecordField{
		{Name: "y", Value: String("a")},
		{Name: "x", Value: Int64(1)},
	}}))
	assert.False(t, Check(rec, Record{Fields: []RecordField{
		{Name: "x", Value: String("wrong")},
		{Name: "y", Value: String("a")},
	}}))
	// Null matches everything.
	assert.True(t, Check(Int64Type{}, Null{}))
	// Lists check element-wise.
	assert.True(t, Check(NewList(Int64Type{}), List{Elems: []Data{Int64(1), Null{}}}))
	assert.False(t, Check(NewList(Int64Type{}), List{Elems: []Data{String("no")}}))
}

func TestInfer(t *testing.T) {
	typ, err := Infer(Record{Fields: []RecordField{
		{Name: "n", Value: Int64(1)},
		{Name: "s", Value: String("x")},
		{Name: "l", Value: List{Elems: []Data{Double(1.5)}}},
	}})
	require.NoError(t, err)
	rec, ok := typ.(RecordType)
	require.True(t, ok)
	require.Len(t, rec.Fields, 3)
	assert.Equal(t, KindInt64, rec.Fields[0].Type.Kind())
	assert.Equal(t, KindString, rec.Fields[1].Type.Kind())
	assert.Equal(t, "list<double>", rec.Fields[2].Type.String())

	_, err = Infer(List{})
	assert.Error(t, err, "empty lists have no decidable element type")

	typ, err = Infer(IP(netip.MustParseAddr("10.0.0.1")))
	require.NoError(t, err)
	assert.Equal(t, KindIP, typ.Kind())
	typ, err = Infer(Duration(time.Second))
	require.NoError(t, err)
	assert.Equal(t, KindDuration, typ.Kind())
}

func TestLegacyRoundTrip(t *testing.T) {
	enum, err := NewEnumeration([]EnumField{{Name: "low", Value: 0}, {Name: "high", Value: 1}})
	require.NoError(t, err)
	original := MustRecord(
		Field{Name: "id", Type: UInt64Type{}},
		Field{Name: "ts", Type: TimeType{}},
		Field{Name: "src", Type: IPType{}},
		Field{Name: "net", Type: SubnetType{}},
		Field{Name: "level", Type: enum},
		Field{Name: "tags", Type: NewList(StringType{})},
		Field{Name: "extra", Type: WithAttributes(StringType{}, Attribute{Key: "print_json"})},
	)
	legacy, err := ToLegacy(original)
	require.NoError(t, err)
	assert.Equal(t, "record", legacy.Name)
	back, err := FromLegacy(legacy)
	require.NoError(t, err)
	assert.True(t, Equal(original, back))
	// Attributes survive the trip.
	rt := back.(RecordType)
	extra, ok := rt.FieldType("extra")
	require.True(t, ok)
	assert.True(t, HasAttribute(extra, "print_json"))
}

func TestLegacyNames(t *testing.T) {
	cases := []struct {
		typ  Type
		name string
	}{
		{Int64Type{}, "integer"},
		{UInt64Type{}, "count"},
		{DoubleType{}, "real"},
		{IPType{}, "address"},
	}
	for _, c := range cases {
		legacy, err := ToLegacy(c.typ)
		require.NoError(t, err)
		assert.Equal(t, c.name, legacy.Name)
	}
}

func TestSubnetContains(t *testing.T) {
	net := Subnet(netip.MustParsePrefix("10.0.0.0/8"))
	assert.True(t, net.Contains(netip.MustParseAddr("10.1.2.3")))
	assert.False(t, net.Contains(netip.MustParseAddr("11.0.0.1")))
	// v4-mapped addresses match their v4 prefix.
	assert.True(t, net.Contains(netip.AddrFrom16(netip.MustParseAddr("10.1.2.3").As16())))
	assert.True(t, net.ContainsSubnet(Subnet(netip.MustParsePrefix("10.2.0.0/16"))))
	assert.False(t, net.ContainsSubnet(Subnet(netip.MustParsePrefix("0.0.0.0/0"))))
}
