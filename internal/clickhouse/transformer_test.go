package clickhouse

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

func TestTypenameFor(t *testing.T) {
	cases := []struct {
		typ      types.Type
		nullable bool
		want     string
	}{
		{types.Int64Type{}, false, "Int64"},
		{types.Int64Type{}, true, "Nullable(Int64)"},
		{types.UInt64Type{}, false, "UInt64"},
		{types.DoubleType{}, true, "Nullable(Float64)"},
		{types.StringType{}, false, "String"},
		{types.DurationType{}, false, "Int64"},
		{types.TimeType{}, true, "Nullable(DateTime64(9))"},
		{types.IPType{}, false, "IPv6"},
		{types.SubnetType{}, false, "Tuple(ip IPv6,length UInt8)"},
		{types.SubnetType{}, true, "Tuple(ip Nullable(IPv6),length Nullable(UInt8))"},
		{types.NewList(types.StringType{}), true, "Array(Nullable(String))"},
	}
	for _, c := range cases {
		got, err := TypenameFor(c.typ, c.nullable)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
	_, err := TypenameFor(types.BoolType{}, false)
	assert.Error(t, err, "bool has no ClickHouse mapping")
	_, err = TypenameFor(types.MapType{Key: types.StringType{}, Value: types.StringType{}}, false)
	assert.Error(t, err)
}

func TestPlainTupleElements(t *testing.T) {
	schema := types.MustRecord(
		types.Field{Name: "id", Type: types.Int64Type{}},
		types.Field{Name: "name", Type: types.StringType{}},
	)
	got, err := PlainTupleElements(schema, "id")
	require.NoError(t, err)
	assert.Equal(t, "(id Int64, name Nullable(String))", got)
}

func TestRemoveNonSignificantWhitespace(t *testing.T) {
	cases := map[string]string{
		"Tuple(ip IPv6, length UInt8)":    "Tuple(ip IPv6,length UInt8)",
		"Tuple( ip  IPv6 , length UInt8)": "Tuple(ip IPv6,length UInt8)",
		"Array( Nullable(String) )":       "Array(Nullable(String))",
		"Int64":                           "Int64",
	}
	for input, want := range cases {
		assert.Equal(t, want, RemoveNonSignificantWhitespace(input), "input %q", input)
	}
}

func TestTransformerForRoundTrip(t *testing.T) {
	names := []string{
		"Int64",
		"Nullable(Int64)",
		"Nullable(DateTime64(9))",
		"Array(Nullable(String))",
		"Tuple(ip IPv6,length UInt8)",
		"Tuple(a Nullable(Int64),b Nullable(String))",
	}
	for _, name := range names {
		trafo, err := TransformerFor(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, trafo.TargetTypename())
	}
	_, err := TransformerFor("Enum8('a' = 1)")
	assert.Error(t, err)
}

func TestTupleNullability(t *testing.T) {
	allNullable, err := TransformerFor("Tuple(a Nullable(Int64),b Nullable(String))")
	require.NoError(t, err)
	assert.True(t, allNullable.TargetNullable())
	mixed, err := TransformerFor("Tuple(a Int64,b Nullable(String))")
	require.NoError(t, err)
	assert.False(t, mixed.TargetNullable())
	arr, err := TransformerFor("Array(Nullable(Int64))")
	require.NoError(t, err)
	assert.True(t, arr.TargetNullable())
}

func TestScalarDropmask(t *testing.T) {
	sink := diag.NewSink(nil)
	trafo, err := TransformerFor("Int64")
	require.NoError(t, err)
	arr, err := builder.FromData(types.Int64Type{}, []types.Data{
		types.Int64(1), types.Null{}, types.Int64(3),
	})
	require.NoError(t, err)
	mask := make(Dropmask, 3)
	updated := trafo.UpdateDropmask("x", types.Int64Type{}, arr, mask, sink)
	assert.Equal(t, DropSome, updated)
	assert.Equal(t, []bool{false, true, false}, []bool(mask))
	col := trafo.CreateColumn("x", types.Int64Type{}, arr, mask, sink)
	require.Len(t, col, 2)
	assert.Equal(t, int64(1), col[0])
	assert.Equal(t, int64(3), col[1])
}

func TestNullableScalarKeepsNulls(t *testing.T) {
	sink := diag.NewSink(nil)
	trafo, err := TransformerFor("Nullable(Int64)")
	require.NoError(t, err)
	arr, err := builder.FromData(types.Int64Type{}, []types.Data{
		types.Int64(1), types.Null{},
	})
	require.NoError(t, err)
	mask := make(Dropmask, 2)
	updated := trafo.UpdateDropmask("x", types.Int64Type{}, arr, mask, sink)
	assert.Equal(t, DropNone, updated)
	col := trafo.CreateColumn("x", types.Int64Type{}, arr, mask, sink)
	require.Len(t, col, 2)
	assert.Equal(t, int64(1), col[0])
	assert.Nil(t, col[1])
}

func TestDurationStoresNanoseconds(t *testing.T) {
	sink := diag.NewSink(nil)
	trafo, err := TransformerFor("Nullable(Int64)")
	require.NoError(t, err)
	arr, err := builder.FromData(types.DurationType{}, []types.Data{
		types.Duration(90 * time.Second),
	})
	require.NoError(t, err)
	mask := make(Dropmask, 1)
	trafo.UpdateDropmask("d", types.DurationType{}, arr, mask, sink)
	col := trafo.CreateColumn("d", types.DurationType{}, arr, mask, sink)
	require.Len(t, col, 1)
	assert.Equal(t, int64(90*time.Second), col[0])
}

func TestListElementNullDropsRow(t *testing.T) {
	sink := diag.NewSink(nil)
	trafo, err := TransformerFor("Array(Int64)")
	require.NoError(t, err)
	lt := types.NewList(types.Int64Type{})
	arr, err := builder.FromData(lt, []types.Data{
		types.List{Elems: []types.Data{types.Int64(1), types.Int64(2)}},
		types.List{Elems: []types.Data{types.Null{}}},
		types.List{Elems: []types.Data{types.Int64(3)}},
	})
	require.NoError(t, err)
	mask := make(Dropmask, 3)
	updated := trafo.UpdateDropmask("xs", lt, arr, mask, sink)
	assert.Equal(t, DropSome, updated)
	assert.Equal(t, []bool{false, true, false}, []bool(mask))
	col := trafo.CreateColumn("xs", lt, arr, mask, sink)
	require.Len(t, col, 2)
	assert.Equal(t, []any{int64(1), int64(2)}, col[0])
	assert.Equal(t, []any{int64(3)}, col[1])
}

func TestRecordMissingRequiredColumnDropsAll(t *testing.T) {
	sink := diag.NewSink(nil)
	trafo, err := TransformerFor("Tuple(a Int64,b Nullable(String))")
	require.NoError(t, err)
	input := types.MustRecord(types.Field{Name: "b", Type: types.StringType{}})
	arr, err := builder.FromData(input, []types.Data{
		types.Record{Fields: []types.RecordField{{Name: "b", Value: types.String("x")}}},
	})
	require.NoError(t, err)
	mask := make(Dropmask, 1)
	updated := trafo.UpdateDropmask("r", input, arr, mask, sink)
	assert.Equal(t, DropAll, updated)
	assert.True(t, mask[0])
	found := false
	for _, d := range sink.Diagnostics() {
		if strings.Contains(d.Message, "required column missing") {
			found = true
		}
	}
	assert.True(t, found)
	trafo.CreateColumn("r", input, arr, mask, sink)
}

func TestOutOfSequencePanics(t *testing.T) {
	sink := diag.NewSink(nil)
	trafo, err := TransformerFor("Int64")
	require.NoError(t, err)
	arr, err := builder.FromData(types.Int64Type{}, []types.Data{types.Int64(1)})
	require.NoError(t, err)
	mask := make(Dropmask, 1)
	trafo.UpdateDropmask("x", types.Int64Type{}, arr, mask, sink)
	assert.Panics(t, func() {
		trafo.UpdateDropmask("x", types.Int64Type{}, arr, mask, sink)
	})
}

func TestCreateWithoutUpdatePanics(t *testing.T) {
	sink := diag.NewSink(nil)
	trafo, err := TransformerFor("Int64")
	require.NoError(t, err)
	arr, err := builder.FromData(types.Int64Type{}, []types.Data{types.Int64(1)})
	require.NoError(t, err)
	assert.Panics(t, func() {
		trafo.CreateColumn("x", types.Int64Type{}, arr, make(Dropmask, 1), sink)
	})
}

// Running a tree twice over an already-conformant batch produces identical
// output the second time.
func TestTransformerIdempotence(t *testing.T) {
	sink := diag.NewSink(nil)
	trafo, err := TransformerFor("Nullable(String)")
	require.NoError(t, err)
	arr, err := builder.FromData(types.StringType{}, []types.Data{
		types.String("a"), types.Null{}, types.String("c"),
	})
	require.NoError(t, err)
	run := func() Column {
		mask := make(Dropmask, 3)
		trafo.UpdateDropmask("s", types.StringType{}, arr, mask, sink)
		return trafo.CreateColumn("s", types.StringType{}, arr, mask, sink)
	}
	assert.Equal(t, run(), run())
}

func TestIncompatibleNonNullableDropsAll(t *testing.T) {
	sink := diag.NewSink(nil)
	trafo, err := TransformerFor("Int64")
	require.NoError(t, err)
	arr, err := builder.FromData(types.StringType{}, []types.Data{types.String("x")})
	require.NoError(t, err)
	mask := make(Dropmask, 1)
	updated := trafo.UpdateDropmask("x", types.StringType{}, arr, mask, sink)
	assert.Equal(t, DropAll, updated)
	assert.True(t, mask[0])
}
