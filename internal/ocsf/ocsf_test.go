package ocsf

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzir/tenzir-sub011/internal/batch"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
	"github.com/tenzir/tenzir-sub011/internal/view"
)

func TestMangleVersion(t *testing.T) {
	assert.Equal(t, "v1_5_0", MangleVersion("1.5.0"))
	assert.Equal(t, "v1_0_0_rc1", MangleVersion("1.0.0-rc1"))
	assert.Equal(t, "v102", MangleVersion("1!0?2"))
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "process_activity", SnakeCase("Process Activity"))
	assert.Equal(t, "authentication", SnakeCase("Authentication"))
}

func TestSchemaName(t *testing.T) {
	assert.Equal(t, "_ocsf.v1_5_0.authentication", SchemaName("1.5.0", "Authentication"))
}

func TestRegistryLoads(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)
	schema, ok := registry.Get("_ocsf.v1_5_0.authentication")
	require.True(t, ok)
	rt, ok := schema.(types.RecordType)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(rt.Fields), 10)
	unmapped, ok := rt.FieldType("unmapped")
	require.True(t, ok)
	assert.True(t, types.HasAttribute(unmapped, "print_json"))
	assert.True(t, types.HasAttribute(unmapped, "must_be_record"))
	assert.True(t, types.HasAttribute(unmapped, "nullify_empty_records"))
	actor, ok := rt.FieldType("actor")
	require.True(t, ok)
	profile, ok := types.GetAttribute(actor, "profile")
	require.True(t, ok)
	assert.Equal(t, "host", profile)
	for _, version := range []string{"1.0.0", "1.1.0", "1.2.0", "1.3.0", "1.4.0", "1.5.0"} {
		_, ok := registry.Get(SchemaName(version, "Authentication"))
		assert.True(t, ok, version)
		_, ok = registry.Get(SchemaName(version, "Process Activity"))
		assert.True(t, ok, version)
	}
}

// metadataType is the minimal input metadata shape used in tests.
func metadataType(t *testing.T) types.RecordType {
	t.Helper()
	return types.MustRecord(
		types.Field{Name: "version", Type: types.StringType{}},
		types.Field{Name: "profiles", Type: types.NewList(types.StringType{})},
	)
}

func metadataValue(version string, profiles ...string) types.Data {
	var list types.List
	for _, p := range profiles {
		list.Elems = append(list.Elems, types.String(p))
	}
	return types.Record{Fields: []types.RecordField{
		{Name: "version", Value: types.String(version)},
		{Name: "profiles", Value: list},
	}}
}

func authBatch(t *testing.T, rows []types.Data, fields []types.Field) batch.Batch {
	t.Helper()
	schema, err := types.NewRecord(fields)
	require.NoError(t, err)
	arr, err := builder.FromData(schema, rows)
	require.NoError(t, err)
	b, err := batch.FromSeries("auth.input", series.Series{Type: schema, Array: arr})
	require.NoError(t, err)
	return b
}

func authFields(t *testing.T) []types.Field {
	return []types.Field{
		{Name: "metadata", Type: metadataType(t)},
		{Name: "class_uid", Type: types.Int64Type{}},
		{Name: "status", Type: types.StringType{}},
	}
}

func authRow(version, status string, profiles ...string) types.Data {
	return types.Record{Fields: []types.RecordField{
		{Name: "metadata", Value: metadataValue(version, profiles...)},
		{Name: "class_uid", Value: types.Int64(3002)},
		{Name: "status", Value: types.String(status)},
	}}
}

func testRegistry(t *testing.T) interface {
	Get(string) (types.Type, bool)
} {
	t.Helper()
	registry, err := NewRegistry()
	require.NoError(t, err)
	return registry
}

// S5: rows with different versions split into per-version output batches.
func TestVersionSegmentation(t *testing.T) {
	sink := diag.NewSink(nil)
	b := authBatch(t, []types.Data{
		authRow("1.0.0", "a"),
		authRow("1.0.0", "b"),
		authRow("1.1.0", "c"),
		authRow("1.1.0", "d"),
	}, authFields(t))
	op := NewOperator(true)
	results := op.Apply(b, testRegistry(t), sink)
	require.Len(t, results, 2)
	assert.Equal(t, "ocsf.authentication", results[0].Name)
	assert.Equal(t, "ocsf.authentication", results[1].Name)
	assert.Equal(t, 2, results[0].Rows())
	assert.Equal(t, 2, results[1].Rows())
}

// P7: segmented casting equals whole-batch casting when the keys are
// constant.
func TestPartitioningCorrectness(t *testing.T) {
	rows := []types.Data{
		authRow("1.5.0", "a"),
		authRow("1.5.0", "b"),
		authRow("1.5.0", "c"),
	}
	fields := authFields(t)
	registry := testRegistry(t)

	whole := NewOperator(true).Apply(authBatch(t, rows, fields), registry, diag.NewSink(nil))
	require.Len(t, whole, 1)

	var pieces []batch.Batch
	for i := range rows {
		part := NewOperator(true).Apply(authBatch(t, rows[i:i+1], fields), registry, diag.NewSink(nil))
		require.Len(t, part, 1)
		pieces = append(pieces, part[0])
	}
	total := 0
	for _, p := range pieces {
		assert.True(t, types.Equal(whole[0].Schema, p.Schema))
		total += p.Rows()
	}
	assert.Equal(t, whole[0].Rows(), total)
	// Spot-check a value column survives identically.
	wholeStatus, ok := whole[0].ColumnByName("status")
	require.True(t, ok)
	firstStatus, ok := pieces[0].ColumnByName("status")
	require.True(t, ok)
	assert.Equal(t, wholeStatus.ValueAt(0), firstStatus.ValueAt(0))
}

func TestUnknownVersionDropsSegment(t *testing.T) {
	sink := diag.NewSink(nil)
	b := authBatch(t, []types.Data{authRow("9.9.9", "a")}, authFields(t))
	results := NewOperator(true).Apply(b, testRegistry(t), sink)
	assert.Empty(t, results)
	found := false
	for _, d := range sink.Diagnostics() {
		if strings.Contains(d.Message, "unknown OCSF version") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMissingMetadataDropsBatch(t *testing.T) {
	sink := diag.NewSink(nil)
	schema := types.MustRecord(types.Field{Name: "class_uid", Type: types.Int64Type{}})
	arr, err := builder.FromData(schema, []types.Data{
		types.Record{Fields: []types.RecordField{{Name: "class_uid", Value: types.Int64(3002)}}},
	})
	require.NoError(t, err)
	b, err := batch.FromSeries("x", series.Series{Type: schema, Array: arr})
	require.NoError(t, err)
	results := NewOperator(true).Apply(b, testRegistry(t), sink)
	assert.Empty(t, results)
}

// Profile gating: actor is dropped unless the `host` profile is enabled.
func TestProfileGating(t *testing.T) {
	fields := append(authFields(t), types.Field{
		Name: "actor",
		Type: types.MustRecord(types.Field{Name: "process", Type: types.MustRecord(
			types.Field{Name: "name", Type: types.StringType{}},
		)}),
	})
	actorValue := types.Record{Fields: []types.RecordField{
		{Name: "process", Value: types.Record{Fields: []types.RecordField{
			{Name: "name", Value: types.String("sshd")},
		}}},
	}}
	withActor := func(version string, profiles ...string) types.Data {
		return types.Record{Fields: []types.RecordField{
			{Name: "metadata", Value: metadataValue(version, profiles...)},
			{Name: "class_uid", Value: types.Int64(3002)},
			{Name: "status", Value: types.String("ok")},
			{Name: "actor", Value: actorValue},
		}}
	}
	// Without the profile, actor is gone and a diagnostic explains why.
	sink := diag.NewSink(nil)
	results := NewOperator(true).Apply(
		authBatch(t, []types.Data{withActor("1.5.0")}, fields), testRegistry(t), sink)
	require.Len(t, results, 1)
	assert.Equal(t, -1, results[0].Schema.FieldIndex("actor"))
	gated := false
	for _, d := range sink.Diagnostics() {
		if strings.Contains(d.Message, "profile `host` is not enabled") {
			gated = true
		}
	}
	assert.True(t, gated)
	// With the profile the field survives.
	sink = diag.NewSink(nil)
	results = NewOperator(true).Apply(
		authBatch(t, []types.Data{withActor("1.5.0", "host")}, fields), testRegistry(t), sink)
	require.Len(t, results, 1)
	assert.GreaterOrEqual(t, results[0].Schema.FieldIndex("actor"), 0)
}

// S6: print_json of an empty record with nullify_empty_records.
func TestPrintJSONEmptyRecord(t *testing.T) {
	target := types.WithAttributes(types.StringType{},
		types.Attribute{Key: "print_json"},
		types.Attribute{Key: "must_be_record"},
		types.Attribute{Key: "nullify_empty_records"})
	empty := types.RecordType{}
	arr, err := builder.FromData(empty, []types.Data{types.Record{}})
	require.NoError(t, err)
	input := series.Series{Type: empty, Array: arr}

	on := &caster{loc: diag.UnknownLocation, dh: diag.NewSink(nil), printJSON: true}
	out := on.castSeries(input, target, "unmapped")
	assert.Equal(t, types.KindString, out.Type.Kind())
	assert.True(t, out.Array.IsNull(0), "empty record renders as JSON null")

	off := &caster{loc: diag.UnknownLocation, dh: diag.NewSink(nil), printJSON: false}
	outOff := off.castSeries(input, target, "unmapped")
	assert.Equal(t, types.KindNull, outOff.Type.Kind(), "output is null-typed when JSON printing is off")
}

func TestPrintJSONRendersRecords(t *testing.T) {
	target := types.WithAttributes(types.StringType{}, types.Attribute{Key: "print_json"})
	inner := types.MustRecord(
		types.Field{Name: "b", Type: types.BoolType{}},
		types.Field{Name: "n", Type: types.Int64Type{}},
		types.Field{Name: "s", Type: types.StringType{}},
	)
	arr, err := builder.FromData(inner, []types.Data{
		types.Record{Fields: []types.RecordField{
			{Name: "b", Value: types.Bool(true)},
			{Name: "n", Value: types.Int64(42)},
			{Name: "s", Value: types.String("x\"y")},
		}},
		types.Null{},
	})
	require.NoError(t, err)
	c := &caster{loc: diag.UnknownLocation, dh: diag.NewSink(nil), printJSON: true}
	out := c.castSeries(series.Series{Type: inner, Array: arr}, target, "raw_data")
	require.Equal(t, types.KindString, out.Type.Kind())
	got := view.ValueAt(out.Type, out.Array, 0)
	assert.Equal(t, types.String(`{"b":true,"n":42,"s":"x\"y"}`), got)
	assert.True(t, out.Array.IsNull(1), "null rows stay null")
}

func TestPrintJSONStringPassthrough(t *testing.T) {
	target := types.WithAttributes(types.StringType{}, types.Attribute{Key: "print_json"})
	arr, err := builder.FromData(types.StringType{}, []types.Data{types.String(`{"a":1}`)})
	require.NoError(t, err)
	c := &caster{loc: diag.UnknownLocation, dh: diag.NewSink(nil), printJSON: true}
	out := c.castSeries(series.Series{Type: types.StringType{}, Array: arr}, target, "raw")
	assert.Equal(t, types.String(`{"a":1}`), view.ValueAt(out.Type, out.Array, 0))
}

func TestTypeMismatchNullsColumn(t *testing.T) {
	sink := diag.NewSink(nil)
	c := &caster{loc: diag.UnknownLocation, dh: sink, printJSON: true}
	arr, err := builder.FromData(types.StringType{}, []types.Data{types.String("not a number")})
	require.NoError(t, err)
	out := c.castSeries(series.Series{Type: types.StringType{}, Array: arr}, types.Int64Type{}, "severity_id")
	assert.Equal(t, types.KindInt64, out.Type.Kind())
	assert.True(t, out.Array.IsNull(0))
	found := false
	for _, d := range sink.Diagnostics() {
		if strings.Contains(d.Message, "expected type `int64`") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTimeRendersAsRFC3339(t *testing.T) {
	target := types.WithAttributes(types.StringType{}, types.Attribute{Key: "print_json"})
	arr, err := builder.FromData(types.TimeType{}, []types.Data{
		types.Time(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	c := &caster{loc: diag.UnknownLocation, dh: diag.NewSink(nil), printJSON: true}
	out := c.castSeries(series.Series{Type: types.TimeType{}, Array: arr}, target, "t")
	assert.Equal(t, types.String(`"2024-05-01T12:00:00Z"`), view.ValueAt(out.Type, out.Array, 0))
}
