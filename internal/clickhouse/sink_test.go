package clickhouse

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzir/tenzir-sub011/internal/batch"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/operator"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

// fakeConn records DDL and inserted rows and serves a canned table schema.
type fakeConn struct {
	tableExists bool
	schema      [][2]string
	execs       []string
	inserted    [][][]any
}

func (f *fakeConn) Exec(ctx context.Context, query string, args ...any) error {
	f.execs = append(f.execs, query)
	if strings.HasPrefix(query, "CREATE TABLE") {
		f.tableExists = true
	}
	return nil
}

type fakeRow struct{ exists uint8 }

func (r fakeRow) Scan(dest ...any) error {
	*dest[0].(*uint8) = r.exists
	return nil
}

func (f *fakeConn) QueryRow(ctx context.Context, query string, args ...any) Row {
	if f.tableExists {
		return fakeRow{exists: 1}
	}
	return fakeRow{exists: 0}
}

type fakeRows struct {
	rows [][2]string
	pos  int
}

func (r *fakeRows) Next() bool {
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	*dest[0].(*string) = r.rows[r.pos][0]
	*dest[1].(*string) = r.rows[r.pos][1]
	r.pos++
	return nil
}

func (r *fakeRows) Close() error { return nil }

func (f *fakeConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return &fakeRows{rows: f.schema}, nil
}

func (f *fakeConn) AppendRows(ctx context.Context, table string, rows [][]any) error {
	f.inserted = append(f.inserted, rows)
	return nil
}

func (f *fakeConn) Close() error { return nil }

func runSink(t *testing.T, conn *fakeConn, args Arguments, sink *diag.Sink, input ...batch.Batch) error {
	t.Helper()
	op := NewSink(args)
	op.connect = func() (*EasyClient, error) {
		return NewEasyClient(conn), nil
	}
	in := make(chan batch.Batch, len(input))
	for _, b := range input {
		in <- b
	}
	close(in)
	out := make(chan batch.Batch, 1)
	cp := operator.NewControlPlane(sink, nil, nil)
	return op.Run(context.Background(), in, out, cp)
}

func intIDBatch(t *testing.T, rows ...int64) batch.Batch {
	t.Helper()
	schema := types.MustRecord(types.Field{Name: "id", Type: types.Int64Type{}})
	data := make([]types.Data, len(rows))
	for i, v := range rows {
		data[i] = types.Record{Fields: []types.RecordField{{Name: "id", Value: types.Int64(v)}}}
	}
	arr, err := builder.FromData(schema, data)
	require.NoError(t, err)
	b, err := batch.FromSeries("test", series.Series{Type: schema, Array: arr})
	require.NoError(t, err)
	return b
}

func TestParseArguments(t *testing.T) {
	args, err := ParseArguments(map[string]any{"table": "events"})
	require.NoError(t, err)
	assert.Equal(t, "localhost", args.Host)
	assert.EqualValues(t, 9000, args.Port)
	assert.Equal(t, "default", args.User)
	assert.Equal(t, ModeCreateAppend, args.Mode)

	args, err = ParseArguments(map[string]any{
		"table": "events", "url": "ch.example.com:9440", "user": "ingest",
		"password": "s3cret", "mode": "append",
	})
	require.NoError(t, err)
	assert.Equal(t, "ch.example.com", args.Host)
	assert.EqualValues(t, 9440, args.Port)
	assert.Equal(t, ModeAppend, args.Mode)

	_, err = ParseArguments(map[string]any{})
	assert.Error(t, err, "table is required")
	_, err = ParseArguments(map[string]any{"table": "t", "mode": "truncate"})
	assert.Error(t, err)
	_, err = ParseArguments(map[string]any{"table": "t", "mode": "create"})
	assert.Error(t, err, "create requires primary")
	_, err = ParseArguments(map[string]any{"table": "t", "primary": "a.b"})
	assert.Error(t, err, "primary must be top-level")
}

func TestSinkCreatesTable(t *testing.T) {
	conn := &fakeConn{}
	sink := diag.NewSink(nil)
	args, err := ParseArguments(map[string]any{"table": "events", "primary": "id"})
	require.NoError(t, err)
	require.NoError(t, runSink(t, conn, args, sink, intIDBatch(t, 1, 2)))
	require.Len(t, conn.execs, 1)
	assert.Equal(t,
		"CREATE TABLE events (id Int64) ENGINE = MergeTree ORDER BY id SETTINGS allow_nullable_key=1",
		conn.execs[0])
	require.Len(t, conn.inserted, 1)
	require.Len(t, conn.inserted[0], 2)
	assert.Equal(t, []any{int64(1)}, conn.inserted[0][0])
}

func TestSinkModeValidation(t *testing.T) {
	sink := diag.NewSink(nil)
	args, err := ParseArguments(map[string]any{"table": "events", "mode": "append"})
	require.NoError(t, err)
	err = runSink(t, &fakeConn{tableExists: false}, args, sink)
	assert.Error(t, err, "append without table fails")
	assert.True(t, sink.Failed())

	sink = diag.NewSink(nil)
	args, err = ParseArguments(map[string]any{"table": "events", "mode": "create", "primary": "id"})
	require.NoError(t, err)
	err = runSink(t, &fakeConn{tableExists: true, schema: [][2]string{{"id", "Int64"}}}, args, sink)
	assert.Error(t, err, "create with existing table fails")
}

func TestSinkCreateAppendWithoutPrimaryFails(t *testing.T) {
	sink := diag.NewSink(nil)
	args, err := ParseArguments(map[string]any{"table": "events"})
	require.NoError(t, err)
	err = runSink(t, &fakeConn{}, args, sink)
	assert.Error(t, err)
}

// S4: a batch missing a required column yields an empty block and one
// diagnostic naming the column.
func TestSinkRequiredFieldDrop(t *testing.T) {
	conn := &fakeConn{
		tableExists: true,
		schema: [][2]string{
			{"id", "Int64"},
			{"ts", "DateTime64(9)"},
		},
	}
	sink := diag.NewSink(nil)
	args, err := ParseArguments(map[string]any{"table": "events"})
	require.NoError(t, err)
	require.NoError(t, runSink(t, conn, args, sink, intIDBatch(t, 1, 2, 3)))
	assert.Empty(t, conn.inserted, "no block may be inserted")
	var naming int
	for _, d := range sink.Diagnostics() {
		for _, n := range d.Notes {
			if strings.Contains(n, "`ts`") {
				naming++
			}
		}
	}
	assert.Equal(t, 1, naming)
}

func TestSinkUnknownColumnWarnsAndDrops(t *testing.T) {
	conn := &fakeConn{
		tableExists: true,
		schema:      [][2]string{{"id", "Int64"}, {"extra", "Nullable(String)"}},
	}
	sink := diag.NewSink(nil)
	schema := types.MustRecord(
		types.Field{Name: "id", Type: types.Int64Type{}},
		types.Field{Name: "unknown", Type: types.StringType{}},
	)
	data := []types.Data{types.Record{Fields: []types.RecordField{
		{Name: "id", Value: types.Int64(1)},
		{Name: "unknown", Value: types.String("x")},
	}}}
	arr, err := builder.FromData(schema, data)
	require.NoError(t, err)
	b, err := batch.FromSeries("test", series.Series{Type: schema, Array: arr})
	require.NoError(t, err)
	args, err := ParseArguments(map[string]any{"table": "events"})
	require.NoError(t, err)
	require.NoError(t, runSink(t, conn, args, sink, b))
	found := false
	for _, d := range sink.Diagnostics() {
		if strings.Contains(d.Message, "does not exist in ClickHouse table") {
			found = true
		}
	}
	assert.True(t, found)
	// The insert carries id plus a null column for `extra`.
	require.Len(t, conn.inserted, 1)
	require.Len(t, conn.inserted[0], 1)
	row := conn.inserted[0][0]
	require.Len(t, row, 2)
	assert.Equal(t, int64(1), row[0])
	assert.Nil(t, row[1])
}
