package operator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzir/tenzir-sub011/internal/batch"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

// forward passes batches through, tagging nothing.
type forward struct{}

func (forward) Name() string { return "forward" }

func (forward) Run(ctx context.Context, in <-chan batch.Batch, out chan<- batch.Batch, cp ControlPlane) error {
	for {
		select {
		case b, ok := <-in:
			if !ok {
				return nil
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func makeBatch(t *testing.T, n int) batch.Batch {
	t.Helper()
	schema := types.MustRecord(types.Field{Name: "x", Type: types.Int64Type{}})
	rows := make([]types.Data, n)
	for i := range rows {
		rows[i] = types.Record{Fields: []types.RecordField{{Name: "x", Value: types.Int64(int64(i))}}}
	}
	arr, err := builder.FromData(schema, rows)
	require.NoError(t, err)
	b, err := batch.FromSeries("test", series.Series{Type: schema, Array: arr})
	require.NoError(t, err)
	return b
}

func TestPipelinePreservesBatchOrder(t *testing.T) {
	cp := NewControlPlane(diag.NewSink(nil), nil, nil)
	source := make(chan batch.Batch, 3)
	sizes := []int{1, 2, 3}
	for _, n := range sizes {
		source <- makeBatch(t, n)
	}
	close(source)
	out, wait := NewPipeline(forward{}, forward{}).Run(context.Background(), cp, source)
	var got []int
	for b := range out {
		got = append(got, b.Rows())
	}
	require.NoError(t, wait())
	assert.Equal(t, sizes, got)
}

func TestRegistry(t *testing.T) {
	Register("test_registry_probe", func(args map[string]any) (Operator, error) {
		return forward{}, nil
	})
	factory, ok := Lookup("test_registry_probe")
	require.True(t, ok)
	op, err := factory(nil)
	require.NoError(t, err)
	assert.Equal(t, "forward", op.Name())
	_, ok = Lookup("no_such_operator")
	assert.False(t, ok)
	assert.Panics(t, func() {
		Register("test_registry_probe", func(map[string]any) (Operator, error) { return nil, nil })
	})
}

func TestMapRegistry(t *testing.T) {
	r := MapRegistry{"a": types.Int64Type{}}
	typ, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, types.KindInt64, typ.Kind())
	_, ok = r.Get("b")
	assert.False(t, ok)
}
