package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzir/tenzir-sub011/internal/ast"
	"github.com/tenzir/tenzir-sub011/internal/batch"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/operator"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

func runOperator(t *testing.T, op operator.Operator, sink *diag.Sink, input ...batch.Batch) []batch.Batch {
	t.Helper()
	in := make(chan batch.Batch, len(input))
	for _, b := range input {
		in <- b
	}
	close(in)
	out := make(chan batch.Batch, len(input)+4)
	cp := operator.NewControlPlane(sink, nil, nil)
	require.NoError(t, op.Run(context.Background(), in, out, cp))
	close(out)
	var results []batch.Batch
	for b := range out {
		results = append(results, b)
	}
	return results
}

func TestWhereFiltersRows(t *testing.T) {
	sink := diag.NewSink(nil)
	b := intBatch(t, "x", 1, nil, 3, 4)
	op, err := NewWhere(binary(ast.OpGt, root("x"), constant(types.Int64(2))))
	require.NoError(t, err)
	results := runOperator(t, op, sink, b)
	require.Len(t, results, 1)
	out := results[0]
	require.Equal(t, 2, out.Rows())
	col, ok := out.ColumnByName("x")
	require.True(t, ok)
	assert.Equal(t, types.Int64(3), col.ValueAt(0))
	assert.Equal(t, types.Int64(4), col.ValueAt(1))
}

func TestWhereKeepsOrder(t *testing.T) {
	sink := diag.NewSink(nil)
	b := intBatch(t, "x", 5, 1, 6, 2, 7)
	op, err := NewWhere(binary(ast.OpGt, root("x"), constant(types.Int64(4))))
	require.NoError(t, err)
	results := runOperator(t, op, sink, b)
	require.Len(t, results, 1)
	col, _ := results[0].ColumnByName("x")
	assert.Equal(t, types.Int64(5), col.ValueAt(0))
	assert.Equal(t, types.Int64(6), col.ValueAt(1))
	assert.Equal(t, types.Int64(7), col.ValueAt(2))
}

func TestSetReplacesAndAppends(t *testing.T) {
	sink := diag.NewSink(nil)
	b := intBatch(t, "x", 1, 2)
	doubled := &ast.Assignment{
		Left:     &ast.Selector{Path: []string{"x"}, Location: diag.UnknownLocation},
		Right:    binary(ast.OpMul, root("x"), constant(types.Int64(2))),
		Location: diag.UnknownLocation,
	}
	tagged := &ast.Assignment{
		Left:     &ast.Selector{Path: []string{"tag"}, Location: diag.UnknownLocation},
		Right:    constant(types.String("new")),
		Location: diag.UnknownLocation,
	}
	op, err := NewSet([]*ast.Assignment{doubled, tagged})
	require.NoError(t, err)
	results := runOperator(t, op, sink, b)
	require.Len(t, results, 1)
	out := results[0]
	require.Equal(t, 2, out.Columns())
	assert.Equal(t, "x", out.Schema.Fields[0].Name)
	assert.Equal(t, "tag", out.Schema.Fields[1].Name)
	x, _ := out.ColumnByName("x")
	assert.Equal(t, types.Int64(2), x.ValueAt(0))
	assert.Equal(t, types.Int64(4), x.ValueAt(1))
	tag, _ := out.ColumnByName("tag")
	assert.Equal(t, types.String("new"), tag.ValueAt(0))
}

func TestSetRejectsNestedSelector(t *testing.T) {
	_, err := NewSet([]*ast.Assignment{{
		Left:  &ast.Selector{Path: []string{"a", "b"}, Location: diag.UnknownLocation},
		Right: constant(types.Int64(1)),
	}})
	assert.Error(t, err)
}

func TestPassForwards(t *testing.T) {
	sink := diag.NewSink(nil)
	b := intBatch(t, "x", 1)
	results := runOperator(t, PassOperator{}, sink, b)
	require.Len(t, results, 1)
	assert.Equal(t, b.Rows(), results[0].Rows())
}

func TestPassFactoryRejectsArgs(t *testing.T) {
	factory, ok := operator.Lookup("pass")
	require.True(t, ok)
	_, err := factory(map[string]any{"bogus": 1})
	assert.Error(t, err)
}
