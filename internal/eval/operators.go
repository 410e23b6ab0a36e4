package eval

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"

	"github.com/tenzir/tenzir-sub011/internal/ast"
	"github.com/tenzir/tenzir-sub011/internal/batch"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/operator"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

func init() {
	operator.Register("pass", func(args map[string]any) (operator.Operator, error) {
		if len(args) > 0 {
			return nil, fmt.Errorf("`pass` takes no arguments")
		}
		return PassOperator{}, nil
	})
}

// send pushes a batch downstream, honoring cancellation.
func send(ctx context.Context, out chan<- batch.Batch, b batch.Batch) error {
	select {
	case out <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PassOperator forwards batches unchanged.
type PassOperator struct{}

func (PassOperator) Name() string { return "pass" }

func (PassOperator) Run(ctx context.Context, in <-chan batch.Batch, out chan<- batch.Batch, cp operator.ControlPlane) error {
	for {
		select {
		case b, ok := <-in:
			if !ok {
				return nil
			}
			if err := send(ctx, out, b); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WhereOperator keeps the rows for which the predicate evaluates to true.
// Null and non-bool predicate results drop the row; non-bool parts
// additionally warn.
type WhereOperator struct {
	Predicate ast.Expression
}

// NewWhere validates and builds a `where` operator.
func NewWhere(predicate ast.Expression) (*WhereOperator, error) {
	if predicate == nil {
		return nil, fmt.Errorf("`where` requires a predicate")
	}
	return &WhereOperator{Predicate: predicate}, nil
}

func (*WhereOperator) Name() string { return "where" }

func (o *WhereOperator) Run(ctx context.Context, in <-chan batch.Batch, out chan<- batch.Batch, cp operator.ControlPlane) error {
	for {
		select {
		case b, ok := <-in:
			if !ok {
				return nil
			}
			filtered := o.apply(b, cp.Diagnostics())
			if err := send(ctx, out, filtered); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *WhereOperator) apply(b batch.Batch, dh diag.Handler) batch.Batch {
	e := New(&b, dh)
	result := e.Eval(o.Predicate)
	keep := make([]bool, b.Rows())
	row := 0
	for _, part := range result.Parts() {
		if part.Type.Kind() != types.KindBool && part.Type.Kind() != types.KindNull {
			diag.Warningf("expected `bool`, but got `%s`", part.Type.Kind()).
				Primary(o.Predicate.Loc()).Emit(dh)
			row += part.Len()
			continue
		}
		for i := 0; i < part.Len(); i++ {
			v, _ := boolRow(part, i)
			keep[row] = v == triTrue
			row++
		}
	}
	return FilterBatch(b, keep)
}

// FilterBatch materializes the rows marked true in keep, preserving order.
func FilterBatch(b batch.Batch, keep []bool) batch.Batch {
	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	if kept == b.Rows() {
		return b
	}
	children := make([]arrow.Array, b.Columns())
	for c := 0; c < b.Columns(); c++ {
		col := b.Column(c)
		cb := builder.New(col.Type)
		cb.Reserve(kept)
		for i := 0; i < b.Rows(); i++ {
			if !keep[i] {
				continue
			}
			if err := builder.AppendArraySlice(cb, col.Type, col.Array, i, 1); err != nil {
				cb.AppendNull()
			}
		}
		children[c] = builder.Finish(cb)
	}
	arr := builder.MakeStructArray(b.Schema, kept, children, nil)
	return batch.New(b.Name, b.Schema, arr)
}

// SetOperator materializes assignments into top-level columns: existing
// fields are replaced in place, new fields append at the end of the record.
type SetOperator struct {
	Assignments []*ast.Assignment
}

// NewSet validates and builds a `set` operator. Only top-level selectors are
// accepted.
func NewSet(assignments []*ast.Assignment) (*SetOperator, error) {
	if len(assignments) == 0 {
		return nil, fmt.Errorf("`set` requires at least one assignment")
	}
	for _, a := range assignments {
		if a.Left == nil || len(a.Left.Path) == 0 {
			return nil, fmt.Errorf("`set` assignment requires a selector")
		}
		if len(a.Left.Path) > 1 {
			return nil, fmt.Errorf("`set` selector `%s` must be a top-level field", a.Left)
		}
	}
	return &SetOperator{Assignments: assignments}, nil
}

func (*SetOperator) Name() string { return "set" }

func (o *SetOperator) Run(ctx context.Context, in <-chan batch.Batch, out chan<- batch.Batch, cp operator.ControlPlane) error {
	for {
		select {
		case b, ok := <-in:
			if !ok {
				return nil
			}
			if err := send(ctx, out, o.apply(b, cp.Diagnostics())); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *SetOperator) apply(b batch.Batch, dh diag.Handler) batch.Batch {
	e := New(&b, dh)
	fields := append([]types.Field{}, b.Schema.Fields...)
	children := make([]arrow.Array, len(fields))
	for i := range fields {
		children[i] = b.Array.Field(i)
	}
	for _, a := range o.Assignments {
		result := e.Eval(a)
		joined := result.ToSeries(series.StrategyLargestRunWins)
		if joined.Status == series.StatusConflict {
			diag.Warningf("assignment to `%s` has conflicting types, nulling mismatches", a.Left).
				Primary(a.Location).Emit(dh)
		}
		name := a.Left.Path[0]
		if i := b.Schema.FieldIndex(name); i >= 0 {
			fields[i] = types.Field{Name: name, Type: joined.Series.Type}
			children[i] = joined.Series.Array
		} else if j := fieldIndexOf(fields, name); j >= len(b.Schema.Fields) && j >= 0 {
			// A prior assignment in this statement already added the field.
			fields[j] = types.Field{Name: name, Type: joined.Series.Type}
			children[j] = joined.Series.Array
		} else {
			fields = append(fields, types.Field{Name: name, Type: joined.Series.Type})
			children = append(children, joined.Series.Array)
		}
	}
	schema, err := types.NewRecord(fields)
	if err != nil {
		diag.Warningf("%v", err).Primary(o.Assignments[0].Location).Emit(dh)
		return b
	}
	arr := builder.MakeStructArray(schema, b.Rows(), children, b.Array)
	return batch.New(b.Name, schema, arr)
}

func fieldIndexOf(fields []types.Field, name string) int {
	for i, f := range fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}
