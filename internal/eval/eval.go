// Package eval implements the vectorized expression evaluator. Every
// expression maps to a multi-series of the input batch's length; kernels
// dispatch on pairs of ground types, and rows that a kernel cannot handle
// become null with a diagnostic instead of failing the batch.
package eval

import (
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/ast"
	"github.com/tenzir/tenzir-sub011/internal/batch"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

// Evaluator walks an expression tree against one input batch. A nil input
// evaluates constant expressions at length one.
type Evaluator struct {
	input  *batch.Batch
	length int
	dh     diag.Handler
}

// New returns an evaluator over the given batch.
func New(input *batch.Batch, dh diag.Handler) *Evaluator {
	length := 1
	if input != nil {
		length = input.Rows()
	}
	return &Evaluator{input: input, length: length, dh: dh}
}

// Length returns the logical length every evaluated expression has.
func (e *Evaluator) Length() int {
	return e.length
}

// null returns an all-null multi-series of the evaluator's length.
func (e *Evaluator) null() series.Multi {
	return series.One(series.Null(types.NullType{}, e.length))
}

func nullWindow(n int) series.Multi {
	return series.One(series.Null(types.NullType{}, n))
}

// Eval produces the multi-series for an expression.
func (e *Evaluator) Eval(x ast.Expression) series.Multi {
	switch x := x.(type) {
	case *ast.Constant:
		return e.evalConstant(x)
	case *ast.Record:
		return e.evalRecord(x)
	case *ast.List:
		return e.evalList(x)
	case *ast.This:
		return e.evalThis(x)
	case *ast.Root:
		return e.evalRoot(x)
	case *ast.FieldAccess:
		return e.evalFieldAccess(x)
	case *ast.Meta:
		return e.evalMeta(x)
	case *ast.Call:
		return e.evalCall(x)
	case *ast.Unary:
		return e.evalUnary(x)
	case *ast.Binary:
		return e.evalBinary(x)
	case *ast.Assignment:
		// The assignment's value is its right-hand side; the enclosing
		// operator materializes the binding.
		return e.Eval(x.Right)
	default:
		diag.Warningf("expression %T is not implemented", x).Primary(x.Loc()).Emit(e.dh)
		return e.null()
	}
}

// ToSeries converts a data value into a series by repeating it to the
// evaluator's length.
func (e *Evaluator) ToSeries(d types.Data, loc diag.Location) series.Multi {
	t, err := types.Infer(d)
	if err != nil {
		diag.Warningf("%v", err).Primary(loc).Emit(e.dh)
		return e.null()
	}
	arr, err := builder.Repeat(t, d, e.length)
	if err != nil {
		diag.Warningf("%v", err).Primary(loc).Emit(e.dh)
		return e.null()
	}
	return series.One(series.Series{Type: t, Array: arr})
}

func (e *Evaluator) evalConstant(x *ast.Constant) series.Multi {
	return e.ToSeries(x.Value, x.Location)
}

func (e *Evaluator) evalThis(x *ast.This) series.Multi {
	if e.input == nil {
		diag.Errorf("expected a constant expression").Primary(x.Location).Emit(e.dh)
		return e.null()
	}
	return series.One(e.input.ToSeries())
}

func (e *Evaluator) evalRoot(x *ast.Root) series.Multi {
	if e.input == nil {
		diag.Errorf("expected a constant expression").Primary(x.Location).Emit(e.dh)
		return e.null()
	}
	col, ok := e.input.ColumnByName(x.Name)
	if !ok {
		diag.Warningf("field `%s` does not exist", x.Name).Primary(x.Location).Emit(e.dh)
		return e.null()
	}
	return series.One(col)
}

func (e *Evaluator) evalFieldAccess(x *ast.FieldAccess) series.Multi {
	input := e.Eval(x.Expr)
	out, _ := series.Map1(input, func(s series.Series) (series.Multi, error) {
		switch t := s.Type.(type) {
		case types.NullType:
			// Field access on null yields null without a diagnostic.
			return nullWindow(s.Len()), nil
		case types.RecordType:
			i := t.FieldIndex(x.Name)
			if i < 0 {
				diag.Warningf("field `%s` does not exist", x.Name).Primary(x.Location).Emit(e.dh)
				return nullWindow(s.Len()), nil
			}
			strct := s.Array.(*array.Struct)
			child := series.Series{Type: t.Fields[i].Type, Array: strct.Field(i)}
			if strct.NullN() > 0 {
				child = maskByParent(child, strct)
			}
			return series.One(child), nil
		default:
			diag.Warningf("expected `record`, but got `%s`", s.Type.Kind()).
				Primary(x.Location).Emit(e.dh)
			return nullWindow(s.Len()), nil
		}
	})
	return out
}

// maskByParent rebuilds a child column so that rows where the parent record
// is null come out null as well.
func maskByParent(child series.Series, parent *array.Struct) series.Series {
	b := builder.New(child.Type)
	for i := 0; i < child.Len(); i++ {
		if parent.IsNull(i) || child.IsNull(i) {
			b.AppendNull()
			continue
		}
		if err := builder.Append(b, child.Type, child.ValueAt(i)); err != nil {
			b.AppendNull()
		}
	}
	return series.Series{Type: child.Type, Array: builder.Finish(b)}
}

func (e *Evaluator) evalMeta(x *ast.Meta) series.Multi {
	switch x.Name {
	case "name":
		name := types.String("")
		if e.input != nil {
			name = types.String(e.input.Name)
		}
		return e.ToSeries(name, x.Location)
	default:
		diag.Warningf("unknown metadata `@%s`", x.Name).Primary(x.Location).Emit(e.dh)
		return e.null()
	}
}

func (e *Evaluator) evalRecord(x *ast.Record) series.Multi {
	if len(x.Fields) == 0 {
		empty := types.RecordType{}
		arr := builder.MakeStructArray(empty, e.length, nil, nil)
		return series.One(series.Series{Type: empty, Array: arr})
	}
	inputs := make([]series.Multi, len(x.Fields))
	for i, f := range x.Fields {
		inputs[i] = e.Eval(f.Value)
	}
	out, _ := series.Map(func(window []series.Series) (series.Multi, error) {
		fields := make([]types.Field, len(window))
		children := make([]arrow.Array, len(window))
		for i, s := range window {
			fields[i] = types.Field{Name: x.Fields[i].Name, Type: s.Type}
			children[i] = s.Array
		}
		rt, err := types.NewRecord(fields)
		if err != nil {
			diag.Warningf("%v", err).Primary(x.Location).Emit(e.dh)
			return nullWindow(window[0].Len()), nil
		}
		arr := builder.MakeStructArray(rt, window[0].Len(), children, nil)
		return series.One(series.Series{Type: rt, Array: arr}), nil
	}, inputs...)
	return out
}

func (e *Evaluator) evalList(x *ast.List) series.Multi {
	if len(x.Elems) == 0 {
		diag.Warningf("cannot infer element type of empty list").Primary(x.Location).Emit(e.dh)
		return e.null()
	}
	inputs := make([]series.Multi, len(x.Elems))
	for i, elem := range x.Elems {
		inputs[i] = e.Eval(elem)
	}
	out, _ := series.Map(func(window []series.Series) (series.Multi, error) {
		elem := window[0].Type
		for _, s := range window[1:] {
			unified, ok := types.Unify(elem, s.Type)
			if !ok {
				diag.Warningf("list elements have incompatible types `%s` and `%s`",
					elem, s.Type).Primary(x.Location).Emit(e.dh)
				return nullWindow(window[0].Len()), nil
			}
			elem = unified
		}
		lt := types.NewList(elem)
		lb := builder.New(lt).(*array.ListBuilder)
		n := window[0].Len()
		for row := 0; row < n; row++ {
			lb.Append(true)
			for _, s := range window {
				value, _ := castData(s.ValueAt(row), elem)
				if err := builder.Append(lb.ValueBuilder(), elem, value); err != nil {
					lb.ValueBuilder().AppendNull()
				}
			}
		}
		return series.One(series.Series{Type: lt, Array: builder.Finish(lb)}), nil
	}, inputs...)
	return out
}

func (e *Evaluator) evalCall(x *ast.Call) series.Multi {
	fn, ok := LookupFunction(x.Fn)
	if !ok {
		diag.Warningf("function `%s` does not exist", x.Fn).Primary(x.Location).Emit(e.dh)
		return e.null()
	}
	return fn(e, x)
}

// castData widens a numeric value to the target kind where unification
// allows it. Everything else passes through unchanged.
func castData(d types.Data, target types.Type) (types.Data, bool) {
	if d == nil || d.Kind() == types.KindNull {
		return d, true
	}
	if target.Kind() == types.KindDouble {
		switch v := d.(type) {
		case types.Int64:
			return types.Double(float64(v)), true
		case types.UInt64:
			return types.Double(float64(v)), true
		}
	}
	return d, d.Kind() == target.Kind()
}
