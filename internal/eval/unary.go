package eval

import (
	"math"

	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/ast"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

func (e *Evaluator) evalUnary(x *ast.Unary) series.Multi {
	input := e.Eval(x.Expr)
	out, _ := series.Map1(input, func(s series.Series) (series.Multi, error) {
		switch x.Op {
		case ast.OpPos:
			return e.unaryPos(x, s), nil
		case ast.OpNeg:
			return e.unaryNeg(x, s), nil
		case ast.OpNot:
			return e.unaryNot(x, s), nil
		}
		panic("unhandled unary operator")
	})
	return out
}

func (e *Evaluator) unaryNoKernel(x *ast.Unary, s series.Series) series.Multi {
	diag.Warningf("unary operator `%s` not implemented for `%s`", x.Op, s.Type.Kind()).
		Primary(x.Location).Emit(e.dh)
	return nullWindow(s.Len())
}

func (e *Evaluator) unaryPos(x *ast.Unary, s series.Series) series.Multi {
	switch s.Type.Kind() {
	case types.KindNull, types.KindInt64, types.KindUInt64, types.KindDouble, types.KindDuration:
		return series.One(s)
	default:
		return e.unaryNoKernel(x, s)
	}
}

func (e *Evaluator) unaryNeg(x *ast.Unary, s series.Series) series.Multi {
	switch arr := s.Array.(type) {
	case *array.Null:
		return series.One(s)
	case *array.Int64:
		b := builder.New(types.Int64Type{}).(*array.Int64Builder)
		b.Reserve(arr.Len())
		overflow := false
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				b.AppendNull()
				continue
			}
			v := arr.Value(i)
			if v == math.MinInt64 {
				overflow = true
				b.AppendNull()
				continue
			}
			b.Append(-v)
		}
		if overflow {
			diag.Warningf("integer overflow").Primary(x.Location).Emit(e.dh)
		}
		return series.One(series.Series{Type: types.Int64Type{}, Array: builder.Finish(b)})
	case *array.Uint64:
		// Negating an unsigned value lands in int64; values beyond its range
		// overflow to null.
		b := builder.New(types.Int64Type{}).(*array.Int64Builder)
		b.Reserve(arr.Len())
		overflow := false
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				b.AppendNull()
				continue
			}
			v := arr.Value(i)
			if v > math.MaxInt64 {
				overflow = true
				b.AppendNull()
				continue
			}
			b.Append(-int64(v))
		}
		if overflow {
			diag.Warningf("integer overflow").Primary(x.Location).Emit(e.dh)
		}
		return series.One(series.Series{Type: types.Int64Type{}, Array: builder.Finish(b)})
	case *array.Float64:
		b := builder.New(types.DoubleType{}).(*array.Float64Builder)
		b.Reserve(arr.Len())
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				b.AppendNull()
				continue
			}
			b.Append(-arr.Value(i))
		}
		return series.One(series.Series{Type: types.DoubleType{}, Array: builder.Finish(b)})
	case *array.Duration:
		b := builder.New(types.DurationType{}).(*array.DurationBuilder)
		b.Reserve(arr.Len())
		overflow := false
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				b.AppendNull()
				continue
			}
			v := int64(arr.Value(i))
			if v == math.MinInt64 {
				overflow = true
				b.AppendNull()
				continue
			}
			b.Append(-arr.Value(i))
		}
		if overflow {
			diag.Warningf("duration overflow").Primary(x.Location).Emit(e.dh)
		}
		return series.One(series.Series{Type: types.DurationType{}, Array: builder.Finish(b)})
	default:
		return e.unaryNoKernel(x, s)
	}
}

func (e *Evaluator) unaryNot(x *ast.Unary, s series.Series) series.Multi {
	switch arr := s.Array.(type) {
	case *array.Null:
		return series.One(s)
	case *array.Boolean:
		b := builder.New(types.BoolType{}).(*array.BooleanBuilder)
		b.Reserve(arr.Len())
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				b.AppendNull()
				continue
			}
			b.Append(!arr.Value(i))
		}
		return series.One(series.Series{Type: types.BoolType{}, Array: builder.Finish(b)})
	default:
		return e.unaryNoKernel(x, s)
	}
}
