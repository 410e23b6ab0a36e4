package eval

import (
	"math"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/ast"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

func (e *Evaluator) evalBinary(x *ast.Binary) series.Multi {
	switch x.Op {
	case ast.OpAnd, ast.OpOr:
		return e.evalLogical(x)
	case ast.OpIn:
		return e.evalIn(x)
	}
	l := e.Eval(x.Left)
	r := e.Eval(x.Right)
	out, _ := series.Map2(l, r, func(ls, rs series.Series) (series.Multi, error) {
		switch x.Op {
		case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
			return e.evalArith(x, ls, rs), nil
		case ast.OpEq, ast.OpNeq:
			return e.evalEquality(x, ls, rs), nil
		case ast.OpGt, ast.OpGe, ast.OpLt, ast.OpLe:
			return e.evalOrdering(x, ls, rs), nil
		}
		panic("unhandled binary operator")
	})
	return out
}

func (e *Evaluator) binaryNoKernel(x *ast.Binary, ls, rs series.Series) series.Multi {
	diag.Warningf("binary operator `%s` not implemented for `%s` and `%s`",
		x.Op, ls.Type.Kind(), rs.Type.Kind()).Primary(x.Location).Emit(e.dh)
	return nullWindow(ls.Len())
}

// evalArith implements +, -, *, / with the promotion rules: int×int→int64,
// uint×uint→uint64, mixed signedness→int64, anything with double→double.
// Integer overflow and division by zero become null plus one warning.
func (e *Evaluator) evalArith(x *ast.Binary, ls, rs series.Series) series.Multi {
	lk, rk := ls.Type.Kind(), rs.Type.Kind()
	// Null propagates through arithmetic.
	if lk == types.KindNull || rk == types.KindNull {
		return nullWindow(ls.Len())
	}
	if lk.Numeric() && rk.Numeric() {
		if lk == types.KindDouble || rk == types.KindDouble {
			return e.arithDouble(x, ls, rs)
		}
		if lk == types.KindUInt64 && rk == types.KindUInt64 {
			return e.arithUint(x, ls, rs)
		}
		return e.arithInt(x, ls, rs)
	}
	if x.Op == ast.OpAdd && lk == types.KindString && rk == types.KindString {
		return e.concatStrings(ls, rs)
	}
	if kernel, ok := temporalArith(x.Op, lk, rk); ok {
		return e.arithTemporal(x, ls, rs, kernel)
	}
	return e.binaryNoKernel(x, ls, rs)
}

func (e *Evaluator) arithDouble(x *ast.Binary, ls, rs series.Series) series.Multi {
	lv := numericReader(ls)
	rv := numericReader(rs)
	b := builder.New(types.DoubleType{}).(*array.Float64Builder)
	b.Reserve(ls.Len())
	for i := 0; i < ls.Len(); i++ {
		if ls.IsNull(i) || rs.IsNull(i) {
			b.AppendNull()
			continue
		}
		l, r := lv.float(i), rv.float(i)
		switch x.Op {
		case ast.OpAdd:
			b.Append(l + r)
		case ast.OpSub:
			b.Append(l - r)
		case ast.OpMul:
			b.Append(l * r)
		case ast.OpDiv:
			b.Append(l / r)
		}
	}
	return series.One(series.Series{Type: types.DoubleType{}, Array: builder.Finish(b)})
}

func (e *Evaluator) arithUint(x *ast.Binary, ls, rs series.Series) series.Multi {
	la := ls.Array.(*array.Uint64)
	ra := rs.Array.(*array.Uint64)
	b := builder.New(types.UInt64Type{}).(*array.Uint64Builder)
	b.Reserve(la.Len())
	overflow := false
	divzero := false
	for i := 0; i < la.Len(); i++ {
		if la.IsNull(i) || ra.IsNull(i) {
			b.AppendNull()
			continue
		}
		l, r := la.Value(i), ra.Value(i)
		var v uint64
		var ok bool
		switch x.Op {
		case ast.OpAdd:
			v = l + r
			ok = v >= l
		case ast.OpSub:
			v = l - r
			ok = r <= l
		case ast.OpMul:
			v = l * r
			ok = l == 0 || v/l == r
		case ast.OpDiv:
			if r == 0 {
				divzero = true
				b.AppendNull()
				continue
			}
			v, ok = l/r, true
		}
		if !ok {
			overflow = true
			b.AppendNull()
			continue
		}
		b.Append(v)
	}
	if overflow {
		diag.Warningf("integer overflow").Primary(x.Location).Emit(e.dh)
	}
	if divzero {
		diag.Warningf("division by zero").Primary(x.Location).Emit(e.dh)
	}
	return series.One(series.Series{Type: types.UInt64Type{}, Array: builder.Finish(b)})
}

func (e *Evaluator) arithInt(x *ast.Binary, ls, rs series.Series) series.Multi {
	lv := numericReader(ls)
	rv := numericReader(rs)
	b := builder.New(types.Int64Type{}).(*array.Int64Builder)
	b.Reserve(ls.Len())
	overflow := false
	divzero := false
	for i := 0; i < ls.Len(); i++ {
		if ls.IsNull(i) || rs.IsNull(i) {
			b.AppendNull()
			continue
		}
		l, lok := lv.signed(i)
		r, rok := rv.signed(i)
		if !lok || !rok {
			overflow = true
			b.AppendNull()
			continue
		}
		var v int64
		var ok bool
		switch x.Op {
		case ast.OpAdd:
			v, ok = addInt64(l, r)
		case ast.OpSub:
			v, ok = subInt64(l, r)
		case ast.OpMul:
			v, ok = mulInt64(l, r)
		case ast.OpDiv:
			if r == 0 {
				divzero = true
				b.AppendNull()
				continue
			}
			v, ok = divInt64(l, r)
		}
		if !ok {
			overflow = true
			b.AppendNull()
			continue
		}
		b.Append(v)
	}
	if overflow {
		diag.Warningf("integer overflow").Primary(x.Location).Emit(e.dh)
	}
	if divzero {
		diag.Warningf("division by zero").Primary(x.Location).Emit(e.dh)
	}
	return series.One(series.Series{Type: types.Int64Type{}, Array: builder.Finish(b)})
}

func (e *Evaluator) concatStrings(ls, rs series.Series) series.Multi {
	la := ls.Array.(*array.String)
	ra := rs.Array.(*array.String)
	b := builder.New(types.StringType{}).(*array.StringBuilder)
	b.Reserve(la.Len())
	for i := 0; i < la.Len(); i++ {
		if la.IsNull(i) || ra.IsNull(i) {
			b.AppendNull()
			continue
		}
		b.Append(la.Value(i) + ra.Value(i))
	}
	return series.One(series.Series{Type: types.StringType{}, Array: builder.Finish(b)})
}

// temporalKernel computes one temporal row; ok=false means overflow.
type temporalKernel struct {
	result types.Type
	apply  func(l, r int64) (int64, bool)
}

// temporalArith returns the kernel for duration/time arithmetic, if defined:
// duration±duration, time+duration, duration+time, time-duration, and
// time-time (yielding duration).
func temporalArith(op ast.BinaryOp, lk, rk types.Kind) (temporalKernel, bool) {
	d, t := types.KindDuration, types.KindTime
	switch {
	case op == ast.OpAdd && lk == d && rk == d:
		return temporalKernel{types.DurationType{}, addInt64}, true
	case op == ast.OpSub && lk == d && rk == d:
		return temporalKernel{types.DurationType{}, subInt64}, true
	case op == ast.OpAdd && ((lk == t && rk == d) || (lk == d && rk == t)):
		return temporalKernel{types.TimeType{}, addInt64}, true
	case op == ast.OpSub && lk == t && rk == d:
		return temporalKernel{types.TimeType{}, subInt64}, true
	case op == ast.OpSub && lk == t && rk == t:
		return temporalKernel{types.DurationType{}, subInt64}, true
	}
	return temporalKernel{}, false
}

func (e *Evaluator) arithTemporal(x *ast.Binary, ls, rs series.Series, kernel temporalKernel) series.Multi {
	lv := temporalValue(ls)
	rv := temporalValue(rs)
	b := builder.New(kernel.result)
	overflow := false
	for i := 0; i < ls.Len(); i++ {
		if ls.IsNull(i) || rs.IsNull(i) {
			b.AppendNull()
			continue
		}
		v, ok := kernel.apply(lv(i), rv(i))
		if !ok {
			overflow = true
			b.AppendNull()
			continue
		}
		switch tb := b.(type) {
		case *array.DurationBuilder:
			tb.Append(arrowDuration(v))
		case *array.TimestampBuilder:
			tb.Append(arrowTimestamp(v))
		}
	}
	if overflow {
		diag.Warningf("integer overflow").Primary(x.Location).Emit(e.dh)
	}
	return series.One(series.Series{Type: kernel.result, Array: builder.Finish(b)})
}

func temporalValue(s series.Series) func(i int) int64 {
	switch arr := s.Array.(type) {
	case *array.Duration:
		return func(i int) int64 { return int64(arr.Value(i)) }
	case *array.Timestamp:
		return func(i int) int64 { return int64(arr.Value(i)) }
	}
	panic("temporal series expected")
}

// numReader gives uniform access to a numeric array.
type numReader struct {
	kind types.Kind
	i64  *array.Int64
	u64  *array.Uint64
	f64  *array.Float64
}

func numericReader(s series.Series) numReader {
	r := numReader{kind: s.Type.Kind()}
	switch arr := s.Array.(type) {
	case *array.Int64:
		r.i64 = arr
	case *array.Uint64:
		r.u64 = arr
	case *array.Float64:
		r.f64 = arr
	default:
		panic("numeric series expected")
	}
	return r
}

func (r numReader) float(i int) float64 {
	switch r.kind {
	case types.KindInt64:
		return float64(r.i64.Value(i))
	case types.KindUInt64:
		return float64(r.u64.Value(i))
	default:
		return r.f64.Value(i)
	}
}

// signed returns the value as int64; ok=false when an unsigned value does
// not fit.
func (r numReader) signed(i int) (int64, bool) {
	switch r.kind {
	case types.KindInt64:
		return r.i64.Value(i), true
	case types.KindUInt64:
		v := r.u64.Value(i)
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	default:
		panic("integer series expected")
	}
}

func addInt64(a, b int64) (int64, bool) {
	c := a + b
	if (a^c)&(b^c) < 0 {
		return 0, false
	}
	return c, true
}

func subInt64(a, b int64) (int64, bool) {
	c := a - b
	if (a^b)&(a^c) < 0 {
		return 0, false
	}
	return c, true
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	if c/a != b {
		return 0, false
	}
	return c, true
}

func arrowDuration(v int64) arrow.Duration { return arrow.Duration(v) }

func arrowTimestamp(v int64) arrow.Timestamp { return arrow.Timestamp(v) }

func divInt64(a, b int64) (int64, bool) {
	if a == math.MinInt64 && b == -1 {
		return 0, false
	}
	return a / b, true
}
