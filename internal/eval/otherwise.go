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

// evalOtherwise is otherwise(primary, fallback): rows where the primary is
// valid pass through, null rows take the fallback. With equal types the
// result is one series; with differing types the output splits at every
// validity transition, alternating primary and fallback slices.
func evalOtherwise(e *Evaluator, call *ast.Call) series.Multi {
	if len(call.Args) != 2 {
		diag.Errorf("`otherwise` expects 2 arguments, got %d", len(call.Args)).
			Primary(call.Location).Emit(e.dh)
		return e.null()
	}
	ps := e.Eval(call.Args[0])
	fs := e.Eval(call.Args[1])
	out, _ := series.Map2(ps, fs, func(p, f series.Series) (series.Multi, error) {
		if p.Type.Kind() == types.KindNull {
			return series.One(f), nil
		}
		if f.Type.Kind() == types.KindNull {
			return series.One(p), nil
		}
		if types.Equal(p.Type, f.Type) {
			// Same type on both sides: stitch validity runs into one series.
			b := builder.New(p.Type)
			b.Reserve(p.Len())
			for offset := 0; offset < p.Len(); {
				count := 1
				valid := p.Array.IsValid(offset)
				for offset+count < p.Len() && p.Array.IsValid(offset+count) == valid {
					count++
				}
				src := p
				if !valid {
					src = f
				}
				if err := builder.AppendArraySlice(b, p.Type, src.Array, offset, count); err != nil {
					b.Release()
					return series.Multi{}, err
				}
				offset += count
			}
			return series.One(series.Series{Type: p.Type, Array: builder.Finish(b)}), nil
		}
		// Types differ: split at each validity transition.
		length := p.Len()
		if length == 0 {
			return series.Multi{}, nil
		}
		var parts series.Multi
		begin := 0
		currentValid := p.Array.IsValid(0)
		for i := 0; i <= length; i++ {
			valid := !currentValid
			if i < length {
				valid = p.Array.IsValid(i)
			}
			if valid == currentValid {
				continue
			}
			if currentValid {
				parts.Append(p.Slice(begin, i))
			} else {
				parts.Append(f.Slice(begin, i))
			}
			currentValid = valid
			begin = i
		}
		return parts, nil
	})
	return out
}

// evalAbs is abs(x) for numbers and durations. The most negative integer and
// duration have no absolute value and overflow to null with a warning.
func evalAbs(e *Evaluator, call *ast.Call) series.Multi {
	if len(call.Args) != 1 {
		diag.Errorf("`abs` expects 1 argument, got %d", len(call.Args)).
			Primary(call.Location).Emit(e.dh)
		return e.null()
	}
	input := e.Eval(call.Args[0])
	out, _ := series.Map1(input, func(s series.Series) (series.Multi, error) {
		switch arr := s.Array.(type) {
		case *array.Null:
			return series.One(s), nil
		case *array.Uint64:
			return series.One(s), nil
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
				if v < 0 {
					v = -v
				}
				b.Append(v)
			}
			if overflow {
				diag.Warningf("integer overflow").Primary(call.Args[0].Loc()).Emit(e.dh)
			}
			return series.One(series.Series{Type: types.Int64Type{}, Array: builder.Finish(b)}), nil
		case *array.Float64:
			b := builder.New(types.DoubleType{}).(*array.Float64Builder)
			b.Reserve(arr.Len())
			for i := 0; i < arr.Len(); i++ {
				if arr.IsNull(i) {
					b.AppendNull()
					continue
				}
				b.Append(math.Abs(arr.Value(i)))
			}
			return series.One(series.Series{Type: types.DoubleType{}, Array: builder.Finish(b)}), nil
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
				if v < 0 {
					v = -v
				}
				b.Append(arrowDuration(v))
			}
			if overflow {
				diag.Warningf("duration overflow").Primary(call.Args[0].Loc()).Emit(e.dh)
			}
			return series.One(series.Series{Type: types.DurationType{}, Array: builder.Finish(b)}), nil
		default:
			diag.Warningf("expected `duration|number`, but got `%s`", s.Type.Kind()).
				Primary(call.Args[0].Loc()).Emit(e.dh)
			return nullWindow(s.Len()), nil
		}
	})
	return out
}

// evalFloat is float(x): numbers widen to double, everything else warns.
func evalFloat(e *Evaluator, call *ast.Call) series.Multi {
	if len(call.Args) != 1 {
		diag.Errorf("`float` expects 1 argument, got %d", len(call.Args)).
			Primary(call.Location).Emit(e.dh)
		return e.null()
	}
	input := e.Eval(call.Args[0])
	out, _ := series.Map1(input, func(s series.Series) (series.Multi, error) {
		switch s.Type.Kind() {
		case types.KindNull:
			return series.One(s), nil
		case types.KindDouble:
			return series.One(s), nil
		case types.KindInt64, types.KindUInt64:
			r := numericReader(s)
			b := builder.New(types.DoubleType{}).(*array.Float64Builder)
			b.Reserve(s.Len())
			for i := 0; i < s.Len(); i++ {
				if s.IsNull(i) {
					b.AppendNull()
					continue
				}
				b.Append(r.float(i))
			}
			return series.One(series.Series{Type: types.DoubleType{}, Array: builder.Finish(b)}), nil
		default:
			diag.Warningf("expected `number`, but got `%s`", s.Type.Kind()).
				Primary(call.Args[0].Loc()).Emit(e.dh)
			return nullWindow(s.Len()), nil
		}
	})
	return out
}
