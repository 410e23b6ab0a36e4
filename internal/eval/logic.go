package eval

import (
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/ast"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

// trilean is the three-valued logic domain.
type trilean uint8

const (
	triFalse trilean = iota
	triTrue
	triNull
)

// boolRow reads a row of a bool or null series as a trilean. The ok result
// is false when the series is neither bool nor null typed.
func boolRow(s series.Series, i int) (trilean, bool) {
	switch arr := s.Array.(type) {
	case *array.Null:
		return triNull, true
	case *array.Boolean:
		if arr.IsNull(i) {
			return triNull, true
		}
		if arr.Value(i) {
			return triTrue, true
		}
		return triFalse, true
	}
	return triNull, false
}

// staticTrilean returns the constant value of a multi-series if every row
// agrees, for the static short-circuit.
func staticTrilean(m series.Multi) (trilean, bool) {
	var result trilean
	first := true
	for _, part := range m.Parts() {
		for i := 0; i < part.Len(); i++ {
			v, ok := boolRow(part, i)
			if !ok {
				return 0, false
			}
			if first {
				result = v
				first = false
			} else if v != result {
				return 0, false
			}
		}
	}
	if first {
		return 0, false
	}
	return result, true
}

// evalLogical implements the three-valued `and`/`or`. For `and`, false
// dominates and null wins over true; for `or`, true dominates and null wins
// over false. When the left side is statically false (`and`) or statically
// true (`or`), the right side is not evaluated, which also suppresses its
// diagnostics.
func (e *Evaluator) evalLogical(x *ast.Binary) series.Multi {
	l := e.Eval(x.Left)
	if v, ok := staticTrilean(l); ok {
		if x.Op == ast.OpAnd && v == triFalse {
			return l
		}
		if x.Op == ast.OpOr && v == triTrue {
			return l
		}
	}
	r := e.Eval(x.Right)
	out, _ := series.Map2(l, r, func(ls, rs series.Series) (series.Multi, error) {
		if !logicalOperand(ls) || !logicalOperand(rs) {
			return e.binaryNoKernel(x, ls, rs), nil
		}
		b := builder.New(types.BoolType{}).(*array.BooleanBuilder)
		b.Reserve(ls.Len())
		for i := 0; i < ls.Len(); i++ {
			lv, _ := boolRow(ls, i)
			rv, _ := boolRow(rs, i)
			var v trilean
			if x.Op == ast.OpAnd {
				v = andTrilean(lv, rv)
			} else {
				v = orTrilean(lv, rv)
			}
			switch v {
			case triNull:
				b.AppendNull()
			case triTrue:
				b.Append(true)
			case triFalse:
				b.Append(false)
			}
		}
		return series.One(series.Series{Type: types.BoolType{}, Array: builder.Finish(b)}), nil
	})
	return out
}

func logicalOperand(s series.Series) bool {
	k := s.Type.Kind()
	return k == types.KindBool || k == types.KindNull
}

func andTrilean(l, r trilean) trilean {
	switch {
	case l == triFalse || r == triFalse:
		return triFalse
	case l == triNull || r == triNull:
		return triNull
	default:
		return triTrue
	}
}

func orTrilean(l, r trilean) trilean {
	switch {
	case l == triTrue || r == triTrue:
		return triTrue
	case l == triNull || r == triNull:
		return triNull
	default:
		return triFalse
	}
}
