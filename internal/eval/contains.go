package eval

import (
	"strings"

	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/ast"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
	"github.com/tenzir/tenzir-sub011/internal/view"
)

// comparableKinds reports whether values of the two types can be compared by
// the contains kernel: same kind other than record, list and map, null
// against anything, number against number, and ip against subnet.
func comparableKinds(x, y types.Type) bool {
	xk, yk := x.Kind(), y.Kind()
	if xk == yk && xk != types.KindRecord && xk != types.KindList && xk != types.KindMap {
		return true
	}
	if xk == types.KindNull || yk == types.KindNull {
		return true
	}
	if xk.Numeric() && yk.Numeric() {
		return true
	}
	if (xk == types.KindIP && yk == types.KindSubnet) || (xk == types.KindSubnet && yk == types.KindIP) {
		return true
	}
	return false
}

// containsEquals compares one value view against the target under the
// contains rules. With exact=false, strings match by substring and a subnet
// contains addresses and narrower subnets. The reverse direction — asking
// whether an address "contains" a subnet — stays undefined.
func containsEquals(value, target types.Data, exact bool) bool {
	vn := value == nil || value.Kind() == types.KindNull
	tn := target == nil || target.Kind() == types.KindNull
	if vn || tn {
		return vn == tn
	}
	if s, ok := value.(types.String); ok {
		if t, ok := target.(types.String); ok {
			if exact {
				return s == t
			}
			return strings.Contains(string(s), string(t))
		}
	}
	if s, ok := value.(types.Subnet); ok {
		switch t := target.(type) {
		case types.Subnet:
			if exact {
				return dataEqual(value, target)
			}
			return s.ContainsSubnet(t)
		case types.IP:
			return !exact && s.Contains(t.Addr())
		}
	}
	return dataEqual(value, target)
}

// containsSeries recursively accumulates per-row matches into b. Rows of a
// record match if any field matches; rows of a list match if any element
// matches. Map-typed input produces no result.
func containsSeries(input series.Series, targetType types.Type, target types.Data, exact bool, b []bool) {
	if comparableKinds(input.Type, targetType) {
		for i := 0; i < input.Len(); i++ {
			if b[i] {
				continue
			}
			b[i] = containsEquals(input.ValueAt(i), target, exact)
		}
		return
	}
	if rt, strct, ok := input.AsRecord(); ok {
		for i, f := range rt.Fields {
			field := series.Series{Type: f.Type, Array: strct.Field(i)}
			containsSeries(field, targetType, target, exact, b)
		}
		return
	}
	if lt, list, ok := input.AsList(); ok {
		values := series.Series{Type: lt.Elem, Array: list.ListValues()}
		nested := make([]bool, values.Len())
		containsSeries(values, targetType, target, exact, nested)
		for i := 0; i < list.Len(); i++ {
			if b[i] || list.IsNull(i) {
				continue
			}
			start, end := list.ValueOffsets(i)
			for j := start; j < end; j++ {
				if nested[j] {
					b[i] = true
					break
				}
			}
		}
	}
}

// evalContains is the `contains` function: contains(input, target,
// exact=false). The target must be a constant scalar.
func evalContains(e *Evaluator, call *ast.Call) series.Multi {
	if len(call.Args) < 2 || len(call.Args) > 3 {
		diag.Errorf("`contains` expects 2 or 3 arguments, got %d", len(call.Args)).
			Primary(call.Location).Emit(e.dh)
		return e.null()
	}
	target, ok := constantValue(call.Args[1])
	if !ok {
		diag.Errorf("`target` must be a constant").Primary(call.Args[1].Loc()).Emit(e.dh)
		return e.null()
	}
	if target != nil {
		if k := target.Kind(); k == types.KindRecord || k == types.KindList {
			diag.Errorf("`target` cannot be a list or a record").
				Primary(call.Args[1].Loc()).Emit(e.dh)
			return e.null()
		}
	}
	exact := false
	if len(call.Args) == 3 {
		flag, ok := constantValue(call.Args[2])
		if !ok {
			diag.Errorf("`exact` must be a constant").Primary(call.Args[2].Loc()).Emit(e.dh)
			return e.null()
		}
		bv, isBool := flag.(types.Bool)
		if !isBool {
			diag.Errorf("`exact` must be `bool`").Primary(call.Args[2].Loc()).Emit(e.dh)
			return e.null()
		}
		exact = bool(bv)
	}
	targetType, err := types.Infer(target)
	if err != nil {
		diag.Errorf("%v", err).Primary(call.Args[1].Loc()).Emit(e.dh)
		return e.null()
	}
	b := builder.New(types.BoolType{}).(*array.BooleanBuilder)
	b.Reserve(e.length)
	input := e.Eval(call.Args[0])
	for _, part := range input.Parts() {
		result := make([]bool, part.Len())
		containsSeries(part, targetType, target, exact, result)
		for _, v := range result {
			b.Append(v)
		}
	}
	return series.One(series.Series{Type: types.BoolType{}, Array: builder.Finish(b)})
}

// constantValue extracts the value of a constant expression.
func constantValue(x ast.Expression) (types.Data, bool) {
	c, ok := x.(*ast.Constant)
	if !ok {
		return nil, false
	}
	return c.Value, true
}

// evalIn implements the membership operator `needle in haystack` with a
// per-row haystack: list membership, string containment, subnet
// containment, and plain equality for other comparable pairs.
func (e *Evaluator) evalIn(x *ast.Binary) series.Multi {
	l := e.Eval(x.Left)
	r := e.Eval(x.Right)
	out, _ := series.Map2(l, r, func(ls, rs series.Series) (series.Multi, error) {
		b := builder.New(types.BoolType{}).(*array.BooleanBuilder)
		b.Reserve(ls.Len())
		switch rt := rs.Type.(type) {
		case types.ListType:
			if !comparableKinds(ls.Type, rt.Elem) &&
				rt.Elem.Kind() != types.KindNull && ls.Type.Kind() != types.KindNull {
				b.Release()
				return e.binaryNoKernel(x, ls, rs), nil
			}
			list := rs.Array.(*array.List)
			for i := 0; i < ls.Len(); i++ {
				needle := ls.ValueAt(i)
				match := false
				for elem := range view.ListAt(rt, list, i).Elems() {
					if containsEquals(elem, needle, true) {
						match = true
						break
					}
				}
				b.Append(match)
			}
		case types.StringType:
			if ls.Type.Kind() != types.KindString && ls.Type.Kind() != types.KindNull {
				b.Release()
				return e.binaryNoKernel(x, ls, rs), nil
			}
			for i := 0; i < ls.Len(); i++ {
				b.Append(containsEquals(rs.ValueAt(i), ls.ValueAt(i), false))
			}
		case types.SubnetType:
			if ls.Type.Kind() != types.KindIP && ls.Type.Kind() != types.KindSubnet &&
				ls.Type.Kind() != types.KindNull {
				b.Release()
				return e.binaryNoKernel(x, ls, rs), nil
			}
			for i := 0; i < ls.Len(); i++ {
				b.Append(containsEquals(rs.ValueAt(i), ls.ValueAt(i), false))
			}
		default:
			if !comparableKinds(ls.Type, rs.Type) {
				b.Release()
				return e.binaryNoKernel(x, ls, rs), nil
			}
			for i := 0; i < ls.Len(); i++ {
				b.Append(containsEquals(rs.ValueAt(i), ls.ValueAt(i), true))
			}
		}
		return series.One(series.Series{Type: types.BoolType{}, Array: builder.Finish(b)}), nil
	})
	return out
}
