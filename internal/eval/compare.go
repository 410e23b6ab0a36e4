package eval

import (
	"bytes"

	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/ast"
	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/series"
	"github.com/tenzir/tenzir-sub011/internal/types"
	"github.com/tenzir/tenzir-sub011/internal/view"
)

// evalEquality implements == and !=. A null operand compares true only
// against null; everything else compares by value, with signed/unsigned
// widths reconciled for numerics. Values of incomparable kinds are unequal.
func (e *Evaluator) evalEquality(x *ast.Binary, ls, rs series.Series) series.Multi {
	invert := x.Op == ast.OpNeq
	b := builder.New(types.BoolType{}).(*array.BooleanBuilder)
	b.Reserve(ls.Len())
	for i := 0; i < ls.Len(); i++ {
		ln, rn := ls.IsNull(i), rs.IsNull(i)
		var equal bool
		switch {
		case ln && rn:
			equal = true
		case ln != rn:
			equal = false
		default:
			equal = dataEqual(ls.ValueAt(i), rs.ValueAt(i))
		}
		b.Append(equal != invert)
	}
	return series.One(series.Series{Type: types.BoolType{}, Array: builder.Finish(b)})
}

// dataEqual compares two non-null data views by value.
func dataEqual(a, b types.Data) bool {
	if an, bn := numericData(a), numericData(b); an != nil && bn != nil {
		return compareNumeric(an, bn) == 0
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch a := a.(type) {
	case types.Null:
		return true
	case types.Bool:
		return a == b.(types.Bool)
	case types.String:
		return a == b.(types.String)
	case types.Blob:
		return bytes.Equal(a, []byte(b.(types.Blob)))
	case types.Duration:
		return a == b.(types.Duration)
	case types.Time:
		return timeNanos(a) == timeNanos(b.(types.Time))
	case types.IP:
		return a.Addr() == b.(types.IP).Addr()
	case types.Subnet:
		pa, pb := a, b.(types.Subnet)
		return types.IP(prefixAddr(pa)).Addr() == types.IP(prefixAddr(pb)).Addr() &&
			prefixBits(pa) == prefixBits(pb)
	case types.Enum:
		return a.Index == b.(types.Enum).Index
	case types.Secret:
		return bytes.Equal(a, []byte(b.(types.Secret)))
	}
	// Structural equality for lists and records.
	switch a.Kind() {
	case types.KindList:
		av, bv := listElems(a), listElems(b)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !viewEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case types.KindRecord:
		av, bv := recordFields(a), recordFields(b)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i].Name != bv[i].Name || !viewEqual(av[i].Value, bv[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// viewEqual compares possibly-null element views.
func viewEqual(a, b types.Data) bool {
	an := a == nil || a.Kind() == types.KindNull
	bn := b == nil || b.Kind() == types.KindNull
	if an || bn {
		return an == bn
	}
	return dataEqual(a, b)
}

func listElems(d types.Data) []types.Data {
	switch d := d.(type) {
	case types.List:
		return d.Elems
	case view.List:
		var out []types.Data
		for e := range d.Elems() {
			out = append(out, e)
		}
		return out
	}
	return nil
}

func recordFields(d types.Data) []types.RecordField {
	switch d := d.(type) {
	case types.Record:
		return d.Fields
	case view.Record:
		var out []types.RecordField
		for name, value := range d.Fields() {
			out = append(out, types.RecordField{Name: name, Value: value})
		}
		return out
	}
	return nil
}

// orderable lists the kind pairs with a defined ordering: numerics cross
// freely, strings, times, and durations order within their own kind.
func orderable(lk, rk types.Kind) bool {
	if lk.Numeric() && rk.Numeric() {
		return true
	}
	if lk != rk {
		return false
	}
	return lk == types.KindString || lk == types.KindTime || lk == types.KindDuration
}

// evalOrdering implements <, <=, >, >=. A null operand yields null.
// Undefined kind combinations warn and produce null.
func (e *Evaluator) evalOrdering(x *ast.Binary, ls, rs series.Series) series.Multi {
	lk, rk := ls.Type.Kind(), rs.Type.Kind()
	if lk == types.KindNull || rk == types.KindNull {
		return nullWindow(ls.Len())
	}
	if !orderable(lk, rk) {
		return e.binaryNoKernel(x, ls, rs)
	}
	b := builder.New(types.BoolType{}).(*array.BooleanBuilder)
	b.Reserve(ls.Len())
	for i := 0; i < ls.Len(); i++ {
		if ls.IsNull(i) || rs.IsNull(i) {
			b.AppendNull()
			continue
		}
		c := compareData(ls.ValueAt(i), rs.ValueAt(i))
		switch x.Op {
		case ast.OpGt:
			b.Append(c > 0)
		case ast.OpGe:
			b.Append(c >= 0)
		case ast.OpLt:
			b.Append(c < 0)
		case ast.OpLe:
			b.Append(c <= 0)
		}
	}
	return series.One(series.Series{Type: types.BoolType{}, Array: builder.Finish(b)})
}

// compareData orders two non-null values of an orderable kind pair.
func compareData(a, b types.Data) int {
	if an, bn := numericData(a), numericData(b); an != nil && bn != nil {
		return compareNumeric(an, bn)
	}
	switch a := a.(type) {
	case types.String:
		bs := b.(types.String)
		switch {
		case a < bs:
			return -1
		case a > bs:
			return 1
		}
		return 0
	case types.Time:
		an, bn := timeNanos(a), timeNanos(b.(types.Time))
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case types.Duration:
		bd := b.(types.Duration)
		switch {
		case a < bd:
			return -1
		case a > bd:
			return 1
		}
		return 0
	}
	panic("value is not orderable")
}
