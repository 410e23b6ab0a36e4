package series

import (
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/builder"
	"github.com/tenzir/tenzir-sub011/internal/types"
)

// ToSeriesStrategy selects what happens when joining a multi-series into a
// single series hits a type conflict.
type ToSeriesStrategy int

const (
	// StrategyFail fails the join on the first conflict.
	StrategyFail ToSeriesStrategy = iota
	// StrategyFirstWins takes the first part's type and nulls mismatches.
	StrategyFirstWins
	// StrategyLargestRunWins widens eagerly from the start and nulls parts
	// that do not unify with the accumulated type. This does not find the
	// truly largest merge; it goes optimistically from the front.
	StrategyLargestRunWins
)

// ToSeriesStatus reports the outcome of a join.
type ToSeriesStatus int

const (
	// StatusOK means the join succeeded.
	StatusOK ToSeriesStatus = iota
	// StatusConflict means the join succeeded but nulled some values.
	StatusConflict
	// StatusFail means the join failed.
	StatusFail
)

// ToSeriesResult carries the joined series plus the conflict report.
type ToSeriesResult struct {
	Series           Series
	Status           ToSeriesStatus
	ConflictingTypes []types.Type
}

// ToSeries joins the multi-series into a single series by type unification.
// The engine unifies identical types and widens int64/uint64 into double;
// every other combination is a conflict handled per the strategy.
func (m Multi) ToSeries(strategy ToSeriesStrategy) ToSeriesResult {
	if len(m.parts) == 0 {
		return ToSeriesResult{Series: Null(types.NullType{}, 0), Status: StatusOK}
	}
	if len(m.parts) == 1 {
		return ToSeriesResult{Series: m.parts[0], Status: StatusOK}
	}
	target := m.parts[0].Type
	var conflicts []types.Type
	for _, p := range m.parts[1:] {
		unified, ok := types.Unify(target, p.Type)
		if ok {
			if strategy != StrategyFirstWins {
				target = unified
			}
			continue
		}
		if strategy == StrategyFail {
			return ToSeriesResult{Status: StatusFail, ConflictingTypes: []types.Type{target, p.Type}}
		}
		conflicts = append(conflicts, p.Type)
	}
	b := builder.New(target)
	status := StatusOK
	for _, p := range m.parts {
		switch {
		case types.Equal(p.Type, target):
			if err := builder.AppendArraySlice(b, target, p.Array, 0, p.Len()); err != nil {
				b.Release()
				return ToSeriesResult{Status: StatusFail, ConflictingTypes: conflicts}
			}
		case target.Kind() == types.KindDouble && p.Type.Kind().Numeric():
			appendWidened(b.(*array.Float64Builder), p)
		default:
			for range p.Len() {
				b.AppendNull()
			}
			status = StatusConflict
		}
	}
	return ToSeriesResult{
		Series:           Series{Type: target, Array: builder.Finish(b)},
		Status:           status,
		ConflictingTypes: conflicts,
	}
}

func appendWidened(b *array.Float64Builder, p Series) {
	switch arr := p.Array.(type) {
	case *array.Int64:
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(float64(arr.Value(i)))
			}
		}
	case *array.Uint64:
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(float64(arr.Value(i)))
			}
		}
	case *array.Float64:
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				b.AppendNull()
			} else {
				b.Append(arr.Value(i))
			}
		}
	}
}
