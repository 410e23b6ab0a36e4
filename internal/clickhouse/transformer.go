// Package clickhouse implements the schema-driven sink mediation for
// ClickHouse: a recursive transformer tree mirrors the target table schema,
// reconciles it against the input batch, computes an event-level dropmask
// for rows the table cannot represent, and materializes native columns.
package clickhouse

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"

	"github.com/tenzir/tenzir-sub011/internal/diag"
	"github.com/tenzir/tenzir-sub011/internal/types"
	"github.com/tenzir/tenzir-sub011/internal/view"
)

// Drop reports how a dropmask update affected the batch.
type Drop int

const (
	DropNone Drop = iota
	DropSome
	DropAll
)

// Combine merges two drop reports: all wins, then some.
func (d Drop) Combine(other Drop) Drop {
	if d == other {
		return d
	}
	if d == DropAll || other == DropAll {
		return DropAll
	}
	return DropSome
}

// Dropmask marks rows the sink must omit.
type Dropmask []bool

// Count returns the number of marked rows.
func (m Dropmask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Fill marks every row.
func (m Dropmask) Fill() {
	for i := range m {
		m[i] = true
	}
}

// Column is the row-major native representation handed to the client: one
// value per kept row. A NULL row holds the node's nullValue: nil for a
// scalar, a map of the elements' placeholders for a tuple, and an empty
// slice for an array.
type Column = []any

// phase tracks the per-batch state machine of a transformer node.
type phase int

const (
	phaseIdle phase = iota
	phaseDropmaskPending
)

// Transformer converts one column of the input into its ClickHouse shape.
// Nodes are long-lived per sink configuration; state held between
// UpdateDropmask and CreateColumn is valid for exactly one batch. Calling
// the phases out of sequence is a programming error and panics.
type Transformer interface {
	// TargetTypename is the column's type in ClickHouse vocabulary.
	TargetTypename() string
	// TargetNullable reports whether the target column tolerates nulls. A
	// tuple or array counts as nullable iff all its nested columns are.
	TargetNullable() bool
	// UpdateDropmask marks rows that the target cannot represent.
	UpdateDropmask(path string, t types.Type, arr arrow.Array, mask Dropmask, dh diag.Handler) Drop
	// CreateNullColumn produces n NULL rows, or ok=false when the target is
	// not nullable.
	CreateNullColumn(n int) (Column, bool)
	// CreateColumn materializes the output column, honoring the mask. It
	// must follow a matching UpdateDropmask on the same batch.
	CreateColumn(path string, t types.Type, arr arrow.Array, mask Dropmask, dh diag.Handler) Column
	// valueAt extracts one valid row in native form.
	valueAt(t types.Type, arr arrow.Array, i int) (any, bool)
	// nullValue is the native NULL placeholder.
	nullValue() any
	// resetPhase returns the subtree to idle after column consumption.
	resetPhase()
}

// scalarTransformer handles one ground type.
type scalarTransformer struct {
	typename string
	nullable bool
	kind     types.Kind
	state    phase
	// accepts widens the input compatibility beyond kind equality, e.g.
	// duration stores into Int64 columns.
	accepts func(types.Kind) bool
	extract func(arr arrow.Array, i int) any
}

func (s *scalarTransformer) TargetTypename() string {
	return s.typename
}

func (s *scalarTransformer) TargetNullable() bool {
	return s.nullable
}

func (s *scalarTransformer) compatible(k types.Kind) bool {
	if k == s.kind || k == types.KindNull {
		return true
	}
	return s.accepts != nil && s.accepts(k)
}

func (s *scalarTransformer) UpdateDropmask(path string, t types.Type, arr arrow.Array, mask Dropmask, dh diag.Handler) Drop {
	if s.state != phaseIdle {
		panic("transformer: out-of-sequence update_dropmask")
	}
	s.state = phaseDropmaskPending
	if !s.compatible(t.Kind()) {
		if s.nullable {
			// Nullable conflict: the column becomes NULL with a warning.
			diag.Warningf("incompatible data for column `%s`", path).
				Note("expected `%s`, got `%s`", s.typename, t.Kind()).Emit(dh)
			return DropNone
		}
		diag.Warningf("incompatible data for column `%s`, events will be dropped", path).
			Note("expected `%s`, got `%s`", s.typename, t.Kind()).Emit(dh)
		mask.Fill()
		return DropAll
	}
	if s.nullable {
		return DropNone
	}
	if arr.NullN() == 0 {
		return DropNone
	}
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			mask[i] = true
		}
	}
	return DropSome
}

func (s *scalarTransformer) CreateNullColumn(n int) (Column, bool) {
	if !s.nullable {
		return nil, false
	}
	col := make(Column, n)
	return col, true
}

func (s *scalarTransformer) resetPhase() {
	s.state = phaseIdle
}

func (s *scalarTransformer) CreateColumn(path string, t types.Type, arr arrow.Array, mask Dropmask, dh diag.Handler) Column {
	if s.state != phaseDropmaskPending {
		panic("transformer: create_column without update_dropmask")
	}
	defer s.resetPhase()
	col := make(Column, 0, arr.Len()-mask.Count())
	for i := 0; i < arr.Len(); i++ {
		if mask[i] {
			continue
		}
		if v, ok := s.valueAt(t, arr, i); ok {
			col = append(col, v)
		} else {
			col = append(col, nil)
		}
	}
	return col
}

func (s *scalarTransformer) valueAt(t types.Type, arr arrow.Array, i int) (any, bool) {
	if !s.compatible(t.Kind()) || t.Kind() == types.KindNull || arr.IsNull(i) {
		return nil, false
	}
	return s.extract(arr, i), true
}

func (s *scalarTransformer) nullValue() any {
	return nil
}

// namedTransformer pairs a tuple element with its node, preserving the
// target's declaration order.
type namedTransformer struct {
	name  string
	trafo Transformer
}

// recordTransformer mirrors a Tuple(...) target.
type recordTransformer struct {
	typename string
	nullable bool
	elements []namedTransformer
	index    map[string]int
	found    []bool
	state    phase
}

func newRecordTransformer(typename string, elements []namedTransformer) *recordTransformer {
	r := &recordTransformer{
		typename: typename,
		nullable: true,
		elements: elements,
		index:    make(map[string]int, len(elements)),
		found:    make([]bool, len(elements)),
	}
	for i, e := range elements {
		r.index[e.name] = i
		if !e.trafo.TargetNullable() {
			r.nullable = false
		}
	}
	return r
}

func (r *recordTransformer) TargetTypename() string { return r.typename }
func (r *recordTransformer) TargetNullable() bool   { return r.nullable }

func (r *recordTransformer) UpdateDropmask(path string, t types.Type, arr arrow.Array, mask Dropmask, dh diag.Handler) Drop {
	if r.state != phaseIdle {
		panic("transformer: out-of-sequence update_dropmask")
	}
	r.state = phaseDropmaskPending
	clear(r.found)
	if t.Kind() == types.KindNull {
		if r.nullable {
			return DropNone
		}
		mask.Fill()
		diag.Warningf("column `%s` is null, but the ClickHouse table does not support null values", path).
			Note("events will be dropped").Emit(dh)
		return DropAll
	}
	rt, ok := t.(types.RecordType)
	if !ok {
		diag.Warningf("incompatible data for column `%s`, events will be dropped", path).
			Note("expected `%s`, got `%s`", r.typename, t.Kind()).Emit(dh)
		mask.Fill()
		return DropAll
	}
	strct := arr.(*array.Struct)
	updated := DropNone
	// A null record row cannot become a tuple of non-nullable columns, so it
	// drops the event unless every nested column is nullable.
	if !r.nullable && strct.NullN() > 0 {
		for i := 0; i < strct.Len(); i++ {
			if strct.IsNull(i) {
				mask[i] = true
			}
		}
		updated = DropSome
	}
	for i, f := range rt.Fields {
		idx, ok := r.index[f.Name]
		if !ok {
			diag.Warningf("nested column `%s.%s` does not exist in ClickHouse table", path, f.Name).
				Note("column will be dropped").Emit(dh)
			continue
		}
		r.found[idx] = true
		child := r.elements[idx].trafo
		updated = updated.Combine(
			child.UpdateDropmask(path+"."+f.Name, f.Type, strct.Field(i), mask, dh))
	}
	for i, e := range r.elements {
		if r.found[i] || e.trafo.TargetNullable() {
			continue
		}
		diag.Warningf("required column missing in input, events will be dropped").
			Note("column `%s.%s` is missing", path, e.name).Emit(dh)
		mask.Fill()
		updated = DropAll
		break
	}
	return updated
}

func (r *recordTransformer) CreateNullColumn(n int) (Column, bool) {
	if !r.nullable {
		return nil, false
	}
	col := make(Column, n)
	for i := range col {
		col[i] = r.nullValue()
	}
	return col, true
}

func (r *recordTransformer) nullValue() any {
	row := make(map[string]any, len(r.elements))
	for _, e := range r.elements {
		row[e.name] = e.trafo.nullValue()
	}
	return row
}

func (r *recordTransformer) resetPhase() {
	r.state = phaseIdle
	for _, e := range r.elements {
		e.trafo.resetPhase()
	}
}

func (r *recordTransformer) CreateColumn(path string, t types.Type, arr arrow.Array, mask Dropmask, dh diag.Handler) Column {
	if r.state != phaseDropmaskPending {
		panic("transformer: create_column without update_dropmask")
	}
	defer r.resetPhase()
	col := make(Column, 0, arr.Len()-mask.Count())
	for i := 0; i < arr.Len(); i++ {
		if mask[i] {
			continue
		}
		if v, ok := r.valueAt(t, arr, i); ok {
			col = append(col, v)
		} else {
			col = append(col, r.nullValue())
		}
	}
	return col
}

func (r *recordTransformer) valueAt(t types.Type, arr arrow.Array, i int) (any, bool) {
	rt, ok := t.(types.RecordType)
	if !ok {
		return nil, false
	}
	strct := arr.(*array.Struct)
	if strct.IsNull(i) {
		return nil, false
	}
	row := make(map[string]any, len(r.elements))
	for _, e := range r.elements {
		row[e.name] = e.trafo.nullValue()
	}
	for f, field := range rt.Fields {
		idx, ok := r.index[field.Name]
		if !ok {
			continue
		}
		if v, ok := r.elements[idx].trafo.valueAt(field.Type, strct.Field(f), i); ok {
			row[field.Name] = v
		}
	}
	return row, true
}

// arrayTransformer mirrors an Array(T) target. Its per-batch state — the
// element-sized mask and the retained values array — is produced by
// UpdateDropmask and consumed by CreateColumn.
type arrayTransformer struct {
	typename string
	elem     Transformer
	state    phase
	elemMask Dropmask
	values   arrow.Array
}

func newArrayTransformer(typename string, elem Transformer) *arrayTransformer {
	return &arrayTransformer{typename: typename, elem: elem}
}

func (a *arrayTransformer) TargetTypename() string { return a.typename }
func (a *arrayTransformer) TargetNullable() bool   { return a.elem.TargetNullable() }

func (a *arrayTransformer) UpdateDropmask(path string, t types.Type, arr arrow.Array, mask Dropmask, dh diag.Handler) Drop {
	if a.state != phaseIdle {
		panic("transformer: out-of-sequence update_dropmask")
	}
	a.state = phaseDropmaskPending
	if t.Kind() == types.KindNull {
		a.elemMask = nil
		a.values = nil
		if a.TargetNullable() {
			return DropNone
		}
		mask.Fill()
		diag.Warningf("column `%s` is null, but the ClickHouse table does not support null values", path).
			Note("events will be dropped").Emit(dh)
		return DropAll
	}
	lt, ok := t.(types.ListType)
	if !ok {
		a.elemMask = nil
		a.values = nil
		diag.Warningf("incompatible data for column `%s`, events will be dropped", path).
			Note("expected `%s`, got `%s`", a.typename, t.Kind()).Emit(dh)
		mask.Fill()
		return DropAll
	}
	list := arr.(*array.List)
	values := list.ListValues()
	a.elemMask = make(Dropmask, values.Len())
	a.values = values
	if a.TargetNullable() {
		return DropNone
	}
	updated := a.elem.UpdateDropmask(path+"[]", lt.Elem, values, a.elemMask, dh)
	for i := 0; i < list.Len(); i++ {
		if list.IsNull(i) {
			if !mask[i] {
				mask[i] = true
				updated = updated.Combine(DropSome)
			}
			continue
		}
		if updated == DropNone {
			continue
		}
		start, end := list.ValueOffsets(i)
		for j := start; j < end; j++ {
			if a.elemMask[j] {
				mask[i] = true
				break
			}
		}
	}
	return updated
}

func (a *arrayTransformer) CreateNullColumn(n int) (Column, bool) {
	if !a.TargetNullable() {
		return nil, false
	}
	col := make(Column, n)
	for i := range col {
		col[i] = []any{}
	}
	return col, true
}

func (a *arrayTransformer) nullValue() any {
	return []any{}
}

func (a *arrayTransformer) resetPhase() {
	a.state = phaseIdle
	a.elemMask = nil
	a.values = nil
	a.elem.resetPhase()
}

func (a *arrayTransformer) CreateColumn(path string, t types.Type, arr arrow.Array, mask Dropmask, dh diag.Handler) Column {
	if a.state != phaseDropmaskPending {
		panic("transformer: create_column without update_dropmask")
	}
	defer a.resetPhase()
	if _, ok := t.(types.ListType); ok {
		// The retained values array must be stable across the phases.
		if a.values != nil && a.values.Len() != arr.(*array.List).ListValues().Len() {
			panic("transformer: values array changed between phases")
		}
	}
	col := make(Column, 0, arr.Len()-mask.Count())
	for i := 0; i < arr.Len(); i++ {
		if mask[i] {
			continue
		}
		if v, ok := a.valueAt(t, arr, i); ok {
			col = append(col, v)
		} else {
			col = append(col, a.nullValue())
		}
	}
	return col
}

func (a *arrayTransformer) valueAt(t types.Type, arr arrow.Array, i int) (any, bool) {
	lt, ok := t.(types.ListType)
	if !ok {
		return nil, false
	}
	list := arr.(*array.List)
	if list.IsNull(i) {
		return nil, false
	}
	values := list.ListValues()
	start, end := list.ValueOffsets(i)
	row := make([]any, 0, end-start)
	for j := start; j < end; j++ {
		if v, ok := a.elem.valueAt(lt.Elem, values, int(j)); ok {
			row = append(row, v)
		} else {
			row = append(row, a.elem.nullValue())
		}
	}
	return row, true
}

// extractors for the scalar ground types.

func extractInt64(arr arrow.Array, i int) any {
	switch arr := arr.(type) {
	case *array.Int64:
		return arr.Value(i)
	case *array.Duration:
		// Durations store their nanosecond count.
		return int64(arr.Value(i))
	}
	panic(fmt.Sprintf("unexpected array %T for Int64", arr))
}

func extractUInt64(arr arrow.Array, i int) any {
	return arr.(*array.Uint64).Value(i)
}

func extractFloat64(arr arrow.Array, i int) any {
	return arr.(*array.Float64).Value(i)
}

func extractString(arr arrow.Array, i int) any {
	switch arr := arr.(type) {
	case *array.String:
		return arr.Value(i)
	case *array.Binary:
		return string(arr.Value(i))
	}
	panic(fmt.Sprintf("unexpected array %T for String", arr))
}

func extractTime(arr arrow.Array, i int) any {
	return time.Unix(0, int64(arr.(*array.Timestamp).Value(i))).UTC()
}

func extractIP(arr arrow.Array, i int) any {
	return view.IPAt(arr.(*array.FixedSizeBinary), i)
}

func extractSubnet(arr arrow.Array, i int) any {
	p := view.SubnetAt(arr.(*array.Struct), i)
	addr := p.Addr()
	if addr.Is4() {
		addr = netip.AddrFrom16(addr.As16())
	}
	return map[string]any{"ip": addr, "length": uint8(p.Bits())}
}

