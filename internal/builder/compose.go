package builder

import (
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/bitutil"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/tenzir/tenzir-sub011/internal/types"
)

// validityBuffer extracts a zero-offset validity bitmap from an array, or nil
// when every row is valid. Sliced arrays get a freshly packed bitmap so that
// downstream composition never has to track buffer offsets.
func validityBuffer(arr arrow.Array) (*memory.Buffer, int) {
	if arr == nil || arr.NullN() == 0 {
		return nil, 0
	}
	if arr.Data().Offset() == 0 {
		return arr.Data().Buffers()[0], arr.NullN()
	}
	buf := memory.NewResizableBuffer(Mem)
	buf.Resize(int(bitutil.BytesForBits(int64(arr.Len()))))
	for i := 0; i < arr.Len(); i++ {
		bitutil.SetBitTo(buf.Bytes(), i, arr.IsValid(i))
	}
	return buf, arr.NullN()
}

// MakeStructArray assembles a struct array for the record type from child
// columns, reusing the validity of base when given. All children must have
// the same length.
func MakeStructArray(t types.RecordType, length int, children []arrow.Array, base arrow.Array) *array.Struct {
	childData := make([]arrow.ArrayData, len(children))
	for i, c := range children {
		childData[i] = c.Data()
	}
	validity, nulls := validityBuffer(base)
	data := array.NewData(types.ToArrow(t), length, []*memory.Buffer{validity}, childData, nulls, 0)
	defer data.Release()
	return array.NewStructData(data)
}

// MakeListArray assembles a list array that reuses the offsets and validity
// of base but substitutes the given values array. The values must line up
// with base's offsets.
// The values array must cover the same index space as base.ListValues(), so
// the original offsets buffer (and any slicing offset) stays valid.
func MakeListArray(base *array.List, values arrow.Array) *array.List {
	data := array.NewData(
		arrow.ListOf(values.DataType()), base.Len(),
		base.Data().Buffers(),
		[]arrow.ArrayData{values.Data()},
		base.NullN(), base.Data().Offset())
	defer data.Release()
	return array.NewListData(data)
}
