package eval

import (
	"net/netip"
	"time"

	"github.com/tenzir/tenzir-sub011/internal/types"
)

// numeric is a boxed numeric value used for cross-signed-width-safe
// comparison.
type numeric struct {
	kind types.Kind
	i    int64
	u    uint64
	f    float64
}

// numericData boxes a numeric data value; nil for non-numeric values.
func numericData(d types.Data) *numeric {
	switch v := d.(type) {
	case types.Int64:
		return &numeric{kind: types.KindInt64, i: int64(v)}
	case types.UInt64:
		return &numeric{kind: types.KindUInt64, u: uint64(v)}
	case types.Double:
		return &numeric{kind: types.KindDouble, f: float64(v)}
	}
	return nil
}

// compareNumeric orders two numerics without precision-losing casts between
// the integer kinds. Comparisons involving double go through float64.
func compareNumeric(a, b *numeric) int {
	if a.kind == types.KindDouble || b.kind == types.KindDouble {
		af, bf := a.asFloat(), b.asFloat()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	if a.kind == types.KindInt64 && b.kind == types.KindInt64 {
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		}
		return 0
	}
	if a.kind == types.KindUInt64 && b.kind == types.KindUInt64 {
		switch {
		case a.u < b.u:
			return -1
		case a.u > b.u:
			return 1
		}
		return 0
	}
	// Mixed signedness: a negative signed value is smaller than any
	// unsigned value; otherwise compare in uint64.
	if a.kind == types.KindInt64 {
		if a.i < 0 {
			return -1
		}
		return compareNumeric(&numeric{kind: types.KindUInt64, u: uint64(a.i)}, b)
	}
	if b.i < 0 {
		return 1
	}
	return compareNumeric(a, &numeric{kind: types.KindUInt64, u: uint64(b.i)})
}

func (n *numeric) asFloat() float64 {
	switch n.kind {
	case types.KindInt64:
		return float64(n.i)
	case types.KindUInt64:
		return float64(n.u)
	default:
		return n.f
	}
}

func timeNanos(t types.Time) int64 {
	return time.Time(t).UnixNano()
}

func prefixAddr(s types.Subnet) netip.Addr {
	return netip.Prefix(s).Addr()
}

func prefixBits(s types.Subnet) int {
	return netip.Prefix(s).Bits()
}
