package core

import "math/bits"

// CheckedMul multiplies two unsigned quantities, failing instead of
// wrapping around.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// CheckedAdd adds two unsigned quantities, failing instead of wrapping.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// mul128 is a full-width product for overflow-free comparisons.
type mul128 struct{ hi, lo uint64 }

func mulFull(a, b uint64) mul128 {
	hi, lo := bits.Mul64(a, b)
	return mul128{hi, lo}
}

func (m mul128) less(o mul128) bool {
	return m.hi < o.hi || (m.hi == o.hi && m.lo < o.lo)
}

// WithinBand reports whether value/reference, expressed in percent, lies in
// [minPct, maxPct]. Comparison is done on full-width products so that large
// quantities cannot wrap.
func WithinBand(value, reference, minPct, maxPct uint64) bool {
	scaled := mulFull(value, 100)
	if scaled.less(mulFull(reference, minPct)) {
		return false
	}
	return !mulFull(reference, maxPct).less(scaled)
}
