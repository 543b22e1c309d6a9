// Package fixedpoint provides overflow-checked integer arithmetic for quote
// amounts. Every ratio in the distribution pipeline is computed with floor
// division and explicit basis-point scaling; there is no floating point
// anywhere in the payout path.
package fixedpoint

import (
	"errors"
	"math/bits"
)

// BpsDenominator is the basis-point scale: 10_000 bps == 100%.
const BpsDenominator = 10_000

// ErrOverflow is returned when a checked operation would wrap. Callers map it
// to the stable ARITHMETIC_OVERFLOW failure code; it must never be silently
// saturated where conservation matters.
var ErrOverflow = errors.New("fixedpoint: arithmetic overflow")

// Add returns a+b, failing on wrap.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b, failing if b > a.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrOverflow
	}
	return diff, nil
}

// Mul returns a*b, failing on wrap.
func Mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// MulDiv returns floor(a*b/den) using a 128-bit intermediate, so a*b may
// exceed 64 bits as long as the quotient fits. den must be non-zero.
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrOverflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		// Quotient would not fit in 64 bits.
		return 0, ErrOverflow
	}
	quo, _ := bits.Div64(hi, lo, den)
	return quo, nil
}

// Bps returns floor(amount * bps / 10000).
func Bps(amount uint64, bps uint16) (uint64, error) {
	return MulDiv(amount, uint64(bps), BpsDenominator)
}

// RatioBps returns min(floor(num*10000/den), 10000), the numerator expressed
// in basis points of the denominator, capped at 100%.
func RatioBps(num, den uint64) (uint16, error) {
	if den == 0 {
		return 0, ErrOverflow
	}
	r, err := MulDiv(num, BpsDenominator, den)
	if err != nil {
		return 0, err
	}
	if r > BpsDenominator {
		r = BpsDenominator
	}
	return uint16(r), nil
}

// MinU64 returns the smaller of a and b.
func MinU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
