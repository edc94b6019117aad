package media

import (
	"fmt"
	"math"
	"math/bits"
)

// Rational is a fraction, used for time bases and frame rates.
type Rational struct {
	Num int
	Den int
}

// NewRational returns num/den.
func NewRational(num, den int) Rational {
	return Rational{Num: num, Den: den}
}

// IsZero reports whether the rational is unset or zero.
func (r Rational) IsZero() bool {
	return r.Num == 0 || r.Den == 0
}

// Invert returns den/num.
func (r Rational) Invert() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

// Float returns the value as a float64, 0 when the denominator is zero.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// String returns "num/den".
func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Rounding selects how rescaled values are rounded.
type Rounding int

// Rounding modes. RoundPassMinMax may be combined with any mode and passes
// math.MinInt64 (NoPTS) and math.MaxInt64 through unchanged.
const (
	RoundZero       Rounding = 0
	RoundInf        Rounding = 1
	RoundDown       Rounding = 2
	RoundUp         Rounding = 3
	RoundNearInf    Rounding = 5
	RoundPassMinMax Rounding = 8192
)

// RescaleRnd returns a*b/c rounded as requested. The product is computed in
// 128 bits; results that do not fit int64 are clamped to the int64 range.
func RescaleRnd(a, b, c int64, rnd Rounding) int64 {
	if c <= 0 || b < 0 {
		return NoPTS
	}
	if rnd&RoundPassMinMax != 0 {
		if a == math.MinInt64 || a == math.MaxInt64 {
			return a
		}
		rnd &^= RoundPassMinMax
	}

	if a < 0 {
		if a == math.MinInt64 {
			a = -math.MaxInt64
		}
		// Mirror the rounding direction for negative values.
		return -RescaleRnd(-a, b, c, rnd^((rnd>>1)&1))
	}

	var r uint64
	switch rnd {
	case RoundNearInf:
		r = uint64(c / 2)
	case RoundInf, RoundUp:
		r = uint64(c - 1)
	}

	hi, lo := bits.Mul64(uint64(a), uint64(b))
	var carry uint64
	lo, carry = bits.Add64(lo, r, 0)
	hi += carry
	if hi >= uint64(c) {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uint64(c))
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

// RescaleQRnd converts a from time base bq to time base cq.
func RescaleQRnd(a int64, bq, cq Rational, rnd Rounding) int64 {
	b := int64(bq.Num) * int64(cq.Den)
	c := int64(cq.Num) * int64(bq.Den)
	return RescaleRnd(a, b, c, rnd)
}

// RescaleQ converts a from time base bq to time base cq rounding to nearest.
func RescaleQ(a int64, bq, cq Rational) int64 {
	return RescaleQRnd(a, bq, cq, RoundNearInf)
}
