// Package bigfloat provides an arbitrary-precision float whose declared
// precision travels with the value.
//
// Values declared with at most NativeLimit mantissa bits are backed by a plain
// float64; anything wider is backed by a *big.Float. The split is invisible to
// callers: mixed operations promote both operands exactly before computing,
// and comparisons are exact across representations.
package bigfloat

import (
	"math"
	"math/big"
	"strconv"
)

// NativeLimit is the widest declared precision still backed by a float64.
const NativeLimit = 64

// Float is an immutable floating point value with a declared precision in
// mantissa bits. The zero value is 0 at precision 0.
//
// Floats hold a pointer for wide values and must be compared with Equal or
// Cmp, not ==.
type Float struct {
	prec uint
	f    float64    // value when wide == nil
	wide *big.Float // set iff prec > NativeLimit; never mutated once stored
}

// New returns v at the given precision. It panics if v is NaN.
func New(v float64, prec uint) Float {
	if math.IsNaN(v) {
		panic("bigfloat: NaN")
	}
	if prec <= NativeLimit {
		return Float{prec: prec, f: v}
	}
	return Float{prec: prec, wide: new(big.Float).SetPrec(prec).SetFloat64(v)}
}

// Zero returns 0 at the given precision.
func Zero(prec uint) Float { return New(0, prec) }

// One returns 1 at the given precision.
func One(prec uint) Float { return New(1, prec) }

// FromBig returns a copy of x rounded to prec bits.
func FromBig(x *big.Float, prec uint) Float {
	if prec <= NativeLimit {
		f, _ := x.Float64()
		return Float{prec: prec, f: f}
	}
	return Float{prec: prec, wide: new(big.Float).SetPrec(prec).Set(x)}
}

// Prec reports the declared precision in mantissa bits.
func (x Float) Prec() uint { return x.prec }

// IsNative reports whether x is backed by a float64.
func (x Float) IsNative() bool { return x.wide == nil }

// Float64 narrows x to a float64. Values beyond the float64 range saturate to
// ±Inf and values too small to represent become 0; the result is never NaN.
func (x Float) Float64() float64 {
	if x.wide == nil {
		return x.f
	}
	f, _ := x.wide.Float64()
	if f == 0 {
		return 0
	}
	return f
}

// Big returns the value of x as a new *big.Float at x's precision (at least
// 53 bits so native values convert exactly).
func (x Float) Big() *big.Float {
	if x.wide != nil {
		return new(big.Float).Copy(x.wide)
	}
	return new(big.Float).SetPrec(max(x.prec, 53)).SetFloat64(x.f)
}

// exact returns a *big.Float holding x's exact value. The result must be
// treated as read-only.
func (x Float) exact() *big.Float {
	if x.wide != nil {
		return x.wide
	}
	return new(big.Float).SetPrec(53).SetFloat64(x.f)
}

// Sign returns -1, 0 or +1 depending on the sign of x.
func (x Float) Sign() int {
	if x.wide != nil {
		return x.wide.Sign()
	}
	switch {
	case x.f < 0:
		return -1
	case x.f > 0:
		return 1
	}
	return 0
}

// IsZero reports whether x == 0.
func (x Float) IsZero() bool { return x.Sign() == 0 }

// IsInf reports whether x is ±Inf.
func (x Float) IsInf() bool {
	if x.wide != nil {
		return x.wide.IsInf()
	}
	return math.IsInf(x.f, 0)
}

// MantExp breaks x into a mantissa with magnitude in [0.5, 1) and a binary
// exponent so that x == mant × 2^exp. The exponent is exact; the mantissa is
// truncated toward zero to 53 bits. Zero returns (0, 0).
func (x Float) MantExp() (mant float64, exp int64) {
	if x.wide == nil {
		m, e := math.Frexp(x.f)
		return m, int64(e)
	}
	if x.wide.Sign() == 0 || x.wide.IsInf() {
		f, _ := x.wide.Float64()
		return f, 0
	}
	m := new(big.Float)
	e := x.wide.MantExp(m)
	t := new(big.Float).SetPrec(53).SetMode(big.ToZero).Set(m)
	mant, _ = t.Float64()
	return mant, int64(e)
}

// Log2 approximates log2(|x|). It stays finite far outside the float64
// range. Log2 of zero is -Inf.
func (x Float) Log2() float64 {
	if x.IsZero() {
		return math.Inf(-1)
	}
	if x.IsInf() {
		return math.Inf(1)
	}
	m, e := x.MantExp()
	return float64(e) + math.Log2(math.Abs(m))
}

// Text formats x like big.Float.Text.
func (x Float) Text(format byte, digits int) string {
	if x.wide != nil {
		return x.wide.Text(format, digits)
	}
	return strconv.FormatFloat(x.f, format, digits, 64)
}

// String formats x with the shortest decimal representation that identifies
// it at its precision.
func (x Float) String() string { return x.Text('g', -1) }
