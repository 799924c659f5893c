package bigfloat

import (
	"math"
	"math/big"
)

func resultPrec(x, y Float) uint { return max(x.prec, y.prec) }

// binary runs op natively when the result precision fits a float64, and
// otherwise in big.Float at the result precision. Native results are
// rounded after every operation, never fused with the next one.
func binary(x, y Float, native func(a, b float64) float64, wide func(z, a, b *big.Float) *big.Float) Float {
	prec := resultPrec(x, y)
	if prec <= NativeLimit {
		return Float{prec: prec, f: native(x.f, y.f)}
	}
	z := new(big.Float).SetPrec(prec)
	return Float{prec: prec, wide: wide(z, x.exact(), y.exact())}
}

// Add returns x + y at max(x.Prec(), y.Prec()).
func (x Float) Add(y Float) Float {
	return binary(x, y,
		func(a, b float64) float64 { return a + b },
		(*big.Float).Add)
}

// Sub returns x - y at max(x.Prec(), y.Prec()).
func (x Float) Sub(y Float) Float {
	return binary(x, y,
		func(a, b float64) float64 { return a - b },
		(*big.Float).Sub)
}

// Mul returns x × y at max(x.Prec(), y.Prec()).
func (x Float) Mul(y Float) Float {
	return binary(x, y,
		func(a, b float64) float64 { return float64(a * b) },
		(*big.Float).Mul)
}

// Quo returns x / y at max(x.Prec(), y.Prec()). Dividing a non-zero value by
// zero yields ±Inf; 0/0 panics like big.Float.Quo.
func (x Float) Quo(y Float) Float {
	if x.IsZero() && y.IsZero() {
		panic("bigfloat: 0/0")
	}
	return binary(x, y,
		func(a, b float64) float64 { return a / b },
		(*big.Float).Quo)
}

// MulFloat64 returns x × s, keeping x's precision.
func (x Float) MulFloat64(s float64) Float {
	return x.Mul(New(s, x.prec))
}

// Sqrt returns √x at x's precision. It panics if x < 0.
func (x Float) Sqrt() Float {
	if x.Sign() < 0 {
		panic("bigfloat: square root of negative value")
	}
	if x.wide == nil {
		return Float{prec: x.prec, f: math.Sqrt(x.f)}
	}
	return Float{prec: x.prec, wide: new(big.Float).SetPrec(x.prec).Sqrt(x.wide)}
}

// Neg returns -x.
func (x Float) Neg() Float {
	if x.wide == nil {
		return Float{prec: x.prec, f: -x.f}
	}
	return Float{prec: x.prec, wide: new(big.Float).Neg(x.wide)}
}

// Abs returns |x|.
func (x Float) Abs() Float {
	if x.Sign() < 0 {
		return x.Neg()
	}
	return x
}

// Cmp compares the mathematical values of x and y and returns -1, 0 or +1.
// The backing representation of either operand does not matter.
func (x Float) Cmp(y Float) int {
	if x.wide == nil && y.wide == nil {
		switch {
		case x.f < y.f:
			return -1
		case x.f > y.f:
			return 1
		}
		return 0
	}
	return x.exact().Cmp(y.exact())
}

// Equal reports whether x and y have the same mathematical value.
func (x Float) Equal(y Float) bool { return x.Cmp(y) == 0 }

// Less reports whether x < y.
func (x Float) Less(y Float) bool { return x.Cmp(y) < 0 }

// Max returns the larger of x and y, at max(x.Prec(), y.Prec()).
func Max(x, y Float) Float {
	prec := resultPrec(x, y)
	if x.Cmp(y) >= 0 {
		return x.WithPrec(prec)
	}
	return y.WithPrec(prec)
}

// Min returns the smaller of x and y, at max(x.Prec(), y.Prec()).
func Min(x, y Float) Float {
	prec := resultPrec(x, y)
	if x.Cmp(y) <= 0 {
		return x.WithPrec(prec)
	}
	return y.WithPrec(prec)
}

// WithPrec returns x re-declared at prec bits, rounding when narrowing.
func (x Float) WithPrec(prec uint) Float {
	if prec == x.prec {
		return x
	}
	if prec <= NativeLimit {
		return Float{prec: prec, f: x.Float64()}
	}
	return Float{prec: prec, wide: new(big.Float).SetPrec(prec).Set(x.exact())}
}
