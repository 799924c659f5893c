// Package extfloat implements a float64 mantissa paired with an int64 binary
// exponent. It keeps float64 speed for the per-pixel deltas of deep zooms
// whose magnitudes fall far below the float64 range.
//
// Inside the float64 range every operation rounds exactly like the matching
// float64 operation, so renders agree with the native tier wherever both apply.
package extfloat

import (
	"math"
	"strconv"

	"github.com/marben/perturb_mandel/bigfloat"
)

// Float is the value mant × 2^exp. Non-zero values keep |mant| in [0.5, 1);
// zero is (0, 0), which is also the zero value.
type Float struct {
	mant float64
	exp  int64
}

// Zero returns 0.
func Zero() Float { return Float{} }

func normalize(m float64, e int64) Float {
	if m == 0 {
		return Float{}
	}
	fm, fe := math.Frexp(m)
	return Float{mant: fm, exp: e + int64(fe)}
}

// FromFloat64 converts v exactly. v must be finite.
func FromFloat64(v float64) Float { return normalize(v, 0) }

// FromBig converts x keeping its exponent exactly and its mantissa truncated
// to 53 bits.
func FromBig(x bigfloat.Float) Float {
	m, e := x.MantExp()
	if m == 0 {
		return Float{}
	}
	return Float{mant: m, exp: e}
}

// Mantissa returns the normalised mantissa.
func (a Float) Mantissa() float64 { return a.mant }

// Exp returns the binary exponent.
func (a Float) Exp() int64 { return a.exp }

// IsZero reports whether a == 0.
func (a Float) IsZero() bool { return a.mant == 0 }

// Sign returns -1, 0 or +1.
func (a Float) Sign() int {
	switch {
	case a.mant < 0:
		return -1
	case a.mant > 0:
		return 1
	}
	return 0
}

// Frexp-form exponent bounds of float64: mant·2^exp overflows above maxExp
// and rounds to zero below minExp.
const (
	maxExp = 1024
	minExp = -1074
)

// Float64 narrows a. Overflow saturates to ±Inf and underflow gives 0.
func (a Float) Float64() float64 {
	switch {
	case a.mant == 0:
		return 0
	case a.exp > maxExp:
		return math.Copysign(math.Inf(1), a.mant)
	case a.exp < minExp:
		return 0
	}
	f := math.Ldexp(a.mant, int(a.exp))
	if f == 0 {
		return 0
	}
	return f
}

// Log2 returns log2(|a|), or -Inf for zero.
func (a Float) Log2() float64 {
	if a.mant == 0 {
		return math.Inf(-1)
	}
	return float64(a.exp) + math.Log2(math.Abs(a.mant))
}

// Neg returns -a.
func (a Float) Neg() Float {
	if a.mant == 0 {
		return a
	}
	return Float{mant: -a.mant, exp: a.exp}
}

// Add returns a + b. When the exponents differ by more than 53 the smaller
// operand cannot change the result and the larger one is returned unchanged.
func (a Float) Add(b Float) Float {
	if a.mant == 0 {
		return b
	}
	if b.mant == 0 {
		return a
	}
	if a.exp < b.exp {
		a, b = b, a
	}
	d := a.exp - b.exp
	if d > 53 {
		return a
	}
	return normalize(a.mant+math.Ldexp(b.mant, -int(d)), a.exp)
}

// Sub returns a - b.
func (a Float) Sub(b Float) Float { return a.Add(b.Neg()) }

// Mul returns a × b.
func (a Float) Mul(b Float) Float {
	if a.mant == 0 || b.mant == 0 {
		return Float{}
	}
	return normalize(float64(a.mant*b.mant), a.exp+b.exp)
}

// MulFloat64 returns a × s.
func (a Float) MulFloat64(s float64) Float { return a.Mul(FromFloat64(s)) }

// NormSq returns re² + im².
func NormSq(re, im Float) Float { return re.Mul(re).Add(im.Mul(im)) }

// Cmp returns -1, 0 or +1 as a is less than, equal to or greater than b.
func (a Float) Cmp(b Float) int {
	sa, sb := a.Sign(), b.Sign()
	if sa != sb {
		if sa < sb {
			return -1
		}
		return 1
	}
	if sa == 0 {
		return 0
	}
	c := 0
	switch {
	case a.exp < b.exp:
		c = -1
	case a.exp > b.exp:
		c = 1
	case a.mant < b.mant:
		return -1
	case a.mant > b.mant:
		return 1
	default:
		return 0
	}
	return c * sa
}

// Less reports whether a < b.
func (a Float) Less(b Float) bool { return a.Cmp(b) < 0 }

func (a Float) String() string {
	if a.mant == 0 {
		return "0"
	}
	return strconv.FormatFloat(a.mant, 'g', -1, 64) + "p" + strconv.FormatInt(a.exp, 10)
}
