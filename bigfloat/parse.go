package bigfloat

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ErrSyntax is wrapped by every ParseError.
var ErrSyntax = errors.New("bigfloat: invalid syntax")

// ParseError records a failed conversion of a numeric string.
type ParseError struct {
	Input string
	Prec  uint
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bigfloat: parsing %q at %d bits: %v", e.Input, e.Prec, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse converts a decimal string such as "-0.75", "4e-2000" or
// "1.25E+5000" to a Float at prec bits. Wide precisions keep exponents far
// beyond the float64 range; native precisions saturate like Float64.
// Non-finite literals are rejected.
func Parse(s string, prec uint) (Float, error) {
	in := strings.TrimSpace(s)
	if !isDecimal(in) {
		return Float{}, &ParseError{Input: s, Prec: prec, Err: ErrSyntax}
	}

	if prec <= NativeLimit {
		f, err := strconv.ParseFloat(in, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return Float{}, &ParseError{Input: s, Prec: prec, Err: ErrSyntax}
		}
		if err == nil && (math.IsInf(f, 0) || math.IsNaN(f)) {
			return Float{}, &ParseError{Input: s, Prec: prec, Err: ErrSyntax}
		}
		if f == 0 {
			f = 0 // underflow keeps the sign; drop it
		}
		return Float{prec: prec, f: f}, nil
	}

	z, _, err := new(big.Float).SetPrec(prec).Parse(in, 10)
	if err != nil {
		return Float{}, &ParseError{Input: s, Prec: prec, Err: fmt.Errorf("%w: %v", ErrSyntax, err)}
	}
	if z.IsInf() {
		return Float{}, &ParseError{Input: s, Prec: prec, Err: ErrSyntax}
	}
	return Float{prec: prec, wide: z}, nil
}

// isDecimal reports whether s has the form [sign] digits [. digits]
// [e [sign] digits] with at least one mantissa digit. Hex, underscores and
// named values are refused at every precision.
func isDecimal(s string) bool {
	i := 0
	sign := func() {
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
	}
	digits := func() int {
		n := 0
		for ; i < len(s) && '0' <= s[i] && s[i] <= '9'; i++ {
			n++
		}
		return n
	}

	sign()
	n := digits()
	if i < len(s) && s[i] == '.' {
		i++
		n += digits()
	}
	if n == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		sign()
		if digits() == 0 {
			return false
		}
	}
	return i == len(s)
}

// MustParse is like Parse but panics on malformed input. It is intended for
// package-level literals.
func MustParse(s string, prec uint) Float {
	x, err := Parse(s, prec)
	if err != nil {
		panic(err)
	}
	return x
}

// MarshalText encodes x as "<prec>:<shortest decimal>", which parses back to
// the identical value at the same precision.
func (x Float) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(x.prec), 10) + ":" + x.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for the MarshalText form.
func (x *Float) UnmarshalText(b []byte) error {
	ps, vs, ok := strings.Cut(string(b), ":")
	if !ok {
		return &ParseError{Input: string(b), Err: ErrSyntax}
	}
	prec, err := strconv.ParseUint(ps, 10, 32)
	if err != nil {
		return &ParseError{Input: string(b), Err: fmt.Errorf("%w: precision: %v", ErrSyntax, err)}
	}
	v, err := Parse(vs, uint(prec))
	if err != nil {
		return err
	}
	*x = v
	return nil
}
