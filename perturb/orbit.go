// Package perturb renders pixels as small perturbations of one reference
// orbit.
//
// The reference point is iterated once at full precision and stored as
// float64. Each pixel then only tracks its offset δz from that orbit, which
// stays small enough for cheap arithmetic even when the pixel coordinates
// themselves need thousands of bits.
package perturb

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/marben/perturb_mandel/bigfloat"
)

// escapeRadiusSq is the bailout |z|² > 4 shared by the orbit and every
// iterator.
const escapeRadiusSq = 4

// Point is one orbit entry.
type Point struct {
	_  struct{} `cbor:",toarray"`
	Re float64
	Im float64
}

// Orbit is the reference orbit Z₀, Z₁, ... of one point, narrowed to
// float64. It is immutable once computed and safe for concurrent use.
type Orbit struct {
	points    []Point
	escaped   bool
	escapedAt uint32
}

// ComputeOrbit iterates Zₙ₊₁ = Zₙ² + C from Z₀ = 0 at the precision of the
// given center. The orbit ends when |Zₙ|² > 4, in which case Zₙ is its last
// entry, or after maxIter entries.
func ComputeOrbit(cx, cy bigfloat.Float, maxIter uint32) *Orbit {
	prec := max(cx.Prec(), cy.Prec())
	o := &Orbit{points: make([]Point, 0, min(maxIter, 1<<20))}

	x, y := bigfloat.Zero(prec), bigfloat.Zero(prec)
	four := bigfloat.New(escapeRadiusSq, prec)
	for n := uint32(0); n < maxIter; n++ {
		o.points = append(o.points, Point{Re: x.Float64(), Im: y.Float64()})

		x2, y2 := x.Mul(x), y.Mul(y)
		if x2.Add(y2).Cmp(four) > 0 {
			o.escaped, o.escapedAt = true, n
			break
		}
		x, y = x2.Sub(y2).Add(cx), x.Mul(y).MulFloat64(2).Add(cy)
	}
	return o
}

// NewOrbit wraps precomputed points. escapedAt < 0 marks an orbit that did
// not escape.
func NewOrbit(points []Point, escapedAt int) *Orbit {
	o := &Orbit{points: append([]Point(nil), points...)}
	if escapedAt >= 0 {
		o.escaped, o.escapedAt = true, uint32(escapedAt)
	}
	return o
}

// Len returns the number of stored entries.
func (o *Orbit) Len() int { return len(o.points) }

// At returns entry m mod Len(). It panics on an empty orbit.
func (o *Orbit) At(m int) Point { return o.points[m%len(o.points)] }

// Escaped reports whether the reference escaped and at which iteration.
func (o *Orbit) Escaped() (uint32, bool) { return o.escapedAt, o.escaped }

func (o *Orbit) String() string {
	if o.escaped {
		return fmt.Sprintf("orbit(len=%d, escaped at %d)", len(o.points), o.escapedAt)
	}
	return fmt.Sprintf("orbit(len=%d)", len(o.points))
}

type wireOrbit struct {
	_         struct{} `cbor:",toarray"`
	Points    []Point
	Escaped   bool
	EscapedAt uint32
}

// MarshalCBOR implements cbor.Marshaler.
func (o *Orbit) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(wireOrbit{Points: o.points, Escaped: o.escaped, EscapedAt: o.escapedAt})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (o *Orbit) UnmarshalCBOR(data []byte) error {
	var w wireOrbit
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Escaped && int(w.EscapedAt) >= len(w.Points) {
		return fmt.Errorf("perturb: orbit escapes at %d but holds %d points", w.EscapedAt, len(w.Points))
	}
	*o = Orbit{points: w.Points, escaped: w.Escaped, escapedAt: w.EscapedAt}
	return nil
}
