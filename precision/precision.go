// Package precision estimates how many mantissa bits a render needs.
package precision

import (
	"math/big"
	"math/bits"

	"github.com/marben/perturb_mandel/bigfloat"
)

// WorkingPrecision is the precision the estimate itself is computed at.
const WorkingPrecision = 4096

// Params describes the render being estimated.
type Params struct {
	CenterX, CenterY bigfloat.Float
	Width, Height    bigfloat.Float
	// Sample counts along each axis.
	PX, PY int
	// Iteration budget.
	Iterations uint32
	// SafetyMargin is added to every estimate.
	SafetyMargin uint
}

// Estimate returns
//
//	ceil(log2(M / minDelta)) + ceil(log2(iterations)) + margin
//
// where minDelta = min(width/px, height/py) and
// M = max(|cx| + width/2, |cy| + height/2). The ratio term never goes below
// zero. Degenerate input (a non-positive or infinite extent, or a zero sample
// count) yields the safety margin alone.
func Estimate(p Params) uint {
	if p.PX <= 0 || p.PY <= 0 ||
		p.Width.Sign() <= 0 || p.Height.Sign() <= 0 ||
		p.Width.IsInf() || p.Height.IsInf() || p.CenterX.IsInf() || p.CenterY.IsInf() {
		return p.SafetyMargin
	}

	const wp = WorkingPrecision
	w := p.Width.WithPrec(wp)
	h := p.Height.WithPrec(wp)
	minDelta := bigfloat.Min(
		w.Quo(bigfloat.New(float64(p.PX), wp)),
		h.Quo(bigfloat.New(float64(p.PY), wp)),
	)

	half := bigfloat.New(0.5, wp)
	m := bigfloat.Max(
		p.CenterX.WithPrec(wp).Abs().Add(w.Mul(half)),
		p.CenterY.WithPrec(wp).Abs().Add(h.Mul(half)),
	)
	if m.IsZero() {
		m = w
	}

	return uint(max(ceilLog2(m.Quo(minDelta)), 0)) + iterationBits(p.Iterations) + p.SafetyMargin
}

// ceilLog2 returns ceil(log2(x)) for x > 0, exactly.
func ceilLog2(x bigfloat.Float) int64 {
	mant := new(big.Float)
	exp := int64(x.Big().MantExp(mant))
	// x = mant × 2^exp with mant in [0.5, 1); only an exact power of two
	// has its logarithm at exp-1.
	if mant.Cmp(big.NewFloat(0.5)) == 0 {
		return exp - 1
	}
	return exp
}

// iterationBits returns ceil(log2(n)), and 0 for n <= 1.
func iterationBits(n uint32) uint {
	if n <= 1 {
		return 0
	}
	return uint(bits.Len32(n - 1))
}
