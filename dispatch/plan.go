// Package dispatch turns a viewport and canvas into a render plan: it
// estimates the precision, picks the numeric tier, computes the reference
// orbit, and renders tiles of pixels against it.
package dispatch

import (
	"errors"
	"fmt"
	"image"

	"github.com/marben/perturb_mandel/bigfloat"
	"github.com/marben/perturb_mandel/extfloat"
	"github.com/marben/perturb_mandel/perturb"
	"github.com/marben/perturb_mandel/precision"
	"github.com/marben/perturb_mandel/viewport"
)

// ErrCanvas is returned for non-positive canvas dimensions.
var ErrCanvas = errors.New("dispatch: invalid canvas size")

// Plan is everything needed to render any pixel of one frame. It is
// read-only once built and is shipped as is to worker processes.
type Plan struct {
	Width, Height int
	Tier          Tier
	// Bits is the estimated precision; deltas are built at this precision.
	Bits          uint
	MaxIterations uint32
	TauSq         float64
	// StepX and StepY are the complex-plane size of one pixel.
	StepX, StepY bigfloat.Float
	Orbit        *perturb.Orbit
}

// Estimate is what a render needs, worked out without computing its orbit.
type Estimate struct {
	Bits          uint
	Tier          Tier
	MaxIterations uint32
}

// EstimateFor validates the canvas and vp and works out the iteration
// budget, the precision and the tier for them. A precision above
// cfg.MaxPrecision is a *PrecisionError.
func EstimateFor(vp viewport.Viewport, width, height int, cfg Config) (Estimate, error) {
	if width <= 0 || height <= 0 {
		return Estimate{}, fmt.Errorf("%w: %dx%d", ErrCanvas, width, height)
	}
	if err := vp.Validate(); err != nil {
		return Estimate{}, err
	}

	maxIter := cfg.MaxIterations
	if maxIter == 0 {
		maxIter = IterationsFor(vp.ZoomExponent(), cfg.IterationMultiplier, cfg.IterationPower)
	}

	bits := precision.Estimate(precision.Params{
		CenterX:      vp.CenterX,
		CenterY:      vp.CenterY,
		Width:        vp.Width,
		Height:       vp.Height,
		PX:           width,
		PY:           height,
		Iterations:   maxIter,
		SafetyMargin: cfg.SafetyMargin,
	})
	if err := cfg.CheckPrecision(bits); err != nil {
		return Estimate{}, err
	}

	tier := cfg.ForceTier
	if tier == TierAuto {
		tier = SelectTier(bits, cfg.Crossover)
	}
	return Estimate{Bits: bits, Tier: tier, MaxIterations: maxIter}, nil
}

// NewPlan estimates the precision for vp on a width x height canvas,
// selects the tier and computes the reference orbit at the viewport center.
func NewPlan(vp viewport.Viewport, width, height int, cfg Config) (*Plan, error) {
	est, err := EstimateFor(vp, width, height, cfg)
	if err != nil {
		return nil, err
	}

	bits := est.Bits
	vp = vp.WithPrecision(bits)
	return &Plan{
		Width:         width,
		Height:        height,
		Tier:          est.Tier,
		Bits:          bits,
		MaxIterations: est.MaxIterations,
		TauSq:         cfg.TauSq,
		StepX:         vp.Width.Quo(bigfloat.New(float64(width), bits)),
		StepY:         vp.Height.Quo(bigfloat.New(float64(height), bits)),
		Orbit:         perturb.ComputeOrbit(vp.CenterX, vp.CenterY, est.MaxIterations),
	}, nil
}

// Bounds returns the canvas rectangle.
func (p *Plan) Bounds() image.Rectangle { return image.Rect(0, 0, p.Width, p.Height) }

// offsets returns step × (i - n/2) for i in [lo, hi) at the plan precision.
func (p *Plan) offsets(step bigfloat.Float, lo, hi, n int) []bigfloat.Float {
	out := make([]bigfloat.Float, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, step.Mul(bigfloat.New(float64(i)-float64(n)/2, p.Bits)))
	}
	return out
}

// RenderTile iterates every pixel of tile that lies on the canvas and
// returns the results in row-major order. The delta of pixel (x, y) from
// the reference is (StepX·(x - W/2), StepY·(y - H/2)).
func (p *Plan) RenderTile(tile image.Rectangle) []perturb.Result {
	tile = tile.Intersect(p.Bounds())
	if tile.Empty() {
		return nil
	}
	xs := p.offsets(p.StepX, tile.Min.X, tile.Max.X, p.Width)
	ys := p.offsets(p.StepY, tile.Min.Y, tile.Max.Y, p.Height)
	out := make([]perturb.Result, 0, tile.Dx()*tile.Dy())

	switch p.Tier {
	case TierNative:
		re := make([]float64, len(xs))
		for i, x := range xs {
			re[i] = x.Float64()
		}
		for _, y := range ys {
			im := y.Float64()
			for _, r := range re {
				out = append(out, perturb.IterateNative(p.Orbit, r, im, p.MaxIterations, p.TauSq))
			}
		}
	case TierExtended:
		re := make([]extfloat.Float, len(xs))
		for i, x := range xs {
			re[i] = extfloat.FromBig(x)
		}
		for _, y := range ys {
			im := extfloat.FromBig(y)
			for _, r := range re {
				out = append(out, perturb.IterateExtended(p.Orbit, r, im, p.MaxIterations, p.TauSq))
			}
		}
	default:
		for _, y := range ys {
			for _, x := range xs {
				out = append(out, perturb.IterateArbitrary(p.Orbit, x, y, p.MaxIterations, p.TauSq))
			}
		}
	}
	return out
}

func (p *Plan) String() string {
	return fmt.Sprintf("%dx%d %s tier, %d bits, %d iterations, %v",
		p.Width, p.Height, p.Tier, p.Bits, p.MaxIterations, p.Orbit)
}
