package perturb

import "fmt"

// DefaultTauSq is τ² for the Pauldelbrot glitch criterion, τ = 10⁻³.
const DefaultTauSq = 1e-6

// glitchFloor keeps the glitch test away from reference entries near zero,
// where the relative criterion is meaningless.
const glitchFloor = 1e-20

// Result is the outcome for one pixel. It has the same shape whatever
// numeric tier produced it.
type Result struct {
	_             struct{} `cbor:",toarray"`
	Iterations    uint32
	MaxIterations uint32
	Escaped       bool
	// Glitched marks a pixel whose delta lost precision against the
	// reference. It does not stop iteration.
	Glitched bool
}

func (r Result) String() string {
	s := fmt.Sprintf("%d/%d", r.Iterations, r.MaxIterations)
	if r.Escaped {
		s += " escaped"
	}
	if r.Glitched {
		s += " glitched"
	}
	return s
}
