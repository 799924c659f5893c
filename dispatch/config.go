package dispatch

import (
	"fmt"
	"math"

	"github.com/marben/perturb_mandel/perturb"
)

// Config holds the engine tunables.
type Config struct {
	// TauSq is τ² for the glitch criterion.
	TauSq float64
	// Crossover is the highest bit count still served by the extended tier.
	Crossover uint
	// SafetyMargin is added to every precision estimate.
	SafetyMargin uint
	// ForceTier overrides tier selection unless it is TierAuto.
	ForceTier Tier
	// MaxIterations is the per-pixel budget. Zero derives it from the zoom
	// depth with IterationsFor.
	MaxIterations uint32
	// IterationMultiplier and IterationPower parametrise IterationsFor.
	IterationMultiplier float64
	IterationPower      float64
	// MaxPrecision caps the bits a region may need. Zero means no cap.
	MaxPrecision uint
}

// PrecisionError is returned for a region that needs more bits than
// Config.MaxPrecision.
type PrecisionError struct {
	Bits, Max uint
}

func (e *PrecisionError) Error() string {
	return fmt.Sprintf("dispatch: region needs %d bits, the limit is %d", e.Bits, e.Max)
}

// CheckPrecision returns a *PrecisionError if bits exceeds the cap.
func (c Config) CheckPrecision(bits uint) error {
	if c.MaxPrecision != 0 && bits > c.MaxPrecision {
		return &PrecisionError{Bits: bits, Max: c.MaxPrecision}
	}
	return nil
}

// DefaultConfig returns the standard tunables.
func DefaultConfig() Config {
	return Config{
		TauSq:               perturb.DefaultTauSq,
		Crossover:           1024,
		SafetyMargin:        32,
		IterationMultiplier: 200,
		IterationPower:      2.8,
		MaxPrecision:        1 << 15,
	}
}

const (
	minIterations = 1000
	maxIterations = 10_000_000
)

// IterationsFor returns multiplier × zoomExp^power clamped to
// [1000, 10 000 000], where zoomExp is log10 of the magnification.
func IterationsFor(zoomExp, multiplier, power float64) uint32 {
	if !(zoomExp > 0) || math.IsInf(zoomExp, 0) {
		return minIterations
	}
	n := multiplier * math.Pow(zoomExp, power)
	switch {
	case math.IsNaN(n) || n < minIterations:
		return minIterations
	case n > maxIterations:
		return maxIterations
	}
	return uint32(n)
}
