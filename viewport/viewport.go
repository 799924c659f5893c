// Package viewport describes the rectangle of the complex plane being
// rendered, with coordinates kept at arbitrary precision.
package viewport

import (
	"errors"
	"fmt"
	"math"

	"github.com/marben/perturb_mandel/bigfloat"
)

// ErrInvalid is returned for viewports that cannot be rendered.
var ErrInvalid = errors.New("viewport: invalid")

// Viewport is a region of the complex plane given by its center and extent.
// At deep zooms Width and Height are far below the float64 range.
type Viewport struct {
	CenterX bigfloat.Float
	CenterY bigfloat.Float
	Width   bigfloat.Float
	Height  bigfloat.Float
}

// FromFloat64 builds a viewport from float64 values declared at prec bits.
func FromFloat64(cx, cy, width, height float64, prec uint) Viewport {
	return Viewport{
		CenterX: bigfloat.New(cx, prec),
		CenterY: bigfloat.New(cy, prec),
		Width:   bigfloat.New(width, prec),
		Height:  bigfloat.New(height, prec),
	}
}

// FromStrings parses a viewport from decimal strings at prec bits. It is the
// constructor to use for coordinates that float64 cannot hold.
func FromStrings(cx, cy, width, height string, prec uint) (Viewport, error) {
	var vp Viewport
	fields := []struct {
		name string
		in   string
		dst  *bigfloat.Float
	}{
		{"center x", cx, &vp.CenterX},
		{"center y", cy, &vp.CenterY},
		{"width", width, &vp.Width},
		{"height", height, &vp.Height},
	}
	for _, f := range fields {
		v, err := bigfloat.Parse(f.in, prec)
		if err != nil {
			return Viewport{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return vp, nil
}

// Precision returns the widest precision among the viewport's coordinates.
func (vp Viewport) Precision() uint {
	return max(vp.CenterX.Prec(), vp.CenterY.Prec(), vp.Width.Prec(), vp.Height.Prec())
}

// WithPrecision re-declares every coordinate at prec bits.
func (vp Viewport) WithPrecision(prec uint) Viewport {
	return Viewport{
		CenterX: vp.CenterX.WithPrec(prec),
		CenterY: vp.CenterY.WithPrec(prec),
		Width:   vp.Width.WithPrec(prec),
		Height:  vp.Height.WithPrec(prec),
	}
}

// Validate reports ErrInvalid unless the extent is positive and every
// coordinate is finite.
func (vp Viewport) Validate() error {
	if vp.CenterX.IsInf() || vp.CenterY.IsInf() || vp.Width.IsInf() || vp.Height.IsInf() {
		return fmt.Errorf("%w: non-finite coordinate", ErrInvalid)
	}
	if vp.Width.Sign() <= 0 || vp.Height.Sign() <= 0 {
		return fmt.Errorf("%w: extent %v x %v", ErrInvalid, vp.Width, vp.Height)
	}
	return nil
}

// ZoomExponent returns log10 of the magnification relative to the width 4
// home view. It is 0 at home and ~2000 at a width of 4e-2000.
func (vp Viewport) ZoomExponent() float64 {
	if vp.Width.Sign() <= 0 {
		return 0
	}
	return (2 - vp.Width.Log2()) / math.Log2(10)
}

// Fit returns vp with Height adjusted so the region has the aspect ratio
// of a width x height canvas.
func (vp Viewport) Fit(width, height int) Viewport {
	if width <= 0 || height <= 0 {
		return vp
	}
	prec := vp.Width.Prec()
	vp.Height = vp.Width.Mul(bigfloat.New(float64(height), prec)).Quo(bigfloat.New(float64(width), prec))
	return vp
}

func (vp Viewport) String() string {
	return fmt.Sprintf("center=(%s, %s) size=%s x %s @%d bits",
		vp.CenterX.Text('g', 20), vp.CenterY.Text('g', 20),
		vp.Width.Text('e', 6), vp.Height.Text('e', 6), vp.Precision())
}
