// Package colorize turns per-pixel results into pictures.
package colorize

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"

	mandel "github.com/marben/perturb_mandel"
	"github.com/marben/perturb_mandel/perturb"
)

// ErrTileSize is returned by Frame.Draw for a tile whose result count does
// not match its area.
var ErrTileSize = errors.New("colorize: result count does not match tile")

// Palette maps iteration counts onto a hue cycle.
type Palette struct {
	// Frequency is the hue advance per iteration, in turns.
	Frequency float64
	Offset    float64
	// Glitch, if not transparent, paints glitched pixels.
	Glitch color.RGBA
}

var DefaultPalette = Palette{Frequency: 0.02}

// Magenta is the usual glitch colour.
var Magenta = color.RGBA{255, 0, 255, 255}

// Color returns the colour of one pixel. Points that never escaped are
// black.
func (p Palette) Color(r perturb.Result) color.RGBA {
	if r.Glitched && p.Glitch.A != 0 {
		return p.Glitch
	}
	if !r.Escaped {
		return color.RGBA{A: 255}
	}
	return hsv(float64(r.Iterations)*p.Frequency+p.Offset, 1, 1)
}

// Simple HSV → RGB
func hsv(h, s, v float64) color.RGBA {
	h -= math.Floor(h)
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return color.RGBA{uint8(r * 255), uint8(g * 255), uint8(b * 255), 255}
}

// Frame assembles the tiles of one generation into an image.
type Frame struct {
	gen      mandel.Generation
	img      *image.RGBA
	pal      Palette
	tiles    int
	glitched int
}

// NewFrame returns a black frame of w × h pixels for generation gen.
func NewFrame(gen mandel.Generation, w, h int, pal Palette) *Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(img, img.Bounds(), image.Black, image.Point{}, xdraw.Src)
	return &Frame{gen: gen, img: img, pal: pal}
}

func (f *Frame) Generation() mandel.Generation { return f.gen }

// Draw paints res. It reports false, and draws nothing, if res belongs to
// another generation.
func (f *Frame) Draw(res *mandel.TileResult) (bool, error) {
	if res.Generation != f.gen {
		return false, nil
	}
	tile := res.Tile
	if len(res.Results) != tile.Dx()*tile.Dy() {
		return false, fmt.Errorf("%w: %d results for %v", ErrTileSize, len(res.Results), tile)
	}
	bounds := f.img.Bounds()
	i := 0
	for y := tile.Min.Y; y < tile.Max.Y; y++ {
		for x := tile.Min.X; x < tile.Max.X; x++ {
			r := res.Results[i]
			i++
			if r.Glitched {
				f.glitched++
			}
			if (image.Point{x, y}).In(bounds) {
				f.img.SetRGBA(x, y, f.pal.Color(r))
			}
		}
	}
	f.tiles++
	return true, nil
}

// Tiles returns the number of tiles drawn.
func (f *Frame) Tiles() int { return f.tiles }

// Glitched returns the number of glitched pixels drawn.
func (f *Frame) Glitched() int { return f.glitched }

func (f *Frame) Image() *image.RGBA { return f.img }

// Downsample shrinks src by factor in both directions with Catmull-Rom
// filtering, for supersampled renders. A factor below 2 returns src's
// pixels unchanged.
func Downsample(src *image.RGBA, factor int) *image.RGBA {
	if factor < 2 {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()/factor, b.Dy()/factor))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}
