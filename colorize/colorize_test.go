package colorize

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	mandel "github.com/marben/perturb_mandel"
	"github.com/marben/perturb_mandel/perturb"
)

func TestHSV(t *testing.T) {
	tests := []struct {
		h    float64
		want color.RGBA
	}{
		{0, color.RGBA{255, 0, 0, 255}},
		{0.5, color.RGBA{0, 255, 255, 255}},
		{1, color.RGBA{255, 0, 0, 255}},
		{-0.5, color.RGBA{0, 255, 255, 255}},
	}
	for _, tt := range tests {
		if got := hsv(tt.h, 1, 1); got != tt.want {
			t.Errorf("hsv(%v) = %v, want %v", tt.h, got, tt.want)
		}
	}
}

func TestPaletteColor(t *testing.T) {
	black := color.RGBA{A: 255}
	magenta := Magenta

	p := DefaultPalette
	if got := p.Color(perturb.Result{Iterations: 100, MaxIterations: 100}); got != black {
		t.Errorf("Color(inside) = %v, want black", got)
	}
	if got := p.Color(perturb.Result{Iterations: 0, MaxIterations: 100, Escaped: true}); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("Color(escaped at 0) = %v, want red", got)
	}
	glitch := perturb.Result{Iterations: 3, MaxIterations: 100, Escaped: true, Glitched: true}
	if got := p.Color(glitch); got == magenta {
		t.Errorf("Color(glitched) = %v without a glitch colour", got)
	}
	p.Glitch = magenta
	if got := p.Color(glitch); got != magenta {
		t.Errorf("Color(glitched) = %v, want %v", got, magenta)
	}
}

func TestFrameDraw(t *testing.T) {
	f := NewFrame(7, 4, 4, DefaultPalette)
	tile := image.Rect(2, 2, 4, 4)
	res := &mandel.TileResult{
		Generation: 7,
		Tile:       tile,
		Results: []perturb.Result{
			{Escaped: true, MaxIterations: 10},
			{Iterations: 10, MaxIterations: 10},
			{Iterations: 10, MaxIterations: 10, Glitched: true},
			{Escaped: true, MaxIterations: 10},
		},
	}

	ok, err := f.Draw(res)
	if !ok || err != nil {
		t.Fatalf("Draw() = %v, %v, want true, nil", ok, err)
	}
	img := f.Image()
	if got := img.RGBAAt(2, 2); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("pixel (2,2) = %v, want red", got)
	}
	if got := img.RGBAAt(3, 2); got != (color.RGBA{A: 255}) {
		t.Errorf("pixel (3,2) = %v, want black", got)
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{A: 255}) {
		t.Errorf("undrawn pixel = %v, want black", got)
	}
	if f.Tiles() != 1 || f.Glitched() != 1 {
		t.Errorf("Tiles(), Glitched() = %d, %d, want 1, 1", f.Tiles(), f.Glitched())
	}

	stale := *res
	stale.Generation = 6
	if ok, err := f.Draw(&stale); ok || err != nil {
		t.Errorf("Draw(stale) = %v, %v, want false, nil", ok, err)
	}

	short := *res
	short.Results = res.Results[:3]
	if _, err := f.Draw(&short); !errors.Is(err, ErrTileSize) {
		t.Errorf("Draw(short) error = %v, want ErrTileSize", err)
	}
}

func TestDownsample(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 6))
	red := color.RGBA{255, 0, 0, 255}
	for y := range 6 {
		for x := range 8 {
			src.SetRGBA(x, y, red)
		}
	}

	dst := Downsample(src, 2)
	if got, want := dst.Bounds(), image.Rect(0, 0, 4, 3); got != want {
		t.Fatalf("Downsample() bounds = %v, want %v", got, want)
	}
	got := dst.RGBAAt(1, 1)
	if got.R < 254 || got.G > 1 || got.B > 1 || got.A < 254 {
		t.Errorf("Downsample() pixel = %v, want about %v", got, red)
	}

	if same := Downsample(src, 1); same != src {
		t.Error("Downsample(src, 1) did not return src")
	}
}

func TestSavePNG(t *testing.T) {
	f := NewFrame(1, 3, 2, DefaultPalette)
	name := filepath.Join(t.TempDir(), "frame.png")
	if err := SavePNG(name, f.Image()); err != nil {
		t.Fatalf("SavePNG() = %v", err)
	}

	file, err := os.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := img.Bounds(), image.Rect(0, 0, 3, 2); got != want {
		t.Errorf("decoded bounds = %v, want %v", got, want)
	}

	if err := SavePNG(filepath.Join(t.TempDir(), "missing", "frame.png"), f.Image()); err == nil {
		t.Error("SavePNG() into a missing directory = nil, want an error")
	}
}
