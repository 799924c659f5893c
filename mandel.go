package mandel

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"

	"github.com/marben/perturb_mandel/dispatch"
	"github.com/marben/perturb_mandel/viewport"
)

// DefaultTileSize is the tile edge used when a request names none.
const DefaultTileSize = 64

// Landmark is a named location. Coordinates are strings so deep locations
// keep every digit.
type Landmark struct {
	Name             string
	CenterX, CenterY string
	Width            string
}

// Classic regions / landmarks in the Mandelbrot set
var (
	Home = Landmark{Name: "home", CenterX: "-0.5", CenterY: "0", Width: "4"}

	// Seahorse Valley – dense filaments and repeating “seahorse” curls
	SeahorseValley = Landmark{Name: "seahorse", CenterX: "-0.75", CenterY: "0.1", Width: "0.1"}

	// Elephant Valley – large bulb with trunk-like tendrils
	ElephantValley = Landmark{Name: "elephant", CenterX: "0.275", CenterY: "0.006", Width: "0.02"}

	// Spiral Minibrot – small Mandelbrot copy with tight spiral arms
	SpiralMinibrot = Landmark{Name: "spiral", CenterX: "-0.74275", CenterY: "0.13175", Width: "0.0015"}

	// Minibrot in a Mini-Spiral – self-similar copy inside a spiral arm
	MinibrotInMiniSpiral = Landmark{Name: "minispiral", CenterX: "-1.73825", CenterY: "-0.02275", Width: "0.0015"}

	// Deep Seahorse – the seahorse spiral 10^30 deep; past float64 precision
	DeepSeahorse = Landmark{
		Name:    "deepseahorse",
		CenterX: "-0.743643887037158704752191506114774",
		CenterY: "0.131825904205311970493132056385139",
		Width:   "1e-30",
	}

	// Needle – a point on the real axis antenna 10^1000 deep, in extended
	// or arbitrary tier depending on the crossover
	Needle = Landmark{
		Name:    "needle",
		CenterX: "-1.9999999999999999999999999999999999999999999999999999999999999999999999999999999999999999999999",
		CenterY: "0",
		Width:   "4e-1000",
	}
)

// Landmarks lists the named locations.
var Landmarks = []Landmark{Home, SeahorseValley, ElephantValley, SpiralMinibrot, MinibrotInMiniSpiral, DeepSeahorse, Needle}

// LandmarkByName looks a landmark up by name.
func LandmarkByName(name string) (Landmark, bool) {
	for _, l := range Landmarks {
		if l.Name == name {
			return l, true
		}
	}
	return Landmark{}, false
}

// ParsePrecision returns the bits needed to hold a decimal coordinate: its
// digits times log2(10) plus the exponent's reach, at least 64. An exponent
// too large for an int needs more bits than any cap allows.
func ParsePrecision(coords ...string) uint {
	bits := uint(64)
	for _, c := range coords {
		digits, exp := 0, 0
		for i := 0; i < len(c); i++ {
			switch ch := c[i]; {
			case ch >= '0' && ch <= '9':
				digits++
			case ch == 'e' || ch == 'E':
				var err error
				exp, err = strconv.Atoi(c[i+1:])
				if errors.Is(err, strconv.ErrRange) {
					exp = math.MaxInt32
				}
				i = len(c)
			}
		}
		need := uint(math.Ceil(float64(digits+abs(exp))*math.Log2(10))) + 64
		bits = max(bits, need)
	}
	return bits
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Bits returns the precision the coordinates are parsed at.
func (r RenderRequest) Bits() uint {
	if r.Precision != 0 {
		return r.Precision
	}
	return ParsePrecision(r.CenterX, r.CenterY, r.Width, r.Height)
}

// Viewport parses the request's region. Height defaults to the canvas
// aspect ratio applied to Width.
func (r RenderRequest) Viewport() (viewport.Viewport, error) {
	h := r.Height
	if h == "" {
		h = r.Width
	}
	vp, err := viewport.FromStrings(r.CenterX, r.CenterY, r.Width, h, r.Bits())
	if err != nil {
		return viewport.Viewport{}, err
	}
	if r.Height == "" {
		vp = vp.Fit(r.CanvasWidth, r.CanvasHeight)
	}
	return vp, vp.Validate()
}

// Config returns cfg with the request's iteration budget and tier applied.
func (r RenderRequest) Config(cfg dispatch.Config) dispatch.Config {
	if r.MaxIterations != 0 {
		cfg.MaxIterations = r.MaxIterations
	}
	if r.Tier != dispatch.TierAuto {
		cfg.ForceTier = r.Tier
	}
	return cfg
}

// Estimate parses the region and works out its precision, tier and
// iteration budget on cfg without computing the orbit. Coordinates needing
// more than cfg.MaxPrecision bits are refused before they are parsed.
func (r RenderRequest) Estimate(cfg dispatch.Config) (viewport.Viewport, dispatch.Estimate, error) {
	if err := cfg.CheckPrecision(r.Bits()); err != nil {
		return viewport.Viewport{}, dispatch.Estimate{}, fmt.Errorf("viewport: %w", err)
	}
	vp, err := r.Viewport()
	if err != nil {
		return viewport.Viewport{}, dispatch.Estimate{}, fmt.Errorf("viewport: %w", err)
	}
	est, err := dispatch.EstimateFor(vp, r.CanvasWidth, r.CanvasHeight, r.Config(cfg))
	if err != nil {
		return viewport.Viewport{}, dispatch.Estimate{}, fmt.Errorf("plan: %w", err)
	}
	return vp, est, nil
}

// Plan builds the request's render plan on cfg, reference orbit included.
func (r RenderRequest) Plan(cfg dispatch.Config) (*dispatch.Plan, error) {
	vp, _, err := r.Estimate(cfg)
	if err != nil {
		return nil, err
	}
	plan, err := dispatch.NewPlan(vp, r.CanvasWidth, r.CanvasHeight, r.Config(cfg))
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	return plan, nil
}

// Tiles splits bounds into tiles of the request's tile size.
func (r RenderRequest) Tiles(bounds image.Rectangle) []image.Rectangle {
	size := r.TileSize
	if size <= 0 {
		size = DefaultTileSize
	}
	return SplitTiles(bounds, size, size)
}

// Job plans the request on cfg and splits its canvas into tiles.
func (r RenderRequest) Job(cfg dispatch.Config) (*Job, []image.Rectangle, error) {
	plan, err := r.Plan(cfg)
	if err != nil {
		return nil, nil, err
	}
	return &Job{Generation: r.Generation, Plan: plan}, r.Tiles(plan.Bounds()), nil
}

// Request builds a render request for the landmark.
func (l Landmark) Request(gen Generation, w, h int) RenderRequest {
	return RenderRequest{
		Generation:   gen,
		CenterX:      l.CenterX,
		CenterY:      l.CenterY,
		Width:        l.Width,
		CanvasWidth:  w,
		CanvasHeight: h,
	}
}

// SplitTiles splits r into tiles of size tileW × tileH.
// Tiles at the right and bottom edges are smaller if r is not divisible.
func SplitTiles(r image.Rectangle, tileW, tileH int) []image.Rectangle {
	if tileW <= 0 || tileH <= 0 {
		panic("tile dimensions must be positive")
	}

	w := r.Dx()
	h := r.Dy()

	var tiles []image.Rectangle

	for oy := 0; oy < h; oy += tileH {
		th := min(tileH, h-oy)
		for ox := 0; ox < w; ox += tileW {
			tw := min(tileW, w-ox)
			tiles = append(tiles, image.Rect(
				r.Min.X+ox,
				r.Min.Y+oy,
				r.Min.X+ox+tw,
				r.Min.Y+oy+th,
			))
		}
	}

	return tiles
}
