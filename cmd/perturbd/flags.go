package main

import (
	"fmt"
	"os"
	"runtime"

	mandel "github.com/marben/perturb_mandel"
	"github.com/marben/perturb_mandel/dispatch"
	"github.com/marben/perturb_mandel/render"
	"github.com/marben/perturb_mandel/workerpool"
)

// EngineFlags are the engine tunables of every command that renders.
type EngineFlags struct {
	Crossover     uint          `default:"1024" help:"Highest precision in bits served by the extended tier."`
	SafetyMargin  uint          `default:"32" help:"Bits added to every precision estimate."`
	TauSq         float64       `name:"tau-sq" default:"1e-6" help:"Squared glitch tolerance."`
	Tier          dispatch.Tier `default:"auto" help:"Numeric tier: auto, native, extended or arbitrary."`
	MaxIterations uint32        `short:"n" help:"Iterations per pixel; 0 derives them from the zoom depth."`
	MaxPrecision  uint          `default:"32768" help:"Refuse regions needing more bits; 0 lifts the limit."`
}

func (f EngineFlags) config() dispatch.Config {
	cfg := dispatch.DefaultConfig()
	cfg.Crossover = f.Crossover
	cfg.SafetyMargin = f.SafetyMargin
	cfg.TauSq = f.TauSq
	cfg.ForceTier = f.Tier
	cfg.MaxIterations = f.MaxIterations
	cfg.MaxPrecision = f.MaxPrecision
	return cfg
}

// RegionFlags pick the region to render.
type RegionFlags struct {
	Landmark  string `short:"l" help:"Named location, overriding the coordinates (see landmarks)."`
	CenterX   string `name:"center-x" short:"x" default:"-0.5" help:"Real part of the center."`
	CenterY   string `name:"center-y" short:"y" default:"0" help:"Imaginary part of the center."`
	Width     string `short:"w" default:"4" help:"Width of the region."`
	Height    string `help:"Height of the region; defaults to the canvas aspect ratio."`
	Precision uint   `help:"Bits to parse the coordinates at; 0 fits the digits given."`
}

func (f RegionFlags) request(gen mandel.Generation, w, h int) (mandel.RenderRequest, error) {
	if f.Landmark != "" {
		l, ok := mandel.LandmarkByName(f.Landmark)
		if !ok {
			return mandel.RenderRequest{}, fmt.Errorf("unknown landmark %q", f.Landmark)
		}
		return l.Request(gen, w, h), nil
	}
	return mandel.RenderRequest{
		Generation:   gen,
		CenterX:      f.CenterX,
		CenterY:      f.CenterY,
		Width:        f.Width,
		Height:       f.Height,
		Precision:    f.Precision,
		CanvasWidth:  w,
		CanvasHeight: h,
	}, nil
}

// PoolFlags configure the execution units.
type PoolFlags struct {
	Workers   int  `short:"j" help:"Execution units; 0 uses one per CPU."`
	InProcess bool `help:"Render in goroutines instead of worker processes. Superseded tiles then finish in the background."`
}

func (f PoolFlags) pool(g *Globals) (*workerpool.Pool, error) {
	n := f.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if f.InProcess {
		return workerpool.New(n, workerpool.LocalFactory(render.RendererImpl{})), nil
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	args := []string{"worker"}
	if g.Verbose {
		args = append(args, "--verbose")
	}
	return workerpool.New(n, workerpool.ProcessFactory(exe, args...)), nil
}
