package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	mandel "github.com/marben/perturb_mandel"
	"github.com/marben/perturb_mandel/colorize"
)

// RenderCmd renders one frame locally through the pool.
type RenderCmd struct {
	RegionFlags `embed:""`
	EngineFlags `embed:""`
	PoolFlags   `embed:""`

	CanvasWidth  int    `default:"1920" help:"Image width in pixels."`
	CanvasHeight int    `default:"1080" help:"Image height in pixels."`
	Supersample  int    `default:"1" help:"Render N times larger and downsample."`
	TileSize     int    `default:"64" help:"Tile edge in pixels."`
	MarkGlitches bool   `help:"Paint glitched pixels magenta."`
	Output       string `short:"o" default:"mandel.png" type:"path" help:"PNG file to write."`
}

func (c *RenderCmd) Run(g *Globals) error {
	ss := max(c.Supersample, 1)
	req, err := c.request(1, c.CanvasWidth*ss, c.CanvasHeight*ss)
	if err != nil {
		return err
	}
	req.TileSize = c.TileSize

	cfg := c.config()
	_, est, err := req.Estimate(cfg)
	if err != nil {
		return err
	}
	log.Printf("%d bits on the %s tier, %d iterations", est.Bits, est.Tier, est.MaxIterations)

	pool, err := c.pool(g)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pal := colorize.DefaultPalette
	if c.MarkGlitches {
		pal.Glitch = colorize.Magenta
	}
	frame := colorize.NewFrame(req.Generation, req.CanvasWidth, req.CanvasHeight, pal)
	start := time.Now()
	_, err = pool.Submit(ctx, req, cfg, func(res *mandel.TileResult) {
		if _, err := frame.Draw(res); err != nil {
			log.Printf("draw tile %v: %v", res.Tile, err)
		}
	})
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	log.Printf("rendered %d tiles in %v, %d glitched pixels", frame.Tiles(), time.Since(start), frame.Glitched())

	if err := colorize.SavePNG(c.Output, colorize.Downsample(frame.Image(), ss)); err != nil {
		return err
	}
	log.Printf("saved to %q", c.Output)
	return nil
}
