package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	mandel "github.com/marben/perturb_mandel"
)

// EstimateCmd prints what a render would need without rendering it.
type EstimateCmd struct {
	RegionFlags `embed:""`
	EngineFlags `embed:""`

	CanvasWidth  int `default:"1920" help:"Image width in pixels."`
	CanvasHeight int `default:"1080" help:"Image height in pixels."`
}

func (c *EstimateCmd) Run() error {
	req, err := c.request(0, c.CanvasWidth, c.CanvasHeight)
	if err != nil {
		return err
	}
	vp, est, err := req.Estimate(c.config())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "viewport\t%s\n", vp)
	fmt.Fprintf(w, "zoom\t1e%.1f\n", vp.ZoomExponent())
	fmt.Fprintf(w, "iterations\t%d\n", est.MaxIterations)
	fmt.Fprintf(w, "bits\t%d\n", est.Bits)
	fmt.Fprintf(w, "tier\t%s\n", est.Tier)
	return w.Flush()
}

// LandmarksCmd lists the named locations.
type LandmarksCmd struct{}

func (c *LandmarksCmd) Run() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, l := range mandel.Landmarks {
		fmt.Fprintf(w, "%s\twidth %s\t(%.20s, %.20s)\n", l.Name, l.Width, l.CenterX, l.CenterY)
	}
	return w.Flush()
}
