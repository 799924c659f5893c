// Command perturbd renders deep zooms of the Mandelbrot set, either for
// websocket clients or straight to PNG files.
package main

import (
	"log"
	"log/slog"

	"github.com/alecthomas/kong"

	mandel "github.com/marben/perturb_mandel"
)

type Globals struct {
	Verbose bool `short:"v" help:"Log engine diagnostics to stderr."`
}

type CLI struct {
	Globals

	Serve     ServeCmd     `cmd:"" help:"Serve renders to websocket clients."`
	Render    RenderCmd    `cmd:"" help:"Render a region to a PNG file."`
	Estimate  EstimateCmd  `cmd:"" help:"Print the precision, tier and iterations a render needs."`
	Landmarks LandmarksCmd `cmd:"" help:"List the named locations."`
	Worker    WorkerCmd    `cmd:"" hidden:"" help:"Render tiles requested on stdin."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("perturbd"),
		kong.Description("Deep-zoom perturbation Mandelbrot renderer."),
		kong.UsageOnError(),
	)
	if cli.Verbose {
		mandel.SetLogger(slog.Default())
	}
	if err := ctx.Run(&cli.Globals); err != nil {
		log.Fatalf("run: %+v", err)
	}
}
