// cliclient is a CLI client for the perturbation Mandelbrot server.
// It connects over websocket, requests one render, and saves it as a PNG file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/coder/websocket"
	"github.com/fxamacker/cbor/v2"

	mandel "github.com/marben/perturb_mandel"
	"github.com/marben/perturb_mandel/colorize"
	"github.com/marben/perturb_mandel/dispatch"
)

// updateReadLimit bounds one server message; a tile of results fits
// comfortably.
const updateReadLimit = 64 << 20

type CLI struct {
	Server   string `short:"s" default:"ws://localhost:8080/ws" env:"PERTURBD_SERVER" help:"Websocket endpoint of perturbd serve."`
	Landmark string `short:"l" help:"Named location, overriding the coordinates."`
	CenterX  string `name:"center-x" short:"x" default:"-0.5" help:"Real part of the center."`
	CenterY  string `name:"center-y" short:"y" default:"0" help:"Imaginary part of the center."`
	Width    string `short:"w" default:"4" help:"Width of the region."`

	CanvasWidth   int           `default:"1920" help:"Image width in pixels."`
	CanvasHeight  int           `default:"1080" help:"Image height in pixels."`
	MaxIterations uint32        `short:"n" help:"Iterations per pixel; 0 lets the server derive them."`
	Tier          dispatch.Tier `default:"auto" help:"Numeric tier: auto, native, extended or arbitrary."`
	Preview       bool          `help:"Render and save an eighth-size pass first, next to the output."`
	MarkGlitches  bool          `help:"Paint glitched pixels magenta."`
	Output        string        `short:"o" default:"mandel.png" type:"path" help:"PNG file to write."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("cliclient"),
		kong.Description("Request a render from perturbd and save it as PNG."),
	)
	if err := run(&cli); err != nil {
		log.Fatalf("run: %+v", err)
	}
}

func (cli *CLI) request(gen mandel.Generation, w, h int) (mandel.RenderRequest, error) {
	req := mandel.RenderRequest{
		Generation:   gen,
		CenterX:      cli.CenterX,
		CenterY:      cli.CenterY,
		Width:        cli.Width,
		CanvasWidth:  w,
		CanvasHeight: h,
	}
	if cli.Landmark != "" {
		l, ok := mandel.LandmarkByName(cli.Landmark)
		if !ok {
			return req, fmt.Errorf("unknown landmark %q", cli.Landmark)
		}
		req = l.Request(gen, w, h)
	}
	req.MaxIterations = cli.MaxIterations
	req.Tier = cli.Tier
	return req, nil
}

func run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Printf("connecting to %s", cli.Server)
	c, _, err := websocket.Dial(ctx, cli.Server, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.CloseNow()
	c.SetReadLimit(updateReadLimit)
	conn := websocket.NetConn(ctx, c, websocket.MessageBinary)
	enc := cbor.NewEncoder(conn)
	dec := cbor.NewDecoder(conn)

	var gen mandel.Generation
	if cli.Preview {
		gen++
		path := previewPath(cli.Output)
		if err := cli.renderTo(enc, dec, gen, max(cli.CanvasWidth/8, 1), max(cli.CanvasHeight/8, 1), path); err != nil {
			return fmt.Errorf("preview: %w", err)
		}
		log.Printf("preview saved to %q", path)
	}
	gen++
	if err := cli.renderTo(enc, dec, gen, cli.CanvasWidth, cli.CanvasHeight, cli.Output); err != nil {
		return err
	}
	log.Printf("fully rendered file saved to %q", cli.Output)

	return c.Close(websocket.StatusNormalClosure, "")
}

// renderTo requests generation gen on a w x h canvas, waits for it and
// saves it to path.
func (cli *CLI) renderTo(enc *cbor.Encoder, dec *cbor.Decoder, gen mandel.Generation, w, h int, path string) error {
	req, err := cli.request(gen, w, h)
	if err != nil {
		return err
	}
	if err := enc.Encode(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	pal := colorize.DefaultPalette
	if cli.MarkGlitches {
		pal.Glitch = colorize.Magenta
	}
	frame := colorize.NewFrame(gen, w, h, pal)
	done, err := receive(dec, frame)
	if err != nil {
		return err
	}
	log.Printf("render %d done: %s tier, %d bits, %d iterations, %d tiles in %v, %d glitched pixels",
		gen, done.Tier, done.Bits, done.MaxIterations, done.Tiles, done.Elapsed, frame.Glitched())
	return colorize.SavePNG(path, frame.Image())
}

// previewPath puts ".preview" before the extension of output.
func previewPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".preview" + ext
}

// receive draws the updates of frame's generation until it is done.
// Updates of other generations are stale and dropped.
func receive(dec *cbor.Decoder, frame *colorize.Frame) (*mandel.RenderDone, error) {
	var stale int
	for {
		var u mandel.Update
		if err := dec.Decode(&u); err != nil {
			return nil, fmt.Errorf("read update: %w", err)
		}
		switch {
		case u.Result != nil:
			drawn, err := frame.Draw(u.Result)
			if err != nil {
				return nil, err
			}
			if !drawn {
				stale++
			}
		case u.Done != nil:
			if u.Done.Generation == frame.Generation() {
				if stale > 0 {
					log.Printf("dropped %d stale tiles", stale)
				}
				return u.Done, nil
			}
		case u.Err != nil:
			if u.Err.Generation == frame.Generation() {
				return nil, u.Err
			}
			log.Printf("earlier render ended: %v", u.Err)
		default:
			return nil, errors.New("empty update")
		}
	}
}
