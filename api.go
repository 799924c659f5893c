package mandel

import (
	"fmt"
	"image"
	"time"

	"github.com/marben/perturb_mandel/dispatch"
	"github.com/marben/perturb_mandel/perturb"
)

// Renderer plans jobs and renders their tiles.
type Renderer interface {
	PlanJob(req *PlanRequest) (*Job, error)
	RenderTile(job *Job, tile image.Rectangle) (*TileResult, error)
}

// Generation identifies one render. A newer render always has a larger
// generation; results carrying an older one are stale and get dropped.
type Generation uint64

// Job is one render as shipped to a worker. A worker receives each job once
// and then any number of tile requests for it.
type Job struct {
	Generation Generation
	Plan       *dispatch.Plan
}

// PlanRequest asks a worker to build the job of a render request. Planning
// computes the reference orbit, so it runs where it can be killed.
type PlanRequest struct {
	Request RenderRequest
	Config  dispatch.Config
}

// TileRequest asks a worker for the results of one tile.
type TileRequest struct {
	Generation Generation
	Tile       image.Rectangle
}

// TileResult holds the per-pixel results of a tile in row-major order.
type TileResult struct {
	Generation Generation
	Tile       image.Rectangle
	Results    []perturb.Result
}

// Message is a frame sent to a worker; exactly one field is set.
type Message struct {
	Job  *Job         `cbor:",omitempty"`
	Plan *PlanRequest `cbor:",omitempty"`
	Tile *TileRequest `cbor:",omitempty"`
}

// Reply is a worker's answer to a PlanRequest or a TileRequest. A planning
// worker keeps the job it replies with.
type Reply struct {
	Job    *Job        `cbor:",omitempty"`
	Result *TileResult `cbor:",omitempty"`
	Err    string      `cbor:",omitempty"`
}

// RenderRequest is sent by clients. Coordinates are decimal strings so they
// can carry any precision; Precision is the number of bits they are parsed
// at, zero meaning enough for the digits given.
type RenderRequest struct {
	Generation    Generation
	CenterX       string
	CenterY       string
	Width         string
	Height        string `cbor:",omitempty"`
	Precision     uint   `cbor:",omitempty"`
	CanvasWidth   int
	CanvasHeight  int
	TileSize      int           `cbor:",omitempty"`
	MaxIterations uint32        `cbor:",omitempty"`
	Tier          dispatch.Tier `cbor:",omitempty"`
}

// RenderDone closes a render: every tile of Generation has been sent.
type RenderDone struct {
	Generation    Generation
	Tier          dispatch.Tier
	Bits          uint
	MaxIterations uint32
	Tiles         int
	Elapsed       time.Duration
}

// Update is a frame sent to clients; exactly one field is set.
type Update struct {
	Result *TileResult  `cbor:",omitempty"`
	Done   *RenderDone  `cbor:",omitempty"`
	Err    *RenderError `cbor:",omitempty"`
}

// RenderError reports a render that failed or was superseded.
type RenderError struct {
	Generation Generation
	Msg        string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %d: %s", e.Generation, e.Msg)
}
