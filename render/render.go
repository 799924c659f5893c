// Package render is the worker side of a render: it renders tiles of a job
// either in process or behind a CBOR stream, as run by "perturbd worker".
package render

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/fxamacker/cbor/v2"

	mandel "github.com/marben/perturb_mandel"
)

var (
	// ErrNoJob is returned for tiles requested before any job arrived.
	ErrNoJob = errors.New("render: no job")
	// ErrGeneration is returned for tiles of a generation other than the
	// current job's.
	ErrGeneration = errors.New("render: tile generation does not match job")
)

type RendererImpl struct {
	// OnTileRender, if set, is called before each tile is rendered.
	OnTileRender func(image.Rectangle)
}

func (imp RendererImpl) PlanJob(req *mandel.PlanRequest) (*mandel.Job, error) {
	mandel.Logger().Debug("planning", "generation", req.Request.Generation)
	plan, err := req.Request.Plan(req.Config)
	if err != nil {
		return nil, err
	}
	return &mandel.Job{Generation: req.Request.Generation, Plan: plan}, nil
}

func (imp RendererImpl) RenderTile(job *mandel.Job, tile image.Rectangle) (*mandel.TileResult, error) {
	if job == nil || job.Plan == nil {
		return nil, ErrNoJob
	}
	mandel.Logger().Debug("rendering tile", "tile", tile, "generation", job.Generation)
	if imp.OnTileRender != nil {
		imp.OnTileRender(tile)
	}
	return &mandel.TileResult{
		Generation: job.Generation,
		Tile:       tile.Intersect(job.Plan.Bounds()),
		Results:    job.Plan.RenderTile(tile),
	}, nil
}

var _ mandel.Renderer = RendererImpl{}

// Serve reads Messages from r and answers every plan and tile request with
// a Reply on w until r is exhausted. The latest job, received or planned,
// is kept and serves all tiles of its generation.
func Serve(r io.Reader, w io.Writer, renderer mandel.Renderer) error {
	dec := cbor.NewDecoder(r)
	enc := cbor.NewEncoder(w)

	var job *mandel.Job
	for {
		var m mandel.Message
		if err := dec.Decode(&m); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode: %w", err)
		}

		switch {
		case m.Job != nil:
			job = m.Job
			mandel.Logger().Info("new job", "generation", job.Generation, "plan", job.Plan)
		case m.Plan != nil:
			var rep mandel.Reply
			if planned, err := renderer.PlanJob(m.Plan); err != nil {
				rep.Err = err.Error()
			} else {
				job, rep.Job = planned, planned
			}
			if err := enc.Encode(rep); err != nil {
				return fmt.Errorf("encode: %w", err)
			}
		case m.Tile != nil:
			if err := enc.Encode(serveTile(renderer, job, m.Tile)); err != nil {
				return fmt.Errorf("encode: %w", err)
			}
		default:
			if err := enc.Encode(mandel.Reply{Err: "empty message"}); err != nil {
				return fmt.Errorf("encode: %w", err)
			}
		}
	}
}

func serveTile(renderer mandel.Renderer, job *mandel.Job, req *mandel.TileRequest) mandel.Reply {
	if job == nil {
		return mandel.Reply{Err: ErrNoJob.Error()}
	}
	if job.Generation != req.Generation {
		return mandel.Reply{Err: fmt.Sprintf("%v: tile %d, job %d", ErrGeneration, req.Generation, job.Generation)}
	}
	res, err := renderer.RenderTile(job, req.Tile)
	if err != nil {
		return mandel.Reply{Err: err.Error()}
	}
	return mandel.Reply{Result: res}
}
