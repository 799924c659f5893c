// Package workerpool distributes the tiles of a render over a fixed number
// of execution units and cancels superseded renders by killing the units
// still busy with them.
//
// Pixel loops never poll for cancellation, so a tile that is computing can
// only be stopped by destroying the unit computing it. The pool then creates
// a fresh unit the next time that slot is needed.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	mandel "github.com/marben/perturb_mandel"
	"github.com/marben/perturb_mandel/dispatch"
)

var (
	// ErrSuperseded is returned by Render when a newer render replaced it.
	ErrSuperseded = errors.New("workerpool: render superseded")
	// ErrStaleGeneration is returned by Render for a generation not newer
	// than the latest one seen.
	ErrStaleGeneration = errors.New("workerpool: stale generation")
	// ErrClosed is returned by Render after Close.
	ErrClosed = errors.New("workerpool: closed")
)

// Pool runs renders on up to Size units. One render is active at a time;
// starting a newer one supersedes it.
type Pool struct {
	newUnit Factory
	size    int

	m       sync.Mutex
	units   []Unit
	gen     mandel.Generation
	started bool
	cur     *run
	closed  bool
	workers int
}

// New returns a pool of size units created by newUnit on demand.
func New(size int, newUnit Factory) *Pool {
	size = max(size, 1)
	return &Pool{
		newUnit: newUnit,
		size:    size,
		units:   make([]Unit, size),
	}
}

// run is the state of one render.
type run struct {
	gen        mandel.Generation
	superseded atomic.Bool
	done       chan struct{}

	m    sync.Mutex
	busy map[int]Unit
}

func (r *run) setBusy(slot int, u Unit) bool {
	r.m.Lock()
	defer r.m.Unlock()
	if r.superseded.Load() {
		return false
	}
	r.busy[slot] = u
	return true
}

func (r *run) clearBusy(slot int) {
	r.m.Lock()
	delete(r.busy, slot)
	r.m.Unlock()
}

// killBusy kills every unit currently rendering a tile of r.
func (r *run) killBusy() {
	r.m.Lock()
	defer r.m.Unlock()
	for slot, u := range r.busy {
		mandel.Logger().Debug("killing busy unit", "slot", slot, "generation", r.gen)
		u.Kill()
	}
}

func (r *run) supersede() {
	r.m.Lock()
	r.superseded.Store(true)
	r.m.Unlock()
	r.killBusy()
}

// Render renders tiles of job, calling emit once per finished tile. emit is
// never called concurrently and never with a result of another generation.
//
// Render returns ErrSuperseded if a newer generation starts before it
// finishes and ErrStaleGeneration if job is not newer than the last render.
func (p *Pool) Render(ctx context.Context, job *mandel.Job, tiles []image.Rectangle, emit func(*mandel.TileResult)) error {
	r, err := p.begin(job.Generation)
	if err != nil {
		return err
	}
	defer close(r.done)
	return p.execute(ctx, r, job, tiles, emit)
}

// Submit plans req on cfg and renders it like Render, returning the job.
// Planning computes the reference orbit on a unit of the pool, so a newer
// render, Cancel or the end of ctx kills it like a busy tile. The
// generation is claimed before planning starts.
func (p *Pool) Submit(ctx context.Context, req mandel.RenderRequest, cfg dispatch.Config, emit func(*mandel.TileResult)) (*mandel.Job, error) {
	r, err := p.begin(req.Generation)
	if err != nil {
		return nil, err
	}
	defer close(r.done)

	job, err := p.plan(ctx, r, &mandel.PlanRequest{Request: req, Config: cfg})
	if err != nil {
		return nil, err
	}
	return job, p.execute(ctx, r, job, req.Tiles(job.Plan.Bounds()), emit)
}

// begin makes gen the active render, superseding the previous one and
// waiting for it to wind down. The caller closes r.done when it is finished.
func (p *Pool) begin(gen mandel.Generation) (*run, error) {
	r := &run{gen: gen, done: make(chan struct{}), busy: make(map[int]Unit)}

	p.m.Lock()
	if p.closed {
		p.m.Unlock()
		return nil, ErrClosed
	}
	if p.started && gen <= p.gen {
		last := p.gen
		p.m.Unlock()
		return nil, fmt.Errorf("%w: %d after %d", ErrStaleGeneration, gen, last)
	}
	p.gen, p.started = gen, true
	prev := p.cur
	p.cur = r
	p.m.Unlock()

	if prev != nil {
		prev.supersede()
		<-prev.done
	}
	return r, nil
}

// plan builds the job of req on the unit in slot 0.
func (p *Pool) plan(ctx context.Context, r *run, req *mandel.PlanRequest) (*mandel.Job, error) {
	const slot = 0
	if r.superseded.Load() {
		return nil, ErrSuperseded
	}
	u, err := p.unit(slot)
	if err != nil {
		return nil, fmt.Errorf("create unit: %w", err)
	}
	if !r.setBusy(slot, u) {
		return nil, ErrSuperseded
	}
	stop := context.AfterFunc(ctx, r.killBusy)
	start := time.Now()
	job, err := u.Plan(ctx, req)
	stop()
	r.clearBusy(slot)

	switch {
	case r.superseded.Load():
		p.discard(slot, u)
		return nil, ErrSuperseded
	case ctx.Err() != nil:
		p.discard(slot, u)
		return nil, context.Cause(ctx)
	case err != nil:
		return nil, fmt.Errorf("plan: %w", err)
	case job.Generation != r.gen:
		p.discard(slot, u)
		return nil, fmt.Errorf("plan: unit answered generation %d, want %d", job.Generation, r.gen)
	}
	mandel.Logger().Info("plan ready", "generation", job.Generation, "plan", job.Plan, "elapsed", time.Since(start))
	return job, nil
}

// execute renders tiles of job as the run r.
func (p *Pool) execute(ctx context.Context, r *run, job *mandel.Job, tiles []image.Rectangle, emit func(*mandel.TileResult)) error {
	if r.superseded.Load() {
		return ErrSuperseded
	}

	q := newTileQueue(tiles)
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, r.killBusy)
	defer stop()

	var emitMu sync.Mutex
	for slot := range p.size {
		g.Go(func() error {
			return p.work(gctx, slot, r, job, q, func(res *mandel.TileResult) {
				emitMu.Lock()
				defer emitMu.Unlock()
				emit(res)
			})
		})
	}
	err := g.Wait()

	switch {
	case r.superseded.Load():
		return ErrSuperseded
	case err != nil:
		return err
	case ctx.Err() != nil:
		return context.Cause(ctx)
	case !q.done():
		return errors.New("workerpool: every unit failed before the render finished")
	}
	mandel.Logger().Info("render finished", "generation", job.Generation, "tiles", len(tiles))
	return nil
}

// work renders tiles from q on the unit in slot until q runs dry. A unit
// that fails is discarded and the worker stops; its tile stays in process
// and is served again to the remaining workers.
func (p *Pool) work(ctx context.Context, slot int, r *run, job *mandel.Job, q *tileQueue, emit func(*mandel.TileResult)) error {
	p.incActiveWorkers()
	defer p.decActiveWorkers()

	for {
		if r.superseded.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		tile, found := q.popTile()
		if !found {
			return nil
		}

		u, err := p.unit(slot)
		if err != nil {
			return fmt.Errorf("create unit: %w", err)
		}
		if !r.setBusy(slot, u) {
			return nil
		}
		res, err := u.Render(ctx, job, tile)
		r.clearBusy(slot)

		if err != nil {
			p.discard(slot, u)
			if r.superseded.Load() || ctx.Err() != nil {
				return nil
			}
			mandel.Logger().Warn("render of tile failed", "tile", tile, "slot", slot, "err", err)
			return nil
		}

		// A unit answering for another job is out of step with the pool.
		if res.Generation != r.gen {
			p.discard(slot, u)
			mandel.Logger().Warn("dropping stale tile", "tile", tile, "generation", res.Generation, "want", r.gen)
			return nil
		}
		if q.tileFinished(tile) && !r.superseded.Load() {
			emit(res)
			mandel.Logger().Debug("tile finished", "tile", tile, "finished", q.finished())
		}
	}
}

// unit returns the unit in slot, creating it if needed.
func (p *Pool) unit(slot int) (Unit, error) {
	p.m.Lock()
	defer p.m.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if u := p.units[slot]; u != nil {
		return u, nil
	}
	u, err := p.newUnit()
	if err != nil {
		return nil, err
	}
	p.units[slot] = u
	return u, nil
}

// discard kills u and frees its slot.
func (p *Pool) discard(slot int, u Unit) {
	u.Kill()
	p.m.Lock()
	if p.units[slot] == u {
		p.units[slot] = nil
	}
	p.m.Unlock()
}

func (p *Pool) incActiveWorkers() {
	p.m.Lock()
	p.workers++
	w := p.workers
	p.m.Unlock()

	mandel.Logger().Debug("active workers", "workers", w)
}

func (p *Pool) decActiveWorkers() {
	p.m.Lock()
	p.workers--
	w := p.workers
	p.m.Unlock()

	mandel.Logger().Debug("active workers", "workers", w)
}

// Cancel supersedes the active render, if any, without starting a new one.
func (p *Pool) Cancel() {
	p.m.Lock()
	cur := p.cur
	p.m.Unlock()
	if cur != nil {
		cur.supersede()
	}
}

// Close supersedes the active render and kills every unit.
func (p *Pool) Close() error {
	p.m.Lock()
	p.closed = true
	cur := p.cur
	units := p.units
	p.units = make([]Unit, p.size)
	p.m.Unlock()

	if cur != nil {
		cur.supersede()
	}
	var errs []error
	for _, u := range units {
		if u != nil {
			errs = append(errs, u.Kill())
		}
	}
	return errors.Join(errs...)
}
