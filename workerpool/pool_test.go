package workerpool

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"

	mandel "github.com/marben/perturb_mandel"
	"github.com/marben/perturb_mandel/dispatch"
)

// fakeRenderer plans 40x40 jobs and returns empty tiles. Tiles of blockGen
// and plans of blockPlan wait for release.
type fakeRenderer struct {
	blockGen  mandel.Generation
	blockPlan mandel.Generation
	started   chan image.Rectangle
	planning  chan mandel.Generation
	release   chan struct{}
	plans     atomic.Int32
	// fail makes that many calls return an error
	fail     atomic.Int32
	wrongGen bool
}

func newFakeRenderer(t *testing.T, blockGen mandel.Generation) *fakeRenderer {
	r := &fakeRenderer{
		blockGen: blockGen,
		started:  make(chan image.Rectangle, 64),
		planning: make(chan mandel.Generation, 8),
		release:  make(chan struct{}),
	}
	t.Cleanup(func() { close(r.release) })
	return r
}

func (r *fakeRenderer) PlanJob(req *mandel.PlanRequest) (*mandel.Job, error) {
	r.plans.Add(1)
	gen := req.Request.Generation
	if gen == r.blockPlan {
		r.planning <- gen
		<-r.release
	}
	return &mandel.Job{Generation: gen, Plan: &dispatch.Plan{Width: 40, Height: 40}}, nil
}

func (r *fakeRenderer) RenderTile(job *mandel.Job, tile image.Rectangle) (*mandel.TileResult, error) {
	if r.fail.Add(-1) >= 0 {
		return nil, errors.New("tile failed")
	}
	if job.Generation == r.blockGen {
		r.started <- tile
		<-r.release
	}
	gen := job.Generation
	if r.wrongGen {
		gen++
	}
	return &mandel.TileResult{Generation: gen, Tile: tile}, nil
}

type countingUnit struct {
	Unit
	kills *atomic.Int32
}

func (u countingUnit) Kill() error {
	u.kills.Add(1)
	return u.Unit.Kill()
}

func countingFactory(f Factory, kills *atomic.Int32) Factory {
	return func() (Unit, error) {
		u, err := f()
		if err != nil {
			return nil, err
		}
		return countingUnit{u, kills}, nil
	}
}

// collector records emitted results.
type collector struct {
	m   sync.Mutex
	got map[image.Rectangle]int
	gen map[mandel.Generation]int
}

func newCollector() *collector {
	return &collector{got: make(map[image.Rectangle]int), gen: make(map[mandel.Generation]int)}
}

func (c *collector) emit(res *mandel.TileResult) {
	c.m.Lock()
	defer c.m.Unlock()
	c.got[res.Tile]++
	c.gen[res.Generation]++
}

func testTiles() []image.Rectangle {
	return mandel.SplitTiles(image.Rect(0, 0, 40, 40), 10, 10)
}

func newTestPool(t *testing.T, size int, f Factory) *Pool {
	p := New(size, f)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPoolRender(t *testing.T) {
	r := newFakeRenderer(t, 0)
	p := newTestPool(t, 4, LocalFactory(r))
	c := newCollector()
	tiles := testTiles()

	if err := p.Render(t.Context(), &mandel.Job{Generation: 1}, tiles, c.emit); err != nil {
		t.Fatalf("Render() = %v", err)
	}
	if len(c.got) != len(tiles) {
		t.Errorf("emitted %d tiles, want %d", len(c.got), len(tiles))
	}
	for tile, n := range c.got {
		if n != 1 {
			t.Errorf("tile %v emitted %d times, want 1", tile, n)
		}
	}
}

func TestPoolStaleGeneration(t *testing.T) {
	p := newTestPool(t, 2, LocalFactory(newFakeRenderer(t, 0)))
	tiles := testTiles()
	noop := func(*mandel.TileResult) {}

	if err := p.Render(t.Context(), &mandel.Job{Generation: 5}, tiles, noop); err != nil {
		t.Fatalf("Render(5) = %v", err)
	}
	for _, gen := range []mandel.Generation{5, 3} {
		if err := p.Render(t.Context(), &mandel.Job{Generation: gen}, tiles, noop); !errors.Is(err, ErrStaleGeneration) {
			t.Errorf("Render(%d) = %v, want ErrStaleGeneration", gen, err)
		}
	}
	if err := p.Render(t.Context(), &mandel.Job{Generation: 6}, tiles, noop); err != nil {
		t.Errorf("Render(6) = %v", err)
	}
}

func TestPoolSupersede(t *testing.T) {
	r := newFakeRenderer(t, 1)
	var kills atomic.Int32
	p := newTestPool(t, 2, countingFactory(LocalFactory(r), &kills))
	tiles := testTiles()

	old := newCollector()
	errc := make(chan error, 1)
	go func() {
		errc <- p.Render(t.Context(), &mandel.Job{Generation: 1}, tiles, old.emit)
	}()
	// both units are now stuck in a tile of generation 1
	<-r.started
	<-r.started

	c := newCollector()
	if err := p.Render(t.Context(), &mandel.Job{Generation: 2}, tiles, c.emit); err != nil {
		t.Fatalf("Render(2) = %v", err)
	}
	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Render(1) = %v, want ErrSuperseded", err)
	}

	if len(old.got) != 0 {
		t.Errorf("superseded render emitted %d tiles", len(old.got))
	}
	if c.gen[2] != len(tiles) || len(c.gen) != 1 {
		t.Errorf("emitted generations = %v, want %d of generation 2", c.gen, len(tiles))
	}
	if k := kills.Load(); k < 2 {
		t.Errorf("killed %d units, want at least 2", k)
	}
}

func TestPoolCancel(t *testing.T) {
	r := newFakeRenderer(t, 1)
	p := newTestPool(t, 2, LocalFactory(r))
	ctx, cancel := context.WithCancel(t.Context())

	errc := make(chan error, 1)
	go func() {
		errc <- p.Render(ctx, &mandel.Job{Generation: 1}, testTiles(), func(*mandel.TileResult) {})
	}()
	<-r.started
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Render() = %v, want context.Canceled", err)
	}
}

func TestPoolUnitFailure(t *testing.T) {
	r := newFakeRenderer(t, 0)
	r.fail.Store(1)
	var kills atomic.Int32
	p := newTestPool(t, 2, countingFactory(LocalFactory(r), &kills))
	c := newCollector()
	tiles := testTiles()

	if err := p.Render(t.Context(), &mandel.Job{Generation: 1}, tiles, c.emit); err != nil {
		t.Fatalf("Render() = %v", err)
	}
	if len(c.got) != len(tiles) {
		t.Errorf("emitted %d tiles, want %d", len(c.got), len(tiles))
	}
	if k := kills.Load(); k != 1 {
		t.Errorf("killed %d units, want 1", k)
	}
}

func TestPoolAllUnitsFail(t *testing.T) {
	r := newFakeRenderer(t, 0)
	r.fail.Store(1000)
	p := newTestPool(t, 3, LocalFactory(r))
	c := newCollector()

	err := p.Render(t.Context(), &mandel.Job{Generation: 1}, testTiles(), c.emit)
	if err == nil || errors.Is(err, ErrSuperseded) {
		t.Errorf("Render() = %v, want a failure", err)
	}
	if len(c.got) != 0 {
		t.Errorf("emitted %d tiles, want 0", len(c.got))
	}
}

func TestPoolDropsForeignGeneration(t *testing.T) {
	r := newFakeRenderer(t, 0)
	r.wrongGen = true
	p := newTestPool(t, 2, LocalFactory(r))
	c := newCollector()

	if err := p.Render(t.Context(), &mandel.Job{Generation: 1}, testTiles(), c.emit); err == nil {
		t.Error("Render() = nil, want a failure")
	}
	if len(c.got) != 0 {
		t.Errorf("emitted %d tiles of another generation", len(c.got))
	}
}

func TestPoolFactoryError(t *testing.T) {
	p := newTestPool(t, 2, func() (Unit, error) { return nil, errors.New("no units today") })
	err := p.Render(t.Context(), &mandel.Job{Generation: 1}, testTiles(), func(*mandel.TileResult) {})
	if err == nil {
		t.Error("Render() = nil, want the factory error")
	}
}

func TestPoolClosed(t *testing.T) {
	p := New(2, LocalFactory(newFakeRenderer(t, 0)))
	if err := p.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := p.Render(t.Context(), &mandel.Job{Generation: 1}, testTiles(), func(*mandel.TileResult) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Render() after Close = %v, want ErrClosed", err)
	}
}

func TestLocalUnitKill(t *testing.T) {
	r := newFakeRenderer(t, 1)
	u := NewLocalUnit(r)
	errc := make(chan error, 1)
	go func() {
		_, err := u.Render(t.Context(), &mandel.Job{Generation: 1}, image.Rect(0, 0, 1, 1))
		errc <- err
	}()
	<-r.started
	u.Kill()
	if err := <-errc; !errors.Is(err, ErrKilled) {
		t.Errorf("Render() = %v, want ErrKilled", err)
	}
	if _, err := u.Render(t.Context(), &mandel.Job{Generation: 2}, image.Rect(0, 0, 1, 1)); !errors.Is(err, ErrKilled) {
		t.Errorf("Render() on killed unit = %v, want ErrKilled", err)
	}
}

func submitRequest(gen mandel.Generation) mandel.RenderRequest {
	return mandel.RenderRequest{Generation: gen, TileSize: 10}
}

func TestPoolSubmit(t *testing.T) {
	r := newFakeRenderer(t, 0)
	p := newTestPool(t, 3, LocalFactory(r))
	c := newCollector()

	job, err := p.Submit(t.Context(), submitRequest(1), dispatch.DefaultConfig(), c.emit)
	if err != nil {
		t.Fatalf("Submit() = %v", err)
	}
	if job.Generation != 1 || job.Plan.Bounds() != image.Rect(0, 0, 40, 40) {
		t.Errorf("Submit() job = %+v", job)
	}
	if len(c.got) != 16 || c.gen[1] != 16 {
		t.Errorf("emitted %d tiles (%v), want 16 of generation 1", len(c.got), c.gen)
	}
	if n := r.plans.Load(); n != 1 {
		t.Errorf("planned %d times, want 1", n)
	}
}

func TestPoolSubmitSupersedesPlanning(t *testing.T) {
	r := newFakeRenderer(t, 0)
	r.blockPlan = 1
	var kills atomic.Int32
	p := newTestPool(t, 2, countingFactory(LocalFactory(r), &kills))

	old := newCollector()
	errc := make(chan error, 1)
	go func() {
		_, err := p.Submit(t.Context(), submitRequest(1), dispatch.DefaultConfig(), old.emit)
		errc <- err
	}()
	<-r.planning

	c := newCollector()
	if _, err := p.Submit(t.Context(), submitRequest(2), dispatch.DefaultConfig(), c.emit); err != nil {
		t.Fatalf("Submit(2) = %v", err)
	}
	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Submit(1) = %v, want ErrSuperseded", err)
	}
	if len(old.got) != 0 || c.gen[2] != 16 {
		t.Errorf("emitted %d tiles of generation 1 and %d of generation 2, want 0 and 16", len(old.got), c.gen[2])
	}
	if k := kills.Load(); k < 1 {
		t.Error("the planning unit was not killed")
	}
}

func TestPoolSubmitCancelPlanning(t *testing.T) {
	r := newFakeRenderer(t, 0)
	r.blockPlan = 1
	p := newTestPool(t, 2, LocalFactory(r))
	ctx, cancel := context.WithCancel(t.Context())

	errc := make(chan error, 1)
	go func() {
		_, err := p.Submit(ctx, submitRequest(1), dispatch.DefaultConfig(), func(*mandel.TileResult) {})
		errc <- err
	}()
	<-r.planning
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Submit() = %v, want context.Canceled", err)
	}
}

func TestPoolSubmitStale(t *testing.T) {
	r := newFakeRenderer(t, 0)
	p := newTestPool(t, 2, LocalFactory(r))
	noop := func(*mandel.TileResult) {}

	if _, err := p.Submit(t.Context(), submitRequest(5), dispatch.DefaultConfig(), noop); err != nil {
		t.Fatalf("Submit(5) = %v", err)
	}
	if _, err := p.Submit(t.Context(), submitRequest(3), dispatch.DefaultConfig(), noop); !errors.Is(err, ErrStaleGeneration) {
		t.Errorf("Submit(3) = %v, want ErrStaleGeneration", err)
	}
	if n := r.plans.Load(); n != 1 {
		t.Errorf("planned %d times, want only generation 5 planned", n)
	}
}
