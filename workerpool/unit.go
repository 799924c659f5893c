package workerpool

import (
	"context"
	"errors"
	"image"
	"sync"

	mandel "github.com/marben/perturb_mandel"
)

// ErrKilled is returned by Plan and Render on a unit that has been killed.
var ErrKilled = errors.New("workerpool: unit killed")

// Unit is one execution unit. Plan and Render block until the job or tile
// is done; Kill may be called concurrently and makes a pending call return
// promptly. A killed unit is never used again.
type Unit interface {
	Plan(ctx context.Context, req *mandel.PlanRequest) (*mandel.Job, error)
	Render(ctx context.Context, job *mandel.Job, tile image.Rectangle) (*mandel.TileResult, error)
	Kill() error
}

// Factory creates a fresh unit.
type Factory func() (Unit, error)

// LocalUnit renders in a goroutine of the current process. Killing it
// abandons the goroutine: the tile keeps computing but its result is
// discarded.
type LocalUnit struct {
	r      mandel.Renderer
	killed chan struct{}
	once   sync.Once
}

// NewLocalUnit returns a unit rendering with r.
func NewLocalUnit(r mandel.Renderer) *LocalUnit {
	return &LocalUnit{r: r, killed: make(chan struct{})}
}

// LocalFactory returns a Factory of LocalUnits sharing r.
func LocalFactory(r mandel.Renderer) Factory {
	return func() (Unit, error) { return NewLocalUnit(r), nil }
}

type outcome[T any] struct {
	v   T
	err error
}

// call runs f in its own goroutine and waits for it, for u to be killed or
// for ctx to end, whichever comes first.
func call[T any](ctx context.Context, u *LocalUnit, f func() (T, error)) (T, error) {
	var zero T
	select {
	case <-u.killed:
		return zero, ErrKilled
	default:
	}

	ch := make(chan outcome[T], 1)
	go func() {
		v, err := f()
		ch <- outcome[T]{v, err}
	}()

	select {
	case o := <-ch:
		return o.v, o.err
	case <-u.killed:
		return zero, ErrKilled
	case <-ctx.Done():
		return zero, context.Cause(ctx)
	}
}

func (u *LocalUnit) Plan(ctx context.Context, req *mandel.PlanRequest) (*mandel.Job, error) {
	return call(ctx, u, func() (*mandel.Job, error) { return u.r.PlanJob(req) })
}

func (u *LocalUnit) Render(ctx context.Context, job *mandel.Job, tile image.Rectangle) (*mandel.TileResult, error) {
	return call(ctx, u, func() (*mandel.TileResult, error) { return u.r.RenderTile(job, tile) })
}

func (u *LocalUnit) Kill() error {
	u.once.Do(func() { close(u.killed) })
	return nil
}
