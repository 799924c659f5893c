package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	mandel "github.com/marben/perturb_mandel"
	"github.com/marben/perturb_mandel/dispatch"
	"github.com/marben/perturb_mandel/workerpool"
)

// session serves the RenderRequests of one client.
type session struct {
	conn net.Conn
	pool *workerpool.Pool
	cfg  dispatch.Config

	renders sync.WaitGroup

	// guards enc
	wm   sync.Mutex
	enc  *cbor.Encoder
	werr error
}

func newSession(conn net.Conn, pool *workerpool.Pool, cfg dispatch.Config) *session {
	return &session{
		conn: conn,
		pool: pool,
		cfg:  cfg,
		enc:  cbor.NewEncoder(conn),
	}
}

// serve reads requests until the client goes away. Each request cancels
// the render in progress and starts its own.
func (s *session) serve(ctx context.Context) error {
	defer func() {
		s.pool.Close()
		s.renders.Wait()
		s.conn.Close()
	}()

	dec := cbor.NewDecoder(s.conn)
	for {
		var req mandel.RenderRequest
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("decode request: %w", err)
		}
		log.Printf("request %d: (%.20s, %.20s) width %s on %dx%d",
			req.Generation, req.CenterX, req.CenterY, req.Width, req.CanvasWidth, req.CanvasHeight)

		s.pool.Cancel()
		s.renders.Add(1)
		go func() {
			defer s.renders.Done()
			s.render(ctx, req)
		}()
	}
}

func (s *session) render(ctx context.Context, req mandel.RenderRequest) {
	start := time.Now()
	if _, _, err := req.Estimate(s.cfg); err != nil {
		s.fail(req.Generation, err)
		return
	}

	job, err := s.pool.Submit(ctx, req, s.cfg, func(res *mandel.TileResult) {
		s.send(mandel.Update{Result: res})
	})
	if err != nil {
		s.fail(req.Generation, err)
		return
	}

	elapsed := time.Since(start)
	log.Printf("generation %d done in %v: %s", job.Generation, elapsed, job.Plan)
	s.send(mandel.Update{Done: &mandel.RenderDone{
		Generation:    job.Generation,
		Tier:          job.Plan.Tier,
		Bits:          job.Plan.Bits,
		MaxIterations: job.Plan.MaxIterations,
		Tiles:         len(req.Tiles(job.Plan.Bounds())),
		Elapsed:       elapsed,
	}})
}

func (s *session) fail(gen mandel.Generation, err error) {
	if errors.Is(err, workerpool.ErrSuperseded) || errors.Is(err, workerpool.ErrStaleGeneration) {
		mandel.Logger().Info("render dropped", "generation", gen, "err", err)
	} else {
		log.Printf("err: generation %d: %v", gen, err)
	}
	s.send(mandel.Update{Err: &mandel.RenderError{Generation: gen, Msg: err.Error()}})
}

// send writes u to the client. After the first failed write nothing more
// is sent.
func (s *session) send(u mandel.Update) {
	s.wm.Lock()
	defer s.wm.Unlock()
	if s.werr != nil {
		return
	}
	if err := s.enc.Encode(u); err != nil {
		s.werr = err
		log.Printf("err: write to %s: %v", s.conn.RemoteAddr(), err)
	}
}
