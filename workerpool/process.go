package workerpool

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/fxamacker/cbor/v2"

	mandel "github.com/marben/perturb_mandel"
)

// ProcessUnit renders in a worker subprocess speaking CBOR Messages on its
// stdin and Replies on its stdout. Killing it kills the process, which is
// the only way to stop a tile that is already computing.
type ProcessUnit struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *cbor.Encoder
	dec   *cbor.Decoder

	// generation of the job the process holds
	sent    mandel.Generation
	hasJob  bool
	killed  chan struct{}
	once    sync.Once
	waitErr error
}

// StartProcess starts name with args as a worker process. Its stderr is
// passed through.
func StartProcess(name string, args ...string) (*ProcessUnit, error) {
	cmd := exec.Command(name, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	mandel.Logger().Debug("worker process started", "pid", cmd.Process.Pid)

	return &ProcessUnit{
		cmd:    cmd,
		stdin:  stdin,
		enc:    cbor.NewEncoder(stdin),
		dec:    cbor.NewDecoder(stdout),
		killed: make(chan struct{}),
	}, nil
}

// ProcessFactory returns a Factory starting name with args for every unit.
func ProcessFactory(name string, args ...string) Factory {
	return func() (Unit, error) { return StartProcess(name, args...) }
}

// Plan has the process build the job of req and waits for it. The process
// keeps the job, so tiles of it are requested without sending it again.
func (u *ProcessUnit) Plan(ctx context.Context, req *mandel.PlanRequest) (*mandel.Job, error) {
	stop := context.AfterFunc(ctx, func() { u.Kill() })
	defer stop()

	job, err := u.planTrip(req)
	if err != nil {
		return nil, u.killedErr(ctx, err)
	}
	return job, nil
}

func (u *ProcessUnit) planTrip(req *mandel.PlanRequest) (*mandel.Job, error) {
	if err := u.enc.Encode(mandel.Message{Plan: req}); err != nil {
		return nil, fmt.Errorf("send plan: %w", err)
	}
	u.hasJob = false

	var rep mandel.Reply
	if err := u.dec.Decode(&rep); err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if rep.Err != "" {
		return nil, errors.New(rep.Err)
	}
	if rep.Job == nil || rep.Job.Plan == nil {
		return nil, errors.New("empty reply")
	}
	u.sent, u.hasJob = rep.Job.Generation, true
	return rep.Job, nil
}

// Render sends the job if the process does not hold it yet, then the tile
// request, and waits for the reply. Render must not be called concurrently.
func (u *ProcessUnit) Render(ctx context.Context, job *mandel.Job, tile image.Rectangle) (*mandel.TileResult, error) {
	stop := context.AfterFunc(ctx, func() { u.Kill() })
	defer stop()

	res, err := u.roundTrip(job, tile)
	if err != nil {
		return nil, u.killedErr(ctx, err)
	}
	return res, nil
}

// killedErr reports err as a kill or as the end of ctx when the failure
// came from killing the process.
func (u *ProcessUnit) killedErr(ctx context.Context, err error) error {
	select {
	case <-u.killed:
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return ErrKilled
	default:
	}
	return err
}

func (u *ProcessUnit) roundTrip(job *mandel.Job, tile image.Rectangle) (*mandel.TileResult, error) {
	if !u.hasJob || u.sent != job.Generation {
		if err := u.enc.Encode(mandel.Message{Job: job}); err != nil {
			return nil, fmt.Errorf("send job: %w", err)
		}
		u.sent, u.hasJob = job.Generation, true
	}
	req := &mandel.TileRequest{Generation: job.Generation, Tile: tile}
	if err := u.enc.Encode(mandel.Message{Tile: req}); err != nil {
		return nil, fmt.Errorf("send tile: %w", err)
	}

	var rep mandel.Reply
	if err := u.dec.Decode(&rep); err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if rep.Err != "" {
		return nil, errors.New(rep.Err)
	}
	if rep.Result == nil {
		return nil, errors.New("empty reply")
	}
	return rep.Result, nil
}

// Kill terminates the process and reaps it.
func (u *ProcessUnit) Kill() error {
	u.once.Do(func() {
		close(u.killed)
		u.stdin.Close()
		if err := u.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			u.waitErr = err
		}
		u.cmd.Wait()
		mandel.Logger().Debug("worker process killed", "pid", u.cmd.Process.Pid)
	})
	return u.waitErr
}
