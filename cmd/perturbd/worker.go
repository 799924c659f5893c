package main

import (
	"os"

	"github.com/marben/perturb_mandel/render"
)

// WorkerCmd is the execution unit started by the pool: Messages in on
// stdin, Replies out on stdout.
type WorkerCmd struct{}

func (c *WorkerCmd) Run() error {
	return render.Serve(os.Stdin, os.Stdout, render.RendererImpl{})
}
