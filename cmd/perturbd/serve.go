package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"
)

// ServeCmd serves renders over websockets. Every connection gets its own
// pool; each request on it supersedes the previous one.
type ServeCmd struct {
	EngineFlags `embed:""`
	PoolFlags   `embed:""`

	Addr       string `default:":8080" env:"PERTURBD_ADDR" help:"HTTP listen address."`
	Static     string `type:"existingdir" help:"Directory served at /."`
	MaxClients int    `default:"16" help:"Clients served at once; each gets its own workers."`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	l, srv := webServer(ctx, c.Addr, c.Static, c.MaxClients)
	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on http://localhost%s", c.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("httpServer: %w", err)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
		case err := <-errc:
			log.Print(err)
			stop()
		}
		l.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	cfg := c.config()
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Printf("shutting down")
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		pool, err := c.pool(g)
		if err != nil {
			conn.Close()
			return err
		}
		go func() {
			log.Printf("got connection from: %s", conn.RemoteAddr())
			if err := newSession(conn, pool, cfg).serve(ctx); err != nil {
				log.Printf("err: session %s: %v", conn.RemoteAddr(), err)
			}
			log.Printf("connection from %s closed", conn.RemoteAddr())
		}()
	}
}
