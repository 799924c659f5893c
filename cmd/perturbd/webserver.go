package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/semaphore"
)

// requestReadLimit bounds a single client message. Requests are small.
const requestReadLimit = 1 << 20

// webServer returns an http server with the render endpoint at /ws,
// optionally serving static files at /, and the listener handing out the
// render clients. At most maxClients are connected at once.
func webServer(ctx context.Context, addr, static string, maxClients int) (*clientListener, *http.Server) {
	l := newClientListener(ctx, addr+"/ws", maxClients)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", l.handle)
	if static != "" {
		mux.Handle("/", http.FileServer(http.Dir(static)))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return l, srv
}

// clientListener is a net.Listener of render clients. Every client costs a
// worker pool, so a client beyond the limit is turned away before it is
// accepted.
type clientListener struct {
	clients chan net.Conn
	slots   *semaphore.Weighted
	done    chan struct{}
	once    sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
	addr    wsAddr
}

func newClientListener(ctx context.Context, addr string, maxClients int) *clientListener {
	ctx, cancel := context.WithCancel(ctx)
	return &clientListener{
		clients: make(chan net.Conn),
		slots:   semaphore.NewWeighted(int64(max(maxClients, 1))),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		addr:    wsAddr{addr: addr},
	}
}

// handle upgrades r and hands the client to Accept. It returns once the
// client is accepted or refused.
func (l *clientListener) handle(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Println(err)
		return
	}
	if !l.slots.TryAcquire(1) {
		log.Printf("refusing %s: too many clients", r.RemoteAddr)
		c.Close(websocket.StatusTryAgainLater, "too many clients")
		return
	}
	c.SetReadLimit(requestReadLimit)

	conn := &clientConn{
		Conn:    websocket.NetConn(l.ctx, c, websocket.MessageBinary),
		release: func() { l.slots.Release(1) },
	}
	select {
	case l.clients <- conn:
	case <-l.done:
		c.Close(websocket.StatusGoingAway, "server shutting down")
		conn.Close()
	}
}

// Accept returns the next client as a binary net.Conn. Clients are
// disconnected when the listener is closed.
func (l *clientListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.clients:
		return c, nil
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *clientListener) Addr() net.Addr {
	return l.addr
}

func (l *clientListener) Close() error {
	l.once.Do(func() { close(l.done) })
	l.cancel()
	return nil
}

// clientConn gives its client slot back when closed.
type clientConn struct {
	net.Conn
	once    sync.Once
	release func()
}

func (c *clientConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.release)
	return err
}

type wsAddr struct {
	addr string
}

func (a wsAddr) Network() string {
	return "ws"
}

func (a wsAddr) String() string {
	return a.addr
}
