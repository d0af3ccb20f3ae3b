// Package controller is the operator side: it accepts agent connections and turns console input into requests.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
)

const DefaultReadLimit = 16 << 20

// Controller accepts agent connections over WebSocket and drives one of them at a time from an interactive console.
type Controller struct {
	log *zap.SugaredLogger

	path      string
	readLimit int64
	in        LineReader
	out       io.Writer
	readFile  func(string) ([]byte, error)
	dir       string

	listener   net.Listener
	httpServer *http.Server

	// conns receives accepted connections until the console takes them.
	conns     chan *Conn
	closed    chan struct{}
	closeOnce sync.Once
}

type Option func(c *Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.log = l.Named("controller").Sugar()
	}
}

// WithPath sets the HTTP path agents connect to.
func WithPath(p string) Option {
	return func(c *Controller) {
		c.path = p
	}
}

func WithReadLimit(n int64) Option {
	return func(c *Controller) {
		c.readLimit = n
	}
}

func WithInput(in LineReader) Option {
	return func(c *Controller) {
		c.in = in
	}
}

func WithOutput(w io.Writer) Option {
	return func(c *Controller) {
		c.out = w
	}
}

// WithFileReader sets how sendfile reads local files.
func WithFileReader(f func(string) ([]byte, error)) Option {
	return func(c *Controller) {
		c.readFile = f
	}
}

// WithDir sets the local directory listed by ls.
func WithDir(dir string) Option {
	return func(c *Controller) {
		c.dir = dir
	}
}

func New(opts ...Option) *Controller {
	c := &Controller{
		log:       zap.NewNop().Sugar(),
		path:      "/",
		readLimit: DefaultReadLimit,
		out:       os.Stdout,
		readFile:  os.ReadFile,
		dir:       ".",
		conns:     make(chan *Conn),
		closed:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.in == nil {
		c.in = NewLineScanner(os.Stdin, c.out)
	}
	return c
}

// Listen binds the address agents connect to. It must be called before Run.
func (c *Controller) Listen(addr string) (net.Addr, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening TCP: %w", err)
	}
	c.listener = l

	router := httprouter.New()
	router.GET(c.path, c.acceptAgent)
	c.httpServer = &http.Server{Handler: router}

	return l.Addr(), nil
}

// Run serves agent connections and runs the console until the operator ends the session.
// If serving fails or ctx is done, Run returns without waiting for a console prompt that is still blocked on input.
func (c *Controller) Run(ctx context.Context) error {
	if c.listener == nil {
		return errors.New("controller is not listening")
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := c.httpServer.Serve(c.listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		c.log.Errorw("error serving agents", "Error", err)
		return fmt.Errorf("serving agents: %w", err)
	})

	consoleDone := make(chan error, 1)
	go func() {
		consoleDone <- c.runConsole(groupCtx)
	}()
	group.Go(func() error {
		defer c.stop()
		select {
		case err := <-consoleDone:
			return err
		case <-groupCtx.Done():
			return nil
		}
	})
	return group.Wait()
}

func (c *Controller) stop() {
	c.closeOnce.Do(func() {
		close(c.closed)
		err := c.httpServer.Close()
		if err != nil {
			c.log.Debugf("error closing HTTP server: %s", err)
		}
	})
}

// acceptAgent upgrades an agent's request and holds the connection until the console is done with it.
func (c *Controller) acceptAgent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		c.log.Debugf("error accepting WebSocket conn: %s", err)
		return
	}
	ws.SetReadLimit(c.readLimit)

	conn := newConn(c.log, ws, r.RemoteAddr)
	conn.log.Infow("agent connected", "Remote", conn.RemoteAddr)

	select {
	case c.conns <- conn:
	case <-c.closed:
		conn.release(websocket.StatusGoingAway, "controller shutting down")
		return
	}

	select {
	case <-conn.released:
	case <-c.closed:
		conn.release(websocket.StatusGoingAway, "controller shutting down")
	}
}
