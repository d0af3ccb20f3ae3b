package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guseggert/wsremote/protocol"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	DefaultRetryInterval = 3 * time.Second
	DefaultReadLimit     = 16 << 20
	DefaultGreeting      = "connection established"
)

// Executor turns one request into one result.
type Executor interface {
	Execute(ctx context.Context, req protocol.Request) protocol.Result
}

// Agent dials a controller, executes the requests it receives and sends back the results.
// If the connection drops, the agent waits a fixed interval and dials again, forever.
type Agent struct {
	logger *zap.SugaredLogger

	url           string
	exec          Executor
	retryInterval time.Duration
	readLimit     int64
}

type Option func(a *Agent)

func WithRetryInterval(d time.Duration) Option {
	return func(a *Agent) {
		a.retryInterval = d
	}
}

func WithReadLimit(n int64) Option {
	return func(a *Agent) {
		a.readLimit = n
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		a.logger = l.Named("agent").Sugar()
	}
}

// New constructs an agent which dials the WebSocket URL u.
func New(u string, exec Executor, opts ...Option) (*Agent, error) {
	if exec == nil {
		return nil, errors.New("agent requires an executor")
	}
	a := &Agent{
		logger:        zap.NewNop().Sugar(),
		url:           u,
		exec:          exec,
		retryInterval: DefaultRetryInterval,
		readLimit:     DefaultReadLimit,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Run connects to the controller and serves it until ctx is done, reconnecting whenever the connection is lost.
func (a *Agent) Run(ctx context.Context) error {
	for {
		err := a.connectAndServe(ctx)
		if ctx.Err() != nil {
			return nil
		}
		a.logger.Errorw("connection to controller lost", "URL", a.url, "Error", err)

		timer := time.NewTimer(a.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		a.logger.Debugw("reconnecting", "URL", a.url)
	}
}

func (a *Agent) connectAndServe(ctx context.Context) error {
	a.logger.Debugw("dialing controller", "URL", a.url)
	conn, _, err := websocket.Dial(ctx, a.url, nil)
	if err != nil {
		return fmt.Errorf("dialing controller: %w", err)
	}
	conn.SetReadLimit(a.readLimit)

	h := &connHandler{
		log:  a.logger.Named("conn"),
		conn: conn,
		exec: a.exec,
	}
	return h.serve(ctx, DefaultGreeting)
}
