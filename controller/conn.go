package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/guseggert/wsremote/protocol"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// TransportError is a failure to send a request or read its result.
// The connection it happened on is no longer usable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Conn is an accepted agent connection.
type Conn struct {
	ID         uuid.UUID
	RemoteAddr string

	log      *zap.SugaredLogger
	ws       *websocket.Conn
	released chan struct{}

	releaseOnce sync.Once
}

func newConn(log *zap.SugaredLogger, ws *websocket.Conn, remoteAddr string) *Conn {
	id := uuid.New()
	return &Conn{
		ID:         id,
		RemoteAddr: remoteAddr,
		log:        log.With("ConnID", id.String()),
		ws:         ws,
		released:   make(chan struct{}),
	}
}

// RoundTrip sends req and waits for its result.
// Text frames received in the meantime are diagnostics and are skipped, except for an agent's report that it
// could not encode the result, which is returned as a failed result.
func (c *Conn) RoundTrip(ctx context.Context, req protocol.Request) (protocol.Result, error) {
	b, err := protocol.EncodeRequest(req)
	if err != nil {
		return protocol.Result{}, err
	}

	c.log.Debugw("sending request", "Request", req.String())
	err = c.ws.Write(ctx, websocket.MessageBinary, b)
	if err != nil {
		return protocol.Result{}, &TransportError{Op: "sending request", Err: err}
	}

	for {
		typ, b, err := c.ws.Read(ctx)
		if err != nil {
			return protocol.Result{}, &TransportError{Op: "reading result", Err: err}
		}

		if typ == websocket.MessageText {
			text := string(b)
			if strings.HasPrefix(text, protocol.EncodeFailurePrefix) {
				return protocol.Fail(errors.New(strings.TrimPrefix(text, protocol.EncodeFailurePrefix)), protocol.ContextEncodeResult), nil
			}
			c.log.Debugw("skipping diagnostic text frame", "Text", text)
			continue
		}

		res, err := protocol.DecodeResult(b)
		if err != nil {
			c.log.Debugw("error decoding result", "Error", err)
			return protocol.Fail(err, protocol.ContextDecodeResult), nil
		}
		return res, nil
	}
}

// release closes the connection and lets its HTTP handler return.
func (c *Conn) release(code websocket.StatusCode, reason string) {
	c.releaseOnce.Do(func() {
		err := c.ws.Close(code, reason)
		if err != nil {
			c.log.Debugf("error closing conn: %s", err)
		}
		close(c.released)
	})
}
