package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guseggert/wsremote/agent/engine"
	"github.com/guseggert/wsremote/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var log *zap.Logger

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	log = l
}

// controllerStub accepts agent connections and hands them to the test.
type controllerStub struct {
	url    string
	conns  chan *websocket.Conn
	accept atomic.Int32
	// rejectFirst is the number of handshakes to fail before accepting
	rejectFirst int32
}

func newControllerStub(t *testing.T, rejectFirst int32) *controllerStub {
	stub := &controllerStub{conns: make(chan *websocket.Conn), rejectFirst: rejectFirst}
	done := make(chan struct{})
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if stub.accept.Add(1) <= stub.rejectFirst {
			http.Error(w, "not yet", http.StatusServiceUnavailable)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		select {
		case stub.conns <- conn:
		case <-done:
			conn.Close(websocket.StatusGoingAway, "")
			return
		}
		<-done
	}))
	t.Cleanup(func() {
		close(done)
		s.Close()
	})
	stub.url = "ws" + strings.TrimPrefix(s.URL, "http")
	return stub
}

func (s *controllerStub) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the agent to connect")
		return nil
	}
}

func startAgent(t *testing.T, u string, exec Executor) {
	t.Helper()
	a, err := New(u, exec, WithLogger(log), WithRetryInterval(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, a.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func readGreeting(t *testing.T, ctx context.Context, conn *websocket.Conn) {
	t.Helper()
	typ, b, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.Equal(t, DefaultGreeting, string(b))
}

func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn, payload []byte) protocol.Result {
	t.Helper()
	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, payload))
	typ, b, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageBinary, typ)
	res, err := protocol.DecodeResult(b)
	require.NoError(t, err)
	return res
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stub := newControllerStub(t, 0)
	startAgent(t, stub.url, engine.New())
	conn := stub.next(t)
	readGreeting(t, ctx, conn)

	res := roundTrip(t, ctx, conn, []byte{0xff, 0xfe, 0x01})
	require.NotNil(t, res.Err)
	assert.Equal(t, protocol.ContextDecode, res.Err.Context)

	echo, err := protocol.EncodeRequest(protocol.NewEcho("hi"))
	require.NoError(t, err)
	res = roundTrip(t, ctx, conn, echo)
	require.Nil(t, res.Err)
	assert.Equal(t, "Echo : hi", res.Ok.Echo.Text)
}

func TestTextFrameIsEchoed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stub := newControllerStub(t, 0)
	startAgent(t, stub.url, engine.New())
	conn := stub.next(t)
	readGreeting(t, ctx, conn)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("ping")))
	typ, b, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.Equal(t, "Echo:ping", string(b))
}

func TestSendFileOverConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dir := t.TempDir()
	stub := newControllerStub(t, 0)
	startAgent(t, stub.url, engine.New(engine.WithDir(dir)))
	conn := stub.next(t)
	readGreeting(t, ctx, conn)

	req, err := protocol.EncodeRequest(protocol.NewSendFile("out.txt", "hello"))
	require.NoError(t, err)
	res := roundTrip(t, ctx, conn, req)
	require.Nil(t, res.Err)
	require.NotNil(t, res.Ok.SendFile)

	b, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))
}

type badExecutor struct{}

func (badExecutor) Execute(ctx context.Context, req protocol.Request) protocol.Result {
	return protocol.Result{}
}

func TestUnencodableResultBecomesTextFrame(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stub := newControllerStub(t, 0)
	startAgent(t, stub.url, badExecutor{})
	conn := stub.next(t)
	readGreeting(t, ctx, conn)

	req, err := protocol.EncodeRequest(protocol.NewEcho("hi"))
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, req))

	typ, b, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.True(t, strings.HasPrefix(string(b), protocol.EncodeFailurePrefix), "got %q", string(b))
}

func TestReconnectsAfterClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stub := newControllerStub(t, 0)
	startAgent(t, stub.url, engine.New())

	conn := stub.next(t)
	readGreeting(t, ctx, conn)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	conn = stub.next(t)
	readGreeting(t, ctx, conn)
}

func TestRetriesFailedHandshakes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stub := newControllerStub(t, 3)
	startAgent(t, stub.url, engine.New())

	conn := stub.next(t)
	readGreeting(t, ctx, conn)
	assert.Equal(t, int32(4), stub.accept.Load())
}

func TestNewRequiresExecutor(t *testing.T) {
	_, err := New("ws://127.0.0.1:1", nil)
	assert.Error(t, err)
}

func TestNewIsQuietWithoutLogger(t *testing.T) {
	a, err := New("ws://127.0.0.1:1", engine.New())
	require.NoError(t, err)
	assert.False(t, a.logger.Desugar().Core().Enabled(zap.ErrorLevel))
}
