// Package engine executes decoded requests on the local host.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/guseggert/wsremote/protocol"
	"go.uber.org/zap"
)

// NotCaptured is reported as both stdout and stderr of a multi-execution command.
const NotCaptured = "output not captured for multiple executions"

const DefaultTimeout = 3 * time.Second

// Engine maps one request to one result.
// Local failures never escape Execute as errors or panics, they are returned as failed results.
type Engine struct {
	log     *zap.SugaredLogger
	runner  CommandRunner
	timeout time.Duration
	dir     string
	create  func(name string) (file, error)
}

// file is the part of *os.File that sendFile writes through.
type file interface {
	io.Writer
	Sync() error
	Close() error
}

func createFile(name string) (file, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

type Option func(e *Engine)

func WithRunner(r CommandRunner) Option {
	return func(e *Engine) {
		e.runner = r
	}
}

// WithTimeout sets how long a single execution is waited for before it is reported as timed out.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithDir sets the directory commands run in and relative file names are resolved against.
// The default is the process working directory.
func WithDir(dir string) Option {
	return func(e *Engine) {
		e.dir = dir
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.log = l.Named("engine").Sugar()
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		log:     zap.NewNop().Sugar(),
		runner:  NewPlatformRunner(),
		timeout: DefaultTimeout,
		create:  createFile,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Execute(ctx context.Context, req protocol.Request) (res protocol.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorw("recovered from panic while executing request", "Request", req.String(), "Panic", r)
			res = protocol.Fail(fmt.Errorf("panic: %v", r), protocol.ContextCommand)
		}
	}()

	if err := req.Validate(); err != nil {
		return protocol.Fail(err, protocol.ContextValidate)
	}
	e.log.Debugw("executing request", "Request", req.String())

	switch {
	case req.Echo != nil:
		return protocol.OK(protocol.Response{Echo: &protocol.EchoResult{Text: "Echo : " + req.Echo.Text}})
	case req.RunCommand != nil:
		return e.runCommand(ctx, req.RunCommand)
	default:
		return e.sendFile(req.SendFile)
	}
}

func (e *Engine) runCommand(ctx context.Context, rc *protocol.RunCommand) protocol.Result {
	switch {
	case rc.Repeat == 0:
		return protocol.Fail(fmt.Errorf("%w: repeat count must be at least 1", protocol.ErrInvalidMessage), protocol.ContextValidate)
	case rc.Repeat == 1:
		return e.runOnce(ctx, rc.Command)
	default:
		e.runMany(rc.Command, rc.Repeat)
		return protocol.OK(protocol.Response{RunCommand: &protocol.RunCommandResult{Stdout: NotCaptured, Stderr: NotCaptured}})
	}
}

type output struct {
	stdout string
	stderr string
	err    error
}

// task is a single execution running on its own goroutine.
// Its result is delivered at most once on done, which is buffered so that an abandoned task never blocks.
type task struct {
	done   <-chan output
	cancel context.CancelFunc
}

func (e *Engine) startTask(ctx context.Context, line string) *task {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan output, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- output{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		stdout, stderr, err := e.runner.Output(ctx, e.dir, line)
		done <- output{stdout: stdout, stderr: stderr, err: err}
	}()
	return &task{done: done, cancel: cancel}
}

func (e *Engine) runOnce(ctx context.Context, line string) protocol.Result {
	t := e.startTask(ctx, line)
	defer t.cancel()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case out := <-t.done:
		if out.err != nil {
			return protocol.Fail(out.err, protocol.ContextCommand)
		}
		return protocol.OK(protocol.Response{RunCommand: &protocol.RunCommandResult{Stdout: out.stdout, Stderr: out.stderr}})
	case <-timer.C:
		e.log.Debugw("command timed out, killing it", "Command", line, "Timeout", e.timeout)
		return protocol.Fail(fmt.Errorf("no output received within %s", e.timeout), protocol.ContextReceiveTimeout)
	case <-ctx.Done():
		return protocol.Fail(ctx.Err(), protocol.ContextCommand)
	}
}

// runMany hands n executions of line to a single launcher goroutine and returns without waiting on any of them.
// Launch errors are only logged, and the processes are never awaited or cancelled.
func (e *Engine) runMany(line string, n uint) {
	go func() {
		for i := uint(0); i < n; i++ {
			e.launch(line, i)
		}
		e.log.Debugw("launched executions", "Command", line, "Count", n)
	}()
}

func (e *Engine) launch(line string, i uint) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Debugw("recovered from panic starting execution", "Command", line, "Execution", i, "Panic", r)
		}
	}()
	err := e.runner.Start(e.dir, line)
	if err != nil {
		e.log.Debugw("error starting execution", "Command", line, "Execution", i, "Error", err)
	}
}

func (e *Engine) path(name string) string {
	if e.dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.dir, name)
}

func (e *Engine) sendFile(sf *protocol.SendFile) protocol.Result {
	path := e.path(sf.Filename)

	f, err := e.create(path)
	if err != nil {
		return protocol.Fail(err, protocol.ContextOpenFile)
	}

	_, err = io.WriteString(f, sf.Contents)
	if err != nil {
		f.Close()
		return protocol.Fail(err, protocol.ContextWrite)
	}

	err = f.Sync()
	if err != nil {
		f.Close()
		return protocol.Fail(err, protocol.ContextFlush)
	}

	err = f.Close()
	if err != nil {
		return protocol.Fail(err, protocol.ContextClose)
	}

	e.log.Debugw("wrote file", "Path", path, "Bytes", len(sf.Contents))
	return protocol.OK(protocol.Response{SendFile: &protocol.SendFileAck{}})
}
