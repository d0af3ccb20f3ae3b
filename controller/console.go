package controller

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/guseggert/wsremote/protocol"
	"github.com/peterh/liner"
	"nhooyr.io/websocket"
)

const (
	prompt  = "> "
	goodbye = "Good Bye"
)

// LineReader reads one line of operator input after displaying a prompt.
// It returns io.EOF when there is no more input.
type LineReader interface {
	Prompt(prompt string) (string, error)
}

// Terminal is an interactive LineReader with line editing and history.
type Terminal struct {
	state *liner.State
}

func NewTerminal() *Terminal {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	return &Terminal{state: state}
}

func (t *Terminal) Prompt(p string) (string, error) {
	line, err := t.state.Prompt(p)
	if err == nil && strings.TrimSpace(line) != "" {
		t.state.AppendHistory(line)
	}
	return line, err
}

// Close restores the terminal mode.
func (t *Terminal) Close() error {
	return t.state.Close()
}

type lineScanner struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewLineScanner returns a LineReader reading lines from r and writing prompts to out.
func NewLineScanner(r io.Reader, out io.Writer) LineReader {
	return &lineScanner{scanner: bufio.NewScanner(r), out: out}
}

func (s *lineScanner) Prompt(p string) (string, error) {
	fmt.Fprint(s.out, p)
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

// console turns operator input into round trips with one attached agent at a time.
type console struct {
	c       *Controller
	session Session
	parser  *Parser
	current *Conn
}

func (c *Controller) runConsole(ctx context.Context) error {
	con := &console{
		c:       c,
		session: NewSession(),
		parser:  &Parser{ReadFile: c.readFile},
	}
	defer con.detach(websocket.StatusGoingAway)

	for {
		line, err := c.in.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return con.end(ctx)
		}
		if err != nil {
			return fmt.Errorf("reading command: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, err := con.parser.Parse(line, con.session)
		if err != nil {
			fmt.Fprintf(c.out, "error: %s\n", err)
			continue
		}

		switch cmd.Kind {
		case KindHelp:
			fmt.Fprint(c.out, Usage)
		case KindList:
			con.list()
		case KindSetRepeat:
			con.session.Repeat = cmd.Repeat
			fmt.Fprintf(c.out, "execution count set to %d\n", cmd.Repeat)
		case KindEnd:
			return con.end(ctx)
		case KindSend:
			err := con.send(ctx, cmd.Request)
			if err != nil {
				return err
			}
		}
	}
}

// attach returns the current agent connection, waiting for one if there is none.
func (con *console) attach(ctx context.Context) (*Conn, error) {
	if con.current != nil {
		return con.current, nil
	}
	fmt.Fprintln(con.c.out, "waiting for an agent to connect...")
	select {
	case conn := <-con.c.conns:
		con.current = conn
		fmt.Fprintf(con.c.out, "agent %s connected from %s\n", conn.ID, conn.RemoteAddr)
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (con *console) detach(code websocket.StatusCode) {
	if con.current == nil {
		return
	}
	con.current.release(code, "")
	con.current = nil
}

// send performs one round trip and renders its result.
// A transport failure is rendered like any other failure and drops the connection; the session goes on.
func (con *console) send(ctx context.Context, req protocol.Request) error {
	conn, err := con.attach(ctx)
	if err != nil {
		return err
	}

	res, err := conn.RoundTrip(ctx, req)
	if err != nil {
		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			fmt.Fprintf(con.c.out, "error: %s\n", err)
			return nil
		}
		conn.log.Errorw("round trip failed, dropping agent", "Error", err)
		Render(con.c.out, protocol.Fail(err, protocol.ContextTransport))
		con.detach(websocket.StatusInternalError)
		return ctx.Err()
	}
	Render(con.c.out, res)
	return nil
}

// end does a last round trip with the attached agent, if any, and closes its connection.
func (con *console) end(ctx context.Context) error {
	if con.current == nil {
		return nil
	}
	res, err := con.current.RoundTrip(ctx, protocol.NewEcho(goodbye))
	if err != nil {
		Render(con.c.out, protocol.Fail(err, protocol.ContextTransport))
		con.detach(websocket.StatusInternalError)
		return nil
	}
	Render(con.c.out, res)
	con.detach(websocket.StatusNormalClosure)
	return nil
}

func (con *console) list() {
	entries, err := os.ReadDir(con.c.dir)
	if err != nil {
		fmt.Fprintf(con.c.out, "error: listing %s: %s\n", con.c.dir, err)
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		fmt.Fprintln(con.c.out, name)
	}
}
