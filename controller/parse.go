package controller

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/guseggert/wsremote/protocol"
)

const Usage = `commands:
  echo, SM <text>                   echo text back from the agent
  runcommand, RC [-w] <command>     run a shell command on the agent; -w runs it once and waits for output
  setexecnumber, SN <n>             set how many times RC runs a command (1 waits for output)
  sendfile, SF <path> [newname]     send a local text file to the agent
  ls                                list the local working directory
  help                              show this help
  end, exit                         end the session
`

// Kind is what a parsed command line asks the console to do.
type Kind int

const (
	KindSend Kind = iota
	KindSetRepeat
	KindEnd
	KindList
	KindHelp
)

// Session is the console state a command line is interpreted against.
type Session struct {
	// Repeat is the number of executions requested by RC without -w.
	Repeat uint
}

func NewSession() Session {
	return Session{Repeat: 1}
}

type Command struct {
	Kind Kind
	// Request is set for KindSend.
	Request protocol.Request
	// Repeat is set for KindSetRepeat.
	Repeat uint
}

// ParseError is a command line that produced no command.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// Parser translates command lines into commands.
type Parser struct {
	// ReadFile reads the local files named by sendfile.
	ReadFile func(path string) ([]byte, error)
}

func (p *Parser) Parse(line string, s Session) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, parseErrorf("empty command")
	}
	verb, args := fields[0], fields[1:]
	// free text is sent as typed, so whitespace inside it is preserved
	_, text := cutField(line)

	switch strings.ToLower(verb) {
	case "echo", "sm":
		if text == "" {
			return Command{}, parseErrorf("%s: missing text", verb)
		}
		return Command{Kind: KindSend, Request: protocol.NewEcho(text)}, nil

	case "runcommand", "rc":
		repeat := s.Repeat
		if repeat == 0 {
			repeat = 1
		}
		if flag, rest := cutField(text); flag == "-w" {
			repeat = 1
			text = rest
		}
		if text == "" {
			return Command{}, parseErrorf("%s: missing command", verb)
		}
		return Command{Kind: KindSend, Request: protocol.NewRunCommand(text, repeat)}, nil

	case "setexecnumber", "sn":
		if len(args) != 1 {
			return Command{}, parseErrorf("%s: expected exactly one count, got %d arguments", verb, len(args))
		}
		n, err := strconv.ParseUint(args[0], 10, 0)
		if err != nil || n == 0 {
			return Command{}, parseErrorf("%s: count must be a positive integer, got %q", verb, args[0])
		}
		return Command{Kind: KindSetRepeat, Repeat: uint(n)}, nil

	case "sendfile", "sf":
		return p.parseSendFile(verb, args)

	case "end", "exit":
		return noArgs(verb, args, KindEnd)
	case "ls":
		return noArgs(verb, args, KindList)
	case "help":
		return noArgs(verb, args, KindHelp)
	}

	return Command{}, parseErrorf("unknown command %q, try help", verb)
}

// cutField splits s after its first whitespace-separated field and trims surrounding whitespace from both parts.
func cutField(s string) (field, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func noArgs(verb string, args []string, kind Kind) (Command, error) {
	if len(args) > 0 {
		return Command{}, parseErrorf("%s: takes no arguments", verb)
	}
	return Command{Kind: kind}, nil
}

func (p *Parser) parseSendFile(verb string, args []string) (Command, error) {
	switch len(args) {
	case 0:
		return Command{}, parseErrorf("%s: missing path", verb)
	case 1, 2:
	default:
		return Command{}, parseErrorf("%s: expected a path and an optional new name, got %d arguments", verb, len(args))
	}

	path := args[0]
	name := filepath.Base(path)
	if len(args) == 2 {
		name = args[1]
	}

	if p.ReadFile == nil {
		return Command{}, &ParseError{Reason: "reading " + path, Err: errors.New("no file reader configured")}
	}
	b, err := p.ReadFile(path)
	if err != nil {
		return Command{}, &ParseError{Reason: "reading " + path, Err: err}
	}
	if !utf8.Valid(b) {
		return Command{}, parseErrorf("%s: %s is not UTF-8 text", verb, path)
	}
	return Command{Kind: KindSend, Request: protocol.NewSendFile(name, string(b))}, nil
}
