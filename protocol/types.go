package protocol

import (
	"errors"
	"fmt"
)

// Failure contexts name the phase in which a request failed.
const (
	ContextDecode         = "decode request"
	ContextValidate       = "validate request"
	ContextCommand        = "command execution"
	ContextReceiveTimeout = "receive-timeout"
	ContextOpenFile       = "open-file"
	ContextWrite          = "write"
	ContextFlush          = "flush"
	ContextClose          = "close"
	ContextEncodeResult   = "encode result"
	ContextDecodeResult   = "decode result"
	ContextTransport      = "transport"
)

// EncodeFailurePrefix starts the text frame an agent sends in place of a result it could not encode.
const EncodeFailurePrefix = "encoding result: "

var ErrInvalidMessage = errors.New("invalid message")

// Request is sent from the controller to the agent. Exactly one field must be set.
type Request struct {
	Echo       *Echo       `cbor:"1,keyasint,omitempty"`
	RunCommand *RunCommand `cbor:"2,keyasint,omitempty"`
	SendFile   *SendFile   `cbor:"3,keyasint,omitempty"`
}

type Echo struct {
	_    struct{} `cbor:",toarray"`
	Text string
}

// RunCommand runs a shell command line.
// A Repeat of 1 runs the command once and waits for its output.
// A Repeat above 1 starts that many independent executions and discards their output.
type RunCommand struct {
	_       struct{} `cbor:",toarray"`
	Command string
	Repeat  uint
}

// SendFile writes Contents to Filename, relative to the agent's working directory.
type SendFile struct {
	_        struct{} `cbor:",toarray"`
	Filename string
	Contents string
}

func NewEcho(text string) Request {
	return Request{Echo: &Echo{Text: text}}
}

func NewRunCommand(command string, repeat uint) Request {
	return Request{RunCommand: &RunCommand{Command: command, Repeat: repeat}}
}

func NewSendFile(filename, contents string) Request {
	return Request{SendFile: &SendFile{Filename: filename, Contents: contents}}
}

// Validate returns ErrInvalidMessage unless exactly one variant is set.
func (r Request) Validate() error {
	n := 0
	if r.Echo != nil {
		n++
	}
	if r.RunCommand != nil {
		n++
	}
	if r.SendFile != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("%w: request has %d variants set", ErrInvalidMessage, n)
	}
	return nil
}

func (r Request) String() string {
	switch {
	case r.Echo != nil:
		return fmt.Sprintf("echo %q", r.Echo.Text)
	case r.RunCommand != nil:
		return fmt.Sprintf("run command %q x%d", r.RunCommand.Command, r.RunCommand.Repeat)
	case r.SendFile != nil:
		return fmt.Sprintf("send file %q (%d bytes)", r.SendFile.Filename, len(r.SendFile.Contents))
	}
	return "empty request"
}

// Result is the outcome of processing exactly one Request. Exactly one field must be set.
type Result struct {
	Ok  *Response `cbor:"1,keyasint,omitempty"`
	Err *Failure  `cbor:"2,keyasint,omitempty"`
}

// Response is a successful Result. Exactly one field must be set.
type Response struct {
	Echo       *EchoResult       `cbor:"1,keyasint,omitempty"`
	RunCommand *RunCommandResult `cbor:"2,keyasint,omitempty"`
	SendFile   *SendFileAck      `cbor:"3,keyasint,omitempty"`
}

type EchoResult struct {
	_    struct{} `cbor:",toarray"`
	Text string
}

type RunCommandResult struct {
	_      struct{} `cbor:",toarray"`
	Stdout string
	Stderr string
}

type SendFileAck struct{}

// Failure replaces a crash: Message is the proximate cause and Context names the phase that failed.
type Failure struct {
	_       struct{} `cbor:",toarray"`
	Message string
	Context string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("msg : %s\nwhen : %s", f.Message, f.Context)
}

func OK(resp Response) Result {
	return Result{Ok: &resp}
}

// Fail builds a failed Result from err. A nil err yields an empty message.
func Fail(err error, context string) Result {
	f := &Failure{Context: context}
	if err != nil {
		f.Message = err.Error()
	}
	return Result{Err: f}
}

func (r Result) Validate() error {
	switch {
	case r.Ok != nil && r.Err != nil:
		return fmt.Errorf("%w: result is both ok and failed", ErrInvalidMessage)
	case r.Err != nil:
		return nil
	case r.Ok == nil:
		return fmt.Errorf("%w: empty result", ErrInvalidMessage)
	}
	n := 0
	if r.Ok.Echo != nil {
		n++
	}
	if r.Ok.RunCommand != nil {
		n++
	}
	if r.Ok.SendFile != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("%w: response has %d variants set", ErrInvalidMessage, n)
	}
	return nil
}
