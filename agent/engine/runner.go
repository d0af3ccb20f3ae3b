package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
)

// waitDelay bounds how long a killed shell's inherited pipes are drained before Wait gives up on them.
const waitDelay = time.Second

// CommandRunner runs shell command lines on the local host.
type CommandRunner interface {
	// Output runs line in dir to completion and returns its decoded stdout and stderr, with trailing whitespace trimmed.
	// A non-zero exit status is not an error.
	Output(ctx context.Context, dir, line string) (stdout, stderr string, err error)
	// Start launches line in dir and returns without waiting for it to exit.
	Start(dir, line string) error
}

// ShellRunner runs command lines through a shell, e.g. "sh -c <line>".
// Output is decoded from Encoding, or used as-is when Encoding is nil.
type ShellRunner struct {
	Shell    string
	Flag     string
	Encoding encoding.Encoding
}

var _ CommandRunner = (*ShellRunner)(nil)

// LegacyEncoding is the console code page the Windows runner decodes process output from.
var LegacyEncoding encoding.Encoding = japanese.ShiftJIS

// EncodingByName looks up an encoding by its IANA or WHATWG name, such as "shift_jis", "windows-1252" or "utf-8".
func EncodingByName(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("looking up encoding %q: %w", name, err)
	}
	return enc, nil
}

func (r *ShellRunner) Output(ctx context.Context, dir, line string) (string, string, error) {
	cmd := shellCommand(ctx, r.Shell, r.Flag, line)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", "", err
	}

	outStr, err := r.decode(stdout.Bytes())
	if err != nil {
		return "", "", fmt.Errorf("decoding stdout: %w", err)
	}
	errStr, err := r.decode(stderr.Bytes())
	if err != nil {
		return "", "", fmt.Errorf("decoding stderr: %w", err)
	}
	return outStr, errStr, nil
}

func (r *ShellRunner) Start(dir, line string) error {
	cmd := shellCommand(context.Background(), r.Shell, r.Flag, line)
	cmd.Dir = dir
	err := cmd.Start()
	if err != nil {
		return err
	}
	// reap the process so it doesn't linger as a zombie; nobody looks at how it exited
	go func() { _ = cmd.Wait() }()
	return nil
}

func (r *ShellRunner) decode(b []byte) (string, error) {
	if r.Encoding == nil {
		return trimRight(string(b)), nil
	}
	decoded, err := r.Encoding.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return trimRight(string(decoded)), nil
}

func trimRight(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
