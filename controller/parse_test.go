package controller

import (
	"errors"
	"os"
	"testing"

	"github.com/guseggert/wsremote/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeFiles(files map[string]string) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		contents, ok := files[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return []byte(contents), nil
	}
}

func TestParse(t *testing.T) {
	p := &Parser{ReadFile: fakeFiles(map[string]string{
		"a.txt":         "hello",
		"dir/notes.txt": "notes",
		"bin.dat":       "\xff\xfe\x00",
	})}

	cases := []struct {
		name    string
		line    string
		repeat  uint
		exp     Command
		expErr  bool
		errText string
	}{
		{
			name: "echo",
			line: "echo hello world",
			exp:  Command{Kind: KindSend, Request: protocol.NewEcho("hello world")},
		},
		{
			name: "echo alias is case-insensitive",
			line: "sm  hi",
			exp:  Command{Kind: KindSend, Request: protocol.NewEcho("hi")},
		},
		{
			name: "upper-case verb",
			line: "ECHO hi",
			exp:  Command{Kind: KindSend, Request: protocol.NewEcho("hi")},
		},
		{
			name:   "echo without text",
			line:   "echo",
			expErr: true,
		},
		{
			name: "run command with wait flag",
			line: "RC -w ping 1",
			exp:  Command{Kind: KindSend, Request: protocol.NewRunCommand("ping 1", 1)},
		},
		{
			name:   "wait flag overrides the session repeat count",
			line:   "rc -w ping 1",
			repeat: 5,
			exp:    Command{Kind: KindSend, Request: protocol.NewRunCommand("ping 1", 1)},
		},
		{
			name:   "run command uses the session repeat count",
			line:   "runcommand ls -la",
			repeat: 3,
			exp:    Command{Kind: KindSend, Request: protocol.NewRunCommand("ls -la", 3)},
		},
		{
			name: "run command keeps inner whitespace",
			line: "rc -w  printf '%s   x'  ",
			exp:  Command{Kind: KindSend, Request: protocol.NewRunCommand("printf '%s   x'", 1)},
		},
		{
			name: "echo keeps inner whitespace",
			line: "  echo a   b\tc ",
			exp:  Command{Kind: KindSend, Request: protocol.NewEcho("a   b\tc")},
		},
		{
			name: "-w only counts as the wait flag when it stands alone",
			line: "rc -wx",
			exp:  Command{Kind: KindSend, Request: protocol.NewRunCommand("-wx", 1)},
		},
		{
			name:   "run command without a command",
			line:   "rc -w",
			expErr: true,
		},
		{
			name: "set exec number",
			line: "SN 4",
			exp:  Command{Kind: KindSetRepeat, Repeat: 4},
		},
		{
			name:   "set exec number to zero",
			line:   "setexecnumber 0",
			expErr: true,
		},
		{
			name:   "set exec number not a number",
			line:   "sn many",
			expErr: true,
		},
		{
			name:   "set exec number with excess arguments",
			line:   "sn 1 2",
			expErr: true,
		},
		{
			name: "send file with new name",
			line: "SF a.txt b.txt",
			exp:  Command{Kind: KindSend, Request: protocol.NewSendFile("b.txt", "hello")},
		},
		{
			name: "send file defaults to the file's own name",
			line: "sendfile dir/notes.txt",
			exp:  Command{Kind: KindSend, Request: protocol.NewSendFile("notes.txt", "notes")},
		},
		{
			name:    "send file without a path",
			line:    "sendfile",
			expErr:  true,
			errText: "missing path",
		},
		{
			name:   "send file with excess arguments",
			line:   "sf a.txt b.txt c.txt",
			expErr: true,
		},
		{
			name:   "send missing file",
			line:   "sf nope.txt",
			expErr: true,
		},
		{
			name:   "send binary file",
			line:   "sf bin.dat",
			expErr: true,
		},
		{name: "end", line: "end", exp: Command{Kind: KindEnd}},
		{name: "exit", line: "Exit", exp: Command{Kind: KindEnd}},
		{name: "ls", line: "ls", exp: Command{Kind: KindList}},
		{name: "help", line: "help", exp: Command{Kind: KindHelp}},
		{name: "help with arguments", line: "help me", expErr: true},
		{name: "unknown verb", line: "frobnicate", expErr: true, errText: "unknown command"},
		{name: "blank", line: "   ", expErr: true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := NewSession()
			if c.repeat != 0 {
				s.Repeat = c.repeat
			}
			cmd, err := p.Parse(c.line, s)
			if c.expErr {
				require.Error(t, err)
				var parseErr *ParseError
				assert.ErrorAs(t, err, &parseErr)
				if c.errText != "" {
					assert.Contains(t, err.Error(), c.errText)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.exp, cmd)
		})
	}
}

func TestParseSendFileWrapsReadErrors(t *testing.T) {
	p := &Parser{ReadFile: fakeFiles(nil)}
	_, err := p.Parse("sf missing.txt", NewSession())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
