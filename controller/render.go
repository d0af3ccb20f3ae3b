package controller

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/guseggert/wsremote/protocol"
)

var (
	labelColor   = color.New(color.FgCyan, color.Bold)
	failureColor = color.New(color.FgRed)
	okColor      = color.New(color.FgGreen)
)

// Render writes a human-readable form of res to w.
func Render(w io.Writer, res protocol.Result) {
	if res.Err != nil {
		failureColor.Fprintf(w, "msg : %s\n", res.Err.Message)
		failureColor.Fprintf(w, "when : %s\n", res.Err.Context)
		return
	}
	if res.Ok == nil {
		failureColor.Fprintln(w, "empty result")
		return
	}

	switch {
	case res.Ok.Echo != nil:
		fmt.Fprintln(w, res.Ok.Echo.Text)
	case res.Ok.RunCommand != nil:
		labelColor.Fprintln(w, "stdout:")
		fmt.Fprintln(w, res.Ok.RunCommand.Stdout)
		labelColor.Fprintln(w, "stderr:")
		fmt.Fprintln(w, res.Ok.RunCommand.Stderr)
	case res.Ok.SendFile != nil:
		okColor.Fprintln(w, "file sent")
	}
}
