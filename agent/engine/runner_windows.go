//go:build windows

package engine

import (
	"context"
	"os/exec"
	"syscall"
)

// NewPlatformRunner returns a runner that invokes "cmd /C <line>" and decodes its output from LegacyEncoding.
func NewPlatformRunner() *ShellRunner {
	return &ShellRunner{Shell: "cmd", Flag: "/C", Encoding: LegacyEncoding}
}

func shellCommand(ctx context.Context, shell, flag, line string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, shell)
	// cmd.exe does its own parsing, so hand it the line verbatim instead of letting Go quote it as an argv element
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: shell + " " + flag + " " + line}
	return cmd
}
