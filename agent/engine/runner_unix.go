//go:build !windows

package engine

import (
	"context"
	"os/exec"
)

// NewPlatformRunner returns a runner that invokes "sh -c <line>" and takes its output as UTF-8.
func NewPlatformRunner() *ShellRunner {
	return &ShellRunner{Shell: "sh", Flag: "-c"}
}

func shellCommand(ctx context.Context, shell, flag, line string) *exec.Cmd {
	return exec.CommandContext(ctx, shell, flag, line)
}
