//go:build windows

package command

import (
	"context"
	"os/exec"
)

// shellCommand runs name through cmd.exe so .cmd and .ps1 shims resolve.
func shellCommand(ctx context.Context, name string, args []string) *exec.Cmd {
	full := append([]string{"/c", name}, args...)
	// #nosec G204
	return exec.CommandContext(ctx, "cmd", full...)
}
