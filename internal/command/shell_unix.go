//go:build !windows

package command

import (
	"context"
	"os/exec"
)

// shellCommand executes name directly; a Unix shell adds nothing for plain
// argument vectors.
func shellCommand(ctx context.Context, name string, args []string) *exec.Cmd {
	// #nosec G204
	return exec.CommandContext(ctx, name, args...)
}
