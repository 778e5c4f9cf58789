// Package command runs package manager executables and captures their
// output.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/loykin/swupdate/internal/env"
)

// Result is the captured output of one command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs name with args and waits for it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// Func adapts a function to Runner.
type Func func(ctx context.Context, name string, args ...string) (Result, error)

func (f Func) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return f(ctx, name, args...)
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Code, msg)
}

// Exec runs commands on the host.
type Exec struct {
	// Env overrides the current environment. Values may reference other
	// variables as ${NAME}.
	Env []string
	// Shell routes the command through the platform shell. Windows needs this
	// for scoop, which is a script shim rather than an executable.
	Shell  bool
	Logger *slog.Logger
}

func (e Exec) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := e.build(ctx, name, args)
	if len(e.Env) > 0 {
		cmd.Env = env.New().FromOS().Merge(e.Env)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	if e.Logger != nil {
		e.Logger.Debug("running command", "command", line)
	}
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
		return res, &ExitError{Command: line, Code: res.ExitCode, Stderr: res.Stderr}
	}
	res.ExitCode = -1
	return res, fmt.Errorf("%s: %w", line, err)
}

func (e Exec) build(ctx context.Context, name string, args []string) *exec.Cmd {
	if e.Shell {
		return shellCommand(ctx, name, args)
	}
	// #nosec G204
	return exec.CommandContext(ctx, name, args...)
}
