// Package process runs short-lived helper binaries to completion and
// captures their output.
package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ErrNoBinary is returned when Command.Binary is empty.
var ErrNoBinary = errors.New("process: binary is required")

// Command describes one invocation.
type Command struct {
	// Binary is a path or a name looked up in PATH.
	Binary string
	Args   []string
	Dir    string
	// Env entries (key=value) are appended to the parent environment.
	Env   []string
	Stdin io.Reader
	// GracePeriod is the wait between SIGTERM and SIGKILL on cancellation
	// (default 5s).
	GracePeriod time.Duration
}

// Result is the outcome of a finished process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int // -1 when killed by a signal
	Duration time.Duration
}

// Run starts cmd and waits for it. Cancelling ctx terminates the whole
// process group, escalating to SIGKILL after the grace period. A non-zero
// exit is returned as an error together with the Result.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, ErrNoBinary
	}
	grace := cmd.GracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // arguments come from configuration
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdin = cmd.Stdin

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = grace

	started := time.Now()
	err := c.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: time.Since(started),
	}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, &ExitError{Result: res, Err: ctx.Err()}
	default:
		return res, &ExitError{Result: res, Err: err}
	}
}

// ExitError reports a process that failed to start, exited non-zero or was
// cancelled.
type ExitError struct {
	Result *Result
	Err    error
}

func (e *ExitError) Error() string {
	msg := "process: " + e.Err.Error()
	if tail := bytes.TrimSpace(e.Result.Stderr); len(tail) > 0 {
		if len(tail) > 200 {
			tail = tail[len(tail)-200:]
		}
		msg += ": " + string(tail)
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }
