package process_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/scribe/process"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name       string
		cmd        process.Command
		wantErr    bool
		wantCode   int
		wantStdout string
	}{
		{"stdout", process.Command{Binary: "echo", Args: []string{"ffmpeg", "version"}}, false, 0, "ffmpeg version"},
		{"stdin", process.Command{Binary: "cat", Stdin: strings.NewReader("pcm")}, false, 0, "pcm"},
		{"env", process.Command{Binary: "sh", Args: []string{"-c", "printf %s \"$SCRIBE_TEST\""}, Env: []string{"SCRIBE_TEST=on"}}, false, 0, "on"},
		{"exit code", process.Command{Binary: "sh", Args: []string{"-c", "exit 3"}}, true, 3, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := process.Run(context.Background(), tc.cmd)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if res.ExitCode != tc.wantCode {
				t.Errorf("exit code %d, want %d", res.ExitCode, tc.wantCode)
			}
			if got := strings.TrimSpace(string(res.Stdout)); got != tc.wantStdout {
				t.Errorf("stdout %q, want %q", got, tc.wantStdout)
			}
		})
	}
}

func TestRun_StderrInError(t *testing.T) {
	_, err := process.Run(context.Background(), process.Command{
		Binary: "sh", Args: []string{"-c", "echo 'no such device' >&2; exit 1"},
	})
	var exitErr *process.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if !strings.Contains(err.Error(), "no such device") {
		t.Errorf("expected stderr in message, got %q", err.Error())
	}
}

func TestRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := process.Run(ctx, process.Command{Binary: "sleep", Args: []string{"10"}, GracePeriod: time.Second})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("process was not terminated")
	}
}

func TestRun_NoBinary(t *testing.T) {
	if _, err := process.Run(context.Background(), process.Command{}); !errors.Is(err, process.ErrNoBinary) {
		t.Fatalf("expected ErrNoBinary, got %v", err)
	}
}
