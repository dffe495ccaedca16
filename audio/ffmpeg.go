package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	apperrors "github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/process"
)

// CaptureMIMEType is the container ffmpeg is asked to produce.
const CaptureMIMEType = "audio/webm;codecs=opus"

// FFmpegConfig configures FFmpegCapture.
type FFmpegConfig struct {
	Command      string        `yaml:"command" mapstructure:"command"`
	InputFormat  string        `yaml:"input_format" mapstructure:"input_format"`
	InputDevice  string        `yaml:"input_device" mapstructure:"input_device"`
	StartupGrace time.Duration `yaml:"startup_grace" mapstructure:"startup_grace"`
	StopTimeout  time.Duration `yaml:"stop_timeout" mapstructure:"stop_timeout"`
}

// ApplyDefaults fills empty fields for a PulseAudio default source.
func (c *FFmpegConfig) ApplyDefaults() {
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.InputDevice == "" {
		c.InputDevice = "default"
	}
	if c.StartupGrace == 0 {
		c.StartupGrace = 250 * time.Millisecond
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = 1200 * time.Millisecond
	}
}

// FFmpegCapture records the microphone by running ffmpeg and buffering the
// WebM/Opus stream it writes to stdout. Each Start/Resume runs a new process;
// Pause/Stop interrupt it and return everything it wrote as one segment.
type FFmpegCapture struct {
	cfg FFmpegConfig
	log *logger.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	waitErr chan error
}

// NewFFmpegCapture creates a capture with cfg (defaults applied).
func NewFFmpegCapture(cfg FFmpegConfig) *FFmpegCapture {
	cfg.ApplyDefaults()
	return &FFmpegCapture{cfg: cfg, log: logger.Get("capture")}
}

var _ Capture = (*FFmpegCapture)(nil)

func (c *FFmpegCapture) args() []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.cfg.InputFormat,
		"-i", c.cfg.InputDevice,
		"-ac", "1",
		"-c:a", "libopus",
		"-f", "webm",
		"-",
	}
}

// Start launches ffmpeg. Failures are HardwareUnavailable.
func (c *FFmpegCapture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return apperrors.HardwareUnavailable(errors.New("capture already running"))
	}

	// Not CommandContext: the process outlives the request that started it.
	cmd := exec.Command(c.cfg.Command, c.args()...)
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = c.cfg.StopTimeout

	if err := cmd.Start(); err != nil {
		return apperrors.HardwareUnavailable(fmt.Errorf("start ffmpeg: %w", err))
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		msg := strings.TrimSpace(stderr.String())
		if err == nil {
			err = errors.New("exited")
		}
		return apperrors.HardwareUnavailable(fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, msg))
	case <-time.After(c.cfg.StartupGrace):
	}

	c.cmd, c.stdout, c.stderr, c.waitErr = cmd, stdout, stderr, waitErr
	c.log.Debug("capture started", map[string]interface{}{"pid": cmd.Process.Pid})
	return nil
}

// Resume starts a new ffmpeg process for the next segment.
func (c *FFmpegCapture) Resume(ctx context.Context) error {
	return c.Start(ctx)
}

// Pause ends the running process and returns its output.
func (c *FFmpegCapture) Pause(ctx context.Context) (Segment, error) {
	return c.finish()
}

// Stop ends the running process and returns its output.
func (c *FFmpegCapture) Stop(ctx context.Context) (Segment, error) {
	return c.finish()
}

func (c *FFmpegCapture) finish() (Segment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil {
		return Segment{}, errors.New("capture not running")
	}

	_ = c.cmd.Process.Signal(os.Interrupt)

	var err error
	select {
	case err = <-c.waitErr:
	case <-time.After(c.cfg.StopTimeout):
		_ = c.cmd.Process.Kill()
		err = <-c.waitErr
	}
	err = normalizeExit(err)
	if err != nil && c.stderr.Len() > 0 {
		err = fmt.Errorf("%w: %s", err, strings.TrimSpace(c.stderr.String()))
	}

	seg := Segment{Data: c.stdout.Bytes(), MIMEType: CaptureMIMEType}
	c.cmd, c.stdout, c.stderr, c.waitErr = nil, nil, nil, nil

	c.log.Debug("capture finished", map[string]interface{}{"bytes": seg.Len()})
	return seg, err
}

// normalizeExit treats a non-zero exit after an interrupt, or output pipes
// held open by a stray child, as a normal stop.
func normalizeExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	return err
}

// Probe checks that the configured ffmpeg binary runs. It does not open
// the input device.
func (c *FFmpegCapture) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := process.Run(ctx, process.Command{
		Binary: c.cfg.Command, Args: []string{"-hide_banner", "-version"}, GracePeriod: time.Second,
	}); err != nil {
		return apperrors.HardwareUnavailable(err)
	}
	return nil
}
