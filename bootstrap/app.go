// Package bootstrap runs a process through start, ready and stop phases:
// start hooks in order, ready hooks, a wait for SIGINT/SIGTERM or context
// cancellation, then stop hooks in reverse registration order under a
// graceful timeout.
package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/scribe/logger"
)

// Hook is a lifecycle callback.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// App owns the lifecycle of one process.
type App struct {
	Name    string
	Version string
	Logger  *logger.Logger

	gracefulTimeout time.Duration
	signals         []os.Signal

	onStart []namedHook
	onReady []namedHook
	onStop  []namedHook
}

// Option configures an App.
type Option func(*App)

// WithGracefulTimeout bounds the stop phase.
func WithGracefulTimeout(d time.Duration) Option {
	return func(a *App) { a.gracefulTimeout = d }
}

// WithSignals replaces the signals that end the run.
func WithSignals(sig ...os.Signal) Option {
	return func(a *App) { a.signals = sig }
}

// New creates an App. A nil log uses the global logger.
func New(name, version string, log *logger.Logger, opts ...Option) *App {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	a := &App{
		Name:            name,
		Version:         version,
		Logger:          log.WithComponent("bootstrap"),
		gracefulTimeout: 15 * time.Second,
		signals:         []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnStart registers a hook run during startup. A failing start hook aborts
// the run after the stop hooks registered so far have run.
func (a *App) OnStart(name string, fn Hook) {
	a.onStart = append(a.onStart, namedHook{name, fn})
}

// OnReady registers a hook run once every start hook succeeded.
func (a *App) OnReady(name string, fn Hook) {
	a.onReady = append(a.onReady, namedHook{name, fn})
}

// OnStop registers a hook run during shutdown. Stop hooks run in reverse
// registration order and all of them run even when some fail.
func (a *App) OnStop(name string, fn Hook) {
	a.onStop = append(a.onStop, namedHook{name, fn})
}

// Run starts the app, blocks until a signal arrives or ctx is done, then
// stops it.
func (a *App) Run(ctx context.Context) error {
	started := time.Now()
	a.Logger.Info("starting", map[string]interface{}{"name": a.Name, "version": a.Version})

	if err := a.startup(ctx); err != nil {
		return stderrors.Join(err, a.stop())
	}
	a.Logger.Info("ready", logger.MergeWithDuration(nil, time.Since(started)))

	a.wait(ctx)
	return a.stop()
}

func (a *App) startup(ctx context.Context) error {
	for _, h := range a.onStart {
		if err := h.fn(ctx); err != nil {
			return fmt.Errorf("start %s: %w", h.name, err)
		}
		a.Logger.Debug("started", map[string]interface{}{"hook": h.name})
	}
	for _, h := range a.onReady {
		if err := h.fn(ctx); err != nil {
			return fmt.Errorf("ready %s: %w", h.name, err)
		}
	}
	return nil
}

func (a *App) wait(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, a.signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("received signal", map[string]interface{}{"signal": sig.String()})
	case <-ctx.Done():
		a.Logger.Info("context done")
	}
}

// stop runs every stop hook under one graceful deadline. It is detached
// from the run context, which is usually already cancelled here.
func (a *App) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var errs []error
	for i := len(a.onStop) - 1; i >= 0; i-- {
		h := a.onStop[i]
		if err := h.fn(ctx); err != nil {
			a.Logger.Error("stop hook failed", map[string]interface{}{"hook": h.name, logger.FieldError: err.Error()})
			errs = append(errs, fmt.Errorf("stop %s: %w", h.name, err))
		}
	}
	a.Logger.Info("stopped")
	return stderrors.Join(errs...)
}
