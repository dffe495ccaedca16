// Command scribe serves the batch and single-item recording workspaces over
// HTTP.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/scribe/apiclient"
	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/batch"
	"github.com/kbukum/scribe/bootstrap"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/observability"
	"github.com/kbukum/scribe/server"
	"github.com/kbukum/scribe/server/api"
	"github.com/kbukum/scribe/server/endpoint"
	"github.com/kbukum/scribe/sse"
	"github.com/kbukum/scribe/store"
	"github.com/kbukum/scribe/version"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Version == "" {
		cfg.Version = version.Get().String()
	}
	logger.Init(cfg.Logging, cfg.Name)
	log := logger.GetGlobalLogger()

	app := bootstrap.New(cfg.Name, cfg.Version, log)
	w, err := wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	w.register(app)
	return app.Run(ctx)
}

// workspace holds the wired process components.
type workspace struct {
	cfg *AppConfig
	log *logger.Logger

	shutdownTelemetry func(context.Context) error
	store             *snapshotStore
	batch             *batch.Manager
	single            *batch.Single
	persisters        []*batch.Persister
	hub               *sse.Hub
	unwatch           []func()
	server            *server.Server
}

func wire(ctx context.Context, cfg *AppConfig, log *logger.Logger) (*workspace, error) {
	shutdown, err := observability.Setup(ctx, cfg.Observability, observability.ServiceInfo{
		Name: cfg.Name, Version: cfg.Version, Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}

	handle := apiclient.NewHandle(cfg.OpenAI)
	transcriber, err := newTranscriber(cfg.Transcription, handle)
	if err != nil {
		return nil, err
	}
	conv, err := newConversation(cfg.Conversation, handle, transcriber)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	deps := batch.Deps{
		Transcriber:  transcriber,
		Conversation: conv,
		Metrics:      observability.DefaultMetrics(),
	}
	checks := []endpoint.Check{st.check}
	if cfg.Audio.Enabled {
		// both workspaces share one device; acquiring it in one pauses the other
		capture := audio.NewFFmpegCapture(cfg.Audio.FFmpeg)
		deps.Capture = capture
		checks = append(checks, endpoint.Check{Name: "audio", Probe: capture.Probe})
	}
	m := batch.New(cfg.Batch, deps)
	single := batch.NewSingle(cfg.Batch, deps)

	hub := sse.NewHub()
	srv := server.New(cfg.HTTP, log)
	srv.Engine().GET("/health", endpoint.Health(cfg.Name, cfg.Version, checks...))
	srv.Engine().GET("/version", func(c *gin.Context) { c.JSON(http.StatusOK, version.Get()) })
	api.New(m, single, handle, hub).Register(srv.Engine().Group("/api/v1"))

	return &workspace{
		cfg:               cfg,
		log:               log,
		shutdownTelemetry: shutdown,
		store:             st,
		batch:             m,
		single:            single,
		persisters: []*batch.Persister{
			batch.NewPersister(m, st, store.Key(cfg.UserID, store.ModeBatch), cfg.Persistence),
			batch.NewPersister(single.Manager, st, store.Key(cfg.UserID, store.ModeSingle), cfg.Persistence),
		},
		hub: hub,
		unwatch: []func(){
			api.Watch(hub, api.TopicBatch, m),
			api.Watch(hub, api.TopicSingle, single.Manager),
		},
		server: srv,
	}, nil
}

// register attaches the lifecycle hooks. Stop hooks run in reverse, so the
// event streams close first and the store last.
func (w *workspace) register(app *bootstrap.App) {
	app.OnStop("telemetry", w.shutdownTelemetry)
	app.OnStop("store", func(context.Context) error { return w.store.close() })

	app.OnStart("restore", func(ctx context.Context) error {
		for _, p := range w.persisters {
			if err := p.Load(ctx); err != nil {
				// corrupt or unreadable history starts empty
				w.log.Warn("snapshot not restored", logger.ErrorFields("restore", err))
			}
		}
		return nil
	})
	app.OnStop("persist", func(ctx context.Context) error {
		var errs []error
		for _, p := range w.persisters {
			if err := p.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return stderrors.Join(errs...)
	})
	app.OnStop("workspaces", func(ctx context.Context) error {
		settle(ctx, w.batch)
		settle(ctx, w.single.Manager)
		return nil
	})

	app.OnStart("http", w.server.Start)
	app.OnStop("http", w.server.Stop)

	app.OnStop("events", func(context.Context) error {
		for _, unwatch := range w.unwatch {
			unwatch()
		}
		w.hub.Close()
		return nil
	})
	app.OnReady("banner", func(context.Context) error {
		w.log.Info("scribe ready", map[string]interface{}{
			"addr": w.server.Addr(), "store": w.cfg.Store.Driver, "model": w.batch.Model(),
		})
		return nil
	})
}

// settle stops an active recording and waits for in-flight transcriptions
// until ctx is done.
func settle(ctx context.Context, m *batch.Manager) {
	if id := m.Recording(); id != "" {
		_ = m.StopCapture(ctx, id)
	}
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
