// Package server hosts the scribe HTTP API: a Gin engine behind the
// net/http middleware stack, served over HTTP/1.1 and h2c.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/server/middleware"
)

// Server is the HTTP server.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	handler    http.Handler
	config     Config
	log        *logger.Logger
}

// New creates a server. Routes are registered on Engine before Start.
func New(cfg Config, log *logger.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	log = log.WithComponent("server")

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	stack := middleware.Chain(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.CORS(&cfg.CORS),
		middleware.BodySizeLimit(cfg.MaxBodySize),
		middleware.RequestLogger(log),
	)
	handler := h2c.NewHandler(stack(engine), &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          cfg.IdleTimeout,
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		engine:  engine,
		handler: handler,
		config:  cfg,
		log:     log,
	}
}

// Engine returns the Gin engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler returns the full handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the port and serves in the background. It returns once the
// listener is bound.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("server error", map[string]interface{}{logger.FieldError: err.Error()})
		}
	}()

	s.log.Info("HTTP server started", map[string]interface{}{"addr": listener.Addr().String()})
	return nil
}

// Stop shuts the server down, waiting at most five seconds for requests.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.log.Info("HTTP server shut down")
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
