// Package server exposes login and chat over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rolerag/internal/port"
	"rolerag/internal/usecase"
)

// Options configures the HTTP server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// TrustBodyRole lets unauthenticated /chat requests name their role in
	// the request body.
	TrustBodyRole bool
}

// Server serves the chat API on gin.
type Server struct {
	opts   Options
	auth   port.Authenticator
	chat   *usecase.ChatService
	index  port.Index
	logger *slog.Logger
	engine *gin.Engine
}

// New builds the server and its routes.
func New(opts Options, auth port.Authenticator, chat *usecase.ChatService, index port.Index, logger *slog.Logger) *Server {
	s := &Server{
		opts:   opts,
		auth:   auth,
		chat:   chat,
		index:  index,
		logger: logger,
		engine: gin.New(),
	}
	s.engine.Use(requestID(), recovery(logger), requestLogger(logger))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/login", s.handleLogin)
	s.engine.GET("/test", s.handleTest)
	s.engine.POST("/chat", s.handleChat)
	s.engine.GET("/healthz", s.handleHealth)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown", "error", err)
		}
	}()

	s.logger.Info("server started", "addr", s.opts.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
