// Package server exposes the synthesis pipeline over HTTP and WebSocket: a
// one-shot WAV endpoint, a chunked streaming endpoint, a WebSocket session and
// the bundled browser client.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/kani-tts-service/internal/cache"
	"github.com/book-expert/kani-tts-service/internal/config"
	"github.com/book-expert/kani-tts-service/internal/tts"
	"github.com/book-expert/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Engine is the synthesis surface the server drives.
type Engine interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
	Stream(ctx context.Context, req tts.Request, sink tts.ChunkSink) (*tts.Result, error)
	HealthCheck(ctx context.Context) error
	CacheStats() cache.Stats
}

// Server routes HTTP requests to an Engine.
type Server struct {
	cfg      *config.Config
	engine   Engine
	logger   *logger.Logger
	router   *gin.Engine
	upgrader websocket.Upgrader
}

// New builds the router. cfg must already be validated.
func New(cfg *config.Config, engine Engine, log *logger.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger(log), corsMiddleware(cfg.Server.AllowedOrigins))

	server := &Server{
		cfg:    cfg,
		engine: engine,
		logger: log,
		router: router,
	}

	server.upgrader = websocket.Upgrader{
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
	}

	server.routes()

	return server
}

func (s *Server) routes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/speakers", s.handleSpeakers)
	s.router.POST("/tts", s.handleTTS)
	s.router.POST("/stream-tts", s.handleStreamTTS)
	s.router.GET("/ws/tts", s.handleWebSocket)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	s.logger.System("HTTP server listening on %s", httpServer.Addr)

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.System("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}
