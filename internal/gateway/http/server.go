// Package http serves the REST facade of the node: health, agents, chat,
// memory, guardian, peers, and the Prometheus scrape endpoint.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/config"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/httpmw"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
)

// Server wraps the gin engine and its http.Server.
type Server struct {
	engine *gin.Engine
	server *http.Server
	logger *logger.Logger
}

// NewServer builds the gateway server: middleware, REST routes, optional
// WebSocket route, and the metrics endpoint.
func NewServer(cfg config.ServerConfig, handlers *Handlers, wsHandler gin.HandlerFunc, log *logger.Logger) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpmw.CORS())
	engine.Use(httpmw.RequestID())
	engine.Use(httpmw.RequestLogger(log, "gateway"))
	engine.Use(httpmw.OtelTracing("gateway"))

	handlers.Register(engine)
	if wsHandler != nil {
		engine.GET("/ws/:client_id", wsHandler)
	}

	port := cfg.Port
	if port == 0 {
		port = 8000
	}
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
	}

	return &Server{
		engine: engine,
		server: server,
		logger: log.WithFields(zap.String("component", "gateway")),
	}
}

// Start blocks serving requests until Shutdown is called. It returns nil on
// a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("Gateway listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Gateway shutting down")
	return s.server.Shutdown(ctx)
}

// Engine exposes the router, primarily for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// defaultChatTimeout bounds how long POST /chat waits for the admin cycle.
const defaultChatTimeout = 125 * time.Second
