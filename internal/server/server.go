// Package server wires the controller onto an HTTP API, using gin for
// routing and middleware the way the rest of this stack's services do.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/langconnect/mcp-control-plane/internal/authtoken"
	"github.com/langconnect/mcp-control-plane/internal/config"
	"github.com/langconnect/mcp-control-plane/internal/controller"
	"github.com/langconnect/mcp-control-plane/internal/obslog"
	"github.com/langconnect/mcp-control-plane/internal/realtime"
	"github.com/langconnect/mcp-control-plane/internal/registry"
)

// Server exposes the MCP control plane over HTTP, under the /api/mcp
// prefix, plus unauthenticated /healthz and /readyz probes.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	ctrl       *controller.Controller
	hub        *realtime.Hub
	health     healthSource
	log        zerolog.Logger
}

// healthSource is the subset of dependencies /readyz checks are run
// against, kept narrow so Server stays mockable in tests.
type healthSource interface {
	Health(ctx context.Context) error
}

// New builds a Server bound to cfg's host and port, wiring the controller, the status
// feed hub, and auth-token validation into the route tree.
func New(cfg *config.ServerConfig, ctrl *controller.Controller, hub *realtime.Hub, tokens *authtoken.Manager, health healthSource) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log := obslog.Component("server")
	engine := gin.New()
	engine.Use(RequestID(), Logger(log), Recovery(log))

	s := &Server{engine: engine, ctrl: ctrl, hub: hub, health: health, log: log}
	s.registerRoutes(tokens)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) registerRoutes(tokens *authtoken.Manager) {
	s.engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.engine.GET("/readyz", func(c *gin.Context) {
		if s.health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		if err := s.health.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	api := s.engine.Group("/api/mcp")
	api.Use(RequireAuth(tokens))
	{
		api.GET("/servers", s.listServers)
		api.POST("/servers", s.createServer)
		api.GET("/servers/:id", s.getServer)
		api.PUT("/servers/:id", s.updateServer)
		api.DELETE("/servers/:id", s.deleteServer)

		api.POST("/servers/:id/start", s.startServer)
		api.POST("/servers/:id/stop", s.stopServer)
		api.POST("/servers/:id/restart", s.restartServer)

		api.GET("/servers/:id/status", s.serverStatus)
		api.GET("/servers/:id/logs", s.streamServerLogs)
		api.POST("/servers/:id/health", s.serverHealth)

		api.POST("/servers/:id/elicit/respond", s.respondToElicitation)

		api.GET("/status/feed", s.serverStatusFeed)
	}
}

// publishStatus broadcasts server's current status to userID's connected
// status-feed subscribers, if any.
func (s *Server) publishStatus(userID string, server *registry.Server) {
	if s.hub == nil || server == nil {
		return
	}
	s.hub.Broadcast(userID, realtime.StatusEvent{
		ServerID:  server.ID,
		Status:    server.Status.Status,
		Detail:    server.Status.ErrorMessage,
		Timestamp: time.Now().UTC(),
	})
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// drains in-flight requests before returning.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting http server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info().Msg("shutting down http server")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
