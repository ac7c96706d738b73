package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/internal/engine"
	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/report"
	"github.com/parleyhq/parley/pkg/util"
)

// Server implements the HTTP API server for the orchestrator
type Server struct {
	engine     *engine.Engine
	dispatcher *events.Dispatcher
	archive    *report.Archive
	started    time.Time
	sockets    util.Set[*Client]
	mu         sync.Mutex
}

// NewServer creates a new HTTP API server
func NewServer(
	eng *engine.Engine, d *events.Dispatcher, archive *report.Archive,
) *Server {
	return &Server{
		engine:     eng,
		dispatcher: d,
		archive:    archive,
		started:    time.Now(),
		sockets:    util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, PUT, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	// Health check and metrics
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Payment gateways and other external services call back here
	router.POST("/webhook/:userID/:token", s.handleWebhook)

	// WebSocket chat
	router.GET("/ws", s.handleWebSocket)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/message", s.handleMessage)
		v1.GET("/workflows", s.listWorkflows)
		v1.GET("/instances/:userID", s.listInstances)
		v1.GET("/reports/:userID/:reportID", s.getReport)
	}

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections.
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := s.sockets.Elements()
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
