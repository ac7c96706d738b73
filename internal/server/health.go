package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	app "github.com/parleyhq/parley"
	"github.com/parleyhq/parley/pkg/api"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Service: app.Name,
		Version: app.Version,
		Status:  "healthy",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}
