package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/internal/report"
	"github.com/parleyhq/parley/pkg/api"
)

// getReport serves an archived report document. The URL shape matches the
// links the render step hands out, so reports stay fetchable for as long
// as the archive retains them
func (s *Server) getReport(c *gin.Context) {
	userID := api.UserID(c.Param("userID"))
	reportID := c.Param("reportID")

	doc, err := s.archive.Get(c.Request.Context(), userID, reportID)
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{
				Error:  fmt.Sprintf("Report not found: %s", reportID),
				Status: http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("Failed to fetch report: %v", err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, doc)
}
