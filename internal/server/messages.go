package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/internal/engine"
	"github.com/parleyhq/parley/pkg/api"
	"github.com/parleyhq/parley/pkg/log"
)

func (s *Server) handleMessage(c *gin.Context) {
	var req api.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("Invalid JSON: %v", err),
			Status: http.StatusBadRequest,
		})
		return
	}

	msg := &api.Message{
		UserID:     api.UserID(strings.TrimSpace(string(req.UserID))),
		Text:       req.Text,
		Intent:     req.Intent,
		Channel:    api.ChannelAPI,
		ReceivedAt: s.engine.Now(),
	}

	res, err := s.engine.HandleMessage(c.Request.Context(), msg)
	if err != nil {
		if errors.Is(err, engine.ErrMissingUser) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{
				Error:  err.Error(),
				Status: http.StatusBadRequest,
			})
			return
		}
		slog.Error("Message not handled",
			log.UserID(msg.UserID), log.Error(err))
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("Failed to handle message: %v", err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, api.MessageAccepted{Response: res})
}
