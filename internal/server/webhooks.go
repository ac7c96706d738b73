package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/pkg/api"
)

// handleWebhook ingests an external event addressed to one wait token. An
// event that matches nothing still answers 200 so the sender does not
// replay a delivery the engine has deliberately dropped
func (s *Server) handleWebhook(c *gin.Context) {
	userID := api.UserID(c.Param("userID"))
	token := api.Token(c.Param("token"))

	var req api.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("Invalid JSON: %v", err),
			Status: http.StatusBadRequest,
		})
		return
	}

	env := &events.Envelope{
		Type:    req.Type,
		UserID:  userID,
		Token:   token,
		Payload: req.Payload,
	}

	res, err := s.dispatcher.Dispatch(c.Request.Context(), env)
	if err != nil {
		if isEventInvalid(err) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{
				Error:  err.Error(),
				Status: http.StatusBadRequest,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("Failed to dispatch event: %v", err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	if res == nil {
		c.JSON(http.StatusOK, api.EventAccepted{
			Status: api.EventStatusIgnored,
		})
		return
	}

	c.JSON(http.StatusOK, api.EventAccepted{
		Status:   api.EventStatusResumed,
		Response: res,
	})
}

func isEventInvalid(err error) bool {
	return errors.Is(err, api.ErrEventTypeEmpty) ||
		errors.Is(err, api.ErrEventUserEmpty) ||
		errors.Is(err, api.ErrEventTokenEmpty)
}
