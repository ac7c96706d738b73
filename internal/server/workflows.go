package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parleyhq/parley/pkg/api"
)

func (s *Server) listWorkflows(c *gin.Context) {
	wfs := s.engine.Registry().Workflows()
	c.JSON(http.StatusOK, api.WorkflowsListResponse{
		Workflows: wfs,
		Count:     len(wfs),
	})
}

func (s *Server) listInstances(c *gin.Context) {
	userID := api.UserID(c.Param("userID"))

	instances, err := s.engine.Instances(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("Failed to list instances: %v", err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	digests := make([]*api.InstanceDigest, len(instances))
	for i, in := range instances {
		digests[i] = in.Digest()
	}

	c.JSON(http.StatusOK, api.InstancesListResponse{
		Instances: digests,
		Count:     len(digests),
	})
}
