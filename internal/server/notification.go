package server

import (
	"errors"
	"net/http"

	"github.com/energyos/espi-authz/internal/importer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type notificationRequest struct {
	AuthorizationID string   `json:"authorization_id" binding:"required"`
	Resources       []string `json:"resources" binding:"required,min=1"`
}

// Notify accepts a batch-ready notification from the data custodian. Each
// resource URL is queued for asynchronous import; the custodian gets a 202
// as soon as everything is enqueued, or a 503 to retry later when the
// queue is full.
func (s *Server) Notify(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}

	if s.importer == nil {
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily_unavailable"})
		return
	}

	for _, resourceURL := range req.Resources {
		err := s.importer.Enqueue(importer.Task{
			AuthorizationID: req.AuthorizationID,
			ResourceURL:     resourceURL,
		})
		if err != nil {
			s.logger.Warn("notification rejected",
				zap.String("authorization_id", req.AuthorizationID),
				zap.Error(err))
			if errors.Is(err, importer.ErrQueueFull) || errors.Is(err, importer.ErrStopped) {
				c.Header("Retry-After", "30")
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily_unavailable"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
			return
		}
	}
	c.Status(http.StatusAccepted)
}
