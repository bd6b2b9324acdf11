package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/energyos/espi-authz/internal/common/errorx"
	"github.com/energyos/espi-authz/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Callback is the data custodian's redirect back into this service. The
// detailed upstream error fields are retained on the record for audit; the
// browser only ever sees a coarse reason on the failure page.
func (s *Server) Callback(c *gin.Context) {
	authz, err := s.flow.HandleCallback(
		c.Request.Context(),
		c.Query("state"),
		c.Query("code"),
		c.Query("error"),
		c.Query("error_description"),
		c.Query("error_uri"),
	)
	if err != nil {
		s.logger.Info("callback rejected", zap.Error(err))
		s.redirectFailure(c, coarseReason(err))
		return
	}

	if s.metrics != nil {
		s.metrics.Transition(string(authz.Status))
	}

	if authz.Status == storage.StatusDenied {
		s.redirectFailure(c, "access_denied")
		return
	}
	c.Redirect(http.StatusFound, s.cfg.Authz.SuccessRedirect)
}

func (s *Server) redirectFailure(c *gin.Context, reason string) {
	target := s.cfg.Authz.FailureRedirect + "?reason=" + url.QueryEscape(reason)
	c.Redirect(http.StatusFound, target)
}

// coarseReason maps internal failures to the handful of reasons exposed to
// the user agent.
func coarseReason(err error) string {
	switch {
	case errors.Is(err, errorx.ErrValidation):
		return "invalid_request"
	case errors.Is(err, errorx.ErrConflict):
		return "invalid_request"
	case errors.Is(err, errorx.ErrNotFound):
		return "invalid_request"
	default:
		return "server_error"
	}
}
