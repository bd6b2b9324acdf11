package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/energyos/espi-authz/internal/common/errorx"
	"github.com/energyos/espi-authz/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type beginAuthorizationRequest struct {
	ClientID         string `json:"client_id" binding:"required"`
	RetailCustomerID string `json:"retail_customer_id" binding:"required"`
	Scope            string `json:"scope" binding:"required"`
}

type authorizationPayload struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	ClientID         string    `json:"client_id"`
	RetailCustomerID string    `json:"retail_customer_id"`
	Scope            string    `json:"scope,omitempty"`
	TokenType        string    `json:"token_type,omitempty"`
	ExpiresIn        int64     `json:"expires_in,omitempty"`
	AuthorizationURI string    `json:"authorization_uri,omitempty"`
	ResourceURI      string    `json:"resource_uri,omitempty"`
	ErrorCode        string    `json:"error,omitempty"`
	ErrorDescription string    `json:"error_description,omitempty"`
	ErrorURI         string    `json:"error_uri,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func payloadFromAuthorization(a *storage.Authorization) authorizationPayload {
	return authorizationPayload{
		ID:               a.ID,
		Status:           string(a.Status),
		ClientID:         a.ClientID,
		RetailCustomerID: a.RetailCustomerID,
		Scope:            a.Scope,
		TokenType:        a.TokenType,
		ExpiresIn:        a.ExpiresIn,
		AuthorizationURI: a.AuthorizationURI,
		ResourceURI:      a.ResourceURI,
		ErrorCode:        a.ErrorCode,
		ErrorDescription: a.ErrorDescription,
		ErrorURI:         a.ErrorURI,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// BeginAuthorization starts the authorization-code flow for a retail
// customer and returns the redirect target for their user agent.
func (s *Server) BeginAuthorization(c *gin.Context) {
	var req beginAuthorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}

	client, found, err := s.store.FindByClientID(c.Request.Context(), req.ClientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid_request", "error_description": "unknown client"})
		return
	}

	result, err := s.flow.BeginAuthorization(c.Request.Context(), client, req.RetailCustomerID, req.Scope)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if s.metrics != nil {
		s.metrics.Transition(string(storage.StatusCreated))
	}
	c.JSON(http.StatusCreated, gin.H{
		"authorization_id": result.AuthorizationID,
		"redirect_url":     result.RedirectURL,
	})
}

// GetAuthorization returns one authorization record. Token material is
// never included in the response body.
func (s *Server) GetAuthorization(c *gin.Context) {
	authz, found, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid_request"})
		return
	}
	c.JSON(http.StatusOK, payloadFromAuthorization(authz))
}

// RevokeAuthorization revokes an Active authorization.
func (s *Server) RevokeAuthorization(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := s.flow.Revoke(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		s.writeError(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.Transition(string(storage.StatusRevoked))
	}
	c.Status(http.StatusNoContent)
}

// writeError maps the error taxonomy onto HTTP responses.
func (s *Server) writeError(c *gin.Context, err error) {
	var authErr *errorx.AuthError
	if errors.As(err, &authErr) {
		c.JSON(authErr.HTTPStatus, gin.H{
			"error":             authErr.ErrorType,
			"error_description": authErr.ErrorDescription,
		})
		return
	}
	s.logger.Error("unclassified error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
}
