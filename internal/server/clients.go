package server

import (
	"net/http"
	"time"

	"github.com/energyos/espi-authz/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// clientPayload is the admin API shape of a registered client.
type clientPayload struct {
	ID                     string     `json:"id,omitempty"`
	ClientID               string     `json:"client_id" binding:"required"`
	ClientSecret           string     `json:"client_secret,omitempty"`
	ClientSecretExpiresAt  *time.Time `json:"client_secret_expires_at,omitempty"`
	ClientName             string     `json:"client_name"`
	AuthenticationMethods  []string   `json:"client_authentication_methods"`
	GrantTypes             []string   `json:"authorization_grant_types"`
	RedirectURIs           []string   `json:"redirect_uris"`
	PostLogoutRedirectURIs []string   `json:"post_logout_redirect_uris"`
	Scopes                 []string   `json:"scopes"`
	RequireConsent         bool       `json:"require_authorization_consent"`
	AccessTokenFormat      string     `json:"access_token_format,omitempty"`
	AccessTokenTTLSeconds  int64      `json:"access_token_time_to_live,omitempty"`
	RefreshTokenTTLSeconds int64      `json:"refresh_token_time_to_live,omitempty"`
	IssuedAt               time.Time  `json:"client_id_issued_at,omitempty"`
}

func payloadFromClient(c *storage.RegisteredClient) clientPayload {
	return clientPayload{
		ID:                     c.ID,
		ClientID:               c.ClientID,
		ClientSecretExpiresAt:  c.ClientSecretExpiresAt,
		ClientName:             c.ClientName,
		AuthenticationMethods:  c.AuthenticationMethods,
		GrantTypes:             c.GrantTypes,
		RedirectURIs:           c.RedirectURIs,
		PostLogoutRedirectURIs: c.PostLogoutRedirectURIs,
		Scopes:                 c.Scopes,
		RequireConsent:         c.ClientSettings.RequireConsent,
		AccessTokenFormat:      c.TokenSettings.AccessTokenFormat,
		AccessTokenTTLSeconds:  int64(c.TokenSettings.AccessTokenTTL / time.Second),
		RefreshTokenTTLSeconds: int64(c.TokenSettings.RefreshTokenTTL / time.Second),
		IssuedAt:               c.ClientIDIssuedAt,
	}
}

func (p *clientPayload) toClient() *storage.RegisteredClient {
	tokenSettings := storage.DefaultTokenSettings()
	if p.AccessTokenFormat != "" {
		tokenSettings.AccessTokenFormat = p.AccessTokenFormat
	}
	if p.AccessTokenTTLSeconds > 0 {
		tokenSettings.AccessTokenTTL = time.Duration(p.AccessTokenTTLSeconds) * time.Second
	}
	if p.RefreshTokenTTLSeconds > 0 {
		tokenSettings.RefreshTokenTTL = time.Duration(p.RefreshTokenTTLSeconds) * time.Second
	}

	return &storage.RegisteredClient{
		ID:                     uuid.NewString(),
		ClientID:               p.ClientID,
		ClientSecret:           p.ClientSecret,
		ClientSecretExpiresAt:  p.ClientSecretExpiresAt,
		ClientName:             p.ClientName,
		AuthenticationMethods:  orEmpty(p.AuthenticationMethods),
		GrantTypes:             orEmpty(p.GrantTypes),
		RedirectURIs:           orEmpty(p.RedirectURIs),
		PostLogoutRedirectURIs: orEmpty(p.PostLogoutRedirectURIs),
		Scopes:                 orEmpty(p.Scopes),
		ClientSettings: storage.ClientSettings{
			RequireConsent: p.RequireConsent,
		},
		TokenSettings: tokenSettings,
	}
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// SaveClient registers a new client or updates the mutable fields of an
// existing one, keyed by client_id.
func (s *Server) SaveClient(c *gin.Context) {
	var payload clientPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}

	client := payload.toClient()
	if err := s.store.Save(c.Request.Context(), client); err != nil {
		s.logger.Error("failed to save client", zap.String("client_id", payload.ClientID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, payloadFromClient(client))
}

// ListClients returns all registered clients ordered by client_id.
func (s *Server) ListClients(c *gin.Context) {
	clients, err := s.store.FindAll(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list clients", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	payloads := make([]clientPayload, 0, len(clients))
	for _, client := range clients {
		payloads = append(payloads, payloadFromClient(client))
	}
	c.JSON(http.StatusOK, payloads)
}

// GetClient returns one client by its public client_id.
func (s *Server) GetClient(c *gin.Context) {
	client, found, err := s.store.FindByClientID(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid_request"})
		return
	}
	c.JSON(http.StatusOK, payloadFromClient(client))
}

// DeleteClient hard-deletes a client by internal id. Authorization records
// are left in place.
func (s *Server) DeleteClient(c *gin.Context) {
	if err := s.store.DeleteByID(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Login exchanges the admin credentials for a bearer token.
func (s *Server) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if req.Username != s.cfg.Admin.Username ||
		bcrypt.CompareHashAndPassword([]byte(s.cfg.Admin.Password), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	token, err := s.jwt.GenerateToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
