package authz

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/energyos/espi-authz/internal/common/errorx"
	"github.com/energyos/espi-authz/internal/storage"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// httpExchanger calls the data custodian's token endpoint. Per ESPI the
// grant parameters travel in the query string and the client authenticates
// with HTTP Basic credentials.
type httpExchanger struct {
	tokenEndpoint string
	redirectURI   string
	client        *http.Client
	logger        *zap.Logger
}

// NewExchanger creates the production token exchange client.
func NewExchanger(logger *zap.Logger, tokenEndpoint, redirectURI string, timeout time.Duration) Exchanger {
	return &httpExchanger{
		tokenEndpoint: tokenEndpoint,
		redirectURI:   redirectURI,
		client:        &http.Client{Timeout: timeout},
		logger:        logger.Named("authz.exchange"),
	}
}

func (e *httpExchanger) Exchange(ctx context.Context, client *storage.RegisteredClient, code, redirectURI string) (*TokenResponse, error) {
	if redirectURI == "" {
		redirectURI = e.redirectURI
	}

	query := url.Values{}
	query.Set("redirect_uri", redirectURI)
	query.Set("code", code)
	query.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenEndpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errorx.ErrUpstream.WithDescription("build token request: %v", err)
	}
	req.SetBasicAuth(client.ClientID, client.ClientSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errorx.ErrUpstream.WithDescription("token endpoint unreachable: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorx.ErrUpstream.WithDescription("read token response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.logger.Warn("token endpoint returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("client_id", client.ClientID))
		return nil, errorx.ErrUpstream.WithDescription("token endpoint returned %d", resp.StatusCode)
	}

	token := parseTokenResponse(body)
	if token.AccessToken == "" {
		return nil, errorx.ErrUpstream.WithDescription("token response missing access_token")
	}
	return token, nil
}

// parseTokenResponse pulls the consumed fields out of the raw body. The ESPI
// extension fields ride alongside the RFC 6749 ones, so the body is read
// loosely rather than bound to a fixed struct.
func parseTokenResponse(body []byte) *TokenResponse {
	return &TokenResponse{
		AccessToken:      gjson.GetBytes(body, "access_token").String(),
		TokenType:        gjson.GetBytes(body, "token_type").String(),
		ExpiresIn:        gjson.GetBytes(body, "expires_in").Int(),
		RefreshToken:     gjson.GetBytes(body, "refresh_token").String(),
		Scope:            gjson.GetBytes(body, "scope").String(),
		AuthorizationURI: gjson.GetBytes(body, "authorization_uri").String(),
		ResourceURI:      gjson.GetBytes(body, "resource_uri").String(),
	}
}
