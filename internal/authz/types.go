package authz

import (
	"context"

	"github.com/energyos/espi-authz/internal/storage"
)

// TokenResponse is the consumed subset of the data custodian's token
// endpoint response, including the ESPI extension fields.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
	AuthorizationURI string `json:"authorization_uri"`
	ResourceURI      string `json:"resource_uri"`
}

// Exchanger performs the outbound authorization-code to token exchange.
type Exchanger interface {
	Exchange(ctx context.Context, client *storage.RegisteredClient, code, redirectURI string) (*TokenResponse, error)
}

// ClientResolver resolves an authorization's client reference to its
// registered metadata.
type ClientResolver interface {
	FindByClientID(ctx context.Context, clientID string) (*storage.RegisteredClient, bool, error)
}

// PrincipalResolver maps an authenticated session to a retail customer id.
// Implemented by the surrounding application; the state machine only
// consumes the resolved id.
type PrincipalResolver interface {
	ResolveRetailCustomer(ctx context.Context, sessionID string) (string, error)
}

// BeginResult is returned by BeginAuthorization: the persisted record id,
// its single-use state token and the redirect target for the user agent.
type BeginResult struct {
	AuthorizationID string
	State           string
	RedirectURL     string
}
