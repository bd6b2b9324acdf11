package storage

import (
	"time"
)

// AuthorizationStatus is the lifecycle state of an Authorization record.
type AuthorizationStatus string

const (
	StatusCreated      AuthorizationStatus = "Created"
	StatusCodeReceived AuthorizationStatus = "CodeReceived"
	StatusActive       AuthorizationStatus = "Active"
	StatusDenied       AuthorizationStatus = "Denied"
	StatusErrored      AuthorizationStatus = "Errored"
	StatusRevoked      AuthorizationStatus = "Revoked"
)

// ClientSettings are the consent-policy settings of a registered client.
type ClientSettings struct {
	RequireConsent  bool
	RequireProofKey bool
}

// TokenSettings control the tokens issued on behalf of a registered client.
// ESPI compliance requires the reference (opaque) access token format.
type TokenSettings struct {
	AccessTokenFormat string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
}

// DefaultClientSettings returns the settings applied when a stored client has
// no settings document.
func DefaultClientSettings() ClientSettings {
	return ClientSettings{RequireConsent: false, RequireProofKey: false}
}

// DefaultTokenSettings returns the settings applied when a stored client has
// no token settings document.
func DefaultTokenSettings() TokenSettings {
	return TokenSettings{
		AccessTokenFormat: "reference",
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   60 * 24 * time.Hour,
	}
}

// RegisteredClient is the OAuth client metadata owned by the registration
// store. ID and ClientIDIssuedAt are immutable after creation; ClientID is
// immutable once registered.
type RegisteredClient struct {
	ID                     string
	ClientID               string
	ClientSecret           string // stored verbatim, replayed as Basic auth on token exchange; empty for public clients
	ClientIDIssuedAt       time.Time
	ClientSecretExpiresAt  *time.Time
	ClientName             string
	AuthenticationMethods  []string
	GrantTypes             []string
	RedirectURIs           []string
	PostLogoutRedirectURIs []string
	Scopes                 []string
	ClientSettings         ClientSettings
	TokenSettings          TokenSettings
}

// Authorization is one third-party authorization, from the initial redirect
// through token issuance, denial, failure or revocation.
//
// Field nullability tracks status: State is non-empty only while Created;
// token fields are populated only when Active; error fields only when
// Denied or Errored.
type Authorization struct {
	ID               string
	State            string
	Status           AuthorizationStatus
	Code             string // audit only, never replayed for validation
	GrantType        string
	AccessToken      string
	RefreshToken     string
	TokenType        string
	ExpiresIn        int64
	Scope            string
	ResourceURI      string
	AuthorizationURI string
	ErrorCode        string
	ErrorDescription string
	ErrorURI         string
	RetailCustomerID string
	ClientID         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// registeredClientRow is the persisted shape of RegisteredClient. Multi-value
// fields are delimited TEXT, settings are compact key=value documents; the
// explicit codec in codec.go maps between the two shapes.
type registeredClientRow struct {
	ID                     string     `gorm:"primaryKey;type:varchar(36)"`
	ClientID               string     `gorm:"column:client_id;type:varchar(100);uniqueIndex;not null"`
	ClientSecret           string     `gorm:"column:client_secret;type:varchar(200)"`
	ClientIDIssuedAt       time.Time  `gorm:"column:client_id_issued_at"`
	ClientSecretExpiresAt  *time.Time `gorm:"column:client_secret_expires_at"`
	ClientName             string     `gorm:"column:client_name;type:varchar(200)"`
	ClientAuthnMethods     string     `gorm:"column:client_authentication_methods;type:text"`
	AuthorizationGrants    string     `gorm:"column:authorization_grant_types;type:text"`
	RedirectURIs           string     `gorm:"column:redirect_uris;type:text"`
	PostLogoutRedirectURIs string     `gorm:"column:post_logout_redirect_uris;type:text"`
	Scopes                 string     `gorm:"column:scopes;type:text"`
	ClientSettings         string     `gorm:"column:client_settings;type:text"`
	TokenSettings          string     `gorm:"column:token_settings;type:text"`
}

func (registeredClientRow) TableName() string {
	return "oauth2_registered_client"
}

// authorizationRow is the persisted shape of Authorization.
type authorizationRow struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)"`
	State            string    `gorm:"column:state;type:varchar(100);index"`
	Status           string    `gorm:"column:status;type:varchar(20);not null;index"`
	Code             string    `gorm:"column:authorization_code;type:text"`
	GrantType        string    `gorm:"column:grant_type;type:varchar(50)"`
	AccessToken      string    `gorm:"column:access_token;type:text"`
	RefreshToken     string    `gorm:"column:refresh_token;type:text"`
	TokenType        string    `gorm:"column:token_type;type:varchar(20)"`
	ExpiresIn        int64     `gorm:"column:expires_in"`
	Scope            string    `gorm:"column:scope;type:text"`
	ResourceURI      string    `gorm:"column:resource_uri;type:text"`
	AuthorizationURI string    `gorm:"column:authorization_uri;type:text"`
	ErrorCode        string    `gorm:"column:error_code;type:varchar(100)"`
	ErrorDescription string    `gorm:"column:error_description;type:text"`
	ErrorURI         string    `gorm:"column:error_uri;type:text"`
	RetailCustomerID string    `gorm:"column:retail_customer_id;type:varchar(36);index;not null"`
	ClientID         string    `gorm:"column:client_id;type:varchar(100);not null"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (authorizationRow) TableName() string {
	return "oauth2_authorization"
}
