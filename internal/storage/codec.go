package storage

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// listDelimiter joins multi-valued client fields into one TEXT column.
// Values never contain commas (they are method names, grant types, URIs and
// scope tokens), so splitting is unambiguous.
const listDelimiter = ","

func joinList(values []string) string {
	return strings.Join(values, listDelimiter)
}

// splitList is the inverse of joinList. An empty or NULL column yields an
// empty, non-nil slice so an empty collection round-trips as empty.
func splitList(column string) []string {
	if column == "" {
		return []string{}
	}
	return strings.Split(column, listDelimiter)
}

// encodeSettings renders a settings map as a compact key=value document with
// deterministic key order.
func encodeSettings(settings map[string]string) string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(settings[k])
	}
	return b.String()
}

// decodeSettings parses a key=value document. Malformed lines are skipped
// rather than failing the read; a missing document yields an empty map and
// the caller applies defaults.
func decodeSettings(doc string) map[string]string {
	settings := make(map[string]string)
	for _, line := range strings.Split(doc, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found || key == "" {
			continue
		}
		settings[key] = value
	}
	return settings
}

func encodeClientSettings(s ClientSettings) string {
	return encodeSettings(map[string]string{
		"require_authorization_consent": strconv.FormatBool(s.RequireConsent),
		"require_proof_key":             strconv.FormatBool(s.RequireProofKey),
	})
}

func decodeClientSettings(doc string) ClientSettings {
	s := DefaultClientSettings()
	kv := decodeSettings(doc)
	if v, ok := kv["require_authorization_consent"]; ok {
		s.RequireConsent = v == "true"
	}
	if v, ok := kv["require_proof_key"]; ok {
		s.RequireProofKey = v == "true"
	}
	return s
}

func encodeTokenSettings(s TokenSettings) string {
	return encodeSettings(map[string]string{
		"access_token_format":        s.AccessTokenFormat,
		"access_token_time_to_live":  strconv.FormatInt(int64(s.AccessTokenTTL/time.Second), 10),
		"refresh_token_time_to_live": strconv.FormatInt(int64(s.RefreshTokenTTL/time.Second), 10),
	})
}

func decodeTokenSettings(doc string) TokenSettings {
	s := DefaultTokenSettings()
	kv := decodeSettings(doc)
	if v, ok := kv["access_token_format"]; ok && v != "" {
		s.AccessTokenFormat = v
	}
	if v, ok := kv["access_token_time_to_live"]; ok {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 {
			s.AccessTokenTTL = time.Duration(secs) * time.Second
		}
	}
	if v, ok := kv["refresh_token_time_to_live"]; ok {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 {
			s.RefreshTokenTTL = time.Duration(secs) * time.Second
		}
	}
	return s
}

func clientToRow(c *RegisteredClient) *registeredClientRow {
	return &registeredClientRow{
		ID:                     c.ID,
		ClientID:               c.ClientID,
		ClientSecret:           c.ClientSecret,
		ClientIDIssuedAt:       c.ClientIDIssuedAt,
		ClientSecretExpiresAt:  c.ClientSecretExpiresAt,
		ClientName:             c.ClientName,
		ClientAuthnMethods:     joinList(c.AuthenticationMethods),
		AuthorizationGrants:    joinList(c.GrantTypes),
		RedirectURIs:           joinList(c.RedirectURIs),
		PostLogoutRedirectURIs: joinList(c.PostLogoutRedirectURIs),
		Scopes:                 joinList(c.Scopes),
		ClientSettings:         encodeClientSettings(c.ClientSettings),
		TokenSettings:          encodeTokenSettings(c.TokenSettings),
	}
}

func clientFromRow(row *registeredClientRow) *RegisteredClient {
	return &RegisteredClient{
		ID:                     row.ID,
		ClientID:               row.ClientID,
		ClientSecret:           row.ClientSecret,
		ClientIDIssuedAt:       row.ClientIDIssuedAt,
		ClientSecretExpiresAt:  row.ClientSecretExpiresAt,
		ClientName:             row.ClientName,
		AuthenticationMethods:  splitList(row.ClientAuthnMethods),
		GrantTypes:             splitList(row.AuthorizationGrants),
		RedirectURIs:           splitList(row.RedirectURIs),
		PostLogoutRedirectURIs: splitList(row.PostLogoutRedirectURIs),
		Scopes:                 splitList(row.Scopes),
		ClientSettings:         decodeClientSettings(row.ClientSettings),
		TokenSettings:          decodeTokenSettings(row.TokenSettings),
	}
}

func authorizationToRow(a *Authorization) *authorizationRow {
	return &authorizationRow{
		ID:               a.ID,
		State:            a.State,
		Status:           string(a.Status),
		Code:             a.Code,
		GrantType:        a.GrantType,
		AccessToken:      a.AccessToken,
		RefreshToken:     a.RefreshToken,
		TokenType:        a.TokenType,
		ExpiresIn:        a.ExpiresIn,
		Scope:            a.Scope,
		ResourceURI:      a.ResourceURI,
		AuthorizationURI: a.AuthorizationURI,
		ErrorCode:        a.ErrorCode,
		ErrorDescription: a.ErrorDescription,
		ErrorURI:         a.ErrorURI,
		RetailCustomerID: a.RetailCustomerID,
		ClientID:         a.ClientID,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func authorizationFromRow(row *authorizationRow) *Authorization {
	return &Authorization{
		ID:               row.ID,
		State:            row.State,
		Status:           AuthorizationStatus(row.Status),
		Code:             row.Code,
		GrantType:        row.GrantType,
		AccessToken:      row.AccessToken,
		RefreshToken:     row.RefreshToken,
		TokenType:        row.TokenType,
		ExpiresIn:        row.ExpiresIn,
		Scope:            row.Scope,
		ResourceURI:      row.ResourceURI,
		AuthorizationURI: row.AuthorizationURI,
		ErrorCode:        row.ErrorCode,
		ErrorDescription: row.ErrorDescription,
		ErrorURI:         row.ErrorURI,
		RetailCustomerID: row.RetailCustomerID,
		ClientID:         row.ClientID,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

// mutableClientColumns are the columns written on update. Identity and the
// issuance timestamp are written only on insert.
var mutableClientColumns = []string{
	"client_secret",
	"client_secret_expires_at",
	"client_name",
	"client_authentication_methods",
	"authorization_grant_types",
	"redirect_uris",
	"post_logout_redirect_uris",
	"scopes",
	"client_settings",
	"token_settings",
}
