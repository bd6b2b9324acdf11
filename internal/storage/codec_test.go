package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestListCodec_RoundTrip(t *testing.T) {
	values := []string{"client_secret_basic", "client_secret_post"}
	assert.Equal(t, values, splitList(joinList(values)))
}

func TestListCodec_EmptyIsNotNull(t *testing.T) {
	got := splitList(joinList([]string{}))
	assert.NotNil(t, got)
	assert.Empty(t, got)

	// A NULL column reads back the same as an empty one.
	assert.Empty(t, splitList(""))
}

func TestClientSettingsCodec_RoundTrip(t *testing.T) {
	s := ClientSettings{RequireConsent: true, RequireProofKey: false}
	assert.Equal(t, s, decodeClientSettings(encodeClientSettings(s)))
}

func TestTokenSettingsCodec_RoundTrip(t *testing.T) {
	s := TokenSettings{
		AccessTokenFormat: "reference",
		AccessTokenTTL:    30 * time.Minute,
		RefreshTokenTTL:   14 * 24 * time.Hour,
	}
	assert.Equal(t, s, decodeTokenSettings(encodeTokenSettings(s)))
}

func TestSettingsCodec_MissingDocumentYieldsDefaults(t *testing.T) {
	assert.Equal(t, DefaultClientSettings(), decodeClientSettings(""))
	assert.Equal(t, DefaultTokenSettings(), decodeTokenSettings(""))
}

func TestSettingsCodec_MalformedLinesSkipped(t *testing.T) {
	s := decodeTokenSettings("garbage\naccess_token_time_to_live=900\n=nokey")
	assert.Equal(t, 15*time.Minute, s.AccessTokenTTL)
	assert.Equal(t, DefaultTokenSettings().RefreshTokenTTL, s.RefreshTokenTTL)
}

func TestClientRowCodec_RoundTrip(t *testing.T) {
	c := &RegisteredClient{
		ID:                    "11111111-2222-3333-4444-555555555555",
		ClientID:              "third_party",
		ClientSecret:          "$2a$10$secret",
		ClientIDIssuedAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		ClientName:            "Example Third Party",
		AuthenticationMethods: []string{"client_secret_basic"},
		GrantTypes:            []string{"authorization_code", "refresh_token"},
		RedirectURIs:          []string{"https://thirdparty.example/cb"},
		PostLogoutRedirectURIs: []string{},
		Scopes: []string{
			"openid",
			"FB=4_5_15;IntervalDuration=3600;BlockDuration=monthly;HistoryLength=13",
		},
		ClientSettings: ClientSettings{RequireConsent: true},
		TokenSettings:  DefaultTokenSettings(),
	}

	got := clientFromRow(clientToRow(c))
	assert.Equal(t, c, got)
}

func TestAuthorizationRowCodec_RoundTrip(t *testing.T) {
	a := &Authorization{
		ID:               "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		Status:           StatusActive,
		Code:             "abc",
		GrantType:        "authorization_code",
		AccessToken:      "opaque-token",
		RefreshToken:     "refresh",
		TokenType:        "Bearer",
		ExpiresIn:        3600,
		Scope:            "FB=4_5_15;IntervalDuration=3600;BlockDuration=monthly;HistoryLength=13",
		ResourceURI:      "https://datacustodian.example/espi/1_1/resource/Batch/Subscription/1",
		AuthorizationURI: "https://datacustodian.example/espi/1_1/resource/Authorization/1",
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
		CreatedAt:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC),
	}
	assert.Equal(t, a, authorizationFromRow(authorizationToRow(a)))
}
