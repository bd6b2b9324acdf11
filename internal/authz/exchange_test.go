package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/energyos/espi-authz/internal/common/errorx"
	"github.com/energyos/espi-authz/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func exchangeClient() *storage.RegisteredClient {
	return &storage.RegisteredClient{
		ClientID:     "third_party",
		ClientSecret: "secret",
	}
}

func TestExchange_SendsQueryParamsAndBasicAuth(t *testing.T) {
	var gotReq *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "opaque-token",
			"token_type": "Bearer",
			"expires_in": 3600,
			"refresh_token": "refresh",
			"scope": "openid",
			"authorization_uri": "https://dc.example/espi/1_1/resource/Authorization/1",
			"resource_uri": "https://dc.example/espi/1_1/resource/Batch/Subscription/1"
		}`))
	}))
	defer srv.Close()

	ex := NewExchanger(zap.NewNop(), srv.URL, "https://tp.example/cb", time.Second)
	token, err := ex.Exchange(context.Background(), exchangeClient(), "abc", "")
	require.NoError(t, err)

	require.NotNil(t, gotReq)
	assert.Equal(t, http.MethodPost, gotReq.Method)
	q := gotReq.URL.Query()
	assert.Equal(t, "abc", q.Get("code"))
	assert.Equal(t, "authorization_code", q.Get("grant_type"))
	assert.Equal(t, "https://tp.example/cb", q.Get("redirect_uri"))

	user, pass, ok := gotReq.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "third_party", user)
	assert.Equal(t, "secret", pass)

	assert.Equal(t, "opaque-token", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, int64(3600), token.ExpiresIn)
	assert.Equal(t, "https://dc.example/espi/1_1/resource/Batch/Subscription/1", token.ResourceURI)
	assert.Equal(t, "https://dc.example/espi/1_1/resource/Authorization/1", token.AuthorizationURI)
}

func TestExchange_Non2xxIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ex := NewExchanger(zap.NewNop(), srv.URL, "https://tp.example/cb", time.Second)
	_, err := ex.Exchange(context.Background(), exchangeClient(), "abc", "")
	assert.ErrorIs(t, err, errorx.ErrUpstream)
}

func TestExchange_MissingAccessTokenIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type": "Bearer"}`))
	}))
	defer srv.Close()

	ex := NewExchanger(zap.NewNop(), srv.URL, "https://tp.example/cb", time.Second)
	_, err := ex.Exchange(context.Background(), exchangeClient(), "abc", "")
	assert.ErrorIs(t, err, errorx.ErrUpstream)
}

func TestExchange_UnreachableEndpointIsUpstreamError(t *testing.T) {
	ex := NewExchanger(zap.NewNop(), "http://127.0.0.1:1", "https://tp.example/cb", 200*time.Millisecond)
	_, err := ex.Exchange(context.Background(), exchangeClient(), "abc", "")
	assert.ErrorIs(t, err, errorx.ErrUpstream)
}
