package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/energyos/espi-authz/internal/common/config"
	"github.com/energyos/espi-authz/internal/common/errorx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Type:   "sqlite",
		DBName: filepath.Join(t.TempDir(), "authz.db"),
	}
	s, err := NewSQLite(zap.NewNop(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_ClientRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	c := newTestClient("third_party")
	c.Scopes = []string{
		"openid",
		"FB=4_5_15;IntervalDuration=3600;BlockDuration=monthly;HistoryLength=13",
	}
	require.NoError(t, s.Save(ctx, c))

	got, found, err := s.FindByClientID(ctx, "third_party")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.AuthenticationMethods, got.AuthenticationMethods)
	assert.Equal(t, c.GrantTypes, got.GrantTypes)
	assert.Equal(t, c.RedirectURIs, got.RedirectURIs)
	assert.Equal(t, c.Scopes, got.Scopes)
	assert.Equal(t, c.ClientSettings, got.ClientSettings)
	assert.Equal(t, c.TokenSettings, got.TokenSettings)
	assert.Empty(t, got.PostLogoutRedirectURIs)
	assert.NotNil(t, got.PostLogoutRedirectURIs)
}

func TestSQLiteStore_EmptyCollectionsRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	c := newTestClient("bare_client")
	c.AuthenticationMethods = []string{}
	c.GrantTypes = []string{}
	c.RedirectURIs = []string{}
	c.Scopes = []string{}
	require.NoError(t, s.Save(ctx, c))

	got, found, err := s.FindByClientID(ctx, "bare_client")
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, got.AuthenticationMethods)
	assert.Empty(t, got.GrantTypes)
	assert.Empty(t, got.RedirectURIs)
	assert.Empty(t, got.Scopes)
}

func TestSQLiteStore_SaveUpdatesKeepIdentity(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	c := newTestClient("third_party")
	require.NoError(t, s.Save(ctx, c))
	originalID := c.ID
	issuedAt := c.ClientIDIssuedAt

	update := newTestClient("third_party")
	update.ClientName = "Renamed"
	update.Scopes = []string{"profile"}
	require.NoError(t, s.Save(ctx, update))

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, originalID, all[0].ID)
	assert.WithinDuration(t, issuedAt, all[0].ClientIDIssuedAt, time.Second)
	assert.Equal(t, "Renamed", all[0].ClientName)
	assert.Equal(t, []string{"profile"}, all[0].Scopes)
}

func TestSQLiteStore_DeleteByID(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	c := newTestClient("third_party")
	require.NoError(t, s.Save(ctx, c))
	require.NoError(t, s.DeleteByID(ctx, c.ID))

	_, found, err := s.FindByClientID(ctx, "third_party")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_ConsumeStateSingleUse(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	authz := &Authorization{
		ID:               uuid.NewString(),
		State:            "state-token",
		Status:           StatusCreated,
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
	}
	require.NoError(t, s.Create(ctx, authz))

	got, err := s.ConsumeState(ctx, "state-token")
	require.NoError(t, err)
	assert.Empty(t, got.State)
	assert.Equal(t, authz.ID, got.ID)

	_, err = s.ConsumeState(ctx, "state-token")
	assert.ErrorIs(t, err, errorx.ErrNotFound)
}

func TestSQLiteStore_UpdateIfStatusTransitionsRecord(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	authz := &Authorization{
		ID:               uuid.NewString(),
		State:            "state-token",
		Status:           StatusCreated,
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
	}
	require.NoError(t, s.Create(ctx, authz))

	authz.State = ""
	authz.Status = StatusActive
	authz.AccessToken = "opaque"
	authz.TokenType = "Bearer"
	require.NoError(t, s.UpdateIfStatus(ctx, authz, StatusCreated))

	got, found, err := s.Get(ctx, authz.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, "opaque", got.AccessToken)
	assert.Empty(t, got.State)

	missing := &Authorization{ID: uuid.NewString(), Status: StatusActive}
	assert.ErrorIs(t, s.UpdateIfStatus(ctx, missing, StatusCreated), errorx.ErrConflict)
}

func TestSQLiteStore_UpdateIfStatusGuardsTransitions(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	authz := &Authorization{
		ID:               uuid.NewString(),
		Status:           StatusCodeReceived,
		Code:             "abc",
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
	}
	require.NoError(t, s.Create(ctx, authz))

	// Guarded on a stale source status the write matches zero rows.
	attempt := *authz
	attempt.Status = StatusErrored
	attempt.ErrorCode = "authorization_expired"
	assert.ErrorIs(t, s.UpdateIfStatus(ctx, &attempt, StatusCreated), errorx.ErrConflict)

	got, _, err := s.Get(ctx, authz.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCodeReceived, got.Status)
	assert.Empty(t, got.ErrorCode)

	require.NoError(t, s.UpdateIfStatus(ctx, &attempt, StatusCodeReceived))
	got, _, err = s.Get(ctx, authz.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusErrored, got.Status)
	assert.Equal(t, "authorization_expired", got.ErrorCode)
}

func TestSQLiteStore_ListStaleFiltersStatusAndAge(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	stale := &Authorization{
		ID:               uuid.NewString(),
		Status:           StatusCodeReceived,
		Code:             "abc",
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
		CreatedAt:        time.Now().Add(-2 * time.Hour),
	}
	fresh := &Authorization{
		ID:               uuid.NewString(),
		Status:           StatusCodeReceived,
		Code:             "def",
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
	}
	require.NoError(t, s.Create(ctx, stale))
	require.NoError(t, s.Create(ctx, fresh))

	got, err := s.ListStale(ctx, StatusCodeReceived, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)

	got, err = s.ListStale(ctx, StatusCreated, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}
