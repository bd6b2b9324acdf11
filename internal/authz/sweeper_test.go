package authz

import (
	"context"
	"testing"
	"time"

	"github.com/energyos/espi-authz/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweepOnce_ExpiresOnlyStaleCreated(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	stale := &storage.Authorization{
		ID:               uuid.NewString(),
		State:            "stale-state",
		Status:           storage.StatusCreated,
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
		CreatedAt:        time.Now().Add(-2 * time.Hour),
	}
	fresh := &storage.Authorization{
		ID:               uuid.NewString(),
		State:            "fresh-state",
		Status:           storage.StatusCreated,
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
	}
	active := &storage.Authorization{
		ID:               uuid.NewString(),
		Status:           storage.StatusActive,
		AccessToken:      "opaque",
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
		CreatedAt:        time.Now().Add(-3 * time.Hour),
	}
	require.NoError(t, store.Create(ctx, stale))
	require.NoError(t, store.Create(ctx, fresh))
	require.NoError(t, store.Create(ctx, active))

	sweeper := NewSweeper(zap.NewNop(), store, time.Hour, time.Minute)
	sweeper.SweepOnce(ctx)

	got, _, err := store.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusErrored, got.Status)
	assert.Equal(t, "authorization_expired", got.ErrorCode)
	assert.Empty(t, got.State)

	got, _, err = store.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCreated, got.Status)
	assert.Equal(t, "fresh-state", got.State)

	got, _, err = store.Get(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusActive, got.Status)
}

func TestSweepOnce_ExpiresStaleCodeReceived(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	// A CodeReceived record older than the TTL belongs to a process that
	// died between persisting the code and finishing the exchange.
	orphaned := &storage.Authorization{
		ID:               uuid.NewString(),
		Status:           storage.StatusCodeReceived,
		Code:             "abc",
		GrantType:        "authorization_code",
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
		CreatedAt:        time.Now().Add(-2 * time.Hour),
	}
	inflight := &storage.Authorization{
		ID:               uuid.NewString(),
		Status:           storage.StatusCodeReceived,
		Code:             "def",
		GrantType:        "authorization_code",
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
	}
	require.NoError(t, store.Create(ctx, orphaned))
	require.NoError(t, store.Create(ctx, inflight))

	sweeper := NewSweeper(zap.NewNop(), store, time.Hour, time.Minute)
	sweeper.SweepOnce(ctx)

	got, _, err := store.Get(ctx, orphaned.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusErrored, got.Status)
	assert.Equal(t, "authorization_expired", got.ErrorCode)
	assert.Empty(t, got.AccessToken)

	got, _, err = store.Get(ctx, inflight.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCodeReceived, got.Status)
}

// staleSnapshotStore reports a record as a stale Created candidate even
// though the live row has already moved on, modeling a callback that
// consumed the token between the sweep's list and its write.
type staleSnapshotStore struct {
	storage.Store
	snapshot *storage.Authorization
}

func (s *staleSnapshotStore) ListStale(ctx context.Context, status storage.AuthorizationStatus, cutoff time.Time) ([]*storage.Authorization, error) {
	if status == storage.StatusCreated {
		clone := *s.snapshot
		return []*storage.Authorization{&clone}, nil
	}
	return s.Store.ListStale(ctx, status, cutoff)
}

func TestSweepOnce_SkipsRecordConsumedBetweenListAndWrite(t *testing.T) {
	inner := storage.NewMemoryStore()
	ctx := context.Background()

	authz := &storage.Authorization{
		ID:               uuid.NewString(),
		State:            "state-token",
		Status:           storage.StatusCreated,
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
	}
	require.NoError(t, inner.Create(ctx, authz))
	snapshot := *authz
	snapshot.CreatedAt = time.Now().Add(-2 * time.Hour)

	// The live record advances past Created before the sweep writes.
	consumed, err := inner.ConsumeState(ctx, "state-token")
	require.NoError(t, err)
	consumed.Status = storage.StatusCodeReceived
	consumed.Code = "abc"
	require.NoError(t, inner.UpdateIfStatus(ctx, consumed, storage.StatusCreated))

	sweeper := NewSweeper(zap.NewNop(), &staleSnapshotStore{Store: inner, snapshot: &snapshot}, time.Hour, time.Minute)
	sweeper.SweepOnce(ctx)

	got, _, err := inner.Get(ctx, authz.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCodeReceived, got.Status)
	assert.Equal(t, "abc", got.Code)
	assert.Empty(t, got.ErrorCode)
}

func TestSweeper_StartStop(t *testing.T) {
	store := storage.NewMemoryStore()
	sweeper := NewSweeper(zap.NewNop(), store, time.Hour, 10*time.Millisecond)
	sweeper.Start()
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()
}
