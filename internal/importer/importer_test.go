package importer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/energyos/espi-authz/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingFetcher struct {
	mu      sync.Mutex
	fetched []string
	tokens  []string
	block   chan struct{}
}

func (f *recordingFetcher) Fetch(_ context.Context, resourceURL, accessToken string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, resourceURL)
	f.tokens = append(f.tokens, accessToken)
	return nil
}

func (f *recordingFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.fetched...)
}

func activeAuthorization(t *testing.T, store *storage.MemoryStore) *storage.Authorization {
	t.Helper()
	authz := &storage.Authorization{
		ID:               uuid.NewString(),
		Status:           storage.StatusActive,
		AccessToken:      "opaque-token",
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
	}
	require.NoError(t, store.Create(context.Background(), authz))
	return authz
}

func TestImporter_FetchesWithAccessToken(t *testing.T) {
	store := storage.NewMemoryStore()
	authz := activeAuthorization(t, store)
	fetcher := &recordingFetcher{}

	imp := New(zap.NewNop(), store, fetcher, nil, 8, 2)
	defer imp.Stop()

	require.NoError(t, imp.Enqueue(Task{
		AuthorizationID: authz.ID,
		ResourceURL:     "https://dc.example/espi/1_1/resource/UsagePoint/1",
	}))

	assert.Eventually(t, func() bool {
		return len(fetcher.urls()) == 1
	}, time.Second, 10*time.Millisecond)

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	assert.Equal(t, "opaque-token", fetcher.tokens[0])
}

func TestImporter_RejectsRelativeResourceURL(t *testing.T) {
	store := storage.NewMemoryStore()
	authz := activeAuthorization(t, store)
	fetcher := &recordingFetcher{}

	imp := New(zap.NewNop(), store, fetcher, nil, 8, 1)
	require.NoError(t, imp.Enqueue(Task{
		AuthorizationID: authz.ID,
		ResourceURL:     "/relative/resource",
	}))
	imp.Stop()

	assert.Empty(t, fetcher.urls())
}

func TestImporter_SkipsNonActiveAuthorization(t *testing.T) {
	store := storage.NewMemoryStore()
	authz := &storage.Authorization{
		ID:               uuid.NewString(),
		Status:           storage.StatusRevoked,
		RetailCustomerID: "rc-1",
		ClientID:         "third_party",
	}
	require.NoError(t, store.Create(context.Background(), authz))
	fetcher := &recordingFetcher{}

	imp := New(zap.NewNop(), store, fetcher, nil, 8, 1)
	require.NoError(t, imp.Enqueue(Task{
		AuthorizationID: authz.ID,
		ResourceURL:     "https://dc.example/espi/1_1/resource/UsagePoint/1",
	}))
	imp.Stop()

	assert.Empty(t, fetcher.urls())
}

func TestImporter_QueueFull(t *testing.T) {
	store := storage.NewMemoryStore()
	authz := activeAuthorization(t, store)
	fetcher := &recordingFetcher{block: make(chan struct{})}

	imp := New(zap.NewNop(), store, fetcher, nil, 1, 1)

	task := Task{
		AuthorizationID: authz.ID,
		ResourceURL:     "https://dc.example/espi/1_1/resource/UsagePoint/1",
	}
	// First task occupies the single worker, second fills the queue.
	require.NoError(t, imp.Enqueue(task))
	var err error
	assert.Eventually(t, func() bool {
		err = imp.Enqueue(task)
		if err == nil {
			return false
		}
		return true
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrQueueFull)

	close(fetcher.block)
	imp.Stop()
}

func TestImporter_EnqueueAfterStop(t *testing.T) {
	store := storage.NewMemoryStore()
	imp := New(zap.NewNop(), store, &recordingFetcher{}, nil, 1, 1)
	imp.Stop()

	err := imp.Enqueue(Task{AuthorizationID: "x", ResourceURL: "https://dc.example/r/1"})
	assert.ErrorIs(t, err, ErrStopped)
}
