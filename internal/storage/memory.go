package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/energyos/espi-authz/internal/common/errorx"
)

// MemoryStore implements Store in memory, for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	clients map[string]*RegisteredClient // keyed by internal id
	authzs  map[string]*Authorization    // keyed by authorization id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[string]*RegisteredClient),
		authzs:  make(map[string]*Authorization),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Save(_ context.Context, client *RegisteredClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.clients {
		if existing.ClientID == client.ClientID {
			// Update keeps identity and issuance timestamp.
			clone := cloneClient(client)
			clone.ID = existing.ID
			clone.ClientIDIssuedAt = existing.ClientIDIssuedAt
			s.clients[existing.ID] = clone
			client.ID = existing.ID
			client.ClientIDIssuedAt = existing.ClientIDIssuedAt
			return nil
		}
	}

	if client.ClientIDIssuedAt.IsZero() {
		client.ClientIDIssuedAt = time.Now().UTC()
	}
	s.clients[client.ID] = cloneClient(client)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*RegisteredClient, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, false, nil
	}
	return cloneClient(c), true, nil
}

func (s *MemoryStore) FindByClientID(_ context.Context, clientID string) (*RegisteredClient, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.ClientID == clientID {
			return cloneClient(c), true, nil
		}
	}
	return nil, false, nil
}

func (s *MemoryStore) FindAll(_ context.Context) ([]*RegisteredClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*RegisteredClient, 0, len(s.clients))
	for _, c := range s.clients {
		all = append(all, cloneClient(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ClientID < all[j].ClientID })
	return all, nil
}

func (s *MemoryStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
	return nil
}

func (s *MemoryStore) Create(_ context.Context, authz *Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if authz.CreatedAt.IsZero() {
		authz.CreatedAt = time.Now().UTC()
	}
	authz.UpdatedAt = authz.CreatedAt
	clone := *authz
	s.authzs[authz.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Authorization, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.authzs[id]
	if !ok {
		return nil, false, nil
	}
	clone := *a
	return &clone, true, nil
}

func (s *MemoryStore) UpdateIfStatus(_ context.Context, authz *Authorization, from AuthorizationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.authzs[authz.ID]
	if !ok || existing.Status != from {
		return errorx.ErrConflict.WithDescription("authorization %s is no longer %s", authz.ID, from)
	}
	authz.UpdatedAt = time.Now().UTC()
	clone := *authz
	clone.RetailCustomerID = existing.RetailCustomerID
	clone.CreatedAt = existing.CreatedAt
	s.authzs[authz.ID] = &clone
	return nil
}

func (s *MemoryStore) ConsumeState(_ context.Context, state string) (*Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.authzs {
		if a.State == state {
			if a.Status != StatusCreated {
				return nil, errorx.ErrConflict.WithDescription("state token already consumed")
			}
			a.State = ""
			a.UpdatedAt = time.Now().UTC()
			clone := *a
			return &clone, nil
		}
	}
	return nil, errorx.ErrNotFound.WithDescription("unknown state token")
}

func (s *MemoryStore) ListStale(_ context.Context, status AuthorizationStatus, cutoff time.Time) ([]*Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []*Authorization
	for _, a := range s.authzs {
		if a.Status == status && a.UpdatedAt.Before(cutoff) {
			clone := *a
			stale = append(stale, &clone)
		}
	}
	return stale, nil
}

func cloneClient(c *RegisteredClient) *RegisteredClient {
	clone := *c
	clone.AuthenticationMethods = append([]string{}, c.AuthenticationMethods...)
	clone.GrantTypes = append([]string{}, c.GrantTypes...)
	clone.RedirectURIs = append([]string{}, c.RedirectURIs...)
	clone.PostLogoutRedirectURIs = append([]string{}, c.PostLogoutRedirectURIs...)
	clone.Scopes = append([]string{}, c.Scopes...)
	return &clone
}
