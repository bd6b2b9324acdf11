package storage

import (
	"context"
	"time"
)

// ClientStore persists registered OAuth client metadata.
type ClientStore interface {
	// Save inserts the client when its clientId is new, otherwise updates the
	// mutable fields of the existing row. Identity and the issuance timestamp
	// never change on update.
	Save(ctx context.Context, client *RegisteredClient) error

	// FindByID returns the client with the given internal id, or ok=false.
	FindByID(ctx context.Context, id string) (*RegisteredClient, bool, error)

	// FindByClientID returns the client with the given public client_id, or ok=false.
	FindByClientID(ctx context.Context, clientID string) (*RegisteredClient, bool, error)

	// FindAll returns all registered clients ordered by client_id.
	FindAll(ctx context.Context) ([]*RegisteredClient, error)

	// DeleteByID hard-deletes the client. Authorization records are not cascaded.
	DeleteByID(ctx context.Context, id string) error
}

// AuthorizationStore persists in-flight and completed authorizations.
type AuthorizationStore interface {
	// Create persists a new authorization record.
	Create(ctx context.Context, authz *Authorization) error

	// Get returns the authorization with the given id, or ok=false.
	Get(ctx context.Context, id string) (*Authorization, bool, error)

	// UpdateIfStatus persists the mutable fields of an existing record, but
	// only while the stored row still rests in the given status. A row that
	// moved on (or vanished) concurrently is left untouched and the caller
	// gets errorx.ErrConflict. Guarding every write this way keeps status
	// transitions monotonic under races; there is deliberately no unguarded
	// update.
	UpdateIfStatus(ctx context.Context, authz *Authorization, from AuthorizationStatus) error

	// ConsumeState atomically finds the Created authorization holding the
	// state token and clears the token. Exactly one of two concurrent callers
	// wins; the loser gets errorx.ErrConflict, an unknown token gets
	// errorx.ErrNotFound.
	ConsumeState(ctx context.Context, state string) (*Authorization, error)

	// ListStale returns records resting in the given status since before the
	// cutoff, for the expiry sweep.
	ListStale(ctx context.Context, status AuthorizationStatus, cutoff time.Time) ([]*Authorization, error)
}

// Store is the combined persistence surface handed to the authorization
// flow and the HTTP layer.
type Store interface {
	ClientStore
	AuthorizationStore

	// Close releases the underlying connections.
	Close() error
}
