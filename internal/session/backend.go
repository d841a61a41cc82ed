package session

import (
	"context"
	"errors"
	"time"

	"renterchat/internal/model"
)

var (
	// ErrNotFound is returned when no memory exists for a client id
	ErrNotFound = errors.New("session: client memory not found")
	// ErrInvalidClientID is returned for an empty client id
	ErrInvalidClientID = errors.New("session: client id must not be empty")
)

// Backend is the key-value storage a Store persists client memories in.
// Implementations must be safe for concurrent use; per-client serialization
// is done by the Store, not the backend.
type Backend interface {
	// Load returns a copy of the stored memory or ErrNotFound
	Load(ctx context.Context, clientID string) (*model.ClientMemory, error)
	// Save replaces the stored memory for mem.ClientID
	Save(ctx context.Context, mem *model.ClientMemory) error
	// Delete removes the memory or returns ErrNotFound
	Delete(ctx context.Context, clientID string) error
	// List returns every stored client id
	List(ctx context.Context) ([]string, error)
	// Name identifies the backend in stats and logs
	Name() string
}

// clockedBackend is implemented by backends that judge expiry themselves.
// The Store hands them its own clock so UpdatedAt and expiry agree.
type clockedBackend interface {
	useClock(now func() time.Time)
}
