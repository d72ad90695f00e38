package auth

import (
	"context"
	"sync"
	"time"
)

// Registry tracks invalidated token identifiers. Revoke is idempotent;
// IsRevoked reflects every prior revoke visible to the same backing store.
// Implementations must be safe for concurrent use by many requests.
type Registry interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Revoke invalidates the jti. expiresAt is the token's natural expiry;
	// backends may discard the entry after that point to bound memory.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
}

const defaultRetention = 14 * 24 * time.Hour

// InMemoryRegistry is the single-process Registry. Entries are swept once
// their token's natural expiry has passed.
type InMemoryRegistry struct {
	mu        sync.RWMutex
	revoked   map[string]time.Time // jti -> expiry
	nextSweep time.Time
	now       func() time.Time
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (r *InMemoryRegistry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	r.mu.RLock()
	expiry, ok := r.revoked[jti]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	// A swept-late entry past expiry is still reported revoked until the
	// next sweep; the token is unusable either way.
	_ = expiry
	return true, nil
}

func (r *InMemoryRegistry) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	now := r.now()
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultRetention)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[jti] = expiresAt
	if now.After(r.nextSweep) {
		for id, exp := range r.revoked {
			if now.After(exp) {
				delete(r.revoked, id)
			}
		}
		r.nextSweep = now.Add(time.Minute)
	}
	return nil
}

// Len reports the number of live entries. Test helper.
func (r *InMemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.revoked)
}
