package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "blacklist:"

// RevocationList records logged-out token ids until they expire. Without a
// Redis client the ids are kept in process, so they are not shared between
// instances and are lost on restart.
type RevocationList struct {
	rdb *redis.Client
	now func() time.Time

	mu    sync.Mutex
	local map[string]time.Time
}

// NewRevocationList wraps rdb, which may be nil.
func NewRevocationList(rdb *redis.Client) *RevocationList {
	return &RevocationList{rdb: rdb, now: time.Now, local: map[string]time.Time{}}
}

// Shared reports whether revocations are stored in Redis.
func (r *RevocationList) Shared() bool {
	return r.rdb != nil
}

// Revoke marks tokenID as revoked until expiresAt.
func (r *RevocationList) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return nil
	}
	now := r.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if r.Shared() {
		return r.rdb.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(now)
	r.local[tokenID] = expiresAt
	return nil
}

// IsRevoked reports whether tokenID was revoked.
func (r *RevocationList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	if r.Shared() {
		n, err := r.rdb.Exists(ctx, revokedKeyPrefix+tokenID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return false, err
		}
		return n > 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	expiresAt, ok := r.local[tokenID]
	if !ok {
		return false, nil
	}
	if !r.now().Before(expiresAt) {
		delete(r.local, tokenID)
		return false, nil
	}
	return true, nil
}

func (r *RevocationList) pruneLocked(now time.Time) {
	for id, expiresAt := range r.local {
		if !now.Before(expiresAt) {
			delete(r.local, id)
		}
	}
}
