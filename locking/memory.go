package locking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryLock struct {
	token     string
	expiresAt time.Time
}

func (l *memoryLock) expired(now time.Time) bool {
	return now.After(l.expiresAt)
}

// MemoryLockBackend implements LockBackend over an in-process map with
// deadline-based expiry. It provides the same semantics as the Redis backend
// for single-instance deployments and unit tests: an expired lock behaves
// exactly as if the key had been evicted.
type MemoryLockBackend struct {
	mu    sync.Mutex
	locks map[string]*memoryLock
}

func NewMemoryLockBackend() *MemoryLockBackend {
	return &MemoryLockBackend{
		locks: make(map[string]*memoryLock),
	}
}

func (b *MemoryLockBackend) TryAcquire(_ context.Context, boardID string, ttl time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if existing, held := b.locks[boardID]; held && !existing.expired(now) {
		return "", ErrLockHeld
	}

	token := uuid.NewString()
	b.locks[boardID] = &memoryLock{
		token:     token,
		expiresAt: now.Add(ttl),
	}

	return token, nil
}

func (b *MemoryLockBackend) Renew(_ context.Context, boardID string, token string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	existing, held := b.locks[boardID]
	if !held || existing.expired(now) || existing.token != token {
		return ErrNotLockOwner
	}

	existing.expiresAt = now.Add(ttl)

	return nil
}

func (b *MemoryLockBackend) Release(_ context.Context, boardID string, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, held := b.locks[boardID]
	if !held || existing.expired(time.Now()) || existing.token != token {
		return ErrNotLockOwner
	}

	delete(b.locks, boardID)

	return nil
}

func (b *MemoryLockBackend) IsLocked(_ context.Context, boardID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, held := b.locks[boardID]

	return held && !existing.expired(time.Now()), nil
}

func (b *MemoryLockBackend) ForceRelease(_ context.Context, boardID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.locks, boardID)

	return nil
}

func (b *MemoryLockBackend) Close() error {
	return nil
}

var _ LockBackend = (*MemoryLockBackend)(nil)
