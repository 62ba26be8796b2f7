// Package locking provides the distributed lock backend used to enforce the
// at-most-one-active-lease-per-board invariant across manager instances, plus
// the lease record store that shares granted leases through the same backend.
package locking

import (
	"context"
	"errors"
	"time"

	"github.com/soc-validation/boardfarm/common/types"
)

var (
	// ErrLockHeld indicates the lock is currently held by someone else. This
	// is an expected outcome during matching, not a backend failure.
	ErrLockHeld = errors.New("the lock is already held")

	// ErrNotLockOwner indicates the presented token does not match the stored
	// lock value, typically because the lock expired and was re-acquired.
	ErrNotLockOwner = errors.New("the presented token does not own the lock")

	// ErrLockNotHeld indicates there is no lock to release or renew.
	ErrLockNotHeld = errors.New("the lock is not held")
)

// LockBackend is an exclusive, TTL-bound lock keyed by board ID, backed by an
// atomic compare-and-swap store. It is the single source of truth for board
// occupancy; the lease manager keeps no authoritative in-process flag.
type LockBackend interface {
	// TryAcquire attempts to take the lock for the board, returning the owner
	// token on success. Returns ErrLockHeld if the lock is held, or an error
	// wrapping types.ErrLockBackendUnavailable if the backend is unreachable.
	TryAcquire(ctx context.Context, boardID string, ttl time.Duration) (string, error)

	// Renew resets the lock's TTL, provided the token still owns it.
	Renew(ctx context.Context, boardID string, token string, ttl time.Duration) error

	// Release deletes the lock, provided the token still owns it. Releasing a
	// lock that has already expired returns ErrNotLockOwner.
	Release(ctx context.Context, boardID string, token string) error

	// IsLocked reports whether the board's lock key currently exists.
	IsLocked(ctx context.Context, boardID string) (bool, error)

	// ForceRelease deletes the lock regardless of ownership. Administrative
	// escape hatch for wedged boards; never called on the matching path.
	ForceRelease(ctx context.Context, boardID string) error

	Close() error
}

// LeaseStore persists granted lease records so that peer manager instances
// and status queries can observe them. Records carry a TTL slightly beyond
// the lease expiration so the store self-cleans if the owning instance dies.
type LeaseStore interface {
	Put(ctx context.Context, lease *types.Lease, ttl time.Duration) error
	Get(ctx context.Context, leaseID string) (*types.Lease, error)
	Delete(ctx context.Context, leaseID string) error
}
