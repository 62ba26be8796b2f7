package types

import (
	"errors"
)

var (
	// ErrQueueFull is returned when a submission would push the admission
	// queue past its configured capacity. Always surfaced to the caller.
	ErrQueueFull = errors.New("admission queue is full")

	// ErrBoardUnavailable indicates that no healthy, unlocked board currently
	// matches a request. Transient; the request remains queued.
	ErrBoardUnavailable = errors.New("no healthy board is currently available for the requested family")

	// ErrLockBackendUnavailable indicates that the distributed lock backend is
	// unreachable. No new leases may be granted while this persists, since
	// exclusivity cannot be verified.
	ErrLockBackendUnavailable = errors.New("the distributed lock backend is unreachable")

	// ErrLeaseNotActive is returned when renewing a lease that has already
	// been released or has expired.
	ErrLeaseNotActive = errors.New("the specified lease is not active")

	ErrLeaseNotFound   = errors.New("the specified lease cannot be found")
	ErrBoardNotFound   = errors.New("the specified board cannot be found")
	ErrRequestNotFound = errors.New("the specified request cannot be found")

	// ErrUnknownFamily is returned for submissions naming a hardware family
	// with no boards in the inventory at all. A family whose boards are merely
	// busy or quarantined does not trigger this; those requests stay queued.
	ErrUnknownFamily = errors.New("no boards are configured for the requested hardware family")

	// ErrInvalidConfiguration is fatal at startup (duplicate board IDs,
	// missing required inventory fields, malformed options).
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
