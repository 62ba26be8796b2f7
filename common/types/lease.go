package types

import (
	"time"
)

// LeaseStatus describes the lifecycle state of a lease.
//
// A lease is Active from the moment the distributed lock is acquired until it
// is either explicitly released (Released) or its expiration passes without a
// renewal (Expired). Once non-Active, a lease is immutable.
type LeaseStatus string

const (
	LeaseActive   LeaseStatus = "active"
	LeaseReleased LeaseStatus = "released"
	LeaseExpired  LeaseStatus = "expired"
)

// Outcome is the result of a job execution against a leased board, as
// reported back by the executor (or synthesized by the expiry sweeper).
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ParseOutcome converts the wire representation of an outcome into an
// Outcome, returning false if the value is not recognized.
func ParseOutcome(value string) (Outcome, bool) {
	switch Outcome(value) {
	case OutcomeSuccess:
		return OutcomeSuccess, true
	case OutcomeFailure:
		return OutcomeFailure, true
	default:
		return "", false
	}
}

// Lease is a time-bounded exclusive grant of one board to one requester.
//
// The LockToken is the value stored in the distributed lock backend under the
// board's lock key; releasing or renewing the lock requires presenting it.
type Lease struct {
	LeaseID     string      `json:"lease_id"`
	BoardID     string      `json:"board_id"`
	RequesterID string      `json:"requester_id"`
	LockToken   string      `json:"lock_token"`
	AcquiredAt  time.Time   `json:"acquired_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
	Status      LeaseStatus `json:"status"`
}

// IsActive returns true if the lease has been granted and has neither been
// released nor marked expired. It does not consult the clock; an Active lease
// whose ExpiresAt has passed is "expired but not yet swept".
func (l *Lease) IsActive() bool {
	return l.Status == LeaseActive
}

// Clone returns a copy of the lease. Callers outside the lease manager always
// receive clones so that the manager's record cannot be mutated externally.
func (l *Lease) Clone() *Lease {
	clone := *l
	return &clone
}
