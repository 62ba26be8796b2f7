package types

import (
	"time"
)

// Priority is the admission priority of a lease request. Lower values are
// more urgent, matching the 1/2/3 convention used by submission tooling.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Valid returns true if p is one of the three defined priority tiers.
func (p Priority) Valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

// QueueEntry is a pending lease request sitting in the admission queue.
//
// Sequence is assigned by the queue at admission time and breaks ties between
// entries enqueued within the same clock tick, so that ordering within a
// priority tier is strict FIFO even at high submission rates.
type QueueEntry struct {
	RequestID      string    `json:"request_id"`
	HardwareFamily string    `json:"hardware_family"`
	RequesterID    string    `json:"requester_id"`
	Priority       Priority  `json:"priority"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	Sequence       uint64    `json:"-"`
}

// Before reports whether e should be matched ahead of other. Ordering is
// lexicographic on (priority, enqueued_at, sequence).
func (e *QueueEntry) Before(other *QueueEntry) bool {
	if e.Priority != other.Priority {
		return e.Priority < other.Priority
	}
	if !e.EnqueuedAt.Equal(other.EnqueuedAt) {
		return e.EnqueuedAt.Before(other.EnqueuedAt)
	}
	return e.Sequence < other.Sequence
}

// QueuePosition is one row of a queue status report.
type QueuePosition struct {
	RequestID string    `json:"request_id"`
	Position  int       `json:"position"`
	Priority  Priority  `json:"priority"`
	WaitSince time.Time `json:"wait_since"`
}
