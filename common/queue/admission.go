package queue

import (
	"sync"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"

	"github.com/soc-validation/boardfarm/common/types"
)

// AdmissionQueue is the priority-tiered FIFO backlog of pending lease
// requests, bounded by a total capacity shared across all hardware families.
//
// Ordering is lexicographic on (priority, enqueued_at, sequence): strict
// priority across tiers, strict FIFO within a tier. Entries leave the queue
// only on a successful match or an explicit cancellation; there is no
// automatic expiry of queued entries.
type AdmissionQueue struct {
	mu  sync.Mutex
	log logger.Logger

	capacity int
	entries  []*types.QueueEntry
	nextSeq  uint64
}

func NewAdmissionQueue(capacity int) *AdmissionQueue {
	if capacity <= 0 {
		capacity = 1
	}

	q := &AdmissionQueue{
		capacity: capacity,
		entries:  make([]*types.QueueEntry, 0, capacity),
	}

	config.InitLogger(&q.log, q)

	return q
}

// Enqueue admits the entry and returns its family-scoped queue position
// (1-based). Returns types.ErrQueueFull if the queue is at capacity; the
// rejection is explicit, never a silent drop.
func (q *AdmissionQueue) Enqueue(entry *types.QueueEntry) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.capacity {
		q.log.Warn("Rejecting request %s (family=%s): queue is at capacity (%d).",
			entry.RequestID, entry.HardwareFamily, q.capacity)
		return 0, types.ErrQueueFull
	}

	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = time.Now()
	}
	entry.Sequence = q.nextSeq
	q.nextSeq++

	q.entries = append(q.entries, entry)

	position := q.positionUnsafe(entry)
	q.log.Debug("Enqueued request %s (family=%s, priority=%s) at position %d.",
		entry.RequestID, entry.HardwareFamily, entry.Priority, position)

	return position, nil
}

// PeekNext returns the entry for the given family that should be matched
// next, or nil if no entry for that family is queued. The entry is not
// removed; the lease manager removes it only once a board has actually been
// locked for it.
func (q *AdmissionQueue) PeekNext(family string) *types.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var head *types.QueueEntry
	for _, entry := range q.entries {
		if entry.HardwareFamily != family {
			continue
		}
		if head == nil || entry.Before(head) {
			head = entry
		}
	}

	return head
}

// Remove deletes the entry with the given request ID, returning it, or nil if
// no such entry is queued.
func (q *AdmissionQueue) Remove(requestID string) *types.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, entry := range q.entries {
		if entry.RequestID == requestID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.log.Debug("Removed request %s (family=%s) from the queue.",
				entry.RequestID, entry.HardwareFamily)
			return entry
		}
	}

	return nil
}

// Contains reports whether an entry with the given request ID is queued.
func (q *AdmissionQueue) Contains(requestID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, entry := range q.entries {
		if entry.RequestID == requestID {
			return true
		}
	}

	return false
}

// Position returns the family-scoped 1-based position of the entry with the
// given request ID: the number of same-family entries ordered strictly before
// it, plus one. Returns 0 if the entry is not queued.
func (q *AdmissionQueue) Position(requestID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, entry := range q.entries {
		if entry.RequestID == requestID {
			return q.positionUnsafe(entry)
		}
	}

	return 0
}

// positionUnsafe computes the family-scoped position of an entry already in
// the queue. The mutex must be held.
func (q *AdmissionQueue) positionUnsafe(target *types.QueueEntry) int {
	position := 1
	for _, entry := range q.entries {
		if entry == target || entry.HardwareFamily != target.HardwareFamily {
			continue
		}
		if entry.Before(target) {
			position++
		}
	}

	return position
}

// Snapshot returns the queued entries for the given family as position
// reports, ordered by match order. Pass an empty family to report the entire
// queue (positions remain family-scoped).
func (q *AdmissionQueue) Snapshot(family string) []*types.QueuePosition {
	q.mu.Lock()
	defer q.mu.Unlock()

	positions := make([]*types.QueuePosition, 0, len(q.entries))
	for _, entry := range q.entries {
		if family != "" && entry.HardwareFamily != family {
			continue
		}
		positions = append(positions, &types.QueuePosition{
			RequestID: entry.RequestID,
			Position:  q.positionUnsafe(entry),
			Priority:  entry.Priority,
			WaitSince: entry.EnqueuedAt,
		})
	}

	// Insertion order is arbitrary; sort by position for the caller.
	for i := 1; i < len(positions); i++ {
		for j := i; j > 0 && positions[j].Position < positions[j-1].Position; j-- {
			positions[j], positions[j-1] = positions[j-1], positions[j]
		}
	}

	return positions
}

// Len returns the total number of queued entries across all families.
func (q *AdmissionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

// Families returns the set of families that currently have queued entries.
func (q *AdmissionQueue) Families() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	seen := make(map[string]struct{})
	families := make([]string, 0, 4)
	for _, entry := range q.entries {
		if _, ok := seen[entry.HardwareFamily]; !ok {
			seen[entry.HardwareFamily] = struct{}{}
			families = append(families, entry.HardwareFamily)
		}
	}

	return families
}
