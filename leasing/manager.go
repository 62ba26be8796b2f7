// Package leasing contains the lease manager: the state machine that matches
// queued requests to healthy, unlocked boards, and drives the lease lifecycle
// of acquisition, renewal, release, and expiry.
package leasing

import (
	"context"
	"sync"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"

	"github.com/soc-validation/boardfarm/common/metrics"
	"github.com/soc-validation/boardfarm/common/queue"
	"github.com/soc-validation/boardfarm/common/types"
	"github.com/soc-validation/boardfarm/health"
	"github.com/soc-validation/boardfarm/locking"
	"github.com/soc-validation/boardfarm/registry"
)

const (
	// backendCallTimeout bounds each individual lock backend operation.
	backendCallTimeout = 5 * time.Second

	// leaseRecordGrace is added to the lease-store TTL beyond the lease
	// expiration, so the record outlives the lock long enough for the expiry
	// sweep to observe it.
	leaseRecordGrace = time.Minute

	// defaultFinalizedRetention is how long a finalized lease stays observable
	// through TryAcquire/Release before the prune pass evicts its in-process
	// record. Long enough for the requester's final poll.
	defaultFinalizedRetention = time.Minute

	// triggerBufferSize bounds the matching-trigger channel. A dropped
	// trigger is harmless; the fallback tick will catch up.
	triggerBufferSize = 64
)

// SubmitReceipt is returned for an accepted submission.
type SubmitReceipt struct {
	RequestID     string `json:"request_id"`
	QueuePosition int    `json:"queue_position"`
}

// LeaseManager is the public contract of the lease manager, consumed by the
// HTTP daemon and by the workflow executor.
type LeaseManager interface {
	// Submit enqueues a lease request. Returns types.ErrQueueFull if the
	// admission queue is at capacity, or types.ErrUnknownFamily if no board
	// of the family exists in the inventory.
	Submit(family string, priority types.Priority, requesterID string) (*SubmitReceipt, error)

	// TryAcquire polls a submitted request. It returns the granted lease once
	// matching has succeeded, (nil, nil) while the request is still queued,
	// and types.ErrRequestNotFound for unknown or cancelled requests.
	TryAcquire(requestID string) (*types.Lease, error)

	// Renew extends an active lease, refreshing both the distributed lock TTL
	// and the lease expiration to now+extra. Returns types.ErrLeaseNotActive
	// if the lease has already been released or has expired.
	Renew(leaseID string, extra time.Duration) (*types.Lease, error)

	// Release ends an active lease, records the reported outcome with the
	// health tracker, and frees the board. Releasing an already-released or
	// already-expired lease is a no-op, not an error.
	Release(leaseID string, outcome types.Outcome) error

	// Cancel removes a still-queued request.
	Cancel(requestID string) error

	// BoardStatus reports a board's health and occupancy. Occupancy is read
	// from the lock backend, not from local state.
	BoardStatus(boardID string) (*types.BoardStatus, error)

	// QueueStatus reports the pending entries for a family in match order.
	QueueStatus(family string) []*types.QueuePosition

	// RunMatchingPass synchronously matches as many queued requests of the
	// family as there are free boards. Called by the scheduling loop; exposed
	// so callers (and tests) can force a deterministic pass.
	RunMatchingPass(family string)

	// SweepExpiredLeases finalizes every active lease whose expiration has
	// passed, returning the number of leases swept.
	SweepExpiredLeases() int

	// PruneFinalizedLeases evicts finalized lease records older than the
	// retention window, returning the number of records evicted. Without the
	// prune pass the lease and grant tables would grow by one entry per lease
	// ever granted.
	PruneFinalizedLeases() int

	// SetMetricsManager attaches the Prometheus manager. Optional; the lease
	// manager runs fine without one.
	SetMetricsManager(manager *metrics.BoardfarmPrometheusManager)

	// Start launches the background scheduling loop (event triggers plus the
	// fallback tick).
	Start()

	Close() error
}

// leaseRecord pairs a lease with the mutex that serializes its lifecycle
// transitions. The Active -> {Released, Expired} transition happens exactly
// once no matter how many paths (explicit release, expiry sweep) race for it.
type leaseRecord struct {
	mu          sync.Mutex
	lease       *types.Lease
	requestID   string
	family      string
	finalizedAt time.Time
}

type leaseManagerImpl struct {
	log logger.Logger

	registry registry.BoardRegistry
	tracker  *health.Tracker
	queue    *queue.AdmissionQueue
	backend  locking.LockBackend
	store    locking.LeaseStore
	strategy AllocationStrategy
	metrics  *metrics.BoardfarmPrometheusManager

	leaseTimeout       time.Duration
	maxRetries         int
	retryBackoff       time.Duration
	tickInterval       time.Duration
	finalizedRetention time.Duration

	leases      cmap.ConcurrentMap[string, *leaseRecord] // lease ID -> record
	grants      cmap.ConcurrentMap[string, string]       // request ID -> lease ID
	boardLeases cmap.ConcurrentMap[string, string]       // board ID -> lease ID (local hint only; the lock backend is authoritative)

	// familyLocks serializes matching passes per family so two passes cannot
	// race for the same head-of-queue entry. Families are fixed at startup,
	// so the map itself is immutable after construction.
	familyLocks map[string]*sync.Mutex

	trigger  chan string
	stopChan chan struct{}
	startMu  sync.Mutex
	started  bool
}

// LeaseManagerOptions carries the tunables the manager needs; all durations
// must be positive. A zero FinalizedRetention falls back to the default.
type LeaseManagerOptions struct {
	LeaseTimeout       time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
	TickInterval       time.Duration
	FinalizedRetention time.Duration
}

func NewLeaseManager(reg registry.BoardRegistry, tracker *health.Tracker, admission *queue.AdmissionQueue,
	backend locking.LockBackend, store locking.LeaseStore, strategy AllocationStrategy,
	opts LeaseManagerOptions) LeaseManager {

	if opts.FinalizedRetention <= 0 {
		opts.FinalizedRetention = defaultFinalizedRetention
	}

	m := &leaseManagerImpl{
		registry:           reg,
		tracker:            tracker,
		queue:              admission,
		backend:            backend,
		store:              store,
		strategy:           strategy,
		leaseTimeout:       opts.LeaseTimeout,
		maxRetries:         opts.MaxRetries,
		retryBackoff:       opts.RetryBackoff,
		tickInterval:       opts.TickInterval,
		finalizedRetention: opts.FinalizedRetention,
		leases:             cmap.New[*leaseRecord](),
		grants:             cmap.New[string](),
		boardLeases:        cmap.New[string](),
		familyLocks:        make(map[string]*sync.Mutex),
		trigger:            make(chan string, triggerBufferSize),
		stopChan:           make(chan struct{}),
	}

	config.InitLogger(&m.log, m)

	for _, family := range reg.Families() {
		m.familyLocks[family] = &sync.Mutex{}
	}

	// A board coming back from quarantine should be matched without waiting
	// for the fallback tick.
	tracker.SetHealthChangedCallback(func(boardID string, family string, status types.HealthStatus) {
		if m.metrics != nil {
			if status == types.BoardQuarantined {
				m.metrics.BoardsQuarantinedCounterVec.WithLabelValues(family).Inc()
			}
			m.updateHealthMetrics(family)
		}

		if status == types.BoardHealthy {
			m.kickMatching(family)
		}
	})

	m.log.Info("LeaseManager initialized with %d board(s), strategy=%s, lease timeout=%v.",
		reg.Size(), strategy.Name(), opts.LeaseTimeout)

	return m
}

// SetMetricsManager attaches the Prometheus manager and seeds the health
// gauges from the current registry state. Must be called before Start; the
// manager tolerates running without one.
func (m *leaseManagerImpl) SetMetricsManager(manager *metrics.BoardfarmPrometheusManager) {
	m.metrics = manager

	for _, family := range m.registry.Families() {
		m.updateHealthMetrics(family)
	}
}

func (m *leaseManagerImpl) updateHealthMetrics(family string) {
	healthy, quarantined := 0, 0
	for _, record := range m.registry.ListBoards(family) {
		if record.HealthStatus() == types.BoardHealthy {
			healthy++
		} else {
			quarantined++
		}
	}

	m.metrics.HealthyBoardsGaugeVec.WithLabelValues(family).Set(float64(healthy))
	m.metrics.QuarantinedBoardsGaugeVec.WithLabelValues(family).Set(float64(quarantined))
}

func (m *leaseManagerImpl) Submit(family string, priority types.Priority, requesterID string) (*SubmitReceipt, error) {
	if !priority.Valid() {
		return nil, errors.Wrapf(types.ErrInvalidConfiguration, "invalid priority %d", priority)
	}

	if !m.registry.HasFamily(family) {
		return nil, types.ErrUnknownFamily
	}

	entry := &types.QueueEntry{
		RequestID:      uuid.NewString(),
		HardwareFamily: family,
		RequesterID:    requesterID,
		Priority:       priority,
		EnqueuedAt:     time.Now(),
	}

	position, err := m.queue.Enqueue(entry)
	if err != nil {
		if m.metrics != nil {
			m.metrics.SubmissionsRejectedCounterVec.WithLabelValues(family).Inc()
		}
		return nil, err
	}

	m.log.Debug("Accepted submission %s (family=%s, priority=%s, requester=%s) at position %d.",
		entry.RequestID, family, priority, requesterID, position)

	m.updateQueueMetrics(family)
	m.kickMatching(family)

	return &SubmitReceipt{RequestID: entry.RequestID, QueuePosition: position}, nil
}

func (m *leaseManagerImpl) TryAcquire(requestID string) (*types.Lease, error) {
	if lease, granted := m.grantedLease(requestID); granted {
		return lease, nil
	}

	if m.queue.Contains(requestID) {
		return nil, nil
	}

	// The matcher registers the grant before it dequeues the entry, so a poll
	// that missed both raced the dequeue; one re-check of the grant table
	// settles whether the request was granted or is genuinely gone.
	if lease, granted := m.grantedLease(requestID); granted {
		return lease, nil
	}

	return nil, types.ErrRequestNotFound
}

func (m *leaseManagerImpl) grantedLease(requestID string) (*types.Lease, bool) {
	leaseID, granted := m.grants.Get(requestID)
	if !granted {
		return nil, false
	}

	record, ok := m.leases.Get(leaseID)
	if !ok {
		return nil, false
	}

	record.mu.Lock()
	lease := record.lease.Clone()
	record.mu.Unlock()

	return lease, true
}

func (m *leaseManagerImpl) Renew(leaseID string, extra time.Duration) (*types.Lease, error) {
	record, ok := m.leases.Get(leaseID)
	if !ok {
		return nil, types.ErrLeaseNotFound
	}

	record.mu.Lock()
	defer record.mu.Unlock()

	if !record.lease.IsActive() {
		return nil, types.ErrLeaseNotActive
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
	defer cancel()

	err := m.backend.Renew(ctx, record.lease.BoardID, record.lease.LockToken, extra)
	if errors.Is(err, locking.ErrNotLockOwner) {
		// The lock TTL already lapsed in the backend; the sweep will finalize
		// this lease shortly. Refuse the renewal.
		m.log.Warn("Renewal of lease %s refused: the board lock has already lapsed.", leaseID)
		return nil, types.ErrLeaseNotActive
	} else if err != nil {
		return nil, err
	}

	record.lease.ExpiresAt = time.Now().Add(extra)

	storeCtx, storeCancel := context.WithTimeout(context.Background(), backendCallTimeout)
	defer storeCancel()
	if err = m.store.Put(storeCtx, record.lease, extra+leaseRecordGrace); err != nil {
		m.log.Error("Failed to persist renewed lease %s: %v", leaseID, err)
	}

	m.log.Debug("Renewed lease %s for board %s; now expires at %v.",
		leaseID, record.lease.BoardID, record.lease.ExpiresAt)

	return record.lease.Clone(), nil
}

func (m *leaseManagerImpl) Release(leaseID string, outcome types.Outcome) error {
	record, ok := m.leases.Get(leaseID)
	if !ok {
		return types.ErrLeaseNotFound
	}

	if finalized := m.finalize(record, types.LeaseReleased, outcome); !finalized {
		// Already released or expired; release is idempotent.
		record.mu.Lock()
		status := record.lease.Status
		record.mu.Unlock()
		m.log.Debug("Release of lease %s was a no-op (status=%s).", leaseID, status)
	}

	return nil
}

func (m *leaseManagerImpl) Cancel(requestID string) error {
	if removed := m.queue.Remove(requestID); removed == nil {
		return types.ErrRequestNotFound
	}

	return nil
}

func (m *leaseManagerImpl) BoardStatus(boardID string) (*types.BoardStatus, error) {
	record, err := m.registry.GetBoard(boardID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
	defer cancel()

	inUse, err := m.backend.IsLocked(ctx, boardID)
	if err != nil {
		return nil, err
	}

	status := &types.BoardStatus{
		Board: record.Snapshot(),
		InUse: inUse,
	}

	if leaseID, ok := m.boardLeases.Get(boardID); ok {
		if leaseRec, found := m.leases.Get(leaseID); found {
			leaseRec.mu.Lock()
			if leaseRec.lease.IsActive() {
				status.LeaseID = leaseRec.lease.LeaseID
				expiresAt := leaseRec.lease.ExpiresAt
				status.LeaseExpiresAt = &expiresAt
			}
			leaseRec.mu.Unlock()
		}
	}

	return status, nil
}

func (m *leaseManagerImpl) QueueStatus(family string) []*types.QueuePosition {
	return m.queue.Snapshot(family)
}

// Start launches the scheduling loop: matching on event triggers, with a
// fallback tick that also sweeps expired leases and catches boards freed
// externally (e.g., a peer instance's lock lapsing).
func (m *leaseManagerImpl) Start() {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.started {
		m.log.Warn("LeaseManager scheduling loop is already running.")
		return
	}
	m.started = true

	go m.run()
}

func (m *leaseManagerImpl) run() {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case family := <-m.trigger:
			m.RunMatchingPass(family)
		case <-ticker.C:
			m.SweepExpiredLeases()
			m.PruneFinalizedLeases()
			for _, family := range m.queue.Families() {
				m.RunMatchingPass(family)
			}
		}
	}
}

func (m *leaseManagerImpl) Close() error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.started {
		close(m.stopChan)
		m.started = false
	}

	return m.backend.Close()
}

// kickMatching requests an asynchronous matching pass for the family. Safe
// to call from any goroutine; drops the hint if the buffer is full, since the
// fallback tick will run the pass anyway.
func (m *leaseManagerImpl) kickMatching(family string) {
	select {
	case m.trigger <- family:
	default:
	}
}

// RunMatchingPass serializes per family: two concurrent passes for the same
// family would race for the same head-of-queue entry and double-dequeue it.
// Passes for different families proceed in parallel.
func (m *leaseManagerImpl) RunMatchingPass(family string) {
	familyLock, ok := m.familyLocks[family]
	if !ok {
		return
	}

	familyLock.Lock()
	defer familyLock.Unlock()

	for {
		entry := m.queue.PeekNext(family)
		if entry == nil {
			return
		}

		lease, err := m.matchEntry(entry)
		if err != nil {
			m.log.Error("Matching pass for family %s aborted: %v", family, err)
			return
		}

		if lease == nil {
			// The head entry may have been cancelled mid-acquisition. If it
			// is gone from the queue, the board it raced for was unlocked
			// again and the next entry is still matchable in this pass.
			if !m.queue.Contains(entry.RequestID) {
				continue
			}

			// No healthy, unlocked board right now; the entry stays queued
			// for the next trigger or tick.
			return
		}
	}
}

// matchEntry attempts to pair one queued entry with a board. Returns the
// granted lease, (nil, nil) if every candidate is busy or unhealthy, or an
// error if the lock backend is unreachable.
func (m *leaseManagerImpl) matchEntry(entry *types.QueueEntry) (*types.Lease, error) {
	candidates := m.registry.HealthyBoards(entry.HardwareFamily)
	if len(candidates) == 0 {
		return nil, nil
	}

	for _, board := range m.strategy.Arrange(candidates) {
		// Health is re-checked per attempt: a quarantine that landed after
		// the candidate list was built must exclude the board.
		if board.HealthStatus() != types.BoardHealthy {
			continue
		}

		if _, busy := m.boardLeases.Get(board.ID()); busy {
			continue
		}

		token, err := m.tryAcquireLock(board.ID(), entry.HardwareFamily)
		if errors.Is(err, locking.ErrLockHeld) {
			// Raced by a peer instance (or an executor still holding on);
			// try the next candidate.
			continue
		} else if err != nil {
			return nil, err
		}

		return m.grantLease(entry, board, token)
	}

	return nil, nil
}

// tryAcquireLock attempts the distributed lock, retrying transient backend
// errors with linear backoff. ErrLockHeld is returned immediately; it is an
// expected outcome, not a fault.
func (m *leaseManagerImpl) tryAcquireLock(boardID string, family string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(m.retryBackoff * time.Duration(attempt))
			if m.metrics != nil {
				m.metrics.LockAcquisitionRetryCounterVec.WithLabelValues(family).Inc()
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
		token, err := m.backend.TryAcquire(ctx, boardID, m.leaseTimeout)
		cancel()

		if err == nil {
			return token, nil
		}

		if errors.Is(err, locking.ErrLockHeld) {
			return "", err
		}

		lastErr = err
		m.log.Warn("Transient error acquiring lock for board %s (attempt %d/%d): %v",
			boardID, attempt+1, m.maxRetries+1, err)
	}

	return "", lastErr
}

func (m *leaseManagerImpl) grantLease(entry *types.QueueEntry, board *registry.BoardRecord, token string) (*types.Lease, error) {
	now := time.Now()
	lease := &types.Lease{
		LeaseID:     uuid.NewString(),
		BoardID:     board.ID(),
		RequesterID: entry.RequesterID,
		LockToken:   token,
		AcquiredAt:  now,
		ExpiresAt:   now.Add(m.leaseTimeout),
		Status:      types.LeaseActive,
	}

	record := &leaseRecord{
		lease:     lease,
		requestID: entry.RequestID,
		family:    entry.HardwareFamily,
	}

	// The grant is registered before the entry leaves the queue; a concurrent
	// poll must never find the request absent from both tables.
	m.leases.Set(lease.LeaseID, record)
	m.boardLeases.Set(board.ID(), lease.LeaseID)
	m.grants.Set(entry.RequestID, lease.LeaseID)

	// The entry may have been cancelled while the lock was being acquired; if
	// so, undo the grant.
	if removed := m.queue.Remove(entry.RequestID); removed == nil {
		m.grants.Remove(entry.RequestID)
		m.boardLeases.Remove(board.ID())
		m.leases.Remove(lease.LeaseID)

		ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
		defer cancel()
		if err := m.backend.Release(ctx, board.ID(), token); err != nil && !errors.Is(err, locking.ErrNotLockOwner) {
			m.log.Error("Failed to release lock for board %s after cancelled match: %v", board.ID(), err)
		}
		return nil, nil
	}

	board.Touch(now)

	ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
	defer cancel()
	if err := m.store.Put(ctx, lease, m.leaseTimeout+leaseRecordGrace); err != nil {
		m.log.Error("Failed to persist lease %s: %v", lease.LeaseID, err)
	}

	if m.metrics != nil {
		m.metrics.LeasesGrantedCounterVec.WithLabelValues(entry.HardwareFamily).Inc()
		m.metrics.ActiveLeasesGaugeVec.WithLabelValues(entry.HardwareFamily).Inc()
	}
	m.updateQueueMetrics(entry.HardwareFamily)

	m.log.Info("Granted lease %s: board %s to requester %s (request %s); expires at %v.",
		lease.LeaseID, board.ID(), entry.RequesterID, entry.RequestID, lease.ExpiresAt)

	return lease.Clone(), nil
}

// SweepExpiredLeases finalizes active leases whose expiration has passed. It
// shares the finalize path with explicit release, so a sweep racing a release
// produces the side effects exactly once.
func (m *leaseManagerImpl) SweepExpiredLeases() int {
	now := time.Now()
	swept := 0

	for item := range m.leases.IterBuffered() {
		record := item.Val

		record.mu.Lock()
		expired := record.lease.IsActive() && now.After(record.lease.ExpiresAt)
		record.mu.Unlock()

		if !expired {
			continue
		}

		// Expiry without renewal means the caller did not clean up; recorded
		// as an operational failure against the board.
		if m.finalize(record, types.LeaseExpired, types.OutcomeFailure) {
			m.log.Warn("Lease %s for board %s expired without renewal.",
				record.lease.LeaseID, record.lease.BoardID)
			swept++
		}
	}

	return swept
}

// finalize performs the single Active -> terminal transition for a lease and
// its side effects: the distributed lock is released, the shared lease record
// deleted, the outcome recorded, and matching re-triggered for the freed
// board's family. Returns false if the lease had already been finalized.
func (m *leaseManagerImpl) finalize(record *leaseRecord, status types.LeaseStatus, outcome types.Outcome) bool {
	record.mu.Lock()
	if !record.lease.IsActive() {
		record.mu.Unlock()
		return false
	}
	record.lease.Status = status
	record.finalizedAt = time.Now()
	boardID := record.lease.BoardID
	leaseID := record.lease.LeaseID
	token := record.lease.LockToken
	record.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), backendCallTimeout)
	defer cancel()

	if err := m.backend.Release(ctx, boardID, token); err != nil {
		if errors.Is(err, locking.ErrNotLockOwner) {
			// The lock TTL already elapsed in the backend. Both expiry paths
			// agree the lease is gone; nothing further to release.
			m.log.Debug("Lock for board %s had already lapsed when lease %s was finalized.",
				boardID, leaseID)
		} else {
			m.log.Error("Failed to release lock for board %s (lease %s): %v", boardID, leaseID, err)
		}
	}

	storeCtx, storeCancel := context.WithTimeout(context.Background(), backendCallTimeout)
	defer storeCancel()
	if err := m.store.Delete(storeCtx, leaseID); err != nil {
		m.log.Error("Failed to delete lease record %s: %v", leaseID, err)
	}

	m.boardLeases.Remove(boardID)

	if err := m.tracker.RecordOutcome(boardID, outcome); err != nil {
		m.log.Error("Failed to record outcome for board %s: %v", boardID, err)
	}

	if m.metrics != nil {
		m.metrics.ActiveLeasesGaugeVec.WithLabelValues(record.family).Dec()
		if status == types.LeaseExpired {
			m.metrics.LeasesExpiredCounterVec.WithLabelValues(record.family).Inc()
		} else {
			m.metrics.LeasesReleasedCounterVec.WithLabelValues(record.family).Inc()
		}
	}

	m.log.Info("Lease %s for board %s finalized as %s (outcome=%s).", leaseID, boardID, status, outcome)

	m.kickMatching(record.family)

	return true
}

// PruneFinalizedLeases drops finalized lease records whose retention window
// has passed, together with their request-grant entries. The window keeps the
// terminal status observable for the requester's final poll; after it, polls
// and releases for the lease report not-found.
func (m *leaseManagerImpl) PruneFinalizedLeases() int {
	now := time.Now()
	pruned := 0

	for item := range m.leases.IterBuffered() {
		record := item.Val

		record.mu.Lock()
		evict := !record.lease.IsActive() && now.Sub(record.finalizedAt) > m.finalizedRetention
		record.mu.Unlock()

		if !evict {
			continue
		}

		m.grants.Remove(record.requestID)
		m.leases.Remove(item.Key)
		pruned++
	}

	if pruned > 0 {
		m.log.Debug("Pruned %d finalized lease record(s).", pruned)
	}

	return pruned
}

func (m *leaseManagerImpl) updateQueueMetrics(family string) {
	if m.metrics == nil {
		return
	}

	counts := make(map[types.Priority]int)
	for _, position := range m.queue.Snapshot(family) {
		counts[position.Priority]++
	}

	for _, priority := range []types.Priority{types.PriorityHigh, types.PriorityNormal, types.PriorityLow} {
		m.metrics.QueueDepthGaugeVec.WithLabelValues(family, priority.String()).Set(float64(counts[priority]))
	}
}
