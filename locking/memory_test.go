package locking_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/soc-validation/boardfarm/common/types"
	"github.com/soc-validation/boardfarm/locking"
)

var _ = Describe("MemoryLockBackend", func() {
	var (
		backend *locking.MemoryLockBackend
		ctx     context.Context
	)

	BeforeEach(func() {
		backend = locking.NewMemoryLockBackend()
		ctx = context.Background()
	})

	It("should grant at most one lock per board", func() {
		token, err := backend.TryAcquire(ctx, "board-001", time.Minute)
		Expect(err).ToNot(HaveOccurred())
		Expect(token).ToNot(BeEmpty())

		_, err = backend.TryAcquire(ctx, "board-001", time.Minute)
		Expect(err).To(MatchError(locking.ErrLockHeld))

		// A different board is unaffected.
		other, err := backend.TryAcquire(ctx, "board-002", time.Minute)
		Expect(err).ToNot(HaveOccurred())
		Expect(other).ToNot(Equal(token))
	})

	It("should allow re-acquisition after release", func() {
		token, err := backend.TryAcquire(ctx, "board-001", time.Minute)
		Expect(err).ToNot(HaveOccurred())

		Expect(backend.Release(ctx, "board-001", token)).To(Succeed())

		second, err := backend.TryAcquire(ctx, "board-001", time.Minute)
		Expect(err).ToNot(HaveOccurred())
		Expect(second).ToNot(Equal(token))
	})

	It("should refuse a release presenting the wrong token", func() {
		_, err := backend.TryAcquire(ctx, "board-001", time.Minute)
		Expect(err).ToNot(HaveOccurred())

		err = backend.Release(ctx, "board-001", "not-the-token")
		Expect(err).To(MatchError(locking.ErrNotLockOwner))

		locked, err := backend.IsLocked(ctx, "board-001")
		Expect(err).ToNot(HaveOccurred())
		Expect(locked).To(BeTrue())
	})

	It("should treat an expired lock as absent", func() {
		token, err := backend.TryAcquire(ctx, "board-001", 10*time.Millisecond)
		Expect(err).ToNot(HaveOccurred())

		time.Sleep(25 * time.Millisecond)

		locked, err := backend.IsLocked(ctx, "board-001")
		Expect(err).ToNot(HaveOccurred())
		Expect(locked).To(BeFalse())

		// The stale token can neither renew nor release.
		Expect(backend.Renew(ctx, "board-001", token, time.Minute)).To(MatchError(locking.ErrNotLockOwner))
		Expect(backend.Release(ctx, "board-001", token)).To(MatchError(locking.ErrNotLockOwner))

		// And the board can be acquired fresh.
		_, err = backend.TryAcquire(ctx, "board-001", time.Minute)
		Expect(err).ToNot(HaveOccurred())
	})

	It("should extend the deadline on renew", func() {
		token, err := backend.TryAcquire(ctx, "board-001", 30*time.Millisecond)
		Expect(err).ToNot(HaveOccurred())

		Expect(backend.Renew(ctx, "board-001", token, time.Minute)).To(Succeed())

		time.Sleep(50 * time.Millisecond)

		locked, err := backend.IsLocked(ctx, "board-001")
		Expect(err).ToNot(HaveOccurred())
		Expect(locked).To(BeTrue())
	})

	It("should force-release regardless of ownership", func() {
		_, err := backend.TryAcquire(ctx, "board-001", time.Minute)
		Expect(err).ToNot(HaveOccurred())

		Expect(backend.ForceRelease(ctx, "board-001")).To(Succeed())

		locked, err := backend.IsLocked(ctx, "board-001")
		Expect(err).ToNot(HaveOccurred())
		Expect(locked).To(BeFalse())
	})
})

var _ = Describe("MemoryLeaseStore", func() {
	var (
		store *locking.MemoryLeaseStore
		ctx   context.Context
	)

	BeforeEach(func() {
		store = locking.NewMemoryLeaseStore()
		ctx = context.Background()
	})

	It("should round-trip a lease record", func() {
		lease := &types.Lease{
			LeaseID:     "lease-1",
			BoardID:     "board-001",
			RequesterID: "ci-runner-7",
			LockToken:   "token",
			AcquiredAt:  time.Now(),
			ExpiresAt:   time.Now().Add(time.Minute),
			Status:      types.LeaseActive,
		}

		Expect(store.Put(ctx, lease, time.Minute)).To(Succeed())

		retrieved, err := store.Get(ctx, "lease-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(retrieved.BoardID).To(Equal("board-001"))
		Expect(retrieved.Status).To(Equal(types.LeaseActive))
	})

	It("should return ErrLeaseNotFound for unknown, deleted, and expired records", func() {
		_, err := store.Get(ctx, "lease-unknown")
		Expect(err).To(MatchError(types.ErrLeaseNotFound))

		lease := &types.Lease{LeaseID: "lease-1", Status: types.LeaseActive}
		Expect(store.Put(ctx, lease, 10*time.Millisecond)).To(Succeed())

		time.Sleep(25 * time.Millisecond)
		_, err = store.Get(ctx, "lease-1")
		Expect(err).To(MatchError(types.ErrLeaseNotFound))

		Expect(store.Put(ctx, lease, time.Minute)).To(Succeed())
		Expect(store.Delete(ctx, "lease-1")).To(Succeed())
		_, err = store.Get(ctx, "lease-1")
		Expect(err).To(MatchError(types.ErrLeaseNotFound))
	})
})
