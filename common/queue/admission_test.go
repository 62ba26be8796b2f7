package queue_test

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/soc-validation/boardfarm/common/queue"
	"github.com/soc-validation/boardfarm/common/types"
)

func newEntry(id string, family string, priority types.Priority, enqueuedAt time.Time) *types.QueueEntry {
	return &types.QueueEntry{
		RequestID:      id,
		HardwareFamily: family,
		RequesterID:    "requester-" + id,
		Priority:       priority,
		EnqueuedAt:     enqueuedAt,
	}
}

var _ = Describe("AdmissionQueue", func() {
	var (
		q    *queue.AdmissionQueue
		base time.Time
	)

	BeforeEach(func() {
		q = queue.NewAdmissionQueue(50)
		base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	})

	Context("ordering", func() {
		It("should dequeue strictly by priority tier and FIFO within a tier", func() {
			// Submission order: Low, High, Normal, High.
			_, err := q.Enqueue(newEntry("r-low", "rv64-ml", types.PriorityLow, base))
			Expect(err).ToNot(HaveOccurred())
			_, err = q.Enqueue(newEntry("r-high-1", "rv64-ml", types.PriorityHigh, base.Add(1*time.Second)))
			Expect(err).ToNot(HaveOccurred())
			_, err = q.Enqueue(newEntry("r-normal", "rv64-ml", types.PriorityNormal, base.Add(2*time.Second)))
			Expect(err).ToNot(HaveOccurred())
			_, err = q.Enqueue(newEntry("r-high-2", "rv64-ml", types.PriorityHigh, base.Add(3*time.Second)))
			Expect(err).ToNot(HaveOccurred())

			var matched []string
			for {
				head := q.PeekNext("rv64-ml")
				if head == nil {
					break
				}
				matched = append(matched, head.RequestID)
				Expect(q.Remove(head.RequestID)).ToNot(BeNil())
			}

			Expect(matched).To(Equal([]string{"r-high-1", "r-high-2", "r-normal", "r-low"}))
		})

		It("should break ties within one clock tick by admission sequence", func() {
			// Identical EnqueuedAt on purpose.
			for i := 0; i < 5; i++ {
				_, err := q.Enqueue(newEntry(fmt.Sprintf("r-%d", i), "rv64-ml", types.PriorityNormal, base))
				Expect(err).ToNot(HaveOccurred())
			}

			for i := 0; i < 5; i++ {
				head := q.PeekNext("rv64-ml")
				Expect(head).ToNot(BeNil())
				Expect(head.RequestID).To(Equal(fmt.Sprintf("r-%d", i)))
				q.Remove(head.RequestID)
			}
		})

		It("should keep families independent", func() {
			_, err := q.Enqueue(newEntry("r-a", "rv64-ml", types.PriorityLow, base))
			Expect(err).ToNot(HaveOccurred())
			_, err = q.Enqueue(newEntry("r-b", "arm64-net", types.PriorityHigh, base.Add(time.Second)))
			Expect(err).ToNot(HaveOccurred())

			Expect(q.PeekNext("rv64-ml").RequestID).To(Equal("r-a"))
			Expect(q.PeekNext("arm64-net").RequestID).To(Equal("r-b"))
			Expect(q.PeekNext("no-such-family")).To(BeNil())
		})
	})

	Context("capacity", func() {
		It("should admit exactly the configured number of entries and reject the next", func() {
			for i := 0; i < 50; i++ {
				_, err := q.Enqueue(newEntry(fmt.Sprintf("r-%d", i), "rv64-ml", types.PriorityNormal, base.Add(time.Duration(i)*time.Second)))
				Expect(err).ToNot(HaveOccurred())
			}
			Expect(q.Len()).To(Equal(50))

			_, err := q.Enqueue(newEntry("r-overflow", "rv64-ml", types.PriorityNormal, base.Add(time.Hour)))
			Expect(err).To(MatchError(types.ErrQueueFull))
			Expect(q.Len()).To(Equal(50))
			Expect(q.Contains("r-overflow")).To(BeFalse())
		})

		It("should share capacity across families", func() {
			q = queue.NewAdmissionQueue(2)

			_, err := q.Enqueue(newEntry("r-a", "rv64-ml", types.PriorityNormal, base))
			Expect(err).ToNot(HaveOccurred())
			_, err = q.Enqueue(newEntry("r-b", "arm64-net", types.PriorityNormal, base))
			Expect(err).ToNot(HaveOccurred())

			_, err = q.Enqueue(newEntry("r-c", "x86-perf", types.PriorityNormal, base))
			Expect(err).To(MatchError(types.ErrQueueFull))
		})

		It("should free a slot when an entry is removed", func() {
			q = queue.NewAdmissionQueue(1)

			_, err := q.Enqueue(newEntry("r-a", "rv64-ml", types.PriorityNormal, base))
			Expect(err).ToNot(HaveOccurred())
			Expect(q.Remove("r-a")).ToNot(BeNil())

			_, err = q.Enqueue(newEntry("r-b", "rv64-ml", types.PriorityNormal, base))
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Context("positions", func() {
		It("should report 1-based, family-scoped positions that account for priority", func() {
			pos, err := q.Enqueue(newEntry("r-low", "rv64-ml", types.PriorityLow, base))
			Expect(err).ToNot(HaveOccurred())
			Expect(pos).To(Equal(1))

			// A later high-priority entry lands ahead of the earlier low one.
			pos, err = q.Enqueue(newEntry("r-high", "rv64-ml", types.PriorityHigh, base.Add(time.Second)))
			Expect(err).ToNot(HaveOccurred())
			Expect(pos).To(Equal(1))

			Expect(q.Position("r-low")).To(Equal(2))
			Expect(q.Position("r-high")).To(Equal(1))
			Expect(q.Position("r-unknown")).To(Equal(0))
		})

		It("should snapshot a family in match order", func() {
			_, err := q.Enqueue(newEntry("r-low", "rv64-ml", types.PriorityLow, base))
			Expect(err).ToNot(HaveOccurred())
			_, err = q.Enqueue(newEntry("r-normal", "rv64-ml", types.PriorityNormal, base.Add(time.Second)))
			Expect(err).ToNot(HaveOccurred())
			_, err = q.Enqueue(newEntry("r-other", "arm64-net", types.PriorityHigh, base))
			Expect(err).ToNot(HaveOccurred())

			snapshot := q.Snapshot("rv64-ml")
			Expect(snapshot).To(HaveLen(2))
			Expect(snapshot[0].RequestID).To(Equal("r-normal"))
			Expect(snapshot[0].Position).To(Equal(1))
			Expect(snapshot[1].RequestID).To(Equal("r-low"))
			Expect(snapshot[1].Position).To(Equal(2))
		})
	})

	Context("removal", func() {
		It("should return nil when removing an unknown request", func() {
			Expect(q.Remove("r-unknown")).To(BeNil())
		})

		It("should no longer report a removed entry", func() {
			_, err := q.Enqueue(newEntry("r-a", "rv64-ml", types.PriorityNormal, base))
			Expect(err).ToNot(HaveOccurred())

			Expect(q.Contains("r-a")).To(BeTrue())
			Expect(q.Remove("r-a")).ToNot(BeNil())
			Expect(q.Contains("r-a")).To(BeFalse())
			Expect(q.PeekNext("rv64-ml")).To(BeNil())
		})
	})
})
