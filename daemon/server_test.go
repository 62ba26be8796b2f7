package daemon_test

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/soc-validation/boardfarm/common/configuration"
	"github.com/soc-validation/boardfarm/common/queue"
	"github.com/soc-validation/boardfarm/common/types"
	"github.com/soc-validation/boardfarm/daemon"
	"github.com/soc-validation/boardfarm/health"
	"github.com/soc-validation/boardfarm/leasing"
	"github.com/soc-validation/boardfarm/locking"
	"github.com/soc-validation/boardfarm/registry"
)

type serverFixture struct {
	server  *daemon.Server
	manager leasing.LeaseManager
	tracker *health.Tracker
}

func newServerFixture() *serverFixture {
	inventory := &configuration.BoardInventory{
		Boards: []types.Board{
			{BoardID: "board-001", HardwareFamily: "rv64-ml", BoardIP: "10.1.20.11"},
			{BoardID: "board-002", HardwareFamily: "arm64-net", BoardIP: "10.1.20.12"},
		},
	}
	Expect(inventory.Validate()).To(Succeed())

	reg := registry.NewBoardRegistry(inventory)
	tracker := health.NewTracker(reg, 3, false)
	admission := queue.NewAdmissionQueue(50)

	strategy, err := leasing.NewAllocationStrategy(configuration.StrategyFirstAvailable)
	Expect(err).ToNot(HaveOccurred())

	manager := leasing.NewLeaseManager(reg, tracker, admission,
		locking.NewMemoryLockBackend(), locking.NewMemoryLeaseStore(), strategy,
		leasing.LeaseManagerOptions{
			LeaseTimeout: time.Minute,
			MaxRetries:   3,
			RetryBackoff: time.Millisecond,
			TickInterval: time.Hour,
		})

	server := daemon.NewServer(daemon.ServerOptions{
		Port:                configuration.DefaultPort,
		DefaultLeaseSeconds: configuration.DefaultLeaseSeconds,
	}, reg, manager, tracker.SetHealth)

	return &serverFixture{server: server, manager: manager, tracker: tracker}
}

func (f *serverFixture) do(method string, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).ToNot(HaveOccurred())
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(recorder, request)

	return recorder
}

func decodeBody(recorder *httptest.ResponseRecorder) map[string]interface{} {
	decoded := make(map[string]interface{})
	Expect(json.Unmarshal(recorder.Body.Bytes(), &decoded)).To(Succeed())
	return decoded
}

var _ = Describe("Server", func() {
	var f *serverFixture

	BeforeEach(func() {
		f = newServerFixture()
	})

	It("should answer the service health probe", func() {
		recorder := f.do(http.MethodGet, "/api/health", nil)
		Expect(recorder.Code).To(Equal(http.StatusOK))

		body := decodeBody(recorder)
		Expect(body["status"]).To(Equal("ok"))
		Expect(body["boards"]).To(BeEquivalentTo(2))
	})

	It("should list boards, optionally filtered by family", func() {
		recorder := f.do(http.MethodGet, "/api/v1/boards", nil)
		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(decodeBody(recorder)["boards"]).To(HaveLen(2))

		recorder = f.do(http.MethodGet, "/api/v1/boards?family=rv64-ml", nil)
		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(decodeBody(recorder)["boards"]).To(HaveLen(1))

		recorder = f.do(http.MethodGet, "/api/v1/boards?family=no-such-family", nil)
		Expect(recorder.Code).To(Equal(http.StatusNotFound))
	})

	It("should serve the lease lifecycle over HTTP", func() {
		// Submit.
		recorder := f.do(http.MethodPost, "/api/v1/requests", map[string]interface{}{
			"hardware_family": "rv64-ml",
			"priority":        1,
			"requester_id":    "ci-runner-1",
		})
		Expect(recorder.Code).To(Equal(http.StatusAccepted))
		requestID := decodeBody(recorder)["request_id"].(string)
		Expect(requestID).ToNot(BeEmpty())

		// Match synchronously; the scheduling loop is not running here.
		f.manager.RunMatchingPass("rv64-ml")

		// Poll.
		recorder = f.do(http.MethodGet, "/api/v1/requests/"+requestID, nil)
		Expect(recorder.Code).To(Equal(http.StatusOK))
		body := decodeBody(recorder)
		Expect(body["state"]).To(Equal("granted"))
		lease := body["lease"].(map[string]interface{})
		leaseID := lease["lease_id"].(string)
		Expect(lease["board_id"]).To(Equal("board-001"))

		// Board status shows the occupancy.
		recorder = f.do(http.MethodGet, "/api/v1/boards/board-001/status", nil)
		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(decodeBody(recorder)["in_use"]).To(Equal(true))

		// Renew.
		recorder = f.do(http.MethodPost, fmt.Sprintf("/api/v1/leases/%s/renew", leaseID),
			map[string]interface{}{"extra_seconds": 600})
		Expect(recorder.Code).To(Equal(http.StatusOK))

		// Release.
		recorder = f.do(http.MethodPost, fmt.Sprintf("/api/v1/leases/%s/release", leaseID),
			map[string]interface{}{"outcome": "success"})
		Expect(recorder.Code).To(Equal(http.StatusOK))

		recorder = f.do(http.MethodGet, "/api/v1/boards/board-001/status", nil)
		Expect(decodeBody(recorder)["in_use"]).To(Equal(false))
	})

	It("should report a queued request while the board is busy", func() {
		first := f.do(http.MethodPost, "/api/v1/requests", map[string]interface{}{
			"hardware_family": "rv64-ml",
			"requester_id":    "ci-runner-1",
		})
		Expect(first.Code).To(Equal(http.StatusAccepted))
		f.manager.RunMatchingPass("rv64-ml")

		second := f.do(http.MethodPost, "/api/v1/requests", map[string]interface{}{
			"hardware_family": "rv64-ml",
			"requester_id":    "ci-runner-2",
		})
		Expect(second.Code).To(Equal(http.StatusAccepted))
		secondID := decodeBody(second)["request_id"].(string)

		recorder := f.do(http.MethodGet, "/api/v1/requests/"+secondID, nil)
		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(decodeBody(recorder)["state"]).To(Equal("queued"))

		recorder = f.do(http.MethodGet, "/api/v1/queue/rv64-ml", nil)
		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(decodeBody(recorder)["entries"]).To(HaveLen(1))

		// Cancel it.
		recorder = f.do(http.MethodDelete, "/api/v1/requests/"+secondID, nil)
		Expect(recorder.Code).To(Equal(http.StatusOK))

		recorder = f.do(http.MethodGet, "/api/v1/requests/"+secondID, nil)
		Expect(recorder.Code).To(Equal(http.StatusNotFound))
	})

	It("should apply the manual health override", func() {
		recorder := f.do(http.MethodPut, "/api/v1/boards/board-001/health",
			map[string]interface{}{"health_status": "quarantined"})
		Expect(recorder.Code).To(Equal(http.StatusOK))

		recorder = f.do(http.MethodGet, "/api/v1/boards/board-001", nil)
		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(decodeBody(recorder)["health_status"]).To(Equal("quarantined"))

		recorder = f.do(http.MethodPut, "/api/v1/boards/board-001/health",
			map[string]interface{}{"health_status": "on-fire"})
		Expect(recorder.Code).To(Equal(http.StatusBadRequest))
	})

	It("should map domain errors onto HTTP statuses", func() {
		// Unknown board.
		recorder := f.do(http.MethodGet, "/api/v1/boards/board-999", nil)
		Expect(recorder.Code).To(Equal(http.StatusNotFound))

		// Unknown family on submit.
		recorder = f.do(http.MethodPost, "/api/v1/requests", map[string]interface{}{
			"hardware_family": "no-such-family",
			"requester_id":    "ci-runner-1",
		})
		Expect(recorder.Code).To(Equal(http.StatusNotFound))

		// Missing required fields.
		recorder = f.do(http.MethodPost, "/api/v1/requests", map[string]interface{}{})
		Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		Expect(decodeBody(recorder)).To(HaveKey("error"))

		// A malformed body gets the handler's own error payload, written once.
		raw := httptest.NewRequest(http.MethodPost, "/api/v1/requests", bytes.NewReader([]byte("{not json")))
		raw.Header.Set("Content-Type", "application/json")
		rawRecorder := httptest.NewRecorder()
		f.server.Engine().ServeHTTP(rawRecorder, raw)
		Expect(rawRecorder.Code).To(Equal(http.StatusBadRequest))
		Expect(decodeBody(rawRecorder)).To(HaveKey("error"))

		// Unknown lease on release.
		recorder = f.do(http.MethodPost, "/api/v1/leases/lease-unknown/release",
			map[string]interface{}{"outcome": "success"})
		Expect(recorder.Code).To(Equal(http.StatusNotFound))

		// Releasing twice is idempotent, not an error.
		submit := f.do(http.MethodPost, "/api/v1/requests", map[string]interface{}{
			"hardware_family": "arm64-net",
			"requester_id":    "ci-runner-1",
		})
		requestID := decodeBody(submit)["request_id"].(string)
		f.manager.RunMatchingPass("arm64-net")

		poll := f.do(http.MethodGet, "/api/v1/requests/"+requestID, nil)
		leaseID := decodeBody(poll)["lease"].(map[string]interface{})["lease_id"].(string)

		for i := 0; i < 2; i++ {
			recorder = f.do(http.MethodPost, fmt.Sprintf("/api/v1/leases/%s/release", leaseID),
				map[string]interface{}{"outcome": "failure"})
			Expect(recorder.Code).To(Equal(http.StatusOK))
		}
	})
})
