package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/gin-gonic/contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ErrMetricsManagerAlreadyRunning = errors.New("BoardfarmPrometheusManager is already running")
	ErrMetricsManagerNotRunning     = errors.New("BoardfarmPrometheusManager is not running")
)

// BoardfarmPrometheusManager registers the manager's metrics with Prometheus
// and serves them over HTTP at /prometheus.
type BoardfarmPrometheusManager struct {
	log logger.Logger

	serving            bool
	metricsInitialized bool
	mu                 sync.Mutex
	port               int
	engine             *gin.Engine
	httpServer         *http.Server
	prometheusHandler  http.Handler

	HealthyBoardsGaugeVec     *prometheus.GaugeVec
	QuarantinedBoardsGaugeVec *prometheus.GaugeVec
	ActiveLeasesGaugeVec      *prometheus.GaugeVec
	QueueDepthGaugeVec        *prometheus.GaugeVec

	LeasesGrantedCounterVec        *prometheus.CounterVec
	LeasesReleasedCounterVec       *prometheus.CounterVec
	LeasesExpiredCounterVec        *prometheus.CounterVec
	SubmissionsRejectedCounterVec  *prometheus.CounterVec
	BoardsQuarantinedCounterVec    *prometheus.CounterVec
	LockAcquisitionRetryCounterVec *prometheus.CounterVec
}

func NewBoardfarmPrometheusManager(port int) *BoardfarmPrometheusManager {
	manager := &BoardfarmPrometheusManager{
		port:              port,
		prometheusHandler: promhttp.Handler(),
	}
	config.InitLogger(&manager.log, manager)
	return manager
}

// Start registers the metrics and begins serving them via HTTP.
func (m *BoardfarmPrometheusManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.serving {
		m.log.Warn("BoardfarmPrometheusManager is already running.")
		return ErrMetricsManagerAlreadyRunning
	}

	if !m.metricsInitialized {
		if err := m.initMetrics(); err != nil {
			return err
		}
	}
	m.initializeHttpServer()
	m.serving = true

	return nil
}

// Stop shuts down the metrics HTTP server.
func (m *BoardfarmPrometheusManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.serving {
		return ErrMetricsManagerNotRunning
	}

	m.serving = false
	if err := m.httpServer.Shutdown(context.Background()); err != nil {
		m.log.Error("Failed to cleanly shutdown the metrics HTTP server: %v", err)
		return err
	}

	return nil
}

func (m *BoardfarmPrometheusManager) initMetrics() error {
	m.HealthyBoardsGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "boardfarm",
		Name:      "healthy_boards",
		Help:      "Number of boards currently in the Healthy state",
	}, []string{"family"})
	m.QuarantinedBoardsGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "boardfarm",
		Name:      "quarantined_boards",
		Help:      "Number of boards currently in the Quarantined state",
	}, []string{"family"})
	m.ActiveLeasesGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "boardfarm",
		Name:      "active_leases",
		Help:      "Number of currently-active board leases",
	}, []string{"family"})
	m.QueueDepthGaugeVec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "boardfarm",
		Name:      "queue_depth",
		Help:      "Number of pending lease requests in the admission queue",
	}, []string{"family", "priority"})

	m.LeasesGrantedCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boardfarm",
		Name:      "leases_granted_total",
		Help:      "Total number of leases ever granted",
	}, []string{"family"})
	m.LeasesReleasedCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boardfarm",
		Name:      "leases_released_total",
		Help:      "Total number of leases explicitly released",
	}, []string{"family"})
	m.LeasesExpiredCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boardfarm",
		Name:      "leases_expired_total",
		Help:      "Total number of leases that expired without renewal",
	}, []string{"family"})
	m.SubmissionsRejectedCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boardfarm",
		Name:      "submissions_rejected_total",
		Help:      "Total number of submissions rejected because the queue was full",
	}, []string{"family"})
	m.BoardsQuarantinedCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boardfarm",
		Name:      "boards_quarantined_total",
		Help:      "Total number of automatic quarantine transitions",
	}, []string{"family"})
	m.LockAcquisitionRetryCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boardfarm",
		Name:      "lock_acquisition_retries_total",
		Help:      "Total number of lock acquisition retries due to transient backend errors",
	}, []string{"family"})

	collectors := []prometheus.Collector{
		m.HealthyBoardsGaugeVec,
		m.QuarantinedBoardsGaugeVec,
		m.ActiveLeasesGaugeVec,
		m.QueueDepthGaugeVec,
		m.LeasesGrantedCounterVec,
		m.LeasesReleasedCounterVec,
		m.LeasesExpiredCounterVec,
		m.SubmissionsRejectedCounterVec,
		m.BoardsQuarantinedCounterVec,
		m.LockAcquisitionRetryCounterVec,
	}

	for _, collector := range collectors {
		if err := prometheus.Register(collector); err != nil {
			m.log.Error("Failed to register metric because: %v", err)
			return err
		}
	}

	m.metricsInitialized = true

	return nil
}

func (m *BoardfarmPrometheusManager) initializeHttpServer() {
	m.engine = gin.New()

	m.engine.Use(gin.Logger())
	m.engine.Use(cors.Default())

	m.engine.GET("/prometheus", func(c *gin.Context) {
		m.prometheusHandler.ServeHTTP(c.Writer, c.Request)
	})

	address := fmt.Sprintf("0.0.0.0:%d", m.port)
	m.httpServer = &http.Server{
		Addr:    address,
		Handler: m.engine,
	}

	go func() {
		m.log.Debug("Serving Prometheus metrics at %s", address)
		if err := m.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Error("Metrics HTTP server failed to listen on '%s'. Error: %v", address, err)
		}
	}()
}
