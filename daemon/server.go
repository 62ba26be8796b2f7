// Package daemon exposes the lease manager over HTTP.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/gin-gonic/contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/soc-validation/boardfarm/common/types"
	"github.com/soc-validation/boardfarm/leasing"
	"github.com/soc-validation/boardfarm/registry"
)

// ServerOptions carries what the HTTP server needs beyond its collaborators.
type ServerOptions struct {
	Port                int
	DefaultLeaseSeconds int
	DebugMode           bool
}

// Server is the HTTP front door of the board lease manager.
type Server struct {
	log logger.Logger

	opts       ServerOptions
	engine     *gin.Engine
	httpServer *http.Server

	registry     registry.BoardRegistry
	leaseManager leasing.LeaseManager
	setHealth    func(boardID string, status types.HealthStatus) error
}

func NewServer(opts ServerOptions, reg registry.BoardRegistry, manager leasing.LeaseManager,
	setHealth func(boardID string, status types.HealthStatus) error) *Server {

	s := &Server{
		opts:         opts,
		registry:     reg,
		leaseManager: manager,
		setHealth:    setHealth,
	}

	config.InitLogger(&s.log, s)

	if !opts.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Logger())
	s.engine.Use(gin.Recovery())
	s.engine.Use(cors.Default())

	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/api/health", s.handleServiceHealth)

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/boards", s.handleListBoards)
		v1.GET("/boards/:board_id", s.handleGetBoard)
		v1.GET("/boards/:board_id/status", s.handleBoardStatus)
		v1.PUT("/boards/:board_id/health", s.handleSetBoardHealth)

		v1.POST("/requests", s.handleSubmit)
		v1.GET("/requests/:request_id", s.handleTryAcquire)
		v1.DELETE("/requests/:request_id", s.handleCancel)

		v1.POST("/leases/:lease_id/renew", s.handleRenew)
		v1.POST("/leases/:lease_id/release", s.handleRelease)

		v1.GET("/queue/:family", s.handleQueueStatus)
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	address := fmt.Sprintf("0.0.0.0:%d", s.opts.Port)
	s.httpServer = &http.Server{
		Addr:    address,
		Handler: s.engine,
	}

	go func() {
		s.log.Info("Serving the board lease API at %s", address)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("API HTTP server failed to listen on '%s'. Error: %v", address, err)
		}
	}()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Engine exposes the router for in-process testing.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) handleServiceHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"boards":   s.registry.Size(),
		"families": s.registry.Families(),
	})
}

func (s *Server) handleListBoards(c *gin.Context) {
	family := c.Query("family")

	if family != "" && !s.registry.HasFamily(family) {
		abortWithError(c, types.ErrUnknownFamily)
		return
	}

	records := s.registry.ListBoards(family)
	boards := make([]types.Board, 0, len(records))
	for _, record := range records {
		boards = append(boards, record.Snapshot())
	}

	c.JSON(http.StatusOK, gin.H{"boards": boards})
}

func (s *Server) handleGetBoard(c *gin.Context) {
	record, err := s.registry.GetBoard(c.Param("board_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record.Snapshot())
}

func (s *Server) handleBoardStatus(c *gin.Context) {
	status, err := s.leaseManager.BoardStatus(c.Param("board_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

type setHealthRequest struct {
	HealthStatus string `json:"health_status" binding:"required"`
}

func (s *Server) handleSetBoardHealth(c *gin.Context) {
	var req setHealthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, ok := types.ParseHealthStatus(req.HealthStatus)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown health status \"%s\"", req.HealthStatus)})
		return
	}

	if err := s.setHealth(c.Param("board_id"), status); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"board_id": c.Param("board_id"), "health_status": status})
}

type submitRequest struct {
	HardwareFamily string `json:"hardware_family" binding:"required"`
	Priority       int    `json:"priority"`
	RequesterID    string `json:"requester_id" binding:"required"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	priority := types.Priority(req.Priority)
	if req.Priority == 0 {
		priority = types.PriorityNormal
	}

	receipt, err := s.leaseManager.Submit(req.HardwareFamily, priority, req.RequesterID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, receipt)
}

func (s *Server) handleTryAcquire(c *gin.Context) {
	requestID := c.Param("request_id")

	lease, err := s.leaseManager.TryAcquire(requestID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if lease != nil {
		c.JSON(http.StatusOK, gin.H{"state": "granted", "lease": lease})
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": "queued", "request_id": requestID})
}

func (s *Server) handleCancel(c *gin.Context) {
	if err := s.leaseManager.Cancel(c.Param("request_id")); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"request_id": c.Param("request_id"), "cancelled": true})
}

type renewRequest struct {
	ExtraSeconds int `json:"extra_seconds"`
}

func (s *Server) handleRenew(c *gin.Context) {
	var req renewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	extraSeconds := req.ExtraSeconds
	if extraSeconds <= 0 {
		extraSeconds = s.opts.DefaultLeaseSeconds
	}

	lease, err := s.leaseManager.Renew(c.Param("lease_id"), time.Duration(extraSeconds)*time.Second)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, lease)
}

type releaseRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

func (s *Server) handleRelease(c *gin.Context) {
	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, ok := types.ParseOutcome(req.Outcome)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown outcome \"%s\"", req.Outcome)})
		return
	}

	if err := s.leaseManager.Release(c.Param("lease_id"), outcome); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"lease_id": c.Param("lease_id"), "released": true})
}

func (s *Server) handleQueueStatus(c *gin.Context) {
	family := c.Param("family")

	if !s.registry.HasFamily(family) {
		abortWithError(c, types.ErrUnknownFamily)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hardware_family": family,
		"entries":         s.leaseManager.QueueStatus(family),
	})
}

// abortWithError maps domain errors onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, types.ErrBoardNotFound),
		errors.Is(err, types.ErrLeaseNotFound),
		errors.Is(err, types.ErrRequestNotFound),
		errors.Is(err, types.ErrUnknownFamily):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrLeaseNotActive),
		errors.Is(err, types.ErrBoardUnavailable):
		status = http.StatusConflict
	case errors.Is(err, types.ErrQueueFull),
		errors.Is(err, types.ErrLockBackendUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, types.ErrInvalidConfiguration):
		status = http.StatusBadRequest
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
