// Package server exposes the backtest engine over a REST API.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backtester/services/candles"
	"backtester/services/engine"
	"backtester/services/strategy"
)

// Server binds HTTP routes to a backtest orchestrator.
type Server struct {
	orch       *engine.Orchestrator
	maxWorkers int
	logger     *zap.Logger
}

// New builds a server. maxWorkers bounds the batch endpoint's worker
// pool; zero means NumCPU.
func New(orch *engine.Orchestrator, maxWorkers int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{orch: orch, maxWorkers: maxWorkers, logger: logger}
}

// Router returns the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleBacktest)
		api.POST("/backtest/batch", s.handleBatch)
		api.GET("/strategies", s.handleStrategies)
		api.GET("/health", s.handleHealth)
	}
	r.GET("/healthz", s.handleHealth)
	return r
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req engine.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.orch.Run(c.Request.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("backtest request failed", zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleBatch(c *gin.Context) {
	var reqs []engine.Request
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(reqs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty batch"})
		return
	}

	out := s.orch.RunBatch(c.Request.Context(), reqs, s.maxWorkers)
	type item struct {
		Result *engine.Result `json:"result,omitempty"`
		Error  string         `json:"error,omitempty"`
	}
	items := make([]item, len(out))
	for i, r := range out {
		items[i].Result = r.Result
		if r.Err != nil {
			items[i].Error = r.Err.Error()
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": items})
}

func (s *Server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": strategy.Names()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   engine.EngineVersion,
	})
}

// statusFor separates caller mistakes from engine failures: bad config
// and bad data are the caller's problem, everything else is ours.
func statusFor(err error) int {
	switch {
	case errors.Is(err, strategy.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrInsufficientData),
		errors.Is(err, candles.ErrBadData),
		errors.Is(err, candles.ErrUnknownTimeframe):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
