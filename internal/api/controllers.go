package api

import (
	"errors"
	"net/http"
	"strconv"

	"session-trader/internal/engine"
	"session-trader/internal/risk"

	"github.com/gin-gonic/gin"
)

// getSystemStatus reports engine lifecycle and runtime meta.
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"engine":  s.Engine.Status(),
		"paper":   s.Meta.Paper,
		"version": s.Meta.Version,
	})
}

// getStrategies lists registered strategies with their run states.
func (s *Server) getStrategies(c *gin.Context) {
	states := s.Engine.StrategyStates()

	type entry struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Symbols     []string        `json:"symbols"`
		Timeframe   string          `json:"timeframe"`
		State       engine.RunState `json:"state"`
	}

	out := make([]entry, 0)
	for _, desc := range s.Registry.List() {
		out = append(out, entry{
			Name:        desc.Name,
			Description: desc.Description,
			Symbols:     desc.Symbols,
			Timeframe:   string(desc.Timeframe),
			State:       states[desc.Name],
		})
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

// getStrategyState returns one strategy's run state.
func (s *Server) getStrategyState(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.Registry.Get(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "STRATEGY_NOT_FOUND",
			"error": "unknown strategy " + name,
		})
		return
	}
	states := s.Engine.StrategyStates()
	c.JSON(http.StatusOK, gin.H{"name": name, "state": states[name]})
}

// startStrategy begins the strategy's periodic cycle.
func (s *Server) startStrategy(c *gin.Context) {
	name := c.Param("name")
	if err := s.Engine.StartStrategy(name); err != nil {
		s.lifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "state": "running"})
}

// stopStrategy cancels the strategy's cycle, waiting for in-flight work.
func (s *Server) stopStrategy(c *gin.Context) {
	name := c.Param("name")
	if err := s.Engine.StopStrategy(name); err != nil {
		s.lifecycleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "state": "stopped"})
}

func (s *Server) lifecycleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "STRATEGY_NOT_FOUND", "error": err.Error()})
	case errors.Is(err, engine.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"code": "ALREADY_RUNNING", "error": err.Error()})
	case errors.Is(err, engine.ErrNotRunning):
		c.JSON(http.StatusConflict, gin.H{"code": "NOT_RUNNING", "error": err.Error()})
	case errors.Is(err, engine.ErrNotStarted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "ENGINE_NOT_RUNNING", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
	}
}

// getAccount returns the broker account snapshot.
func (s *Server) getAccount(c *gin.Context) {
	acct, err := s.Broker.GetAccount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"code": "BROKER_UNAVAILABLE", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, acct)
}

// getRiskStatus returns the gate's limits and daily counters.
func (s *Server) getRiskStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Gate.GetStatus())
}

// updateRiskLimits replaces the gate limits at runtime.
func (s *Server) updateRiskLimits(c *gin.Context) {
	var limits risk.Limits
	if err := c.BindJSON(&limits); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid limits payload"})
		return
	}
	if limits.MaxDailyLossPct < 0 || limits.MaxPositionSizePct < 0 ||
		limits.MaxTradesPerDay < 0 || limits.MaxOpenPositions < 0 || limits.MinBuyingPowerPct < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_LIMITS", "error": "limits must be non-negative"})
		return
	}
	s.Gate.UpdateLimits(limits)
	c.JSON(http.StatusOK, s.Gate.GetStatus())
}

// getMetrics serves the engine metrics snapshot.
func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

// getOrders returns recent journaled orders.
func (s *Server) getOrders(c *gin.Context) {
	orders, err := s.DB.ListOrders(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getTrades returns recent journaled trades.
func (s *Server) getTrades(c *gin.Context) {
	trades, err := s.DB.ListTrades(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// getEquity returns the recorded equity curve, optionally per strategy.
func (s *Server) getEquity(c *gin.Context) {
	strategyName := c.Query("strategy")
	samples, err := s.DB.ListEquitySamples(c.Request.Context(), strategyName, queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"samples": samples})
}

// getEvents returns the recent journaled event stream.
func (s *Server) getEvents(c *gin.Context) {
	events, err := s.DB.ListEvents(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func queryLimit(c *gin.Context) int {
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 100
}
