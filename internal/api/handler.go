package api

import (
	"net/http"
	"time"

	"session-trader/internal/broker"
	"session-trader/internal/engine"
	"session-trader/internal/events"
	"session-trader/internal/monitor"
	"session-trader/internal/risk"
	"session-trader/internal/strategy"
	"session-trader/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the engine and the event bus.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Engine    *engine.Engine
	Registry  *strategy.Registry
	Gate      *risk.Gate
	Broker    broker.Broker
	Metrics   *monitor.EngineMetrics
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Paper   bool
	Version string
}

// ServerConfig carries the server's collaborators and settings.
type ServerConfig struct {
	Bus            *events.Bus
	DB             *db.Database
	Engine         *engine.Engine
	Registry       *strategy.Registry
	Gate           *risk.Gate
	Broker         broker.Broker
	Metrics        *monitor.EngineMetrics
	JWTSecret      string
	Meta           SystemMeta
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewServer(cfg ServerConfig) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       cfg.Bus,
		DB:        cfg.DB,
		Engine:    cfg.Engine,
		Registry:  cfg.Registry,
		Gate:      cfg.Gate,
		Broker:    cfg.Broker,
		Metrics:   cfg.Metrics,
		JWTSecret: cfg.JWTSecret,
		Meta:      cfg.Meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/strategies", s.getStrategies)
			protected.GET("/strategies/:name/state", s.getStrategyState)
			protected.POST("/strategies/:name/start", s.startStrategy)
			protected.POST("/strategies/:name/stop", s.stopStrategy)

			protected.GET("/account", s.getAccount)
			protected.GET("/risk", s.getRiskStatus)
			protected.PUT("/risk/limits", s.updateRiskLimits)
			protected.GET("/metrics", s.getMetrics)

			protected.GET("/orders", s.getOrders)
			protected.GET("/trades", s.getTrades)
			protected.GET("/equity", s.getEquity)
			protected.GET("/events", s.getEvents)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
