// Package api exposes the trade lifecycle, dashboard and reference data over
// HTTP, plus a websocket feed of lifecycle events.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tradebook-core/internal/dashboard"
	"tradebook-core/internal/events"
	"tradebook-core/internal/lifecycle"
	"tradebook-core/internal/monitor"
	"tradebook-core/pkg/db"
)

// UserSource finds users for login.
type UserSource interface {
	UserByLogin(ctx context.Context, loginID string) (*db.User, error)
}

// RefLister lists reference data rows of one kind.
type RefLister interface {
	ListRefs(ctx context.Context, kind string) ([]db.RefEntity, error)
}

// Pinger reports storage reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures NewServer. Zero limits fall back to defaults.
type Options struct {
	Trades    *lifecycle.Manager
	Dashboard *dashboard.Service
	Users     UserSource
	Refs      RefLister
	DB        Pinger
	Bus       *events.Bus
	Metrics   *monitor.SystemMetrics
	Logger    *logrus.Entry

	JWTSecret      string
	RequestTimeout time.Duration
	CORSOrigins    []string
	RateLimit      float64
	RateBurst      int
}

// Server wires HTTP endpoints around the lifecycle manager.
type Server struct {
	Router    *gin.Engine
	Trades    *lifecycle.Manager
	Dashboard *dashboard.Service
	Users     UserSource
	Refs      RefLister
	DB        Pinger
	Bus       *events.Bus
	Metrics   *monitor.SystemMetrics
	Logger    *logrus.Entry
	JWTSecret string
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Metrics == nil {
		opts.Metrics = monitor.NewSystemMetrics()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit, opts.RateBurst = 20, 50
	}

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(opts.Logger, opts.Metrics))
	r.Use(RateLimitMiddleware(newIPLimiters(opts.RateLimit, opts.RateBurst), opts.Logger))
	r.Use(TimeoutMiddleware(opts.RequestTimeout))
	r.Use(CORSMiddleware(opts.CORSOrigins))

	s := &Server{
		Router:    r,
		Trades:    opts.Trades,
		Dashboard: opts.Dashboard,
		Users:     opts.Users,
		Refs:      opts.Refs,
		DB:        opts.DB,
		Bus:       opts.Bus,
		Metrics:   opts.Metrics,
		Logger:    opts.Logger,
		JWTSecret: opts.JWTSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", AuthMiddleware(s.JWTSecret), s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/metrics", s.getMetrics)
		api.POST("/auth/login", s.loginUser)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))

		trades := protected.Group("/trades")
		{
			trades.GET("", s.listTrades)
			trades.GET("/search", s.searchTrades)
			trades.GET("/search/settlement-instructions", s.searchSettlementInstructions)
			trades.GET("/:id", s.getTrade)
			trades.GET("/:id/history", s.getTradeHistory)
			trades.GET("/:id/audit", s.getTradeAudit)
			trades.POST("", s.createTrade)
			trades.PUT("/:id", s.amendTrade)
			trades.DELETE("/:id", s.deleteTrade)
			trades.POST("/:id/terminate", s.terminateTrade)
			trades.POST("/:id/cancel", s.cancelTrade)
			trades.PUT("/:id/settlement-instructions", s.updateSettlementInstructions)
		}

		dash := protected.Group("/dashboard")
		{
			dash.GET("/my-trades", s.myTrades)
			dash.GET("/book/:bookId/trades", s.bookTrades)
			dash.GET("/summary", s.portfolioSummary)
			dash.GET("/daily-summary", s.dailySummary)
		}

		protected.GET("/reference/:kind", s.listReference)
	}
}

func (s *Server) health(c *gin.Context) {
	if s.DB != nil {
		if err := s.DB.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
