// Package web serves the marketplace as a JSON API over gin. Clients sign
// up or log in to receive an HS256 bearer token naming their user id;
// every other route requires it.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/taskmarket/internal/config"
	"github.com/roach88/taskmarket/internal/market"
)

// ErrNoSecret is returned by New when no JWT secret is configured.
var ErrNoSecret = errors.New("server.jwt_secret must be set")

const shutdownTimeout = 5 * time.Second

// Server is the taskmarket HTTP API.
type Server struct {
	market *market.Market
	cfg    config.ServerConfig
	router *gin.Engine
}

// New builds the router for m.
func New(m *market.Market, cfg config.ServerConfig) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrNoSecret
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = config.Default().Server.TokenTTL
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		market: m,
		cfg:    cfg,
		router: router,
	}

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/signup", s.handleSignup)
		api.POST("/login", s.handleLogin)
	}

	authed := api.Group("", s.requireAuth())
	{
		authed.GET("/me", s.handleMe)
		authed.PATCH("/me", s.handleUpdateProfile)
		authed.POST("/me/deposit", s.handleDeposit)
		authed.GET("/me/payments", s.handlePayments)
		authed.GET("/me/summary", s.handleSummary)

		authed.GET("/tasks", s.handleListTasks)
		authed.POST("/tasks", s.handleCreateTask)
		authed.GET("/tasks/:id", s.handleGetTask)
		authed.PATCH("/tasks/:id", s.handleUpdateTask)
		authed.DELETE("/tasks/:id", s.handleDeleteTask)
		authed.GET("/tasks/:id/transactions", s.handleTaskTransactions)

		authed.POST("/tasks/:id/claim", s.handleClaim)
		authed.POST("/tasks/:id/complete", s.handleComplete)
		authed.POST("/tasks/:id/confirm", s.handleConfirm)
		authed.POST("/tasks/:id/revise", s.handleRevise)

		authed.POST("/tasks/:id/reports", s.handleReport)
		authed.POST("/tasks/:id/challenges", s.handleChallenge)
		authed.POST("/tasks/:id/status", s.handleStatusUpdate)

		authed.POST("/tasks/:id/reward", s.handleAddReward)
		authed.POST("/tasks/:id/pay", s.handlePay)
		authed.POST("/tasks/:id/confirm-payment", s.handleConfirmPayment)
	}

	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on the configured address until ctx is done, then shuts the
// listener down gracefully. While serving it follows writes made by other
// processes sharing the database.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.market.Watch(ctx, nil); err != nil {
			slog.Error("watch failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", s.cfg.Listen, "origin", s.market.Origin())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// requestLogger logs one line per request through slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.market.Ping(c.Request.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "origin": s.market.Origin()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "origin": s.market.Origin()})
}
