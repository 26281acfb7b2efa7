// Package server exposes the keeper over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
	"github.com/orionbet/orionkeeper/internal/server/handler"
	"github.com/orionbet/orionkeeper/internal/server/middleware"
	"github.com/orionbet/orionkeeper/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, operator endpoints are open
	RateLimit   int    // requests per RateWindow per client on public write endpoints; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Metrics may be nil.
type Handlers struct {
	Health   *handler.HealthHandler
	Price    *handler.PriceHandler
	Keeper   *handler.KeeperHandler
	Claim    *handler.ClaimHandler
	Contract *handler.ContractHandler
	Rounds   *handler.RoundHandler
	Metrics  http.Handler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route. Operator routes (keeper writes,
// scheduler control, contract admin) require the API key; claim and
// winnings checks are rate limited per client.
func NewServer(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	auth := middleware.Auth(cfg.APIKey)
	limited := middleware.RateLimit(limiter, "public", cfg.RateLimit, cfg.RateWindow, logger)
	operator := func(f http.HandlerFunc) http.Handler { return auth(f) }
	public := func(f http.HandlerFunc) http.Handler { return limited(f) }

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/price", h.Price.Latest)
	mux.HandleFunc("POST /api/price", h.Price.Historical)

	mux.HandleFunc("GET /api/keeper/start", h.Keeper.ShouldStart)
	mux.Handle("POST /api/keeper/start", operator(h.Keeper.Start))
	mux.HandleFunc("GET /api/keeper/settle", h.Keeper.Pending)
	mux.Handle("POST /api/keeper/settle", operator(h.Keeper.Settle))
	mux.Handle("POST /api/keeper/auto-manage", operator(h.Keeper.AutoManage))
	mux.Handle("GET /api/keeper/schedule", operator(h.Keeper.ScheduleTick))
	mux.Handle("POST /api/keeper/schedule", operator(h.Keeper.Schedule))

	mux.Handle("POST /api/claim", public(h.Claim.Claim))
	mux.Handle("POST /api/check-winnings", public(h.Claim.CheckWinnings))

	mux.Handle("POST /api/contract/init", operator(h.Contract.Init))
	mux.Handle("POST /api/contract/start-round", operator(h.Keeper.Start))

	mux.HandleFunc("GET /api/rounds", h.Rounds.Recent)
	mux.HandleFunc("GET /api/rounds/history", h.Rounds.History)
	mux.HandleFunc("GET /api/rounds/events", h.Rounds.Events)
	mux.HandleFunc("GET /api/rounds/{id}", h.Rounds.Get)
	mux.HandleFunc("GET /api/rounds/{id}/bets/{address}", h.Rounds.Bet)
	mux.HandleFunc("GET /api/accounts/{address}/balance", h.Rounds.Balance)
	mux.HandleFunc("GET /api/accounts/{address}/claims", h.Rounds.Claims)

	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var root http.Handler = mux
	root = middleware.Logging(logger)(root)
	root = middleware.RequestID(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Settlement waits for a receipt, so writes get a long timeout.
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
