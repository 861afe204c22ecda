package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/crypto_market_pulse/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router *http.ServeMux
	server *http.Server
	market *usecase.MarketService
	alerts *usecase.AlertService
	// streamState reports the live-tick connection for /status.
	streamState func() string
	logger      *zap.Logger
}

func NewServer(
	port int,
	market *usecase.MarketService,
	alerts *usecase.AlertService,
	streamState func() string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:      http.NewServeMux(),
		market:      market,
		alerts:      alerts,
		streamState: streamState,
		logger:      logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Market
	s.router.HandleFunc("GET /api/market", s.handleMarket)
	s.router.HandleFunc("GET /api/coins/{id}", s.handleCoin)
	s.router.HandleFunc("GET /api/search", s.handleSearch)
	s.router.HandleFunc("GET /api/global", s.handleGlobal)

	// Signals
	s.router.HandleFunc("GET /api/signal", s.handleSignal)
	s.router.HandleFunc("GET /api/backtest", s.handleBacktest)

	// Alerts
	s.router.HandleFunc("GET /api/alerts", s.handleListAlerts)
	s.router.HandleFunc("POST /api/alerts", s.handleCreateAlert)
	s.router.HandleFunc("PATCH /api/alerts/{id}", s.handlePatchAlert)
	s.router.HandleFunc("DELETE /api/alerts/{id}", s.handleDeleteAlert)
	s.router.HandleFunc("PUT /api/alerts/mute", s.handleMute)

	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
