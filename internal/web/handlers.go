package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/crypto_market_pulse/internal/domain"
	"github.com/vitos/crypto_market_pulse/internal/usecase"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// handleMarket serves the current snapshot when it matches the request,
// or loads the requested page. refresh=1 forces a reload.
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 30)
	currency := usecase.SanitizeCurrency(r.URL.Query().Get("currency"))
	force := r.URL.Query().Get("refresh") == "1"

	if !force && page == 1 {
		snap := s.market.Current()
		// The held snapshot may be any page the last load requested, so
		// it only short-circuits an exactly matching request.
		if snap != nil && snap.Currency == currency && snap.Page == page && snap.PerPage == perPage {
			s.writeJSON(w, http.StatusOK, snap)
			return
		}
	}

	snap, err := s.market.LoadPage(r.Context(), page, perPage, currency)
	if err != nil {
		s.logger.Error("Failed to load market page", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "market data unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCoin(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	currency := r.URL.Query().Get("currency")

	entry, err := s.market.GetCoin(r.Context(), id, currency)
	if err != nil {
		s.logger.Error("Failed to fetch coin", zap.String("id", id), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "coin data unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	coins, err := s.market.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.logger.Error("Search failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "search unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"coins": coins})
}

func (s *Server) handleGlobal(w http.ResponseWriter, r *http.Request) {
	stats, err := s.market.GlobalStats(r.Context())
	if err != nil {
		s.logger.Error("Global stats failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "global stats unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("coin")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "coin is required")
		return
	}
	interval := r.URL.Query().Get("interval")
	limit := queryInt(r, "limit", 300)

	series, score, err := s.market.CoinSignal(r.Context(), id, interval, limit)
	if err != nil {
		s.logger.Error("Signal failed", zap.String("coin", id), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "signal unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"coin":       id,
		"indicators": series,
		"score":      score,
	})
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("coin")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "coin is required")
		return
	}

	res, err := s.market.CoinBacktest(r.Context(), id,
		r.URL.Query().Get("interval"),
		queryInt(r, "limit", 0),
		queryInt(r, "fast", 0),
		queryInt(r, "slow", 0))
	if err != nil {
		s.logger.Error("Backtest failed", zap.String("coin", id), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "backtest unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts.List(r.Context())
	if err != nil {
		s.logger.Error("Failed to list alerts", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []*domain.Alert{}
	}
	s.writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CoinID string  `json:"coin_id"`
		Type   string  `json:"type"`
		Op     string  `json:"op"`
		Value  float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CoinID == "" {
		s.writeError(w, http.StatusBadRequest, "coin_id is required")
		return
	}

	a, err := s.alerts.Create(r.Context(), req.CoinID,
		domain.AlertType(req.Type), domain.AlertOp(req.Op), req.Value)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handlePatchAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		s.writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	if err := s.alerts.SetEnabled(r.Context(), r.PathValue("id"), *req.Enabled); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.alerts.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.logger.Error("Failed to delete alert", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to delete alert")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.alerts.SetMuted(req.Muted)
	s.writeJSON(w, http.StatusOK, map[string]bool{"muted": req.Muted})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"stream": s.streamState(),
		"time":   time.Now().UTC(),
	}
	if snap := s.market.Current(); snap != nil {
		status["snapshot"] = map[string]interface{}{
			"currency":   snap.Currency,
			"entries":    len(snap.Entries),
			"fetched_at": snap.FetchedAt,
			"stale":      snap.Stale,
		}
	}
	s.writeJSON(w, http.StatusOK, status)
}
