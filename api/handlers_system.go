package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"wheel-screener/database"
	"wheel-screener/health"
	"wheel-screener/jobs"
)

// handleRefresh starts a refresh in the background and returns 202.
// ?mode=full|quick (default full); ?ticker=KO refreshes a single ticker instead of the watchlist.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	mode := jobs.RefreshMode(strings.ToLower(r.URL.Query().Get("mode")))
	switch mode {
	case "":
		mode = jobs.RefreshFull
	case jobs.RefreshFull, jobs.RefreshQuick:
	default:
		s.respondWithError(w, r, database.NewInvalidParameterWithValue("mode", "must be full or quick", mode))
		return
	}

	if ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker"))); ticker != "" {
		if err := s.Refresher.RefreshTicker(r.Context(), ticker, mode); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ticker": ticker, "mode": string(mode), "status": "refreshed"})
		return
	}

	if s.Refresher.Running() {
		s.respondWithError(w, r, jobs.ErrRefreshRunning)
		return
	}
	tickers, err := s.Stocks.WatchlistTickers()
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if len(tickers) == 0 {
		s.respondWithError(w, r, database.NewInvalidParameter("watchlist", "is empty"))
		return
	}

	go func() {
		if _, err := s.Refresher.RefreshAll(s.BaseContext, tickers, mode); err != nil && !errors.Is(err, jobs.ErrRefreshRunning) {
			s.log.Warn("⚠️ Requested refresh ended early", zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "started",
		"mode":    mode,
		"tickers": len(tickers),
	})
}

func (s *Server) handleRefreshProgress(w http.ResponseWriter, r *http.Request) {
	p := s.Refresher.Progress()
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"running": false})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleHealth returns the health report; ?force=true bypasses the cache.
// Critical health answers 503 so load balancers take the instance out.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	report := s.Health.Check(r.Context(), r.URL.Query().Get("force") == "true")
	code := http.StatusOK
	if report.Status == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}
