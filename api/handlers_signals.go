package api

import (
	"net/http"
	"strings"

	"wheel-screener/database"
	models "wheel-screener/database/models_pkg"
	sigrepo "wheel-screener/database/signals"
	"wheel-screener/signals"
)

// handleListSignals lists signals. Filters: ticker, type, status, min_quality, days, limit.
func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := sigrepo.Filter{
		Ticker:     strings.ToUpper(q.Get("ticker")),
		SignalType: strings.ToUpper(q.Get("type")),
		Status:     strings.ToUpper(q.Get("status")),
		MinQuality: getIntParam(r, "min_quality", 0, intPtr(0), intPtr(100)),
		Limit:      getIntParam(r, "limit", 50, intPtr(1), intPtr(500)),
	}
	if days := getIntParam(r, "days", 0, intPtr(1), intPtr(365)); days > 0 {
		f.Since = s.now().AddDate(0, 0, -days)
	}

	rows, err := s.Signals.ListSignals(f)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"signals": rows,
		"count":   len(rows),
	})
}

func (s *Server) handleSignalStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.Signals.CountByStatus()
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"by_status": counts,
		"total":     total,
	})
}

func (s *Server) getSignal(r *http.Request) (*models.Signal, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	sig, err := s.Signals.GetSignalByID(id)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, errNotFound("signal", id)
	}
	return sig, nil
}

// signalView adds the decoded reasons to a stored signal.
type signalView struct {
	*models.Signal
	ReasonDetails interface{} `json:"reason_details,omitempty"`
}

func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	sig, err := s.getSignal(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	view := signalView{Signal: sig}
	if reasons, err := sig.DecodeReasons(); err == nil {
		view.ReasonDetails = reasons
	}
	writeJSON(w, http.StatusOK, view)
}

type signalStatusRequest struct {
	Status string `json:"status"`
}

// handleUpdateSignalStatus marks an OPEN signal FILLED or CANCELLED.
func (s *Server) handleUpdateSignalStatus(w http.ResponseWriter, r *http.Request) {
	sig, err := s.getSignal(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	var req signalStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	status := strings.ToUpper(req.Status)
	if status != models.SignalFilled && status != models.SignalCancelled {
		s.respondWithError(w, r, database.NewInvalidParameterWithValue("status", "must be FILLED or CANCELLED", req.Status))
		return
	}
	if sig.Status != models.SignalOpen {
		s.respondWithError(w, r, database.NewInvalidParameterWithValue("status", "signal is no longer OPEN", sig.Status))
		return
	}

	sig.Status = status
	if err := s.Signals.Save(sig); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

// handleScan runs a signal scan synchronously and returns its summary.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	res, err := s.Scanner.Scan(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.Alerts.GetUserConfig()
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if cfg == nil {
		row := models.NewUserConfig(s.Scanner.Config())
		cfg = &row
	}
	writeJSON(w, http.StatusOK, cfg)
}

type configRequest struct {
	signals.Config
	TelegramChatID string `json:"telegram_chat_id"`
}

// handleUpdateConfig replaces the screener thresholds. Fields left out of the body keep
// their current values.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	current, err := s.Alerts.GetUserConfig()
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	req := configRequest{Config: s.Scanner.Config()}
	if current != nil {
		req.TelegramChatID = current.TelegramChatID
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if err := req.Config.Validate(); err != nil {
		s.respondWithError(w, r, database.NewInvalidParameter("config", err.Error()))
		return
	}

	row := models.NewUserConfig(req.Config)
	row.TelegramChatID = strings.TrimSpace(req.TelegramChatID)
	if current != nil {
		row.ID = current.ID
	}
	if err := s.Alerts.SaveUserConfig(&row); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
