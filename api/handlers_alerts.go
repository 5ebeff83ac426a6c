package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"wheel-screener/alerts"
	"wheel-screener/database"
	models "wheel-screener/database/models_pkg"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	status := strings.ToUpper(r.URL.Query().Get("status"))
	limit := getIntParam(r, "limit", 100, intPtr(1), intPtr(1000))
	rows, err := s.Alerts.ListAlerts(status, limit)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": rows,
		"count":  len(rows),
	})
}

type createAlertRequest struct {
	Ticker         string          `json:"ticker"`
	TargetPrice    decimal.Decimal `json:"target_price"`
	Above          bool            `json:"trigger_above"`
	Message        string          `json:"message"`
	TelegramChatID string          `json:"telegram_chat_id"`
	Push           *bool           `json:"push,omitempty"`
}

// handleCreateAlert creates a stock price alert. Without a chat id the saved default is used.
func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	d := alerts.Delivery{ChatID: strings.TrimSpace(req.TelegramChatID), Push: req.Push == nil || *req.Push}
	if d.ChatID == "" {
		if cfg, err := s.Alerts.GetUserConfig(); err == nil && cfg != nil {
			d.ChatID = cfg.TelegramChatID
		}
	}

	a, err := alerts.NewPriceAlert(req.Ticker, req.TargetPrice, req.Above, req.Message, d)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if err := s.Alerts.CreateAlert(a); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	a, err := s.Alerts.GetAlert(id)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if a == nil {
		s.respondWithError(w, r, errNotFound("alert", id))
		return
	}
	if err := alerts.Dismiss(a); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	dismissed, err := s.Alerts.DismissAlert(id)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if !dismissed {
		s.respondWithError(w, r, fmt.Errorf("%w: alert %d changed while dismissing", alerts.ErrAlertNotActive, id))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCheckAlerts(w http.ResponseWriter, r *http.Request) {
	res, err := s.AlertService.CheckAll(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Configuration Handlers (Webhooks)

type webhookRequest struct {
	models.AlertWebhook
	// Secret is written to AuthValue, which the model never serialises.
	Secret *string `json:"secret,omitempty"`
}

func validateWebhook(h *models.AlertWebhook) error {
	if strings.TrimSpace(h.Name) == "" {
		return database.NewInvalidParameter("name", "is required")
	}
	u, err := url.Parse(h.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return database.NewInvalidParameterWithValue("url", "must be an absolute http(s) URL", h.URL)
	}
	h.Method = strings.ToUpper(h.Method)
	switch h.Method {
	case "":
		h.Method = http.MethodPost
	case http.MethodPost, http.MethodPut:
	default:
		return database.NewInvalidParameterWithValue("method", "must be POST or PUT", h.Method)
	}
	return nil
}

func (s *Server) refreshWebhooks(r *http.Request) {
	if s.Webhooks != nil {
		s.Webhooks.RefreshCache(r.Context())
	}
}

func webhookID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, database.NewInvalidParameterWithValue("id", "must be a positive integer", r.PathValue("id"))
	}
	return id, nil
}

func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.Alerts.ListWebhooks()
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, webhooks)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	req := webhookRequest{AlertWebhook: models.AlertWebhook{IsActive: true, RetryCount: 3, RetryDelaySeconds: 5, TimeoutSeconds: 10}}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	hook := req.AlertWebhook
	hook.ID = 0
	if req.Secret != nil {
		hook.AuthValue = *req.Secret
	}
	if err := validateWebhook(&hook); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	if err := s.Alerts.SaveWebhook(&hook); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.refreshWebhooks(r)
	writeJSON(w, http.StatusCreated, hook)
}

// handleUpdateWebhook replaces a webhook. The secret is kept unless the body sets one.
func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := webhookID(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	existing, err := s.Alerts.GetWebhook(id)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if existing == nil {
		s.respondWithError(w, r, errNotFound("webhook", id))
		return
	}

	req := webhookRequest{AlertWebhook: *existing}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	hook := req.AlertWebhook
	hook.ID = id // Ensure ID matches path
	hook.AuthValue = existing.AuthValue
	if req.Secret != nil {
		hook.AuthValue = *req.Secret
	}
	if err := validateWebhook(&hook); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	if err := s.Alerts.SaveWebhook(&hook); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.refreshWebhooks(r)
	writeJSON(w, http.StatusOK, hook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := webhookID(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	deleted, err := s.Alerts.DeleteWebhook(id)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if !deleted {
		s.respondWithError(w, r, errNotFound("webhook", id))
		return
	}
	s.refreshWebhooks(r)
	w.WriteHeader(http.StatusNoContent)
}
