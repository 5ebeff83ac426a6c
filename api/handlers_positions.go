package api

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wheel-screener/alerts"
	"wheel-screener/database"
	models "wheel-screener/database/models_pkg"
	"wheel-screener/positions"
)

type positionView struct {
	*models.OptionPosition
	Metrics positions.Metrics `json:"metrics"`
}

type stockPositionView struct {
	*models.StockPosition
	Metrics positions.StockMetrics `json:"metrics"`
}

func (s *Server) viewPosition(p *models.OptionPosition) positionView {
	return positionView{OptionPosition: p, Metrics: positions.ComputeMetrics(p, s.now())}
}

// handleListPositions lists option positions, optionally filtered by ?status=OPEN.
func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	status := strings.ToUpper(r.URL.Query().Get("status"))
	rows, err := s.Positions.ListOptionPositions(status)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	views := make([]positionView, len(rows))
	for i := range rows {
		views[i] = s.viewPosition(&rows[i])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": views,
		"count":     len(views),
	})
}

func (s *Server) getPosition(r *http.Request) (*models.OptionPosition, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	p, err := s.Positions.GetOptionPosition(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errNotFound("position", id)
	}
	return p, nil
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	p, err := s.getPosition(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewPosition(p))
}

// handleAnalyzePosition returns urgency notices, assignment odds and recommendations.
// The stock price comes from the live source when available, else from the last refresh.
func (s *Server) handleAnalyzePosition(w http.ResponseWriter, r *http.Request) {
	p, err := s.getPosition(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	price := 0.0
	if s.Prices != nil {
		if live, err := s.Prices.StockPrice(r.Context(), p.Ticker); err == nil {
			price = live
		} else {
			s.log.Debug("Live price unavailable", zap.String("ticker", p.Ticker), zap.Error(err))
		}
	}
	if price <= 0 {
		stock, err := s.Stocks.GetStock(p.Ticker)
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		if stock != nil {
			price = stock.LastPrice
		}
	}
	if price <= 0 {
		s.respondWithError(w, r, database.NewDataUnavailable(p.Ticker, "no stock price"))
		return
	}

	writeJSON(w, http.StatusOK, positions.Analyze(p, price, s.now()))
}

type openPositionRequest struct {
	positions.OpenRequest
	// ArmAlerts creates the profit, expiration and assignment risk alerts; defaults to true.
	ArmAlerts *bool `json:"arm_alerts,omitempty"`
	Push      *bool `json:"push,omitempty"`
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	p, err := s.PositionService.OpenPosition(req.OpenRequest)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	if s.AlertService != nil && (req.ArmAlerts == nil || *req.ArmAlerts) {
		d := alerts.Delivery{Push: req.Push == nil || *req.Push}
		if cfg, err := s.Alerts.GetUserConfig(); err == nil && cfg != nil {
			d.ChatID = cfg.TelegramChatID
		}
		if n, err := s.AlertService.ArmPosition(p, d); err != nil {
			s.log.Warn("⚠️ Position alerts not armed", zap.Uint("position_id", p.ID), zap.Error(err))
		} else if n > 0 {
			s.log.Info("🔔 Position alerts armed", zap.Uint("position_id", p.ID), zap.Int("alerts", n))
		}
	}
	writeJSON(w, http.StatusCreated, s.viewPosition(p))
}

type closePositionRequest struct {
	ExitPremium decimal.Decimal `json:"exit_premium"`
	Reason      string          `json:"reason"`
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	var req closePositionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	p, err := s.PositionService.ClosePosition(id, req.ExitPremium, req.Reason)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewPosition(p))
}

func (s *Server) handleExpirePosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	p, err := s.PositionService.ExpirePosition(id)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewPosition(p))
}

func (s *Server) handleAssignPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	p, shares, err := s.PositionService.AssignPosition(id)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	resp := map[string]interface{}{"position": s.viewPosition(p)}
	if shares != nil {
		resp["stock_position"] = stockPositionView{StockPosition: shares, Metrics: positions.ComputeStockMetrics(shares)}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListStockPositions lists share positions; ?all=true includes closed ones.
func (s *Server) handleListStockPositions(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	rows, err := s.Positions.ListStockPositions(activeOnly)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	views := make([]stockPositionView, len(rows))
	for i := range rows {
		views[i] = stockPositionView{StockPosition: &rows[i], Metrics: positions.ComputeStockMetrics(&rows[i])}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": views,
		"count":     len(views),
	})
}

func (s *Server) handleSyncPositions(w http.ResponseWriter, r *http.Request) {
	res, err := s.PositionService.SyncFromGateway(r.Context())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", 50, intPtr(1), intPtr(500))
	orders, err := s.Positions.ListOrders(limit)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req positions.OrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	order, err := s.PositionService.SubmitOrder(r.Context(), req)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")
	order, err := s.Positions.GetOrderByGatewayID(orderID)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if order == nil {
		s.respondWithError(w, r, errNotFound("order", orderID))
		return
	}
	if err := s.PositionService.CancelOrder(r.Context(), order); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
