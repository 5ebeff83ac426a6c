package positions

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wheel-screener/database"
	models "wheel-screener/database/models_pkg"
	"wheel-screener/gateway"
	"wheel-screener/market"
)

// OrderRequest is an order placed through the service.
type OrderRequest struct {
	Ticker     string    `json:"ticker"`
	SecType    string    `json:"sec_type"`
	Action     string    `json:"action"`
	OrderType  string    `json:"order_type"`
	Quantity   int       `json:"quantity"`
	LimitPrice float64   `json:"limit_price"`
	Strike     float64   `json:"strike,omitempty"`
	Expiry     time.Time `json:"expiry,omitempty"`
	OptionType string    `json:"option_type,omitempty"`
	SignalID   *uint     `json:"signal_id,omitempty"`
	PositionID *uint     `json:"position_id,omitempty"`
}

// Notional is the dollar exposure of the order. A short PUT is sized by the cash
// needed to take assignment.
func (r OrderRequest) Notional() float64 {
	if r.SecType == "OPT" {
		if typ, _ := market.ParseOptionType(r.OptionType); typ == market.Put && r.Action == "SELL" {
			return r.Strike * float64(r.Quantity) * 100
		}
		return r.LimitPrice * float64(r.Quantity) * 100
	}
	return r.LimitPrice * float64(r.Quantity)
}

func (r *OrderRequest) normalize() {
	r.Ticker = strings.ToUpper(strings.TrimSpace(r.Ticker))
	r.SecType = strings.ToUpper(r.SecType)
	if r.SecType == "" {
		r.SecType = "OPT"
	}
	r.Action = strings.ToUpper(r.Action)
	r.OrderType = strings.ToUpper(r.OrderType)
	if r.OrderType == "" {
		r.OrderType = "LMT"
	}
}

func (r OrderRequest) validate(maxSize float64) error {
	if r.Ticker == "" {
		return database.NewInvalidParameter("ticker", "is required")
	}
	if r.Action != "BUY" && r.Action != "SELL" {
		return database.NewInvalidParameterWithValue("action", "must be BUY or SELL", r.Action)
	}
	if r.Quantity <= 0 {
		return database.NewInvalidParameterWithValue("quantity", "must be positive", r.Quantity)
	}
	if r.OrderType == "LMT" && r.LimitPrice <= 0 {
		return database.NewInvalidParameter("limit_price", "is required for limit orders")
	}
	if r.SecType == "OPT" {
		if _, ok := market.ParseOptionType(r.OptionType); !ok {
			return database.NewInvalidParameterWithValue("option_type", "must be PUT or CALL", r.OptionType)
		}
		if r.Strike <= 0 || r.Expiry.IsZero() {
			return database.NewInvalidParameter("contract", "strike and expiry are required for options")
		}
	}
	if maxSize > 0 && r.Notional() > maxSize {
		return database.NewInvalidParameterWithValue("quantity", "exceeds the maximum position size", r.Notional())
	}
	return nil
}

// SubmitOrder validates, places and records an order. The order row is stored even when
// the broker rejects it so the attempt stays visible.
func (s *Service) SubmitOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	if s.broker == nil {
		return nil, ErrNoBroker
	}
	req.normalize()
	if err := req.validate(s.MaxPositionSize); err != nil {
		return nil, err
	}

	order := &models.Order{
		Ticker:     req.Ticker,
		SecType:    req.SecType,
		Action:     req.Action,
		OrderType:  req.OrderType,
		Quantity:   req.Quantity,
		Status:     models.OrderSubmitted,
		SignalID:   req.SignalID,
		PositionID: req.PositionID,
	}
	if req.LimitPrice > 0 {
		order.LimitPrice = decimal.NewNullDecimal(decimal.NewFromFloat(req.LimitPrice))
	}

	greq := gateway.OrderRequest{
		Ticker:    req.Ticker,
		SecType:   req.SecType,
		Action:    req.Action,
		OrderType: req.OrderType,
		Quantity:  req.Quantity,
		Limit:     req.LimitPrice,
	}
	if req.SecType == "OPT" {
		typ, _ := market.ParseOptionType(req.OptionType)
		expiry := models.DateOf(req.Expiry)
		order.Strike = decimal.NewNullDecimal(decimal.NewFromFloat(req.Strike))
		order.Expiry = &expiry
		order.Right = typ.Right()
		greq.Strike = req.Strike
		greq.Expiry = expiry
		greq.Right = typ.Right()
	}

	res, err := s.broker.PlaceOrder(ctx, greq)
	if err != nil {
		order.Status = models.OrderRejected
		order.Message = err.Error()
		if serr := s.store.CreateOrder(order); serr != nil {
			s.log.Error("❌ Failed to record rejected order", zap.Error(serr))
		}
		return order, err
	}

	order.GatewayOrderID = res.OrderID
	order.Message = res.Status
	if err := s.store.CreateOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder cancels a working order at the broker and marks it CANCELLED.
func (s *Service) CancelOrder(ctx context.Context, order *models.Order) error {
	if s.broker == nil {
		return ErrNoBroker
	}
	if order.GatewayOrderID == "" {
		return database.NewInvalidParameter("gateway_order_id", "order was never acknowledged by the broker")
	}
	if err := s.broker.CancelOrder(ctx, order.GatewayOrderID); err != nil {
		return err
	}
	order.Status = models.OrderCancelled
	return s.store.SaveOrder(order)
}
