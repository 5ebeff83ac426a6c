package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// maxReplies bounds the confirmation round trips of a single order.
const maxReplies = 3

type orderTicket struct {
	ConID     int     `json:"conid"`
	OrderType string  `json:"orderType"`
	Side      string  `json:"side"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price,omitempty"`
	TIF       string  `json:"tif"`
}

// orderReply covers both shapes the orders endpoint answers with: an acknowledged order,
// or a warning that must be confirmed through /iserver/reply/{id}.
type orderReply struct {
	OrderID     string   `json:"order_id"`
	OrderStatus string   `json:"order_status"`
	ID          string   `json:"id"`
	Message     []string `json:"message"`
	Error       string   `json:"error"`
}

// PlaceOrder submits an order and confirms gateway warnings on the caller's behalf.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if c.cfg.AccountID == "" {
		return nil, fmt.Errorf("PlaceOrder: account id not configured")
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("PlaceOrder: quantity must be positive")
	}
	orderType := strings.ToUpper(req.OrderType)
	if orderType == "" {
		orderType = "LMT"
	}
	if orderType == "LMT" && req.Limit <= 0 {
		return nil, fmt.Errorf("PlaceOrder: limit order needs a price")
	}

	var result *OrderResult
	err := c.call(ctx, func() error {
		var conid int
		var err error
		if strings.EqualFold(req.SecType, "OPT") {
			conid, err = c.optionConIDLocked(ctx, req.Ticker, req.Expiry, req.Strike, req.Right)
		} else {
			conid, err = c.lookupConIDLocked(ctx, req.Ticker)
		}
		if err != nil {
			return err
		}

		body := map[string][]orderTicket{
			"orders": {{
				ConID:     conid,
				OrderType: orderType,
				Side:      strings.ToUpper(req.Action),
				Quantity:  req.Quantity,
				Price:     req.Limit,
				TIF:       "DAY",
			}},
		}

		var replies []orderReply
		path := fmt.Sprintf("/iserver/account/%s/orders", c.cfg.AccountID)
		if err := c.doLocked(ctx, http.MethodPost, path, body, &replies); err != nil {
			return err
		}

		for i := 0; i < maxReplies; i++ {
			if len(replies) == 0 {
				return fmt.Errorf("empty order response")
			}
			r := replies[0]
			if r.Error != "" {
				return fmt.Errorf("order rejected: %s", r.Error)
			}
			if r.OrderID != "" {
				result = &OrderResult{OrderID: r.OrderID, Status: r.OrderStatus}
				return nil
			}
			if r.ID == "" {
				return fmt.Errorf("unrecognised order response")
			}

			c.log.Info("📝 Confirming order warning",
				zap.String("ticker", req.Ticker), zap.Strings("message", r.Message))
			replies = nil
			confirm := map[string]bool{"confirmed": true}
			if err := c.doLocked(ctx, http.MethodPost, "/iserver/reply/"+r.ID, confirm, &replies); err != nil {
				return err
			}
		}
		return fmt.Errorf("order not acknowledged after %d confirmations", maxReplies)
	})
	if err != nil {
		return nil, fmt.Errorf("PlaceOrder %s: %w", req.Ticker, err)
	}

	c.log.Info("✅ Order placed",
		zap.String("ticker", req.Ticker),
		zap.String("action", req.Action),
		zap.Int("quantity", req.Quantity),
		zap.String("order_id", result.OrderID))
	return result, nil
}

// CancelOrder cancels a working order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.cfg.AccountID == "" {
		return fmt.Errorf("CancelOrder: account id not configured")
	}
	err := c.call(ctx, func() error {
		path := fmt.Sprintf("/iserver/account/%s/order/%s", c.cfg.AccountID, orderID)
		return c.doLocked(ctx, http.MethodDelete, path, nil, nil)
	})
	if err != nil {
		return fmt.Errorf("CancelOrder %s: %w", orderID, err)
	}
	return nil
}

// OpenOrders lists orders that are neither filled nor cancelled.
func (c *Client) OpenOrders(ctx context.Context) ([]OpenOrder, error) {
	var resp struct {
		Orders []struct {
			OrderID   interface{} `json:"orderId"`
			ConID     interface{} `json:"conid"`
			Ticker    string      `json:"ticker"`
			SecType   string      `json:"secType"`
			Side      string      `json:"side"`
			TotalSize interface{} `json:"totalSize"`
			FilledQty interface{} `json:"filledQuantity"`
			Price     interface{} `json:"price"`
			Status    string      `json:"status"`
			OrderType string      `json:"orderType"`
		} `json:"orders"`
	}
	err := c.call(ctx, func() error {
		return c.doLocked(ctx, http.MethodGet, "/iserver/account/orders", nil, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("OpenOrders: %w", err)
	}

	var out []OpenOrder
	for _, o := range resp.Orders {
		switch o.Status {
		case "Filled", "Cancelled", "Inactive":
			continue
		}
		out = append(out, OpenOrder{
			OrderID:   parseID(o.OrderID),
			ConID:     parseInt(o.ConID),
			Ticker:    o.Ticker,
			SecType:   o.SecType,
			Side:      o.Side,
			Quantity:  parseFloat(o.TotalSize),
			Filled:    parseFloat(o.FilledQty),
			Limit:     parseFloat(o.Price),
			Status:    o.Status,
			OrderType: o.OrderType,
		})
	}
	return out, nil
}
