package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// positionsPageSize is how many lines the portfolio endpoint returns per page.
const positionsPageSize = 100

// maxPositionPages bounds the paging loop.
const maxPositionPages = 20

// Positions returns the account portfolio split into stock and option positions. Every
// page is fetched. Option lines that cannot be read are listed in Unreadable by ticker.
func (c *Client) Positions(ctx context.Context) (*Portfolio, error) {
	if c.cfg.AccountID == "" {
		return nil, fmt.Errorf("Positions: account id not configured")
	}

	var lines []portfolioLine
	for page := 0; page < maxPositionPages; page++ {
		var batch []portfolioLine
		err := c.call(ctx, func() error {
			return c.doLocked(ctx, http.MethodGet, fmt.Sprintf("/portfolio/%s/positions/%d", c.cfg.AccountID, page), nil, &batch)
		})
		if err != nil {
			return nil, fmt.Errorf("Positions page %d: %w", page, err)
		}
		lines = append(lines, batch...)
		if len(batch) < positionsPageSize {
			break
		}
	}

	portfolio := &Portfolio{}
	for _, line := range lines {
		pos := Position{
			ConID:         parseInt(line.ConID),
			Ticker:        strings.ToUpper(line.Ticker),
			AssetClass:    line.AssetClass,
			Quantity:      parseFloat(line.Position),
			MarketPrice:   parseFloat(line.MktPrice),
			MarketValue:   parseFloat(line.MktValue),
			AvgCost:       parseFloat(line.AvgCost),
			UnrealizedPnL: parseFloat(line.UnrealizedPnl),
		}
		if pos.Ticker == "" {
			if f := strings.Fields(line.ContractDesc); len(f) > 0 {
				pos.Ticker = strings.ToUpper(f[0])
			}
		}
		if pos.Quantity == 0 {
			continue
		}

		switch line.AssetClass {
		case "STK":
			portfolio.Stocks = append(portfolio.Stocks, pos)
		case "OPT":
			expiry, err := parseExpiry(line.Expiry)
			if err != nil {
				c.log.Warn("⚠️ Skipping option position with unreadable expiry",
					zap.String("ticker", pos.Ticker), zap.String("expiry", line.Expiry))
				portfolio.Unreadable = append(portfolio.Unreadable, pos.Ticker)
				continue
			}
			pos.Expiry = expiry
			pos.Strike = parseFloat(line.Strike)
			pos.Right = normalizeRight(line.PutOrCall)
			portfolio.Options = append(portfolio.Options, pos)
		}
	}
	return portfolio, nil
}

func normalizeRight(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "P", "PUT":
		return "P"
	case "C", "CALL":
		return "C"
	}
	return ""
}
