package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Snapshot field ids
const (
	fieldLast  = "31"
	fieldBid   = "84"
	fieldAsk   = "86"
	fieldIV    = "7283"
	fieldDelta = "7308"
)

var quoteFields = strings.Join([]string{fieldLast, fieldBid, fieldAsk, fieldIV, fieldDelta}, ",")

// StockQuote returns the latest quote for a ticker.
func (c *Client) StockQuote(ctx context.Context, ticker string) (*Quote, error) {
	var q *Quote
	err := c.call(ctx, func() error {
		conid, err := c.lookupConIDLocked(ctx, ticker)
		if err != nil {
			return err
		}
		q, err = c.snapshotLocked(ctx, conid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("StockQuote %s: %w", ticker, err)
	}
	return q, nil
}

// OptionQuote returns the quote of a single option contract. right is "P" or "C".
func (c *Client) OptionQuote(ctx context.Context, ticker string, expiry time.Time, strike float64, right string) (*Quote, error) {
	var q *Quote
	err := c.call(ctx, func() error {
		conid, err := c.optionConIDLocked(ctx, ticker, expiry, strike, right)
		if err != nil {
			return err
		}
		q, err = c.snapshotLocked(ctx, conid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("OptionQuote %s %s %s%s: %w", ticker, expiry.Format("2006-01-02"), formatStrike(strike), right, err)
	}
	return q, nil
}

func (c *Client) lookupConIDLocked(ctx context.Context, ticker string) (int, error) {
	ticker = strings.ToUpper(ticker)
	if id, ok := c.conids[ticker]; ok {
		return id, nil
	}

	var results []searchResult
	path := "/iserver/secdef/search?symbol=" + url.QueryEscape(ticker)
	if err := c.doLocked(ctx, http.MethodGet, path, nil, &results); err != nil {
		return 0, err
	}
	for _, r := range results {
		if !strings.EqualFold(r.Symbol, ticker) {
			continue
		}
		if id := parseInt(r.ConID); id > 0 {
			c.conids[ticker] = id
			return id, nil
		}
	}
	return 0, fmt.Errorf("no contract found for %s", ticker)
}

func (c *Client) optionConIDLocked(ctx context.Context, ticker string, expiry time.Time, strike float64, right string) (int, error) {
	underlying, err := c.lookupConIDLocked(ctx, ticker)
	if err != nil {
		return 0, err
	}

	q := url.Values{}
	q.Set("conid", fmt.Sprint(underlying))
	q.Set("sectype", "OPT")
	q.Set("month", monthCode(expiry))
	q.Set("strike", formatStrike(strike))
	q.Set("right", right)

	var infos []contractInfo
	if err := c.doLocked(ctx, http.MethodGet, "/iserver/secdef/info?"+q.Encode(), nil, &infos); err != nil {
		return 0, err
	}

	want := expiry.Format("20060102")
	for _, info := range infos {
		if info.MaturityDate == want && strings.EqualFold(info.Right, right) {
			return info.ConID, nil
		}
	}
	return 0, fmt.Errorf("no %s contract expiring %s", right, want)
}

// snapshotLocked requests market data twice: the first call subscribes the conid and
// usually returns no fields.
func (c *Client) snapshotLocked(ctx context.Context, conid int) (*Quote, error) {
	path := fmt.Sprintf("/iserver/marketdata/snapshot?conids=%d&fields=%s", conid, quoteFields)

	var data []map[string]interface{}
	if err := c.doLocked(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	if err := c.preflight(ctx); err != nil {
		return nil, err
	}
	data = nil
	if err := c.doLocked(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no market data for conid %d", conid)
	}

	item := data[0]
	q := &Quote{
		ConID: conid,
		Last:  parseFloat(item[fieldLast]),
		Bid:   parseFloat(item[fieldBid]),
		Ask:   parseFloat(item[fieldAsk]),
	}
	if q.Bid > 0 && q.Ask > 0 {
		q.Mid = (q.Bid + q.Ask) / 2
	}
	if iv, ok := parseFieldValue(item[fieldIV]); ok {
		iv /= 100
		q.IV = &iv
	}
	if d, ok := parseFieldValue(item[fieldDelta]); ok {
		q.Delta = &d
	}
	if q.Last == 0 && q.Mid == 0 {
		return nil, fmt.Errorf("empty quote for conid %d", conid)
	}
	return q, nil
}
