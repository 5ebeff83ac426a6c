package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"wheel-screener/market"
)

// YahooConfig holds the Yahoo Finance endpoints.
type YahooConfig struct {
	ChartURL        string
	QuoteSummaryURL string
	OptionsURL      string
	UserAgent       string
	Timeout         time.Duration
	HistoryRange    string
}

// YahooClient reads price history, fundamentals and option chains from Yahoo Finance.
type YahooClient struct {
	cfg        YahooConfig
	httpClient *http.Client
	log        *zap.Logger
}

// NewYahooClient creates a client with cfg. Missing timeout and range fall back to 15s and 1y.
func NewYahooClient(cfg YahooConfig, log *zap.Logger) *YahooClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.HistoryRange == "" {
		cfg.HistoryRange = "1y"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &YahooClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

func (y *YahooClient) get(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	u := endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if y.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", y.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNoData
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"chart"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *yahooError) Error() string {
	return e.Code + ": " + e.Description
}

// History returns daily bars, oldest first. Bars with a missing OHLC value are skipped.
func (y *YahooClient) History(ctx context.Context, ticker string) ([]market.PriceBar, error) {
	var resp chartResponse
	q := url.Values{"range": {y.cfg.HistoryRange}, "interval": {"1d"}}
	if err := y.get(ctx, y.cfg.ChartURL+"/"+url.PathEscape(ticker), q, &resp); err != nil {
		return nil, fmt.Errorf("History %s: %w", ticker, err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("History %s: %w: %v", ticker, ErrNoData, resp.Chart.Error)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("History %s: %w", ticker, ErrNoData)
	}

	r := resp.Chart.Result[0]
	quote := r.Indicators.Quote[0]
	bars := make([]market.PriceBar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			continue
		}
		bar := market.PriceBar{
			Date:  time.Unix(ts, 0).UTC(),
			Open:  *o,
			High:  *h,
			Low:   *l,
			Close: *c,
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("History %s: %w", ticker, ErrNoData)
	}
	return bars, nil
}

func at(series []*float64, i int) *float64 {
	if i < len(series) {
		return series[i]
	}
	return nil
}

// rawValue is Yahoo's {"raw": 1.23, "fmt": "1.23"} number wrapper.
type rawValue struct {
	Raw *float64 `json:"raw"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price struct {
				ShortName          string   `json:"shortName"`
				LongName           string   `json:"longName"`
				RegularMarketPrice rawValue `json:"regularMarketPrice"`
				MarketCap          rawValue `json:"marketCap"`
			} `json:"price"`
			SummaryDetail struct {
				Beta             rawValue `json:"beta"`
				DividendYield    rawValue `json:"dividendYield"`
				AverageVolume    rawValue `json:"averageVolume"`
				FiftyTwoWeekHigh rawValue `json:"fiftyTwoWeekHigh"`
				FiftyTwoWeekLow  rawValue `json:"fiftyTwoWeekLow"`
			} `json:"summaryDetail"`
			FinancialData struct {
				CurrentPrice   rawValue `json:"currentPrice"`
				ReturnOnEquity rawValue `json:"returnOnEquity"`
			} `json:"financialData"`
			AssetProfile struct {
				Sector string `json:"sector"`
			} `json:"assetProfile"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"quoteSummary"`
}

// Fundamentals returns the company snapshot. ROE and dividend yield are fractions.
func (y *YahooClient) Fundamentals(ctx context.Context, ticker string) (*market.Fundamentals, error) {
	var resp quoteSummaryResponse
	q := url.Values{"modules": {"price,summaryDetail,financialData,assetProfile"}}
	if err := y.get(ctx, y.cfg.QuoteSummaryURL+"/"+url.PathEscape(ticker), q, &resp); err != nil {
		return nil, fmt.Errorf("Fundamentals %s: %w", ticker, err)
	}
	if resp.QuoteSummary.Error != nil || len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("Fundamentals %s: %w", ticker, ErrNoData)
	}

	r := resp.QuoteSummary.Result[0]
	f := &market.Fundamentals{
		Ticker:        strings.ToUpper(ticker),
		Name:          r.Price.LongName,
		Sector:        r.AssetProfile.Sector,
		MarketCap:     r.Price.MarketCap.Raw,
		Beta:          r.SummaryDetail.Beta.Raw,
		ROE:           r.FinancialData.ReturnOnEquity.Raw,
		DividendYield: r.SummaryDetail.DividendYield.Raw,
		AvgVolume:     r.SummaryDetail.AverageVolume.Raw,
		High52:        r.SummaryDetail.FiftyTwoWeekHigh.Raw,
		Low52:         r.SummaryDetail.FiftyTwoWeekLow.Raw,
	}
	if f.Name == "" {
		f.Name = r.Price.ShortName
	}
	switch {
	case r.Price.RegularMarketPrice.Raw != nil:
		f.Price = *r.Price.RegularMarketPrice.Raw
	case r.FinancialData.CurrentPrice.Raw != nil:
		f.Price = *r.FinancialData.CurrentPrice.Raw
	}
	return f, nil
}

type yahooContract struct {
	Strike            float64  `json:"strike"`
	Bid               float64  `json:"bid"`
	Ask               float64  `json:"ask"`
	LastPrice         float64  `json:"lastPrice"`
	Volume            int64    `json:"volume"`
	OpenInterest      int64    `json:"openInterest"`
	ImpliedVolatility *float64 `json:"impliedVolatility"`
	Expiration        int64    `json:"expiration"`
}

type optionsResponse struct {
	OptionChain struct {
		Result []struct {
			ExpirationDates []int64 `json:"expirationDates"`
			Quote           struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"quote"`
			Options []struct {
				ExpirationDate int64           `json:"expirationDate"`
				Calls          []yahooContract `json:"calls"`
				Puts           []yahooContract `json:"puts"`
			} `json:"options"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"optionChain"`
}

// Chain is an option chain together with the underlying price it was quoted against.
type Chain struct {
	Ticker          string               `json:"ticker"`
	UnderlyingPrice float64              `json:"underlying_price"`
	Quotes          []market.OptionQuote `json:"quotes"`
}

// OptionChain fetches calls and puts of the nearest maxExpiries expirations. An expiry that
// fails to load is skipped.
func (y *YahooClient) OptionChain(ctx context.Context, ticker string, maxExpiries int) (*Chain, error) {
	endpoint := y.cfg.OptionsURL + "/" + url.PathEscape(ticker)

	var first optionsResponse
	if err := y.get(ctx, endpoint, nil, &first); err != nil {
		return nil, fmt.Errorf("OptionChain %s: %w", ticker, err)
	}
	if first.OptionChain.Error != nil || len(first.OptionChain.Result) == 0 {
		return nil, fmt.Errorf("OptionChain %s: %w", ticker, ErrNoData)
	}
	res := first.OptionChain.Result[0]
	if len(res.ExpirationDates) == 0 {
		return nil, fmt.Errorf("OptionChain %s: %w: no expirations", ticker, ErrNoData)
	}

	expiries := append([]int64(nil), res.ExpirationDates...)
	sort.Slice(expiries, func(i, j int) bool { return expiries[i] < expiries[j] })
	if maxExpiries > 0 && len(expiries) > maxExpiries {
		expiries = expiries[:maxExpiries]
	}

	chain := &Chain{Ticker: strings.ToUpper(ticker), UnderlyingPrice: res.Quote.RegularMarketPrice}
	loaded := make(map[int64]bool)
	for _, o := range res.Options {
		loaded[o.ExpirationDate] = true
		chain.Quotes = append(chain.Quotes, contracts(chain.Ticker, o.ExpirationDate, o.Calls, o.Puts)...)
	}

	for _, exp := range expiries {
		if loaded[exp] {
			continue
		}
		var page optionsResponse
		q := url.Values{"date": {fmt.Sprint(exp)}}
		if err := y.get(ctx, endpoint, q, &page); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			y.log.Warn("⚠️ Skipping expiry", zap.String("ticker", ticker), zap.Int64("expiry", exp), zap.Error(err))
			continue
		}
		for _, r := range page.OptionChain.Result {
			for _, o := range r.Options {
				chain.Quotes = append(chain.Quotes, contracts(chain.Ticker, o.ExpirationDate, o.Calls, o.Puts)...)
			}
		}
	}

	if len(chain.Quotes) == 0 {
		return nil, fmt.Errorf("OptionChain %s: %w", ticker, ErrNoData)
	}
	return chain, nil
}

func contracts(ticker string, expiration int64, calls, puts []yahooContract) []market.OptionQuote {
	out := make([]market.OptionQuote, 0, len(calls)+len(puts))
	add := func(rows []yahooContract, t market.OptionType) {
		for _, c := range rows {
			if c.Strike <= 0 {
				continue
			}
			exp := c.Expiration
			if exp == 0 {
				exp = expiration
			}
			q := market.OptionQuote{
				Ticker:       ticker,
				Expiry:       expiryDate(exp),
				Strike:       c.Strike,
				Type:         t,
				Bid:          c.Bid,
				Ask:          c.Ask,
				Last:         c.LastPrice,
				Volume:       c.Volume,
				OpenInterest: c.OpenInterest,
			}
			if c.ImpliedVolatility != nil && *c.ImpliedVolatility > 0 {
				q.ImpliedVolatility = c.ImpliedVolatility
			}
			out = append(out, q)
		}
	}
	add(calls, market.Call)
	add(puts, market.Put)
	return out
}

// expiryDate truncates a unix expiration to its calendar date in UTC.
func expiryDate(unix int64) time.Time {
	t := time.Unix(unix, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
