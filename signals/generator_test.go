package signals

import (
	"math"
	"testing"
	"time"

	"wheel-screener/indicators"
	"wheel-screener/market"
)

var testNow = time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)

func f64(v float64) *float64 {
	return &v
}

func quote(t market.OptionType, days int, strike, delta float64) market.OptionQuote {
	return market.OptionQuote{
		Ticker:            "ABC",
		Expiry:            testNow.AddDate(0, 0, days),
		Strike:            strike,
		Type:              t,
		Bid:               0.9,
		Ask:               1.1,
		OpenInterest:      800,
		ImpliedVolatility: f64(0.35),
		Delta:             f64(delta),
	}
}

func candidate(trend indicators.Trend, chain ...market.OptionQuote) Candidate {
	return Candidate{
		Fundamentals: market.Fundamentals{
			Ticker:    "ABC",
			Price:     45,
			AvgVolume: f64(6_000_000),
			MarketCap: f64(150e9),
			Beta:      f64(1.0),
			ROE:       f64(0.22),
		},
		Snapshot: &indicators.Snapshot{
			Ticker:    "ABC",
			Price:     45,
			RSI:       f64(32),
			RSISignal: indicators.NeutralRSI,
			Trend:     trend,
			Levels: indicators.Levels{
				Supports: [indicators.MaxLevels]*float64{f64(44)},
			},
		},
		Chain: chain,
	}
}

func TestScreen(t *testing.T) {
	base := candidate(indicators.Bullish, quote(market.Put, 30, 44, -0.3))

	tests := []struct {
		name   string
		mutate func(c *Candidate)
		ok     bool
		reason string
	}{
		{"qualifies", func(c *Candidate) {}, true, ""},
		{"price too low", func(c *Candidate) { c.Fundamentals.Price = 9.99 }, false, RejectPrice},
		{"price too high", func(c *Candidate) { c.Fundamentals.Price = 200.01 }, false, RejectPrice},
		{"thin volume", func(c *Candidate) { c.Fundamentals.AvgVolume = f64(900_000) }, false, RejectVolume},
		{"unknown volume", func(c *Candidate) { c.Fundamentals.AvgVolume = nil }, false, RejectVolume},
		{"small cap", func(c *Candidate) { c.Fundamentals.MarketCap = f64(5e8) }, false, RejectMarketCap},
		{"weak ROE", func(c *Candidate) { c.Fundamentals.ROE = f64(0.05) }, false, RejectROE},
		{"unknown ROE passes", func(c *Candidate) { c.Fundamentals.ROE = nil }, true, ""},
		{"calls only", func(c *Candidate) { c.Chain = []market.OptionQuote{quote(market.Call, 30, 50, 0.3)} }, false, RejectNoPuts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			c.Fundamentals = base.Fundamentals
			tt.mutate(&c)
			ok, reason := Screen(c, DefaultConfig())
			if ok != tt.ok || reason != tt.reason {
				t.Errorf("expected (%v, %q), got (%v, %q)", tt.ok, tt.reason, ok, reason)
			}
		})
	}
}

func TestGeneratePuts(t *testing.T) {
	c := candidate(indicators.Bullish,
		quote(market.Put, 30, 43, -0.28),
		quote(market.Put, 30, 44, -0.30),
		quote(market.Put, 20, 40, -0.30),
		quote(market.Put, 30, 42, -0.26),
		quote(market.Put, 30, 41, -0.15), // outside delta bounds
		quote(market.Put, 30, 45, -0.22), // inside bounds, outside 25-35 delta
		quote(market.Put, 60, 44, -0.30), // beyond max DTE
		quote(market.Put, -1, 44, -0.30), // expired
		quote(market.Call, 30, 50, 0.30),
	)

	signals := NewGenerator(DefaultConfig()).GeneratePuts(c, testNow)
	if len(signals) != MaxPerStock {
		t.Fatalf("expected %d signals, got %d", MaxPerStock, len(signals))
	}

	// expiry ascending, then strike descending
	if signals[0].DTE != 20 || signals[0].Option.Strike != 40 {
		t.Errorf("first signal: expected 20 DTE strike 40, got %d DTE strike %.0f", signals[0].DTE, signals[0].Option.Strike)
	}
	if signals[1].DTE != 30 || signals[1].Option.Strike != 44 {
		t.Errorf("second signal: expected 30 DTE strike 44, got %d DTE strike %.0f", signals[1].DTE, signals[1].Option.Strike)
	}

	s := signals[1]
	if s.Type != CashSecuredPut {
		t.Errorf("expected CASH_SECURED_PUT, got %s", s.Type)
	}
	if s.Premium != 1.0 {
		t.Errorf("expected mid premium 1.0, got %v", s.Premium)
	}
	wantErr := 1.0 / 4400 * 100
	if math.Abs(s.ErrPct-wantErr) > 1e-12 {
		t.Errorf("err_pct: expected %v, got %v", wantErr, s.ErrPct)
	}
	if math.Abs(s.APYPct-wantErr*365/30) > 1e-12 {
		t.Errorf("apy_pct: expected %v, got %v", wantErr*365/30, s.APYPct)
	}
	if math.Abs(s.BreakEven-43.99) > 1e-9 {
		t.Errorf("break_even: expected 43.99, got %v", s.BreakEven)
	}
	if s.MaxLossPct != 30 {
		t.Errorf("max_loss_pct: expected 30, got %v", s.MaxLossPct)
	}
	// stock 34 + technical 30 + options 15
	if s.Quality.Total != 79 || s.Grade != "B" {
		t.Errorf("expected quality 79/B, got %d/%s", s.Quality.Total, s.Grade)
	}
	if math.Abs(s.Quality.AssignmentRisk-30) > 1e-9 {
		t.Errorf("assignment risk: expected 30, got %v", s.Quality.AssignmentRisk)
	}

	codes := s.Reasons.Codes()
	if len(codes) == 0 || codes[0] != "WHEEL_CSP" {
		t.Errorf("unexpected reason codes %v", codes)
	}
}

func TestGeneratePutsSkips(t *testing.T) {
	chain := []market.OptionQuote{quote(market.Put, 30, 44, -0.30)}
	gen := NewGenerator(DefaultConfig())

	t.Run("bearish trend", func(t *testing.T) {
		if got := gen.GeneratePuts(candidate(indicators.Bearish, chain...), testNow); len(got) != 0 {
			t.Errorf("expected no signals, got %d", len(got))
		}
	})

	t.Run("missing indicators", func(t *testing.T) {
		c := candidate(indicators.Bullish, chain...)
		c.Snapshot = nil
		if got := gen.GeneratePuts(c, testNow); len(got) != 0 {
			t.Errorf("expected no signals, got %d", len(got))
		}
	})

	t.Run("quality below 60", func(t *testing.T) {
		c := candidate(indicators.NeutralTrend, chain...)
		c.Fundamentals = market.Fundamentals{Ticker: "ABC", Price: 45}
		if got := gen.GeneratePuts(c, testNow); len(got) != 0 {
			t.Errorf("expected no signals, got %d", len(got))
		}
	})

	t.Run("no quote", func(t *testing.T) {
		q := quote(market.Put, 30, 44, -0.30)
		q.Bid, q.Ask, q.Last = 0, 0, 0
		if got := gen.GeneratePuts(candidate(indicators.Bullish, q), testNow); len(got) != 0 {
			t.Errorf("expected no signals, got %d", len(got))
		}
	})
}

func TestGenerateCalls(t *testing.T) {
	c := candidate(indicators.Bearish,
		quote(market.Call, 30, 44, 0.55), // in the money
		quote(market.Call, 30, 50, 0.26),
		quote(market.Call, 30, 47, 0.30),
		quote(market.Call, 30, 52, 0.40),
		quote(market.Put, 30, 44, -0.30),
	)
	h := Holding{Ticker: "ABC", Shares: 100, CostBasis: 40, UnrealizedPLPct: f64(12.5)}

	signals := NewGenerator(DefaultConfig()).GenerateCalls(c, h, testNow)
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	if signals[0].Option.Strike != 47 || signals[1].Option.Strike != 50 {
		t.Errorf("expected strikes 47 then 50, got %.0f then %.0f", signals[0].Option.Strike, signals[1].Option.Strike)
	}

	s := signals[0]
	if s.Type != CoveredCall {
		t.Errorf("expected COVERED_CALL, got %s", s.Type)
	}
	if s.MaxLossPct != 100 {
		t.Errorf("expected max loss 100, got %v", s.MaxLossPct)
	}
	if math.Abs(s.BreakEven-44.99) > 1e-9 {
		t.Errorf("break_even: expected 44.99, got %v", s.BreakEven)
	}

	found := false
	for _, code := range s.Reasons.Codes() {
		if code == "NO_RESISTANCE" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected NO_RESISTANCE reason, got %v", s.Reasons.Codes())
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	bad := DefaultConfig()
	bad.MinDTE, bad.MaxDTE = 50, 10
	if err := bad.Validate(); err == nil {
		t.Error("expected an error for an inverted DTE window")
	}

	bad = DefaultConfig()
	bad.MinDelta, bad.MaxDelta = -0.1, -0.4
	if err := bad.Validate(); err == nil {
		t.Error("expected an error for inverted delta bounds")
	}
}
