package models

import (
	"testing"
	"time"

	"wheel-screener/indicators"
	"wheel-screener/market"
	"wheel-screener/scoring"
	"wheel-screener/signals"
)

func TestSignalBeforeSaveRecomputesGrade(t *testing.T) {
	tests := []struct {
		quality int
		given   string
		want    string
	}{
		{85, "C", "A"},
		{80, "", "A"},
		{79, "A", "B"},
		{60, "A", "B"},
		{59, "A", "C"},
	}

	for _, tt := range tests {
		s := &Signal{QualityScore: tt.quality, Grade: tt.given}
		if err := s.BeforeSave(nil); err != nil {
			t.Fatalf("BeforeSave: %v", err)
		}
		if s.Grade != tt.want {
			t.Errorf("quality %d with grade %q: expected %s, got %s", tt.quality, tt.given, tt.want, s.Grade)
		}
		if s.Status != SignalOpen {
			t.Errorf("expected default status OPEN, got %q", s.Status)
		}
	}
}

func TestNewSignal(t *testing.T) {
	var reasons scoring.Reasons
	reasons.Add("WHEEL_CSP", scoring.Neutral, "entry")
	reasons.Add("TREND_BULLISH", scoring.Positive, "trend")

	sig := signals.Signal{
		Ticker:      "ABC",
		Type:        signals.CashSecuredPut,
		Option:      market.OptionQuote{Type: market.Put, Strike: 44, Expiry: time.Date(2026, 2, 20, 21, 0, 0, 0, time.UTC)},
		Quality:     scoring.SignalQuality{Total: 72, Stock: 30, Technical: 27, Options: 15, AssignmentRisk: 30},
		Grade:       "A",
		Reasons:     reasons,
		GeneratedAt: time.Now(),
	}

	row, err := NewSignal(7, nil, sig)
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	if row.SignalType != "CASH_SECURED_PUT" || row.OptionType != "PUT" {
		t.Errorf("unexpected types %s/%s", row.SignalType, row.OptionType)
	}
	if len(row.ReasonCodes) != 2 || row.ReasonCodes[1] != "TREND_BULLISH" {
		t.Errorf("unexpected reason codes %v", row.ReasonCodes)
	}
	if !row.Expiry.Equal(time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expiry should be truncated to the date, got %v", row.Expiry)
	}

	decoded, err := row.DecodeReasons()
	if err != nil {
		t.Fatalf("DecodeReasons: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Code != "WHEEL_CSP" {
		t.Errorf("unexpected decoded reasons %+v", decoded)
	}

	// caller supplied grade is replaced on save
	_ = row.BeforeSave(nil)
	if row.Grade != "B" {
		t.Errorf("expected grade B after save, got %s", row.Grade)
	}
}

func TestIndicatorRecordSnapshot(t *testing.T) {
	snap := &indicators.Snapshot{
		Ticker:       "ABC",
		Price:        50,
		RSI:          market.Float(42),
		RSISignal:    indicators.NeutralRSI,
		EMA50:        market.Float(48),
		EMA200:       market.Float(45),
		Trend:        indicators.Bullish,
		Bands:        &indicators.Bands{Upper: 55, Middle: 50, Lower: 45},
		BandPosition: indicators.LowerHalf,
		Levels: indicators.Levels{
			Supports:    [indicators.MaxLevels]*float64{market.Float(48.5), market.Float(44)},
			Resistances: [indicators.MaxLevels]*float64{market.Float(52)},
		},
		History: []market.PriceBar{
			{Date: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Close: 49},
			{Date: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), Close: 50},
		},
		CalculatedAt: time.Date(2026, 1, 5, 22, 0, 0, 0, time.UTC),
	}

	rec, err := NewIndicatorRecord(3, snap)
	if err != nil {
		t.Fatalf("NewIndicatorRecord: %v", err)
	}
	if len(rec.SupportLevels) != 2 || len(rec.ResistanceLevels) != 1 {
		t.Errorf("levels should be stored without padding, got %v / %v", rec.SupportLevels, rec.ResistanceLevels)
	}

	back, err := rec.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if back.Trend != indicators.Bullish || back.BandPosition != indicators.LowerHalf {
		t.Errorf("labels not restored: %s %s", back.Trend, back.BandPosition)
	}
	if back.Levels.Supports[2] != nil || *back.Levels.Supports[1] != 44 {
		t.Errorf("supports not restored: %v", back.Levels.Supports)
	}
	if back.Bands == nil || back.Bands.Middle != 50 {
		t.Errorf("bands not restored: %+v", back.Bands)
	}
	if len(back.History) != 2 || back.History[1].Close != 50 {
		t.Errorf("history not restored: %+v", back.History)
	}
	if !back.NearSupport() {
		t.Error("restored snapshot should still be near support")
	}
}

func TestStockApplyFundamentals(t *testing.T) {
	s := &Stock{Ticker: "ABC", Beta: market.Float(1.1), LastPrice: 40}
	now := time.Now()
	s.ApplyFundamentals(market.Fundamentals{Price: 42, MarketCap: market.Float(2e9)}, now)

	if s.LastPrice != 42 || *s.MarketCap != 2e9 {
		t.Errorf("new values not applied: %+v", s)
	}
	if s.Beta == nil || *s.Beta != 1.1 {
		t.Error("missing vendor beta should keep the stored value")
	}
	if s.FundamentalsAt == nil || !s.FundamentalsAt.Equal(now) {
		t.Error("fundamentals timestamp not set")
	}
}

func TestUserConfigRoundTrip(t *testing.T) {
	cfg := signals.DefaultConfig()
	row := NewUserConfig(cfg)
	if got := row.ScreenerConfig(); got != cfg {
		t.Errorf("expected %+v, got %+v", cfg, got)
	}
}
