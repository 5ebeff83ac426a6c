package scoring

import (
	"math"
	"reflect"
	"testing"

	"wheel-screener/indicators"
	"wheel-screener/market"
)

func floatPtr(v float64) *float64 {
	return &v
}

func wheelFundamentals() market.Fundamentals {
	return market.Fundamentals{
		Ticker:        "WHL",
		Price:         45,
		AvgVolume:     floatPtr(2_000_000),
		MarketCap:     floatPtr(50e9),
		Beta:          floatPtr(1.0),
		DividendYield: floatPtr(0.02),
	}
}

func bullishSnapshot(rsi float64) *indicators.Snapshot {
	return &indicators.Snapshot{
		Ticker:    "WHL",
		Price:     45,
		RSI:       floatPtr(rsi),
		RSISignal: indicators.ClassifyRSI(floatPtr(rsi)),
		Trend:     indicators.Bullish,
		Levels: indicators.Levels{
			Supports: [indicators.MaxLevels]*float64{floatPtr(44)},
		},
	}
}

func TestCalculateWheelScore(t *testing.T) {
	tests := []struct {
		name      string
		puts      PutStats
		liquidity int
		total     int
		grade     string
	}{
		{
			// OI 600 falls in the >500 tier (8 points)
			name:      "reference stock with OI 600",
			puts:      PutStats{Count: 10, AvgIV: floatPtr(0.30), AvgOI: floatPtr(600)},
			liquidity: 14,
			total:     78,
			grade:     "B",
		},
		{
			name:      "reference stock with OI above 1000",
			puts:      PutStats{Count: 10, AvgIV: floatPtr(0.30), AvgOI: floatPtr(1200)},
			liquidity: 16,
			total:     80,
			grade:     "A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := CalculateWheelScore(wheelFundamentals(), bullishSnapshot(32), tt.puts)

			if ws.Technical != 25 {
				t.Errorf("technical: expected 25, got %d", ws.Technical)
			}
			if ws.Stability != 14 {
				t.Errorf("stability: expected 14, got %d", ws.Stability)
			}
			if ws.Price != 10 {
				t.Errorf("price: expected 10, got %d", ws.Price)
			}
			if ws.Volatility != 15 {
				t.Errorf("volatility: expected 15, got %d", ws.Volatility)
			}
			if ws.Liquidity != tt.liquidity {
				t.Errorf("liquidity: expected %d, got %d", tt.liquidity, ws.Liquidity)
			}
			if ws.Total != tt.total || ws.Grade != tt.grade {
				t.Errorf("expected %d/%s, got %d/%s", tt.total, tt.grade, ws.Total, ws.Grade)
			}
			if sum := ws.Volatility + ws.Liquidity + ws.Technical + ws.Stability + ws.Price; sum != ws.Total {
				t.Errorf("total %d does not equal sub-score sum %d", ws.Total, sum)
			}
		})
	}
}

func TestCalculateWheelScoreMissingData(t *testing.T) {
	ws := CalculateWheelScore(market.Fundamentals{Ticker: "NONE"}, nil, PutStats{})
	if ws.Total != 0 || ws.Grade != "D" {
		t.Errorf("expected 0/D, got %d/%s", ws.Total, ws.Grade)
	}
	if ws.HasData {
		t.Error("expected HasData=false without indicators or puts")
	}
}

func TestWheelScoreCaps(t *testing.T) {
	f := market.Fundamentals{
		Price:         30,
		AvgVolume:     floatPtr(50_000_000),
		MarketCap:     floatPtr(2e12),
		Beta:          floatPtr(0.5),
		DividendYield: floatPtr(0.05),
	}
	ws := CalculateWheelScore(f, bullishSnapshot(20), PutStats{Count: 1, AvgIV: floatPtr(0.9), AvgOI: floatPtr(5000)})
	if ws.Liquidity != MaxLiquidity || ws.Stability != MaxStability || ws.Technical != MaxTechnical {
		t.Errorf("caps not applied: %+v", ws)
	}
	if ws.Total != 100 || ws.Grade != "A" {
		t.Errorf("expected 100/A, got %d/%s", ws.Total, ws.Grade)
	}
}

func TestWheelGrade(t *testing.T) {
	cases := map[int]string{100: "A", 80: "A", 79: "B", 65: "B", 64: "C", 50: "C", 49: "D", 0: "D"}
	for total, want := range cases {
		if got := WheelGrade(total); got != want {
			t.Errorf("WheelGrade(%d): expected %s, got %s", total, want, got)
		}
	}
}

func TestPricePoints(t *testing.T) {
	cases := []struct {
		price float64
		want  int
	}{
		{0, 0}, {3, 3}, {5, 7}, {10, 10}, {50, 10}, {50.01, 7}, {100, 7}, {150, 5}, {200, 5}, {450, 2},
	}
	for _, c := range cases {
		if got := pricePoints(c.price); got != c.want {
			t.Errorf("pricePoints(%v): expected %d, got %d", c.price, c.want, got)
		}
	}
}

func TestScoreTrend(t *testing.T) {
	if got := ScoreTrend(70, 60); got != TrendImproving {
		t.Errorf("expected improving, got %s", got)
	}
	if got := ScoreTrend(60, 70); got != TrendDeclining {
		t.Errorf("expected declining, got %s", got)
	}
	if got := ScoreTrend(65, 60); got != TrendStable {
		t.Errorf("expected stable, got %s", got)
	}
}

func TestCalculateEntrySignal(t *testing.T) {
	f := market.Fundamentals{
		Ticker: "ENT",
		Price:  100,
		High52: floatPtr(180),
		Low52:  floatPtr(80),
	}
	snap := &indicators.Snapshot{
		Ticker:       "ENT",
		Price:        100,
		RSI:          floatPtr(28),
		RSISignal:    indicators.Oversold,
		Trend:        indicators.Bullish,
		BandPosition: indicators.LowerHalf,
		Levels: indicators.Levels{
			Supports: [indicators.MaxLevels]*float64{floatPtr(100 / 1.02)},
		},
	}
	puts := PutStats{Count: 20, AvgIV: floatPtr(0.45), AvgOI: floatPtr(700)}

	es := CalculateEntrySignal(f, snap, puts)

	if es.Technical != 40 || es.Premium != 30 || es.Context != 18 || es.Penalty != 0 {
		t.Errorf("unexpected categories: technical=%d premium=%d context=%d penalty=%d",
			es.Technical, es.Premium, es.Context, es.Penalty)
	}
	if es.Score != 98 {
		t.Errorf("expected score 98, got %d", es.Score)
	}
	if es.Signal != SignalSellPutNow || es.Quality != QualityExcellent {
		t.Errorf("expected SELL PUT NOW/EXCELLENT, got %s/%s", es.Signal, es.Quality)
	}

	wantCodes := []string{"RSI_OVERSOLD", "NEAR_SUPPORT", "TREND_BULLISH", "IV_HIGH", "OI_HIGH", "RANGE_LOW", "BB_MIDDLE"}
	if got := es.Reasons.Codes(); !reflect.DeepEqual(got, wantCodes) {
		t.Errorf("reason order:\n got  %v\n want %v", got, wantCodes)
	}
}

func TestCalculateEntrySignalPenalties(t *testing.T) {
	f := market.Fundamentals{Price: 100, High52: floatPtr(101), Low52: floatPtr(60)}
	snap := &indicators.Snapshot{
		Price:        100,
		RSI:          floatPtr(80),
		RSISignal:    indicators.Overbought,
		Trend:        indicators.Bearish,
		BandPosition: indicators.AboveUpper,
		Levels: indicators.Levels{
			Resistances: [indicators.MaxLevels]*float64{floatPtr(101)},
		},
	}

	es := CalculateEntrySignal(f, snap, PutStats{})
	if es.Penalty != 12 {
		t.Errorf("expected penalty 12, got %d", es.Penalty)
	}
	// everything scores zero, the penalty floors at zero before the base offset
	if es.Score != 10 {
		t.Errorf("expected score 10, got %d", es.Score)
	}
	if es.Signal != SignalAvoid || es.Quality != QualityPoor {
		t.Errorf("expected AVOID/POOR, got %s/%s", es.Signal, es.Quality)
	}
}

func TestCalculateEntrySignalNoData(t *testing.T) {
	es := CalculateEntrySignal(market.Fundamentals{Price: 50}, nil, PutStats{})
	if es.Signal != SignalNoData || es.Quality != QualityNA || es.Score != 0 {
		t.Errorf("unexpected result %+v", es)
	}
	if len(es.Reasons) != 1 || es.Reasons[0].Message != "indicators missing." {
		t.Errorf("expected a single missing-indicators reason, got %+v", es.Reasons)
	}
}

func TestEntryLabels(t *testing.T) {
	cases := []struct {
		score   int
		signal  string
		quality string
	}{
		{75, SignalSellPutNow, QualityExcellent},
		{74, SignalGoodEntry, QualityGood},
		{60, SignalGoodEntry, QualityGood},
		{59, SignalWaitForDip, QualityFair},
		{45, SignalWaitForDip, QualityFair},
		{44, SignalAvoid, QualityPoor},
	}
	for _, c := range cases {
		s, q := entryLabels(c.score)
		if s != c.signal || q != c.quality {
			t.Errorf("score %d: expected %s/%s, got %s/%s", c.score, c.signal, c.quality, s, q)
		}
	}
}

func TestEstimateDelta(t *testing.T) {
	tests := []struct {
		name   string
		typ    market.OptionType
		price  float64
		strike float64
		dte    int
		want   float64
	}{
		{"ITM call 9% moneyness", market.Call, 110, 100, 30, 0.6},
		{"deep ITM call", market.Call, 120, 100, 30, 0.8},
		{"OTM call", market.Call, 100, 108, 30, 0.25},
		{"far OTM call", market.Call, 100, 130, 30, 0.15},
		{"OTM put 5%", market.Put, 100, 95, 30, -0.35},
		{"far OTM put", market.Put, 100, 80, 30, -0.15},
		{"ITM put", market.Put, 100, 108, 30, -0.6},
		{"ATM put", market.Put, 100, 100, 30, -0.5},
		{"time decay under a week", market.Call, 110, 100, 3, 0.4971},
		{"one day left", market.Put, 100, 95, 1, -0.26},
		{"expiring today is unscaled", market.Put, 100, 95, 0, -0.35},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateDelta(tt.typ, tt.price, tt.strike, tt.dte)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSummarizePuts(t *testing.T) {
	chain := []market.OptionQuote{
		{Type: market.Put, ImpliedVolatility: floatPtr(0.2), OpenInterest: 100},
		{Type: market.Put, ImpliedVolatility: floatPtr(0.4), OpenInterest: 0},
		{Type: market.Put, OpenInterest: 300},
		{Type: market.Call, ImpliedVolatility: floatPtr(0.9), OpenInterest: 9000},
	}
	stats := SummarizePuts(chain)
	if stats.Count != 3 {
		t.Errorf("expected 3 puts, got %d", stats.Count)
	}
	if stats.AvgIV == nil || math.Abs(*stats.AvgIV-0.3) > 1e-9 {
		t.Errorf("expected avg IV 0.3, got %v", stats.AvgIV)
	}
	if stats.AvgOI == nil || *stats.AvgOI != 200 {
		t.Errorf("expected avg OI 200, got %v", stats.AvgOI)
	}

	if empty := SummarizePuts(nil); empty.AvgIV != nil || empty.AvgOI != nil {
		t.Error("expected nil averages for an empty chain")
	}
}

func TestCalculateSignalQuality(t *testing.T) {
	f := market.Fundamentals{
		Price:     45,
		ROE:       floatPtr(0.22),
		MarketCap: floatPtr(150e9),
		Beta:      floatPtr(1.0),
		AvgVolume: floatPtr(6_000_000),
	}
	q := market.OptionQuote{
		Type:              market.Put,
		Strike:            43,
		Delta:             floatPtr(-0.30),
		ImpliedVolatility: floatPtr(0.35),
	}

	sq := CalculateSignalQuality(f, bullishSnapshot(32), q, 25)
	if sq.Stock != 34 {
		t.Errorf("stock: expected 34, got %d", sq.Stock)
	}
	// NEUTRAL RSI (10) + BULLISH (10) + near support at 44 (10)
	if sq.Technical != 30 {
		t.Errorf("technical: expected 30, got %d", sq.Technical)
	}
	if sq.Options != 23 {
		t.Errorf("options: expected 23, got %d", sq.Options)
	}
	if sq.Total != 87 {
		t.Errorf("total: expected 87, got %d", sq.Total)
	}
	if math.Abs(sq.AssignmentRisk-30) > 1e-9 {
		t.Errorf("assignment risk: expected 30, got %v", sq.AssignmentRisk)
	}

	flat := bullishSnapshot(32)
	flat.RSI = nil
	flat.RSISignal = ""
	if got := CalculateSignalQuality(f, flat, q, 25).Technical; got != 30 {
		t.Errorf("missing RSI should score as NEUTRAL, expected technical 30, got %d", got)
	}

	noInd := CalculateSignalQuality(market.Fundamentals{}, nil, market.OptionQuote{}, 0)
	if noInd.Technical != 15 {
		t.Errorf("missing indicators should score 15 technical, got %d", noInd.Technical)
	}
	if noInd.AssignmentRisk != defaultAssignmentRisk {
		t.Errorf("missing delta should default assignment risk, got %v", noInd.AssignmentRisk)
	}
}

func TestSignalGrade(t *testing.T) {
	cases := map[int]string{95: "A", 80: "A", 79: "B", 60: "B", 59: "C", 0: "C"}
	for q, want := range cases {
		if got := SignalGrade(q); got != want {
			t.Errorf("SignalGrade(%d): expected %s, got %s", q, want, got)
		}
	}
}

func TestRecommend(t *testing.T) {
	t.Run("without indicators", func(t *testing.T) {
		rec := Recommend(market.Fundamentals{}, nil)
		if rec.Label != "Calculate Indicators" || rec.Confidence != 0 {
			t.Errorf("unexpected recommendation %+v", rec)
		}
	})

	t.Run("oversold bullish near support", func(t *testing.T) {
		snap := bullishSnapshot(25)
		snap.BandPosition = indicators.BelowLower
		rec := Recommend(wheelFundamentals(), snap)
		// 30 + 25 + 25 + 20
		if rec.Bullish != 100 || rec.Bearish != 0 {
			t.Errorf("expected 100/0, got %d/%d", rec.Bullish, rec.Bearish)
		}
		if rec.Label != "Strong Buy" || rec.Action != "buy" || rec.Confidence != 100 {
			t.Errorf("unexpected recommendation %+v", rec)
		}
		// beta 15 + volume 15 + market cap 10 + RSI 20 + trend 15 + support 10
		if rec.WheelPoints != 85 || rec.WheelRating != "Excellent for Wheel" {
			t.Errorf("expected 85 Excellent, got %d %s", rec.WheelPoints, rec.WheelRating)
		}
	})

	t.Run("bearish overbought", func(t *testing.T) {
		snap := &indicators.Snapshot{
			Price:        100,
			RSI:          floatPtr(75),
			Trend:        indicators.Bearish,
			BandPosition: indicators.AboveUpper,
		}
		rec := Recommend(market.Fundamentals{Price: 100}, snap)
		if rec.Label != "Strong Sell / Avoid" || rec.Confidence != 75 {
			t.Errorf("unexpected recommendation %+v", rec)
		}
	})
}
