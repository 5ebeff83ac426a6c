package positions

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wheel-screener/database"
	models "wheel-screener/database/models_pkg"
)

var testNow = time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func openPut(t *testing.T) *models.OptionPosition {
	t.Helper()
	p, err := Open(OpenRequest{
		Ticker:       " ko ",
		OptionType:   "put",
		Strike:       dec("60"),
		Expiry:       time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC),
		Contracts:    2,
		EntryPremium: dec("1.20"),
	}, testNow)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p
}

func TestOpen(t *testing.T) {
	p := openPut(t)
	if p.Ticker != "KO" || p.OptionType != "PUT" {
		t.Errorf("expected normalised KO PUT, got %s %s", p.Ticker, p.OptionType)
	}
	if !p.TotalPremium.Equal(dec("240")) {
		t.Errorf("expected total premium 240, got %s", p.TotalPremium)
	}
	if p.Status != models.PositionOpen || p.Source != models.SourceManual {
		t.Errorf("unexpected status/source %s/%s", p.Status, p.Source)
	}

	sid := uint(7)
	p2, err := Open(OpenRequest{Ticker: "KO", OptionType: "C", Strike: dec("65"), Expiry: testNow, Contracts: 1, EntryPremium: dec("0.5"), SignalID: &sid}, testNow)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p2.Source != models.SourceSignal || p2.OptionType != "CALL" {
		t.Errorf("expected SIGNAL CALL, got %s %s", p2.Source, p2.OptionType)
	}
}

func TestOpenValidation(t *testing.T) {
	valid := OpenRequest{
		Ticker: "KO", OptionType: "PUT", Strike: dec("60"), Expiry: testNow,
		Contracts: 1, EntryPremium: dec("1"),
	}
	tests := []struct {
		name  string
		edit  func(r *OpenRequest)
		field string
	}{
		{"missing ticker", func(r *OpenRequest) { r.Ticker = "  " }, "ticker"},
		{"bad type", func(r *OpenRequest) { r.OptionType = "STRADDLE" }, "option_type"},
		{"zero strike", func(r *OpenRequest) { r.Strike = decimal.Zero }, "strike"},
		{"no contracts", func(r *OpenRequest) { r.Contracts = 0 }, "contracts"},
		{"negative premium", func(r *OpenRequest) { r.EntryPremium = dec("-1") }, "entry_premium"},
		{"no expiry", func(r *OpenRequest) { r.Expiry = time.Time{} }, "expiry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.edit(&req)
			_, err := Open(req, testNow)
			var verr *database.InvalidParameterError
			if !errors.As(err, &verr) {
				t.Fatalf("expected InvalidParameterError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestClose(t *testing.T) {
	p := openPut(t)
	later := testNow.AddDate(0, 0, 10)
	if err := Close(p, dec("0.40"), later, "50% rule"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p.Status != models.PositionClosed {
		t.Errorf("expected CLOSED, got %s", p.Status)
	}
	if !p.RealizedPL.Decimal.Equal(dec("160")) {
		t.Errorf("expected realized 160, got %s", p.RealizedPL.Decimal)
	}
	if p.ExitDate == nil || !p.ExitDate.Equal(later) {
		t.Errorf("unexpected exit date %v", p.ExitDate)
	}
	if !strings.Contains(p.Notes, "50% rule") {
		t.Errorf("expected reason in notes, got %q", p.Notes)
	}

	if err := Close(p, dec("0.10"), later, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("closing twice: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCloseAtLoss(t *testing.T) {
	p := openPut(t)
	if err := Close(p, dec("2.00"), testNow, ""); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p.RealizedPL.Decimal.Equal(dec("-160")) {
		t.Errorf("expected realized -160, got %s", p.RealizedPL.Decimal)
	}
}

func TestExpire(t *testing.T) {
	p := openPut(t)
	if err := Expire(p, testNow); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if p.Status != models.PositionExpired || !p.RealizedPL.Decimal.Equal(dec("240")) {
		t.Errorf("expected EXPIRED keeping 240, got %s %s", p.Status, p.RealizedPL.Decimal)
	}
	if _, err := Assign(p, testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("assigning expired: expected ErrInvalidTransition, got %v", err)
	}
}

func TestAssignPut(t *testing.T) {
	p := openPut(t)
	shares, err := Assign(p, testNow)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if p.Status != models.PositionAssigned {
		t.Errorf("expected ASSIGNED, got %s", p.Status)
	}
	if shares == nil {
		t.Fatal("expected a stock position")
	}
	if shares.Quantity != 200 || !shares.CostBasis.Equal(dec("58.8")) || !shares.IsActive {
		t.Errorf("unexpected shares %+v", shares)
	}
	if shares.Source != models.SourceAssignment {
		t.Errorf("expected ASSIGNMENT source, got %s", shares.Source)
	}
}

func TestAssignCall(t *testing.T) {
	p, err := Open(OpenRequest{Ticker: "KO", OptionType: "CALL", Strike: dec("65"), Expiry: testNow, Contracts: 1, EntryPremium: dec("0.5")}, testNow)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	shares, err := Assign(p, testNow)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if shares != nil {
		t.Errorf("CALL assignment should not create shares, got %+v", shares)
	}
}

func TestComputeMetrics(t *testing.T) {
	p := openPut(t)
	m := ComputeMetrics(p, testNow)
	if m.DTE != 25 || m.DaysHeld != 0 {
		t.Errorf("expected DTE 25 held 0, got %d %d", m.DTE, m.DaysHeld)
	}
	if !m.MaxLoss.Valid || !m.MaxLoss.Decimal.Equal(dec("11760")) {
		t.Errorf("expected max loss 11760, got %v", m.MaxLoss)
	}
	if !m.BreakEven.Equal(dec("58.8")) {
		t.Errorf("expected break even 58.8, got %s", m.BreakEven)
	}
	if m.UnrealizedPL.Valid || m.UnrealizedPLPct != nil {
		t.Error("unquoted position should have no unrealized P/L")
	}

	p.CurrentPremium = decimal.NewNullDecimal(dec("0.60"))
	m = ComputeMetrics(p, testNow.AddDate(0, 0, 3))
	if !m.UnrealizedPL.Decimal.Equal(dec("120")) {
		t.Errorf("expected unrealized 120, got %s", m.UnrealizedPL.Decimal)
	}
	if m.UnrealizedPLPct == nil || math.Abs(*m.UnrealizedPLPct-50) > 1e-9 {
		t.Errorf("expected 50%%, got %v", m.UnrealizedPLPct)
	}
	if !m.ProfitTarget50.Decimal.Equal(dec("120")) {
		t.Errorf("expected 50%% target 120, got %s", m.ProfitTarget50.Decimal)
	}
	if m.DaysHeld != 3 {
		t.Errorf("expected 3 days held, got %d", m.DaysHeld)
	}

	call := *p
	call.OptionType = "CALL"
	m = ComputeMetrics(&call, testNow)
	if m.MaxLoss.Valid {
		t.Error("covered call should have no max loss")
	}
	if !m.BreakEven.Equal(dec("61.2")) {
		t.Errorf("expected call break even 61.2, got %s", m.BreakEven)
	}
}

func TestComputeStockMetrics(t *testing.T) {
	sp := &models.StockPosition{
		Quantity:         100,
		CostBasis:        dec("58.80"),
		PremiumCollected: dec("50"),
		CurrentPrice:     decimal.NewNullDecimal(dec("61")),
	}
	m := ComputeStockMetrics(sp)
	if !m.TotalCost.Equal(dec("5880")) || !m.UnrealizedPL.Decimal.Equal(dec("220")) {
		t.Errorf("unexpected metrics %+v", m)
	}
	if !m.EffectiveBasis.Equal(dec("58.3")) {
		t.Errorf("expected effective basis 58.3, got %s", m.EffectiveBasis)
	}
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name       string
		premium    string
		price      float64
		now        time.Time
		odds       string
		wantAlert  string
		wantAction string
	}{
		{"far OTM early", "1.00", 66, testNow, "LOW (<20%)", "", ""},
		{"take profit", "0.50", 64, testNow, "LOW (<20%)", "", "TAKE PROFIT"},
		{"deep ITM", "3.00", 55, testNow, "VERY HIGH (>80%)", LevelHigh, "PREPARE FOR ASSIGNMENT"},
		{"expiring tomorrow", "0.10", 62, time.Date(2026, 1, 29, 15, 0, 0, 0, time.UTC), "MODERATE (20-50%)", LevelUrgent, "LET EXPIRE"},
		{"expired", "0.05", 61, time.Date(2026, 2, 2, 15, 0, 0, 0, time.UTC), "MODERATE (20-50%)", LevelCritical, "TAKE PROFIT"},
		{"slightly ITM near expiry", "1.60", 58.5, time.Date(2026, 1, 26, 15, 0, 0, 0, time.UTC), "HIGH (50-80%)", LevelWarning, "CONSIDER ROLLING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := openPut(t)
			p.CurrentPremium = decimal.NewNullDecimal(dec(tt.premium))
			a := Analyze(p, tt.price, tt.now)

			if a.Assignment == nil || a.Assignment.Level != tt.odds {
				t.Errorf("expected odds %q, got %+v", tt.odds, a.Assignment)
			}
			if tt.wantAlert != "" && !hasNotice(a.Alerts, tt.wantAlert) {
				t.Errorf("expected %s alert, got %+v", tt.wantAlert, a.Alerts)
			}
			if tt.wantAlert == "" && len(a.Alerts) > 0 {
				t.Errorf("expected no alerts, got %+v", a.Alerts)
			}
			if tt.wantAction != "" && !hasAction(a.Recommendations, tt.wantAction) {
				t.Errorf("expected %s, got %+v", tt.wantAction, a.Recommendations)
			}
			if a.IfAssigned == nil || math.Abs(a.IfAssigned.CostBasis-58.8) > 1e-9 {
				t.Errorf("unexpected if-assigned %+v", a.IfAssigned)
			}
			if len(a.Recovery) != 3 {
				t.Errorf("expected 3 recovery scenarios, got %d", len(a.Recovery))
			}
			if len(a.Plan.BeforeExpiration) == 0 || len(a.Plan.AtExpiration) == 0 {
				t.Errorf("expected a populated plan, got %+v", a.Plan)
			}
		})
	}
}

func TestAnalyzeCall(t *testing.T) {
	p, err := Open(OpenRequest{Ticker: "KO", OptionType: "CALL", Strike: dec("65"), Expiry: time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC), Contracts: 1, EntryPremium: dec("0.5")}, testNow)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	a := Analyze(p, 63, testNow)
	if a.Assignment != nil || a.IfAssigned != nil || len(a.Recovery) != 0 {
		t.Errorf("CALL analysis should skip PUT assignment sections: %+v", a)
	}
	if a.CurrentPL != 0 {
		t.Errorf("unquoted position should report zero P/L, got %v", a.CurrentPL)
	}
}

func hasNotice(ns []Notice, level string) bool {
	for _, n := range ns {
		if n.Level == level {
			return true
		}
	}
	return false
}

func hasAction(as []Action, action string) bool {
	for _, a := range as {
		if a.Action == action {
			return true
		}
	}
	return false
}
