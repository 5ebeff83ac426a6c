package positions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wheel-screener/database"
	models "wheel-screener/database/models_pkg"
	"wheel-screener/gateway"
)

type memStore struct {
	mu      sync.Mutex
	options []*models.OptionPosition
	stocks  []*models.StockPosition
	orders  []*models.Order
	marks   map[uint]decimal.Decimal
	// failing tickers make saves and lookups of their options fail
	failing map[string]bool
}

var errStoreDown = errors.New("store unavailable")

func newMemStore() *memStore {
	return &memStore{marks: make(map[uint]decimal.Decimal)}
}

func (m *memStore) CreateOptionPosition(p *models.OptionPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uint(len(m.options) + 1)
	m.options = append(m.options, p)
	return nil
}

func (m *memStore) SaveOptionPosition(p *models.OptionPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing[p.Ticker] {
		return errStoreDown
	}
	for i, o := range m.options {
		if o.ID == p.ID {
			m.options[i] = p
		}
	}
	return nil
}

func (m *memStore) GetOptionPosition(id uint) (*models.OptionPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.options {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListOptionPositions(status string) ([]models.OptionPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OptionPosition
	for _, o := range m.options {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) FindOpenOptionPosition(ticker, optionType string, strike decimal.Decimal, expiry time.Time) (*models.OptionPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing[ticker] {
		return nil, errStoreDown
	}
	for _, o := range m.options {
		if o.Status == models.PositionOpen && o.Ticker == ticker && o.OptionType == optionType &&
			o.Strike.Equal(strike) && o.Expiry.Equal(models.DateOf(expiry)) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateCurrentPremium(id uint, premium decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[id] = premium
	for _, o := range m.options {
		if o.ID == id {
			o.CurrentPremium = decimal.NewNullDecimal(premium)
		}
	}
	return nil
}

func (m *memStore) CreateStockPosition(p *models.StockPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uint(len(m.stocks) + 1)
	m.stocks = append(m.stocks, p)
	return nil
}

func (m *memStore) SaveStockPosition(p *models.StockPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = uint(len(m.stocks) + 1)
		m.stocks = append(m.stocks, p)
		return nil
	}
	for i, s := range m.stocks {
		if s.ID == p.ID {
			m.stocks[i] = p
		}
	}
	return nil
}

func (m *memStore) ListStockPositions(activeOnly bool) ([]models.StockPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StockPosition
	for _, s := range m.stocks {
		if !activeOnly || s.IsActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) FindActiveStockPosition(ticker string) (*models.StockPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stocks {
		if s.IsActive && s.Ticker == ticker {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) AssignPosition(p *models.OptionPosition, shares *models.StockPosition) error {
	if err := m.SaveOptionPosition(p); err != nil {
		return err
	}
	if shares != nil {
		return m.SaveStockPosition(shares)
	}
	return nil
}

func (m *memStore) CreateOrder(o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = uint(len(m.orders) + 1)
	m.orders = append(m.orders, o)
	return nil
}

func (m *memStore) SaveOrder(o *models.Order) error { return nil }

type fakeBroker struct {
	portfolio *gateway.Portfolio
	stock     map[string]float64
	option    map[string]float64
	placeErr  error
	placed    []gateway.OrderRequest
	cancelled []string
	mu        sync.Mutex
}

func (f *fakeBroker) Positions(ctx context.Context) (*gateway.Portfolio, error) {
	return f.portfolio, nil
}

func (f *fakeBroker) StockQuote(ctx context.Context, ticker string) (*gateway.Quote, error) {
	p, ok := f.stock[ticker]
	if !ok {
		return nil, gateway.ErrNotConnected
	}
	return &gateway.Quote{Last: p}, nil
}

func (f *fakeBroker) OptionQuote(ctx context.Context, ticker string, expiry time.Time, strike float64, right string) (*gateway.Quote, error) {
	p, ok := f.option[ticker]
	if !ok {
		return nil, gateway.ErrNotConnected
	}
	return &gateway.Quote{Bid: p - 0.05, Ask: p + 0.05, Mid: p}, nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	return &gateway.OrderResult{OrderID: "42", Status: "Submitted"}, nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func newTestService(store *memStore, broker Broker) *Service {
	s := NewService(store, broker, nil)
	s.now = func() time.Time { return testNow }
	return s
}

var jan30 = time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

func TestServiceLifecycle(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)

	p, err := svc.OpenPosition(OpenRequest{Ticker: "KO", OptionType: "PUT", Strike: dec("60"), Expiry: jan30, Contracts: 1, EntryPremium: dec("1")})
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	closed, err := svc.ClosePosition(p.ID, dec("0.5"), "")
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if !closed.RealizedPL.Decimal.Equal(dec("50")) {
		t.Errorf("expected realized 50, got %s", closed.RealizedPL.Decimal)
	}

	if _, err := svc.ExpirePosition(p.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	var nf *database.NotFoundError
	if _, err := svc.ClosePosition(99, dec("0"), ""); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	if _, err := svc.SyncFromGateway(context.Background()); !errors.Is(err, ErrNoBroker) {
		t.Errorf("expected ErrNoBroker, got %v", err)
	}
}

func TestServiceAssignCallRetiresShares(t *testing.T) {
	store := newMemStore()
	store.CreateStockPosition(&models.StockPosition{Ticker: "KO", Quantity: 100, CostBasis: dec("58"), IsActive: true})
	svc := newTestService(store, nil)

	p, err := svc.OpenPosition(OpenRequest{Ticker: "KO", OptionType: "CALL", Strike: dec("62"), Expiry: jan30, Contracts: 1, EntryPremium: dec("0.6")})
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	_, shares, err := svc.AssignPosition(p.ID)
	if err != nil {
		t.Fatalf("AssignPosition: %v", err)
	}
	if shares == nil || shares.IsActive || shares.Quantity != 0 || shares.ClosedAt == nil {
		t.Errorf("expected shares called away, got %+v", shares)
	}
}

func TestSyncFromGateway(t *testing.T) {
	store := newMemStore()
	feb20 := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	imported := func(req OpenRequest) *models.OptionPosition {
		req.Source = models.SourceGateway
		p, _ := Open(req, testNow)
		store.CreateOptionPosition(p)
		return p
	}

	// already tracked, still held
	tracked := imported(OpenRequest{Ticker: "KO", OptionType: "PUT", Strike: dec("60"), Expiry: jan30, Contracts: 1, EntryPremium: dec("1")})
	// imported earlier, no longer at the broker
	gone := imported(OpenRequest{Ticker: "PEP", OptionType: "PUT", Strike: dec("150"), Expiry: jan30, Contracts: 1, EntryPremium: dec("2")})
	// imported earlier, past expiry and gone from the broker
	old := imported(OpenRequest{Ticker: "T", OptionType: "PUT", Strike: dec("20"), Expiry: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Contracts: 1, EntryPremium: dec("0.3")})

	broker := &fakeBroker{portfolio: &gateway.Portfolio{
		Options: []gateway.Position{
			{Ticker: "KO", Right: "P", Strike: 60, Expiry: jan30, Quantity: -1, MarketValue: -45, AvgCost: 100},
			{Ticker: "VZ", Right: "P", Strike: 38, Expiry: feb20, Quantity: -2, MarketValue: -130, AvgCost: 85},
			{Ticker: "MSFT", Right: "C", Strike: 500, Expiry: feb20, Quantity: 1, MarketValue: 300},
		},
		Stocks: []gateway.Position{
			{Ticker: "KO", Quantity: 100, MarketPrice: 61.5, AvgCost: 58.2},
		},
	}}
	svc := newTestService(store, broker)

	res, err := svc.SyncFromGateway(context.Background())
	if err != nil {
		t.Fatalf("SyncFromGateway: %v", err)
	}
	want := SyncResult{Imported: 1, Updated: 1, Missing: 2, StocksSynced: 1, SkippedLong: 1, OpenAtBroker: 2}
	if *res != want {
		t.Errorf("expected %+v, got %+v", want, *res)
	}

	if !store.marks[tracked.ID].Equal(dec("0.45")) {
		t.Errorf("expected KO mark 0.45, got %s", store.marks[tracked.ID])
	}

	vz := store.options[3]
	if vz.Ticker != "VZ" || vz.Contracts != 2 || vz.Source != models.SourceGateway {
		t.Errorf("unexpected import %+v", vz)
	}
	if !vz.EntryPremium.Equal(dec("0.85")) || !vz.TotalPremium.Equal(dec("170")) {
		t.Errorf("expected entry 0.85 total 170, got %s %s", vz.EntryPremium, vz.TotalPremium)
	}
	if !vz.CurrentPremium.Decimal.Equal(dec("0.65")) {
		t.Errorf("expected mark 0.65, got %s", vz.CurrentPremium.Decimal)
	}

	for _, p := range []*models.OptionPosition{gone, old} {
		if p.Status != models.PositionOpen || p.RealizedPL.Valid {
			t.Errorf("%s: missing broker line must leave the position OPEN, got %s realized=%v", p.Ticker, p.Status, p.RealizedPL)
		}
	}
	if len(store.stocks) != 1 || store.stocks[0].Quantity != 100 || store.stocks[0].Source != models.SourceGateway {
		t.Errorf("unexpected stocks %+v", store.stocks)
	}
}

func TestSyncFromGatewayLeavesLocalPositions(t *testing.T) {
	tests := []struct {
		name      string
		source    string
		portfolio *gateway.Portfolio
	}{
		{name: "manual with empty broker", source: models.SourceManual, portfolio: &gateway.Portfolio{}},
		{name: "signal with empty broker", source: models.SourceSignal, portfolio: &gateway.Portfolio{}},
		{
			name:      "gateway import behind an unreadable line",
			source:    models.SourceGateway,
			portfolio: &gateway.Portfolio{Unreadable: []string{"KO"}},
		},
		{
			name:   "gateway import behind an unknown right",
			source: models.SourceGateway,
			portfolio: &gateway.Portfolio{Options: []gateway.Position{
				{Ticker: "KO", Right: "", Strike: 60, Expiry: jan30, Quantity: -1},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			p, _ := Open(OpenRequest{Ticker: "KO", OptionType: "PUT", Strike: dec("60"), Expiry: jan30, Contracts: 1, EntryPremium: dec("1"), Source: tt.source}, testNow)
			store.CreateOptionPosition(p)
			svc := newTestService(store, &fakeBroker{portfolio: tt.portfolio})

			res, err := svc.SyncFromGateway(context.Background())
			if err != nil {
				t.Fatalf("SyncFromGateway: %v", err)
			}
			if res.Missing != 0 {
				t.Errorf("expected nothing reported missing, got %d", res.Missing)
			}
			got := store.options[0]
			if got.Status != models.PositionOpen || got.RealizedPL.Valid || got.ExitDate != nil {
				t.Errorf("expected position untouched, got status=%s realized=%v", got.Status, got.RealizedPL)
			}
		})
	}
}

func TestSyncFromGatewayContinuesPastFailures(t *testing.T) {
	store := newMemStore()
	store.failing = map[string]bool{"PEP": true}
	broker := &fakeBroker{portfolio: &gateway.Portfolio{
		Options: []gateway.Position{
			{Ticker: "PEP", Right: "P", Strike: 150, Expiry: jan30, Quantity: -1, MarketValue: -80, AvgCost: 120},
			{Ticker: "KO", Right: "P", Strike: 60, Expiry: jan30, Quantity: -1, MarketValue: -45, AvgCost: 100},
		},
	}}
	svc := newTestService(store, broker)

	res, err := svc.SyncFromGateway(context.Background())
	if err != nil {
		t.Fatalf("SyncFromGateway: %v", err)
	}
	if res.Errors != 1 || res.Imported != 1 {
		t.Errorf("expected 1 error and 1 import, got %+v", *res)
	}
	if len(store.options) != 1 || store.options[0].Ticker != "KO" {
		t.Errorf("expected KO imported after the PEP failure, got %+v", store.options)
	}
}

func TestRefreshQuotes(t *testing.T) {
	store := newMemStore()
	for _, tk := range []string{"KO", "PEP", "VZ"} {
		p, _ := Open(OpenRequest{Ticker: tk, OptionType: "PUT", Strike: dec("50"), Expiry: jan30, Contracts: 1, EntryPremium: dec("1")}, testNow)
		store.CreateOptionPosition(p)
	}
	broker := &fakeBroker{option: map[string]float64{"KO": 0.4, "VZ": 0.7}}
	svc := newTestService(store, broker)

	updated, failed, err := svc.RefreshQuotes(context.Background())
	if err != nil {
		t.Fatalf("RefreshQuotes: %v", err)
	}
	if updated != 2 || failed != 1 {
		t.Errorf("expected 2 updated 1 failed, got %d %d", updated, failed)
	}
	if !store.marks[1].Equal(dec("0.4")) {
		t.Errorf("expected KO mark 0.4, got %s", store.marks[1])
	}
}

func TestDetectExpirations(t *testing.T) {
	store := newMemStore()
	jan2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	mk := func(ticker, typ, strike string, expiry time.Time) {
		p, _ := Open(OpenRequest{Ticker: ticker, OptionType: typ, Strike: dec(strike), Expiry: expiry, Contracts: 1, EntryPremium: dec("1")}, testNow)
		store.CreateOptionPosition(p)
	}
	mk("KO", "PUT", "60", jan2)   // ITM put, assigned
	mk("PEP", "PUT", "150", jan2) // OTM put, expires
	mk("VZ", "PUT", "40", jan2)   // no quote, stays open
	mk("T", "PUT", "20", jan30)   // not expired yet

	broker := &fakeBroker{stock: map[string]float64{"KO": 58, "PEP": 155}}
	svc := newTestService(store, broker)

	res, err := svc.DetectExpirations(context.Background())
	if err != nil {
		t.Fatalf("DetectExpirations: %v", err)
	}
	if want := (ExpirationResult{Expired: 1, Assigned: 1, Pending: 1}); *res != want {
		t.Errorf("expected %+v, got %+v", want, *res)
	}

	want := []string{models.PositionAssigned, models.PositionExpired, models.PositionOpen, models.PositionOpen}
	for i, st := range want {
		if store.options[i].Status != st {
			t.Errorf("%s: expected %s, got %s", store.options[i].Ticker, st, store.options[i].Status)
		}
	}
	if len(store.stocks) != 1 || store.stocks[0].Quantity != 100 || !store.stocks[0].CostBasis.Equal(dec("59")) {
		t.Errorf("expected 100 KO shares at 59, got %+v", store.stocks)
	}
}

func TestDetectExpirationsContinuesPastFailures(t *testing.T) {
	store := newMemStore()
	jan2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	for _, tk := range []string{"KO", "PEP", "VZ"} {
		p, _ := Open(OpenRequest{Ticker: tk, OptionType: "PUT", Strike: dec("50"), Expiry: jan2, Contracts: 1, EntryPremium: dec("1")}, testNow)
		store.CreateOptionPosition(p)
	}
	store.failing = map[string]bool{"KO": true, "PEP": true}
	broker := &fakeBroker{stock: map[string]float64{"KO": 45, "PEP": 55, "VZ": 55}}
	svc := newTestService(store, broker)

	res, err := svc.DetectExpirations(context.Background())
	if err != nil {
		t.Fatalf("DetectExpirations: %v", err)
	}
	if want := (ExpirationResult{Expired: 1, Errors: 2}); *res != want {
		t.Errorf("expected %+v, got %+v", want, *res)
	}
	if store.options[2].Status != models.PositionExpired {
		t.Errorf("expected VZ expired after earlier failures, got %s", store.options[2].Status)
	}
	if store.options[0].Status != models.PositionOpen {
		t.Errorf("expected failed KO assignment to stay OPEN, got %s", store.options[0].Status)
	}
}

func TestSubmitOrder(t *testing.T) {
	tests := []struct {
		name    string
		req     OrderRequest
		wantErr bool
		status  string
	}{
		{
			name:   "cash secured put",
			req:    OrderRequest{Ticker: "ko", Action: "sell", Quantity: 1, LimitPrice: 0.85, Strike: 60, Expiry: jan30, OptionType: "PUT"},
			status: models.OrderSubmitted,
		},
		{
			name:    "exceeds max position size",
			req:     OrderRequest{Ticker: "KO", Action: "SELL", Quantity: 2, LimitPrice: 0.85, Strike: 60, Expiry: jan30, OptionType: "PUT"},
			wantErr: true,
		},
		{
			name:    "missing option type",
			req:     OrderRequest{Ticker: "KO", Action: "SELL", Quantity: 1, LimitPrice: 0.85, Strike: 60, Expiry: jan30},
			wantErr: true,
		},
		{
			name:   "stock order",
			req:    OrderRequest{Ticker: "KO", SecType: "STK", Action: "BUY", Quantity: 100, LimitPrice: 60},
			status: models.OrderSubmitted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			broker := &fakeBroker{}
			svc := newTestService(store, broker)
			svc.MaxPositionSize = 10000

			order, err := svc.SubmitOrder(context.Background(), tt.req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if len(broker.placed) != 0 {
					t.Error("invalid order reached the broker")
				}
				return
			}
			if err != nil {
				t.Fatalf("SubmitOrder: %v", err)
			}
			if order.Status != tt.status || order.GatewayOrderID != "42" {
				t.Errorf("unexpected order %+v", order)
			}
			if len(store.orders) != 1 {
				t.Errorf("expected order persisted, got %d", len(store.orders))
			}
		})
	}
}

func TestSubmitOrderRejected(t *testing.T) {
	store := newMemStore()
	broker := &fakeBroker{placeErr: errors.New("insufficient buying power")}
	svc := newTestService(store, broker)

	order, err := svc.SubmitOrder(context.Background(), OrderRequest{Ticker: "KO", Action: "SELL", Quantity: 1, LimitPrice: 0.85, Strike: 60, Expiry: jan30, OptionType: "P"})
	if err == nil {
		t.Fatal("expected error")
	}
	if order == nil || order.Status != models.OrderRejected || len(store.orders) != 1 {
		t.Errorf("expected rejected order recorded, got %+v", order)
	}
	if broker.placed[0].Right != "P" {
		t.Errorf("expected right P, got %q", broker.placed[0].Right)
	}
}
