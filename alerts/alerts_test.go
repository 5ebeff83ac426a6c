package alerts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	models "wheel-screener/database/models_pkg"
	"wheel-screener/notifications"
)

var testNow = time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int { return &v }

func priceAlert(target string, above bool) *models.Alert {
	return &models.Alert{
		AlertType:    models.AlertStockPrice,
		Ticker:       "KO",
		Status:       models.AlertActive,
		TargetPrice:  decimal.NewNullDecimal(decimal.RequireFromString(target)),
		TriggerAbove: above,
	}
}

func TestCheckTrigger(t *testing.T) {
	premium := &models.Alert{
		AlertType:     models.AlertProfit50,
		Status:        models.AlertActive,
		TargetPremium: decimal.NewNullDecimal(decimal.RequireFromString("0.60")),
	}
	expiry := &models.Alert{AlertType: models.AlertExpirationWarning, Status: models.AlertActive}
	dismissed := priceAlert("60", false)
	dismissed.Status = models.AlertDismissed

	tests := []struct {
		name  string
		alert *models.Alert
		in    Input
		want  bool
	}{
		{"below target fires", priceAlert("60", false), Input{StockPrice: fptr(59.5)}, true},
		{"at target fires", priceAlert("60", false), Input{StockPrice: fptr(60)}, true},
		{"above target silent", priceAlert("60", false), Input{StockPrice: fptr(61)}, false},
		{"trigger above fires", priceAlert("65", true), Input{StockPrice: fptr(65.2)}, true},
		{"trigger above silent", priceAlert("65", true), Input{StockPrice: fptr(64)}, false},
		{"missing price", priceAlert("60", false), Input{}, false},
		{"premium at half", premium, Input{CurrentPremium: fptr(0.6)}, true},
		{"premium above half", premium, Input{CurrentPremium: fptr(0.75)}, false},
		{"premium unknown", premium, Input{StockPrice: fptr(10)}, false},
		{"expiry in 3 days", expiry, Input{DTE: iptr(3)}, true},
		{"expiry in 4 days", expiry, Input{DTE: iptr(4)}, false},
		{"not active", dismissed, Input{StockPrice: fptr(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckTrigger(tt.alert, tt.in); got != tt.want {
				t.Errorf("CheckTrigger() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTriggerOnce(t *testing.T) {
	a := priceAlert("60", false)
	if err := Trigger(a, testNow); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if a.Status != models.AlertTriggered || a.TriggeredAt == nil || !a.TriggeredAt.Equal(testNow) {
		t.Errorf("unexpected alert state %+v", a)
	}
	if err := Trigger(a, testNow); !errors.Is(err, ErrAlertNotActive) {
		t.Errorf("second Trigger: expected ErrAlertNotActive, got %v", err)
	}
	if CheckTrigger(a, Input{StockPrice: fptr(1)}) {
		t.Error("triggered alert must not fire again")
	}
}

func TestInferMethod(t *testing.T) {
	tests := []struct {
		chat string
		push bool
		want string
	}{
		{"12345", false, models.NotifyTelegram},
		{"", true, models.NotifyBrowser},
		{"12345", true, models.NotifyBoth},
		{"", false, models.NotifyBoth},
		{"   ", true, models.NotifyBrowser},
	}
	for _, tt := range tests {
		if got := InferMethod(tt.chat, tt.push); got != tt.want {
			t.Errorf("InferMethod(%q, %v) = %s, want %s", tt.chat, tt.push, got, tt.want)
		}
	}
}

func testPosition() *models.OptionPosition {
	return &models.OptionPosition{
		ID:           3,
		Ticker:       "KO",
		OptionType:   "PUT",
		Strike:       decimal.RequireFromString("60"),
		Expiry:       time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC),
		Contracts:    1,
		EntryPremium: decimal.RequireFromString("1.20"),
		Status:       models.PositionOpen,
	}
}

func TestFactories(t *testing.T) {
	p := testPosition()
	d := Delivery{ChatID: "777"}

	profit := NewProfitAlert(p, d)
	if !profit.TargetPremium.Decimal.Equal(decimal.RequireFromString("0.6")) {
		t.Errorf("expected target premium 0.60, got %s", profit.TargetPremium.Decimal)
	}
	if profit.NotificationMethod != models.NotifyTelegram || *profit.PositionID != 3 || profit.Status != models.AlertActive {
		t.Errorf("unexpected profit alert %+v", profit)
	}

	risk := NewAssignmentRiskAlert(p, d)
	if risk == nil || !risk.TargetPrice.Decimal.Equal(p.Strike) || risk.TriggerAbove {
		t.Errorf("unexpected assignment alert %+v", risk)
	}
	call := *p
	call.OptionType = "CALL"
	if NewAssignmentRiskAlert(&call, d) != nil {
		t.Error("CALL positions get no assignment risk alert")
	}

	price, err := NewPriceAlert(" ko ", decimal.RequireFromString("55"), false, "", Delivery{Push: true})
	if err != nil {
		t.Fatalf("NewPriceAlert: %v", err)
	}
	if price.Ticker != "KO" || price.NotificationMethod != models.NotifyBrowser || !strings.Contains(price.Message, "below $55.00") {
		t.Errorf("unexpected price alert %+v", price)
	}
	if _, err := NewPriceAlert("KO", decimal.Zero, true, "", d); err == nil {
		t.Error("expected validation error for zero target")
	}
}

type memStore struct {
	mu      sync.Mutex
	alerts  []models.Alert
	created []*models.Alert
	// listed, when set, holds every ListActiveAlerts caller until all have listed
	listed *sync.WaitGroup
}

func (m *memStore) CreateAlert(a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uint(100 + len(m.created))
	m.created = append(m.created, a)
	return nil
}

func (m *memStore) ListActiveAlerts() ([]models.Alert, error) {
	m.mu.Lock()
	var out []models.Alert
	for _, a := range m.alerts {
		if a.Status == models.AlertActive {
			out = append(out, a)
		}
	}
	m.mu.Unlock()
	if m.listed != nil {
		m.listed.Done()
		m.listed.Wait()
	}
	return out, nil
}

func (m *memStore) HasActiveAlert(positionID uint, alertType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.PositionID != nil && *a.PositionID == positionID && a.AlertType == alertType && a.Status == models.AlertActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) leaveActive(id uint, apply func(a *models.Alert)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id && m.alerts[i].Status == models.AlertActive {
			apply(&m.alerts[i])
			return true
		}
	}
	return false
}

func (m *memStore) TriggerAlert(id uint, at time.Time) (bool, error) {
	return m.leaveActive(id, func(a *models.Alert) {
		a.Status = models.AlertTriggered
		a.TriggeredAt = &at
		a.LastCheckedAt = &at
	}), nil
}

func (m *memStore) ExpireAlert(id uint) (bool, error) {
	return m.leaveActive(id, func(a *models.Alert) { a.Status = models.AlertExpired }), nil
}

func (m *memStore) MarkAlertChecked(id uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id && m.alerts[i].Status == models.AlertActive {
			m.alerts[i].LastCheckedAt = &at
		}
	}
	return nil
}

func (m *memStore) get(id uint) models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			return a
		}
	}
	return models.Alert{}
}

type positionMap map[uint]*models.OptionPosition

func (p positionMap) GetOptionPosition(id uint) (*models.OptionPosition, error) {
	return p[id], nil
}

type priceMap map[string]float64

func (p priceMap) StockPrice(ctx context.Context, ticker string) (float64, error) {
	v, ok := p[ticker]
	if !ok {
		return 0, errors.New("no quote")
	}
	return v, nil
}

func TestCheckAll(t *testing.T) {
	open := testPosition()
	open.CurrentPremium = decimal.NewNullDecimal(decimal.RequireFromString("0.55"))
	closed := testPosition()
	closed.ID = 4
	closed.Status = models.PositionClosed

	pid3, pid4 := uint(3), uint(4)
	store := &memStore{alerts: []models.Alert{
		{ID: 1, AlertType: models.AlertStockPrice, Ticker: "KO", Status: models.AlertActive,
			TargetPrice: decimal.NewNullDecimal(decimal.RequireFromString("60")), NotificationMethod: models.NotifyBoth},
		{ID: 2, AlertType: models.AlertProfit50, Ticker: "KO", PositionID: &pid3, Status: models.AlertActive,
			TargetPremium: decimal.NewNullDecimal(decimal.RequireFromString("0.60"))},
		{ID: 3, AlertType: models.AlertExpirationWarning, Ticker: "KO", PositionID: &pid3, Status: models.AlertActive},
		{ID: 4, AlertType: models.AlertProfit50, Ticker: "KO", PositionID: &pid4, Status: models.AlertActive},
		{ID: 5, AlertType: models.AlertStockPrice, Ticker: "PEP", Status: models.AlertActive,
			TargetPrice: decimal.NewNullDecimal(decimal.RequireFromString("140"))},
	}}

	var sent []notifications.Message
	notifier := notifications.NotifierFunc(func(ctx context.Context, msg notifications.Message) error {
		sent = append(sent, msg)
		return nil
	})

	svc := NewService(store, positionMap{3: open, 4: closed}, priceMap{"KO": 61.5}, notifier, nil)
	svc.now = func() time.Time { return testNow }

	res, err := svc.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	want := CheckResult{Checked: 4, Triggered: 1, Expired: 1}
	if *res != want {
		t.Errorf("expected %+v, got %+v", want, *res)
	}

	if got := store.get(2); got.Status != models.AlertTriggered || got.TriggeredAt == nil {
		t.Errorf("expected profit alert triggered, got %+v", got)
	}
	if got := store.get(1); got.Status != models.AlertActive || got.LastCheckedAt == nil {
		t.Errorf("price alert should stay active with last check stamped: %+v", got)
	}
	if store.get(3).Status != models.AlertActive {
		t.Errorf("expiration warning 25 days out should not fire")
	}
	if got := store.get(4).Status; got != models.AlertExpired {
		t.Errorf("alert on closed position should expire, got %s", got)
	}

	if len(sent) != 1 || sent[0].AlertID != 2 || !strings.Contains(sent[0].Text, "Current premium: $0.55") {
		t.Errorf("unexpected notifications %+v", sent)
	}
}

func TestCheckAllTriggersOnce(t *testing.T) {
	store := &memStore{
		alerts: []models.Alert{
			{ID: 1, AlertType: models.AlertStockPrice, Ticker: "KO", Status: models.AlertActive,
				TargetPrice: decimal.NewNullDecimal(decimal.RequireFromString("60"))},
		},
		listed: &sync.WaitGroup{},
	}
	store.listed.Add(2)

	var sent int32
	notifier := notifications.NotifierFunc(func(ctx context.Context, msg notifications.Message) error {
		atomic.AddInt32(&sent, 1)
		return nil
	})
	// the scheduled check and an API-triggered check share one store
	checkers := []*Service{
		NewService(store, nil, priceMap{"KO": 59}, notifier, nil),
		NewService(store, nil, priceMap{"KO": 59}, notifier, nil),
	}

	var wg sync.WaitGroup
	results := make([]*CheckResult, len(checkers))
	for i, svc := range checkers {
		wg.Add(1)
		go func(i int, svc *Service) {
			defer wg.Done()
			svc.now = func() time.Time { return testNow }
			res, err := svc.CheckAll(context.Background())
			if err != nil {
				t.Errorf("CheckAll: %v", err)
				return
			}
			results[i] = res
		}(i, svc)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&sent); got != 1 {
		t.Errorf("expected exactly one notification, got %d", got)
	}
	triggered := 0
	for _, res := range results {
		if res != nil {
			triggered += res.Triggered
		}
	}
	if triggered != 1 {
		t.Errorf("expected one pass to report the trigger, got %d", triggered)
	}
	if store.get(1).Status != models.AlertTriggered {
		t.Errorf("expected alert triggered, got %s", store.get(1).Status)
	}
}

func TestCheckAllSkipsAlertsThatLeftActive(t *testing.T) {
	store := &memStore{alerts: []models.Alert{
		{ID: 1, AlertType: models.AlertStockPrice, Ticker: "KO", Status: models.AlertActive,
			TargetPrice: decimal.NewNullDecimal(decimal.RequireFromString("60"))},
	}}
	var sent int
	notifier := notifications.NotifierFunc(func(ctx context.Context, msg notifications.Message) error {
		sent++
		return nil
	})
	svc := NewService(store, nil, priceMap{"KO": 59}, notifier, nil)
	svc.now = func() time.Time { return testNow }

	if !store.leaveActive(1, func(a *models.Alert) { a.Status = models.AlertDismissed }) {
		t.Fatal("expected dismissal to apply")
	}

	res, err := svc.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if res.Checked != 0 || res.Triggered != 0 || sent != 0 {
		t.Errorf("dismissed alert must not be checked or notified: %+v sent=%d", *res, sent)
	}

	if won, _ := store.TriggerAlert(1, testNow); won {
		t.Error("terminal alert must not move back to TRIGGERED")
	}
	if store.get(1).Status != models.AlertDismissed {
		t.Errorf("expected alert to stay DISMISSED, got %s", store.get(1).Status)
	}
}

func TestArmPosition(t *testing.T) {
	p := testPosition()
	pid := p.ID
	store := &memStore{alerts: []models.Alert{
		{ID: 1, AlertType: models.AlertProfit50, PositionID: &pid, Status: models.AlertActive},
	}}
	svc := NewService(store, nil, nil, nil, nil)

	n, err := svc.ArmPosition(p, Delivery{Push: true})
	if err != nil {
		t.Fatalf("ArmPosition: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 new alerts, got %d", n)
	}
	for _, a := range store.created {
		if a.AlertType == models.AlertProfit50 {
			t.Error("existing profit alert was duplicated")
		}
	}
}
