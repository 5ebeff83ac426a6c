package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wheel-screener/alerts"
	models "wheel-screener/database/models_pkg"
	sigrepo "wheel-screener/database/signals"
	"wheel-screener/health"
	"wheel-screener/jobs"
	"wheel-screener/positions"
	"wheel-screener/signals"
)

// StockStore is the stock, watchlist and score side of the database.
type StockStore interface {
	GetStock(ticker string) (*models.Stock, error)
	ListStocks() ([]models.Stock, error)
	ListWatchlist() ([]models.Watchlist, error)
	WatchlistTickers() ([]string, error)
	AddToWatchlist(ticker, notes string) (*models.Watchlist, error)
	RemoveFromWatchlist(ticker string) (bool, error)
	GetIndicators(stockID uint) (*models.IndicatorRecord, error)
	GetOptions(stockID uint, optionType string, asOf time.Time) ([]models.OptionContract, error)
	LatestWheelScore(stockID uint) (*models.WheelScoreRecord, error)
	WheelScoreHistory(stockID uint, limit int) ([]models.WheelScoreRecord, error)
	TopWheelScores(minGrade string, limit int) ([]models.WheelScoreRecord, error)
}

// SignalStore reads and updates stored signals.
type SignalStore interface {
	ListSignals(f sigrepo.Filter) ([]models.Signal, error)
	GetSignalByID(id uint) (*models.Signal, error)
	Save(signal *models.Signal) error
	CountByStatus() (map[string]int64, error)
}

// PositionStore reads positions and orders.
type PositionStore interface {
	GetOptionPosition(id uint) (*models.OptionPosition, error)
	ListOptionPositions(status string) ([]models.OptionPosition, error)
	ListStockPositions(activeOnly bool) ([]models.StockPosition, error)
	GetOrderByGatewayID(gatewayID string) (*models.Order, error)
	ListOrders(limit int) ([]models.Order, error)
}

// AlertStore reads and updates alerts, webhooks and the user config.
type AlertStore interface {
	CreateAlert(a *models.Alert) error
	DismissAlert(id uint) (bool, error)
	GetAlert(id uint) (*models.Alert, error)
	ListAlerts(status string, limit int) ([]models.Alert, error)
	ListWebhooks() ([]models.AlertWebhook, error)
	GetWebhook(id int) (*models.AlertWebhook, error)
	SaveWebhook(h *models.AlertWebhook) error
	DeleteWebhook(id int) (bool, error)
	GetUserConfig() (*models.UserConfig, error)
	SaveUserConfig(cfg *models.UserConfig) error
}

// PositionService applies position transitions and talks to the broker.
type PositionService interface {
	OpenPosition(req positions.OpenRequest) (*models.OptionPosition, error)
	ClosePosition(id uint, exitPremium decimal.Decimal, reason string) (*models.OptionPosition, error)
	ExpirePosition(id uint) (*models.OptionPosition, error)
	AssignPosition(id uint) (*models.OptionPosition, *models.StockPosition, error)
	SyncFromGateway(ctx context.Context) (*positions.SyncResult, error)
	SubmitOrder(ctx context.Context, req positions.OrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, order *models.Order) error
}

// AlertService arms and checks alerts.
type AlertService interface {
	CheckAll(ctx context.Context) (*alerts.CheckResult, error)
	ArmPosition(p *models.OptionPosition, d alerts.Delivery) (int, error)
}

// Refresher runs market data refreshes.
type Refresher interface {
	RefreshAll(ctx context.Context, tickers []string, mode jobs.RefreshMode) (*jobs.RefreshProgress, error)
	RefreshTicker(ctx context.Context, ticker string, mode jobs.RefreshMode) error
	Progress() *jobs.RefreshProgress
	Running() bool
}

// Scanner generates signals on demand.
type Scanner interface {
	Scan(ctx context.Context) (*jobs.ScanResult, error)
	Config() signals.Config
}

// Health reports the service health.
type Health interface {
	Check(ctx context.Context, force bool) *health.Report
}

// PriceSource returns the latest stock price.
type PriceSource interface {
	StockPrice(ctx context.Context, ticker string) (float64, error)
}

// WebhookCache is invalidated whenever webhooks change.
type WebhookCache interface {
	RefreshCache(ctx context.Context)
}

// Deps are the collaborators of the server. Events, Stream, Webhooks and Prices may be nil.
type Deps struct {
	Stocks    StockStore
	Signals   SignalStore
	Positions PositionStore
	Alerts    AlertStore

	PositionService PositionService
	AlertService    AlertService
	Refresher       Refresher
	Scanner         Scanner
	Health          Health
	Prices          PriceSource
	Webhooks        WebhookCache

	// Events serves the SSE stream, Stream the websocket hub.
	Events http.Handler
	Stream http.Handler

	// BaseContext bounds refreshes and scans started in the background.
	BaseContext context.Context
	Log         *zap.Logger
}

// Server handles HTTP API requests
type Server struct {
	Deps
	log *zap.Logger
	now func() time.Time
}

// NewServer creates a new API server instance
func NewServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.BaseContext == nil {
		d.BaseContext = context.Background()
	}
	return &Server{Deps: d, log: d.Log, now: time.Now}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.Events != nil {
		mux.Handle("GET /api/events", s.Events) // SSE Endpoint
	}
	if s.Stream != nil {
		mux.Handle("GET /api/ws", s.Stream)
	}

	// Stocks and scores
	mux.HandleFunc("GET /api/stocks", s.handleListStocks)
	mux.HandleFunc("GET /api/stocks/{ticker}", s.handleGetStock)
	mux.HandleFunc("GET /api/stocks/{ticker}/options", s.handleGetOptions)
	mux.HandleFunc("GET /api/stocks/{ticker}/scores", s.handleScoreHistory)
	mux.HandleFunc("GET /api/scores/top", s.handleTopScores)

	// Watchlist
	mux.HandleFunc("GET /api/watchlist", s.handleGetWatchlist)
	mux.HandleFunc("POST /api/watchlist", s.handleAddToWatchlist)
	mux.HandleFunc("DELETE /api/watchlist/{ticker}", s.handleRemoveFromWatchlist)

	// Signals
	mux.HandleFunc("GET /api/signals", s.handleListSignals)
	mux.HandleFunc("GET /api/signals/stats", s.handleSignalStats)
	mux.HandleFunc("GET /api/signals/{id}", s.handleGetSignal)
	mux.HandleFunc("PUT /api/signals/{id}/status", s.handleUpdateSignalStatus)
	mux.HandleFunc("POST /api/signals/scan", s.handleScan)

	// Positions and orders
	mux.HandleFunc("GET /api/positions", s.handleListPositions)
	mux.HandleFunc("POST /api/positions", s.handleOpenPosition)
	mux.HandleFunc("GET /api/positions/stocks", s.handleListStockPositions)
	mux.HandleFunc("POST /api/positions/sync", s.handleSyncPositions)
	mux.HandleFunc("GET /api/positions/{id}", s.handleGetPosition)
	mux.HandleFunc("GET /api/positions/{id}/analysis", s.handleAnalyzePosition)
	mux.HandleFunc("POST /api/positions/{id}/close", s.handleClosePosition)
	mux.HandleFunc("POST /api/positions/{id}/expire", s.handleExpirePosition)
	mux.HandleFunc("POST /api/positions/{id}/assign", s.handleAssignPosition)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("POST /api/orders", s.handleSubmitOrder)
	mux.HandleFunc("DELETE /api/orders/{orderID}", s.handleCancelOrder)

	// Alerts and webhooks
	mux.HandleFunc("GET /api/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /api/alerts", s.handleCreateAlert)
	mux.HandleFunc("POST /api/alerts/check", s.handleCheckAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/dismiss", s.handleDismissAlert)
	mux.HandleFunc("GET /api/config/webhooks", s.handleGetWebhooks)
	mux.HandleFunc("POST /api/config/webhooks", s.handleCreateWebhook)
	mux.HandleFunc("PUT /api/config/webhooks/{id}", s.handleUpdateWebhook)
	mux.HandleFunc("DELETE /api/config/webhooks/{id}", s.handleDeleteWebhook)

	// Screener config, refresh and health
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handleUpdateConfig)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/refresh/progress", s.handleRefreshProgress)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

// Handlers are distributed across multiple files:
// - handlers_stocks.go: stocks, option chains, wheel scores, watchlist
// - handlers_signals.go: signals, scans, screener config
// - handlers_positions.go: positions, analysis, orders, gateway sync
// - handlers_alerts.go: alerts and webhooks
// - handlers_system.go: refresh and health
