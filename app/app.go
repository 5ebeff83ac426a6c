package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"wheel-screener/alerts"
	"wheel-screener/api"
	"wheel-screener/cache"
	"wheel-screener/config"
	"wheel-screener/database"
	alertrepo "wheel-screener/database/alerts"
	posrepo "wheel-screener/database/positions"
	sigrepo "wheel-screener/database/signals"
	"wheel-screener/database/stocks"
	"wheel-screener/gateway"
	"wheel-screener/health"
	"wheel-screener/jobs"
	"wheel-screener/notifications"
	"wheel-screener/positions"
	"wheel-screener/providers"
	"wheel-screener/realtime"
	"wheel-screener/scheduler"
	"wheel-screener/websocket"
)

// gatewayKeepalive keeps the brokerage session from timing out between jobs.
const gatewayKeepalive = "@every 1m"

// App represents the main application
type App struct {
	config *config.Config
	log    *zap.Logger

	db      *database.Database
	redis   *cache.RedisClient
	gateway *gateway.Client

	broker    *realtime.Broker
	hub       *websocket.Hub
	scheduler *scheduler.Runner
	server    *http.Server

	stocks    *stocks.Repository
	refresher *jobs.Refresher
	scanner   *jobs.Scanner
	positions *positions.Service
	alerts    *alerts.Service
}

// New creates a new application instance
func New(cfg *config.Config, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{config: cfg, log: log}
}

// Start connects the stores, wires the services, starts the scheduler and the HTTP
// server, then blocks until SIGINT or SIGTERM.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database Connection
	a.log.Info("🗄️ Connecting to database...", zap.String("host", a.config.Database.Host))
	db, err := database.Connect(
		a.config.Database.Host,
		a.config.Database.Port,
		a.config.Database.Name,
		a.config.Database.User,
		a.config.Database.Password,
		database.PoolConfig{
			MaxOpenConns:    a.config.Database.MaxOpenConns,
			MaxIdleConns:    a.config.Database.MaxIdleConns,
			ConnMaxLifetime: a.config.Database.ConnMaxLifetime,
		},
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db
	if err := a.db.Migrate(); err != nil {
		a.db.Close()
		return fmt.Errorf("schema migration failed: %w", err)
	}

	// 2. Redis Connection (optional)
	a.log.Info("🧠 Connecting to Redis...")
	a.redis = cache.NewRedisClient(cache.Config{
		Host:     a.config.Redis.Host,
		Port:     a.config.Redis.Port,
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
		Prefix:   a.config.Redis.Prefix,
	}, a.log)
	if a.redis == nil {
		a.log.Warn("⚠️ Redis connection failed. Caching disabled.")
	}

	// 3. Brokerage gateway (optional)
	var broker positions.Broker
	if a.config.Gateway.Enabled {
		a.gateway = gateway.NewClient(gateway.Config{
			BaseURL:        a.config.Gateway.BaseURL,
			AccountID:      a.config.Gateway.AccountID,
			Timeout:        a.config.Gateway.Timeout,
			Cooldown:       a.config.Gateway.Cooldown,
			InsecureTLS:    a.config.Gateway.InsecureTLS,
			PreflightDelay: a.config.Gateway.PreflightDelay,
		}, a.log)
		if err := a.gateway.Connect(ctx); err != nil {
			a.log.Warn("⚠️ Gateway not reachable yet, will retry on demand", zap.Error(err))
		} else {
			a.log.Info("✅ Gateway session established")
		}
		broker = a.gateway
	} else {
		a.log.Info("ℹ️ Brokerage gateway DISABLED")
	}

	// 4. Repositories and market data
	gdb := a.db.DB()
	a.stocks = stocks.NewRepository(gdb)
	signalRepo := sigrepo.NewRepository(gdb)
	positionRepo := posrepo.NewRepository(gdb)
	alertRepo := alertrepo.NewRepository(gdb)

	yahoo := providers.NewYahooClient(providers.YahooConfig{
		ChartURL:        a.config.Providers.ChartURL,
		QuoteSummaryURL: a.config.Providers.QuoteSummaryURL,
		OptionsURL:      a.config.Providers.OptionsURL,
		UserAgent:       a.config.Providers.UserAgent,
		Timeout:         a.config.Providers.Timeout,
		HistoryRange:    a.config.Providers.HistoryRange,
	}, a.log)
	market := providers.NewProvider(yahoo, a.redis, providers.TTLs{
		History:      a.config.Providers.HistoryTTL,
		Fundamentals: a.config.Providers.FundamentalsTTL,
		Chain:        a.config.Providers.ChainTTL,
	}, a.config.Providers.MaxExpiries, a.log)

	// 5. Realtime fan-out: SSE broker and websocket hub
	a.broker = realtime.NewBroker(a.log)
	go a.broker.Run(ctx)
	a.hub = websocket.NewHub(a.log)
	go a.hub.Run(ctx)
	events := fanout{a.broker, a.hub}

	// 6. Notifications
	var telegram, webhooks notifications.Notifier
	if a.config.Telegram.Token != "" {
		tg, err := notifications.NewTelegramNotifier(a.config.Telegram.Token, a.config.Telegram.ChatID, a.log)
		if err != nil {
			a.log.Warn("⚠️ Telegram disabled", zap.Error(err))
		} else {
			telegram = tg
			a.log.Info("✅ Telegram notifications ENABLED")
		}
	}
	var webhookManager *notifications.WebhookManager
	if a.config.Webhooks.Enabled {
		webhookManager = notifications.NewWebhookManager(alertRepo, a.redis, a.log)
		if a.config.Webhooks.CacheTTL > 0 {
			webhookManager.CacheTTL = a.config.Webhooks.CacheTTL
		}
		webhooks = webhookManager
	}
	dispatcher := notifications.NewDispatcher(telegram, notifications.NewBrowserNotifier(a.broker, a.hub), webhooks, a.log)

	// 7. Domain services
	a.positions = positions.NewService(positionRepo, broker, a.log)
	a.positions.MaxPositionSize = a.config.Screener.MaxPositionSize

	var prices alerts.PriceSource = market
	if a.gateway != nil {
		prices = gatewayPrices{gateway: a.gateway, fallback: market}
	}
	a.alerts = alerts.NewService(alertRepo, positionRepo, prices, dispatcher, a.log)

	a.refresher = jobs.NewRefresher(market, a.stocks, a.redis, events, a.config.Refresh.Workers, a.log)
	a.scanner = jobs.NewScanner(
		jobs.NewStoreCandidates(a.stocks, a.log),
		signalRepo,
		positionRepo,
		alertRepo,
		a.config.Screener,
		events,
		a.log,
	)

	// nil pointers would turn into non-nil interfaces
	var redisPinger health.Pinger
	if a.redis != nil {
		redisPinger = a.redis
	}
	var gatewayProbe health.GatewayProbe
	if a.gateway != nil {
		gatewayProbe = a.gateway
	}
	healthSvc := health.NewService(a.db, redisPinger, gatewayProbe, a.stocks, a.config.Refresh.HealthTTL)

	// 8. Scheduler
	a.scheduler = scheduler.New(a.log, ctx)
	if err := a.registerJobs(); err != nil {
		a.db.Close()
		return err
	}
	a.scheduler.Start()

	// 9. HTTP API
	deps := api.Deps{
		Stocks:          a.stocks,
		Signals:         signalRepo,
		Positions:       positionRepo,
		Alerts:          alertRepo,
		PositionService: a.positions,
		AlertService:    a.alerts,
		Refresher:       a.refresher,
		Scanner:         a.scanner,
		Health:          healthSvc,
		Prices:          prices,
		Events:          a.broker,
		Stream:          a.hub,
		BaseContext:     ctx,
		Log:             a.log,
	}
	if webhookManager != nil {
		deps.Webhooks = webhookManager
	}
	a.server = &http.Server{
		Addr:              ":" + a.config.HTTPPort,
		Handler:           api.NewServer(deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		a.log.Info("🌐 API server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("⚠️ API Server failed", zap.Error(err))
		}
	}()

	// 10. Wait for interrupt and perform graceful shutdown
	return a.gracefulShutdown(cancel)
}

type scheduledJob struct {
	name string
	spec string
	job  scheduler.Job
}

// registerJobs schedules the periodic work. Watchlist tickers are read on every run so
// additions take effect without a restart.
func (a *App) registerJobs() error {
	refresh := func(mode jobs.RefreshMode) scheduler.Job {
		return func(ctx context.Context) error {
			tickers, err := a.stocks.WatchlistTickers()
			if err != nil {
				return err
			}
			if len(tickers) == 0 {
				return nil
			}
			progress, err := a.refresher.RefreshAll(ctx, tickers, mode)
			if errors.Is(err, jobs.ErrRefreshRunning) {
				a.log.Info("⏭️ Refresh skipped, another one is running", zap.String("mode", string(mode)))
				return nil
			}
			if progress != nil {
				if failed := progress.FailedTickers(); len(failed) > 0 {
					a.log.Warn("⚠️ Tickers failed to refresh", zap.String("mode", string(mode)), zap.Strings("tickers", failed))
				}
			}
			return err
		}
	}

	scheduled := []scheduledJob{
		{"full_refresh", a.config.Refresh.FullRefreshSpec, refresh(jobs.RefreshFull)},
		{"quick_refresh", a.config.Refresh.QuickRefreshSpec, refresh(jobs.RefreshQuick)},
		{"signal_scan", a.config.Refresh.SignalScanSpec, func(ctx context.Context) error {
			res, err := a.scanner.Scan(ctx)
			if err != nil {
				return err
			}
			a.log.Info("🎯 Signal scan finished", zap.Int("scanned", res.Scanned), zap.Int("generated", res.Generated))
			return nil
		}},
		{"alert_check", a.config.Refresh.AlertCheckSpec, func(ctx context.Context) error {
			res, err := a.alerts.CheckAll(ctx)
			if err != nil {
				return err
			}
			if res.Triggered > 0 {
				a.log.Info("🔔 Alerts triggered", zap.Int("triggered", res.Triggered), zap.Int("checked", res.Checked))
			}
			return nil
		}},
		{"position_sync", a.config.Refresh.PositionSyncSpec, a.syncPositions},
	}
	if a.gateway != nil {
		scheduled = append(scheduled,
			scheduledJob{"quote_refresh", a.config.Refresh.QuoteRefreshSpec, func(ctx context.Context) error {
				updated, failed, err := a.positions.RefreshQuotes(ctx)
				if err != nil {
					return err
				}
				a.log.Debug("Option quotes refreshed", zap.Int("updated", updated), zap.Int("failed", failed))
				return nil
			}},
			scheduledJob{"gateway_keepalive", gatewayKeepalive, a.keepGatewayAlive},
		)
	}

	for _, s := range scheduled {
		if _, err := a.scheduler.Add(s.name, s.spec, s.job); err != nil {
			return err
		}
	}
	return nil
}

// keepGatewayAlive re-authenticates a dropped session, otherwise tickles the live one.
func (a *App) keepGatewayAlive(ctx context.Context) error {
	if !a.gateway.IsConnected() {
		return a.gateway.Connect(ctx)
	}
	return a.gateway.Tickle(ctx)
}

// syncPositions imports gateway positions when a gateway is configured, then settles
// positions past their expiry.
func (a *App) syncPositions(ctx context.Context) error {
	if a.gateway != nil {
		res, err := a.positions.SyncFromGateway(ctx)
		if err != nil {
			a.log.Warn("⚠️ Gateway sync failed", zap.Error(err))
		} else {
			a.log.Info("🔄 Gateway positions synced", zap.Any("result", res))
		}
	}
	res, err := a.positions.DetectExpirations(ctx)
	if err != nil {
		return err
	}
	if res.Errors > 0 {
		return fmt.Errorf("%d expired positions could not be settled", res.Errors)
	}
	return nil
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	a.log.Info("🛑 Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Cancel context to stop the broker, the hub, open event streams and running jobs
	cancel()

	shutdownComplete := make(chan struct{})
	go func() {
		if a.server != nil {
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				a.log.Warn("Error stopping API server", zap.Error(err))
			} else {
				a.log.Info("✅ API server stopped")
			}
		}

		if a.scheduler != nil {
			a.scheduler.Stop()
		}
		if a.hub != nil {
			a.hub.Close()
		}

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.log.Warn("Error closing database", zap.Error(err))
			} else {
				a.log.Info("✅ Database connection closed")
			}
		}
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				a.log.Warn("Error closing redis", zap.Error(err))
			} else {
				a.log.Info("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		a.log.Info("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		a.log.Warn("⚠️ Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
