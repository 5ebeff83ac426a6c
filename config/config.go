package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"wheel-screener/signals"
)

// Config holds application configuration
type Config struct {
	HTTPPort string

	Database  DatabaseConfig
	Redis     RedisConfig
	Gateway   GatewayConfig
	Providers ProviderConfig
	Refresh   RefreshConfig
	Telegram  TelegramConfig
	Webhooks  WebhookConfig
	Log       LogConfig

	// Screener holds the default thresholds, used until the user saves their own.
	Screener signals.Config
}

// DatabaseConfig holds the PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the cache connection settings. Redis is optional.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// GatewayConfig holds the brokerage gateway (IBKR Client Portal) settings
type GatewayConfig struct {
	Enabled        bool
	BaseURL        string
	AccountID      string
	Timeout        time.Duration
	Cooldown       time.Duration
	InsecureTLS    bool
	PreflightDelay time.Duration
}

// ProviderConfig holds the market data endpoints and cache lifetimes
type ProviderConfig struct {
	ChartURL        string
	QuoteSummaryURL string
	OptionsURL      string
	UserAgent       string
	Timeout         time.Duration
	HistoryRange    string
	MaxExpiries     int
	HistoryTTL      time.Duration
	FundamentalsTTL time.Duration
	ChainTTL        time.Duration
}

// RefreshConfig holds the worker pool size and the job schedules.
// Schedules use the six field cron format (with seconds); an empty spec disables the job.
type RefreshConfig struct {
	Workers          int
	FullRefreshSpec  string
	QuickRefreshSpec string
	QuoteRefreshSpec string
	AlertCheckSpec   string
	PositionSyncSpec string
	SignalScanSpec   string
	HealthTTL        time.Duration
}

// TelegramConfig holds the bot credentials. Telegram is disabled without a token.
type TelegramConfig struct {
	Token  string
	ChatID string
}

// WebhookConfig toggles outbound alert webhooks
type WebhookConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

// LogConfig mirrors the zap settings exposed through the environment
type LogConfig struct {
	Level             string
	Encoding          string
	Development       bool
	Sampling          bool
	DisableCaller     bool
	DisableStacktrace bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	defaults := signals.DefaultConfig()

	return &Config{
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		Database: DatabaseConfig{
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvOrDefault("DB_NAME", "wheel_screener"),
			User:            getEnvOrDefault("DB_USER", "wheel"),
			Password:        getEnvOrDefault("DB_PASSWORD", "wheel"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},

		Redis: RedisConfig{
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnvOrDefault("REDIS_PREFIX", "wheel:"),
		},

		Gateway: GatewayConfig{
			Enabled:        getEnvBool("GATEWAY_ENABLED", false),
			BaseURL:        getEnvOrDefault("GATEWAY_URL", "https://localhost:5000/v1/api"),
			AccountID:      getEnvOrDefault("GATEWAY_ACCOUNT_ID", ""),
			Timeout:        getEnvDuration("GATEWAY_TIMEOUT", 30*time.Second),
			Cooldown:       getEnvDuration("GATEWAY_RECONNECT_COOLDOWN", 3*time.Second),
			InsecureTLS:    getEnvBool("GATEWAY_INSECURE_TLS", true),
			PreflightDelay: getEnvDuration("GATEWAY_PREFLIGHT_DELAY", 500*time.Millisecond),
		},

		Providers: ProviderConfig{
			ChartURL:        getEnvOrDefault("YAHOO_CHART_URL", "https://query1.finance.yahoo.com/v8/finance/chart"),
			QuoteSummaryURL: getEnvOrDefault("YAHOO_QUOTE_SUMMARY_URL", "https://query2.finance.yahoo.com/v10/finance/quoteSummary"),
			OptionsURL:      getEnvOrDefault("YAHOO_OPTIONS_URL", "https://query2.finance.yahoo.com/v7/finance/options"),
			UserAgent:       getEnvOrDefault("YAHOO_USER_AGENT", "Mozilla/5.0"),
			Timeout:         getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),
			HistoryRange:    getEnvOrDefault("PROVIDER_HISTORY_RANGE", "1y"),
			MaxExpiries:     getEnvInt("PROVIDER_MAX_EXPIRIES", 4),
			HistoryTTL:      getEnvDuration("CACHE_TTL_HISTORY", 6*time.Hour),
			FundamentalsTTL: getEnvDuration("CACHE_TTL_FUNDAMENTALS", 12*time.Hour),
			ChainTTL:        getEnvDuration("CACHE_TTL_CHAIN", 15*time.Minute),
		},

		Refresh: RefreshConfig{
			Workers:          getEnvInt("REFRESH_WORKERS", 5),
			FullRefreshSpec:  getEnvOrDefault("CRON_FULL_REFRESH", "0 30 6 * * MON-FRI"),
			QuickRefreshSpec: getEnvOrDefault("CRON_QUICK_REFRESH", "0 */30 14-21 * * MON-FRI"),
			QuoteRefreshSpec: getEnvOrDefault("CRON_QUOTE_REFRESH", "0 */10 14-21 * * MON-FRI"),
			AlertCheckSpec:   getEnvOrDefault("CRON_ALERT_CHECK", "0 */5 * * * *"),
			PositionSyncSpec: getEnvOrDefault("CRON_POSITION_SYNC", "0 */15 14-21 * * MON-FRI"),
			SignalScanSpec:   getEnvOrDefault("CRON_SIGNAL_SCAN", "0 0 15,19 * * MON-FRI"),
			HealthTTL:        getEnvDuration("HEALTH_CACHE_TTL", 30*time.Second),
		},

		Telegram: TelegramConfig{
			Token:  getEnvOrDefault("TELEGRAM_BOT_TOKEN", ""),
			ChatID: getEnvOrDefault("TELEGRAM_CHAT_ID", ""),
		},

		Webhooks: WebhookConfig{
			Enabled:  getEnvBool("WEBHOOKS_ENABLED", true),
			CacheTTL: getEnvDuration("WEBHOOKS_CACHE_TTL", time.Hour),
		},

		Log: LogConfig{
			Level:             getEnvOrDefault("LOG_LEVEL", "info"),
			Encoding:          getEnvOrDefault("LOG_ENCODING", "json"),
			Development:       getEnvBool("LOG_DEVELOPMENT", false),
			Sampling:          getEnvBool("LOG_SAMPLING", false),
			DisableCaller:     getEnvBool("LOG_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOG_DISABLE_STACKTRACE", true),
		},

		Screener: signals.Config{
			MinDTE:          getEnvInt("SCREENER_MIN_DTE", defaults.MinDTE),
			MaxDTE:          getEnvInt("SCREENER_MAX_DTE", defaults.MaxDTE),
			MinDelta:        getEnvFloat("SCREENER_MIN_DELTA", defaults.MinDelta),
			MaxDelta:        getEnvFloat("SCREENER_MAX_DELTA", defaults.MaxDelta),
			MaxIV:           getEnvFloat("SCREENER_MAX_IV", defaults.MaxIV),
			MinPremiumPct:   getEnvFloat("SCREENER_MIN_PREMIUM_PCT", defaults.MinPremiumPct),
			MinROE:          getEnvFloat("SCREENER_MIN_ROE", defaults.MinROE),
			MaxPositionSize: getEnvFloat("SCREENER_MAX_POSITION_SIZE", defaults.MaxPositionSize),
			MaxLossPerTrade: getEnvFloat("SCREENER_MAX_LOSS_PER_TRADE", defaults.MaxLossPerTrade),
		},
	}
}

// Validate rejects settings the service cannot start with. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Screener.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("screener: %w", err))
	}
	if c.Refresh.Workers < 1 {
		errs = append(errs, fmt.Errorf("refresh workers must be at least 1, got %d", c.Refresh.Workers))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("invalid database port %d", c.Database.Port))
	}
	if c.Gateway.Enabled && c.Gateway.AccountID == "" {
		errs = append(errs, errors.New("gateway enabled without GATEWAY_ACCOUNT_ID"))
	}
	if c.Providers.MaxExpiries < 1 {
		errs = append(errs, fmt.Errorf("provider max expiries must be at least 1, got %d", c.Providers.MaxExpiries))
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log encoding %q", c.Log.Encoding))
	}
	return errors.Join(errs...)
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvBool accepts true/false, 1/0 and yes/no
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}

// getEnvDuration parses Go duration strings such as "30s" or "6h"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
