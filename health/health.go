// Package health probes the database, redis, the brokerage gateway and data freshness.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wheel-screener/database/stocks"
)

// Health check statuses
const (
	CheckPassed  = "passed"
	CheckWarning = "warning"
	CheckFailed  = "failed"

	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

// Data freshness thresholds
const (
	StaleAfter      = 24 * time.Hour
	RecentWithin    = 4 * time.Hour
	staleWarnRatio  = 0.3
	checkTimeout    = 5 * time.Second
	defaultTTL = 30 * time.Second
)

// Pinger is anything that can answer a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GatewayProbe reports whether the brokerage gateway session is usable.
type GatewayProbe interface {
	Connect(ctx context.Context) error
}

// FreshnessSource counts stocks by update age.
type FreshnessSource interface {
	DataFreshness(now time.Time, recent, stale time.Duration) (*stocks.Freshness, error)
}

// Check is the result of one health probe.
type Check struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Duration string `json:"duration"`
}

// Report is the combined result of all probes.
type Report struct {
	Status    string    `json:"overall_status"`
	Checks    []Check   `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
	Cached    bool      `json:"cached"`
}

// Service runs the probes and caches the report for ttl.
type Service struct {
	db        Pinger
	redis     Pinger
	gateway   GatewayProbe
	freshness FreshnessSource
	ttl       time.Duration
	now       func() time.Time

	mu       sync.Mutex
	cached   *Report
	cachedAt time.Time
}

// NewService creates the service. redis and gateway may be nil when disabled.
func NewService(db Pinger, redis Pinger, gateway GatewayProbe, freshness FreshnessSource, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{
		db:        db,
		redis:     redis,
		gateway:   gateway,
		freshness: freshness,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Check returns the cached report while it is younger than the TTL, unless force is set.
func (h *Service) Check(ctx context.Context, force bool) *Report {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if !force && h.cached != nil && now.Sub(h.cachedAt) < h.ttl {
		cp := *h.cached
		cp.Cached = true
		return &cp
	}

	report := &Report{CheckedAt: now}
	report.Checks = append(report.Checks,
		h.probe(ctx, "database", h.checkDatabase),
		h.probe(ctx, "redis", h.checkRedis),
		h.probe(ctx, "gateway", h.checkGateway),
		h.probe(ctx, "data_freshness", h.checkFreshness),
	)
	report.Status = overall(report.Checks)

	h.cached = report
	h.cachedAt = now
	cp := *report
	return &cp
}

func (h *Service) probe(ctx context.Context, name string, fn func(context.Context) (string, string)) Check {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	start := time.Now()
	status, msg := fn(ctx)
	return Check{Name: name, Status: status, Message: msg, Duration: time.Since(start).Round(time.Millisecond).String()}
}

func (h *Service) checkDatabase(ctx context.Context) (string, string) {
	if h.db == nil {
		return CheckFailed, "database not initialised"
	}
	if err := h.db.Ping(ctx); err != nil {
		return CheckFailed, fmt.Sprintf("database unreachable: %v", err)
	}
	return CheckPassed, "connected"
}

func (h *Service) checkRedis(ctx context.Context) (string, string) {
	if h.redis == nil {
		return CheckWarning, "redis not configured, caching disabled"
	}
	if err := h.redis.Ping(ctx); err != nil {
		return CheckWarning, fmt.Sprintf("redis unreachable, caching disabled: %v", err)
	}
	return CheckPassed, "connected"
}

func (h *Service) checkGateway(ctx context.Context) (string, string) {
	if h.gateway == nil {
		return CheckWarning, "gateway disabled"
	}
	if err := h.gateway.Connect(ctx); err != nil {
		return CheckWarning, fmt.Sprintf("gateway not connected: %v", err)
	}
	return CheckPassed, "connected and authenticated"
}

func (h *Service) checkFreshness(ctx context.Context) (string, string) {
	if h.freshness == nil {
		return CheckWarning, "freshness unknown"
	}
	f, err := h.freshness.DataFreshness(h.now(), RecentWithin, StaleAfter)
	if err != nil {
		return CheckFailed, fmt.Sprintf("freshness query failed: %v", err)
	}
	return freshnessStatus(f)
}

func freshnessStatus(f *stocks.Freshness) (string, string) {
	switch {
	case f.Total == 0:
		return CheckWarning, "no stock data yet"
	case f.Stale == 0:
		return CheckPassed, fmt.Sprintf("all %d stocks updated within 24h, %d within 4h", f.Total, f.Recent)
	case float64(f.Stale)/float64(f.Total) < staleWarnRatio:
		return CheckWarning, fmt.Sprintf("some stale data (>24h): %d/%d stocks, recent: %d", f.Stale, f.Total, f.Recent)
	default:
		return CheckWarning, fmt.Sprintf("most data stale (>24h): %d/%d stocks", f.Stale, f.Total)
	}
}

func overall(checks []Check) string {
	status := StatusHealthy
	for _, c := range checks {
		switch c.Status {
		case CheckFailed:
			return StatusCritical
		case CheckWarning:
			status = StatusWarning
		}
	}
	return status
}
