// Package gateway is a client for the Interactive Brokers Client Portal gateway.
//
// The gateway session supports one in-flight request at a time, so every call on a
// Client is serialised through a connection scoped mutex. Failed connection attempts
// are rate limited by a reconnect cooldown.
package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned when the gateway is unreachable or not authenticated.
	ErrNotConnected = errors.New("gateway not connected")
	// ErrCooldown is returned when a reconnect is attempted inside the cooldown window.
	ErrCooldown = errors.New("gateway reconnect cooling down")
)

// Config configures the gateway client.
type Config struct {
	BaseURL        string
	AccountID      string
	Timeout        time.Duration
	Cooldown       time.Duration
	InsecureTLS    bool
	PreflightDelay time.Duration
}

// Client represents an IBKR Client Portal API client
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger
	now        func() time.Time

	mu          sync.Mutex
	connected   bool
	lastAttempt time.Time
	conids      map[string]int
}

// NewClient creates a new gateway client. The Client Portal gateway serves a self
// signed certificate on localhost, so InsecureTLS is usually set.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 3 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureTLS},
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: tr,
			Timeout:   cfg.Timeout,
		},
		log:    log,
		now:    time.Now,
		conids: make(map[string]int),
	}
}

// IsConnected reports the state of the last connection attempt or request.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect verifies the gateway session is authenticated.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.connected {
		return nil
	}
	now := c.now()
	if !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) < c.cfg.Cooldown {
		return ErrCooldown
	}
	c.lastAttempt = now

	var status struct {
		Authenticated bool   `json:"authenticated"`
		Connected     bool   `json:"connected"`
		Message       string `json:"message"`
	}
	if err := c.doLocked(ctx, http.MethodPost, "/iserver/auth/status", nil, &status); err != nil {
		c.log.Warn("⚠️ Gateway connection failed", zap.Error(err))
		return err
	}
	if !status.Authenticated || !status.Connected {
		c.log.Warn("⚠️ Gateway session not authenticated", zap.String("message", status.Message))
		return fmt.Errorf("%w: session not authenticated", ErrNotConnected)
	}

	c.connected = true
	c.log.Info("✅ Connected to brokerage gateway", zap.String("url", c.cfg.BaseURL))
	return nil
}

// Tickle keeps the gateway session alive.
func (c *Client) Tickle(ctx context.Context) error {
	return c.call(ctx, func() error {
		return c.doLocked(ctx, http.MethodPost, "/tickle", nil, nil)
	})
}

// call runs fn with the connection lock held after making sure the session is up.
func (c *Client) call(ctx context.Context, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	return fn()
}

// doLocked performs a request. Transport failures drop the session so the next call
// reconnects (subject to the cooldown).
func (c *Client) doLocked(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.connected = false
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.connected = false
		return fmt.Errorf("%w: HTTP 401", ErrNotConnected)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway %s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// preflight sleeps between the two snapshot requests the gateway needs before it
// returns market data fields.
func (c *Client) preflight(ctx context.Context) error {
	if c.cfg.PreflightDelay <= 0 {
		return nil
	}
	t := time.NewTimer(c.cfg.PreflightDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
