package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"wheel-screener/cache"
	models "wheel-screener/database/models_pkg"
)

const activeWebhooksKey = "active_webhooks"

// WebhookStore loads and updates webhook configurations.
type WebhookStore interface {
	GetActiveWebhooks() ([]models.AlertWebhook, error)
	SaveWebhook(h *models.AlertWebhook) error
}

// WebhookManager handles webhook notifications
type WebhookManager struct {
	repo   WebhookStore
	redis  *cache.RedisClient
	client *http.Client
	log    *zap.Logger
	sleep  func(time.Duration)

	// CacheTTL is how long the active webhook list stays in redis.
	CacheTTL time.Duration
}

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	AlertID   uint                   `json:"alert_id"`
	AlertType string                 `json:"alert_type"`
	Ticker    string                 `json:"ticker"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	SentAt    time.Time              `json:"sent_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewWebhookManager creates a new webhook manager. redis may be nil.
func NewWebhookManager(repo WebhookStore, redis *cache.RedisClient, log *zap.Logger) *WebhookManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookManager{
		repo:  repo,
		redis: redis,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log:      log,
		sleep:    time.Sleep,
		CacheTTL: time.Hour,
	}
}

// Notify delivers msg to every matching active webhook and waits for the deliveries.
func (wm *WebhookManager) Notify(ctx context.Context, msg Message) error {
	webhooks, err := wm.getActiveWebhooks(ctx)
	if err != nil {
		return fmt.Errorf("loading webhooks: %w", err)
	}
	if len(webhooks) == 0 {
		return nil
	}

	payload, err := json.Marshal(CreatePayload(msg))
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	failed := 0
	for i := range webhooks {
		hook := &webhooks[i]
		if !shouldSend(*hook, msg) {
			continue
		}
		if !wm.deliverWebhook(ctx, hook, payload) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d webhook deliveries failed", failed)
	}
	return nil
}

// cachedWebhook carries the auth secret that the model hides from JSON.
type cachedWebhook struct {
	models.AlertWebhook
	Secret string `json:"secret,omitempty"`
}

func (wm *WebhookManager) getActiveWebhooks(ctx context.Context) ([]models.AlertWebhook, error) {
	if wm.redis != nil {
		var cached []cachedWebhook
		if err := wm.redis.Get(ctx, activeWebhooksKey, &cached); err == nil {
			hooks := make([]models.AlertWebhook, len(cached))
			for i, c := range cached {
				hooks[i] = c.AlertWebhook
				hooks[i].AuthValue = c.Secret
			}
			return hooks, nil
		}
	}

	webhooks, err := wm.repo.GetActiveWebhooks()
	if err != nil {
		return nil, err
	}

	if wm.redis != nil {
		cached := make([]cachedWebhook, len(webhooks))
		for i, h := range webhooks {
			cached[i] = cachedWebhook{AlertWebhook: h, Secret: h.AuthValue}
		}
		_ = wm.redis.Set(ctx, activeWebhooksKey, cached, wm.CacheTTL)
	}
	return webhooks, nil
}

// CreatePayload generates the webhook payload from a message
func CreatePayload(msg Message) WebhookPayload {
	return WebhookPayload{
		AlertID:   msg.AlertID,
		AlertType: msg.AlertType,
		Ticker:    msg.Ticker,
		Title:     msg.Title,
		Message:   msg.Text,
		SentAt:    msg.At,
		Metadata:  msg.Data,
	}
}

func shouldSend(hook models.AlertWebhook, msg Message) bool {
	if hook.AlertTypes == "" {
		return true
	}
	for _, t := range strings.Split(hook.AlertTypes, ",") {
		if strings.EqualFold(strings.TrimSpace(t), msg.AlertType) {
			return true
		}
	}
	return false
}

func (wm *WebhookManager) deliverWebhook(ctx context.Context, hook *models.AlertWebhook, payload []byte) bool {
	maxRetries := hook.RetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}
	method := hook.Method
	if method == "" {
		method = http.MethodPost
	}
	timeout := time.Duration(hook.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var lastErr string
	for attempt := 1; attempt <= maxRetries; attempt++ {
		status, err := wm.send(ctx, hook, method, payload, timeout)
		if err == nil && status >= 200 && status < 300 {
			wm.record(hook, true, "")
			return true
		}
		if err != nil {
			lastErr = err.Error()
		} else {
			lastErr = fmt.Sprintf("HTTP %d", status)
		}
		wm.log.Warn("⚠️ Webhook delivery failed",
			zap.String("webhook", hook.Name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
			zap.String("error", lastErr))

		if attempt < maxRetries {
			wm.sleep(time.Duration(hook.RetryDelaySeconds) * time.Second)
		}
	}

	wm.record(hook, false, lastErr)
	return false
}

func (wm *WebhookManager) send(ctx context.Context, hook *models.AlertWebhook, method string, payload []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Wheel-Screener-Alert/1.0")
	if hook.AuthHeader != "" {
		req.Header.Set(hook.AuthHeader, hook.AuthValue)
	}

	resp, err := wm.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (wm *WebhookManager) record(hook *models.AlertWebhook, ok bool, errMsg string) {
	now := time.Now()
	hook.LastTriggeredAt = &now
	if ok {
		hook.LastSuccessAt = &now
		hook.LastError = ""
		hook.TotalSent++
	} else {
		hook.LastError = errMsg
		hook.TotalFailed++
	}
	if err := wm.repo.SaveWebhook(hook); err != nil {
		wm.log.Warn("⚠️ Failed to save webhook stats", zap.Error(err))
	}
}

// RefreshCache reloads webhook configurations
func (wm *WebhookManager) RefreshCache(ctx context.Context) {
	if wm.redis != nil {
		_ = wm.redis.Delete(ctx, activeWebhooksKey)
		wm.log.Info("🔄 Webhook cache invalidated")
	}
}
