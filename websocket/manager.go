// Package websocket pushes screener events (alerts, new signals, refresh progress) to
// browsers over WebSocket. Frames are google.protobuf.Struct messages: binary protobuf by
// default, protojson text when the client connects with ?format=json.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Hub tracks the connected clients and fans events out to them.
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log,
		now:     time.Now,
		clients: make(map[*Client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client.
// Query parameters: format=json for text frames, tickers=KO,PEP to filter events.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("⚠️ WebSocket upgrade failed", zap.Error(err))
		return
	}

	format := FormatProto
	if strings.EqualFold(r.URL.Query().Get("format"), "json") {
		format = FormatJSON
	}
	var tickers []string
	if raw := r.URL.Query().Get("tickers"); raw != "" {
		tickers = strings.Split(raw, ",")
	}

	c := newClient(h, conn, format, tickers)
	if !h.add(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.log.Debug("WebSocket client connected", zap.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("WebSocket client disconnected", zap.Int("clients", n))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish encodes the event once per format and queues it on every interested client.
// The payload is converted through JSON, so any JSON serialisable value works. A payload
// carrying a "ticker" field only reaches clients subscribed to that ticker.
func (h *Hub) Publish(event string, payload interface{}) {
	frame, ticker, err := encodeFrame(event, payload, h.now())
	if err != nil {
		h.log.Warn("⚠️ Error encoding WebSocket frame", zap.String("event", event), zap.Error(err))
		return
	}

	var binary, text []byte
	dropped := 0

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.Wants(ticker) {
			continue
		}
		var data []byte
		if c.format == FormatJSON {
			if text == nil {
				if text, err = protojson.Marshal(frame); err != nil {
					h.log.Warn("⚠️ Error rendering WebSocket frame", zap.Error(err))
					return
				}
			}
			data = text
		} else {
			if binary == nil {
				if binary, err = proto.Marshal(frame); err != nil {
					h.log.Warn("⚠️ Error marshalling WebSocket frame", zap.Error(err))
					return
				}
			}
			data = binary
		}
		if !c.enqueue(data) {
			dropped++
		}
	}
	if dropped > 0 {
		h.log.Debug("WebSocket frames dropped for slow clients", zap.String("event", event), zap.Int("dropped", dropped))
	}
}

// Run closes every client when ctx is cancelled and logs the client count every minute.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-ticker.C:
			if n := h.ClientCount(); n > 0 {
				h.log.Debug("💓 WebSocket hub healthy", zap.Int("clients", n))
			}
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// encodeFrame builds {"event", "sent_at", "payload"} and returns the payload ticker, if any.
func encodeFrame(event string, payload interface{}, at time.Time) (*structpb.Struct, string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal payload: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, "", fmt.Errorf("decode payload: %w", err)
	}
	value, err := structpb.NewValue(generic)
	if err != nil {
		return nil, "", fmt.Errorf("convert payload: %w", err)
	}

	frame := &structpb.Struct{Fields: map[string]*structpb.Value{
		"event":   structpb.NewStringValue(event),
		"sent_at": structpb.NewStringValue(at.UTC().Format(time.RFC3339)),
		"payload": value,
	}}

	ticker := value.GetStructValue().GetFields()["ticker"].GetStringValue()
	return frame, ticker, nil
}
