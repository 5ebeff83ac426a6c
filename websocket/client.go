package websocket

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 25 * time.Second
	maxInboundSize = 4096
	sendBuffer     = 64
)

// Format is the frame encoding a client asked for.
type Format int

const (
	// FormatProto sends binary protobuf encoded structpb.Struct frames.
	FormatProto Format = iota
	// FormatJSON sends the same frames rendered with protojson as text.
	FormatJSON
)

// Client represents one connected browser.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	format Format
	log    *zap.Logger

	mu      sync.RWMutex
	tickers map[string]bool

	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, format Format, tickers []string) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		format: format,
		log:    hub.log,
	}
	c.setTickers(tickers)
	return c
}

// Wants reports whether an event about ticker should reach this client. Clients without a
// ticker filter, and events without a ticker, always match.
func (c *Client) Wants(ticker string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.tickers) == 0 || ticker == "" {
		return true
	}
	return c.tickers[strings.ToUpper(ticker)]
}

func (c *Client) setTickers(tickers []string) {
	set := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			set[t] = true
		}
	}
	c.mu.Lock()
	c.tickers = set
	c.mu.Unlock()
}

// enqueue hands a frame to the write loop without blocking. Slow clients lose frames.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) messageType() int {
	if c.format == FormatJSON {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}

// writePump is the only writer of the connection. It also keeps the connection alive with
// periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(c.messageType(), frame); err != nil {
				c.log.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames and subscription requests until the connection drops.
// A subscription request is a JSON object {"action":"subscribe","tickers":["KO"]}.
func (c *Client) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("WebSocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		c.handleRequest(data)
	}
}

func (c *Client) handleRequest(data []byte) {
	req := &structpb.Struct{}
	if err := protojson.Unmarshal(data, req); err != nil {
		c.log.Debug("Ignoring malformed WebSocket request", zap.Error(err))
		return
	}
	fields := req.GetFields()
	switch fields["action"].GetStringValue() {
	case "subscribe":
		var tickers []string
		for _, v := range fields["tickers"].GetListValue().GetValues() {
			tickers = append(tickers, v.GetStringValue())
		}
		c.setTickers(tickers)
	case "unsubscribe":
		c.setTickers(nil)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
