package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func onlyClient(h *Hub) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		return c
	}
	return nil
}

func TestPublishJSONWithTickerFilter(t *testing.T) {
	hub := NewHub(nil)
	hub.now = func() time.Time { return time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "format=json&tickers=ko")
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Publish("alert", map[string]interface{}{"ticker": "PEP", "title": "filtered"})
	hub.Publish("alert", map[string]interface{}{"ticker": "KO", "title": "KO 50% profit reached"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Errorf("expected text frame, got %d", kind)
	}

	frame := &structpb.Struct{}
	if err := protojson.Unmarshal(data, frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	f := frame.GetFields()
	if f["event"].GetStringValue() != "alert" || f["sent_at"].GetStringValue() != "2026-01-05T15:00:00Z" {
		t.Errorf("unexpected envelope %v", frame)
	}
	payload := f["payload"].GetStructValue().GetFields()
	if payload["ticker"].GetStringValue() != "KO" || payload["title"].GetStringValue() != "KO 50% profit reached" {
		t.Errorf("expected the KO event, got %v", payload)
	}
}

func TestPublishBinary(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	type progress struct {
		Done  int `json:"done"`
		Total int `json:"total"`
	}
	hub.Publish("refresh_progress", progress{Done: 3, Total: 10})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Errorf("expected binary frame, got %d", kind)
	}
	frame := &structpb.Struct{}
	if err := proto.Unmarshal(data, frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	payload := frame.GetFields()["payload"].GetStructValue().AsMap()
	if payload["done"] != 3.0 || payload["total"] != 10.0 {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestSubscribeRequest(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "format=json")
	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	c := onlyClient(hub)
	if !c.Wants("PEP") {
		t.Fatal("unfiltered client should want every ticker")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"subscribe","tickers":["ko","vz"]}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return !c.Wants("PEP") })
	if !c.Wants("KO") || !c.Wants("") {
		t.Error("subscribed ticker and ticker-less events should pass")
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"unsubscribe"}`))
	waitFor(t, func() bool { return c.Wants("PEP") })
}

func TestCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Close()
	if hub.ClientCount() != 0 {
		t.Errorf("expected no clients after Close, got %d", hub.ClientCount())
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed")
	}

	hub.Publish("alert", map[string]interface{}{"ticker": "KO"})
}
