package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/picobridge/pkg/bus"
	"github.com/tinyland-inc/picobridge/pkg/config"
)

type component struct {
	typ     string
	running bool
}

func (c *component) Type() string    { return c.typ }
func (c *component) IsRunning() bool { return c.running }

func TestHealthAndReady(t *testing.T) {
	eb := bus.NewEventBus()
	defer eb.Close()
	irc := &component{typ: "IRC", running: true}
	tg := &component{typ: "Telegram"}
	srv := httptest.NewServer(New(config.MonitorConfig{}, eb, irc, tg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d", resp.StatusCode)
	}

	get := func() (int, map[string]any) {
		resp, err := http.Get(srv.URL + "/ready")
		if err != nil {
			t.Fatalf("GET /ready: %v", err)
		}
		defer resp.Body.Close()
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp.StatusCode, body
	}

	if code, body := get(); code != http.StatusServiceUnavailable || body["ready"] != false {
		t.Errorf("/ready = %d %v", code, body)
	}
	tg.running = true
	if code, _ := get(); code != http.StatusOK {
		t.Errorf("/ready = %d after start", code)
	}
}

func TestEventsStream(t *testing.T) {
	eb := bus.NewEventBus()
	defer eb.Close()
	srv := httptest.NewServer(New(config.MonitorConfig{}, eb).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for eb.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	eb.Publish(bus.Event{Kind: bus.KindDeliver, MsgID: 7, ToUID: "irc/#a"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev bus.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Kind != bus.KindDeliver || ev.MsgID != 7 || ev.ToUID != "irc/#a" {
		t.Errorf("event = %+v", ev)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for eb.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEventsOnClosedBusSendsClose(t *testing.T) {
	eb := bus.NewEventBus()
	eb.Close()
	srv := httptest.NewServer(New(config.MonitorConfig{}, eb).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read error = %v, want going-away close", err)
	}
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusTeapot, map[string]any{"bad": make(chan int)})
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}
