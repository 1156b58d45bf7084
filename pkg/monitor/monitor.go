// Package monitor serves health, readiness and a live websocket feed of
// bridge events for operators.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/picobridge/pkg/bus"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

const writeTimeout = 10 * time.Second

// Component is anything whose liveness counts towards readiness.
type Component interface {
	Type() string
	IsRunning() bool
}

type Server struct {
	cfg        config.MonitorConfig
	bus        *bus.EventBus
	components []Component
	started    time.Time
	upgrader   websocket.Upgrader

	srv *http.Server
	wg  sync.WaitGroup
}

func New(cfg config.MonitorConfig, eb *bus.EventBus, components ...Component) *Server {
	return &Server{
		cfg:        cfg,
		bus:        eb,
		components: components,
		started:    time.Now(),
		upgrader: websocket.Upgrader{
			// operators connect from arbitrary dashboards
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the monitor routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /ready", s.ready)
	mux.HandleFunc("GET /events", s.events)
	return mux
}

// Start listens on the configured address. Requests share ctx.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("monitor: listen %s: %w", addr, err)
	}
	s.srv = &http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.wg.Go(func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("monitor", "Server failed", map[string]any{"error": err.Error()})
		}
	})
	logger.InfoCF("monitor", "Monitor listening", map[string]any{"addr": ln.Addr().String()})
	return nil
}

// Stop shuts the server down and waits for open streams to end.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF("monitor", "Response write failed", map[string]any{"error": err.Error()})
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) ready(w http.ResponseWriter, _ *http.Request) {
	handlers := make(map[string]bool, len(s.components))
	ready := true
	for _, c := range s.components {
		running := c.IsRunning()
		handlers[c.Type()] = running
		ready = ready && running
	}
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": ready, "handlers": handlers})
}

// events streams bus events as JSON text frames until the client goes away.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("monitor", "Websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}
	defer conn.Close()

	ch, cancel, err := s.bus.Subscribe()
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error())
		if werr := conn.WriteMessage(websocket.CloseMessage, msg); werr != nil {
			logger.WarnCF("monitor", "Websocket close frame failed", map[string]any{"error": werr.Error()})
		}
		return
	}
	defer cancel()

	id := uuid.NewString()
	logger.InfoCF("monitor", "Event subscriber connected", map[string]any{
		"subscriber": id,
		"remote":     r.RemoteAddr,
	})
	defer logger.InfoCF("monitor", "Event subscriber disconnected", map[string]any{"subscriber": id})

	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	// Reads only serve to notice the peer closing.
	go func() {
		defer stop()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		ev, ok := s.bus.Next(ctx, ch)
		if !ok {
			return
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			logger.WarnCF("monitor", "Websocket deadline failed", map[string]any{"subscriber": id, "error": err.Error()})
			return
		}
		if err := conn.WriteJSON(ev); err != nil {
			logger.WarnCF("monitor", "Websocket write failed", map[string]any{"subscriber": id, "error": err.Error()})
			return
		}
	}
}
