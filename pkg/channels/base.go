package channels

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

// Platform types and the short ids used as UID prefixes ("t/-100").
const (
	TypeIRC      = "IRC"
	TypeTelegram = "Telegram"
	TypeDiscord  = "Discord"

	IDIRC      = "I"
	IDTelegram = "T"
	IDDiscord  = "D"
)

// Channel is a platform handler the Manager can run.
type Channel interface {
	bridge.Handler
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// BaseHandlerOption is a functional option for configuring a BaseHandler.
type BaseHandlerOption func(*BaseHandler)

// WithIgnoreList drops messages from the listed senders. Entries may be an
// id, a username or the compound "id|username".
func WithIgnoreList(ignore []string) BaseHandlerOption {
	return func(h *BaseHandler) { h.ignore = ignore }
}

// BaseHandler carries the platform-neutral parts of a handler: identity,
// running state, the command table and the ignore list.
type BaseHandler struct {
	typ     string
	id      string
	running atomic.Bool
	ignore  []string

	mu       sync.RWMutex
	commands map[string]bridge.CommandFunc
}

func NewBaseHandler(typ, id string, opts ...BaseHandlerOption) *BaseHandler {
	h := &BaseHandler{
		typ:      typ,
		id:       id,
		commands: make(map[string]bridge.CommandFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *BaseHandler) Type() string { return h.typ }
func (h *BaseHandler) ID() string   { return h.id }

func (h *BaseHandler) IsRunning() bool {
	return h.running.Load()
}

func (h *BaseHandler) setRunning(v bool) {
	h.running.Store(v)
}

// AddCommand registers a command token. fn may be nil when only the
// bridge acts on the command.
func (h *BaseHandler) AddCommand(name string, fn bridge.CommandFunc) {
	if strings.TrimSpace(name) == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[name] = fn
}

func (h *BaseHandler) DeleteCommand(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.commands, name)
}

func (h *BaseHandler) HasCommand(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.commands[name]
	return ok
}

// runCommand invokes the local callback registered for c.Command, if any.
func (h *BaseHandler) runCommand(ctx context.Context, c *bridge.Context) {
	h.mu.RLock()
	fn := h.commands[c.Command]
	h.mu.RUnlock()
	if fn == nil {
		return
	}
	if err := fn(ctx, c); err != nil {
		logger.WarnCF(strings.ToLower(h.typ), "Command failed", map[string]any{
			"command": c.Command,
			"error":   err.Error(),
		})
	}
}

// IsIgnored reports whether senderID is on the ignore list.
func (h *BaseHandler) IsIgnored(senderID string) bool {
	if len(h.ignore) == 0 {
		return false
	}

	// Extract parts from compound senderID like "123456|username"
	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, ignored := range h.ignore {
		trimmed := strings.TrimPrefix(ignored, "@")
		ignoredID := trimmed
		ignoredUser := ""
		if idx := strings.Index(trimmed, "|"); idx > 0 {
			ignoredID = trimmed[:idx]
			ignoredUser = trimmed[idx+1:]
		}

		if senderID == trimmed ||
			idPart == trimmed ||
			idPart == ignoredID ||
			(ignoredUser != "" && userPart == ignoredUser) ||
			(userPart != "" && userPart == trimmed) {
			return true
		}
	}
	return false
}
