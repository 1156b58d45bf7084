package bridge

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

// Processor adapts bridged messages to one platform.
type Processor interface {
	Init() error
	Receive(ctx context.Context, m *Message) error
}

// Route is one directed edge of the routing table.
type Route struct {
	Disabled bool
}

// Observer is told about routing outcomes. Observe must not block.
type Observer interface {
	Observe(kind ObserveKind, m *Message, err error)
}

type ObserveKind string

const (
	ObserveSend    ObserveKind = "send"
	ObserveVeto    ObserveKind = "veto"
	ObserveDeliver ObserveKind = "deliver"
	ObserveFail    ObserveKind = "fail"
	ObserveSent    ObserveKind = "sent"
)

var errNoClientName = errors.New("message has neither alias nor handler")

// Router owns the routing table and every registry the relay shares:
// aliases, processors, handlers, hooks and commands.
type Router struct {
	mu sync.RWMutex

	parser     *UIDParser
	routes     map[string]map[string]*Route
	aliases    map[string]ClientName
	processors map[string]Processor
	handlers   map[string]Handler
	hooks      map[string][]hookEntry
	hookIndex  map[HookID]hookRef
	lastHookID HookID
	commands   map[string]*Command
	admins     map[string]bool
	style      config.MessageStyle
	observers  []Observer
}

type RouterOption func(*Router)

func WithStyle(s config.MessageStyle) RouterOption {
	return func(r *Router) { r.style = s }
}

func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		parser:     NewUIDParser(),
		routes:     make(map[string]map[string]*Route),
		aliases:    make(map[string]ClientName),
		processors: make(map[string]Processor),
		handlers:   make(map[string]Handler),
		hooks:      make(map[string][]hookEntry),
		hookIndex:  make(map[HookID]hookRef),
		commands:   make(map[string]*Command),
		admins:     make(map[string]bool),
		style:      config.DefaultMessageStyle(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.AddHook(EventSend, r.commandHook(EventSend))
	r.AddHook(EventReceive, r.commandHook(EventReceive))
	r.AddHook(EventSent, r.commandHook(EventSent))
	return r
}

// NewRouterFromConfig builds a router with routes, aliases, admins and
// message style taken from cfg. Handlers are registered first so their
// short ids resolve inside the configured UIDs.
func NewRouterFromConfig(cfg *config.Config, handlers ...Handler) *Router {
	r := NewRouter(WithStyle(cfg.Style()))
	for _, h := range handlers {
		r.AddHandler(h)
	}
	r.SetAdmins(cfg.Admins)
	r.LoadRoutes(cfg.Bridge.Groups, cfg.Bridge.Disables)
	r.SetAliases(cfg.Bridge.Aliases)
	return r
}

func (r *Router) Parser() *UIDParser {
	return r.parser
}

func (r *Router) Style() config.MessageStyle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.style
}

// AddObserver registers o for routing outcomes.
func (r *Router) AddObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *Router) observe(kind ObserveKind, m *Message, err error) {
	r.mu.RLock()
	obs := r.observers
	r.mu.RUnlock()
	for _, o := range obs {
		o.Observe(kind, m, err)
	}
}

// LoadRoutes adds a full mesh between the members of each group, then marks
// the edges listed in disables. Self edges are never created and invalid
// UIDs are skipped with a warning.
func (r *Router) LoadRoutes(groups [][]string, disables map[string]config.FlexibleStringSlice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, group := range groups {
		uids := make([]string, 0, len(group))
		for _, g := range group {
			u := r.parser.Parse(g)
			if !u.Valid() {
				logger.WarnCF("bridge", "Skipping invalid uid in group", map[string]any{"uid": g})
				continue
			}
			if _, ok := r.handlers[u.Client]; !ok && len(r.handlers) > 0 {
				logger.WarnCF("bridge", "Route uses a client with no handler", map[string]any{"uid": g, "client": u.Client})
			}
			uids = append(uids, u.UID)
		}

		for _, src := range uids {
			if r.routes[src] == nil {
				r.routes[src] = make(map[string]*Route)
			}
			for _, dst := range uids {
				if src == dst {
					continue
				}
				if _, ok := r.routes[src][dst]; !ok {
					r.routes[src][dst] = &Route{}
				}
			}
		}
	}

	for src, dsts := range disables {
		s := r.parser.Parse(src)
		if !s.Valid() {
			logger.WarnCF("bridge", "Skipping invalid uid in disables", map[string]any{"uid": src})
			continue
		}
		for _, dst := range dsts {
			d := r.parser.Parse(dst)
			if !d.Valid() {
				logger.WarnCF("bridge", "Skipping invalid uid in disables", map[string]any{"uid": dst})
				continue
			}
			if route, ok := r.routes[s.UID][d.UID]; ok {
				route.Disabled = true
			}
		}
	}
}

// DisableRoute turns off the edge src -> dst if it exists.
func (r *Router) DisableRoute(src, dst string) bool {
	s, d := r.parser.Parse(src), r.parser.Parse(dst)
	if !s.Valid() || !d.Valid() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	route, ok := r.routes[s.UID][d.UID]
	if !ok {
		return false
	}
	route.Disabled = true
	return true
}

// Targets returns the enabled destinations of uid, sorted.
func (r *Router) Targets(uid string) []string {
	u := r.parser.Parse(uid)
	if !u.Valid() {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for dst, route := range r.routes[u.UID] {
		if !route.Disabled {
			out = append(out, dst)
		}
	}
	sort.Strings(out)
	return out
}

// Sources returns every UID that has at least one outgoing edge, sorted.
func (r *Router) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for src := range r.routes {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// Edge is a flattened routing table entry.
type Edge struct {
	From     string
	To       string
	Disabled bool
}

// Edges returns the whole routing table sorted by source then destination.
func (r *Router) Edges() []Edge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Edge
	for src, dsts := range r.routes {
		for dst, route := range dsts {
			out = append(out, Edge{From: src, To: dst, Disabled: route.Disabled})
		}
	}
	slices.SortFunc(out, func(a, b Edge) int {
		return cmp.Or(strings.Compare(a.From, b.From), strings.Compare(a.To, b.To))
	})
	return out
}

func (r *Router) SetAliases(aliases map[string]config.Alias) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, a := range aliases {
		u := r.parser.Parse(uid)
		if !u.Valid() {
			logger.WarnCF("bridge", "Skipping invalid uid in aliases", map[string]any{"uid": uid})
			continue
		}
		r.aliases[u.UID] = ClientName{Short: a.Short, Full: a.Full}
	}
}

func (r *Router) Alias(uid string) (ClientName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.aliases[r.parser.Parse(uid).UID]
	return a, ok
}

// Aliases returns a copy of the alias table.
func (r *Router) Aliases() map[string]ClientName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ClientName, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// AddHandler registers h under its type and refreshes UID prefix resolution.
func (r *Router) AddHandler(h Handler) {
	r.mu.Lock()
	r.handlers[h.Type()] = h
	hs := make([]Handler, 0, len(r.handlers))
	for _, v := range r.handlers {
		hs = append(hs, v)
	}
	r.mu.Unlock()

	r.parser.SetHandlers(hs)
}

func (r *Router) Handler(typ string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typ]
	return h, ok
}

// Handlers returns the registered handlers sorted by type.
func (r *Router) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b Handler) int {
		return strings.Compare(a.Type(), b.Type())
	})
	return out
}

func (r *Router) AddProcessor(typ string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[typ] = p
}

func (r *Router) DeleteProcessor(typ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.processors, typ)
}

func (r *Router) processor(typ string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[typ]
	return p, ok
}

func (r *Router) SetAdmins(uids []string) {
	admins := make(map[string]bool, len(uids))
	for _, u := range uids {
		if id := r.parser.Parse(u); id.Valid() {
			admins[id.UID] = true
		} else {
			logger.WarnCF("bridge", "Skipping invalid admin uid", map[string]any{"uid": u})
		}
	}
	r.mu.Lock()
	r.admins = admins
	r.mu.Unlock()
}

// IsAdmin reports whether uid is on the admin list.
func (r *Router) IsAdmin(uid string) bool {
	u := r.parser.Parse(uid)
	if !u.Valid() {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admins[u.UID]
}

func (r *Router) prepare(ctx context.Context, m *Message) error {
	targets := r.Targets(m.ToUID)
	m.Extra.MapTo = targets
	m.Extra.Clients = len(targets) + 1

	if alias, ok := r.Alias(m.ToUID); ok {
		m.Extra.ClientName = alias
	} else {
		if m.Handler == nil {
			return errNoClientName
		}
		m.Extra.ClientName = ClientName{Short: m.Handler.ID(), Full: m.Handler.Type()}
	}

	return r.EmitHook(ctx, EventSend, m)
}

// SendContext wraps c in a Message and sends it.
func (r *Router) SendContext(ctx context.Context, c *Context) bool {
	return r.Send(ctx, NewMessage(c))
}

// Send relays m to every enabled destination of m.ToUID. Deliveries run in
// parallel and Send waits for all of them. It returns true only when the
// message passed the send hooks, had at least one destination and every
// delivery succeeded.
func (r *Router) Send(ctx context.Context, m *Message) bool {
	logger.DebugCF("bridge", "UserSend", map[string]any{
		"msg_id": m.MsgID,
		"from":   m.FromUID,
		"to":     m.ToUID,
		"text":   m.Text,
	})

	if err := r.prepare(ctx, m); err != nil {
		if errors.Is(err, errNoClientName) {
			logger.ErrorCF("bridge", "Cannot send message", map[string]any{
				"msg_id": m.MsgID,
				"error":  err.Error(),
			})
		} else {
			logger.DebugCF("bridge", "Message rejected by send hook", map[string]any{
				"msg_id": m.MsgID,
				"reason": err.Error(),
			})
		}
		r.observe(ObserveVeto, m, err)
		return false
	}
	r.observe(ObserveSend, m, nil)

	targets := m.Extra.MapTo
	if len(targets) == 0 {
		logger.DebugCF("bridge", "Message has no targets", map[string]any{"msg_id": m.MsgID})
		return false
	}

	var (
		wg     sync.WaitGroup
		failed atomic.Bool
	)
	for _, target := range targets {
		wg.Go(func() {
			if err := r.deliver(ctx, m, target); err != nil {
				failed.Store(true)
				logger.ErrorCF("bridge", "Delivery failed", map[string]any{
					"msg_id": m.MsgID,
					"to":     target,
					"error":  err.Error(),
				})
			}
		})
	}
	wg.Wait()

	logger.DebugCF("bridge", "BotSend done", map[string]any{"msg_id": m.MsgID})
	if err := r.EmitHook(ctx, EventSent, m); err != nil {
		logger.WarnCF("bridge", "bridge.sent hook failed", map[string]any{
			"msg_id": m.MsgID,
			"error":  err.Error(),
		})
	}
	r.observe(ObserveSent, m, nil)

	return !failed.Load()
}

func (r *Router) deliver(ctx context.Context, m *Message, target string) error {
	msg := m.Clone()
	if err := msg.SetToUID(r.parser, target); err != nil {
		return fmt.Errorf("target %q: %w", target, err)
	}

	if err := r.EmitHook(ctx, EventReceive, msg); err != nil {
		r.observe(ObserveFail, msg, err)
		return fmt.Errorf("bridge.receive: %w", err)
	}

	p, ok := r.processor(msg.ToClient)
	if !ok {
		logger.DebugCF("bridge", "No processor", map[string]any{
			"msg_id": m.MsgID,
			"to":     msg.ToUID,
		})
		return nil
	}

	logger.DebugCF("bridge", "BotTransport", map[string]any{
		"msg_id": m.MsgID,
		"to":     msg.ToUID,
	})
	if err := p.Receive(ctx, msg); err != nil {
		r.observe(ObserveFail, msg, err)
		return err
	}
	r.observe(ObserveDeliver, msg, nil)
	return nil
}
