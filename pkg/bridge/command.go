package bridge

import (
	"context"
	"slices"
	"strings"

	"github.com/tinyland-inc/picobridge/pkg/logger"
)

// Callbacks are the per-phase handlers of a bridge command. Any may be nil.
type Callbacks struct {
	Send    Hook
	Receive Hook
	Sent    Hook
}

func (c Callbacks) forEvent(event string) Hook {
	switch event {
	case EventSend:
		return c.Send
	case EventReceive:
		return c.Receive
	case EventSent:
		return c.Sent
	}
	return nil
}

// CommandOptions selects where a command is recognized and where it runs.
// AllowedClients takes precedence over DisallowedClients; Enables takes
// precedence over Disables.
type CommandOptions struct {
	AllowedClients    []string
	DisallowedClients []string
	Enables           []string
	Disables          []string
}

type Command struct {
	Name string
	// Enables is nil when the command runs everywhere not disabled.
	Enables   []string
	Disables  []string
	Callbacks Callbacks
}

// AddCommand registers a bridge command. The command token is registered
// with the selected handlers only the first time name is added; later calls
// replace the callbacks and options.
func (r *Router) AddCommand(name string, cb Callbacks, opts CommandOptions) {
	cmd := &Command{Name: name, Callbacks: cb}
	if opts.Enables != nil {
		cmd.Enables = r.parseUIDList(name, opts.Enables)
		if cmd.Enables == nil {
			cmd.Enables = []string{}
		}
	} else if opts.Disables != nil {
		cmd.Disables = r.parseUIDList(name, opts.Disables)
	}

	r.mu.Lock()
	_, exists := r.commands[name]
	r.commands[name] = cmd
	var handlers []Handler
	if !exists {
		handlers = r.commandClients(opts)
	}
	r.mu.Unlock()

	for _, h := range handlers {
		h.AddCommand(name, nil)
	}
}

// AddCommandFunc registers fn to run after delivery.
func (r *Router) AddCommandFunc(name string, fn Hook, opts CommandOptions) {
	r.AddCommand(name, Callbacks{Sent: fn}, opts)
}

// DeleteCommand removes name from the router and from every handler.
func (r *Router) DeleteCommand(name string) {
	r.mu.Lock()
	_, ok := r.commands[name]
	delete(r.commands, name)
	handlers := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		handlers = append(handlers, h)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	for _, h := range handlers {
		h.DeleteCommand(name)
	}
}

func (r *Router) Command(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

func (r *Router) parseUIDList(command string, uids []string) []string {
	var out []string
	for _, s := range uids {
		u := r.parser.Parse(s)
		if !u.Valid() {
			logger.WarnCF("command", "Skipping invalid uid", map[string]any{
				"command": command,
				"uid":     s,
			})
			continue
		}
		out = append(out, u.UID)
	}
	return out
}

// commandClients must be called with r.mu held.
func (r *Router) commandClients(opts CommandOptions) []Handler {
	var out []Handler
	if opts.AllowedClients != nil {
		for _, c := range opts.AllowedClients {
			if h, ok := r.handlers[r.parser.Resolve(c)]; ok {
				out = append(out, h)
			}
		}
		return out
	}

	disallowed := make([]string, 0, len(opts.DisallowedClients))
	for _, c := range opts.DisallowedClients {
		disallowed = append(disallowed, strings.ToLower(r.parser.Resolve(c)))
	}
	for typ, h := range r.handlers {
		if !slices.Contains(disallowed, strings.ToLower(typ)) {
			out = append(out, h)
		}
	}
	return out
}

func (r *Router) commandHook(event string) Hook {
	return func(ctx context.Context, m *Message) error {
		if m.Command == "" {
			return nil
		}
		cmd, ok := r.Command(m.Command)
		if !ok {
			return nil
		}

		if slices.Contains(cmd.Disables, m.ToUID) {
			logger.DebugCF("command", "Command ignored", map[string]any{"msg_id": m.MsgID})
			return nil
		}
		if cmd.Enables != nil && !slices.Contains(cmd.Enables, m.ToUID) {
			return nil
		}

		fn := cmd.Callbacks.forEvent(event)
		if fn == nil {
			return nil
		}
		logger.DebugCF("command", "Running command", map[string]any{
			"msg_id":  m.MsgID,
			"command": m.Command,
			"event":   event,
		})
		return fn(ctx, m)
	}
}
