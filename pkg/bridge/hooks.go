package bridge

import (
	"context"
	"slices"
)

const (
	EventSend    = "bridge.send"
	EventReceive = "bridge.receive"
	EventSent    = "bridge.sent"
)

// DefaultPriority is the nominal priority of AddHook.
const DefaultPriority = 100

// Hook inspects or mutates a message. On bridge.send a non-nil error vetoes
// the message; on bridge.receive it fails that one delivery.
type Hook func(ctx context.Context, m *Message) error

// HookID identifies a registered hook for DeleteHook.
type HookID uint64

type hookEntry struct {
	id       HookID
	priority int
	fn       Hook
}

type hookRef struct {
	event    string
	priority int
}

func (r *Router) AddHook(event string, fn Hook) HookID {
	return r.AddHookPriority(event, fn, DefaultPriority)
}

// AddHookPriority registers fn on event. Lower priorities run first; an
// occupied slot bumps the hook to the next free priority.
func (r *Router) AddHookPriority(event string, fn Hook, priority int) HookID {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.hooks[event]
	p := priority
	for slices.ContainsFunc(entries, func(e hookEntry) bool { return e.priority == p }) {
		p++
	}

	r.lastHookID++
	id := r.lastHookID

	// copy on write: EmitHook iterates snapshots without the lock
	next := make([]hookEntry, 0, len(entries)+1)
	next = append(next, entries...)
	next = append(next, hookEntry{id: id, priority: p, fn: fn})
	slices.SortFunc(next, func(a, b hookEntry) int { return a.priority - b.priority })

	r.hooks[event] = next
	r.hookIndex[id] = hookRef{event: event, priority: p}
	return id
}

// DeleteHook removes a hook. Unknown ids are ignored.
func (r *Router) DeleteHook(id HookID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, ok := r.hookIndex[id]
	if !ok {
		return
	}
	delete(r.hookIndex, id)

	entries := r.hooks[ref.event]
	next := make([]hookEntry, 0, len(entries))
	for _, e := range entries {
		if e.id != id {
			next = append(next, e)
		}
	}
	r.hooks[ref.event] = next
}

// HookCount returns the number of hooks on event.
func (r *Router) HookCount(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[event])
}

// EmitHook runs the hooks of event in ascending priority, one at a time,
// and stops at the first error.
func (r *Router) EmitHook(ctx context.Context, event string, m *Message) error {
	r.mu.RLock()
	entries := r.hooks[event]
	r.mu.RUnlock()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.fn(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
