package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
)

// ErrBusClosed is returned when publishing to or subscribing on a closed
// EventBus.
var ErrBusClosed = errors.New("event bus closed")

// EventBus fans bridge events out to subscribers. Publishing never blocks
// the relay: a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID atomic.Uint64
	seq    atomic.Uint64
	done   chan struct{}
	closed atomic.Bool
	buffer int
}

func NewEventBus() *EventBus {
	return &EventBus{
		subs:   make(map[uint64]chan Event),
		done:   make(chan struct{}),
		buffer: 100,
	}
}

// Observe implements bridge.Observer.
func (eb *EventBus) Observe(kind bridge.ObserveKind, m *bridge.Message, err error) {
	ev := Event{
		Kind:    Kind(kind),
		MsgID:   m.MsgID,
		FromUID: m.FromUID,
		ToUID:   m.ToUID,
		Nick:    m.Nick,
		Text:    m.Text,
		Time:    time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	eb.Publish(ev)
}

// ObserveCommand publishes a command token recognized by a handler.
func (eb *EventBus) ObserveCommand(c *bridge.Context) {
	ev := Event{
		Kind:  KindCommand,
		MsgID: c.MsgID,
		Nick:  c.Nick,
		Text:  c.Text,
		Time:  time.Now(),
	}
	if c.Handler != nil {
		ev.FromUID = bridge.ComposeUID(c.Handler.Type(), c.From)
		ev.ToUID = bridge.ComposeUID(c.Handler.Type(), c.To)
	}
	eb.Publish(ev)
}

// Publish delivers ev to every subscriber with room for it.
func (eb *EventBus) Publish(ev Event) {
	if eb.closed.Load() {
		return
	}
	ev.ID = eb.seq.Add(1)

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed.Load() {
		return
	}
	for _, ch := range eb.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of events and a cancel func. The channel is
// closed by cancel or by Close.
func (eb *EventBus) Subscribe() (<-chan Event, func(), error) {
	if eb.closed.Load() {
		return nil, nil, ErrBusClosed
	}

	id := eb.nextID.Add(1)
	ch := make(chan Event, eb.buffer)

	eb.mu.Lock()
	if eb.closed.Load() {
		eb.mu.Unlock()
		return nil, nil, ErrBusClosed
	}
	eb.subs[id] = ch
	eb.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			if c, ok := eb.subs[id]; ok {
				delete(eb.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel, nil
}

// Next waits for the next event on ch.
func (eb *EventBus) Next(ctx context.Context, ch <-chan Event) (Event, bool) {
	select {
	case ev, ok := <-ch:
		return ev, ok
	case <-eb.done:
		return Event{}, false
	case <-ctx.Done():
		return Event{}, false
	}
}

func (eb *EventBus) Subscribers() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subs)
}

func (eb *EventBus) Close() {
	if eb.closed.CompareAndSwap(false, true) {
		close(eb.done)
		eb.mu.Lock()
		defer eb.mu.Unlock()
		for id, ch := range eb.subs {
			delete(eb.subs, id)
			close(ch)
		}
	}
}
