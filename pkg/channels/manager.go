package channels

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tinyland-inc/picobridge/pkg/logger"
)

// Status represents the lifecycle state of a managed channel.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusFailed  Status = "failed"
	StatusStopped Status = "stopped"
)

// State tracks the runtime state of one channel.
type State struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	StartTime time.Time `json:"start_time,omitzero"`
	StopTime  time.Time `json:"stop_time,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// Manager starts, stops and reports on the platform channels.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	states   map[string]*State
}

func NewManager() *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		states:   make(map[string]*State),
	}
}

func (m *Manager) Register(ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.channels[ch.ID()]; exists {
		return errors.Errorf("channel %q is already registered", ch.ID())
	}
	m.channels[ch.ID()] = ch
	m.states[ch.ID()] = &State{ID: ch.ID(), Type: ch.Type(), Status: StatusPending}
	return nil
}

func (m *Manager) Get(id string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[id]
	return ch, ok
}

// Channels returns the registered channels sorted by id.
func (m *Manager) Channels() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// StartAll starts every channel concurrently. Channels that fail are
// marked failed; the others keep running.
func (m *Manager) StartAll(ctx context.Context) error {
	channels := m.Channels()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, ch := range channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			err := ch.Start(ctx)

			m.mu.Lock()
			st := m.states[ch.ID()]
			st.StartTime = time.Now()
			if err != nil {
				st.Status = StatusFailed
				st.Error = err.Error()
			} else {
				st.Status = StatusRunning
				st.Error = ""
			}
			m.mu.Unlock()

			if err != nil {
				logger.ErrorCF("gateway", "Channel failed to start", map[string]any{
					"channel": ch.ID(),
					"error":   err.Error(),
				})
				mu.Lock()
				errs = append(errs, errors.Wrapf(err, "start %s", ch.ID()))
				mu.Unlock()
				return
			}
			logger.InfoCF("gateway", "Channel started", map[string]any{"channel": ch.ID()})
		}(ch)
	}
	wg.Wait()
	return stderrors.Join(errs...)
}

// StopAll stops every running channel.
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, ch := range m.Channels() {
		if !ch.IsRunning() {
			continue
		}
		err := ch.Stop(ctx)

		m.mu.Lock()
		st := m.states[ch.ID()]
		st.StopTime = time.Now()
		if err != nil {
			st.Error = err.Error()
		} else {
			st.Status = StatusStopped
		}
		m.mu.Unlock()

		if err != nil {
			errs = append(errs, errors.Wrapf(err, "stop %s", ch.ID()))
		}
	}
	return stderrors.Join(errs...)
}

// Status returns a snapshot of every channel's state sorted by id.
func (m *Manager) Status() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]State, 0, len(m.states))
	for _, st := range m.states {
		s := *st
		if ch, ok := m.channels[s.ID]; ok && s.Status == StatusRunning && !ch.IsRunning() {
			s.Status = StatusStopped
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllRunning reports whether at least one channel is registered and every
// channel is running.
func (m *Manager) AllRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.channels) == 0 {
		return false
	}
	for _, ch := range m.channels {
		if !ch.IsRunning() {
			return false
		}
	}
	return true
}
