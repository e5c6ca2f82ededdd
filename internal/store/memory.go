package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory Store used by tests and single-run deployments that
// do not need history to survive a restart.
type Memory struct {
	mu     sync.RWMutex
	closed bool
	msgs   map[string][]Message
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{msgs: make(map[string][]Message)}
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	m.msgs[msg.Channel] = append(m.msgs[msg.Channel], msg)
	return nil
}

// History implements Store.
func (m *Memory) History(_ context.Context, channel string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	msgs := m.msgs[channel]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Close implements Store. Further operations return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
