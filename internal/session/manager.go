// Package session tracks the WebSocket clients attached to the chat session
// and ends the ones that go quiet.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("connection not found")

const (
	EndReasonClosed   = "closed"
	EndReasonInactive = "inactive"
)

type Manager struct {
	mu                sync.RWMutex
	conns             map[string]*Connection
	inactivityTimeout time.Duration
	onExpire          func(*Connection)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		conns:             make(map[string]*Connection),
		inactivityTimeout: inactivityTimeout,
	}
}

// SetExpireHook registers a callback run for every connection the janitor
// ends. It runs without the manager lock held.
func (m *Manager) SetExpireHook(hook func(*Connection)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(accountID string) *Connection {
	now := time.Now().UTC()
	c := &Connection{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Status:         StatusActive,
		ConnectedAt:    now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.ID] = c
	return clone(c)
}

func (m *Manager) Get(id string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(c), nil
}

// Touch records an inbound message.
func (m *Manager) Touch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return ErrNotFound
	}
	c.MessagesIn++
	c.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) SetSpeech(id string, speech Speech) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return ErrNotFound
	}
	c.Speech = speech
	c.LastActivityAt = time.Now().UTC()
	return nil
}

// End marks the connection ended and forgets it.
func (m *Manager) End(id string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Status = StatusEnded
	c.EndReason = EndReasonClosed
	c.LastActivityAt = time.Now().UTC()
	delete(m.conns, id)
	return clone(c), nil
}

// RunJanitor ends inactive connections every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.expireInactive()
		}
	}
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Connection

	m.mu.Lock()
	for id, c := range m.conns {
		if now.Sub(c.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		c.Status = StatusEnded
		c.EndReason = EndReasonInactive
		c.LastActivityAt = now
		expired = append(expired, clone(c))
		delete(m.conns, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, c := range expired {
			hook(c)
		}
	}
}

func clone(c *Connection) *Connection {
	out := *c
	return &out
}
