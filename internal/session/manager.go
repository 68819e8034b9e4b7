package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("chat not found")
	ErrBusy     = errors.New("chat has a turn in progress")
)

type entry struct {
	chat    Chat
	lock    chan struct{}
	waiters int
}

// Manager serializes turns within a chat and tracks chat activity. Turns of
// different chats never wait on each other.
type Manager struct {
	mu          sync.Mutex
	chats       map[string]*entry
	idleTimeout time.Duration
	onExpire    func(Chat)
}

func NewManager(idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Minute
	}
	return &Manager{
		chats:       make(map[string]*entry),
		idleTimeout: idleTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(Chat)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Acquire blocks until no other turn of chatID is running or ctx is done.
// The returned release func is idempotent.
func (m *Manager) Acquire(ctx context.Context, chatID, turnID string) (func(), error) {
	m.mu.Lock()
	e, ok := m.chats[chatID]
	if !ok {
		now := time.Now().UTC()
		e = &entry{
			chat: Chat{ID: chatID, StartedAt: now, LastActivityAt: now},
			lock: make(chan struct{}, 1),
		}
		m.chats[chatID] = e
	}
	e.waiters++
	m.mu.Unlock()

	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		m.mu.Lock()
		e.waiters--
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrBusy, ctx.Err())
	}

	m.mu.Lock()
	e.waiters--
	e.chat.ActiveTurnID = turnID
	e.chat.Turns++
	e.chat.LastActivityAt = time.Now().UTC()
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			e.chat.ActiveTurnID = ""
			e.chat.LastActivityAt = time.Now().UTC()
			m.mu.Unlock()
			<-e.lock
		})
	}, nil
}

func (m *Manager) Get(chatID string) (Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.chats[chatID]
	if !ok {
		return Chat{}, ErrNotFound
	}
	return e.chat, nil
}

// Forget drops an idle chat. A chat with a running or waiting turn is kept.
func (m *Manager) Forget(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.chats[chatID]; ok && e.idle() {
		delete(m.chats, chatID)
	}
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chats)
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []Chat

	m.mu.Lock()
	for id, e := range m.chats {
		if !e.idle() || now.Sub(e.chat.LastActivityAt) < m.idleTimeout {
			continue
		}
		expired = append(expired, e.chat)
		delete(m.chats, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, c := range expired {
			hook(c)
		}
	}
}

func (e *entry) idle() bool {
	return e.waiters == 0 && e.chat.ActiveTurnID == ""
}
