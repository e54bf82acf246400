package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pingup/pingup/internal/core"
)

// Memory is an in-memory core.Storage for tests.
type Memory struct {
	mu          sync.RWMutex
	users       map[string]*core.User
	messages    map[string]*core.Message
	connections map[string]*core.ConnectionRequest
	stories     map[string]*core.Story
}

// NewMemory creates an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]*core.User),
		messages:    make(map[string]*core.Message),
		connections: make(map[string]*core.ConnectionRequest),
		stories:     make(map[string]*core.Story),
	}
}

// GetUser implements core.Storage.
func (m *Memory) GetUser(_ context.Context, id string) (*core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByUsername implements core.Storage.
func (m *Memory) GetUserByUsername(_ context.Context, username string) (*core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrUserNotFound
}

// PutUser implements core.Storage.
func (m *Memory) PutUser(_ context.Context, u *core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

// DeleteUser implements core.Storage.
func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

// SaveMessage implements core.Storage.
func (m *Memory) SaveMessage(_ context.Context, msg *core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

// RecentMessages implements core.Storage.
func (m *Memory) RecentMessages(_ context.Context, toUserID string) ([]*core.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*core.Message
	for _, msg := range m.messages {
		if msg.ToUserID == toUserID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ChatMessages implements core.Storage.
func (m *Memory) ChatMessages(_ context.Context, userID, otherUserID string) ([]*core.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*core.Message
	for _, msg := range m.messages {
		if (msg.FromUserID == userID && msg.ToUserID == otherUserID) ||
			(msg.FromUserID == otherUserID && msg.ToUserID == userID) {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetConnection implements core.Storage.
func (m *Memory) GetConnection(_ context.Context, id string) (*core.ConnectionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	if !ok {
		return nil, core.ErrConnectionNotFound
	}
	cp := *c
	return &cp, nil
}

// FindConnection implements core.Storage.
func (m *Memory) FindConnection(_ context.Context, userA, userB string) (*core.ConnectionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.connections {
		if (c.FromUserID == userA && c.ToUserID == userB) ||
			(c.FromUserID == userB && c.ToUserID == userA) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, core.ErrConnectionNotFound
}

// SaveConnection implements core.Storage.
func (m *Memory) SaveConnection(_ context.Context, c *core.ConnectionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.connections[c.ID] = &cp
	return nil
}

// ConnectionsOf implements core.Storage.
func (m *Memory) ConnectionsOf(_ context.Context, userID string) ([]*core.ConnectionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*core.ConnectionRequest
	for _, c := range m.connections {
		if c.FromUserID == userID || c.ToUserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CountRecentConnections implements core.Storage.
func (m *Memory) CountRecentConnections(_ context.Context, fromUserID string, withinHours int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().Add(-time.Duration(withinHours) * time.Hour)
	n := 0
	for _, c := range m.connections {
		if c.FromUserID == fromUserID && !c.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

// SaveStory implements core.Storage.
func (m *Memory) SaveStory(_ context.Context, s *core.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.stories[s.ID] = &cp
	return nil
}

// GetStory implements core.Storage.
func (m *Memory) GetStory(_ context.Context, id string) (*core.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stories[id]
	if !ok {
		return nil, core.ErrStoryNotFound
	}
	cp := *s
	return &cp, nil
}

// StoriesFeed implements core.Storage. The memory variant returns the
// user's own stories only; feed composition is exercised against the
// SQLite store.
func (m *Memory) StoriesFeed(_ context.Context, userID string) ([]*core.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*core.Story
	for _, s := range m.stories {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteStory implements core.Storage; absent IDs succeed.
func (m *Memory) DeleteStory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stories, id)
	return nil
}
