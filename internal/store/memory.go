package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/google/uuid"
)

// Memory keeps everything in process. Used by tests and single-node dev runs.
type Memory struct {
	mu       sync.RWMutex
	users    map[domain.UserID]domain.User
	convs    map[domain.ConversationID]*domain.Conversation
	direct   map[string]domain.ConversationID
	messages map[domain.ConversationID][]*domain.Message
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[domain.UserID]domain.User),
		convs:    make(map[domain.ConversationID]*domain.Conversation),
		direct:   make(map[string]domain.ConversationID),
		messages: make(map[domain.ConversationID][]*domain.Message),
		now:      time.Now,
	}
}

func (m *Memory) FindOrCreateConversation(_ context.Context, members []domain.UserID, opts core.ConversationOptions) (*domain.Conversation, error) {
	members, err := normalizeMembers(members)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := directKey(members)
	if !opts.IsGroup {
		if id, ok := m.direct[key]; ok {
			return cloneConversation(m.convs[id]), nil
		}
	}
	c := &domain.Conversation{
		ID:        domain.ConversationID(uuid.NewString()),
		Members:   members,
		IsGroup:   opts.IsGroup,
		GroupName: opts.GroupName,
		CreatedAt: m.now().UTC(),
	}
	m.convs[c.ID] = c
	if !opts.IsGroup {
		m.direct[key] = c.ID
	}
	return cloneConversation(c), nil
}

func (m *Memory) GetConversation(_ context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, core.ErrConversationNotFound
	}
	return cloneConversation(c), nil
}

func (m *Memory) AppendMessage(_ context.Context, msg *domain.Message) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[msg.ConversationID]
	if !ok {
		return nil, core.ErrConversationNotFound
	}
	if !c.HasMember(msg.UserID) {
		return nil, core.ErrNotConversationMember
	}
	stored := *msg
	m.messages[c.ID] = append(m.messages[c.ID], &stored)
	return cloneConversation(c), nil
}

func (m *Memory) SetUserOnline(_ context.Context, uid domain.UserID, online bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[uid]
	u.ID = uid
	u.Online = online
	if !online {
		u.LastSeen = at.UTC()
	}
	m.users[uid] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, uid domain.UserID) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[uid]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *Memory) MarkMessagesRead(_ context.Context, id domain.ConversationID, reader domain.UserID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[id]; !ok {
		return 0, core.ErrConversationNotFound
	}
	var n int64
	for _, msg := range m.messages[id] {
		if msg.UserID != reader && !msg.IsRead {
			msg.IsRead = true
			n++
		}
	}
	return n, nil
}

// Messages returns the stored history of a conversation in append order.
func (m *Memory) Messages(id domain.ConversationID) []domain.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Message, 0, len(m.messages[id]))
	for _, msg := range m.messages[id] {
		out = append(out, *msg)
	}
	return out
}

func (m *Memory) Ping(context.Context) error  { return nil }
func (m *Memory) Close(context.Context) error { return nil }

func cloneConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	out.Members = slices.Clone(c.Members)
	return &out
}
