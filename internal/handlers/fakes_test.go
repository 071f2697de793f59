package handlers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/messageapi/apiserver/internal/store"
	"github.com/messageapi/apiserver/types"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]types.User
}

func (m *memUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[username]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Username]; ok {
		return types.User{}, store.ErrAlreadyExists
	}
	user.ID = len(m.users) + 1
	user.CreatedAt = time.Now()
	m.users[user.Username] = user
	return user, nil
}

type memMessageRepo struct {
	mu        sync.Mutex
	messages  []types.Message
	clock     time.Time
	createErr error
}

func (m *memMessageRepo) Create(ctx context.Context, msg types.Message) (types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return types.Message{}, m.createErr
	}
	m.clock = m.clock.Add(time.Second)
	msg.ID = int64(len(m.messages) + 1)
	msg.CreatedAt = m.clock
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *memMessageRepo) ClaimUnread(ctx context.Context, recipient string) ([]types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []types.Message{}
	for i := range m.messages {
		if m.messages[i].Recipient == recipient && !m.messages[i].IsRead {
			m.messages[i].IsRead = true
			out = append(out, m.messages[i])
		}
	}
	return out, nil
}

func (m *memMessageRepo) History(ctx context.Context, recipient string, offset, limit int) ([]types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []types.Message
	for _, msg := range m.messages {
		if msg.Recipient == recipient {
			all = append(all, msg)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	out := []types.Message{}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *memMessageRepo) CountUnread(ctx context.Context, recipient string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, msg := range m.messages {
		if msg.Recipient == recipient && !msg.IsRead {
			total++
		}
	}
	return total, nil
}

func (m *memMessageRepo) all() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Message(nil), m.messages...)
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

var errBoom = errors.New("boom")
