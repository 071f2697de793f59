package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/messageapi/apiserver/internal/store"
	"github.com/messageapi/apiserver/types"
)

type memUserRepo struct {
	mu     sync.Mutex
	users  map[string]types.User
	nextID    int
	getErr    error
	createErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]types.User)}
}

func (m *memUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return types.User{}, m.getErr
	}
	user, ok := m.users[username]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return types.User{}, m.createErr
	}
	if _, ok := m.users[user.Username]; ok {
		return types.User{}, store.ErrAlreadyExists
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	m.users[user.Username] = user
	return user, nil
}

type memMessageRepo struct {
	mu        sync.Mutex
	messages  []types.Message
	createErr error
	clock     time.Time
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memMessageRepo) Create(ctx context.Context, msg types.Message) (types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return types.Message{}, m.createErr
	}
	m.clock = m.clock.Add(time.Second)
	msg.ID = int64(len(m.messages) + 1)
	msg.IsRead = false
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
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
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

func (m *memMessageRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type memAttachments struct {
	mu        sync.Mutex
	files     map[string][]byte
	storeErr  error
	removeErr error
	removed   []string
}

func newMemAttachments() *memAttachments {
	return &memAttachments{files: make(map[string][]byte)}
}

func (m *memAttachments) Store(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return "", m.storeErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	ref := "uploads/" + filename
	m.files[ref] = data
	return ref, nil
}

func (m *memAttachments) Remove(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, ref)
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.files, ref)
	return nil
}

type publishedEvent struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type fakePublisher struct {
	mu          sync.Mutex
	events      []publishedEvent
	err         error
	ctxErrs     []error
	hasDeadline []bool
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := ctx.Deadline()
	f.hasDeadline = append(f.hasDeadline, ok)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, publishedEvent{channel: channel, data: data, attrs: attrs})
	return "1", nil
}

var errBoom = errors.New("boom")
