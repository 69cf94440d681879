// Package storage はユーザーストアの実装を提供します。
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/user-service/internal/users"
)

// Memory はプロセス内のユーザーストアです。DATABASE_URL 未設定時とテストで使います。
type Memory struct {
	mu    sync.RWMutex
	byID  map[string]*users.User
	order []string
	now   func() time.Time
}

// NewMemory は空の Memory を作成します。
func NewMemory() *Memory {
	return &Memory{
		byID: make(map[string]*users.User),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// List は作成順に全ユーザーを返します。
func (m *Memory) List(ctx context.Context) ([]users.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]users.User, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.byID[id])
	}
	return out, nil
}

func (m *Memory) FindByID(ctx context.Context, id string) (*users.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[users.NormalizeID(id)]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *Memory) FindByName(ctx context.Context, name string) (*users.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		if u := m.byID[id]; u.Name == name {
			copied := *u
			return &copied, nil
		}
	}
	return nil, users.ErrNotFound
}

func (m *Memory) FindByNameOrEmail(ctx context.Context, name, email string) ([]users.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []users.User
	for _, id := range m.order {
		if u := m.byID[id]; u.Name == name || u.Email == email {
			out = append(out, *u)
		}
	}
	return out, nil
}

// Create は ID と日時を割り当てて保存します。名前かメールが重複すれば ErrDuplicate です。
func (m *Memory) Create(ctx context.Context, user *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conflicts(user.Name, user.Email, "") {
		return users.ErrDuplicate
	}

	now := m.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	m.byID[user.ID] = &stored
	m.order = append(m.order, user.ID)
	return nil
}

func (m *Memory) Update(ctx context.Context, user *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := users.NormalizeID(user.ID)
	existing, ok := m.byID[id]
	if !ok {
		return users.ErrNotFound
	}
	if m.conflicts(user.Name, user.Email, id) {
		return users.ErrDuplicate
	}

	existing.Name = user.Name
	existing.Email = user.Email
	existing.PasswordHash = user.PasswordHash
	existing.UpdatedAt = m.now()

	*user = *existing
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id = users.NormalizeID(id)
	if _, ok := m.byID[id]; !ok {
		return users.ErrNotFound
	}
	delete(m.byID, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) conflicts(name, email, exclude string) bool {
	for id, u := range m.byID {
		if id == exclude {
			continue
		}
		if u.Name == name || u.Email == email {
			return true
		}
	}
	return false
}
