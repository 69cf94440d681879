package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/user-service/internal/users"
)

const userKeyPrefix = "user:"

// cachedUser は Redis に保存する形式です。User の JSON 表現はパスワードハッシュを含まないため別に定義します。
type cachedUser struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CachedStore は FindByID の結果を Redis にキャッシュする users.Store です。
// キャッシュの障害はログに残し、元のストアの結果を返します。
type CachedStore struct {
	users.Store
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore は CachedStore を作成します。
func NewCachedStore(next users.Store, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{
		Store:  next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With("component", "user_cache"),
	}
}

func (s *CachedStore) FindByID(ctx context.Context, id string) (*users.User, error) {
	id = users.NormalizeID(id)
	if u, ok := s.get(ctx, id); ok {
		return u, nil
	}

	u, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.set(ctx, u)
	return u, nil
}

func (s *CachedStore) Update(ctx context.Context, user *users.User) error {
	if err := s.Store.Update(ctx, user); err != nil {
		return err
	}
	s.invalidate(ctx, user.ID)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, id string) error {
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CachedStore) get(ctx context.Context, id string) (*users.User, bool) {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("cache read failed", "id", id, "error", err)
		}
		return nil, false
	}
	var cached cachedUser
	if err := json.Unmarshal(data, &cached); err != nil {
		s.logger.Warn("cache entry corrupt", "id", id, "error", err)
		s.invalidate(ctx, id)
		return nil, false
	}
	return &users.User{
		ID:           cached.ID,
		Name:         cached.Name,
		Email:        cached.Email,
		PasswordHash: cached.PasswordHash,
		CreatedAt:    cached.CreatedAt,
		UpdatedAt:    cached.UpdatedAt,
	}, true
}

func (s *CachedStore) set(ctx context.Context, u *users.User) {
	payload, err := json.Marshal(cachedUser{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	})
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, userKey(u.ID), payload, s.ttl).Err(); err != nil {
		s.logger.Warn("cache write failed", "id", u.ID, "error", err)
	}
}

func (s *CachedStore) invalidate(ctx context.Context, id string) {
	if err := s.rdb.Del(ctx, userKey(id)).Err(); err != nil {
		s.logger.Warn("cache invalidate failed", "id", id, "error", err)
	}
}

func userKey(id string) string {
	return userKeyPrefix + users.NormalizeID(id)
}
