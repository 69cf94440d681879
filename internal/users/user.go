// Package users はユーザーアカウントのドメインモデルと書き込み前の検証を提供します。
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User はユーザーアカウントです。PasswordHash はクライアントへ返しません。
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

var (
	// ErrNotFound は該当するユーザーが存在しないことを表します。
	ErrNotFound = errors.New("users: not found")
	// ErrDuplicate は名前またはメールアドレスが既に使われていることを表します。
	ErrDuplicate = errors.New("users: duplicate name or email")
)

// Store はユーザーの永続化層です。
type Store interface {
	List(ctx context.Context) ([]User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByName(ctx context.Context, name string) (*User, error)
	// FindByNameOrEmail は name または email が一致する全てのユーザーを返します。
	FindByNameOrEmail(ctx context.Context, name, email string) ([]User, error)
	// Create は ID と作成日時を割り当てて保存します。
	Create(ctx context.Context, user *User) error
	// Update は name / email / パスワードハッシュを置き換えます。
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
}

// NormalizeID は比較用に ID を正規化します。UUID は小文字の標準形に揃えます。
func NormalizeID(id string) string {
	trimmed := strings.TrimSpace(id)
	if parsed, err := uuid.Parse(trimmed); err == nil {
		return parsed.String()
	}
	return trimmed
}
