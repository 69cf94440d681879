package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/user-service/internal/apperr"
	"github.com/yourusername/user-service/internal/auth"
	"github.com/yourusername/user-service/internal/sanitize"
	"github.com/yourusername/user-service/internal/users"
)

const contextInputKey = "users.input"

// UserHandler はユーザー CRUD のハンドラーです。
type UserHandler struct {
	store     users.Store
	passwords *auth.PasswordHasher
}

// NewUserHandler は UserHandler を作成します。
func NewUserHandler(store users.Store, passwords *auth.PasswordHasher) *UserHandler {
	return &UserHandler{store: store, passwords: passwords}
}

// ValidateInput は本文を name / email / password として検証し、結果をコンテキストに格納します。
func (h *UserHandler) ValidateInput(c *gin.Context) error {
	raw, err := sanitize.Body(c)
	if err != nil {
		return err
	}
	in, err := users.ParseInput(raw)
	if err != nil {
		return err
	}
	c.Set(contextInputKey, in)
	return nil
}

// EnsureUnique は名前とメールアドレスが他のユーザーに使われていないことを確認します。
// 更新時はパスの :id を除外します。
func (h *UserHandler) EnsureUnique(c *gin.Context) error {
	in := inputFrom(c)
	return users.EnsureUnique(c.Request.Context(), h.store, in.Name, in.Email, c.Param("id"))
}

// List は GET / のハンドラーです。
func (h *UserHandler) List(c *gin.Context) error {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		return storeError("list users", err)
	}
	if list == nil {
		list = []users.User{}
	}
	c.JSON(http.StatusOK, gin.H{"usuarios": list})
	return nil
}

// Find は GET /:id のハンドラーです。
func (h *UserHandler) Find(c *gin.Context) error {
	user, err := h.store.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		return storeError("find user", err)
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
	return nil
}

// Create は POST / のハンドラーです。ValidateInput と EnsureUnique の後に実行します。
func (h *UserHandler) Create(c *gin.Context) error {
	in := inputFrom(c)
	hash, err := h.hash(in.Password)
	if err != nil {
		return err
	}

	user := &users.User{Name: in.Name, Email: in.Email, PasswordHash: hash}
	if err := h.store.Create(c.Request.Context(), user); err != nil {
		return storeError("create user", err)
	}
	c.JSON(http.StatusCreated, gin.H{"new_user": user})
	return nil
}

// Update は PUT /:id のハンドラーです。name / email / パスワードを全て置き換えます。
func (h *UserHandler) Update(c *gin.Context) error {
	ctx := c.Request.Context()
	existing, err := h.store.FindByID(ctx, c.Param("id"))
	if err != nil {
		return storeError("find user for update", err)
	}

	in := inputFrom(c)
	hash, err := h.hash(in.Password)
	if err != nil {
		return err
	}

	existing.Name = in.Name
	existing.Email = in.Email
	existing.PasswordHash = hash
	if err := h.store.Update(ctx, existing); err != nil {
		return storeError("update user", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"message":      "Usuario actualizado con exito",
		"updated_user": existing,
	})
	return nil
}

// Delete は DELETE /:id のハンドラーです。
func (h *UserHandler) Delete(c *gin.Context) error {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		return storeError("delete user", err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Usuario eliminado con éxito"})
	return nil
}

func (h *UserHandler) hash(password string) (string, error) {
	hash, err := h.passwords.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", apperr.Validation(`"password" length must be less than or equal to 72 bytes long`)
	}
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	return hash, nil
}

func inputFrom(c *gin.Context) users.Input {
	v, _ := c.Get(contextInputKey)
	in, _ := v.(users.Input)
	return in
}

// storeError はストアのエラーを応答用のエラー種別に変換します。
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, users.ErrNotFound):
		return apperr.NotFound()
	case errors.Is(err, users.ErrDuplicate):
		return apperr.Conflict()
	default:
		return apperr.Internal(fmt.Errorf("%s: %w", op, err))
	}
}
