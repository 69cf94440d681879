// Package auth は認証・認可機能を提供します。
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/yourusername/user-service/internal/apperr"
	"github.com/yourusername/user-service/internal/sanitize"
	"github.com/yourusername/user-service/internal/users"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// IssueCSRF は GET /csrf-token のハンドラーです。
func (m *Manager) IssueCSRF(c *gin.Context) error {
	token, err := m.csrf.Issue(c)
	if err != nil {
		return apperr.Internal(err)
	}
	c.JSON(http.StatusOK, gin.H{"csrfToken": token})
	return nil
}

// Login は POST /login のハンドラーです。
// 存在しないユーザーとパスワード不一致は区別せず、どちらも失敗回数に数えます。
// 照合の前に試行枠を確保し、照合が失敗しなかった場合は枠を返却します。
func (m *Manager) Login(c *gin.Context) error {
	req, err := readLoginRequest(c)
	if err != nil {
		return err
	}
	if req.Username == "" || req.Password == "" {
		return apperr.BadRequest(apperr.MsgLoginRequired)
	}

	key := m.loginKey(c, req.Username)
	reservation, err := m.limiter.Reserve(key)
	if err != nil {
		return m.loginRejected(c, key, err)
	}
	setRateLimitHeaders(c, m.limiter.Limit(), reservation.Remaining())

	failed := false
	defer func() {
		if !failed {
			m.limiter.Release(reservation)
		}
	}()

	user, err := m.users.FindByName(c.Request.Context(), req.Username)
	switch {
	case errors.Is(err, users.ErrNotFound):
		m.passwords.VerifyNothing(req.Password)
		failed = true
		return m.loginFailed(c, key, reservation)
	case err != nil:
		return apperr.Internal(fmt.Errorf("find user for login: %w", err))
	}

	if !m.passwords.Verify(req.Password, user.PasswordHash) {
		failed = true
		return m.loginFailed(c, key, reservation)
	}

	token, expiresAt, err := m.sessions.Issue(Subject{ID: user.ID, Name: user.Name, Email: user.Email})
	if err != nil {
		return apperr.Internal(err)
	}
	m.sessions.Deliver(c, token)

	// 成功した試行は数えないので、返却後の残り回数を返す
	setRateLimitHeaders(c, m.limiter.Limit(), reservation.Remaining()+1)
	body := gin.H{"message": "Login exitoso"}
	if m.sessions.Delivery() == DeliveryHeader {
		body["token"] = token
		body["expiresAt"] = expiresAt.UTC().Format(time.RFC3339)
	}
	m.observer.LoginSucceeded()
	c.JSON(http.StatusOK, body)
	return nil
}

// readLoginRequest は上限付きで本文を読み、ログイン要求を取り出します。
func readLoginRequest(c *gin.Context) (loginRequest, error) {
	var req loginRequest
	raw, err := sanitize.Body(c)
	if err != nil {
		return req, err
	}
	if err := binding.JSON.BindBody(raw, &req); err != nil {
		return loginRequest{}, apperr.BadRequest(apperr.MsgLoginRequired)
	}
	return req, nil
}

func (m *Manager) loginFailed(c *gin.Context, key string, r *Reservation) error {
	m.observer.LoginFailed()
	m.logger.Warn("login failed", "key", key, "remaining", r.Remaining(), "client_ip", c.ClientIP())
	return apperr.BadCredentials()
}

func (m *Manager) loginRejected(c *gin.Context, key string, err error) error {
	setRateLimitHeaders(c, m.limiter.Limit(), 0)
	m.observer.LoginRejected()
	m.logger.Warn("login rate limited", "key", key, "client_ip", c.ClientIP())
	return err
}

// Logout は POST /logout のハンドラーです。クライアントにトークンの破棄を指示するだけです。
func (m *Manager) Logout(c *gin.Context) error {
	m.sessions.Clear(c)
	c.JSON(http.StatusOK, gin.H{"message": "Sesión cerrada"})
	return nil
}
