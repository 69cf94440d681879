package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/yourusername/user-service/internal/sanitize"
)

const contextLoginKey = "auth.login_key"

// RequireSession は保護されたルートでセッショントークンを検証するガードです。
func (m *Manager) RequireSession(c *gin.Context) error {
	return m.sessions.Verify(c)
}

// VerifyCSRF は状態変更系ルートで CSRF トークンを検証するガードです。
func (m *Manager) VerifyCSRF(c *gin.Context) error {
	return m.csrf.Verify(c)
}

// LimitLogin は上限に達した key のログイン試行を資格情報の照合より前に断るガードです。
// 本文が JSON でなければユーザー名なしとして扱い、クライアントのアドレスで数えます。
// 無害化の後に置き、照合に使うものと同じユーザー名で数えます。
func (m *Manager) LimitLogin(c *gin.Context) error {
	raw, err := sanitize.Body(c)
	if err != nil {
		return err
	}
	var req loginRequest
	_ = binding.JSON.BindBody(raw, &req)

	key := LoginKey(req.Username, c.ClientIP())
	c.Set(contextLoginKey, key)

	remaining, err := m.limiter.Check(key)
	if err != nil {
		return m.loginRejected(c, key, err)
	}
	setRateLimitHeaders(c, m.limiter.Limit(), remaining)
	return nil
}

func (m *Manager) loginKey(c *gin.Context, username string) string {
	if key := c.GetString(contextLoginKey); key != "" {
		return key
	}
	return LoginKey(username, c.ClientIP())
}
