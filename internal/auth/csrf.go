package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/user-service/internal/apperr"
)

const (
	// CSRFSessionName は CSRF シークレットを保持するクッキーセッション名です。
	CSRFSessionName = "_csrf"
	// CSRFField はフォームまたはクエリで CSRF トークンを渡すときのフィールド名です。
	CSRFField = "_csrf"

	sessionKeySecret = "secret"
	secretBytes      = 18
	saltBytes        = 8
)

// CSRFHeaders はトークンを受け付けるリクエストヘッダーです（優先順）。
var CSRFHeaders = []string{"CSRF-Token", "X-CSRF-Token", "XSRF-Token", "X-XSRF-Token"}

var (
	errCSRFNoSecret = errors.New("csrf secret missing")
	errCSRFNoToken  = errors.New("csrf token missing")
	errCSRFMismatch = errors.New("csrf token mismatch")
)

// NewCSRFSessionStore は CSRF シークレット用の署名付きクッキーストアを作成します。
func NewCSRFSessionStore(cookieSecret []byte, secure bool) sessions.Store {
	store := cookie.NewStore(cookieSecret)
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	return store
}

// CSRFMiddleware は CSRF セッションを読み込む gin ミドルウェアです。Issue / Verify より前に登録します。
func CSRFMiddleware(store sessions.Store) gin.HandlerFunc {
	return sessions.Sessions(CSRFSessionName, store)
}

// CSRF はダブルサブミット方式の CSRF トークンを発行・検証します。
// シークレットはクッキーセッションに保存され、クライアントには salt と HMAC の組を渡します。
type CSRF struct{}

// NewCSRF は CSRF を作成します。
func NewCSRF() *CSRF {
	return &CSRF{}
}

// Issue はセッションのシークレットに紐づく新しいトークンを返します。
// シークレットがまだなければ生成してセッションに保存します。
func (x *CSRF) Issue(c *gin.Context) (string, error) {
	session := sessions.Default(c)
	secret, _ := session.Get(sessionKeySecret).(string)
	if secret == "" {
		var err error
		secret, err = randomString(secretBytes)
		if err != nil {
			return "", fmt.Errorf("generate csrf secret: %w", err)
		}
		session.Set(sessionKeySecret, secret)
		if err := session.Save(); err != nil {
			return "", fmt.Errorf("save csrf session: %w", err)
		}
	}

	salt, err := randomString(saltBytes)
	if err != nil {
		return "", fmt.Errorf("generate csrf salt: %w", err)
	}
	return salt + "." + signSalt(secret, salt), nil
}

// Verify は状態変更リクエスト用のガードです。失敗時は CSRFInvalid を返します。
func (x *CSRF) Verify(c *gin.Context) error {
	session := sessions.Default(c)
	secret, _ := session.Get(sessionKeySecret).(string)
	if secret == "" {
		return apperr.CSRFInvalid(errCSRFNoSecret)
	}

	token := submittedToken(c)
	if token == "" {
		return apperr.CSRFInvalid(errCSRFNoToken)
	}
	if !validToken(secret, token) {
		return apperr.CSRFInvalid(errCSRFMismatch)
	}
	return nil
}

func submittedToken(c *gin.Context) string {
	for _, name := range CSRFHeaders {
		if v := c.GetHeader(name); v != "" {
			return v
		}
	}
	if strings.HasPrefix(c.ContentType(), gin.MIMEPOSTForm) {
		if v := c.PostForm(CSRFField); v != "" {
			return v
		}
	}
	return c.Query(CSRFField)
}

func validToken(secret, token string) bool {
	salt, mac, ok := strings.Cut(token, ".")
	if !ok || salt == "" || mac == "" {
		return false
	}
	return hmac.Equal([]byte(mac), []byte(signSalt(secret, salt)))
}

func signSalt(secret, salt string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(salt))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
