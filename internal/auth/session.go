package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yourusername/user-service/internal/apperr"
)

const (
	// SessionCookieName はセッショントークンを運ぶクッキー名です。
	SessionCookieName = "token"
	// SessionHeader は header 方式でトークンを返すレスポンスヘッダーです。
	SessionHeader = "X-Session-Token"

	tokenIssuer = "user-service"
)

// Delivery はセッショントークンの受け渡し方式です。
type Delivery string

const (
	DeliveryCookie Delivery = "cookie"
	DeliveryHeader Delivery = "header"
)

// Claims はセッショントークンに含める本人情報です。
type Claims struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Subject はトークン発行対象のユーザーです。
type Subject struct {
	ID    string
	Name  string
	Email string
}

// SessionConfig は Sessions の設定です。
type SessionConfig struct {
	Secret       []byte
	TTL          time.Duration
	Delivery     Delivery
	SecureCookie bool
	// Now はテスト用の時計です。nil の場合は time.Now を使います。
	Now func() time.Time
}

// Sessions は署名付きセッショントークンの発行と検証を行います。
// トークンは失効リストを持たず、有効期限切れでのみ無効になります。
type Sessions struct {
	secret   []byte
	ttl      time.Duration
	delivery Delivery
	secure   bool
	now      func() time.Time
	parser   *jwt.Parser
}

// NewSessions は Sessions を作成します。
func NewSessions(cfg SessionConfig) *Sessions {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	delivery := cfg.Delivery
	if delivery == "" {
		delivery = DeliveryCookie
	}
	return &Sessions{
		secret:   cfg.Secret,
		ttl:      cfg.TTL,
		delivery: delivery,
		secure:   cfg.SecureCookie,
		now:      now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
		),
	}
}

// Delivery は設定されている受け渡し方式を返します。
func (s *Sessions) Delivery() Delivery {
	return s.delivery
}

// Issue は subject のトークンを署名して返します。
func (s *Sessions) Issue(subject Subject) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		UserID: subject.ID,
		Name:   subject.Name,
		Email:  subject.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse は署名と有効期限を検証して Claims を返します。失敗時は AuthInvalid です。
func (s *Sessions) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, apperr.AuthInvalid(err)
	}
	if !parsed.Valid {
		return nil, apperr.AuthInvalid(jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}

// Deliver はトークンをクライアントへ渡します。
func (s *Sessions) Deliver(c *gin.Context, token string) {
	if s.delivery == DeliveryHeader {
		c.Header(SessionHeader, token)
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookieName, token, int(s.ttl.Seconds()), "/", "", s.secure, true)
}

// Clear はクライアントにトークンの破棄を指示します。サーバー側の状態はありません。
func (s *Sessions) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", s.secure, true)
}

// Verify は保護されたルート用のガードです。
// トークンがなければ AuthRequired、検証に失敗すれば AuthInvalid を返します。
func (s *Sessions) Verify(c *gin.Context) error {
	token := s.extract(c)
	if token == "" {
		return apperr.AuthRequired()
	}
	claims, err := s.Parse(token)
	if err != nil {
		return err
	}
	c.Set(ContextClaimsKey, claims)
	c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
	return nil
}

func (s *Sessions) extract(c *gin.Context) string {
	if token, err := c.Cookie(SessionCookieName); err == nil && token != "" {
		return token
	}
	return bearerToken(c.GetHeader("Authorization"))
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// ContextClaimsKey は gin.Context に検証済み Claims を格納するキーです。
const ContextClaimsKey = "auth.claims"

type claimsKey struct{}

// WithClaims は Claims を context に格納します。
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext は検証済みの Claims を取り出します。
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// IsExpired は err がトークンの期限切れによるものかを返します。
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
