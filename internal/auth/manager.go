package auth

import (
	"context"
	"log/slog"

	"github.com/yourusername/user-service/internal/config"
	"github.com/yourusername/user-service/internal/users"
)

// CredentialFinder はログイン時にユーザーを名前で引くためのストア操作です。
type CredentialFinder interface {
	FindByName(ctx context.Context, name string) (*users.User, error)
}

// LoginObserver はログイン試行の結果を受け取ります。メトリクスの記録に使います。
type LoginObserver interface {
	LoginSucceeded()
	LoginFailed()
	LoginRejected()
}

type nopObserver struct{}

func (nopObserver) LoginSucceeded() {}
func (nopObserver) LoginFailed()    {}
func (nopObserver) LoginRejected()  {}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	users     CredentialFinder
	passwords *PasswordHasher
	sessions  *Sessions
	csrf      *CSRF
	limiter   *RateLimiter
	logger    *slog.Logger
	observer  LoginObserver
}

// NewManager は認証マネージャーを作成します。counters が nil の場合はプロセス内のカウンターを使います。
func NewManager(cfg *config.Config, finder CredentialFinder, counters CounterStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		users:     finder,
		passwords: NewPasswordHasher(),
		sessions: NewSessions(SessionConfig{
			Secret:       []byte(cfg.SessionSecret),
			TTL:          cfg.SessionTTL(),
			Delivery:     Delivery(cfg.SessionDelivery),
			SecureCookie: cfg.CookieSecure,
		}),
		csrf:      NewCSRF(),
		limiter:   NewRateLimiter(counters, cfg.RateLimitWindow(), cfg.MaxLoginAttempts),
		logger:    logger.With("component", "auth"),
		observer:  nopObserver{},
	}
}

// Observe はログイン結果の通知先を設定します。nil は無視します。
func (m *Manager) Observe(o LoginObserver) {
	if o != nil {
		m.observer = o
	}
}

// Passwords はユーザー作成・更新で使うハッシャーを返します。
func (m *Manager) Passwords() *PasswordHasher {
	return m.passwords
}

// Limiter はログイン試行制限を返します。
func (m *Manager) Limiter() *RateLimiter {
	return m.limiter
}
