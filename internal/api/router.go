package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/user-service/internal/auth"
	"github.com/yourusername/user-service/internal/config"
	"github.com/yourusername/user-service/internal/logging"
	"github.com/yourusername/user-service/internal/metrics"
	"github.com/yourusername/user-service/internal/sanitize"
	"github.com/yourusername/user-service/internal/users"
)

// Deps はルーターが必要とする依存関係です。
type Deps struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     users.Store
	Auth      *auth.Manager
	Sanitizer *sanitize.Sanitizer
	// Metrics が nil の場合は /metrics を公開しません。
	Metrics *metrics.Metrics
}

// NewRouter はミドルウェアとルーティングを設定した gin.Engine を返します。
func NewRouter(deps Deps) *gin.Engine {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	san := deps.Sanitizer
	if san == nil {
		san = sanitize.New()
	}

	router := gin.New()
	router.Use(logging.Middleware(logger), gin.Recovery())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	if origins := splitOrigins(cfg.CORSAllowedOrigins); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	corsConfig.AllowHeaders = append([]string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}, auth.CSRFHeaders...)
	corsConfig.ExposeHeaders = []string{"RateLimit-Limit", "RateLimit-Remaining", "Retry-After", auth.SessionHeader}
	router.Use(cors.New(corsConfig))

	// CSRF シークレット用のクッキーセッション
	router.Use(auth.CSRFMiddleware(auth.NewCSRFSessionStore([]byte(cfg.CookieSecret), cfg.CookieSecure)))

	router.GET("/health", handleHealth)

	a := deps.Auth
	h := NewUserHandler(deps.Store, a.Passwords())
	run := func(steps ...Step) gin.HandlerFunc { return pipeline(logger, steps...) }

	router.GET("/csrf-token", run(a.IssueCSRF))
	router.POST("/login", run(san.Request, a.LimitLogin, a.VerifyCSRF, a.Login))
	router.POST("/logout", run(a.VerifyCSRF, a.Logout))

	router.GET("/", run(san.Request, h.List))
	router.POST("/", run(a.VerifyCSRF, san.Request, h.ValidateInput, h.EnsureUnique, h.Create))
	router.GET("/:id", run(san.Request, h.Find))
	router.PUT("/:id", run(a.RequireSession, a.VerifyCSRF, san.Request, h.ValidateInput, h.EnsureUnique, h.Update))
	router.DELETE("/:id", run(a.RequireSession, a.VerifyCSRF, h.Delete))

	return router
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "user-service",
	})
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
