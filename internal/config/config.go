// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// セッショントークンの受け渡し方式
const (
	DeliveryCookie = "cookie"
	DeliveryHeader = "header"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// セッション設定
	SessionSecret     string // セッショントークン署名用の秘密鍵
	CookieSecret      string // CSRF 用クッキーセッションの署名鍵
	SessionTTLMinutes int    // セッショントークンの有効期限（分）
	SessionDelivery   string // cookie または header
	CookieSecure      bool   // Secure 属性を付与するか

	// ログイン試行制限
	RateLimitWindowMinutes int // 失敗回数を数える時間枠（分）
	MaxLoginAttempts       int // 時間枠内で許容する失敗回数

	// ストア設定
	DatabaseURL     string // PostgreSQL 接続URL（空ならインメモリ）
	MigrateOnStart  bool   // 起動時にマイグレーションを適用するか
	RedisURL        string // ユーザーキャッシュ用Redis接続URL（空なら無効）
	CacheTTLSeconds int    // キャッシュの有効期限（秒）

	// ログ設定
	LogLevel string
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	sessionSecret := getEnv("SESSION_SECRET", getEnv("JWT_SECRET", ""))

	config := &Config{
		Port:    getEnv("PORT", "3000"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		SessionSecret:     sessionSecret,
		CookieSecret:      getEnv("COOKIE_SECRET", deriveCookieSecret(sessionSecret)),
		SessionTTLMinutes: getEnvAsInt("SESSION_TTL_MINUTES", 5),
		SessionDelivery:   strings.ToLower(getEnv("SESSION_DELIVERY", DeliveryCookie)),
		CookieSecure:      getEnvAsBool("COOKIE_SECURE", true),

		RateLimitWindowMinutes: getEnvAsInt("WINDOW_MINUTES", 15),
		MaxLoginAttempts:       getEnvAsInt("MAX_LOGIN_ATTEMPTS", 3),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		MigrateOnStart:  getEnvAsBool("DB_MIGRATE", true),
		RedisURL:        getEnv("REDIS_URL", ""),
		CacheTTLSeconds: getEnvAsInt("CACHE_TTL_SECONDS", 60),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// deriveCookieSecret は COOKIE_SECRET 未設定時に、セッショントークンとは別の CSRF クッキー用の鍵を導出します。
func deriveCookieSecret(sessionSecret string) string {
	if sessionSecret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(sessionSecret))
	mac.Write([]byte("user-service csrf cookie"))
	return hex.EncodeToString(mac.Sum(nil))
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.CookieSecret == "" {
		return fmt.Errorf("COOKIE_SECRET is required")
	}
	if c.CookieSecret == c.SessionSecret {
		return fmt.Errorf("COOKIE_SECRET must differ from SESSION_SECRET")
	}
	if c.SessionDelivery != DeliveryCookie && c.SessionDelivery != DeliveryHeader {
		return fmt.Errorf("SESSION_DELIVERY must be %q or %q, got %q", DeliveryCookie, DeliveryHeader, c.SessionDelivery)
	}
	if c.SessionTTLMinutes <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive")
	}
	if c.RateLimitWindowMinutes <= 0 {
		return fmt.Errorf("WINDOW_MINUTES must be positive")
	}
	if c.MaxLoginAttempts <= 0 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be positive")
	}
	return nil
}

// SessionTTL はセッショントークンの有効期間を返します。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// RateLimitWindow はログイン試行制限の時間枠を返します。
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMinutes) * time.Minute
}

// CacheTTL はユーザーキャッシュの有効期間を返します。
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ReleaseMode は本番モードで動作しているかを返します。
func (c *Config) ReleaseMode() bool {
	return c.GinMode == "release"
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
