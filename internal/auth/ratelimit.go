package auth

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/user-service/internal/apperr"
)

// CounterStore はログイン失敗回数を key ごとに保持します。
// Reserve は同一 key について上限の確認と加算を不可分に行う必要があります。
type CounterStore interface {
	// Count は現在のウィンドウ内の回数とウィンドウの終了時刻を返します。
	Count(key string, now time.Time) (int, time.Time)
	// Reserve は回数が max 未満のときだけ1件加算し、ok を true で返します。
	// ウィンドウが終了していれば0から数え直します。
	Reserve(key string, now time.Time, window time.Duration, max int) (count int, resetAt time.Time, ok bool)
	// Release は Reserve で加算した1件を取り消します。resetAt が現在のウィンドウと異なれば何もしません。
	Release(key string, resetAt time.Time)
	// Prune は終了したウィンドウを削除し、削除件数を返します。
	Prune(now time.Time) int
}

type counterEntry struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
	// dead は Prune で削除済みであることを表します。削除済みのエントリーは更新しません。
	dead bool
}

// MemoryCounters はプロセス内の CounterStore です。ロックは key ごとに持ちます。
type MemoryCounters struct {
	entries sync.Map
}

// NewMemoryCounters は空の MemoryCounters を作成します。
func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{}
}

func (m *MemoryCounters) Count(key string, now time.Time) (int, time.Time) {
	v, ok := m.entries.Load(key)
	if !ok {
		return 0, time.Time{}
	}
	e := v.(*counterEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead || !now.Before(e.resetAt) {
		return 0, time.Time{}
	}
	return e.count, e.resetAt
}

func (m *MemoryCounters) Reserve(key string, now time.Time, window time.Duration, max int) (int, time.Time, bool) {
	for {
		v, _ := m.entries.LoadOrStore(key, &counterEntry{})
		e := v.(*counterEntry)
		e.mu.Lock()
		if e.dead {
			// Prune と競合したので新しいエントリーでやり直す
			e.mu.Unlock()
			continue
		}
		if !now.Before(e.resetAt) {
			e.count = 0
			e.resetAt = now.Add(window)
		}
		if e.count >= max {
			count, resetAt := e.count, e.resetAt
			e.mu.Unlock()
			return count, resetAt, false
		}
		e.count++
		count, resetAt := e.count, e.resetAt
		e.mu.Unlock()
		return count, resetAt, true
	}
}

func (m *MemoryCounters) Release(key string, resetAt time.Time) {
	v, ok := m.entries.Load(key)
	if !ok {
		return
	}
	e := v.(*counterEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead || !e.resetAt.Equal(resetAt) || e.count == 0 {
		return
	}
	e.count--
}

func (m *MemoryCounters) Prune(now time.Time) int {
	removed := 0
	m.entries.Range(func(key, v any) bool {
		e := v.(*counterEntry)
		e.mu.Lock()
		if !now.Before(e.resetAt) {
			e.dead = true
			m.entries.CompareAndDelete(key, e)
			removed++
		}
		e.mu.Unlock()
		return true
	})
	return removed
}

// RateLimiter はログイン失敗回数を制限します。成功したログインは数えません。
type RateLimiter struct {
	store  CounterStore
	window time.Duration
	max    int
	now    func() time.Time
}

// NewRateLimiter は window の間に maxAttempts 回まで失敗を許す RateLimiter を作成します。
func NewRateLimiter(store CounterStore, window time.Duration, maxAttempts int) *RateLimiter {
	if store == nil {
		store = NewMemoryCounters()
	}
	return &RateLimiter{store: store, window: window, max: maxAttempts, now: time.Now}
}

// LoginKey は試行回数を数える key を返します。ユーザー名がなければクライアントのアドレスを使います。
func LoginKey(username, clientIP string) string {
	if username != "" {
		return "user:" + username
	}
	return "ip:" + clientIP
}

// Check は key が上限に達していれば RateLimited を返します。戻り値は残りの試行回数です。
// 資格情報を読む前に早く断るためのもので、上限の保証は Reserve が行います。
func (l *RateLimiter) Check(key string) (int, error) {
	now := l.now()
	count, resetAt := l.store.Count(key, now)
	if count >= l.max {
		return 0, apperr.RateLimited(l.window, resetAt.Sub(now))
	}
	return l.max - count, nil
}

// Reservation は資格情報の照合1回分の枠です。照合が失敗しなかった場合は Release で返却します。
type Reservation struct {
	key       string
	resetAt   time.Time
	remaining int
}

// Remaining は枠を確保した後の残りの試行回数です。
func (r *Reservation) Remaining() int {
	return r.remaining
}

// Reserve は key の枠を1つ確保します。上限に達していれば RateLimited を返します。
func (l *RateLimiter) Reserve(key string) (*Reservation, error) {
	now := l.now()
	count, resetAt, ok := l.store.Reserve(key, now, l.window, l.max)
	if !ok {
		return nil, apperr.RateLimited(l.window, resetAt.Sub(now))
	}
	return &Reservation{key: key, resetAt: resetAt, remaining: l.max - count}, nil
}

// Release は確保した枠を返却します。nil は無視します。
func (l *RateLimiter) Release(r *Reservation) {
	if r == nil {
		return
	}
	l.store.Release(r.key, r.resetAt)
}

// Prune は期限切れのカウンターを削除します。
func (l *RateLimiter) Prune() int {
	return l.store.Prune(l.now())
}

// Limit は上限回数を返します。
func (l *RateLimiter) Limit() int {
	return l.max
}

// Window は計測ウィンドウの長さを返します。
func (l *RateLimiter) Window() time.Duration {
	return l.window
}

func setRateLimitHeaders(c *gin.Context, limit, remaining int) {
	c.Header("RateLimit-Limit", strconv.Itoa(limit))
	c.Header("RateLimit-Remaining", strconv.Itoa(remaining))
}
