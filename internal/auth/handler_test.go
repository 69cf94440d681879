package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/user-service/internal/apperr"
	"github.com/yourusername/user-service/internal/config"
	"github.com/yourusername/user-service/internal/sanitize"
	"github.com/yourusername/user-service/internal/users"
)

type stubUsers map[string]users.User

func (s stubUsers) FindByName(ctx context.Context, name string) (*users.User, error) {
	u, ok := s[name]
	if !ok {
		return nil, users.ErrNotFound
	}
	return &u, nil
}

func testConfig(delivery string) *config.Config {
	return &config.Config{
		SessionSecret:          "test-secret",
		CookieSecret:           "test-cookie-secret",
		SessionTTLMinutes:      5,
		SessionDelivery:        delivery,
		RateLimitWindowMinutes: 15,
		MaxLoginAttempts:       3,
	}
}

func newTestManager(t *testing.T, delivery string) *Manager {
	t.Helper()
	hasher := NewPasswordHasher()
	hash, err := hasher.Hash("testpassword")
	require.NoError(t, err)

	finder := stubUsers{
		"Test User": {ID: "u-1", Name: "Test User", Email: "test@example.com", PasswordHash: hash},
	}
	return NewManager(testConfig(delivery), finder, nil, nil)
}

func newTestEngine(m *Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CSRFMiddleware(NewCSRFSessionStore([]byte("test-cookie-secret"), false)))

	run := func(steps ...func(*gin.Context) error) gin.HandlerFunc {
		return func(c *gin.Context) {
			for _, step := range steps {
				if err := step(c); err != nil {
					appErr := apperr.From(err)
					c.AbortWithStatusJSON(appErr.Kind.Status(), gin.H{"message": appErr.Message})
					return
				}
			}
		}
	}

	r.GET("/csrf-token", run(m.IssueCSRF))
	r.POST("/login", run(m.LimitLogin, m.VerifyCSRF, m.Login))
	r.POST("/logout", run(m.VerifyCSRF, m.Logout))
	r.DELETE("/me", run(m.RequireSession, m.VerifyCSRF, func(c *gin.Context) error {
		claims, _ := ClaimsFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"id": claims.UserID})
		return nil
	}))
	return r
}

type csrfPair struct {
	cookie *http.Cookie
	token  string
}

func fetchCSRF(t *testing.T, r *gin.Engine) csrfPair {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/csrf-token", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf-token status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.CSRFToken)

	for _, ck := range rec.Result().Cookies() {
		if ck.Name == CSRFSessionName {
			return csrfPair{cookie: ck, token: body.CSRFToken}
		}
	}
	t.Fatalf("csrf session cookie not set")
	return csrfPair{}
}

func doJSON(r *gin.Engine, method, path, body string, pair csrfPair, extra ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if pair.cookie != nil {
		req.AddCookie(pair.cookie)
	}
	if pair.token != "" {
		req.Header.Set("X-CSRF-Token", pair.token)
	}
	for _, ck := range extra {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func messageOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["message"].(string)
	return msg
}

func TestCSRFGuard(t *testing.T) {
	r := newTestEngine(newTestManager(t, "cookie"))
	pair := fetchCSRF(t, r)

	rec := doJSON(r, http.MethodPost, "/logout", "", pair)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sesión cerrada", messageOf(t, rec))

	rec = doJSON(r, http.MethodPost, "/logout", "", csrfPair{cookie: pair.cookie})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.MsgCSRFInvalid, messageOf(t, rec))

	rec = doJSON(r, http.MethodPost, "/logout", "", csrfPair{token: pair.token})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(r, http.MethodPost, "/logout", "", csrfPair{cookie: pair.cookie, token: pair.token + "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	other := fetchCSRF(t, r)
	rec = doJSON(r, http.MethodPost, "/logout", "", csrfPair{cookie: pair.cookie, token: other.token})
	assert.Equal(t, http.StatusForbidden, rec.Code, "token from another session must not verify")
}

func TestCSRFAcceptsQueryField(t *testing.T) {
	r := newTestEngine(newTestManager(t, "cookie"))
	pair := fetchCSRF(t, r)

	rec := doJSON(r, http.MethodPost, "/logout?_csrf="+pair.token, "", csrfPair{cookie: pair.cookie})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFTokensAreFreshPerIssue(t *testing.T) {
	m := newTestManager(t, "cookie")
	r := newTestEngine(m)
	pair := fetchCSRF(t, r)

	req := httptest.NewRequest(http.MethodGet, "/csrf-token", nil)
	req.AddCookie(pair.cookie)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEqual(t, pair.token, body.CSRFToken)

	rec = doJSON(r, http.MethodPost, "/logout", "", csrfPair{cookie: pair.cookie, token: body.CSRFToken})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookieName {
			return ck
		}
	}
	return nil
}

func TestLoginIssuesSessionCookie(t *testing.T) {
	r := newTestEngine(newTestManager(t, "cookie"))
	pair := fetchCSRF(t, r)

	rec := doJSON(r, http.MethodPost, "/login", `{"username":"Test User","password":"testpassword"}`, pair)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	assert.Equal(t, "Login exitoso", messageOf(t, rec))
	assert.Equal(t, "3", rec.Header().Get("RateLimit-Limit"))

	token := sessionCookie(rec)
	require.NotNil(t, token)
	assert.True(t, token.HttpOnly)

	rec = doJSON(r, http.MethodDelete, "/me", "", pair, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"u-1"`)

	rec = doJSON(r, http.MethodDelete, "/me", "", pair)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.MsgAuthRequired, messageOf(t, rec))
}

func TestLoginHeaderDelivery(t *testing.T) {
	r := newTestEngine(newTestManager(t, "header"))
	pair := fetchCSRF(t, r)

	rec := doJSON(r, http.MethodPost, "/login", `{"username":"Test User","password":"testpassword"}`, pair)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sessionCookie(rec))

	var body struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	assert.NotEmpty(t, body.ExpiresAt)
	assert.Equal(t, body.Token, rec.Header().Get(SessionHeader))

	req := httptest.NewRequest(http.MethodDelete, "/me", nil)
	req.AddCookie(pair.cookie)
	req.Header.Set("X-CSRF-Token", pair.token)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginMissingFields(t *testing.T) {
	r := newTestEngine(newTestManager(t, "cookie"))
	pair := fetchCSRF(t, r)

	for _, body := range []string{``, `{}`, `{"username":"Test User"}`, `{"password":"x"}`, `{"username":1,"password":"x"}`} {
		rec := doJSON(r, http.MethodPost, "/login", body, pair)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Equal(t, apperr.MsgLoginRequired, messageOf(t, rec))
	}

	// 入力不足は失敗回数に数えない
	rec := doJSON(r, http.MethodPost, "/login", `{"username":"Test User","password":"testpassword"}`, pair)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRateLimit(t *testing.T) {
	r := newTestEngine(newTestManager(t, "cookie"))
	pair := fetchCSRF(t, r)

	for i := 0; i < 3; i++ {
		rec := doJSON(r, http.MethodPost, "/login", `{"username":"Test User","password":"wrong"}`, pair)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, rec.Code)
		}
		assert.Equal(t, apperr.MsgBadLogin, messageOf(t, rec))
	}

	rec := doJSON(r, http.MethodPost, "/login", `{"username":"Test User","password":"testpassword"}`, pair)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("RateLimit-Remaining"))
	assert.Contains(t, messageOf(t, rec), "15 minutos")

	rec = doJSON(r, http.MethodPost, "/login", `{"username":"nobody","password":"wrong"}`, pair)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "other key must be unaffected")
	assert.Equal(t, apperr.MsgBadLogin, messageOf(t, rec))
}

type recordingObserver struct {
	succeeded, failed, rejected int
}

func (r *recordingObserver) LoginSucceeded() { r.succeeded++ }
func (r *recordingObserver) LoginFailed()    { r.failed++ }
func (r *recordingObserver) LoginRejected()  { r.rejected++ }

func TestLoginNotifiesObserver(t *testing.T) {
	m := newTestManager(t, "cookie")
	obs := &recordingObserver{}
	m.Observe(obs)
	r := newTestEngine(m)
	pair := fetchCSRF(t, r)

	doJSON(r, http.MethodPost, "/login", `{"username":"Test User","password":"testpassword"}`, pair)
	for i := 0; i < 4; i++ {
		doJSON(r, http.MethodPost, "/login", `{"username":"Test User","password":"wrong"}`, pair)
	}

	assert.Equal(t, 1, obs.succeeded)
	assert.Equal(t, 3, obs.failed)
	assert.Equal(t, 1, obs.rejected)
}

func TestLoginConcurrentFailuresCappedAtLimit(t *testing.T) {
	r := newTestEngine(newTestManager(t, "cookie"))
	pair := fetchCSRF(t, r)

	const attempts = 20
	codes := make([]int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := doJSON(r, http.MethodPost, "/login", `{"username":"Test User","password":"wrong"}`, pair)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	counts := map[int]int{}
	for _, code := range codes {
		counts[code]++
	}
	assert.Equal(t, 3, counts[http.StatusUnauthorized], "statuses: %v", counts)
	assert.Equal(t, attempts-3, counts[http.StatusTooManyRequests], "statuses: %v", counts)
}

func TestLoginSuccessDoesNotConsumeAttempts(t *testing.T) {
	r := newTestEngine(newTestManager(t, "cookie"))
	pair := fetchCSRF(t, r)

	for i := 0; i < 2; i++ {
		rec := doJSON(r, http.MethodPost, "/login", `{"username":"Test User","password":"wrong"}`, pair)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := doJSON(r, http.MethodPost, "/login", `{"username":"Test User","password":"testpassword"}`, pair)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("RateLimit-Remaining"))

	rec = doJSON(r, http.MethodPost, "/login", `{"username":"Test User","password":"wrong"}`, pair)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = doJSON(r, http.MethodPost, "/login", `{"username":"Test User","password":"testpassword"}`, pair)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLoginOversizedBodyRejected(t *testing.T) {
	r := newTestEngine(newTestManager(t, "cookie"))
	pair := fetchCSRF(t, r)

	body := `{"username":"` + strings.Repeat("a", sanitize.MaxBodyBytes) + `","password":"x"}`
	rec := doJSON(r, http.MethodPost, "/login", body, pair)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
