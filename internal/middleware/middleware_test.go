package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/notehub/collab/internal/config"
	"github.com/notehub/collab/internal/models"
	"github.com/notehub/collab/internal/session"
)

type fakeSessions struct {
	usernames map[string]string
}

func (f *fakeSessions) UsernameFromSessionID(ctx context.Context, sessionID string) (string, error) {
	username, ok := f.usernames[sessionID]
	if !ok {
		return "", assert.AnError
	}
	return username, nil
}

func (f *fakeSessions) CreateSession(ctx context.Context, username string, ttl time.Duration) (string, error) {
	return "new-session", nil
}

type fakeUsers struct {
	byUsername map[string]*models.User
}

func (f *fakeUsers) ByUsername(username string) (*models.User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return nil, assert.AnError
	}
	return u, nil
}

func testConfig() *config.Config {
	return &config.Config{Session: config.SessionConfig{CookieName: "TESTSESSION", Secret: "s3cr3t"}}
}

func TestSessionAuthAcceptsValidCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	sessions := &fakeSessions{usernames: map[string]string{"sess-1": "alice"}}
	users := &fakeUsers{byUsername: map[string]*models.User{"alice": {ID: uuid.New(), Username: "alice"}}}

	router := gin.New()
	router.Use(SessionAuth(sessions, users, cfg))
	router.GET("/api/v1/notes/abc", func(c *gin.Context) {
		user, ok := CurrentUser(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"username": user.Username})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notes/abc", nil)
	req.AddCookie(&http.Cookie{Name: cfg.Session.CookieName, Value: session.SignCookie("sess-1", cfg.Session.Secret)})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
}

func TestSessionAuthRejectsMissingCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	sessions := &fakeSessions{usernames: map[string]string{}}
	users := &fakeUsers{byUsername: map[string]*models.User{}}

	router := gin.New()
	router.Use(SessionAuth(sessions, users, cfg))
	router.GET("/api/v1/notes/abc", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notes/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionAuthRejectsTamperedCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	sessions := &fakeSessions{usernames: map[string]string{"sess-1": "alice"}}
	users := &fakeUsers{byUsername: map[string]*models.User{"alice": {ID: uuid.New(), Username: "alice"}}}

	router := gin.New()
	router.Use(SessionAuth(sessions, users, cfg))
	router.GET("/api/v1/notes/abc", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notes/abc", nil)
	req.AddCookie(&http.Cookie{Name: cfg.Session.CookieName, Value: "s:sess-1.bogus-signature"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionAuthSkipsPublicPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	sessions := &fakeSessions{usernames: map[string]string{}}
	users := &fakeUsers{byUsername: map[string]*models.User{}}

	router := gin.New()
	router.Use(SessionAuth(sessions, users, cfg))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOptionalSessionAuthNeverAborts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	sessions := &fakeSessions{usernames: map[string]string{}}
	users := &fakeUsers{byUsername: map[string]*models.User{}}

	router := gin.New()
	router.Use(OptionalSessionAuth(sessions, users, cfg))
	router.GET("/anything", func(c *gin.Context) {
		_, ok := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"hasUser": ok})
	})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hasUser":false`)
}

func TestAdminOnlyAllowsAdminUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	sessions := &fakeSessions{usernames: map[string]string{"sess-1": "root"}}
	users := &fakeUsers{byUsername: map[string]*models.User{"root": {ID: uuid.New(), Username: "root", IsAdmin: true}}}

	router := gin.New()
	router.Use(SessionAuth(sessions, users, cfg))
	router.Use(AdminOnly())
	router.GET("/api/v1/admin/stats", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	req.AddCookie(&http.Cookie{Name: cfg.Session.CookieName, Value: session.SignCookie("sess-1", cfg.Session.Secret)})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminOnlyRejectsNonAdminUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	sessions := &fakeSessions{usernames: map[string]string{"sess-1": "alice"}}
	users := &fakeUsers{byUsername: map[string]*models.User{"alice": {ID: uuid.New(), Username: "alice"}}}

	router := gin.New()
	router.Use(SessionAuth(sessions, users, cfg))
	router.Use(AdminOnly())
	router.GET("/api/v1/admin/stats", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	req.AddCookie(&http.Cookie{Name: cfg.Session.CookieName, Value: session.SignCookie("sess-1", cfg.Session.Secret)})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSAllowsOriginAndShortCircuitsPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS())
	router.GET("/thing", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/thing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDGeneratesWhenAbsentAndPropagatesWhenPresent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/thing", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": c.GetString("request_id")})
	})

	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), "fixed-id")

	req2 := httptest.NewRequest(http.MethodGet, "/thing", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	assert.NotEmpty(t, rec2.Header().Get("X-Request-ID"))
}

func TestRecoveryConvertsPanicToStructuredError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Recovery(zaptest.NewLogger(t)))
	router.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestLoggerDoesNotInterfereWithResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Logger(zaptest.NewLogger(t)))
	router.GET("/thing", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRateLimitBlocksAfterBurstExhausted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.RateLimitConfig{RequestsPerMinute: 60, Burst: 1}

	router := gin.New()
	router.Use(RateLimit(cfg))
	router.GET("/thing", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/thing", nil)
	req2.RemoteAddr = "10.0.0.1:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestEndpointRateLimitKeysByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/a", EndpointRateLimit(60, 1), func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/b", EndpointRateLimit(60, 1), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/a", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	reqB := httptest.NewRequest(http.MethodGet, "/b", nil)
	recB := httptest.NewRecorder()
	router.ServeHTTP(recB, reqB)
	assert.Equal(t, http.StatusOK, recB.Code, "distinct endpoint should have its own bucket")

	req2 := httptest.NewRequest(http.MethodGet, "/a", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}
