package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/admission"
	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/ratelimit"
	"github.com/aman-churiwal/quota-gateway/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGate struct {
	result admission.Result
	last   admission.Request
}

func (s *stubGate) Admit(_ context.Context, req admission.Request) admission.Result {
	s.last = req
	return s.result
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(handlers...)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAdmission_RateLimitedRejection(t *testing.T) {
	gate := &stubGate{result: admission.Result{
		Reason:            admission.ReasonRateLimited,
		RetryAfterSeconds: 42,
		Tier:              models.TierBase,
		Rate:              ratelimit.Decision{Limit: 500, Remaining: 0, ResetIn: 42 * time.Second},
	}}

	w := httptest.NewRecorder()
	newRouter(Admission(gate, false)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "42", w.Header().Get("Retry-After"))
	assert.Equal(t, "500", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "base", w.Header().Get("X-RateLimit-Tier"))

	body := decode(t, w)
	assert.Equal(t, float64(429), body["statusCode"])
	assert.Equal(t, "Too Many Requests", body["error"])
	assert.Equal(t, float64(42), body["retryAfterSeconds"])
	assert.NotEmpty(t, body["message"])
	assert.False(t, gate.last.Metered)
}

func TestAdmission_QuotaExceededRejection(t *testing.T) {
	gate := &stubGate{result: admission.Result{
		Reason:       admission.ReasonQuotaExceeded,
		Tier:         models.TierMid,
		Subscription: &models.Subscription{},
	}}

	w := httptest.NewRecorder()
	newRouter(Admission(gate, true)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))

	body := decode(t, w)
	assert.Equal(t, "Quota Exceeded", body["error"])
	assert.NotContains(t, body, "retryAfterSeconds")
	assert.True(t, gate.last.Metered)
}

func TestAdmission_AllowedPassesThrough(t *testing.T) {
	userID := uuid.New()
	gate := &stubGate{result: admission.Result{
		Allowed: true,
		Reason:  admission.ReasonNone,
		Tier:    models.TierTop,
		Rate:    ratelimit.Decision{Allowed: true, Limit: 10000, Remaining: 9999},
	}}

	setUser := func(c *gin.Context) {
		c.Set(ContextUserID, userID)
		c.Next()
	}

	w := httptest.NewRecorder()
	newRouter(setUser, Admission(gate, true)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "9999", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, userID, gate.last.UserID)
}

func signToken(t *testing.T, secret string, userID uuid.UUID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"email":   "user@example.com",
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestRequireAuthAndRole(t *testing.T) {
	auth := service.NewAuthService(nil, "secret", 1, nil)
	router := newRouter(RequireAuth(auth), RequireRole(models.RoleAdmin))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bad format", "Token abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", uuid.New(), models.RoleAdmin), http.StatusUnauthorized},
		{"not an admin", "Bearer " + signToken(t, "secret", uuid.New(), models.RoleUser), http.StatusForbidden},
		{"admin", "Bearer " + signToken(t, "secret", uuid.New(), models.RoleAdmin), http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	auth := service.NewAuthService(nil, "secret", 1, nil)
	userID := uuid.New()

	var seen uuid.UUID
	router := gin.New()
	router.Use(OptionalAuth(auth))
	router.GET("/test", func(c *gin.Context) {
		seen, _ = UserID(c)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, uuid.Nil, seen)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", userID, models.RoleUser))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, userID, seen)

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Recovery())
	router.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.NotContains(t, w.Body.String(), "boom")
}

type memoryLogStore struct {
	mu   sync.Mutex
	logs []*models.RequestLog
}

func (m *memoryLogStore) CreateBatch(_ context.Context, logs []*models.RequestLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, logs...)
	return nil
}

func TestRequestLogger_RecordsAdmission(t *testing.T) {
	store := &memoryLogStore{}
	logger := NewRequestLogger(store, 8)
	logger.Start()

	gate := &stubGate{result: admission.Result{Reason: admission.ReasonQuotaExceeded, Tier: models.TierMid}}
	router := newRouter(logger.Middleware(), Admission(gate, true))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	logger.Stop()

	require.Len(t, store.logs, 1)
	assert.Equal(t, http.StatusTooManyRequests, store.logs[0].StatusCode)
	assert.Equal(t, "quota_exceeded", store.logs[0].AdmissionReason)
	assert.Equal(t, "mid", store.logs[0].Tier)
}

type stubFinder struct {
	sub *models.Subscription
}

func (s stubFinder) FindActiveByUser(context.Context, uuid.UUID, time.Time) (*models.Subscription, error) {
	return s.sub, nil
}

func TestRequireFeature(t *testing.T) {
	userID := uuid.New()
	setUser := func(c *gin.Context) {
		c.Set(ContextUserID, userID)
		c.Next()
	}
	basic := &models.Subscription{Plan: &models.Plan{Features: []string{"basic"}}}

	cases := []struct {
		name     string
		handlers []gin.HandlerFunc
		status   int
	}{
		{"plan includes feature", []gin.HandlerFunc{setUser, RequireFeature(stubFinder{basic}, "basic")}, http.StatusOK},
		{"plan lacks feature", []gin.HandlerFunc{setUser, RequireFeature(stubFinder{basic}, "premium")}, http.StatusForbidden},
		{"no subscription", []gin.HandlerFunc{setUser, RequireFeature(stubFinder{}, "premium")}, http.StatusOK},
		{"anonymous", []gin.HandlerFunc{RequireFeature(stubFinder{basic}, "premium")}, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newRouter(tc.handlers...).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
