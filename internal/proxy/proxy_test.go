package proxy

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/quota-gateway/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticHealth bool

func (h staticHealth) IsHealthy(string) bool { return bool(h) }

func newRouter(p *Proxy) *gin.Engine {
	router := gin.New()
	router.Any("/api/"+p.Name()+"/*path", p.Handle)
	return router
}

func TestProxy_ForwardsWithoutPrefix(t *testing.T) {
	var seenPath, seenQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
		seenQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	p, err := New(config.ServiceConfig{Name: "weather", Target: upstream.URL + "/v1"}, nil, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	newRouter(p).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/weather/forecast?city=oslo", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/v1/forecast", seenPath)
	assert.Equal(t, "city=oslo", seenQuery)
	assert.Equal(t, "weather", w.Header().Get("X-Backend-Server"))
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestProxy_CircuitOpensOnUpstreamErrors(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "weather", MaxFailures: 2, Timeout: time.Minute})
	p, err := New(config.ServiceConfig{Name: "weather", Target: upstream.URL}, breaker, nil)
	require.NoError(t, err)
	router := newRouter(p)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/weather/x", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	}
	assert.Equal(t, circuitbreaker.StateOpen, p.CircuitBreaker().State())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/weather/x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, int32(2), calls.Load(), "open circuit must not reach the upstream")
}

func TestProxy_UnreachableUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	p, err := New(config.ServiceConfig{Name: "weather", Target: target}, nil, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	newRouter(p).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/weather/x", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestProxy_UnhealthyUpstream(t *testing.T) {
	p, err := New(config.ServiceConfig{Name: "weather", Target: "http://127.0.0.1:1"}, nil, staticHealth(false))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	newRouter(p).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/weather/x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNew_RejectsRelativeTarget(t *testing.T) {
	_, err := New(config.ServiceConfig{Name: "weather", Target: "localhost:3001"}, nil, nil)
	assert.Error(t, err)
}
