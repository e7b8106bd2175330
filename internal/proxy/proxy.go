package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/aman-churiwal/quota-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/quota-gateway/internal/config"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

var errUpstream = errors.New("upstream error")

// HealthReporter reports whether a named upstream passed its last checks
type HealthReporter interface {
	IsHealthy(name string) bool
}

// Proxy forwards /api/<name>/* to a single upstream product API
type Proxy struct {
	name           string
	feature        string
	target         *url.URL
	reverse        *httputil.ReverseProxy
	circuitBreaker *circuitbreaker.CircuitBreaker
	health         HealthReporter
}

func New(svc config.ServiceConfig, breaker *circuitbreaker.CircuitBreaker, health HealthReporter) (*Proxy, error) {
	target, err := url.Parse(svc.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid target for service %s: %w", svc.Name, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("target for service %s must be an absolute URL, got %q", svc.Name, svc.Target)
	}

	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.Config{Name: svc.Name})
	}

	p := &Proxy{
		name:           svc.Name,
		feature:        svc.Feature,
		target:         target,
		circuitBreaker: breaker,
		health:         health,
	}

	p.reverse = &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.WithError(err).WithFields(log.Fields{
				"service": svc.Name,
				"path":    r.URL.Path,
			}).Warn("upstream request failed")
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	log.WithFields(log.Fields{
		"service": svc.Name,
		"target":  target.String(),
		"feature": svc.Feature,
	}).Info("proxy initialized")

	return p, nil
}

func (p *Proxy) Name() string {
	return p.name
}

// Plan feature required to call this service, empty when any plan may
func (p *Proxy) Feature() string {
	return p.feature
}

func (p *Proxy) Target() string {
	return p.target.String()
}

// Forwards the request to the upstream. Expects a *path route parameter.
func (p *Proxy) Handle(c *gin.Context) {
	if p.health != nil && !p.health.IsHealthy(p.name) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	err := p.circuitBreaker.Call(func() error {
		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			statusCode:     http.StatusOK,
		}

		// Strip the /api/<name> prefix
		req := c.Request.Clone(c.Request.Context())
		req.URL.Path = "/" + strings.TrimPrefix(c.Param("path"), "/")
		req.URL.RawPath = ""

		c.Header("X-Backend-Server", p.name)
		c.Writer = recorder

		p.reverse.ServeHTTP(c.Writer, req)

		if recorder.statusCode >= 500 {
			return errUpstream
		}
		return nil
	})

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		log.WithField("service", p.name).Warn("circuit breaker open, rejecting request")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
	}
}

func (p *Proxy) CircuitBreaker() *circuitbreaker.CircuitBreaker {
	return p.circuitBreaker
}

// Captures the response status code
type responseRecorder struct {
	gin.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
