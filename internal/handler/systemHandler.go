package handler

import (
	"context"
	"net/http"
	"sort"

	"github.com/aman-churiwal/quota-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/quota-gateway/internal/healthcheck"
	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/ratelimit"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type RateLimitAdmin interface {
	Peek(ctx context.Context, key string, tier models.Tier) (ratelimit.Status, error)
	Reset(ctx context.Context, key string) error
}

type QuotaResetter interface {
	ResetAllActiveQuotas(ctx context.Context) (int, error)
}

// Handles system and operational endpoints
type SystemHandler struct {
	breakers map[string]*circuitbreaker.CircuitBreaker
	limiter  RateLimitAdmin
	quotas   QuotaResetter
	health   *healthcheck.Checker
}

func NewSystemHandler(breakers []*circuitbreaker.CircuitBreaker, limiter RateLimitAdmin, quotas QuotaResetter, health *healthcheck.Checker) *SystemHandler {
	byName := make(map[string]*circuitbreaker.CircuitBreaker, len(breakers))
	for _, breaker := range breakers {
		byName[breaker.Name()] = breaker
	}

	return &SystemHandler{
		breakers: byName,
		limiter:  limiter,
		quotas:   quotas,
		health:   health,
	}
}

// Handles GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	overall := h.health.OverallHealth()

	status := http.StatusOK
	if overall == healthcheck.Unhealthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":       overall,
		"dependencies": h.health.AllStatus(),
	})
}

// Handles GET /admin/system/breakers
func (h *SystemHandler) CircuitBreakerStatus(c *gin.Context) {
	names := make([]string, 0, len(h.breakers))
	for name := range h.breakers {
		names = append(names, name)
	}
	sort.Strings(names)

	statuses := make([]circuitbreaker.Metrics, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, h.breakers[name].Metrics())
	}

	c.JSON(http.StatusOK, statuses)
}

// Handles POST /admin/system/breakers/:name/reset
func (h *SystemHandler) ResetCircuitBreaker(c *gin.Context) {
	name := c.Param("name")

	breaker, exists := h.breakers[name]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Circuit breaker not found"})
		return
	}

	breaker.Reset()
	log.WithField("breaker", name).Info("circuit breaker reset by admin")

	c.JSON(http.StatusOK, gin.H{
		"message": "Circuit breaker reset successfully",
		"name":    name,
	})
}

// Handles GET /admin/ratelimit/:key?tier=
func (h *SystemHandler) RateLimitStatus(c *gin.Context) {
	key := c.Param("key")
	tier := models.ParseTier(c.DefaultQuery("tier", string(models.TierBase)))

	status, err := h.limiter.Peek(c.Request.Context(), key, tier)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Rate limit store unavailable"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// Handles DELETE /admin/ratelimit/:key
func (h *SystemHandler) ResetRateLimit(c *gin.Context) {
	key := c.Param("key")

	if err := h.limiter.Reset(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Rate limit store unavailable"})
		return
	}

	log.WithField("key", key).Info("rate limit reset by admin")
	c.JSON(http.StatusOK, gin.H{
		"message": "Rate limit reset successfully",
		"key":     key,
	})
}

// Handles POST /admin/quotas/reset
func (h *SystemHandler) ResetQuotas(c *gin.Context) {
	count, err := h.quotas.ResetAllActiveQuotas(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
			"reset": count,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reset": count})
}
