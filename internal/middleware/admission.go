package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/admission"
	"github.com/gin-gonic/gin"
)

type Admitter interface {
	Admit(ctx context.Context, req admission.Request) admission.Result
}

// Gates the route with the rate limiter and, when metered, the daily quota.
// Denials end the request with a 429 rejection.
func Admission(gate Admitter, metered bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := UserID(c)

		result := gate.Admit(c.Request.Context(), admission.Request{
			UserID:     userID,
			RemoteAddr: c.ClientIP(),
			Metered:    metered,
		})
		c.Set(ContextAdmission, result)

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			Reject(c, result)
			return
		}

		c.Next()
	}
}

// Writes the structured 429 body for a denied admission
func Reject(c *gin.Context, result admission.Result) {
	body := gin.H{
		"statusCode": http.StatusTooManyRequests,
	}

	switch result.Reason {
	case admission.ReasonRateLimited:
		c.Header("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
		body["error"] = "Too Many Requests"
		body["message"] = fmt.Sprintf("Rate limit exceeded, retry in %d seconds", result.RetryAfterSeconds)
		body["retryAfterSeconds"] = result.RetryAfterSeconds
	default:
		body["error"] = "Quota Exceeded"
		if result.Subscription == nil {
			body["message"] = "An active subscription is required for this endpoint"
		} else {
			body["message"] = "Daily request limit reached for your subscription"
		}
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, body)
}

func setRateLimitHeaders(c *gin.Context, result admission.Result) {
	decision := result.Rate
	c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(decision.ResetIn).Unix(), 10))
	c.Header("X-RateLimit-Tier", string(result.Tier))
}
