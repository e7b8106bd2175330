package admission

import (
	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/ratelimit"
	"github.com/google/uuid"
)

type Reason string

const (
	ReasonNone          Reason = "none"
	ReasonRateLimited   Reason = "rate_limited"
	ReasonQuotaExceeded Reason = "quota_exceeded"
)

// Request describes the caller of one inbound API call
type Request struct {
	UserID     uuid.UUID // uuid.Nil for anonymous callers
	RemoteAddr string
	Metered    bool // counts against the daily quota
}

func (r Request) CallerKey() string {
	if r.UserID != uuid.Nil {
		return "user:" + r.UserID.String()
	}
	return "ip:" + r.RemoteAddr
}

type Result struct {
	Allowed           bool
	Reason            Reason
	RetryAfterSeconds int
	Tier              models.Tier
	Rate              ratelimit.Decision
	Subscription      *models.Subscription
}

func (r Result) outcome() string {
	if r.Allowed {
		return "admitted"
	}
	return string(r.Reason)
}
