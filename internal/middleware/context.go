package middleware

import (
	"github.com/aman-churiwal/quota-gateway/internal/admission"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Gin context keys
const (
	ContextUserID    = "user_id"
	ContextEmail     = "email"
	ContextRole      = "role"
	ContextAPIKeyID  = "api_key_id"
	ContextRequestID = "request_id"
	ContextAdmission = "admission"
)

// Returns the authenticated user's id, if any
func UserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(ContextUserID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// Returns the admission result recorded for this request
func AdmissionResult(c *gin.Context) (admission.Result, bool) {
	value, exists := c.Get(ContextAdmission)
	if !exists {
		return admission.Result{}, false
	}
	result, ok := value.(admission.Result)
	return result, ok
}
