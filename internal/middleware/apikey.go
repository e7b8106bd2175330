package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/service"
	"github.com/gin-gonic/gin"
)

// Authenticates X-API-Key as the key's owner. Requests without the header
// continue unauthenticated.
func APIKeyValidator(apiKeyService *service.APIKeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKeyHeader := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if apiKeyHeader == "" {
			c.Next()
			return
		}

		apiKey, err := apiKeyService.Validate(c.Request.Context(), apiKeyHeader)
		if err != nil || apiKey == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			c.Abort()
			return
		}

		c.Set(ContextUserID, apiKey.UserID)
		c.Set(ContextRole, models.RoleUser)
		c.Set(ContextAPIKeyID, apiKey.ID)

		go apiKeyService.UpdateLastUsed(context.WithoutCancel(c.Request.Context()), apiKey.ID)

		c.Next()
	}
}
