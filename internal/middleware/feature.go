package middleware

import (
	"net/http"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/admission"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Rejects callers whose active plan lacks the feature before any quota is spent.
// Anonymous callers and callers without a subscription are left to admission.
func RequireFeature(subscriptions admission.SubscriptionFinder, feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if feature == "" || !ok {
			c.Next()
			return
		}

		sub, err := subscriptions.FindActiveByUser(c.Request.Context(), userID, time.Now())
		if err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("feature check lookup failed")
			c.Next()
			return
		}

		if sub != nil && sub.Plan != nil && !sub.Plan.HasFeature(feature) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"statusCode": http.StatusForbidden,
				"error":      "Forbidden",
				"message":    "Your plan does not include this API",
			})
			return
		}

		c.Next()
	}
}
