package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/quota"
	"github.com/aman-churiwal/quota-gateway/internal/repository"
	"github.com/aman-churiwal/quota-gateway/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UsageReporter interface {
	Usage(sub *models.Subscription) quota.Usage
}

type SubscriptionHandler struct {
	service *service.SubscriptionService
	usage   UsageReporter
}

func NewSubscriptionHandler(service *service.SubscriptionService, usage UsageReporter) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, usage: usage}
}

// Handles POST /subscriptions
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		PlanID string `json:"plan_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid plan ID"})
		return
	}

	sub, err := h.service.Subscribe(c.Request.Context(), userID, planID)
	switch {
	case errors.Is(err, service.ErrPlanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadySubscribed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subscription"})
	default:
		c.JSON(http.StatusCreated, sub)
	}
}

// Handles GET /subscriptions/me
func (h *SubscriptionHandler) Current(c *gin.Context) {
	sub, ok := h.current(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, sub)
}

// Handles GET /subscriptions/me/usage
func (h *SubscriptionHandler) Usage(c *gin.Context) {
	sub, ok := h.current(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, h.usage.Usage(sub))
}

// Handles GET /subscriptions/history
func (h *SubscriptionHandler) History(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	subs, err := h.service.History(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscriptions"})
		return
	}

	c.JSON(http.StatusOK, subs)
}

// Handles POST /subscriptions/me/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	sub, err := h.service.Cancel(c.Request.Context(), userID)
	if errors.Is(err, service.ErrNoActiveSubscription) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel subscription"})
		return
	}

	c.JSON(http.StatusOK, sub)
}

// Handles PUT /admin/subscriptions/:id/limit
func (h *SubscriptionHandler) SetRequestLimit(c *gin.Context) {
	id, ok := parseIDParam(c, "id", "subscription")
	if !ok {
		return
	}

	var req struct {
		RequestLimit int `json:"request_limit" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.service.SetRequestLimit(c.Request.Context(), id, req.RequestLimit)
	switch {
	case errors.Is(err, service.ErrInvalidLimit):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrSubscriptionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update subscription"})
	default:
		c.JSON(http.StatusOK, sub)
	}
}

// Handles GET /admin/subscriptions/expiring?days=N
func (h *SubscriptionHandler) Expiring(c *gin.Context) {
	days := 7
	if daysStr := c.Query("days"); daysStr != "" {
		if d, err := strconv.Atoi(daysStr); err == nil && d > 0 && d <= 365 {
			days = d
		}
	}

	subs, err := h.service.Expiring(c.Request.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscriptions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"days":          days,
		"subscriptions": subs,
	})
}

// Handles POST /admin/subscriptions/expire
func (h *SubscriptionHandler) ExpireDue(c *gin.Context) {
	count, err := h.service.ExpireDue(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to expire subscriptions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"expired": count})
}

func (h *SubscriptionHandler) current(c *gin.Context) (*models.Subscription, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return nil, false
	}

	sub, err := h.service.Current(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscription"})
		return nil, false
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": service.ErrNoActiveSubscription.Error()})
		return nil, false
	}

	return sub, true
}
