package handler

import (
	"errors"
	"net/http"

	"github.com/aman-churiwal/quota-gateway/internal/service"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Handles GET /admin/users
func (h *AuthHandler) ListUsers(c *gin.Context) {
	limit, offset := parsePagination(c, 50, 500)

	users, err := h.service.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		log.WithError(err).Error("failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":  users,
		"limit":  limit,
		"offset": offset,
	})
}

// Handles PUT /admin/users/:id/role
func (h *AuthHandler) SetRole(c *gin.Context) {
	id, ok := parseIDParam(c, "id", "user")
	if !ok {
		return
	}

	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.service.SetRole(c.Request.Context(), id, req.Role)
	switch {
	case errors.Is(err, service.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		log.WithError(err).Error("failed to change role")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change role"})
	default:
		c.JSON(http.StatusOK, user)
	}
}
