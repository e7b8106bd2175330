package handler

import (
	"errors"
	"net/http"

	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/service"
	"github.com/gin-gonic/gin"
)

type PlanHandler struct {
	service *service.PlanService
}

func NewPlanHandler(service *service.PlanService) *PlanHandler {
	return &PlanHandler{service: service}
}

// Handles GET /plans
func (h *PlanHandler) List(c *gin.Context) {
	plans, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list plans"})
		return
	}

	c.JSON(http.StatusOK, plans)
}

// Handles POST /admin/plans
func (h *PlanHandler) Create(c *gin.Context) {
	var req struct {
		Name         string   `json:"name" binding:"required"`
		Price        float64  `json:"price"`
		Tier         string   `json:"tier" binding:"required"`
		RequestLimit int      `json:"request_limit" binding:"required"`
		Features     []string `json:"features"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan := &models.Plan{
		Name:         req.Name,
		Price:        req.Price,
		Tier:         models.Tier(req.Tier),
		RequestLimit: req.RequestLimit,
		Features:     req.Features,
	}

	if err := h.service.Create(c.Request.Context(), plan); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, plan)
}

// Handles PUT /admin/plans/:id/active
func (h *PlanHandler) SetActive(c *gin.Context) {
	id, ok := parseIDParam(c, "id", "plan")
	if !ok {
		return
	}

	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, err := h.service.SetActive(c.Request.Context(), id, *req.Active)
	if errors.Is(err, service.ErrPlanNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update plan"})
		return
	}

	c.JSON(http.StatusOK, plan)
}
