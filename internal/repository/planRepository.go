package repository

import (
	"context"

	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PlanRepository struct {
	db *storage.Postgres
}

func NewPlanRepository(db *storage.Postgres) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) error {
	return r.db.DB.WithContext(ctx).Create(plan).Error
}

func (r *PlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &plan, err
}

// Active plans, cheapest first
func (r *PlanRepository) ListActive(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price ASC").
		Find(&plans).Error

	return plans, err
}

func (r *PlanRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.Plan{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Inserts the default catalogue when no plans exist yet.
// Returns the number of plans created.
func (r *PlanRepository) SeedDefaults(ctx context.Context) (int, error) {
	var count int64
	if err := r.db.DB.WithContext(ctx).Model(&models.Plan{}).Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	plans := models.DefaultPlans()
	if err := r.db.DB.WithContext(ctx).Create(&plans).Error; err != nil {
		return 0, err
	}

	return len(plans), nil
}
