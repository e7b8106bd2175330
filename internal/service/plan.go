package service

import (
	"context"
	"errors"

	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/repository"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type PlanService struct {
	repo *repository.PlanRepository
}

func NewPlanService(repo *repository.PlanRepository) *PlanService {
	return &PlanService{repo: repo}
}

func (s *PlanService) List(ctx context.Context) ([]models.Plan, error) {
	return s.repo.ListActive(ctx)
}

func (s *PlanService) Create(ctx context.Context, plan *models.Plan) error {
	if plan.Name == "" {
		return errors.New("plan name is required")
	}
	if plan.RequestLimit <= 0 {
		return ErrInvalidLimit
	}
	if !plan.Tier.Valid() {
		return errors.New("tier must be one of base, mid, top")
	}

	plan.IsActive = true
	return s.repo.Create(ctx, plan)
}

// Retired plans drop out of the catalogue. Existing subscriptions keep them.
func (s *PlanService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Plan, error) {
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}

	if err := s.repo.Update(ctx, id, map[string]interface{}{"is_active": active}); err != nil {
		return nil, err
	}
	plan.IsActive = active
	return plan, nil
}

// Seeds the default catalogue on an empty database
func (s *PlanService) EnsureDefaults(ctx context.Context) error {
	created, err := s.repo.SeedDefaults(ctx)
	if err != nil {
		return err
	}
	if created > 0 {
		log.WithField("count", created).Info("seeded default plans")
	}
	return nil
}
