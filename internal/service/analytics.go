package service

import (
	"context"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/repository"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type AnalyticsService struct {
	repository *repository.RequestLogRepository
}

func NewAnalyticsService(repo *repository.RequestLogRepository) *AnalyticsService {
	return &AnalyticsService{repository: repo}
}

// Holds analytics summary data
type AnalyticsSummary struct {
	TotalRequests   int64                      `json:"total_requests"`
	AvgResponseTime float64                    `json:"avg_response_time_ms"`
	P50ResponseTime int                        `json:"p50_response_time_ms"`
	P95ResponseTime int                        `json:"p95_response_time_ms"`
	P99ResponseTime int                        `json:"p99_response_time_ms"`
	ErrorRate       float64                    `json:"error_rate"`
	SuccessRate     float64                    `json:"success_rate"`
	RateLimited     int64                      `json:"rate_limited"`
	QuotaExceeded   int64                      `json:"quota_exceeded"`
	Admissions      []repository.ReasonCount   `json:"admissions"`
	TopEndpoints    []repository.EndpointCount `json:"top_endpoints"`
}

// Retrieves analytics summary for a time range
func (s *AnalyticsService) GetSummary(ctx context.Context, from, to time.Time) (*AnalyticsSummary, error) {
	summary := &AnalyticsSummary{}

	totalRequests, err := s.repository.CountByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.TotalRequests = totalRequests

	if totalRequests == 0 {
		return summary, nil
	}

	summary.AvgResponseTime, err = s.repository.GetAverageResponseTime(ctx, from, to)
	if err != nil {
		return nil, err
	}

	// Percentiles need Postgres; a failure leaves them at zero
	summary.P50ResponseTime = s.percentile(ctx, from, to, 0.50)
	summary.P95ResponseTime = s.percentile(ctx, from, to, 0.95)
	summary.P99ResponseTime = s.percentile(ctx, from, to, 0.99)

	failed, err := s.repository.CountByStatusCodeRange(ctx, 400, 599, from, to)
	if err != nil {
		return nil, err
	}
	summary.ErrorRate = (float64(failed) / float64(totalRequests)) * 100
	summary.SuccessRate = 100 - summary.ErrorRate

	summary.Admissions, err = s.repository.CountByAdmissionReason(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, row := range summary.Admissions {
		switch row.Reason {
		case "rate_limited":
			summary.RateLimited += row.Count
		case "quota_exceeded":
			summary.QuotaExceeded += row.Count
		}
	}

	summary.TopEndpoints, err = s.repository.GetTopEndpoints(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}

	return summary, nil
}

// Retrieves hourly request counts
func (s *AnalyticsService) GetTimeSeriesData(ctx context.Context, from, to time.Time) ([]repository.HourlyCount, error) {
	return s.repository.GetHourlyStatus(ctx, from, to)
}

// Retrieves one user's recent requests
func (s *AnalyticsService) GetUserLogs(ctx context.Context, userID uuid.UUID, from, to time.Time, limit, offset int) ([]models.RequestLog, error) {
	return s.repository.FindByUser(ctx, userID, from, to, limit, offset)
}

// Deletes logs older than specified retention period
func (s *AnalyticsService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutOffDate := time.Now().AddDate(0, 0, -retentionDays)
	return s.repository.DeleteOldLogs(ctx, cutOffDate)
}

func (s *AnalyticsService) percentile(ctx context.Context, from, to time.Time, p float64) int {
	value, err := s.repository.GetPercentile(ctx, from, to, p)
	if err != nil {
		log.WithError(err).Debug("percentile query failed")
		return 0
	}
	return value
}
