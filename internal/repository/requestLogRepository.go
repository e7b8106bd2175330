package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/quota-gateway/internal/models"
	"github.com/aman-churiwal/quota-gateway/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RequestLogRepository struct {
	db *storage.Postgres
}

func NewRequestLogRepository(db *storage.Postgres) *RequestLogRepository {
	return &RequestLogRepository{db: db}
}

// Restricts a query to logs with from <= timestamp <= to
func between(from, to time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("timestamp BETWEEN ? AND ?", from.UTC(), to.UTC())
	}
}

func (r *RequestLogRepository) logs(ctx context.Context, from, to time.Time) *gorm.DB {
	return r.db.DB.WithContext(ctx).Model(&models.RequestLog{}).Scopes(between(from, to))
}

// Written by the request logger's background worker
func (r *RequestLogRepository) CreateBatch(ctx context.Context, logs []*models.RequestLog) error {
	if len(logs) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).CreateInBatches(logs, 200).Error
}

// Newest first
func (r *RequestLogRepository) FindByUser(ctx context.Context, userID uuid.UUID, from, to time.Time, limit, offset int) ([]models.RequestLog, error) {
	var entries []models.RequestLog
	err := r.logs(ctx, from, to).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error

	return entries, err
}

func (r *RequestLogRepository) CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.logs(ctx, from, to).Count(&count).Error
	return count, err
}

func (r *RequestLogRepository) GetAverageResponseTime(ctx context.Context, from, to time.Time) (float64, error) {
	var avg float64
	err := r.logs(ctx, from, to).
		Select("COALESCE(AVG(response_time_ms), 0)").
		Scan(&avg).Error

	return avg, err
}

// Postgres only
func (r *RequestLogRepository) GetPercentile(ctx context.Context, from, to time.Time, percentile float64) (int, error) {
	var result int
	err := r.logs(ctx, from, to).
		Select("COALESCE(PERCENTILE_CONT(?) WITHIN GROUP (ORDER BY response_time_ms), 0)", percentile).
		Scan(&result).Error

	return result, err
}

// Counts responses with a status in [minStatus, maxStatus], e.g. 500-599
func (r *RequestLogRepository) CountByStatusCodeRange(ctx context.Context, minStatus, maxStatus int, from, to time.Time) (int64, error) {
	var count int64
	err := r.logs(ctx, from, to).
		Where("status_code BETWEEN ? AND ?", minStatus, maxStatus).
		Count(&count).Error

	return count, err
}

type ReasonCount struct {
	Reason string `json:"reason"`
	Tier   string `json:"tier"`
	Count  int64  `json:"count"`
}

// Groups logged requests by admission reason and tier
func (r *RequestLogRepository) CountByAdmissionReason(ctx context.Context, from, to time.Time) ([]ReasonCount, error) {
	var results []ReasonCount
	err := r.logs(ctx, from, to).
		Select("admission_reason AS reason, tier, COUNT(*) AS count").
		Group("admission_reason, tier").
		Order("count DESC").
		Scan(&results).Error

	return results, err
}

type EndpointCount struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

func (r *RequestLogRepository) GetTopEndpoints(ctx context.Context, from, to time.Time, limit int) ([]EndpointCount, error) {
	var results []EndpointCount
	err := r.logs(ctx, from, to).
		Select("path, COUNT(*) AS count").
		Group("path").
		Order("count DESC").
		Limit(limit).
		Scan(&results).Error

	return results, err
}

type HourlyCount struct {
	Hour            time.Time `json:"hour"`
	Count           int64     `json:"count"`
	Rejected        int64     `json:"rejected"`
	AvgResponseTime float64   `json:"avg_response_time"`
}

// Request and rejection counts per hour. Postgres only.
func (r *RequestLogRepository) GetHourlyStatus(ctx context.Context, from, to time.Time) ([]HourlyCount, error) {
	var results []HourlyCount
	err := r.logs(ctx, from, to).
		Select("DATE_TRUNC('hour', timestamp) AS hour, COUNT(*) AS count, " +
			"COUNT(*) FILTER (WHERE status_code = 429) AS rejected, " +
			"AVG(response_time_ms) AS avg_response_time").
		Group("hour").
		Order("hour ASC").
		Scan(&results).Error

	return results, err
}

func (r *RequestLogRepository) DeleteOldLogs(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("timestamp < ?", before.UTC()).
		Delete(&models.RequestLog{})

	return result.RowsAffected, result.Error
}
