package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prdbuilder/prdbuilder/app/models"
)

type billingMetricsRepository struct {
	db *gorm.DB
}

// NewBillingMetricsRepository creates a new billing metrics repository instance
func NewBillingMetricsRepository(db *gorm.DB) BillingMetricsRepository {
	return &billingMetricsRepository{db: db}
}

type statusCount struct {
	Status string
	Count  int64
}

// CountByStatus returns the number of subscriptions per status
func (r *billingMetricsRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountCreatedSince counts subscriptions created at or after since
func (r *billingMetricsRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Subscription{}).Where("created_at >= ?", since).Count(&count).Error
	return count, err
}

// ListPlanIDsByStatus returns plan_id of every subscription in one of the statuses
func (r *billingMetricsRepository) ListPlanIDsByStatus(ctx context.Context, statuses ...string) ([]string, error) {
	var planIDs []string
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("status IN ?", statuses).
		Pluck("plan_id", &planIDs).Error
	return planIDs, err
}

// UpsertDaily writes the snapshot for row.Day, replacing an earlier one
func (r *billingMetricsRepository) UpsertDaily(ctx context.Context, row *models.BillingMetricsDaily) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"mrr_cents",
			"active_subscribers",
			"trials",
			"churn_rate",
			"arpa_cents",
			"new_subs",
			"cancels",
		}),
	}).Create(row).Error
}

// ListDaily returns the most recent snapshots, newest first
func (r *billingMetricsRepository) ListDaily(ctx context.Context, limit int) ([]models.BillingMetricsDaily, error) {
	var rows []models.BillingMetricsDaily
	err := r.db.WithContext(ctx).Order("day DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
