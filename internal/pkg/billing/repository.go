package billing

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prdbuilder/prdbuilder/app/models"
	"github.com/prdbuilder/prdbuilder/internal/pkg/database"
)

// errCustomerLinkedElsewhere is returned when the provider customer id is
// already stored for a different user.
var errCustomerLinkedElsewhere = fmt.Errorf("provider customer is linked to another user: %w", gorm.ErrDuplicatedKey)

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindCustomerByUser(ctx context.Context, userID string) (*models.BillingCustomer, error)
	FindCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*models.BillingCustomer, error)
	LinkCustomer(ctx context.Context, userID, workspaceID, stripeCustomerID string) (*models.BillingCustomer, error)
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string, keepCanceled bool) (bool, error)
	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	FindCurrentSubscription(ctx context.Context, workspaceID string) (*models.Subscription, error)
	AppendEvent(ctx context.Context, event *models.StripeEvent) error
	MarkEventProcessed(ctx context.Context, id uint, processingError string) error
	ListEventsBefore(ctx context.Context, before time.Time, afterID uint, limit int) ([]models.StripeEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindCustomerByUser(ctx context.Context, userID string) (*models.BillingCustomer, error) {
	var bc models.BillingCustomer
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&bc).Error; err != nil {
		return nil, err
	}
	return &bc, nil
}

func (r *gormRepository) FindCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*models.BillingCustomer, error) {
	var bc models.BillingCustomer
	if err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", stripeCustomerID).First(&bc).Error; err != nil {
		return nil, err
	}
	return &bc, nil
}

// LinkCustomer stores stripeCustomerID for userID unless the user already has
// one, and returns the stored row. Concurrent callers all observe the id of
// the first writer.
func (r *gormRepository) LinkCustomer(ctx context.Context, userID, workspaceID, stripeCustomerID string) (*models.BillingCustomer, error) {
	db := r.db.WithContext(ctx)
	id := stripeCustomerID

	owner, err := r.FindCustomerByStripeID(ctx, id)
	switch {
	case err == nil && owner.UserID != userID:
		return nil, errCustomerLinkedElsewhere
	case err != nil && !database.IsNotFound(err):
		return nil, err
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&models.BillingCustomer{
		UserID:           userID,
		WorkspaceID:      workspaceID,
		StripeCustomerID: &id,
	}).Error; err != nil {
		return nil, err
	}

	// Rows created before a provider customer existed carry a NULL id.
	if err := db.Model(&models.BillingCustomer{}).
		Where("user_id = ? AND stripe_customer_id IS NULL", userID).
		Updates(map[string]interface{}{
			"stripe_customer_id": id,
			"updated_at":         time.Now(),
		}).Error; err != nil {
		return nil, err
	}

	stored, err := r.FindCustomerByUser(ctx, userID)
	if database.IsNotFound(err) {
		// MySQL turns DO NOTHING into ON DUPLICATE KEY UPDATE, which also
		// swallows a racing insert of the same customer id for another user.
		return nil, errCustomerLinkedElsewhere
	}
	return stored, err
}

func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_id",
			"status",
			"current_period_end",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Re-read into a fresh value: sub carries the generated ID of the insert
	// attempt, which gorm would add to the lookup condition.
	var stored models.Subscription
	if err := db.Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).First(&stored).Error; err != nil {
		return err
	}
	*sub = stored
	return nil
}

// UpdateSubscriptionStatus sets the status of an existing row. It never
// creates rows. With keepCanceled, canceled rows are left untouched.
func (r *gormRepository) UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string, keepCanceled bool) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.Subscription{}).Where("stripe_subscription_id = ?", stripeSubscriptionID)
	if keepCanceled {
		q = q.Where("status <> ?", models.SubscriptionStatusCanceled)
	}
	res := q.Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	})
	return res.RowsAffected > 0, res.Error
}

func (r *gormRepository) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindCurrentSubscription returns the most recently updated non-canceled
// subscription of the workspace.
func (r *gormRepository) FindCurrentSubscription(ctx context.Context, workspaceID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND status <> ?", workspaceID, models.SubscriptionStatusCanceled).
		Order("updated_at DESC, created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) AppendEvent(ctx context.Context, event *models.StripeEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *gormRepository) MarkEventProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.StripeEvent{}).Where("id = ?", id).Updates(updates).Error
}

// ListEventsBefore pages through events received before the cutoff in id order.
func (r *gormRepository) ListEventsBefore(ctx context.Context, before time.Time, afterID uint, limit int) ([]models.StripeEvent, error) {
	var events []models.StripeEvent
	err := r.db.WithContext(ctx).
		Where("received_at < ? AND id > ?", before, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
