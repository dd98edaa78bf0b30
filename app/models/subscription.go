package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BillingCycleMonthly = "monthly"
	BillingCycleYearly  = "yearly"
)

const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
)

// Subscription is the local mirror of a provider subscription, keyed by the
// provider's subscription id. Rows are retired by status, never deleted.
type Subscription struct {
	ID                   string     `gorm:"size:36;primaryKey" json:"id"`
	WorkspaceID          string     `gorm:"size:36;not null;index:idx_subscriptions_workspace_status,priority:1" json:"workspace_id"`
	StripeSubscriptionID string     `gorm:"size:191;not null;uniqueIndex:ux_subscriptions_stripe_subscription" json:"stripe_subscription_id"`
	PlanID               string     `gorm:"size:191;not null;default:''" json:"plan_id"`
	Status               string     `gorm:"size:32;not null;index:idx_subscriptions_workspace_status,priority:2" json:"status"`
	CurrentPeriodEnd     *time.Time `gorm:"default:null" json:"current_period_end"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime;index:idx_subscriptions_workspace_status,priority:3" json:"updated_at"`
}

// BeforeCreate assigns a UUID when none was set.
func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
