package models

import "time"

// BillingCustomer maps an application user to the payment provider's
// customer. StripeCustomerID stays nil until the first checkout attempt.
type BillingCustomer struct {
	UserID           string    `gorm:"size:64;primaryKey" json:"user_id"`
	WorkspaceID      string    `gorm:"size:36;not null;index" json:"workspace_id"`
	StripeCustomerID *string   `gorm:"size:191;uniqueIndex:ux_billing_customers_stripe_customer" json:"stripe_customer_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasStripeCustomer reports whether the row is linked to a provider customer.
func (bc *BillingCustomer) HasStripeCustomer() bool {
	return bc != nil && bc.StripeCustomerID != nil && *bc.StripeCustomerID != ""
}
