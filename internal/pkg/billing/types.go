package billing

import (
	"context"
	"time"
)

// Provider is the payment provider port used by the service. The Stripe
// implementation lives in stripe_provider.go; tests substitute a fake.
type Provider interface {
	CreateCustomer(ctx context.Context, in CustomerInput) (string, error)
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	ListSubscriptions(ctx context.Context, customerID string, limit int) ([]ProviderSubscription, error)
}

// CustomerInput is the data sent when creating a provider customer.
type CustomerInput struct {
	UserID string
	Email  string
}

// CheckoutSessionInput describes a hosted subscription checkout.
type CheckoutSessionInput struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// ProviderSubscription is the provider-agnostic view of a subscription.
type ProviderSubscription struct {
	ID               string
	CustomerID       string
	Status           string
	PriceID          string
	CurrentPeriodEnd *time.Time
	Metadata         map[string]string
}

// SubscriptionState is the full set of fields written by UpsertSubscription.
type SubscriptionState struct {
	WorkspaceID          string
	StripeSubscriptionID string
	PlanID               string
	Status               string
	CurrentPeriodEnd     *time.Time
}

// CheckoutRequest is the input of StartCheckout.
type CheckoutRequest struct {
	UserID       string
	Email        string
	PriceID      string
	PlanID       string
	BillingCycle string
}

// Metadata keys attached to checkout sessions and subscriptions.
const (
	MetadataUserID       = "user_id"
	MetadataPlanID       = "plan_id"
	MetadataBillingCycle = "billing_cycle"
)

// Webhook event types handled by the ingestor.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded  = "invoice.payment_succeeded"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
)

const (
	checkoutModeSubscription       = "subscription"
	maxStoredProcessingErrorLength = 1000
	syncSubscriptionLimit          = 10
)

// checkoutSessionObject is a minimal representation of a checkout.session event.
type checkoutSessionObject struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// subscriptionObject is a minimal representation of a subscription event.
// current_period_end moved from the subscription to its items in newer API
// versions; both are read.
type subscriptionObject struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (s subscriptionObject) firstPriceID() string {
	for _, item := range s.Items.Data {
		if item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

func (s subscriptionObject) periodEnd() *time.Time {
	end := s.CurrentPeriodEnd
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > end {
			end = item.CurrentPeriodEnd
		}
	}
	return unixTime(end)
}

// invoiceObject is a minimal representation of an invoice event. The
// subscription id is top-level in older API versions and nested under
// parent.subscription_details in newer ones.
type invoiceObject struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (i invoiceObject) subscriptionID() string {
	if i.Subscription != "" {
		return i.Subscription
	}
	return i.Parent.SubscriptionDetails.Subscription
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
