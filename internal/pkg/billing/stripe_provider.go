package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
)

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct{}

// NewStripeProvider sets the global Stripe API key and returns the provider.
func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = strings.TrimSpace(secretKey)
	return &StripeProvider{}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{MetadataUserID: in.UserID},
	}
	if in.Email != "" {
		params.Email = stripe.String(in.Email)
	}
	params.Context = ctx
	params.SetIdempotencyKey("customer-create-" + in.UserID)

	c, err := customer.New(params)
	if err != nil {
		return "", providerError("create customer", err)
	}
	return c.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(in.CustomerID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		Metadata:   in.Metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: in.Metadata,
		},
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", providerError("create checkout session", err)
	}
	return sess.URL, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", providerError("create portal session", err)
	}
	return sess.URL, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, providerError("get subscription", err)
	}
	out := fromStripeSubscription(sub)
	return &out, nil
}

func (p *StripeProvider) ListSubscriptions(ctx context.Context, customerID string, limit int) ([]ProviderSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	params.Single = true

	var out []ProviderSubscription
	iter := subscription.List(params)
	for iter.Next() {
		out = append(out, fromStripeSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, providerError("list subscriptions", err)
	}
	return out, nil
}

func fromStripeSubscription(sub *stripe.Subscription) ProviderSubscription {
	out := ProviderSubscription{
		ID:       sub.ID,
		Status:   string(sub.Status),
		Metadata: sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil {
		var end int64
		for _, item := range sub.Items.Data {
			if item == nil {
				continue
			}
			if out.PriceID == "" && item.Price != nil {
				out.PriceID = item.Price.ID
			}
			if item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
		}
		out.CurrentPeriodEnd = unixTime(end)
	}
	return out
}

// providerError classifies a Stripe API failure.
func providerError(op string, err error) error {
	code := ProviderCodeAPI
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case strings.Contains(se.Msg, "No such price"):
			code = ProviderCodeNoSuchPrice
		case se.Code == stripe.ErrorCodeResourceMissing:
			code = ProviderCodeResourceMissing
		case se.Type == stripe.ErrorTypeInvalidRequest:
			code = ProviderCodeInvalidRequest
		}
	}
	return &ProviderError{Op: op, Code: code, Err: err}
}
