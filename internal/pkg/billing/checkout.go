package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/internal/pkg/constants"
	"github.com/prdbuilder/prdbuilder/internal/pkg/metrics"
)

// StartCheckout starts a hosted subscription checkout and returns its URL.
// Nothing but the customer registry is written; the subscription row is
// created once the provider reports the completed checkout.
func (s *Service) StartCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	url, err := s.startCheckout(ctx, req)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return "", err
	}
	metrics.CheckoutSessionsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return url, nil
}

func (s *Service) startCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	priceID := strings.TrimSpace(req.PriceID)
	if !IsPriceID(priceID) {
		return "", &InvalidPriceIDError{ReceivedID: req.PriceID}
	}

	cycle, ok := normalizeBillingCycle(req.BillingCycle)
	if !ok {
		return "", validationError("billingCycle must be monthly or yearly")
	}

	// planId only travels as session metadata; the plan is resolved from the
	// price once the provider reports the subscription.
	planID := strings.ToLower(strings.TrimSpace(req.PlanID))
	if planID == "" {
		return "", validationError("planId is required")
	}

	if s.provider == nil {
		return "", ErrNotConfigured
	}

	customerID, err := s.GetOrCreateCustomer(ctx, CustomerInput{UserID: req.UserID, Email: req.Email})
	if err != nil {
		return "", err
	}

	url, err := s.provider.CreateCheckoutSession(ctx, CheckoutSessionInput{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: s.appURL + constants.CheckoutSuccessPage,
		CancelURL:  s.appURL + constants.CheckoutCancelPage,
		Metadata: map[string]string{
			MetadataUserID:       strings.TrimSpace(req.UserID),
			MetadataPlanID:       planID,
			MetadataBillingCycle: cycle,
		},
	})
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Code == ProviderCodeNoSuchPrice {
			log.Warn().Str("price_id", priceID).Msg("Checkout rejected: price does not exist at provider")
			return "", priceNotFoundError(priceID, s.catalog.PriceConfigKeys(), err)
		}
		return "", upstreamError(err)
	}
	return url, nil
}
