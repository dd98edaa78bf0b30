package billing

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/app/models"
	"github.com/prdbuilder/prdbuilder/internal/pkg/metrics"
)

// Write paths reported in the subscription_upserts_total metric.
const (
	sourceCheckout = "checkout"
	sourceWebhook  = "webhook"
	sourceSync     = "sync"
	sourceManual   = "manual"
)

// UpsertSubscription creates or fully overwrites the subscription keyed by
// its provider id. Repeating the call with the same state leaves exactly one
// row with that state.
func (s *Service) UpsertSubscription(ctx context.Context, state SubscriptionState) (*models.Subscription, error) {
	return s.upsert(ctx, state, sourceManual)
}

func (s *Service) upsert(ctx context.Context, state SubscriptionState, source string) (*models.Subscription, error) {
	state.WorkspaceID = strings.TrimSpace(state.WorkspaceID)
	state.StripeSubscriptionID = strings.TrimSpace(state.StripeSubscriptionID)
	if state.WorkspaceID == "" {
		return nil, validationError("workspace id is required")
	}
	if state.StripeSubscriptionID == "" {
		return nil, validationError("subscription id is required")
	}

	sub := &models.Subscription{
		WorkspaceID:          state.WorkspaceID,
		StripeSubscriptionID: state.StripeSubscriptionID,
		PlanID:               strings.TrimSpace(state.PlanID),
		Status:               normalizeStatus(state.Status),
		CurrentPeriodEnd:     state.CurrentPeriodEnd,
	}
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return nil, persistenceError("upsert subscription", err)
	}
	metrics.SubscriptionUpsertsTotal.WithLabelValues(source).Inc()

	log.Debug().
		Str("source", source).
		Str("workspace_id", sub.WorkspaceID).
		Str("subscription_id", sub.StripeSubscriptionID).
		Str("plan_id", sub.PlanID).
		Str("status", sub.Status).
		Msg("Subscription upserted")
	return sub, nil
}

// MarkCanceled sets the subscription's status to canceled. It reports whether
// a row existed; unknown ids are not an error and create nothing.
func (s *Service) MarkCanceled(ctx context.Context, stripeSubscriptionID string) (bool, error) {
	updated, err := s.repo.UpdateSubscriptionStatus(ctx, strings.TrimSpace(stripeSubscriptionID), models.SubscriptionStatusCanceled, false)
	if err != nil {
		return false, persistenceError("cancel subscription", err)
	}
	return updated, nil
}

// MarkStatus changes only the status of an existing subscription. Canceled
// subscriptions are left canceled, so a late payment event cannot revive
// them. Unknown ids are a no-op.
func (s *Service) MarkStatus(ctx context.Context, stripeSubscriptionID, status string) (bool, error) {
	updated, err := s.repo.UpdateSubscriptionStatus(ctx, strings.TrimSpace(stripeSubscriptionID), normalizeStatus(status), true)
	if err != nil {
		return false, persistenceError("update subscription status", err)
	}
	return updated, nil
}
