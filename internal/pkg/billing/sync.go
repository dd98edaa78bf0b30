package billing

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/app/models"
	"github.com/prdbuilder/prdbuilder/internal/pkg/metrics"
)

// SyncResult is returned by SyncFromProvider.
type SyncResult struct {
	Synced        int                   `json:"synced"`
	Failed        int                   `json:"failed"`
	Current       int                   `json:"current"`
	Subscriptions []models.Subscription `json:"subscriptions"`
}

// SyncFromProvider pulls the user's subscriptions from the provider and
// upserts each one. A failing subscription is logged and skipped; the others
// are still written.
func (s *Service) SyncFromProvider(ctx context.Context, userID string) (*SyncResult, error) {
	bc, err := s.requireBillingCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, ErrNotConfigured
	}

	remote, err := s.provider.ListSubscriptions(ctx, *bc.StripeCustomerID, syncSubscriptionLimit)
	if err != nil {
		return nil, upstreamError(err)
	}

	result := &SyncResult{Subscriptions: make([]models.Subscription, 0, len(remote))}
	for _, rs := range remote {
		sub, err := s.upsert(ctx, SubscriptionState{
			WorkspaceID:          bc.WorkspaceID,
			StripeSubscriptionID: rs.ID,
			PlanID:               resolvePlanID(s.catalog, rs.Metadata, rs.PriceID),
			Status:               rs.Status,
			CurrentPeriodEnd:     rs.CurrentPeriodEnd,
		}, sourceSync)
		if err != nil {
			result.Failed++
			metrics.SyncSubscriptionsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			log.Error().Err(err).
				Str("user_id", bc.UserID).
				Str("subscription_id", rs.ID).
				Msg("Failed to sync subscription")
			continue
		}
		metrics.SyncSubscriptionsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
		result.Synced++
		if isCurrentStatus(sub.Status) {
			result.Current++
		}
		result.Subscriptions = append(result.Subscriptions, *sub)
	}

	log.Info().
		Str("user_id", bc.UserID).
		Str("workspace_id", bc.WorkspaceID).
		Int("synced", result.Synced).
		Int("failed", result.Failed).
		Msg("Subscriptions synced from provider")
	return result, nil
}
