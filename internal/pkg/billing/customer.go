package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/internal/pkg/database"
)

// GetOrCreateCustomer returns the provider customer id of the user, creating
// the provider customer and the local BillingCustomer row on first use.
//
// The workspace is resolved before any provider call so a user without a
// workspace never leaves an orphan customer behind. When two requests race,
// both create a provider customer but only the first id is stored; every
// caller returns the stored id.
func (s *Service) GetOrCreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return "", validationError("user id is required")
	}

	existing, err := s.repo.FindCustomerByUser(ctx, userID)
	if err != nil && !database.IsNotFound(err) {
		return "", persistenceError("find billing customer", err)
	}
	if existing.HasStripeCustomer() {
		return *existing.StripeCustomerID, nil
	}

	var workspaceID string
	if existing != nil && existing.WorkspaceID != "" {
		workspaceID = existing.WorkspaceID
	} else {
		workspaceID, err = s.policy.SelectBillingWorkspace(ctx, userID)
		if err != nil {
			return "", err
		}
	}

	if s.provider == nil {
		return "", ErrNotConfigured
	}
	created, err := s.provider.CreateCustomer(ctx, CustomerInput{UserID: userID, Email: strings.TrimSpace(in.Email)})
	if err != nil {
		return "", upstreamError(err)
	}

	stored, err := s.repo.LinkCustomer(ctx, userID, workspaceID, created)
	if err != nil {
		if database.IsUniqueViolation(err) {
			log.Error().Err(err).
				Str("user_id", userID).
				Str("customer_id", created).
				Msg("Provider customer is already linked to another user")
		}
		return "", persistenceError("link billing customer", err)
	}
	if !stored.HasStripeCustomer() {
		return "", persistenceError("link billing customer", errors.New("stored row has no customer id"))
	}

	if *stored.StripeCustomerID != created {
		log.Warn().
			Str("user_id", userID).
			Str("customer_id", *stored.StripeCustomerID).
			Str("discarded_customer_id", created).
			Msg("Concurrent customer creation; keeping the first stored customer")
	} else {
		log.Info().
			Str("user_id", userID).
			Str("workspace_id", stored.WorkspaceID).
			Str("customer_id", created).
			Msg("Billing customer created")
	}
	return *stored.StripeCustomerID, nil
}
