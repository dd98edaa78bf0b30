package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/prdbuilder/prdbuilder/app/models"
	"github.com/prdbuilder/prdbuilder/internal/pkg/database"
	"github.com/prdbuilder/prdbuilder/internal/pkg/metrics"
)

// IngestResult describes how a verified webhook delivery was handled.
type IngestResult struct {
	EventID string
	Type    string
	Outcome string
}

// errDropped marks events that were understood but could not be attributed
// to local state. They are acknowledged and left for manual sync.
var errDropped = errors.New("event dropped")

// Ingest verifies, journals and applies one webhook delivery.
//
// Only signature failures and missing configuration are returned as errors.
// Once the payload is authentic the delivery is always acknowledged, even if
// applying it fails; the failure is logged and stored on the journal row.
func (s *Service) Ingest(ctx context.Context, payload []byte, signature string) (*IngestResult, error) {
	if s.webhookSecret == "" {
		return nil, ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", metrics.OutcomeRejected).Inc()
		log.Warn().Err(err).Msg("Webhook signature verification failed")
		return nil, &InvalidSignatureError{Err: err}
	}

	start := time.Now()
	eventType := string(event.Type)
	result := &IngestResult{EventID: event.ID, Type: eventType}

	journal := &models.StripeEvent{
		StripeEventID: event.ID,
		Type:          eventType,
		Payload:       string(payload),
		ReceivedAt:    s.now(),
	}
	journaled := true
	if err := s.repo.AppendEvent(ctx, journal); err != nil {
		journaled = false
		log.Error().Err(err).Str("event_id", event.ID).Str("type", eventType).Msg("Failed to journal webhook event")
	}

	outcome, handleErr := s.dispatch(ctx, event)
	var processingError string
	switch {
	case errors.Is(handleErr, errDropped):
		outcome = metrics.OutcomeDropped
		processingError = handleErr.Error()
	case handleErr != nil:
		outcome = metrics.OutcomeFailed
		processingError = handleErr.Error()
		log.Error().Err(handleErr).Str("event_id", event.ID).Str("type", eventType).Msg("Webhook handler failed")
	}
	result.Outcome = outcome

	if journaled {
		if err := s.repo.MarkEventProcessed(ctx, journal.ID, truncate(processingError, maxStoredProcessingErrorLength)); err != nil {
			log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to mark webhook event processed")
		}
	}

	metrics.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
	metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, event stripe.Event) (string, error) {
	if event.Data == nil {
		return metrics.OutcomeIgnored, nil
	}
	raw := event.Data.Raw

	switch string(event.Type) {
	case EventCheckoutSessionCompleted:
		var obj checkoutSessionObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("decode checkout session: %w", err)
		}
		return s.handleCheckoutCompleted(ctx, obj)

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var obj subscriptionObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("decode subscription: %w", err)
		}
		return s.handleSubscriptionChanged(ctx, obj)

	case EventSubscriptionDeleted:
		var obj subscriptionObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("decode subscription: %w", err)
		}
		return s.handleSubscriptionDeleted(ctx, obj)

	case EventInvoicePaymentSucceeded, EventInvoicePaymentFailed:
		var obj invoiceObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("decode invoice: %w", err)
		}
		status := models.SubscriptionStatusActive
		if string(event.Type) == EventInvoicePaymentFailed {
			status = models.SubscriptionStatusPastDue
		}
		return s.handleInvoice(ctx, obj, status)

	default:
		log.Info().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("Ignoring unhandled webhook event")
		return metrics.OutcomeIgnored, nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, obj checkoutSessionObject) (string, error) {
	if obj.Mode != checkoutModeSubscription || obj.Subscription == "" {
		return metrics.OutcomeIgnored, nil
	}

	workspaceID, err := s.checkoutWorkspace(ctx, obj)
	if err != nil {
		return "", err
	}

	if s.provider == nil {
		return "", ErrNotConfigured
	}
	remote, err := s.provider.GetSubscription(ctx, obj.Subscription)
	if err != nil {
		return "", fmt.Errorf("retrieve subscription %s: %w", obj.Subscription, err)
	}

	planID := strings.TrimSpace(obj.Metadata[MetadataPlanID])
	if planID == "" {
		planID = resolvePlanID(s.catalog, remote.Metadata, remote.PriceID)
	}

	if _, err := s.upsert(ctx, SubscriptionState{
		WorkspaceID:          workspaceID,
		StripeSubscriptionID: remote.ID,
		PlanID:               strings.ToLower(planID),
		Status:               remote.Status,
		CurrentPeriodEnd:     remote.CurrentPeriodEnd,
	}, sourceCheckout); err != nil {
		return "", err
	}
	log.Info().
		Str("workspace_id", workspaceID).
		Str("subscription_id", remote.ID).
		Str("status", remote.Status).
		Msg("Checkout completed")
	return metrics.OutcomeProcessed, nil
}

// checkoutWorkspace finds the workspace a completed checkout belongs to. The
// customer registry is authoritative; the user id in the session metadata is
// the fallback for customers created outside this service.
func (s *Service) checkoutWorkspace(ctx context.Context, obj checkoutSessionObject) (string, error) {
	bc, err := s.repo.FindCustomerByStripeID(ctx, obj.Customer)
	if err == nil {
		return bc.WorkspaceID, nil
	}
	if !database.IsNotFound(err) {
		return "", persistenceError("find billing customer", err)
	}

	userID := strings.TrimSpace(obj.Metadata[MetadataUserID])
	if userID == "" || obj.Customer == "" {
		log.Warn().Str("session_id", obj.ID).Str("customer_id", obj.Customer).Msg("Checkout completed for unknown customer")
		return "", fmt.Errorf("%w: unknown customer %s", errDropped, obj.Customer)
	}

	workspaceID := ""
	if existing, err := s.repo.FindCustomerByUser(ctx, userID); err == nil {
		workspaceID = existing.WorkspaceID
	} else if !database.IsNotFound(err) {
		return "", persistenceError("find billing customer", err)
	}
	if workspaceID == "" {
		workspaceID, err = s.policy.SelectBillingWorkspace(ctx, userID)
		if errors.Is(err, ErrNoWorkspace) {
			log.Warn().Str("session_id", obj.ID).Str("user_id", userID).Msg("Checkout completed for user without workspace")
			return "", fmt.Errorf("%w: user %s has no workspace", errDropped, userID)
		}
		if err != nil {
			return "", err
		}
	}

	stored, err := s.repo.LinkCustomer(ctx, userID, workspaceID, obj.Customer)
	if err != nil {
		return "", persistenceError("link billing customer", err)
	}
	return stored.WorkspaceID, nil
}

func (s *Service) handleSubscriptionChanged(ctx context.Context, obj subscriptionObject) (string, error) {
	bc, err := s.repo.FindCustomerByStripeID(ctx, obj.Customer)
	if database.IsNotFound(err) {
		log.Warn().
			Str("subscription_id", obj.ID).
			Str("customer_id", obj.Customer).
			Msg("Subscription event for unknown customer")
		return "", fmt.Errorf("%w: unknown customer %s", errDropped, obj.Customer)
	}
	if err != nil {
		return "", persistenceError("find billing customer", err)
	}

	if _, err := s.upsert(ctx, SubscriptionState{
		WorkspaceID:          bc.WorkspaceID,
		StripeSubscriptionID: obj.ID,
		PlanID:               resolvePlanID(s.catalog, obj.Metadata, obj.firstPriceID()),
		Status:               obj.Status,
		CurrentPeriodEnd:     obj.periodEnd(),
	}, sourceWebhook); err != nil {
		return "", err
	}
	return metrics.OutcomeProcessed, nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, obj subscriptionObject) (string, error) {
	updated, err := s.MarkCanceled(ctx, obj.ID)
	if err != nil {
		return "", err
	}
	if !updated {
		log.Info().Str("subscription_id", obj.ID).Msg("Deleted subscription is not stored locally")
	}
	return metrics.OutcomeProcessed, nil
}

func (s *Service) handleInvoice(ctx context.Context, obj invoiceObject, status string) (string, error) {
	subID := obj.subscriptionID()
	if subID == "" {
		return metrics.OutcomeIgnored, nil
	}
	updated, err := s.MarkStatus(ctx, subID, status)
	if err != nil {
		return "", err
	}
	if !updated {
		log.Info().
			Str("invoice_id", obj.ID).
			Str("subscription_id", subID).
			Msg("Invoice for unknown or canceled subscription")
	}
	return metrics.OutcomeProcessed, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
