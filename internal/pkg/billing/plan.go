package billing

import (
	"strings"

	"github.com/prdbuilder/prdbuilder/app/models"
	"github.com/prdbuilder/prdbuilder/internal/pkg/entitlements"
)

// IsPriceID reports whether id has the shape of a provider price id.
func IsPriceID(id string) bool {
	id = strings.TrimSpace(id)
	return strings.HasPrefix(id, "price_") && len(id) > len("price_")
}

// resolvePlanID picks the value stored in subscriptions.plan_id: the plan
// recorded in metadata at checkout, else the catalog plan of the price, else
// the raw price id.
func resolvePlanID(catalog *entitlements.Catalog, metadata map[string]string, priceID string) string {
	if plan := strings.TrimSpace(metadata[MetadataPlanID]); plan != "" {
		return strings.ToLower(plan)
	}
	if catalog != nil {
		if plan, _, ok := catalog.PlanForPrice(priceID); ok {
			return string(plan)
		}
	}
	return strings.TrimSpace(priceID)
}

func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return models.SubscriptionStatusIncomplete
	}
	return s
}

func normalizeBillingCycle(cycle string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(cycle)) {
	case models.BillingCycleMonthly, "month":
		return models.BillingCycleMonthly, true
	case models.BillingCycleYearly, "year", "annual":
		return models.BillingCycleYearly, true
	default:
		return "", false
	}
}

// isCurrentStatus reports whether a subscription in this status can be the
// workspace's current subscription.
func isCurrentStatus(status string) bool {
	return normalizeStatus(status) != models.SubscriptionStatusCanceled
}
