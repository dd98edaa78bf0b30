package entitlements

import (
	"strings"

	"github.com/prdbuilder/prdbuilder/app/models"
	"github.com/prdbuilder/prdbuilder/internal/pkg/config"
)

type Plan string

const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// PlanInfo describes a purchasable plan. Prices are in cents.
type PlanInfo struct {
	ID                 Plan   `json:"id"`
	Name               string `json:"name"`
	MonthlyPriceCents  int64  `json:"monthly_price_cents"`
	YearlyPriceCents   int64  `json:"yearly_price_cents"`
	MonthlyPriceID     string `json:"monthly_price_id,omitempty"`
	YearlyPriceID      string `json:"yearly_price_id,omitempty"`
	MonthlyPriceConfig string `json:"-"`
	YearlyPriceConfig  string `json:"-"`
}

// Catalog holds the plans and the configured provider price ids.
type Catalog struct {
	plans []PlanInfo
}

// NewCatalog builds the plan catalog with price ids from configuration.
func NewCatalog(prices config.PriceIDConfig) *Catalog {
	return &Catalog{plans: []PlanInfo{
		{ID: PlanFree, Name: "Free"},
		{
			ID:                 PlanPro,
			Name:               "Pro",
			MonthlyPriceCents:  2900,
			YearlyPriceCents:   29000,
			MonthlyPriceID:     strings.TrimSpace(prices.ProMonthly),
			YearlyPriceID:      strings.TrimSpace(prices.ProYearly),
			MonthlyPriceConfig: "STRIPE_PRO_MONTHLY_PRICE_ID",
			YearlyPriceConfig:  "STRIPE_PRO_YEARLY_PRICE_ID",
		},
		{
			ID:                 PlanBusiness,
			Name:               "Business",
			MonthlyPriceCents:  9900,
			YearlyPriceCents:   99000,
			MonthlyPriceID:     strings.TrimSpace(prices.BusinessMonthly),
			YearlyPriceID:      strings.TrimSpace(prices.BusinessYearly),
			MonthlyPriceConfig: "STRIPE_BUSINESS_MONTHLY_PRICE_ID",
			YearlyPriceConfig:  "STRIPE_BUSINESS_YEARLY_PRICE_ID",
		},
	}}
}

// Plans returns all plans in display order.
func (c *Catalog) Plans() []PlanInfo {
	out := make([]PlanInfo, len(c.plans))
	copy(out, c.plans)
	return out
}

// Lookup returns the plan with the given id.
func (c *Catalog) Lookup(id string) (PlanInfo, bool) {
	p := Plan(strings.ToLower(strings.TrimSpace(id)))
	for _, info := range c.plans {
		if info.ID == p {
			return info, true
		}
	}
	return PlanInfo{}, false
}

// PlanForPrice resolves a configured price id to its plan and billing cycle.
func (c *Catalog) PlanForPrice(priceID string) (Plan, string, bool) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return "", "", false
	}
	for _, info := range c.plans {
		switch priceID {
		case info.MonthlyPriceID:
			return info.ID, models.BillingCycleMonthly, true
		case info.YearlyPriceID:
			return info.ID, models.BillingCycleYearly, true
		}
	}
	return "", "", false
}

// MonthlyRevenueCents returns the monthly revenue contributed by one
// subscription whose plan column holds planRef. planRef may be a plan id
// (monthly price assumed) or a configured price id (yearly prices are
// spread over twelve months). Unknown references contribute nothing.
func (c *Catalog) MonthlyRevenueCents(planRef string) int64 {
	if plan, cycle, ok := c.PlanForPrice(planRef); ok {
		info, _ := c.Lookup(string(plan))
		if cycle == models.BillingCycleYearly {
			return info.YearlyPriceCents / 12
		}
		return info.MonthlyPriceCents
	}
	if info, ok := c.Lookup(planRef); ok {
		return info.MonthlyPriceCents
	}
	return 0
}

// PriceConfigKeys lists the configuration keys holding price ids, used in
// remediation hints when the provider rejects a price.
func (c *Catalog) PriceConfigKeys() []string {
	keys := make([]string, 0, 4)
	for _, info := range c.plans {
		if info.MonthlyPriceConfig != "" {
			keys = append(keys, info.MonthlyPriceConfig)
		}
		if info.YearlyPriceConfig != "" {
			keys = append(keys, info.YearlyPriceConfig)
		}
	}
	return keys
}
