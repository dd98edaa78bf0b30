package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/prdbuilder/prdbuilder/app/models"
	"github.com/prdbuilder/prdbuilder/internal/pkg/config"
)

func testCatalog() *Catalog {
	return NewCatalog(config.PriceIDConfig{
		ProMonthly:      "price_pro_month",
		ProYearly:       "price_pro_year",
		BusinessMonthly: "price_biz_month",
		BusinessYearly:  " price_biz_year ",
	})
}

func TestPlanForPrice(t *testing.T) {
	c := testCatalog()

	tests := []struct {
		price     string
		wantPlan  Plan
		wantCycle string
		wantOK    bool
	}{
		{price: "price_pro_month", wantPlan: PlanPro, wantCycle: models.BillingCycleMonthly, wantOK: true},
		{price: "price_pro_year", wantPlan: PlanPro, wantCycle: models.BillingCycleYearly, wantOK: true},
		{price: "price_biz_year", wantPlan: PlanBusiness, wantCycle: models.BillingCycleYearly, wantOK: true},
		{price: "price_unknown", wantOK: false},
		{price: "", wantOK: false},
	}
	for _, tt := range tests {
		plan, cycle, ok := c.PlanForPrice(tt.price)
		assert.Equal(t, tt.wantOK, ok, tt.price)
		assert.Equal(t, tt.wantPlan, plan, tt.price)
		assert.Equal(t, tt.wantCycle, cycle, tt.price)
	}
}

func TestPlanForPriceIgnoresUnconfiguredPrices(t *testing.T) {
	c := NewCatalog(config.PriceIDConfig{})
	_, _, ok := c.PlanForPrice("price_anything")
	assert.False(t, ok)
}

func TestMonthlyRevenueCents(t *testing.T) {
	c := testCatalog()

	assert.Equal(t, int64(2900), c.MonthlyRevenueCents("pro"))
	assert.Equal(t, int64(9900), c.MonthlyRevenueCents("BUSINESS"))
	assert.Equal(t, int64(2900), c.MonthlyRevenueCents("price_pro_month"))
	assert.Equal(t, int64(29000/12), c.MonthlyRevenueCents("price_pro_year"))
	assert.Equal(t, int64(0), c.MonthlyRevenueCents("free"))
	assert.Equal(t, int64(0), c.MonthlyRevenueCents("price_other"))
}

func TestPriceConfigKeys(t *testing.T) {
	keys := testCatalog().PriceConfigKeys()
	assert.Equal(t, []string{
		"STRIPE_PRO_MONTHLY_PRICE_ID",
		"STRIPE_PRO_YEARLY_PRICE_ID",
		"STRIPE_BUSINESS_MONTHLY_PRICE_ID",
		"STRIPE_BUSINESS_YEARLY_PRICE_ID",
	}, keys)
}
