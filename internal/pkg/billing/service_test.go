package billing

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/prdbuilder/prdbuilder/app/models"
	"github.com/prdbuilder/prdbuilder/app/repository"
	"github.com/prdbuilder/prdbuilder/internal/pkg/config"
	"github.com/prdbuilder/prdbuilder/internal/pkg/database"
	"github.com/prdbuilder/prdbuilder/internal/pkg/database/dbtest"
	"github.com/prdbuilder/prdbuilder/internal/pkg/entitlements"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testAppURL        = "https://app.example.com"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeProvider) {
	t.Helper()
	db := dbtest.New(t)
	fp := newFakeProvider()
	svc := NewServiceFromDB(db, Options{
		Provider: fp,
		Catalog: entitlements.NewCatalog(config.PriceIDConfig{
			ProMonthly:      "price_pro_month",
			ProYearly:       "price_pro_year",
			BusinessMonthly: "price_biz_month",
			BusinessYearly:  "price_biz_year",
		}),
		AppURL:        testAppURL + "/",
		WebhookSecret: testWebhookSecret,
	})
	return svc, db, fp
}

func createWorkspace(t *testing.T, db *gorm.DB, userID string) string {
	t.Helper()
	ws := &models.Workspace{Name: userID + "'s Workspace"}
	require.NoError(t, repository.NewWorkspaceRepository(db).CreateWithOwner(context.Background(), ws, userID))
	return ws.ID
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestStartCheckout_CreatesCustomerOnly(t *testing.T) {
	svc, db, fp := newTestService(t)
	wsID := createWorkspace(t, db, "user-a")

	url, err := svc.StartCheckout(context.Background(), CheckoutRequest{
		UserID:       "user-a",
		Email:        "a@example.com",
		PriceID:      "price_pro_month",
		PlanID:       "Pro",
		BillingCycle: "monthly",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	var bc models.BillingCustomer
	require.NoError(t, db.First(&bc, "user_id = ?", "user-a").Error)
	assert.Equal(t, wsID, bc.WorkspaceID)
	require.True(t, bc.HasStripeCustomer())
	assert.Equal(t, "cus_test_1", *bc.StripeCustomerID)
	assert.Zero(t, countRows(t, db, &models.Subscription{}))

	require.Len(t, fp.checkouts, 1)
	in := fp.checkouts[0]
	assert.Equal(t, "cus_test_1", in.CustomerID)
	assert.Equal(t, testAppURL+"/billing?success=true", in.SuccessURL)
	assert.Equal(t, testAppURL+"/pricing?canceled=true", in.CancelURL)
	assert.Equal(t, map[string]string{
		MetadataUserID:       "user-a",
		MetadataPlanID:       "pro",
		MetadataBillingCycle: "monthly",
	}, in.Metadata)

	// A second checkout reuses the stored customer.
	_, err = svc.StartCheckout(context.Background(), CheckoutRequest{
		UserID: "user-a", PriceID: "price_pro_year", PlanID: "pro", BillingCycle: "yearly",
	})
	require.NoError(t, err)
	customers, checkouts := fp.calls()
	assert.Equal(t, 1, customers)
	assert.Equal(t, 2, checkouts)
}

func TestStartCheckout_NoWorkspace(t *testing.T) {
	svc, db, fp := newTestService(t)

	_, err := svc.StartCheckout(context.Background(), CheckoutRequest{
		UserID: "lonely", PriceID: "price_pro_month", PlanID: "pro", BillingCycle: "monthly",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoWorkspace)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))

	customers, checkouts := fp.calls()
	assert.Zero(t, customers)
	assert.Zero(t, checkouts)
	assert.Zero(t, countRows(t, db, &models.BillingCustomer{}))
}

func TestStartCheckout_RejectsProductID(t *testing.T) {
	svc, db, fp := newTestService(t)
	createWorkspace(t, db, "user-a")

	_, err := svc.StartCheckout(context.Background(), CheckoutRequest{
		UserID: "user-a", PriceID: "prod_123", PlanID: "pro", BillingCycle: "monthly",
	})
	var priceErr *InvalidPriceIDError
	require.ErrorAs(t, err, &priceErr)
	assert.Equal(t, "prod_123", priceErr.ReceivedID)
	assert.Equal(t, "price_xxxxx...", priceErr.ExpectedFormat())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))

	customers, checkouts := fp.calls()
	assert.Zero(t, customers)
	assert.Zero(t, checkouts)
}

func TestStartCheckout_Validation(t *testing.T) {
	svc, db, _ := newTestService(t)
	createWorkspace(t, db, "user-a")

	tests := []CheckoutRequest{
		{UserID: "user-a", PriceID: "price_pro_month", PlanID: "pro", BillingCycle: "weekly"},
		{UserID: "user-a", PriceID: "price_pro_month", PlanID: "  ", BillingCycle: "monthly"},
	}
	for _, req := range tests {
		_, err := svc.StartCheckout(context.Background(), req)
		assert.ErrorIs(t, err, ErrValidation, "%+v", req)
	}
}

func TestStartCheckout_PlanIDIsMetadataOnly(t *testing.T) {
	svc, db, fp := newTestService(t)
	createWorkspace(t, db, "user-a")

	_, err := svc.StartCheckout(context.Background(), CheckoutRequest{
		UserID: "user-a", PriceID: "price_pro_month", PlanID: "enterprise", BillingCycle: "monthly",
	})
	require.NoError(t, err)
	require.Len(t, fp.checkouts, 1)
	assert.Equal(t, "enterprise", fp.checkouts[0].Metadata[MetadataPlanID])
	assert.Equal(t, "price_pro_month", fp.checkouts[0].PriceID)
}

func TestStartCheckout_UnknownPriceAtProvider(t *testing.T) {
	svc, db, fp := newTestService(t)
	createWorkspace(t, db, "user-a")
	fp.checkoutErr = &ProviderError{Op: "create checkout session", Code: ProviderCodeNoSuchPrice, Err: errors.New("No such price: 'price_gone'")}

	_, err := svc.StartCheckout(context.Background(), CheckoutRequest{
		UserID: "user-a", PriceID: "price_gone", PlanID: "pro", BillingCycle: "monthly",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))

	var billingErr *Error
	require.ErrorAs(t, err, &billingErr)
	assert.Contains(t, billingErr.Message, "price_gone")
	assert.Contains(t, billingErr.Message, "STRIPE_PRO_MONTHLY_PRICE_ID")
}

func TestStartCheckout_ProviderFailure(t *testing.T) {
	svc, db, fp := newTestService(t)
	createWorkspace(t, db, "user-a")
	fp.checkoutErr = &ProviderError{Op: "create checkout session", Code: ProviderCodeAPI, Err: errors.New("boom")}

	_, err := svc.StartCheckout(context.Background(), CheckoutRequest{
		UserID: "user-a", PriceID: "price_pro_month", PlanID: "pro", BillingCycle: "monthly",
	})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(err))
}

func TestGetOrCreateCustomer_Concurrent(t *testing.T) {
	svc, db, _ := newTestService(t)
	createWorkspace(t, db, "user-a")

	const callers = 4
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = svc.GetOrCreateCustomer(context.Background(), CustomerInput{UserID: "user-a"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, int64(1), countRows(t, db, &models.BillingCustomer{}))

	var bc models.BillingCustomer
	require.NoError(t, db.First(&bc, "user_id = ?", "user-a").Error)
	assert.Equal(t, ids[0], *bc.StripeCustomerID)
}

func TestGetOrCreateCustomer_BillsEarliestOwnedWorkspace(t *testing.T) {
	svc, db, _ := newTestService(t)
	first := createWorkspace(t, db, "user-a")
	require.NoError(t, db.Model(&models.Workspace{}).Where("id = ?", first).
		Update("created_at", time.Now().Add(-time.Hour)).Error)
	createWorkspace(t, db, "user-a")

	_, err := svc.GetOrCreateCustomer(context.Background(), CustomerInput{UserID: "user-a"})
	require.NoError(t, err)

	var bc models.BillingCustomer
	require.NoError(t, db.First(&bc, "user_id = ?", "user-a").Error)
	assert.Equal(t, first, bc.WorkspaceID)
}

func TestGetOrCreateCustomer_CustomerIDTakenByAnotherUser(t *testing.T) {
	svc, db, _ := newTestService(t)
	createWorkspace(t, db, "user-a")
	taken := "cus_test_1"
	require.NoError(t, db.Create(&models.BillingCustomer{
		UserID: "user-b", WorkspaceID: "ws-b", StripeCustomerID: &taken,
	}).Error)

	_, err := svc.GetOrCreateCustomer(context.Background(), CustomerInput{UserID: "user-a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	assert.True(t, database.IsUniqueViolation(err))

	var bc models.BillingCustomer
	assert.ErrorIs(t, db.First(&bc, "user_id = ?", "user-a").Error, gorm.ErrRecordNotFound)
}

func TestLinkCustomer_SameUserIsIdempotent(t *testing.T) {
	svc, db, _ := newTestService(t)
	wsID := createWorkspace(t, db, "user-a")
	ctx := context.Background()

	first, err := svc.repo.LinkCustomer(ctx, "user-a", wsID, "cus_same")
	require.NoError(t, err)
	again, err := svc.repo.LinkCustomer(ctx, "user-a", wsID, "cus_same")
	require.NoError(t, err)
	assert.Equal(t, *first.StripeCustomerID, *again.StripeCustomerID)

	_, err = svc.repo.LinkCustomer(ctx, "user-b", wsID, "cus_same")
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestUpsertSubscription_Idempotent(t *testing.T) {
	svc, db, _ := newTestService(t)
	wsID := createWorkspace(t, db, "user-a")
	end := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)

	state := SubscriptionState{
		WorkspaceID:          wsID,
		StripeSubscriptionID: "sub_1",
		PlanID:               "pro",
		Status:               "active",
		CurrentPeriodEnd:     &end,
	}
	first, err := svc.UpsertSubscription(context.Background(), state)
	require.NoError(t, err)
	second, err := svc.UpsertSubscription(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), countRows(t, db, &models.Subscription{}))

	state.Status = "past_due"
	state.PlanID = "business"
	updated, err := svc.UpsertSubscription(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, first.ID, updated.ID)
	assert.Equal(t, "past_due", updated.Status)
	assert.Equal(t, "business", updated.PlanID)
	require.NotNil(t, updated.CurrentPeriodEnd)
	assert.True(t, end.Equal(updated.CurrentPeriodEnd.UTC()))
}

func TestUpsertSubscription_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.UpsertSubscription(context.Background(), SubscriptionState{StripeSubscriptionID: "sub_1"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.UpsertSubscription(context.Background(), SubscriptionState{WorkspaceID: "ws"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestMarkStatus_KeepsCanceled(t *testing.T) {
	svc, db, _ := newTestService(t)
	wsID := createWorkspace(t, db, "user-a")
	ctx := context.Background()

	_, err := svc.UpsertSubscription(ctx, SubscriptionState{WorkspaceID: wsID, StripeSubscriptionID: "sub_1", PlanID: "pro", Status: "active"})
	require.NoError(t, err)

	ok, err := svc.MarkCanceled(ctx, "sub_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.MarkStatus(ctx, "sub_1", "active")
	require.NoError(t, err)
	assert.False(t, ok)

	var sub models.Subscription
	require.NoError(t, db.First(&sub, "stripe_subscription_id = ?", "sub_1").Error)
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)

	ok, err = svc.MarkStatus(ctx, "sub_unknown", "active")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), countRows(t, db, &models.Subscription{}))
}

func TestCreatePortalSession(t *testing.T) {
	svc, db, fp := newTestService(t)
	createWorkspace(t, db, "user-a")
	ctx := context.Background()

	_, err := svc.CreatePortalSession(ctx, "user-a")
	assert.ErrorIs(t, err, ErrNoBillingCustomer)
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))

	customerID, err := svc.GetOrCreateCustomer(ctx, CustomerInput{UserID: "user-a"})
	require.NoError(t, err)

	url, err := svc.CreatePortalSession(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example.com/p/"+customerID, url)
	assert.Equal(t, []string{customerID + "|" + testAppURL + "/billing"}, fp.portals)
}

func TestCurrentSubscription(t *testing.T) {
	svc, db, _ := newTestService(t)
	wsID := createWorkspace(t, db, "user-a")
	ctx := context.Background()

	_, err := svc.CurrentSubscription(ctx, "user-a", wsID)
	assert.ErrorIs(t, err, ErrNoSubscription)

	_, err = svc.CurrentSubscription(ctx, "intruder", wsID)
	assert.ErrorIs(t, err, ErrNotWorkspaceMember)
	assert.Equal(t, http.StatusForbidden, HTTPStatus(err))

	_, err = svc.UpsertSubscription(ctx, SubscriptionState{WorkspaceID: wsID, StripeSubscriptionID: "sub_old", PlanID: "pro", Status: "canceled"})
	require.NoError(t, err)
	_, err = svc.UpsertSubscription(ctx, SubscriptionState{WorkspaceID: wsID, StripeSubscriptionID: "sub_new", PlanID: "business", Status: "trialing"})
	require.NoError(t, err)

	sub, err := svc.CurrentSubscription(ctx, "user-a", "")
	require.NoError(t, err)
	assert.Equal(t, "sub_new", sub.StripeSubscriptionID)
}

func TestSyncFromProvider(t *testing.T) {
	svc, db, fp := newTestService(t)
	wsID := createWorkspace(t, db, "user-a")
	ctx := context.Background()

	_, err := svc.SyncFromProvider(ctx, "user-a")
	assert.ErrorIs(t, err, ErrNoBillingCustomer)

	_, err = svc.GetOrCreateCustomer(ctx, CustomerInput{UserID: "user-a"})
	require.NoError(t, err)

	end := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	fp.listed = []ProviderSubscription{
		{ID: "sub_1", Status: "active", PriceID: "price_biz_year", CurrentPeriodEnd: &end},
		{ID: "", Status: "active", PriceID: "price_pro_month"},
		{ID: "sub_2", Status: "canceled", PriceID: "price_unknown"},
	}

	result, err := svc.SyncFromProvider(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Current)
	require.Len(t, result.Subscriptions, 2)

	var subs []models.Subscription
	require.NoError(t, db.Order("stripe_subscription_id").Find(&subs).Error)
	require.Len(t, subs, 2)
	assert.Equal(t, wsID, subs[0].WorkspaceID)
	assert.Equal(t, "business", subs[0].PlanID)
	assert.Equal(t, "price_unknown", subs[1].PlanID)
	assert.Equal(t, "canceled", subs[1].Status)

	// Syncing again converges on the same rows.
	_, err = svc.SyncFromProvider(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), countRows(t, db, &models.Subscription{}))
}

func TestSyncFromProvider_OverwritesStaleRowAndAddsNew(t *testing.T) {
	svc, db, fp := newTestService(t)
	wsID := createWorkspace(t, db, "user-a")
	ctx := context.Background()

	_, err := svc.GetOrCreateCustomer(ctx, CustomerInput{UserID: "user-a"})
	require.NoError(t, err)
	_, err = svc.UpsertSubscription(ctx, SubscriptionState{
		WorkspaceID: wsID, StripeSubscriptionID: "sub_old", PlanID: "pro", Status: "trialing",
	})
	require.NoError(t, err)

	fp.listed = []ProviderSubscription{
		{ID: "sub_old", Status: "past_due", PriceID: "price_pro_month"},
		{ID: "sub_new", Status: "active", PriceID: "price_biz_month"},
	}

	result, err := svc.SyncFromProvider(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Synced)
	assert.Zero(t, result.Failed)
	assert.Equal(t, int64(2), countRows(t, db, &models.Subscription{}))

	var old models.Subscription
	require.NoError(t, db.First(&old, "stripe_subscription_id = ?", "sub_old").Error)
	assert.Equal(t, "past_due", old.Status)
	assert.Equal(t, "pro", old.PlanID)
	assert.Equal(t, wsID, old.WorkspaceID)

	var added models.Subscription
	require.NoError(t, db.First(&added, "stripe_subscription_id = ?", "sub_new").Error)
	assert.Equal(t, "active", added.Status)
	assert.Equal(t, "business", added.PlanID)
	assert.Equal(t, wsID, added.WorkspaceID)
}

func TestSyncFromProvider_ProviderFailure(t *testing.T) {
	svc, db, fp := newTestService(t)
	createWorkspace(t, db, "user-a")
	_, err := svc.GetOrCreateCustomer(context.Background(), CustomerInput{UserID: "user-a"})
	require.NoError(t, err)

	fp.listErr = &ProviderError{Op: "list subscriptions", Code: ProviderCodeAPI, Err: errors.New("timeout")}
	_, err = svc.SyncFromProvider(context.Background(), "user-a")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestService_NotConfigured(t *testing.T) {
	db := dbtest.New(t)
	createWorkspace(t, db, "user-a")
	svc := NewServiceFromDB(db, Options{})

	_, err := svc.GetOrCreateCustomer(context.Background(), CustomerInput{UserID: "user-a"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))

	_, err = svc.Ingest(context.Background(), []byte(`{}`), "sig")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
