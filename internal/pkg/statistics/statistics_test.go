package statistics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/prdbuilder/prdbuilder/app/models"
	"github.com/prdbuilder/prdbuilder/app/repository"
	"github.com/prdbuilder/prdbuilder/internal/pkg/cache"
	"github.com/prdbuilder/prdbuilder/internal/pkg/config"
	"github.com/prdbuilder/prdbuilder/internal/pkg/database/dbtest"
	"github.com/prdbuilder/prdbuilder/internal/pkg/entitlements"
	"github.com/prdbuilder/prdbuilder/internal/pkg/metrics"
)

type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	gets   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.values[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) { return "", errors.New("down") }
func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("down")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("down") }

func seedSubscriptions(t *testing.T, db *gorm.DB) {
	t.Helper()
	rows := []models.Subscription{
		{WorkspaceID: "ws-1", StripeSubscriptionID: "sub_1", PlanID: "pro", Status: models.SubscriptionStatusActive},
		{WorkspaceID: "ws-2", StripeSubscriptionID: "sub_2", PlanID: "price_biz_year", Status: models.SubscriptionStatusActive},
		{WorkspaceID: "ws-3", StripeSubscriptionID: "sub_3", PlanID: "business", Status: models.SubscriptionStatusTrialing},
		{WorkspaceID: "ws-4", StripeSubscriptionID: "sub_4", PlanID: "pro", Status: models.SubscriptionStatusCanceled},
		{WorkspaceID: "ws-5", StripeSubscriptionID: "sub_5", PlanID: "pro", Status: models.SubscriptionStatusPastDue},
	}
	require.NoError(t, db.Create(&rows).Error)
	require.NoError(t, db.Model(&models.Subscription{}).Where("stripe_subscription_id = ?", "sub_4").
		Update("created_at", time.Now().Add(-60*24*time.Hour)).Error)
}

func newTestService(t *testing.T, store cache.Store) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)
	catalog := entitlements.NewCatalog(config.PriceIDConfig{BusinessYearly: "price_biz_year"})
	return NewService(repository.NewBillingMetricsRepository(db), catalog, store), db
}

func TestCompute(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedSubscriptions(t, db)

	m, err := svc.Compute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), m.Active)
	assert.Equal(t, int64(1), m.Trialing)
	assert.Equal(t, int64(1), m.PastDue)
	assert.Equal(t, int64(1), m.Canceled)
	assert.Equal(t, int64(4), m.New)
	// pro monthly 2900 + business yearly 99000/12
	assert.Equal(t, int64(2900+8250), m.MRRCents)
	assert.Equal(t, m.MRRCents*12, m.ARRCents)
	assert.Equal(t, m.MRRCents/3, m.ARPACents)
	assert.Equal(t, 25.0, m.ChurnRate)
}

func TestCompute_StatusGaugeFollowsMovedRows(t *testing.T) {
	svc, db := newTestService(t, nil)
	seedSubscriptions(t, db)

	_, err := svc.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SubscriptionsByStatus.WithLabelValues(models.SubscriptionStatusPastDue)))

	require.NoError(t, db.Model(&models.Subscription{}).Where("stripe_subscription_id = ?", "sub_5").
		Update("status", models.SubscriptionStatusActive).Error)

	_, err = svc.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.SubscriptionsByStatus.WithLabelValues(models.SubscriptionStatusPastDue)))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.SubscriptionsByStatus.WithLabelValues(models.SubscriptionStatusActive)))
	assert.Equal(t, 5, testutil.CollectAndCount(metrics.SubscriptionsByStatus))
}

func TestCompute_Empty(t *testing.T) {
	svc, _ := newTestService(t, nil)

	m, err := svc.Compute(context.Background())
	require.NoError(t, err)
	assert.Zero(t, m.MRRCents)
	assert.Zero(t, m.ChurnRate)
	assert.Zero(t, m.ARPACents)
}

func TestReport_Cached(t *testing.T) {
	store := newMemoryStore()
	svc, db := newTestService(t, store)
	seedSubscriptions(t, db)
	ctx := context.Background()

	first, err := svc.Report(ctx)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	// New rows are not visible until the cache expires or is invalidated.
	require.NoError(t, db.Create(&models.Subscription{WorkspaceID: "ws-6", StripeSubscriptionID: "sub_6", PlanID: "pro", Status: "active"}).Error)
	second, err := svc.Report(ctx)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Metrics.Active, second.Metrics.Active)

	svc.Invalidate(ctx)
	third, err := svc.Report(ctx)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, int64(3), third.Metrics.Active)
}

func TestReport_CacheFailureFallsBack(t *testing.T) {
	svc, db := newTestService(t, failingStore{})
	seedSubscriptions(t, db)

	r, err := svc.Report(context.Background())
	require.NoError(t, err)
	assert.False(t, r.Cached)
	assert.Equal(t, int64(2), r.Metrics.Active)
}

func TestSnapshot(t *testing.T) {
	store := newMemoryStore()
	svc, db := newTestService(t, store)
	seedSubscriptions(t, db)
	ctx := context.Background()

	_, err := svc.Report(ctx)
	require.NoError(t, err)

	row, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, row.Day.Hour())
	assert.Equal(t, int64(2), row.ActiveSubscribers)

	// Snapshotting twice on the same day replaces the row.
	require.NoError(t, db.Model(&models.Subscription{}).Where("stripe_subscription_id = ?", "sub_3").
		Update("status", models.SubscriptionStatusActive).Error)
	_, err = svc.Snapshot(ctx)
	require.NoError(t, err)

	var rows []models.BillingMetricsDaily
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].ActiveSubscribers)

	r, err := svc.Report(ctx)
	require.NoError(t, err)
	assert.False(t, r.Cached)
	require.Len(t, r.History, 1)
}
