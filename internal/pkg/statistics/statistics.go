package statistics

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/app/models"
	"github.com/prdbuilder/prdbuilder/app/repository"
	"github.com/prdbuilder/prdbuilder/internal/pkg/cache"
	"github.com/prdbuilder/prdbuilder/internal/pkg/entitlements"
	"github.com/prdbuilder/prdbuilder/internal/pkg/metrics"
)

const (
	CacheKeyBillingReport = "statistics:billing:report"
	CacheExpiration       = 5 * time.Minute

	historyDays   = 30
	newSubsWindow = 30 * 24 * time.Hour
)

// BillingMetrics are the subscription KPIs shown on the admin dashboard.
// Amounts are in cents; ChurnRate is a percentage.
type BillingMetrics struct {
	Active     int64     `json:"active"`
	Trialing   int64     `json:"trialing"`
	PastDue    int64     `json:"past_due"`
	Canceled   int64     `json:"canceled"`
	New        int64     `json:"new_last_30_days"`
	ChurnRate  float64   `json:"churn_rate"`
	MRRCents   int64     `json:"mrr_cents"`
	ARRCents   int64     `json:"arr_cents"`
	ARPACents  int64     `json:"arpa_cents"`
	ComputedAt time.Time `json:"computed_at"`
}

// Report bundles the live metrics with the recent daily snapshots.
type Report struct {
	Metrics BillingMetrics               `json:"metrics"`
	History []models.BillingMetricsDaily `json:"history"`
	Cached  bool                         `json:"cached"`
}

// Service computes billing metrics. The cache store is optional.
type Service struct {
	repo    repository.BillingMetricsRepository
	catalog *entitlements.Catalog
	cache   cache.Store
	now     func() time.Time
}

// NewService creates a statistics service. store may be nil.
func NewService(repo repository.BillingMetricsRepository, catalog *entitlements.Catalog, store cache.Store) *Service {
	return &Service{repo: repo, catalog: catalog, cache: store, now: time.Now}
}

// Compute reads the subscriptions table and derives the current metrics.
func (s *Service) Compute(ctx context.Context) (*BillingMetrics, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	newSubs, err := s.repo.CountCreatedSince(ctx, now.Add(-newSubsWindow))
	if err != nil {
		return nil, err
	}
	planIDs, err := s.repo.ListPlanIDsByStatus(ctx, models.SubscriptionStatusActive)
	if err != nil {
		return nil, err
	}

	m := &BillingMetrics{
		Active:     counts[models.SubscriptionStatusActive],
		Trialing:   counts[models.SubscriptionStatusTrialing],
		PastDue:    counts[models.SubscriptionStatusPastDue],
		Canceled:   counts[models.SubscriptionStatusCanceled],
		New:        newSubs,
		ComputedAt: now.UTC(),
	}
	for _, planID := range planIDs {
		m.MRRCents += s.catalog.MonthlyRevenueCents(planID)
	}
	m.ARRCents = m.MRRCents * 12

	if total := m.Active + m.Trialing + m.Canceled; total > 0 {
		m.ChurnRate = round2(float64(m.Canceled) / float64(total) * 100)
	}
	if paying := m.Active + m.Trialing; paying > 0 {
		m.ARPACents = m.MRRCents / paying
	}

	publishStatusGauge(counts)
	return m, nil
}

var knownStatuses = []string{
	models.SubscriptionStatusActive,
	models.SubscriptionStatusTrialing,
	models.SubscriptionStatusPastDue,
	models.SubscriptionStatusCanceled,
	models.SubscriptionStatusIncomplete,
}

// publishStatusGauge replaces every status series so emptied buckets read 0.
func publishStatusGauge(counts map[string]int64) {
	metrics.SubscriptionsByStatus.Reset()
	for _, status := range knownStatuses {
		metrics.SubscriptionsByStatus.WithLabelValues(status).Set(float64(counts[status]))
	}
	for status, n := range counts {
		metrics.SubscriptionsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// Report returns the metrics and history, served from the cache when a fresh
// copy exists. Cache failures fall back to computing.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, CacheKeyBillingReport)
		switch {
		case err == nil:
			var r Report
			if jsonErr := json.Unmarshal([]byte(raw), &r); jsonErr == nil {
				r.Cached = true
				return &r, nil
			}
		case !errors.Is(err, cache.ErrMiss):
			log.Warn().Err(err).Msg("Billing report cache read failed")
		}
	}

	m, err := s.Compute(ctx)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListDaily(ctx, historyDays)
	if err != nil {
		return nil, err
	}
	r := &Report{Metrics: *m, History: history}

	if s.cache != nil {
		if raw, err := json.Marshal(r); err == nil {
			if err := s.cache.Set(ctx, CacheKeyBillingReport, string(raw), CacheExpiration); err != nil {
				log.Warn().Err(err).Msg("Billing report cache write failed")
			}
		}
	}
	return r, nil
}

// Snapshot stores today's metrics in billing_metrics_daily, replacing an
// earlier snapshot of the same day, and drops the cached report.
func (s *Service) Snapshot(ctx context.Context) (*models.BillingMetricsDaily, error) {
	m, err := s.Compute(ctx)
	if err != nil {
		return nil, err
	}

	row := &models.BillingMetricsDaily{
		Day:               truncateDay(m.ComputedAt),
		MRRCents:          m.MRRCents,
		ActiveSubscribers: m.Active,
		Trials:            m.Trialing,
		ChurnRate:         m.ChurnRate,
		ARPACents:         m.ARPACents,
		NewSubs:           m.New,
		Cancels:           m.Canceled,
	}
	if err := s.repo.UpsertDaily(ctx, row); err != nil {
		return nil, err
	}
	s.Invalidate(ctx)

	log.Info().
		Time("day", row.Day).
		Int64("mrr_cents", row.MRRCents).
		Int64("active", row.ActiveSubscribers).
		Msg("Billing metrics snapshot stored")
	return row, nil
}

// Invalidate drops the cached report.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, CacheKeyBillingReport); err != nil {
		log.Warn().Err(err).Msg("Billing report cache delete failed")
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
