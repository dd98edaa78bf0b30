package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prdbuilder/prdbuilder/app/repository"
	"github.com/prdbuilder/prdbuilder/internal/pkg/cache"
	"github.com/prdbuilder/prdbuilder/internal/pkg/database"
	"github.com/prdbuilder/prdbuilder/internal/pkg/entitlements"
	"github.com/prdbuilder/prdbuilder/internal/pkg/statistics"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot-metrics",
	Short: "Store today's billing metrics snapshot",
	Long:  "Computes subscription counts, MRR and churn and upserts them into billing_metrics_daily. Intended to run once a day from cron.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.SetupDatabase(cfg.DB); err != nil {
			return fmt.Errorf("database connect: %w", err)
		}
		db := database.GetDB()

		var store cache.Store
		if cfg.Redis.Enabled {
			client := cache.SetupCache(cfg.Redis)
			defer func() { _ = client.Close() }()
			store = cache.NewRedisStore(client)
		}

		repos := repository.NewRepositories(db)
		stats := statistics.NewService(repos.BillingMetrics, entitlements.NewCatalog(cfg.Stripe.Prices), store)

		row, err := stats.Snapshot(cmd.Context())
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		log.Info().
			Time("day", row.Day).
			Int64("active", row.ActiveSubscribers).
			Int64("mrr_cents", row.MRRCents).
			Msg("Snapshot complete")
		return nil
	},
}
