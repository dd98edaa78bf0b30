package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prdbuilder/prdbuilder/app/repository"
	"github.com/prdbuilder/prdbuilder/internal/pkg/billing"
	"github.com/prdbuilder/prdbuilder/internal/pkg/cache"
	"github.com/prdbuilder/prdbuilder/internal/pkg/database"
	"github.com/prdbuilder/prdbuilder/internal/pkg/entitlements"
	"github.com/prdbuilder/prdbuilder/internal/pkg/middleware"
	"github.com/prdbuilder/prdbuilder/internal/pkg/router"
	"github.com/prdbuilder/prdbuilder/internal/pkg/statistics"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateServe(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if !cfg.StripeConfigured() {
			log.Warn().Msg("Stripe keys missing, billing endpoints will answer 503")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := database.SetupDatabase(cfg.DB); err != nil {
			return fmt.Errorf("database connect: %w", err)
		}
		db := database.GetDB()

		deps := router.Dependencies{Config: cfg, DB: db}

		var store cache.Store
		if cfg.Redis.Enabled {
			deps.Redis = cache.SetupCache(cfg.Redis)
			defer func() { _ = deps.Redis.Close() }()
			store = cache.NewRedisStore(deps.Redis)
		}

		verifier, err := middleware.NewTokenVerifier(ctx, cfg.Auth)
		if err != nil {
			return fmt.Errorf("auth setup: %w", err)
		}
		deps.Verifier = verifier

		repository.InitializeFactory(db)
		deps.Repos = repository.GetGlobalRepositories()

		catalog := entitlements.NewCatalog(cfg.Stripe.Prices)
		deps.Billing = newBillingService(catalog)
		deps.Stats = statistics.NewService(deps.Repos.BillingMetrics, catalog, store)

		app := fiber.New(fiber.Config{
			AppName:   "prdbuilder",
			BodyLimit: cfg.HTTP.BodyLimit,
		})
		router.InstallRouter(app, deps)

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", cfg.Addr()).Msg("Starting HTTP server")
			errCh <- app.Listen(cfg.Addr())
		}()

		select {
		case <-ctx.Done():
			log.Info().Msg("Signal received, shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server exited: %w", err)
			}
			return nil
		}

		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		return nil
	},
}

// newBillingService wires the Stripe provider only when a secret key is set;
// without one the service reports billing.ErrNotConfigured.
func newBillingService(catalog *entitlements.Catalog) *billing.Service {
	opts := billing.Options{
		Catalog:       catalog,
		AppURL:        cfg.AppURL(),
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}
	if cfg.Stripe.SecretKey != "" {
		opts.Provider = billing.NewStripeProvider(cfg.Stripe.SecretKey)
	}
	return billing.NewServiceFromDB(database.GetDB(), opts)
}
