package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prdbuilder/prdbuilder/internal/pkg/billing"
	"github.com/prdbuilder/prdbuilder/internal/pkg/database"
	"github.com/prdbuilder/prdbuilder/internal/pkg/eventarchive"
)

const dateLayout = "2006-01-02"

var archiveBefore string

var archiveCmd = &cobra.Command{
	Use:   "archive-events",
	Short: "Export journaled Stripe webhook events to S3",
	Long:  "Writes every stripe_events row received before the cutoff date (UTC, default today) as one JSON lines object to the configured bucket.",
	RunE: func(cmd *cobra.Command, args []string) error {
		before, err := parseCutoff(archiveBefore, time.Now())
		if err != nil {
			return err
		}
		if err := eventarchive.ValidateConfig(cfg.Archive); err != nil {
			return fmt.Errorf("invalid archive configuration: %w", err)
		}

		ctx := cmd.Context()
		client, err := eventarchive.NewS3Client(ctx, cfg.Archive)
		if err != nil {
			return fmt.Errorf("s3 client: %w", err)
		}

		if err := database.SetupDatabase(cfg.DB); err != nil {
			return fmt.Errorf("database connect: %w", err)
		}

		archiver := eventarchive.NewArchiver(billing.NewRepository(database.GetDB()), client, cfg.Archive.Prefix)
		result, err := archiver.Run(ctx, before)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		log.Info().
			Str("key", result.Key).
			Int("events", result.Events).
			Int("bytes", result.Bytes).
			Msg("Archive complete")
		return nil
	},
}

// parseCutoff turns a YYYY-MM-DD flag into midnight UTC; empty means today.
func parseCutoff(value string, now time.Time) (time.Time, error) {
	if value == "" {
		now = now.UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--before must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}

func init() {
	archiveCmd.Flags().StringVar(&archiveBefore, "before", "", "archive events received before this date (YYYY-MM-DD, UTC)")
}
