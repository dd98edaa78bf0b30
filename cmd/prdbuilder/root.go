package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/prdbuilder/prdbuilder/internal/pkg/config"
	"github.com/prdbuilder/prdbuilder/internal/pkg/env"
	"github.com/prdbuilder/prdbuilder/internal/pkg/logging"
)

var (
	cfgPath string
	cfg     config.Config
	rootCmd = &cobra.Command{
		Use:           "prdbuilder",
		Short:         "PRD Builder billing backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			env.SetupEnvFile()

			loaded, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded

			format := cfg.Log.Format
			if cfg.IsDev() && (format == "" || format == "auto") {
				format = "console"
			}
			logging.Init(logging.Config{
				Format:    format,
				Level:     cfg.Log.Level,
				Component: cmd.Name(),
			})
			return nil
		},
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(archiveCmd)
}
