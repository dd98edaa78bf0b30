package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/internal/pkg/config"
	"github.com/prdbuilder/prdbuilder/internal/pkg/database"
	"github.com/prdbuilder/prdbuilder/internal/pkg/env"
	"github.com/prdbuilder/prdbuilder/internal/pkg/logging"
)

func main() {
	// Load environment variables from .env
	env.SetupEnvFile()

	cfgPath := flag.String("config", "", "path to YAML config file")
	dir := flag.String("dir", env.GetEnv("MIGRATIONS_DIR", "migrations"), "directory holding the mysql/ and postgres/ migration sets")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}
	command := flag.Arg(0)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level, Component: "migrate"})

	sourceURL, dbURL, err := migrationURLs(cfg.DB, *dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}
	log.Info().Str("driver", cfg.DB.Driver).Str("source", sourceURL).Msg("Connecting to database")

	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize migrations")
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Error().AnErr("source", sourceErr).AnErr("database", dbErr).Msg("Failed to close migration resources")
		}
	}()

	switch command {
	case "up":
		err := m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Info().Msg("No changes: database is up to date")
		case err != nil:
			log.Fatal().Err(err).Msg("Failed to run migrations")
		default:
			log.Info().Msg("Migrations applied")
		}

	case "down":
		// Roll back the last migration only
		if err := m.Steps(-1); err != nil {
			log.Fatal().Err(err).Msg("Failed to roll back the last migration")
		}
		log.Info().Msg("Rolled back the last migration")

	case "goto":
		if flag.NArg() < 2 {
			log.Fatal().Msg("goto needs a version number")
		}
		version, err := strconv.ParseUint(flag.Arg(1), 10, 64)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid version number")
		}
		err = m.Migrate(uint(version))
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Info().Uint64("version", version).Msg("No changes: database is already at this version")
		case err != nil:
			log.Fatal().Err(err).Uint64("version", version).Msg("Failed to migrate")
		default:
			log.Info().Uint64("version", version).Msg("Migrated")
		}

	case "status":
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			log.Info().Msg("No migrations applied yet")
		case err != nil:
			log.Fatal().Err(err).Msg("Failed to read migration version")
		default:
			log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

// migrationURLs returns the golang-migrate source and database URLs for the
// configured driver.
func migrationURLs(cfg config.DatabaseConfig, dir string) (string, string, error) {
	if cfg.DSN == "" {
		return "", "", errors.New("db.dsn (DATABASE_URL) is required")
	}
	dir = strings.TrimRight(dir, "/")

	switch cfg.Driver {
	case database.DriverMySQL, "":
		dsn := cfg.DSN
		if !strings.Contains(dsn, "multiStatements=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "multiStatements=true"
		}
		return "file://" + dir + "/mysql", "mysql://" + dsn, nil
	case database.DriverPostgres:
		dsn := cfg.DSN
		for _, scheme := range []string{"postgres://", "postgresql://"} {
			dsn = strings.TrimPrefix(dsn, scheme)
		}
		return "file://" + dir + "/postgres", "pgx5://" + dsn, nil
	default:
		return "", "", fmt.Errorf("migrations are not available for driver %q", cfg.Driver)
	}
}

func printUsage() {
	fmt.Println("Usage: migrate [-config file] [-dir migrations] <command>")
	fmt.Println("Commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - show the current migration version")
}
