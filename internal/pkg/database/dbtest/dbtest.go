// Package dbtest opens throwaway sqlite databases for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/prdbuilder/prdbuilder/internal/pkg/config"
	"github.com/prdbuilder/prdbuilder/internal/pkg/database"
)

// New returns a migrated in-memory database private to the calling test.
// A single connection keeps the shared-cache database alive and serializes
// statements from concurrent goroutines.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(config.DatabaseConfig{
		Driver:       database.DriverSQLite,
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", name),
		AutoMigrate:  true,
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
