package repository

import (
	"sync"

	"gorm.io/gorm"
)

var (
	globalRepos *Repositories
	reposOnce   sync.Once
)

// InitializeFactory builds the process-wide repositories. Later calls are no-ops.
func InitializeFactory(db *gorm.DB) {
	reposOnce.Do(func() {
		globalRepos = NewRepositories(db)
	})
}

// GetGlobalRepositories returns the repositories built by InitializeFactory.
func GetGlobalRepositories() *Repositories {
	if globalRepos == nil {
		panic("repositories not initialized, call InitializeFactory first")
	}
	return globalRepos
}
