package repository

import (
	"context"
	"time"

	"github.com/prdbuilder/prdbuilder/app/models"
	"gorm.io/gorm"
)

// WorkspaceRepository defines the interface for workspace and membership operations
type WorkspaceRepository interface {
	CreateWithOwner(ctx context.Context, ws *models.Workspace, ownerID string) error
	GetByID(ctx context.Context, id string) (*models.Workspace, error)
	ListByUser(ctx context.Context, userID string) ([]WorkspaceWithRole, error)
	CountMemberships(ctx context.Context, userID string) (int64, error)
	GetMemberRole(ctx context.Context, workspaceID, userID string) (string, error)
	EarliestOwnedWorkspaceID(ctx context.Context, userID string) (string, error)
}

// UserProfileRepository defines the interface for user profile operations
type UserProfileRepository interface {
	GetOrCreate(ctx context.Context, userID, email string) (*models.UserProfile, error)
	IsAppAdmin(ctx context.Context, userID string) (bool, error)
}

// BillingMetricsRepository defines the aggregate queries behind admin billing metrics
type BillingMetricsRepository interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
	ListPlanIDsByStatus(ctx context.Context, statuses ...string) ([]string, error)
	UpsertDaily(ctx context.Context, row *models.BillingMetricsDaily) error
	ListDaily(ctx context.Context, limit int) ([]models.BillingMetricsDaily, error)
}

// WorkspaceWithRole is a workspace together with the caller's role in it
type WorkspaceWithRole struct {
	models.Workspace
	Role string `json:"role"`
}

// Repositories struct holds all repository instances
type Repositories struct {
	Workspace      WorkspaceRepository
	UserProfile    UserProfileRepository
	BillingMetrics BillingMetricsRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Workspace:      NewWorkspaceRepository(db),
		UserProfile:    NewUserProfileRepository(db),
		BillingMetrics: NewBillingMetricsRepository(db),
	}
}
