package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/prdbuilder/prdbuilder/app/models"
)

// workspaceRepository implements the WorkspaceRepository interface
type workspaceRepository struct {
	db *gorm.DB
}

// NewWorkspaceRepository creates a new workspace repository instance
func NewWorkspaceRepository(db *gorm.DB) WorkspaceRepository {
	return &workspaceRepository{db: db}
}

// CreateWithOwner creates the workspace and its owner membership in one transaction
func (r *workspaceRepository) CreateWithOwner(ctx context.Context, ws *models.Workspace, ownerID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ws.CreatedBy = ownerID
		if err := tx.Create(ws).Error; err != nil {
			return err
		}
		return tx.Create(&models.WorkspaceMember{
			WorkspaceID: ws.ID,
			UserID:      ownerID,
			Role:        models.WorkspaceRoleOwner,
		}).Error
	})
}

// GetByID retrieves a workspace by its ID
func (r *workspaceRepository) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	var ws models.Workspace
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ws).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}

// ListByUser returns the user's workspaces, oldest first
func (r *workspaceRepository) ListByUser(ctx context.Context, userID string) ([]WorkspaceWithRole, error) {
	var rows []WorkspaceWithRole
	err := r.db.WithContext(ctx).
		Table("workspaces").
		Select("workspaces.*, workspace_members.role AS role").
		Joins("JOIN workspace_members ON workspace_members.workspace_id = workspaces.id").
		Where("workspace_members.user_id = ?", userID).
		Order("workspaces.created_at ASC, workspaces.id ASC").
		Scan(&rows).Error
	return rows, err
}

// CountMemberships counts the workspaces the user belongs to
func (r *workspaceRepository) CountMemberships(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WorkspaceMember{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// GetMemberRole returns the user's role in the workspace or gorm.ErrRecordNotFound
func (r *workspaceRepository) GetMemberRole(ctx context.Context, workspaceID, userID string) (string, error) {
	var member models.WorkspaceMember
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		First(&member).Error
	if err != nil {
		return "", err
	}
	return member.Role, nil
}

// EarliestOwnedWorkspaceID returns the oldest workspace the user owns or gorm.ErrRecordNotFound
func (r *workspaceRepository) EarliestOwnedWorkspaceID(ctx context.Context, userID string) (string, error) {
	var ws models.Workspace
	err := r.db.WithContext(ctx).
		Joins("JOIN workspace_members ON workspace_members.workspace_id = workspaces.id").
		Where("workspace_members.user_id = ? AND workspace_members.role = ?", userID, models.WorkspaceRoleOwner).
		Order("workspaces.created_at ASC, workspaces.id ASC").
		First(&ws).Error
	if err != nil {
		return "", err
	}
	return ws.ID, nil
}
