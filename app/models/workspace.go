package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	WorkspaceRoleOwner  = "owner"
	WorkspaceRoleAdmin  = "admin"
	WorkspaceRoleEditor = "editor"
	WorkspaceRoleViewer = "viewer"
)

// Workspace is the tenant boundary. Documents and the billing relationship
// belong to a workspace.
type Workspace struct {
	ID        string    `gorm:"size:36;primaryKey" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name" validate:"required,min=1,max=200"`
	CreatedBy string    `gorm:"size:64;not null;index" json:"created_by" validate:"required,max=64"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (w *Workspace) Validate() error {
	v := validator.New()
	return v.Struct(w)
}

// BeforeCreate assigns a UUID when none was set.
func (w *Workspace) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	return nil
}

// WorkspaceMember links a user to a workspace with a role.
type WorkspaceMember struct {
	WorkspaceID string    `gorm:"size:36;primaryKey" json:"workspace_id"`
	UserID      string    `gorm:"size:64;primaryKey;index:idx_workspace_members_user_role,priority:1" json:"user_id"`
	Role        string    `gorm:"size:16;not null;default:'viewer';index:idx_workspace_members_user_role,priority:2" json:"role"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
