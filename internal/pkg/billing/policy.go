package billing

import (
	"context"

	"github.com/prdbuilder/prdbuilder/internal/pkg/database"
)

// WorkspaceDirectory is the workspace lookup the billing service needs.
type WorkspaceDirectory interface {
	EarliestOwnedWorkspaceID(ctx context.Context, userID string) (string, error)
	GetMemberRole(ctx context.Context, workspaceID, userID string) (string, error)
}

// WorkspacePolicy decides which workspace a user's billing relationship
// belongs to. It returns ErrNoWorkspace when the user has none.
type WorkspacePolicy interface {
	SelectBillingWorkspace(ctx context.Context, userID string) (string, error)
}

// EarliestOwnedWorkspace bills the oldest workspace the user owns. Users
// owning several workspaces are billed on the first one they created.
type EarliestOwnedWorkspace struct {
	Workspaces WorkspaceDirectory
}

func (p EarliestOwnedWorkspace) SelectBillingWorkspace(ctx context.Context, userID string) (string, error) {
	id, err := p.Workspaces.EarliestOwnedWorkspaceID(ctx, userID)
	if database.IsNotFound(err) {
		return "", ErrNoWorkspace
	}
	if err != nil {
		return "", persistenceError("select billing workspace", err)
	}
	return id, nil
}
