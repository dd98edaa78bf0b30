package controllers

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/app/models"
	"github.com/prdbuilder/prdbuilder/app/repository"
	"github.com/prdbuilder/prdbuilder/internal/pkg/billing"
)

// WorkspaceController bootstraps and lists the caller's workspaces.
type WorkspaceController struct {
	workspaces repository.WorkspaceRepository
	profiles   repository.UserProfileRepository
	validate   *validator.Validate
}

// NewWorkspaceController creates a workspace controller with repository dependencies.
func NewWorkspaceController(repos *repository.Repositories) *WorkspaceController {
	return &WorkspaceController{
		workspaces: repos.Workspace,
		profiles:   repos.UserProfile,
		validate:   newValidator(),
	}
}

type createWorkspaceRequest struct {
	Name string `json:"name" validate:"omitempty,max=200"`
}

// HandleCreate creates the caller's first workspace with the caller as owner.
func (wc *WorkspaceController) HandleCreate(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return respondError(c, err)
	}

	var req createWorkspaceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Request body must be JSON.")
		}
		if err := wc.validate.Struct(&req); err != nil {
			return badRequest(c, validationMessage(err))
		}
	}

	ctx := c.UserContext()
	if _, err := wc.profiles.GetOrCreate(ctx, user.UserID, user.Email); err != nil {
		log.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to record user profile")
	}

	count, err := wc.workspaces.CountMemberships(ctx, user.UserID)
	if err != nil {
		return respondError(c, err)
	}
	if count > 0 {
		return respondError(c, billing.ErrWorkspaceExists)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultWorkspaceName(user.Email)
	}
	ws := &models.Workspace{Name: name, CreatedBy: user.UserID}
	if err := ws.Validate(); err != nil {
		return badRequest(c, validationMessage(err))
	}
	if err := wc.workspaces.CreateWithOwner(ctx, ws, user.UserID); err != nil {
		return respondError(c, err)
	}

	log.Info().Str("user_id", user.UserID).Str("workspace_id", ws.ID).Msg("Workspace created")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"workspace": ws,
		"role":      models.WorkspaceRoleOwner,
	})
}

// HandleList returns the caller's workspaces with the caller's role.
func (wc *WorkspaceController) HandleList(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return respondError(c, err)
	}

	rows, err := wc.workspaces.ListByUser(c.UserContext(), user.UserID)
	if err != nil {
		return respondError(c, err)
	}
	if rows == nil {
		rows = []repository.WorkspaceWithRole{}
	}
	return c.JSON(fiber.Map{"workspaces": rows})
}

func defaultWorkspaceName(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return "My Workspace"
	}
	return local + "'s Workspace"
}
