package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/prdbuilder/prdbuilder/app/models"
	"github.com/prdbuilder/prdbuilder/app/repository"
	"github.com/prdbuilder/prdbuilder/internal/pkg/config"
	"github.com/prdbuilder/prdbuilder/internal/pkg/constants"
	"github.com/prdbuilder/prdbuilder/internal/pkg/database"
	"github.com/prdbuilder/prdbuilder/internal/pkg/entitlements"
)

// Service keeps local billing state consistent with the payment provider.
// Checkout completion, webhooks and manual sync all write subscriptions
// through UpsertSubscription.
type Service struct {
	repo          Repository
	workspaces    WorkspaceDirectory
	provider      Provider
	catalog       *entitlements.Catalog
	policy        WorkspacePolicy
	appURL        string
	webhookSecret string
	now           func() time.Time
}

// Options configures a Service. Policy defaults to EarliestOwnedWorkspace.
type Options struct {
	Provider      Provider
	Catalog       *entitlements.Catalog
	Policy        WorkspacePolicy
	AppURL        string
	WebhookSecret string
}

// NewService creates a billing service from injected dependencies.
func NewService(repo Repository, workspaces WorkspaceDirectory, opts Options) *Service {
	if opts.Catalog == nil {
		opts.Catalog = entitlements.NewCatalog(config.PriceIDConfig{})
	}
	if opts.Policy == nil {
		opts.Policy = EarliestOwnedWorkspace{Workspaces: workspaces}
	}
	return &Service{
		repo:          repo,
		workspaces:    workspaces,
		provider:      opts.Provider,
		catalog:       opts.Catalog,
		policy:        opts.Policy,
		appURL:        strings.TrimRight(opts.AppURL, "/"),
		webhookSecret: strings.TrimSpace(opts.WebhookSecret),
		now:           time.Now,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts Options) *Service {
	return NewService(NewRepository(db), repository.NewWorkspaceRepository(db), opts)
}

// Catalog returns the plan catalog used for plan resolution.
func (s *Service) Catalog() *entitlements.Catalog {
	return s.catalog
}

// CreatePortalSession returns the URL of a hosted self-service session for
// the user's billing customer.
func (s *Service) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	bc, err := s.requireBillingCustomer(ctx, userID)
	if err != nil {
		return "", err
	}
	if s.provider == nil {
		return "", ErrNotConfigured
	}

	url, err := s.provider.CreatePortalSession(ctx, *bc.StripeCustomerID, s.appURL+constants.BillingPage)
	if err != nil {
		return "", upstreamError(err)
	}
	return url, nil
}

// CurrentSubscription returns the workspace's most recently updated
// non-canceled subscription. An empty workspaceID selects the user's billing
// workspace. The user must be a member of the workspace.
func (s *Service) CurrentSubscription(ctx context.Context, userID, workspaceID string) (*models.Subscription, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		id, err := s.billingWorkspaceOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		workspaceID = id
	}

	if _, err := s.workspaces.GetMemberRole(ctx, workspaceID, userID); err != nil {
		if database.IsNotFound(err) {
			return nil, ErrNotWorkspaceMember
		}
		return nil, persistenceError("check workspace membership", err)
	}

	sub, err := s.repo.FindCurrentSubscription(ctx, workspaceID)
	if database.IsNotFound(err) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, persistenceError("find current subscription", err)
	}
	return sub, nil
}

func (s *Service) billingWorkspaceOf(ctx context.Context, userID string) (string, error) {
	bc, err := s.repo.FindCustomerByUser(ctx, userID)
	if err == nil {
		return bc.WorkspaceID, nil
	}
	if !database.IsNotFound(err) {
		return "", persistenceError("find billing customer", err)
	}
	id, err := s.policy.SelectBillingWorkspace(ctx, userID)
	if errors.Is(err, ErrNoWorkspace) {
		return "", ErrNoSubscription
	}
	return id, err
}

func (s *Service) requireBillingCustomer(ctx context.Context, userID string) (*models.BillingCustomer, error) {
	bc, err := s.repo.FindCustomerByUser(ctx, strings.TrimSpace(userID))
	if database.IsNotFound(err) {
		return nil, ErrNoBillingCustomer
	}
	if err != nil {
		return nil, persistenceError("find billing customer", err)
	}
	if !bc.HasStripeCustomer() {
		return nil, ErrNoBillingCustomer
	}
	return bc, nil
}

func validationError(message string) error {
	return &Error{
		Kind:    ErrValidation,
		Title:   "Invalid request",
		Message: message,
	}
}
