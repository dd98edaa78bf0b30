package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/prdbuilder/prdbuilder/app/repository"
	"github.com/prdbuilder/prdbuilder/internal/pkg/billing"
	"github.com/prdbuilder/prdbuilder/internal/pkg/config"
	"github.com/prdbuilder/prdbuilder/internal/pkg/middleware"
	"github.com/prdbuilder/prdbuilder/internal/pkg/statistics"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services handed to controllers. Redis is optional.
type Dependencies struct {
	Config   config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Repos    *repository.Repositories
	Billing  *billing.Service
	Stats    *statistics.Service
	Verifier *middleware.TokenVerifier
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter installs the global middleware (recover, request id,
	// request logging) and must run before the API routes.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
