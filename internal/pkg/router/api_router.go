package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/app/controllers"
	"github.com/prdbuilder/prdbuilder/internal/pkg/constants"
	"github.com/prdbuilder/prdbuilder/internal/pkg/middleware"
)

// limiterRedisDB keeps limiter keys apart from the cache database.
const limiterRedisDB = 1

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	billingController := controllers.NewBillingController(h.deps.Billing)

	// Stripe calls the webhook without a user token and retries on its own
	// schedule, so it sits outside auth and the rate limiter.
	app.Post(constants.WebhookRoute, billingController.HandleStripeWebhook)

	api := app.Group(constants.APIPrefix,
		h.rateLimiter(),
		middleware.UserContextMiddleware(h.deps.Verifier, h.deps.Repos.UserProfile),
	)

	api.Get("/billing/plans", billingController.HandlePlans)

	billingGroup := api.Group("/billing", middleware.RequireAuth)
	billingGroup.Post("/checkout", billingController.HandleCheckout)
	billingGroup.Post("/portal", billingController.HandlePortal)
	billingGroup.Post("/sync", billingController.HandleSync)
	billingGroup.Get("/subscription", billingController.HandleCurrentSubscription)

	workspaceController := controllers.NewWorkspaceController(h.deps.Repos)
	workspaceGroup := api.Group("/workspace", middleware.RequireAuth)
	workspaceGroup.Post("/create", workspaceController.HandleCreate)
	workspaceGroup.Get("/", workspaceController.HandleList)

	adminController := controllers.NewAdminController(h.deps.Stats)
	adminGroup := api.Group("/admin", middleware.RequireAdmin)
	adminGroup.Get("/billing/metrics", adminController.HandleBillingMetrics)
}

func (h ApiRouter) rateLimiter() fiber.Handler {
	cfg := h.deps.Config.RateLimit
	limiterCfg := limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Too many requests",
				"message": "Rate limit exceeded. Please try again later.",
			})
		},
	}

	// Share counters between instances when redis is available.
	if client := h.deps.Redis; client != nil {
		host, port := "localhost", 6379
		if hst, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = hst
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		limiterCfg.Storage = redis.New(redis.Config{
			Host:     host,
			Port:     port,
			Password: client.Options().Password,
			Database: limiterRedisDB,
			Reset:    false,
		})
		log.Debug().Str("host", host).Int("port", port).Msg("Rate limiter uses redis storage")
	}
	return limiter.New(limiterCfg)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
