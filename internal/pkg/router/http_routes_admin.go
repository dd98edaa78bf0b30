package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/internal/pkg/constants"
)

// registerOpsRoutes exposes prometheus metrics and the fiber monitor behind
// basic auth. Both are disabled when no metrics password is configured.
func (h HttpRouter) registerOpsRoutes(app *fiber.App) {
	cfg := h.deps.Config.Metrics
	if cfg.Password == "" {
		log.Info().Msg("Metrics password not set, /metrics disabled")
		return
	}

	auth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			cfg.User: cfg.Password,
		},
	})
	app.Get(constants.MetricsRoute, auth, adaptor.HTTPHandler(promhttp.Handler()))
	app.Get(constants.MonitorRoute, auth, monitor.New())
}
