package router

import (
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/app/controllers"
	"github.com/prdbuilder/prdbuilder/internal/pkg/constants"
)

const openAPIFile = "public/docs/v1/openapi.yml"

// basePaths are checked in order for the public/ directory.
var basePaths = []string{
	"./",        // Current directory
	"../../",    // From cmd/prdbuilder to project root
	"../../../", // From internal/pkg/router in tests
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	health := controllers.NewHealthController(h.deps.DB)
	app.Get(constants.HealthRoute, health.HandleHealth)

	// SWAGGER / OPENAPI
	spec := findOpenAPIFile()
	if spec == "" {
		log.Warn().Str("file", openAPIFile).Msg("OpenAPI document not found, API docs disabled")
		return
	}
	app.Use(swagger.New(swagger.Config{
		BasePath: constants.DocsBasePath,
		FilePath: spec,
		Path:     constants.DocsVersion,
	}))
}

func findOpenAPIFile() string {
	for _, base := range basePaths {
		if _, err := os.Stat(base + openAPIFile); err == nil {
			return base + openAPIFile
		}
	}
	return ""
}
