package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/prdbuilder/prdbuilder/internal/pkg/statistics"
)

// AdminController serves app-admin endpoints.
type AdminController struct {
	stats *statistics.Service
}

// NewAdminController creates a new admin controller with the statistics service.
func NewAdminController(stats *statistics.Service) *AdminController {
	return &AdminController{stats: stats}
}

// HandleBillingMetrics returns subscription KPIs and recent daily snapshots.
func (ac *AdminController) HandleBillingMetrics(c *fiber.Ctx) error {
	report, err := ac.stats.Report(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}
