package controllers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/prdbuilder/prdbuilder/internal/pkg/billing"
)

// BillingController serves checkout, portal, sync, webhook and current
// subscription endpoints.
type BillingController struct {
	billing  *billing.Service
	validate *validator.Validate
}

// NewBillingController creates a billing controller.
func NewBillingController(svc *billing.Service) *BillingController {
	return &BillingController{billing: svc, validate: newValidator()}
}

type checkoutRequest struct {
	PriceID      string `json:"priceId" validate:"required"`
	PlanID       string `json:"planId" validate:"required"`
	BillingCycle string `json:"billingCycle" validate:"required,oneof=monthly yearly"`
}

// HandleCheckout starts a hosted checkout and returns its URL.
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return respondError(c, err)
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Request body must be JSON with priceId, planId and billingCycle.")
	}
	if err := bc.validate.Struct(&req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	url, err := bc.billing.StartCheckout(c.UserContext(), billing.CheckoutRequest{
		UserID:       user.UserID,
		Email:        user.Email,
		PriceID:      req.PriceID,
		PlanID:       req.PlanID,
		BillingCycle: req.BillingCycle,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandlePlans lists the purchasable plans with their configured price ids.
func (bc *BillingController) HandlePlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": bc.billing.Catalog().Plans()})
}

// HandlePortal returns the URL of a hosted self-service billing session.
func (bc *BillingController) HandlePortal(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return respondError(c, err)
	}

	url, err := bc.billing.CreatePortalSession(c.UserContext(), user.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleSync pulls the caller's subscriptions from the provider.
func (bc *BillingController) HandleSync(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return respondError(c, err)
	}

	result, err := bc.billing.SyncFromProvider(c.UserContext(), user.UserID)
	if err != nil {
		return respondError(c, err)
	}

	message := "Subscriptions synced successfully"
	if result.Synced == 0 && result.Failed == 0 {
		message = "No subscriptions found in Stripe"
	}
	return c.JSON(fiber.Map{
		"message":       message,
		"synced":        result.Synced,
		"failed":        result.Failed,
		"current":       result.Current,
		"subscriptions": result.Subscriptions,
	})
}

// HandleCurrentSubscription returns the workspace's current subscription.
func (bc *BillingController) HandleCurrentSubscription(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return respondError(c, err)
	}

	sub, err := bc.billing.CurrentSubscription(c.UserContext(), user.UserID, c.Query("workspace_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleStripeWebhook verifies and applies a Stripe webhook delivery. The
// raw body is passed through untouched for signature verification.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Missing signature",
			"message": "The Stripe-Signature header is required.",
		})
	}

	payload := append([]byte(nil), c.Body()...)
	if _, err := bc.billing.Ingest(c.UserContext(), payload, signature); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"received": true})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body."
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "oneof":
			parts = append(parts, fe.Field()+" must be one of: "+fe.Param())
		default:
			parts = append(parts, fe.Field()+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
