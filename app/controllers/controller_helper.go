package controllers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/internal/pkg/billing"
	"github.com/prdbuilder/prdbuilder/internal/pkg/usercontext"
)

// respondError renders err as a JSON {error, message} body with the status
// billing.HTTPStatus assigns to it. Causes are logged, never returned.
func respondError(c *fiber.Ctx, err error) error {
	status := billing.HTTPStatus(err)

	var priceErr *billing.InvalidPriceIDError
	if errors.As(err, &priceErr) {
		return c.Status(status).JSON(fiber.Map{
			"error":          "Invalid Price ID",
			"message":        priceErr.Message(),
			"receivedId":     priceErr.ReceivedID,
			"expectedFormat": priceErr.ExpectedFormat(),
		})
	}

	title, message := "Internal Server Error", "An unexpected error occurred. Please try again."
	var billingErr *billing.Error
	var sigErr *billing.InvalidSignatureError
	switch {
	case errors.As(err, &sigErr):
		title, message = "Invalid signature", "Webhook signature verification failed."
	case errors.As(err, &billingErr):
		title, message = billingErr.Title, billingErr.Message
	case errors.Is(err, billing.ErrNotConfigured):
		title, message = "Billing not configured", "Billing is not available on this server."
	case errors.Is(err, billing.ErrUnauthenticated):
		title, message = "unauthorized", "Missing or invalid authentication"
	}

	if status >= fiber.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Msg("Request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": title, "message": message})
}

// badRequest renders a request validation failure.
func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "Invalid request",
		"message": message,
	})
}

// requireUser returns the authenticated caller or ErrUnauthenticated.
func requireUser(c *fiber.Ctx) (usercontext.UserContext, error) {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn || uc.UserID == "" {
		return uc, billing.ErrUnauthenticated
	}
	return uc, nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
