package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/prdbuilder/prdbuilder/internal/pkg/usercontext"
)

// ProfileStore records the profile of authenticated users and resolves the
// app admin flag.
type ProfileStore interface {
	IsAppAdmin(ctx context.Context, userID string) (bool, error)
}

// UserContextMiddleware sets up the user context for every request carrying
// a valid bearer token. Requests without one continue anonymously; the
// Require* guards decide whether that is acceptable.
func UserContextMiddleware(verifier *TokenVerifier, profiles ProfileStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			usercontext.SetUserContext(c, usercontext.UserContext{})
			return c.Next()
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Path()).Msg("Rejected access token")
			usercontext.SetUserContext(c, usercontext.UserContext{})
			return c.Next()
		}

		uc := usercontext.UserContext{
			UserID:     claims.Subject,
			Email:      claims.Email,
			IsLoggedIn: true,
		}
		if profiles != nil {
			isAdmin, err := profiles.IsAppAdmin(c.UserContext(), claims.Subject)
			if err != nil {
				log.Error().Err(err).Str("user_id", claims.Subject).Msg("Failed to resolve admin flag")
			}
			uc.IsAdmin = isAdmin
		}
		usercontext.SetUserContext(c, uc)
		return c.Next()
	}
}
