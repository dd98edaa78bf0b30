package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/prdbuilder/prdbuilder/internal/pkg/config"
)

var errInvalidToken = errors.New("invalid access token")

// Claims are the access token claims the API relies on.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifier validates access tokens issued by the identity provider,
// either with the shared HS256 secret or against a JWKS endpoint.
type TokenVerifier struct {
	keyfunc jwt.Keyfunc
	methods []string
	issuer  string
}

// NewTokenVerifier builds a verifier from auth configuration. A JWKS URL
// takes precedence over the shared secret.
func NewTokenVerifier(ctx context.Context, cfg config.AuthConfig) (*TokenVerifier, error) {
	issuer := strings.TrimSpace(cfg.Issuer)
	switch {
	case strings.TrimSpace(cfg.JWKSURL) != "":
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{strings.TrimSpace(cfg.JWKSURL)})
		if err != nil {
			return nil, fmt.Errorf("fetch JWKS from %s: %w", cfg.JWKSURL, err)
		}
		return &TokenVerifier{
			keyfunc: jwks.Keyfunc,
			methods: []string{"RS256", "ES256"},
			issuer:  issuer,
		}, nil
	case cfg.JWTSecret != "":
		return NewHMACTokenVerifier([]byte(cfg.JWTSecret), issuer), nil
	default:
		return nil, errors.New("auth.jwt_secret or auth.jwks_url is required")
	}
}

// NewHMACTokenVerifier verifies HS256 tokens signed with secret.
func NewHMACTokenVerifier(secret []byte, issuer string) *TokenVerifier {
	return &TokenVerifier{
		keyfunc: func(*jwt.Token) (interface{}, error) { return secret, nil },
		methods: []string{jwt.SigningMethodHS256.Alg()},
		issuer:  issuer,
	}
}

// Verify parses and validates a token. The subject is required.
func (v *TokenVerifier) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, v.keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
