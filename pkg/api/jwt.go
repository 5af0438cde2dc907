package api

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/util"
)

// CustomClaims are the railcontrol specific claims of an access token.
type CustomClaims struct {
	Scope string `json:"scope"`
	// Sections limits the caller to these section ids, "*" for all.
	Sections []string `json:"sections"`
}

func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

func (c CustomClaims) HasScope(expectedScope string) bool {
	return slices.Contains(strings.Fields(c.Scope), expectedScope)
}

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (any, error)
}

// AuthConfigured reports whether an Auth0 tenant is set in the environment.
func AuthConfigured() bool {
	return util.GetEnvironmentVariables()["AUTH0_DOMAIN"] != ""
}

// EnsureValidToken validates bearer tokens against the Auth0 tenant in
// AUTH0_DOMAIN for the AUTH0_AUDIENCE audience.
func EnsureValidToken() (fiber.Handler, error) {
	env := util.GetEnvironmentVariables()

	issuerURL, err := url.Parse("https://" + env["AUTH0_DOMAIN"] + "/")
	if err != nil {
		return nil, err
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{env["AUTH0_AUDIENCE"]},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	log.Info().Str("issuer", issuerURL.String()).Msg("API authentication enabled")

	return NewTokenMiddleware(jwtValidator), nil
}

// NewTokenMiddleware rejects requests without a valid bearer token and
// stores the caller's subject and permitted sections in the request locals.
func NewTokenMiddleware(tokenValidator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		jwtToken, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || jwtToken == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header is required",
			})
		}

		validated, err := tokenValidator.ValidateToken(c.UserContext(), jwtToken)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid auth token",
			})
		}

		claims, ok := validated.(*validator.ValidatedClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid auth token",
			})
		}

		c.Locals("account_userid", claims.RegisteredClaims.Subject)

		// no sections claim means no restriction
		if customClaims, ok := claims.CustomClaims.(*CustomClaims); ok && len(customClaims.Sections) > 0 {
			c.Locals("account_sections", customClaims.Sections)
		}

		return c.Next()
	}
}
