package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/utils"
	"github.com/sirupsen/logrus"
)

// AuthConfig holds configuration for the auth middleware
type AuthConfig struct {
	// Audience is the expected aud claim. Empty accepts any audience.
	Audience string
	// Authenticator validates bearer JWTs
	Authenticator *utils.JwtAuthenticator
	// ResourceMetadataURL is advertised in WWW-Authenticate on missing tokens
	ResourceMetadataURL string
	// PublicPaths bypass authentication, matched by exact path
	PublicPaths []string
	// PublicPrefixes bypass authentication for every path under them
	PublicPrefixes []string
	// SkipWellKnown determines if .well-known endpoints should bypass auth
	SkipWellKnown bool
}

// DefaultAuthConfig provides default configuration
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		SkipWellKnown: true,
		PublicPaths:   []string{"/health"},
	}
}

// AuthMiddleware returns a Fiber middleware for Bearer token authentication
func AuthMiddleware(config ...AuthConfig) fiber.Handler {
	cfg := DefaultAuthConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	public := make(map[string]bool, len(cfg.PublicPaths))
	for _, path := range cfg.PublicPaths {
		public[path] = true
	}

	return func(c *fiber.Ctx) error {
		// Allow public access to well-known endpoints for metadata discovery
		if cfg.SkipWellKnown && strings.Contains(c.Path(), ".well-known") {
			return c.Next()
		}
		if public[c.Path()] || hasAnyPrefix(c.Path(), cfg.PublicPrefixes) {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}

		if token == "" {
			challenge := `Bearer realm="OAuth"`
			if cfg.ResourceMetadataURL != "" {
				challenge = fmt.Sprintf(`Bearer realm="OAuth", resource_metadata="%s"`, cfg.ResourceMetadataURL)
			}
			c.Set("WWW-Authenticate", challenge)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid Bearer token",
			})
		}

		if cfg.Authenticator == nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Authentication is not configured",
			})
		}

		user, err := cfg.Authenticator.ValidateToken(token)
		if err != nil {
			logrus.WithError(err).Debug("rejected bearer token")
			c.Set("WWW-Authenticate", `Bearer realm="Access to protected resource"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Invalid token",
				"details": err.Error(),
			})
		}

		if cfg.Audience != "" && !hasAudience(user, cfg.Audience) {
			c.Set("WWW-Authenticate", `Bearer realm="Access to protected resource"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid audience",
			})
		}

		c.Locals("user", user)
		return c.Next()
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func hasAudience(user *utils.AuthenticatedUser, audience string) bool {
	for _, aud := range user.Aud {
		if aud == audience {
			return true
		}
	}
	return false
}

// GetAuthenticatedUser retrieves the authenticated user from Fiber context
// Returns nil if no user is found or if user is not of correct type
func GetAuthenticatedUser(c *fiber.Ctx) *utils.AuthenticatedUser {
	user, ok := c.Locals("user").(*utils.AuthenticatedUser)
	if !ok {
		return nil
	}
	return user
}
