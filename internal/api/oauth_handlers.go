package api

import (
	"github.com/gofiber/fiber/v2"
)

// handleOAuthProtectedResource serves RFC 9728 metadata so MCP clients can
// find the authorization server that issues our bearer tokens.
func (s *APIServer) handleOAuthProtectedResource(c *fiber.Ctx) error {
	cfg := s.services.Config
	if cfg.OAuthAuthorizationServer == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "OAuth is not configured",
		})
	}

	resource := cfg.BaseURL
	if resource == "" {
		resource = c.BaseURL()
	}

	return c.JSON(fiber.Map{
		"authorization_servers":    []string{cfg.OAuthAuthorizationServer},
		"bearer_methods_supported": []string{"header"},
		"resource":                 resource,
		"scopes_supported":         []string{},
	})
}
