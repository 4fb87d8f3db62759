package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/aerostic/aerostic/internal/pkg/env"
)

const (
	// TenantIDHeader carries the tenant a request acts on behalf of.
	TenantIDHeader = "X-Tenant-ID"

	// KeyTenantID is the fiber.Ctx locals key set by TenantContext.
	KeyTenantID = "TENANT_ID"
)

// ServiceTokenAuth authenticates service-to-service requests against the
// SERVICE_API_TOKEN environment value. The comparison is constant-time.
func ServiceTokenAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := env.GetEnv("SERVICE_API_TOKEN", "")
		if expected == "" {
			log.Error("[Auth] SERVICE_API_TOKEN is not configured, rejecting request")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "service_unavailable",
				"message": "Service token authentication is not configured",
			})
		}

		token := extractServiceToken(c)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Missing or invalid service token",
			})
		}

		return c.Next()
	}
}

// TenantContext requires the tenant id header and stashes it in locals for
// downstream handlers.
func TenantContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := strings.TrimSpace(c.Get(TenantIDHeader))
		if tenantID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "bad_request",
				"message": "Missing " + TenantIDHeader + " header",
			})
		}

		c.Locals(KeyTenantID, tenantID)
		return c.Next()
	}
}

// TenantID reads the tenant id placed in locals by TenantContext.
func TenantID(c *fiber.Ctx) string {
	if v, ok := c.Locals(KeyTenantID).(string); ok {
		return v
	}
	return ""
}

func extractServiceToken(c *fiber.Ctx) string {
	token := strings.TrimSpace(c.Get("X-Service-Token"))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
