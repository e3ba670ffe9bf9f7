package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/contribquest/contribquest/backend/models"
	"github.com/contribquest/contribquest/backend/utils"
)

// AuthRequired ensures a platform user identity is attached to the request.
// The gateway in front of this service authenticates users and forwards the
// identity in the X-User-ID header; this middleware only validates shape.
func AuthRequired(adminToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-User-ID")
		if raw == "" {
			return utils.SendUnauthorized(c, "Authentication required")
		}

		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			slog.Debug("Auth required: malformed user id", slog.String("value", raw))
			return utils.SendUnauthorized(c, "Invalid user identity")
		}

		user := &models.AuthUser{
			ID:       userID,
			Username: c.Get("X-Username"),
			IsAdmin:  adminTokenValid(c, adminToken),
		}
		c.Locals("user", user)

		return c.Next()
	}
}

// AdminRequired ensures the user was granted admin access by AuthRequired
func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := utils.ExtractAuthUser(c)
		if !ok {
			slog.Warn("Admin required: no user in context")
			return utils.SendForbidden(c, "Access denied")
		}

		if !user.IsAdmin {
			slog.Warn("Admin required: user lacks admin privileges",
				slog.Int64("user_id", user.ID))
			return utils.SendForbidden(c, "Admin access required")
		}

		return c.Next()
	}
}

func adminTokenValid(c *fiber.Ctx, adminToken string) bool {
	if adminToken == "" {
		return false
	}
	presented := c.Get("X-Admin-Token")
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(adminToken)) == 1
}
