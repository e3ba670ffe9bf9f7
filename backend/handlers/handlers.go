package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/contribquest/contribquest/backend/middleware"
	"github.com/contribquest/contribquest/contribquest"
	"github.com/contribquest/contribquest/contribquest/claims"
	"github.com/contribquest/contribquest/contribquest/database"
	"github.com/contribquest/contribquest/contribquest/issues"
)

// WebApp bundles the API's dependencies and owns route registration.
type WebApp struct {
	Config  *contribquest.Config
	DB      *database.DB
	Claims  *claims.Manager
	Issues  *issues.Service
	Version string
}

// SetupRoutes registers every API route on the Fiber app.
func (app *WebApp) SetupRoutes(f *fiber.App) {
	f.Get("/health", app.HealthCheck)

	api := f.Group("/api/v1")

	// Public catalog reads.
	api.Get("/issues", app.ListIssues)
	api.Get("/issues/suggest", app.SuggestIssues)
	api.Get("/issues/filters", app.GetFilterOptions)
	api.Get("/issues/expiring", app.ListExpiringClaims)
	api.Get("/issues/:id", app.GetIssue)
	api.Get("/issues/:id/claim", app.GetClaim)
	api.Get("/issues/:id/events", app.ListClaimEvents)

	// Claim lifecycle, authenticated.
	auth := api.Group("", middleware.AuthRequired(app.Config.Server.AdminToken))
	auth.Post("/issues/:id/claim", app.ClaimIssue)
	auth.Post("/issues/:id/release", app.ReleaseClaim)
	auth.Post("/issues/:id/extend", app.ExtendClaim)

	// Admin operations.
	admin := auth.Group("", middleware.AdminRequired())
	admin.Post("/issues", middleware.AuditLogMiddleware("create_issue"), app.CreateIssue)
	admin.Post("/issues/:id/force-release", middleware.AuditLogMiddleware("force_release"), app.ForceReleaseClaim)
}

func parseIssueID(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}
