package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/contribquest/contribquest/backend/models"
	"github.com/contribquest/contribquest/backend/utils"
)

// HealthCheck handles GET /health
func (app *WebApp) HealthCheck(c *fiber.Ctx) error {
	health := models.NewHealthCheck(app.Version)

	if err := app.DB.Ping(c.Context()); err != nil {
		health.AddComponent("database", "unhealthy", err.Error())
	} else {
		health.AddComponent("database", "healthy", "")
	}

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	return utils.SendJSON(c, status, health)
}
