package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"opledger/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Static /operations paths are registered before /operations/:id.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc service.OperationService) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	ops := app.Group("/operations")
	ops.Post("/", BeginOperation(svc))
	ops.Get("/", ListOperations(svc))
	ops.Get("/ready", ListReadyOperations(svc))
	ops.Get("/stats", OperationStats(svc))
	ops.Get("/lookup", LookupOperation(svc))
	ops.Get("/:id", GetOperation(svc))
	ops.Post("/:id/success", RecordSuccess(svc))
	ops.Post("/:id/failure", RecordFailure(svc))
	ops.Post("/:id/retry", ScheduleRetry(svc))
	ops.Post("/:id/archive", ArchiveOperation(svc))
	ops.Get("/:id/archive", GetArchive(svc))
}

// HealthCheck godoc
// @Summary Readiness probe
// @Description Checks database connectivity
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe godoc
// @Summary Liveness probe
// @Tags health
// @Success 200
// @Router /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
