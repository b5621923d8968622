package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lumen-edu/lumen-quiz-api/internal/config"
	"github.com/lumen-edu/lumen-quiz-api/internal/handler"
	"github.com/lumen-edu/lumen-quiz-api/internal/middleware"
	"github.com/lumen-edu/lumen-quiz-api/internal/models"
	"github.com/lumen-edu/lumen-quiz-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AttemptHandler  *handler.AttemptHandler
	QuizHandler     *handler.QuizHandler
	TutorHandler    *handler.TutorHandler
	ActivityHandler *handler.ActivityHandler
	JWTMiddleware   fiber.Handler
	AutosaveLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	quiz := app.Group("/api/v1/quiz", jwtMiddleware)

	if deps.QuizHandler != nil {
		deps.QuizHandler.Register(quiz)

		staff := quiz.Group("", middleware.RequireRole(models.RoleAdmin, models.RoleTeacher))
		deps.QuizHandler.RegisterStaff(staff)
	}

	if deps.AttemptHandler != nil {
		attempts := quiz.Group("/attempts")
		deps.AttemptHandler.Register(attempts, deps.AutosaveLimiter)
	}

	if deps.TutorHandler != nil {
		tutor := quiz.Group("/tutor")
		deps.TutorHandler.Register(tutor)
	}

	if deps.ActivityHandler != nil {
		activity := quiz.Group("/activity", middleware.RequireRole(models.RoleAdmin, models.RoleTeacher, models.RoleTA))
		deps.ActivityHandler.Register(activity)
	}
}
