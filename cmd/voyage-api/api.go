// Package main provides the Voyage API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/voyage-hq/voyage/pkg/eventbus"
	"github.com/voyage-hq/voyage/pkg/execution"
	"github.com/voyage-hq/voyage/pkg/journey"
	"github.com/voyage-hq/voyage/pkg/persistence"
	"github.com/voyage-hq/voyage/pkg/trigger"
	"github.com/voyage-hq/voyage/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	journeyRepository := journey.NewRepository(a.persistence)
	publishingService := journey.NewPublishingService(a.persistence)
	matcher := trigger.NewMatcher(a.persistence, a.logger)
	executor := execution.NewExecutor(a.persistence, a.eventBus, execution.DefaultRetryPolicy(), a.logger)

	handlers := web.NewAPIHandlers(
		journeyRepository,
		publishingService,
		matcher,
		executor,
		a.eventBus,
		a.persistence,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Voyage API")
	})

	j := app.Group("/journeys")
	j.Get("/", handlers.ListJourneys)
	j.Post("/", handlers.CreateJourney)
	j.Get("/:id", handlers.GetJourney)
	j.Patch("/:id", handlers.UpdateJourney)
	j.Delete("/:id", handlers.DeleteJourney)

	j.Post("/:id/steps", handlers.AddStep)
	j.Put("/:id/steps/:stepId", handlers.UpdateStep)
	j.Delete("/:id/steps/:stepId", handlers.RemoveStep)

	j.Post("/:id/connections", handlers.AddConnection)
	j.Delete("/:id/connections/:connectionId", handlers.RemoveConnection)

	j.Post("/:id/triggers", handlers.AddTrigger)
	j.Delete("/:id/triggers/:triggerId", handlers.RemoveTrigger)

	j.Post("/:id/publish", handlers.PublishJourney)
	j.Post("/:id/pause", handlers.PauseJourney)
	j.Post("/:id/resume", handlers.ResumeJourney)
	j.Post("/:id/archive", handlers.ArchiveJourney)
	j.Get("/:id/versions/latest", handlers.GetLatestVersion)

	j.Post("/:id/executions", handlers.StartExecution)

	e := app.Group("/executions")
	e.Get("/", handlers.ListExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
