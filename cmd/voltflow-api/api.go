// Package main provides the voltflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/queue"
	"github.com/voltflow/voltflow/pkg/services"
	"github.com/voltflow/voltflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	queue       queue.Queue
	validate    *validator.Validate
}

func NewAPI(logger *slog.Logger, p persistence.Persistence, q queue.Queue) *API {
	return &API{
		logger:      logger,
		persistence: p,
		queue:       q,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	sink, _ := a.queue.(queue.EventSink)
	execution := services.NewExecution(a.persistence, a.queue, sink, a.logger)

	handlers := web.NewAPIHandlers(execution, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Voltflow API")
	})

	f := app.Group("/flows")
	f.Get("/", handlers.GetFlows)
	f.Get("/:id", handlers.GetFlow)
	f.Post("/:id/run", handlers.TriggerFlow)
	f.Post("/:id/trigger", handlers.TriggerFlow)
	f.Get("/:id/runs", handlers.GetFlowRuns)

	r := app.Group("/runs")
	r.Get("/:id", handlers.GetRun)
	r.Post("/:id/cancel", handlers.CancelRun)

	app.Post("/webhooks/:flowID", handlers.IngestWebhook)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
