// Package main provides the dealflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/dealflow/pkg/cmd"
	"github.com/dukex/dealflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	logger   *slog.Logger
	core     *cmd.Core
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, core *cmd.Core) *API {
	return &API{
		logger:   logger,
		core:     core,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.core.Rules, a.core.Templates, a.core.Workflows, a.core.Events, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Dealflow API")
	})

	app.Get("/health", handlers.HealthCheck)

	if a.core.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.core.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	handlers.Mount(app.Group("/api/v1"))

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
