package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opsconsole-backend/controllers"
)

// Options carries the middlewares the protected group runs.
type Options struct {
	Auth        fiber.Handler
	Idempotency fiber.Handler
	MetricsPath string
}

// Register wires all HTTP routes.
func Register(app *fiber.App, h *controllers.Handler, opts Options) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if opts.MetricsPath != "" {
		app.Get(opts.MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
	}

	// Protected endpoints (JWT auth)
	protected := app.Group("/api")
	protected.Use(opts.Auth)

	// Idempotency guard after auth so keys are bound to the caller
	if opts.Idempotency != nil {
		protected.Use(opts.Idempotency)
	}

	// Bills
	protected.Post("/bills", h.SubmitBill)
	protected.Get("/bills", h.ListBills)
	protected.Get("/bills/:id", h.GetBill)
	protected.Post("/bills/:id/decision", h.DecideBill)

	// Chemicals
	protected.Post("/chemicals", h.SubmitChemical)
	protected.Get("/chemicals", h.ListChemicals)
	protected.Get("/chemicals/:id", h.GetChemical)
	protected.Post("/chemicals/:id/decision", h.DecideChemical)

	// Rates (window before :id so it is not read as an id)
	protected.Post("/rates", h.SubmitRate)
	protected.Get("/rates", h.ListRates)
	protected.Get("/rates/window", h.RateWindow)
	protected.Get("/rates/:id", h.GetRate)
	protected.Post("/rates/:id/decision", h.DecideRate)
}
