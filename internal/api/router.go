package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"nosqlite/internal/admin"
	"nosqlite/internal/auth"
	"nosqlite/internal/engine"
	"nosqlite/internal/ledger"
	"nosqlite/internal/snapshot"
)

// Deps are the services the HTTP API is built from. Ledger, Snapshots, Auth
// and Gatherer are optional; their routes are left out when nil.
type Deps struct {
	Client    *engine.Client
	Rules     *Rules
	Includes  map[string]map[string]engine.Lookup
	Ledger    *ledger.Service
	Snapshots *snapshot.Manager
	Auth      *auth.Authenticator
	Gatherer  prometheus.Gatherer
	Log       *zap.Logger
}

// NewApp builds the fiber app serving the document API.
func NewApp(d Deps) *fiber.App {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler(log),
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestLogger(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// login stays outside the auth middleware
	api := app.Group("/api")
	if d.Auth != nil {
		api.Post("/auth/login", auth.NewHandler(d.Auth).Login)
		api.Use(auth.Middleware(d.Auth))
	}

	if d.Ledger != nil {
		lh := NewLedgerHandler(d.Ledger)
		api.Post("/ledger/transfer", lh.Transfer)
		api.Post("/ledger/entries", lh.Record)
		api.Get("/ledger/summary", lh.Summary)
	}
	if d.Snapshots != nil {
		sh := NewSnapshotHandler(d.Snapshots)
		api.Get("/snapshots", sh.List)
		api.Post("/snapshots", sh.Create)
		api.Post("/snapshots/:id/restore", sh.Restore)
	}

	admin.RegisterAdminRoutes(api, admin.NewHandler(d.Client))

	h := NewHandler(d.Client, d.Rules, d.Includes, log)
	api.Get("/:model", h.List)
	api.Post("/:model/bulk", h.Bulk)
	api.Get("/:model/:id", h.GetByID)
	api.Post("/:model", h.Create)
	api.Patch("/:model/:id", h.Update)
	api.Delete("/:model/:id", h.Delete)

	return app
}

func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// render now so the logged status is the one sent
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		log.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)))
		return nil
	}
}
