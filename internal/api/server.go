// Package api provides the optional HTTP status surface: read-only
// endpoints serving live snapshots of the run in flight. It never
// blocks workers; every handler reads a point-in-time aggregator copy.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"vmtag/perm-engine/internal/config"
	"vmtag/perm-engine/internal/progress"
	"vmtag/perm-engine/pkg/logger"
	"vmtag/perm-engine/pkg/types"
)

// SnapshotFunc supplies the current run summary, or nil when no run is
// active.
type SnapshotFunc func() *types.RunSummary

// Server is the status HTTP server.
type Server struct {
	app      *fiber.App
	address  string
	snapshot SnapshotFunc
}

// NewServer creates a status server around a snapshot source.
func NewServer(cfg config.StatusConfig, snapshot SnapshotFunc) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout.Std(),
		WriteTimeout:          cfg.WriteTimeout.Std(),
		DisableStartupMessage: true,
		AppName:               "perm-engine status",
	})
	app.Use(fiberrecover.New())

	s := &Server{
		app:      app,
		address:  cfg.Address,
		snapshot: snapshot,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := s.app.Group("/api/v1")

	v1.Get("/run/summary", func(c *fiber.Ctx) error {
		summary := s.snapshot()
		if summary == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "no run in flight",
			})
		}
		return c.JSON(summary)
	})

	v1.Get("/run/progress", func(c *fiber.Ctx) error {
		summary := s.snapshot()
		if summary == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "no run in flight",
			})
		}
		u := progress.Observe(summary)
		return c.JSON(fiber.Map{
			"run_id":      summary.RunID,
			"processed":   u.Processed,
			"total":       u.Total,
			"rate":        u.Rate,
			"eta_seconds": int(u.ETA / time.Second),
			"elapsed":     u.Elapsed.String(),
		})
	})
}

// Start begins listening on the configured address. Runs on its own
// goroutine; listen failures are logged, not fatal to the run.
func (s *Server) Start() {
	go func() {
		if err := s.app.Listen(s.address); err != nil {
			logger.Error("status server: %s", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
