package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cronos-sched/cronos/internal/config"
	"github.com/cronos-sched/cronos/internal/routes"
)

// Server wraps the Fiber application serving the RPC surface.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(d routes.Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:      d.Cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    1 << 20,
	})
	routes.Setup(app, d)
	return &Server{app: app, cfg: d.Cfg}
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
