package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cronos-sched/cronos/internal/account"
)

// RegisterAccountRoutes wires account lookup and, on devnets, registration.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler, allowRegistration bool) {
	if allowRegistration {
		r.Post("/accounts", h.Register)
	}
	r.Get("/accounts/:name", h.Get)
}
