package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cronos-sched/cronos/internal/status"
)

// RegisterTableRoutes wires read-only contract table queries.
func RegisterTableRoutes(r fiber.Router, l Ledger) {
	r.Get("/tables/:code/:scope/:table", func(c *fiber.Ctx) error {
		rows, err := l.Rows(c.UserContext(), c.Params("code"), c.Params("scope"), c.Params("table"))
		if errors.Is(err, status.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		if rows == nil {
			rows = []any{}
		}
		return c.JSON(fiber.Map{"rows": rows})
	})
}
