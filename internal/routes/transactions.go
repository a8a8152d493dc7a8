package routes

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cronos-sched/cronos/internal/chain"
	"github.com/cronos-sched/cronos/internal/middleware"
	"github.com/cronos-sched/cronos/internal/status"
)

// RegisterTransactionRoutes wires the push endpoint.
func RegisterTransactionRoutes(r fiber.Router, l Ledger, rateLimiter fiber.Handler, logger *slog.Logger) {
	r.Post("/transactions", rateLimiter, func(c *fiber.Ctx) error {
		var signed chain.SignedTransaction
		if err := c.BodyParser(&signed); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		receipt, err := l.Push(c.UserContext(), signed)
		c.Locals(middleware.ReceiptStatusKey, string(receipt.Status))
		if err != nil {
			logger.Debug("push rejected",
				slog.String("id", receipt.ID),
				slog.String("status", string(receipt.Status)),
				slog.String("error", err.Error()),
			)
		}
		return c.Status(httpStatus(receipt.Status)).JSON(receipt)
	})
}

func httpStatus(code status.Code) int {
	switch code {
	case status.OK:
		return http.StatusOK
	case status.AuthorizationError:
		return http.StatusUnauthorized
	case status.DuplicateTransaction:
		return http.StatusConflict
	case status.InsufficientBalance:
		return http.StatusPaymentRequired
	case status.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
