package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// ReceiptStatusKey is the fiber local under which handlers record the
// status code of a pushed transaction for the audit log.
const ReceiptStatusKey = "receipt_status"

// Audit emits one structured log line per request. Pushed transactions also
// carry their receipt status.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if requestID, _ := c.Locals(requestIDHeader).(string); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if receipt, _ := c.Locals(ReceiptStatusKey).(string); receipt != "" {
			attrs = append(attrs, slog.String("receipt_status", receipt))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request completed", attrs...)
			return err
		}
		logger.Info("request completed", attrs...)
		return nil
	}
}
