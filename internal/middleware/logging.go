package middleware

import (
	"context"
	"log/slog"
	"time"

	"secmaster/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// ContextMiddleware copies the request id, trace id and correlation id from
// fiber locals and headers into the request context so the context-aware
// logger picks them up in the workflow and store layers.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			ctx = context.WithValue(ctx, observability.RequestIDKey, rid)
		}
		if tid, ok := c.Locals("traceID").(string); ok && tid != "" {
			ctx = context.WithValue(ctx, observability.TraceIDKey, tid)
		}
		ctx = observability.WithCorrelationID(ctx, c.Get("X-Correlation-ID"))
		c.Set("X-Correlation-ID", observability.ExtractCorrelationID(ctx))

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger logs one line per request through the root slog logger.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		fields := []any{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}
		if actor := ActorID(c); actor != 0 {
			fields = append(fields, slog.Uint64("actor_id", uint64(actor)))
		}

		switch {
		case err != nil:
			fields = append(fields, slog.String("error", err.Error()))
			observability.Logger.ErrorContext(c.UserContext(), "request failed", fields...)
		case status >= fiber.StatusInternalServerError:
			observability.Logger.ErrorContext(c.UserContext(), "request failed", fields...)
		default:
			observability.Logger.InfoContext(c.UserContext(), "request processed", fields...)
		}
		return err
	}
}
