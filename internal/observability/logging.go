// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger is the global structured logger instance used throughout the application.
var Logger *slog.Logger

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys picked up by the context-aware handler.
const (
	RequestIDKey     LogContextKey = "request_id"
	UserIDKey        LogContextKey = "user_id"
	TraceIDKey       LogContextKey = "trace_id"
	CorrelationIDKey LogContextKey = "correlation_id"
)

// ctxHandler is a slog.Handler that adds context values to the log record.
type ctxHandler struct {
	slog.Handler
}

// Handle adds context values to the record before passing it to the underlying handler.
func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if rid, ok := ctx.Value(RequestIDKey).(string); ok {
		r.AddAttrs(slog.String("request_id", rid))
	}
	if uid, ok := ctx.Value(UserIDKey).(uint); ok {
		r.AddAttrs(slog.Any("user_id", uid))
	}
	if tid, ok := ctx.Value(TraceIDKey).(string); ok {
		r.AddAttrs(slog.String("trace_id", tid))
	}
	if cid, ok := ctx.Value(CorrelationIDKey).(string); ok {
		r.AddAttrs(slog.String("correlation_id", cid))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

func init() {
	Logger = NewLogger(os.Getenv("APP_ENV"))
}

// NewLogger builds a context-aware logger: JSON in production, text elsewhere.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler
	level := slog.LevelInfo

	if env == "production" || env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(&ctxHandler{handler})
}

// WithCorrelationID returns a new context carrying id, generating one when empty.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithUserID stores the authenticated actor on ctx for logging.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WorkflowLogger logs approval workflow transitions for one kind of record.
type WorkflowLogger struct {
	kind   string
	logger *slog.Logger
}

// NewWorkflowLogger creates a WorkflowLogger for kind.
func NewWorkflowLogger(kind string) *WorkflowLogger {
	return &WorkflowLogger{kind: kind, logger: Logger}
}

// LogTransition records a state change of a change request.
func (l *WorkflowLogger) LogTransition(ctx context.Context, transition string, requestID, actorID uint, attrs ...slog.Attr) {
	args := []any{
		slog.String("kind", l.kind),
		slog.String("transition", transition),
		slog.Uint64("request_id", uint64(requestID)),
		slog.Uint64("actor_id", uint64(actorID)),
	}
	for _, a := range attrs {
		args = append(args, a)
	}
	l.logger.InfoContext(ctx, "workflow transition", args...)
}

// LogDirect records a mutation applied without review.
func (l *WorkflowLogger) LogDirect(ctx context.Context, operation string, entityID, actorID uint) {
	l.logger.InfoContext(ctx, "direct mutation",
		slog.String("kind", l.kind),
		slog.String("operation", operation),
		slog.Uint64("entity_id", uint64(entityID)),
		slog.Uint64("actor_id", uint64(actorID)),
	)
}

// LogError records a failed workflow operation.
func (l *WorkflowLogger) LogError(ctx context.Context, operation string, err error) {
	l.logger.ErrorContext(ctx, "workflow error",
		slog.String("kind", l.kind),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// LogAsyncOperationError logs an error in an asynchronous operation.
func LogAsyncOperationError(ctx context.Context, operation string, err error, fields map[string]interface{}) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_error"),
		slog.String("error", err.Error()),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	Logger.ErrorContext(ctx, "async operation failed", attrs...)
}
