package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// NewStructuredLogger is chi's request logger backed by slog.
func NewStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return middleware.RequestLogger(&StructuredLogger{Logger: logger})
}

// StructuredLogger creates a log entry per request.
type StructuredLogger struct {
	Logger *slog.Logger
}

// NewLogEntry tags the request logger with the request attributes.
func (l *StructuredLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &StructuredLoggerEntry{
		Logger: l.Logger.With(
			"requestID", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"uri", r.RequestURI,
			"remoteAddr", r.RemoteAddr,
		),
	}
}

// StructuredLoggerEntry logs the outcome of one request.
type StructuredLoggerEntry struct {
	Logger *slog.Logger
}

// Write logs the response status, size and latency.
func (l *StructuredLoggerEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	l.Logger.Info("request complete",
		"status", status,
		"bytes", bytes,
		"elapsed", elapsed,
	)
}

// Panic logs a recovered panic with its stack.
func (l *StructuredLoggerEntry) Panic(v interface{}, stack []byte) {
	l.Logger.Error("request panic", "panic", v, "stack", string(stack))
}
