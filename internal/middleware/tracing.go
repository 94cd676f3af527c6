package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Context keys for tracing
type contextKey string

const (
	TraceIDKey   contextKey = "trace_id"
	StartTimeKey contextKey = "start_time"
	OperationKey contextKey = "operation"
)

// TraceIDHeader carries the trace id back to the client
const TraceIDHeader = "X-Request-Id"

// Tracing returns a middleware that tags every request with a trace id
// and the settings operation it performs.
func Tracing(logger *logrus.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Reuse an upstream id when it parses
			traceID := r.Header.Get(TraceIDHeader)
			if _, err := uuid.Parse(traceID); err != nil {
				traceID = uuid.New().String()
			}
			startTime := time.Now()
			operation := determineOperation(r)

			ctx := r.Context()
			ctx = context.WithValue(ctx, TraceIDKey, traceID)
			ctx = context.WithValue(ctx, StartTimeKey, startTime)
			ctx = context.WithValue(ctx, OperationKey, operation)

			w.Header().Set(TraceIDHeader, traceID)
			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			logger.WithFields(logrus.Fields{
				"trace_id":  traceID,
				"method":    r.Method,
				"path":      r.URL.Path,
				"operation": operation,
			}).Debug("Request started")

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			duration := time.Since(startTime)
			logger.WithFields(logrus.Fields{
				"trace_id":    traceID,
				"operation":   operation,
				"duration_ms": duration.Milliseconds(),
				"status_code": wrapped.statusCode,
				"success":     wrapped.statusCode >= 200 && wrapped.statusCode < 400,
			}).Debug("Request completed")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// determineOperation names the settings operation of a request
func determineOperation(r *http.Request) string {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if !strings.HasPrefix(path, "/api/v1/settings") {
		return ""
	}
	rest := strings.TrimPrefix(path, "/api/v1/settings")

	switch {
	case rest == "" && r.Method == http.MethodGet:
		switch r.URL.Query().Get("action") {
		case "set":
			return "update"
		case "erase":
			return "erase"
		case "restart":
			return "restart"
		}
		return "read"
	case rest == "":
		return "update"
	case rest == "/erase":
		return "erase"
	case rest == "/restart":
		return "restart"
	case r.Method == http.MethodPut:
		return "write_single"
	default:
		return "read_single"
	}
}

// GetTraceID extracts trace ID from context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetStartTime extracts start time from context
func GetStartTime(ctx context.Context) time.Time {
	if startTime, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return startTime
	}
	return time.Time{}
}

// GetOperation extracts operation from context
func GetOperation(ctx context.Context) string {
	if operation, ok := ctx.Value(OperationKey).(string); ok {
		return operation
	}
	return ""
}
