package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Logging returns a middleware that logs HTTP requests. Behind Tracing
// the entry carries the settings operation and the duration is taken
// from the traced start time.
func Logging(logger *logrus.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := GetStartTime(r.Context())
			if start.IsZero() {
				start = time.Now()
			}

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			level := logrus.InfoLevel
			if wrapped.statusCode >= http.StatusInternalServerError {
				level = logrus.ErrorLevel
			}
			logger.WithFields(logrus.Fields{
				"trace_id":   GetTraceID(r.Context()),
				"operation":  GetOperation(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     wrapped.statusCode,
				"duration":   time.Since(start),
				"remote_ip":  r.RemoteAddr,
				"user_agent": r.UserAgent(),
			}).Log(level, "HTTP request")
		})
	}
}
