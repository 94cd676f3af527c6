package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestTracing_GeneratesTraceID(t *testing.T) {
	var seen string
	handler := Tracing(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetTraceID(r.Context())
		assert.False(t, GetStartTime(r.Context()).IsZero())
		assert.Equal(t, "read", GetOperation(r.Context()))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rr.Header().Get(TraceIDHeader))
}

func TestTracing_ReusesUpstreamID(t *testing.T) {
	id := uuid.New().String()
	handler := Tracing(testLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(TraceIDHeader, id)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, id, rr.Header().Get(TraceIDHeader))

	req.Header.Set(TraceIDHeader, "not-a-uuid")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.NotEqual(t, "not-a-uuid", rr.Header().Get(TraceIDHeader))
}

func TestDetermineOperation(t *testing.T) {
	tests := []struct {
		method string
		target string
		want   string
	}{
		{http.MethodGet, "/api/v1/settings", "read"},
		{http.MethodGet, "/api/v1/settings?action=set", "update"},
		{http.MethodGet, "/api/v1/settings?action=erase", "erase"},
		{http.MethodGet, "/api/v1/settings?action=restart", "restart"},
		{http.MethodPost, "/api/v1/settings", "update"},
		{http.MethodPost, "/api/v1/settings/erase", "erase"},
		{http.MethodPost, "/api/v1/settings/restart", "restart"},
		{http.MethodGet, "/api/v1/settings/net/port", "read_single"},
		{http.MethodPut, "/api/v1/settings/net/port", "write_single"},
		{http.MethodGet, "/metrics", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, determineOperation(httptest.NewRequest(tt.method, tt.target, nil)))
		})
	}
}

func TestCORS(t *testing.T) {
	called := false
	handler := CORS()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/v1/settings", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called, "preflight is answered directly")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil))
	assert.True(t, called)
}

func TestLogging_PassesThrough(t *testing.T) {
	handler := Logging(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestLogging_RecordsTracedOperation(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	handler := Tracing(logger)(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/settings/net/port", nil))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "HTTP request", entry.Message)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "write_single", entry.Data["operation"])
	assert.Equal(t, rr.Header().Get(TraceIDHeader), entry.Data["trace_id"])
	assert.Equal(t, http.StatusInternalServerError, entry.Data["status"])
}

func TestWriteLimit(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	handler := writeLimit(WriteLimitConfig{WritesPerSecond: 1, BurstSize: 2}, func() time.Time { return now })(okHandler())

	do := func(method, target string) int {
		req := httptest.NewRequest(method, target, nil)
		req.RemoteAddr = "192.0.2.10:4711"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/api/v1/settings"))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/v1/settings?action=set"))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPut, "/api/v1/settings/net/port"))

	// reads are never limited
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/v1/settings"))

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/api/v1/settings/erase"))
}

func TestWriteLimit_Disabled(t *testing.T) {
	handler := WriteLimit(WriteLimitConfig{})(okHandler())
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/settings", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestIPKeyExtractor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
	assert.Equal(t, "203.0.113.7", IPKeyExtractor(req))

	// forwarded headers from public peers are ignored
	req.RemoteAddr = "198.51.100.1:1234"
	assert.Equal(t, "198.51.100.1", IPKeyExtractor(req))

	req.RemoteAddr = "[::1]:8080"
	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "::1", IPKeyExtractor(req))
}
