package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m Manager) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestManagerRecords(t *testing.T) {
	m := NewManager(Config{Enabled: true})

	m.RecordStoreOperation("save", true, 5*time.Millisecond)
	m.RecordStoreOperation("save", false, time.Millisecond)
	m.RecordKeyReadFailure("net:port")
	m.RecordSetterRejection("NUM")
	m.SetSettingsCount(9)

	body := scrape(t, m)
	assert.Contains(t, body, `nvsettings_store_operations_total{operation="save",result="success"} 1`)
	assert.Contains(t, body, `nvsettings_store_operations_total{operation="save",result="error"} 1`)
	assert.Contains(t, body, `nvsettings_store_key_read_failures_total{key="net:port"} 1`)
	assert.Contains(t, body, `nvsettings_settings_setter_rejections_total{type="NUM"} 1`)
	assert.Contains(t, body, `nvsettings_settings_count 9`)
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	m := NewManager(Config{Enabled: true, Namespace: "test"})

	router := mux.NewRouter()
	router.Use(m.Middleware())
	router.HandleFunc("/api/v1/settings/{group}/{setting}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/settings/net/port", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := scrape(t, m)
	assert.Contains(t, body, `test_http_requests_total{method="GET",route="/api/v1/settings/{group}/{setting}",status="404"} 1`)
}

func TestNoopManager(t *testing.T) {
	m := NewManager(Config{Enabled: false})

	m.RecordStoreOperation("load", true, time.Second)
	m.SetSettingsCount(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	called := false
	h := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
