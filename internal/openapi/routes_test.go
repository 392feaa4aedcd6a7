package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newRouter() *chi.Mux {
	router := chi.NewRouter()
	RegisterRoutes(router)
	return router
}

func TestServeOpenAPIYAML(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/openapi", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "yaml")
	require.Contains(t, rec.Body.String(), "/v1/freebox/playback/start")
}

func TestServeOpenAPIJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "3.0.3", doc["openapi"])
	paths := doc["paths"].(map[string]any)
	require.Contains(t, paths, "/v1/freebox/authorize/{track_id}")
	require.Contains(t, paths, "/v1/schedules/{schedule_id}")
}

func TestSpecPathOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openapi: 3.1.0\npaths: {}\n"), 0o600))
	t.Setenv("OPENAPI_SPEC_PATH", path)

	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	require.Contains(t, rec.Body.String(), `"3.1.0"`)

	t.Setenv("OPENAPI_SPEC_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	rec = httptest.NewRecorder()
	newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/openapi.json", nil))
	require.Contains(t, rec.Body.String(), `"3.0.3"`)
}
