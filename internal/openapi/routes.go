package openapi

import (
	_ "embed"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/strefethen/freebox-hub-go/internal/api"
	"github.com/strefethen/freebox-hub-go/internal/apperrors"
)

//go:embed freebox-hub.v1.yaml
var embeddedSpec []byte

// RegisterRoutes wires OpenAPI routes to the router.
func RegisterRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/openapi", api.Handler(serveOpenAPIYAML()))
	router.Method(http.MethodGet, "/v1/openapi.json", api.Handler(serveOpenAPIJSON()))
}

// loadSpec returns the document at OPENAPI_SPEC_PATH when set and readable,
// otherwise the one compiled into the binary.
func loadSpec() []byte {
	if envPath := os.Getenv("OPENAPI_SPEC_PATH"); envPath != "" {
		if spec, err := os.ReadFile(envPath); err == nil {
			return spec
		}
	}
	return embeddedSpec
}

func serveOpenAPIYAML() func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(loadSpec())
		return nil
	}
}

func serveOpenAPIJSON() func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		// yaml.v3 decodes mappings with string keys, which encoding/json accepts.
		var parsed any
		if err := yaml.Unmarshal(loadSpec(), &parsed); err != nil {
			return apperrors.NewInternalError("Failed to parse OpenAPI specification")
		}
		return api.WriteJSON(w, http.StatusOK, parsed)
	}
}
