package api

import (
	_ "embed"
	"net/http"
)

// OpenAPI is the description of the ops endpoints.
//
//go:embed openapi.yaml
var OpenAPI []byte

// HandleOpenAPI handles GET /openapi.yaml.
func HandleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(OpenAPI)
}
