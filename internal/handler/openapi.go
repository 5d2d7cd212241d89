package handler

import (
	"net/http"

	"github.com/reelvault/reelvault/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI document of the public movie API.
type OpenAPIHandler struct {
	version string
	header  string
}

// NewOpenAPIHandler creates a new OpenAPIHandler. header is the API key
// header the gateway reads.
func NewOpenAPIHandler(version, header string) *OpenAPIHandler {
	return &OpenAPIHandler{version: version, header: header}
}

// ServeSpec returns the public API document with the server URL taken from
// the request.
// GET /api/openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, openapi.GeneratePublicSpec(baseURL(r), h.version, h.header))
}

// baseURL derives the externally visible origin of the request.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
