package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRouter_DocsRoutesFollowSwaggerFlag(t *testing.T) {
	t.Parallel()

	handler := NewHandler(nil, nil, nil, nil, nil, nil, nil)
	for _, enabled := range []bool{true, false} {
		router := NewRouter(handler, nil, nil, RouterConfig{SwaggerEnabled: enabled})
		for path, contentType := range map[string]string{
			"/openapi.yaml": "application/yaml",
			"/docs":         "text/html",
		} {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			if !enabled {
				if rec.Code != http.StatusNotFound {
					t.Fatalf("%s served with swagger disabled: %d", path, rec.Code)
				}
				continue
			}
			if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), contentType) {
				t.Fatalf("%s: status %d content type %q", path, rec.Code, rec.Header().Get("Content-Type"))
			}
		}
	}
}

func TestOpenAPIDocument_ListsJobRoutes(t *testing.T) {
	t.Parallel()

	doc := string(openAPIDocument)
	for _, path := range []string{"/v1/internal/jobs/sample", "/v1/relegation/{seasonID}/execute"} {
		if !strings.Contains(doc, path) {
			t.Fatalf("openapi document is missing %s", path)
		}
	}
}
