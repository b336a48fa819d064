package httpapi

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.yaml
var openAPIDocument []byte

const swaggerPage = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Real Karma League API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: "/openapi.yaml", dom_id: "#swagger-ui", deepLinking: true });
  </script>
</body>
</html>
`

// OpenAPI serves the embedded API document. Registered only when
// SWAGGER_ENABLED is set.
func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	serveStatic(h, w, r, "application/yaml; charset=utf-8", openAPIDocument)
}

func (h *Handler) SwaggerUI(w http.ResponseWriter, r *http.Request) {
	serveStatic(h, w, r, "text/html; charset=utf-8", []byte(swaggerPage))
}

func serveStatic(h *Handler, w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if _, err := w.Write(body); err != nil {
		h.logger.WarnContext(r.Context(), "write static response failed", "path", r.URL.Path, "error", err)
	}
}
