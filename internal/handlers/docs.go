package handlers

import (
	_ "embed"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openAPISpec []byte

// docsPage takes the build version. Swagger UI comes from jsDelivr; the page
// itself has no other assets.
const docsPage = `<!DOCTYPE html>
<html lang="zh-Hant">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>voice-forms-bot %[1]s</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
<style>
header { padding: 12px 24px; background: #06c755; color: #fff; font: 600 15px/1.4 sans-serif; }
header small { opacity: .8; font-weight: 400; margin-left: 8px; }
.swagger-ui .topbar { display: none; }
</style>
</head>
<body>
<header>voice-forms-bot<small>%[1]s</small></header>
<main id="api"></main>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
window.ui = SwaggerUIBundle({
  url: "/api/docs/openapi.yaml",
  dom_id: "#api",
  docExpansion: "list",
  defaultModelsExpandDepth: -1,
  supportedSubmitMethods: ["get"],
  tryItOutEnabled: false
});
</script>
</body>
</html>`

// ServeOpenAPISpec handles GET /api/docs/openapi.yaml.
func (h *Handler) ServeOpenAPISpec(c *gin.Context) {
	c.Data(http.StatusOK, "application/yaml", openAPISpec)
}

// ServeSwaggerUI handles GET /api/docs. Only GET operations can be tried
// from the page, since the webhook needs a LINE signature and the admin
// routes a key.
func (h *Handler) ServeSwaggerUI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", fmt.Appendf(nil, docsPage, h.Version))
}
