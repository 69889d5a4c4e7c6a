package handler

import (
	"net/http"

	"payment-webhook-queue/api"

	"github.com/gin-gonic/gin"
)

const docsPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Payment Webhook Queue - API Docs</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/docs/openapi.yaml',
      dom_id: '#swagger-ui',
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`

// APISpec serves the embedded OpenAPI YAML.
func APISpec(c *gin.Context) {
	c.Data(http.StatusOK, "application/x-yaml", api.OpenAPI)
}

// APIDocs serves a Swagger UI page that loads /docs/openapi.yaml.
func APIDocs(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(docsPage))
}
