package apiv1

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAPIFile = "../../../public/docs/v1/openapi.yml"

var fiberParam = regexp.MustCompile(`:([A-Za-z0-9_]+)`)

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(openAPIFile)
	require.NoError(t, err)
	require.NoError(t, doc.Validate(loader.Context))
	return doc
}

func TestOpenAPI_DocumentsEveryRoute(t *testing.T) {
	doc := loadOpenAPI(t)

	app := fiber.New()
	RegisterHandlers(app, NewAPIServer(nil))

	routes := 0
	for _, r := range app.GetRoutes(true) {
		if r.Method == http.MethodHead {
			continue
		}
		routes++
		p := fiberParam.ReplaceAllString(r.Path, "{$1}")
		item := doc.Paths.Value(p)
		if !assert.NotNil(t, item, "path %s is not documented", p) {
			continue
		}
		assert.NotNil(t, item.GetOperation(r.Method), "%s %s is not documented", r.Method, p)
	}
	assert.Equal(t, 6, routes)
}

func TestOpenAPI_ServerMatchesMountPoint(t *testing.T) {
	doc := loadOpenAPI(t)

	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "/api/v1", doc.Servers[0].URL)
}
