package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testApp() *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{
		MaxQuestionLength: 100,
		MaxKnowledgeSize:  200,
		Logger:            zap.NewNop(),
	}))

	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Post("/api/v1/qa/ask", ok)
	app.Post("/api/v1/chapters/ch1/merge", ok)
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()

	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestAskRequiresQuestion(t *testing.T) {
	app := testApp()

	assert.Equal(t, fiber.StatusOK,
		post(t, app, "/api/v1/qa/ask", `{"question":"What causes vasospasm?"}`))
	assert.Equal(t, fiber.StatusBadRequest,
		post(t, app, "/api/v1/qa/ask", `{"question":""}`))
	assert.Equal(t, fiber.StatusBadRequest,
		post(t, app, "/api/v1/qa/ask", `{"chapter_id":"ch1"}`))
}

func TestMergeAllowsEmptyKnowledge(t *testing.T) {
	app := testApp()

	// An empty payload reaches the handler, which answers with a no-op.
	assert.Equal(t, fiber.StatusOK,
		post(t, app, "/api/v1/chapters/ch1/merge", `{"new_knowledge":""}`))
	assert.Equal(t, fiber.StatusOK,
		post(t, app, "/api/v1/chapters/ch1/merge", `{}`))

	// Present values are still screened.
	long := strings.Repeat("a", 201)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge,
		post(t, app, "/api/v1/chapters/ch1/merge", `{"new_knowledge":"`+long+`"}`))
}

func TestInjectionPatternsRejected(t *testing.T) {
	app := testApp()

	assert.Equal(t, fiber.StatusBadRequest,
		post(t, app, "/api/v1/qa/ask", `{"question":"<script>alert(1)</script>"}`))
	assert.Equal(t, fiber.StatusBadRequest,
		post(t, app, "/api/v1/chapters/ch1/merge", `{"new_knowledge":"x; DROP TABLE chapters"}`))
}

func TestOversizedQuestionRejected(t *testing.T) {
	app := testApp()

	long := strings.Repeat("q", 101)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge,
		post(t, app, "/api/v1/qa/ask", `{"question":"`+long+`"}`))
}

func TestNonJSONContentTypeRejected(t *testing.T) {
	app := testApp()

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/qa/ask", strings.NewReader("question=x"))
	req.Header.Set("Content-Type", "text/plain")

	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)
}
