package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureRequestLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := Logger
	t.Cleanup(func() { Logger = prev })
	var buf bytes.Buffer
	Logger = NewLogger("production", &buf)
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestStructuredLogger_Levels(t *testing.T) {
	buf := captureRequestLog(t)

	app := fiber.New()
	app.Use(requestid.New(), ContextMiddleware(), StructuredLogger())
	app.Get("/health/live", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/posts/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })
	app.Get("/boom", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusInternalServerError) })

	for _, path := range []string{"/health/live", "/posts/9", "/boom"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	// Health probes log at debug, below the info threshold.
	recs := decodeLines(t, buf)
	require.Len(t, recs, 2)

	assert.Equal(t, "WARN", recs[0]["level"])
	assert.Equal(t, "/posts/:id", recs[0]["route"])
	assert.NotEmpty(t, recs[0]["request_id"])

	assert.Equal(t, "ERROR", recs[1]["level"])
	assert.Equal(t, "request failed", recs[1]["msg"])
	assert.EqualValues(t, 500, recs[1]["status"])
}

func TestNewLogger_TextOutsideProduction(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("development", &buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}
