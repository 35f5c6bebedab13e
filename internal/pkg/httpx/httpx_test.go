package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler fiber.Handler) (int, map[string]interface{}) {
	t.Helper()

	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func TestOKEnvelope(t *testing.T) {
	status, payload := serve(t, func(c *fiber.Ctx) error {
		return OK(c, fiber.Map{"invoice_id": "inv-1"})
	})

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, payload["success"])
	data := payload["data"].(map[string]interface{})
	assert.Equal(t, "inv-1", data["invoice_id"])
}

func TestCreatedEnvelope(t *testing.T) {
	status, payload := serve(t, func(c *fiber.Ctx) error {
		return Created(c, fiber.Map{"id": "r-1"})
	})

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, payload["success"])
}

func TestFailEnvelope(t *testing.T) {
	status, payload := serve(t, func(c *fiber.Ctx) error {
		return Fail(c, fiber.StatusConflict, CodeConflict, "invoice is not refundable")
	})

	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, false, payload["success"])
	errObj := payload["error"].(map[string]interface{})
	assert.Equal(t, CodeConflict, errObj["code"])
	assert.Equal(t, "invoice is not refundable", errObj["message"])
	_, hasDetails := errObj["details"]
	assert.False(t, hasDetails)
}

func TestFailWithDetailsEnvelope(t *testing.T) {
	status, payload := serve(t, func(c *fiber.Ctx) error {
		return FailWithDetails(c, fiber.StatusBadRequest, CodeMissingParams, "validation failed",
			fiber.Map{"field": "amount"})
	})

	assert.Equal(t, http.StatusBadRequest, status)
	errObj := payload["error"].(map[string]interface{})
	assert.Equal(t, CodeMissingParams, errObj["code"])
	details := errObj["details"].(map[string]interface{})
	assert.Equal(t, "amount", details["field"])
}
