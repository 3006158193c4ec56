package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kartikrastogi18/FitConnect/internal/services"
	"github.com/stretchr/testify/assert"
)

func TestStatusForKind(t *testing.T) {
	cases := map[services.Kind]int{
		services.KindValidation:   http.StatusBadRequest,
		services.KindUnauthorized: http.StatusUnauthorized,
		services.KindForbidden:    http.StatusForbidden,
		services.KindNotFound:     http.StatusNotFound,
		services.KindConflict:     http.StatusConflict,
		services.KindInvalidState: http.StatusUnprocessableEntity,
		services.KindUpstream:     http.StatusBadGateway,
		services.KindInternal:     http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, statusForKind(kind), string(kind))
	}
}

func TestWriteServiceErrorHidesInternalDetail(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return writeServiceError(c, quietLogger(), fmt.Errorf("list chats: %w", errors.New("pq: password authentication failed")))
	})

	resp, body := doJSON(t, app, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", body["error"])
	assert.Equal(t, "internal", body["kind"])
}
