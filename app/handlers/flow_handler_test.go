package handlers

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chatrasa/chatrasa/app/dto"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubExchangeFlow returns a canned response or error for every step.
type stubExchangeFlow struct {
	response string
	err      error
}

func (s *stubExchangeFlow) Exchange(ctx context.Context, req *dto.FlowExchangeRequest) (string, error) {
	return s.response, s.err
}

func newExchangeApp(flow *stubExchangeFlow) *fiber.App {
	app := fiber.New()
	app.Post("/flows/exchange", NewFlowHandler(flow).Exchange)
	return app
}

func postExchange(t *testing.T, app *fiber.App, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/flows/exchange", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestFlowExchangeHandler(t *testing.T) {
	validBody := `{"encrypted_flow_data":"ZGF0YQ==","encrypted_aes_key":"a2V5","initial_vector":"aXY="}`

	t.Run("EncryptedResponseReturnedAsPlainText", func(t *testing.T) {
		app := newExchangeApp(&stubExchangeFlow{response: "c2VhbGVk"})
		status, body := postExchange(t, app, validBody)
		assert.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, "c2VhbGVk", body)
	})

	t.Run("MalformedJSONRejected", func(t *testing.T) {
		app := newExchangeApp(&stubExchangeFlow{})
		status, _ := postExchange(t, app, "{not json")
		assert.Equal(t, fiber.StatusBadRequest, status)
	})

	t.Run("MissingFieldRejected", func(t *testing.T) {
		app := newExchangeApp(&stubExchangeFlow{})
		status, _ := postExchange(t, app, `{"encrypted_flow_data":"ZGF0YQ=="}`)
		assert.Equal(t, fiber.StatusBadRequest, status)
	})

	t.Run("DecryptionFailureIsBodylessServerError", func(t *testing.T) {
		app := newExchangeApp(&stubExchangeFlow{err: errors.New("no key decrypts the envelope")})
		status, body := postExchange(t, app, validBody)
		assert.Equal(t, fiber.StatusInternalServerError, status)
		assert.Empty(t, body, "the gateway only re-requests keys on an empty 500")
	})
}
