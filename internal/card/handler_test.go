package card_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/giftcard/internal/card"
)

func newApp() *fiber.App {
	h := card.NewHandler(newService())
	app := fiber.New()
	app.Post("/cards", h.Issue)
	app.Get("/cards/:cardId", h.Get)
	app.Post("/cards/:cardId/bind", h.Bind)
	app.Get("/owners/:ownerId/cards", h.ListByOwner)
	return app
}

func call(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestHandlerIssueBindList(t *testing.T) {
	app := newApp()

	status, body := call(t, app, http.MethodPost, "/cards", `{"par_value":"20.00","expire_time":"2030-01-01T00:00:00Z"}`)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %+v", status, body)
	}
	issued, _ := body["card"].(map[string]any)
	code, _ := body["code"].(string)
	id, _ := issued["id"].(string)
	if issued["status"] != string(card.StatusInit) || issued["balance"] != "20.00" || code == "" {
		t.Fatalf("unexpected issue body: %+v", body)
	}

	status, _ = call(t, app, http.MethodPost, "/cards/"+id+"/bind", `{"code":"nope","owner_id":"alice"}`)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	status, body = call(t, app, http.MethodPost, "/cards/"+id+"/bind", `{"code":"`+code+`","owner_id":"alice"}`)
	if status != http.StatusOK || body["status"] != string(card.StatusValid) {
		t.Fatalf("unexpected bind response %d: %+v", status, body)
	}
	status, _ = call(t, app, http.MethodPost, "/cards/"+id+"/bind", `{"code":"`+code+`","owner_id":"bob"}`)
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}

	status, body = call(t, app, http.MethodGet, "/owners/alice/cards", "")
	cards, _ := body["cards"].([]any)
	if status != http.StatusOK || len(cards) != 1 {
		t.Fatalf("unexpected list response %d: %+v", status, body)
	}

	if status, _ = call(t, app, http.MethodGet, "/cards/unknown", ""); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if status, _ = call(t, app, http.MethodPost, "/cards", `{"par_value":"0"}`); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}
