package wallet

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/waleedelsefy/imv-whatsapp-api/internal/ledger"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/logging"
	"github.com/waleedelsefy/imv-whatsapp-api/internal/middleware"
)

type phoneBook map[string]string

func (p phoneBook) LookupID(_ context.Context, phone string) (string, bool, error) {
	id, ok := p[phone]
	return id, ok, nil
}

func setupHandlerApp(t *testing.T) (*fiber.App, ledger.Store) {
	t.Helper()
	svc, store := newTestService(t, "c1")
	h := NewHandler(svc, phoneBook{"201001234567": "c1"})

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.Discard())})
	app.Post("/check-wallet", h.Check)
	app.Post("/update-wallet", h.Update)
	app.Post("/hold-balance", h.Hold)
	app.Post("/release-balance", h.Release)
	app.Post("/deduct-pending", h.DeductPending)
	app.Post("/topup-wallet", h.TopUp)
	app.Post("/wallet-history", h.History)
	return app, store
}

func post(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return resp.StatusCode, decoded
}

func TestHandlerHoldAndCheck(t *testing.T) {
	app, store := setupHandlerApp(t)
	ledger.SeedBalance(store, "c1", dec("100"), dec("0"))

	status, body := post(t, app, "/hold-balance", `{"phone":"201001234567","amount":"25.5"}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	data := body["data"].(map[string]any)
	if data["new_available_balance"].(float64) != 74.5 || data["new_pending_balance"].(float64) != 25.5 {
		t.Fatalf("unexpected hold response %v", data)
	}

	status, body = post(t, app, "/check-wallet", `{"phone":"201001234567"}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	data = body["data"].(map[string]any)
	if data["available_balance"].(float64) != 74.5 || data["currency"] != defaultCurrency {
		t.Fatalf("unexpected check response %v", data)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	app, store := setupHandlerApp(t)
	ledger.SeedBalance(store, "c1", dec("10"), dec("0"))

	cases := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantTag    string
	}{
		{"unknown phone", "/check-wallet", `{"phone":"999"}`, fiber.StatusNotFound, "not_found"},
		{"missing amount", "/hold-balance", `{"phone":"201001234567"}`, fiber.StatusBadRequest, "error"},
		{"malformed amount", "/hold-balance", `{"phone":"201001234567","amount":"ten"}`, fiber.StatusBadRequest, "error"},
		{"boolean amount", "/update-wallet", `{"phone":"201001234567","amount":true}`, fiber.StatusBadRequest, "error"},
		{"non-positive hold", "/hold-balance", `{"phone":"201001234567","amount":0}`, fiber.StatusBadRequest, "error"},
		{"insufficient funds", "/hold-balance", `{"phone":"201001234567","amount":11}`, fiber.StatusBadRequest, "error"},
		{"insufficient held funds", "/release-balance", `{"phone":"201001234567","amount":1}`, fiber.StatusBadRequest, "error"},
		{"missing phone", "/deduct-pending", `{"amount":1}`, fiber.StatusBadRequest, "error"},
		{"sub-cent hold", "/hold-balance", `{"phone":"201001234567","amount":"0.005"}`, fiber.StatusBadRequest, "error"},
		{"sub-cent adjustment", "/update-wallet", `{"phone":"201001234567","amount":0.001}`, fiber.StatusBadRequest, "error"},
		{"amount out of range", "/topup-wallet", `{"phone":"201001234567","amount":"1e16"}`, fiber.StatusBadRequest, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := post(t, app, tc.path, tc.body)
			if status != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %v", tc.wantStatus, status, body)
			}
			if body["status"] != tc.wantTag {
				t.Fatalf("expected status tag %q, got %v", tc.wantTag, body["status"])
			}
			if msg, _ := body["message"].(string); msg == "" {
				t.Fatalf("expected an error message")
			}
		})
	}
}

func TestHandlerUpdateAndHistory(t *testing.T) {
	app, _ := setupHandlerApp(t)

	status, body := post(t, app, "/update-wallet", `{"phone":"201001234567","amount":-3.25}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	data := body["data"].(map[string]any)
	if data["old_balance"].(float64) != 0 || data["new_balance"].(float64) != -3.25 {
		t.Fatalf("unexpected update response %v", data)
	}

	status, body = post(t, app, "/wallet-history", `{"phone":"201001234567","limit":5}`)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	entries := body["data"].(map[string]any)["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("expected adjust and initialize entries, got %d", len(entries))
	}
	if entries[0].(map[string]any)["kind"] != ledger.KindAdjust {
		t.Fatalf("expected newest entry to be the adjustment, got %v", entries[0])
	}
}

func TestHandlerSubCentHoldLeavesBalancesIntact(t *testing.T) {
	app, store := setupHandlerApp(t)
	ledger.SeedBalance(store, "c1", dec("10"), dec("0"))

	for i := 0; i < 3; i++ {
		if status, body := post(t, app, "/hold-balance", `{"phone":"201001234567","amount":"0.005"}`); status != fiber.StatusBadRequest {
			t.Fatalf("expected 400, got %d: %v", status, body)
		}
	}
	_, body := post(t, app, "/check-wallet", `{"phone":"201001234567"}`)
	data := body["data"].(map[string]any)
	if data["available_balance"].(float64) != 10 || data["pending_balance"].(float64) != 0 {
		t.Fatalf("expected 10/0, got %v", data)
	}
}

func TestParseAmount(t *testing.T) {
	valid := map[string]string{`12`: "12", `"12.50"`: "12.5", `-4.1`: "-4.1", `" 7 "`: "7", `"3.100"`: "3.1", `9999999999999999.99`: "9999999999999999.99"}
	for raw, want := range valid {
		got, err := ParseAmount(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		if !got.Equal(dec(want)) {
			t.Fatalf("parse %s: want %s got %s", raw, want, got)
		}
	}
	for _, raw := range []string{``, `null`, `""`, `"abc"`, `true`, `{}`, `[1]`, `"0.005"`, `1.001`, `1e16`, `"-10000000000000000"`} {
		if _, err := ParseAmount(json.RawMessage(raw)); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}
