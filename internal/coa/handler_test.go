package coa

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/coa_auth/internal/index"
	"github.com/congo-pay/coa_auth/internal/wallet"
)

const testCallerHeader = "X-Test-Wallet"

func setupHandlerApp(t *testing.T, mode index.Mode) *fiber.App {
	t.Helper()
	h := newHarness(t, mode, index.RoutingHash, 4, PolicyPrimary)
	handler := NewHandler(h.svc)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if raw := c.Get(testCallerHeader); raw != "" {
			caller, err := wallet.ParseAddress(raw)
			if err != nil {
				return fiber.NewError(fiber.StatusUnauthorized, err.Error())
			}
			c.Locals(CallerLocal, caller)
		}
		return c.Next()
	})
	app.Get("/registry", handler.Registry)
	app.Post("/onboard", handler.Onboard)
	app.Post("/authorized-wallets", handler.AddAuthorizedWallet)
	app.Delete("/authorized-wallets/:wallet", handler.RemoveAuthorizedWallet)
	app.Post("/primary/transfer", handler.TransferPrimary)
	app.Post("/primary/set", handler.SetPrimary)
	app.Post("/leave", handler.Leave)
	app.Post("/dissolve", handler.Dissolve)
	app.Get("/accounts/:wallet", handler.Account)
	app.Get("/identities/:userId", handler.Identity)
	app.Get("/lookup/:wallet", handler.Lookup)
	app.Get("/shards/:shardId", handler.Shard)
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, caller *wallet.Address, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if caller != nil {
		req.Header.Set(testCallerHeader, caller.String())
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func TestHandlerRequiresCaller(t *testing.T) {
	app := setupHandlerApp(t, index.ModeSharded)
	if status, _ := do(t, app, fiber.MethodPost, "/onboard", nil, ""); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestHandlerLifecycle(t *testing.T) {
	app := setupHandlerApp(t, index.ModeSharded)
	primary, member := w(1), w(2)

	status, body := do(t, app, fiber.MethodPost, "/onboard", &primary, "")
	if status != fiber.StatusCreated {
		t.Fatalf("onboard: expected 201, got %d", status)
	}
	if body["state"] != "primary" || body["user_id"].(float64) != 1 {
		t.Fatalf("unexpected onboard body %v", body)
	}
	if status, _ := do(t, app, fiber.MethodPost, "/onboard", &primary, ""); status != fiber.StatusConflict {
		t.Fatalf("double onboard: expected 409, got %d", status)
	}

	addBody := `{"wallet":"` + member.String() + `"}`
	if status, _ := do(t, app, fiber.MethodPost, "/authorized-wallets", &primary, addBody); status != fiber.StatusCreated {
		t.Fatalf("add: expected 201, got %d", status)
	}
	if status, _ := do(t, app, fiber.MethodPost, "/authorized-wallets", &member, `{"wallet":"`+w(3).String()+`"}`); status != fiber.StatusForbidden {
		t.Fatalf("member add: expected 403, got %d", status)
	}

	status, body = do(t, app, fiber.MethodGet, "/lookup/"+member.String(), nil, "")
	if status != fiber.StatusOK || body["user_id"].(float64) != 1 {
		t.Fatalf("lookup: %d %v", status, body)
	}

	transfer := `{"new_primary":"` + member.String() + `"}`
	if status, _ := do(t, app, fiber.MethodPost, "/primary/set", &primary, transfer); status != fiber.StatusOK {
		t.Fatalf("set primary: expected 200, got %d", status)
	}
	status, body = do(t, app, fiber.MethodGet, "/accounts/"+primary.String(), nil, "")
	if status != fiber.StatusOK || body["state"] != "authorized" {
		t.Fatalf("demoted account: %d %v", status, body)
	}

	if status, _ := do(t, app, fiber.MethodDelete, "/authorized-wallets/"+member.String(), &member, ""); status != fiber.StatusBadRequest {
		t.Fatalf("self remove: expected 400, got %d", status)
	}
	if status, _ := do(t, app, fiber.MethodPost, "/leave", &primary, ""); status != fiber.StatusNoContent {
		t.Fatalf("leave: expected 204, got %d", status)
	}
	if status, _ := do(t, app, fiber.MethodGet, "/lookup/"+primary.String(), nil, ""); status != fiber.StatusNotFound {
		t.Fatalf("lookup after leave: expected 404, got %d", status)
	}

	status, body = do(t, app, fiber.MethodGet, "/identities/1", nil, "")
	if status != fiber.StatusOK || body["primary_wallet"] != member.String() {
		t.Fatalf("identity: %d %v", status, body)
	}

	status, body = do(t, app, fiber.MethodPost, "/dissolve", &member, "")
	if status != fiber.StatusOK || len(body["released"].([]any)) != 1 {
		t.Fatalf("dissolve: %d %v", status, body)
	}
	if status, _ := do(t, app, fiber.MethodGet, "/identities/1", nil, ""); status != fiber.StatusNotFound {
		t.Fatalf("identity after dissolve: expected 404, got %d", status)
	}
}

func TestHandlerValidation(t *testing.T) {
	app := setupHandlerApp(t, index.ModeSharded)
	primary := w(1)
	do(t, app, fiber.MethodPost, "/onboard", &primary, "")

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad wallet param", fiber.MethodGet, "/accounts/not-base58-0OIl", "", fiber.StatusBadRequest},
		{"bad shard query", fiber.MethodGet, "/lookup/" + primary.String() + "?shard_id=70000", "", fiber.StatusBadRequest},
		{"shard out of range", fiber.MethodGet, "/shards/9", "", fiber.StatusBadRequest},
		{"missing wallet", fiber.MethodPost, "/authorized-wallets", `{}`, fiber.StatusBadRequest},
		{"unknown identity", fiber.MethodGet, "/identities/42", "", fiber.StatusNotFound},
		{"invalid user id", fiber.MethodGet, "/identities/zero", "", fiber.StatusBadRequest},
	}
	for _, tc := range cases {
		if status, _ := do(t, app, tc.method, tc.path, &primary, tc.body); status != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, status)
		}
	}

	status, body := do(t, app, fiber.MethodGet, "/shards/0", nil, "")
	if status != fiber.StatusOK || body["capacity"].(float64) != index.MaxItems {
		t.Fatalf("shard: %d %v", status, body)
	}
}

func TestHandlerShardsUnavailableWithoutShardedIndex(t *testing.T) {
	app := setupHandlerApp(t, index.ModeMap)
	if status, _ := do(t, app, fiber.MethodGet, "/shards/0", nil, ""); status != fiber.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", status)
	}
}
