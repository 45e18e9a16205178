package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tenantcart/apiserver/config"
	"github.com/tenantcart/apiserver/internal/idempotency"
	"github.com/tenantcart/apiserver/internal/services"
	"github.com/tenantcart/apiserver/internal/store"
)

const testSecret = "test-secret"

type testAPI struct {
	handler http.Handler
	store   *store.MemoryAccountStore
}

func newTestAPI(t *testing.T, authRequired bool) testAPI {
	t.Helper()

	accountStore := store.NewMemoryAccountStore()
	accounts := services.NewAccountService(accountStore, time.Second)
	orders := services.NewOrderService(accountStore, time.Second,
		services.WithIdempotencyGuard(idempotency.NewMemoryGuard(time.Hour)),
	)
	catalog, err := services.NewCatalogService(nil, "catalog.json")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	auth := NewAuthenticator(config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour, Required: authRequired})

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		APIRouter(r, accounts, orders, catalog, auth)
	})
	return testAPI{handler: router, store: accountStore}
}

func (a testAPI) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) map[string]any {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	return decodeBody(t, rec)
}

func (a testAPI) signup(t *testing.T, tenantID, userID, password, userType string) {
	t.Helper()
	body := `{"tenantID":"` + tenantID + `","userID":"` + userID + `","password":"` + password + `","data":{"userType":"` + userType + `"}}`
	expectStatus(t, a.do(t, http.MethodPost, "/api/signup", body, nil), http.StatusCreated)
}

func (a testAPI) login(t *testing.T, tenantID, userID, password string) string {
	t.Helper()
	body := `{"tenantID":"` + tenantID + `","userID":"` + userID + `","password":"` + password + `"}`
	resp := expectStatus(t, a.do(t, http.MethodPost, "/api/login", body, nil), http.StatusOK)
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token: %v", resp)
	}
	return token
}

func TestPing(t *testing.T) {
	api := newTestAPI(t, false)
	resp := expectStatus(t, api.do(t, http.MethodGet, "/api/ping", "", nil), http.StatusOK)
	if resp["success"] != true || resp["message"] != "API router is working!" {
		t.Fatalf("unexpected ping response: %v", resp)
	}
}

func TestSignupMessages(t *testing.T) {
	api := newTestAPI(t, false)

	resp := expectStatus(t, api.do(t, http.MethodPost, "/api/signup",
		`{"tenantID":"acme","userID":"owner","password":"secret123","data":{"userType":"tenant"}}`, nil), http.StatusCreated)
	if resp["message"] != "Tenant admin account created successfully!" {
		t.Fatalf("unexpected message: %v", resp["message"])
	}

	resp = expectStatus(t, api.do(t, http.MethodPost, "/api/signup",
		`{"tenantID":"acme","userID":"alice","password":"secret123"}`, nil), http.StatusCreated)
	if resp["message"] != "User account created successfully!" {
		t.Fatalf("unexpected message: %v", resp["message"])
	}
}

func TestSignupDuplicateKeepsOriginal(t *testing.T) {
	api := newTestAPI(t, false)
	api.signup(t, "acme", "alice", "secret123", "user")

	resp := expectStatus(t, api.do(t, http.MethodPost, "/api/signup",
		`{"tenantID":"acme","userID":"alice","password":"other-pass","data":{"userType":"tenant"}}`, nil), http.StatusConflict)
	if resp["success"] != false {
		t.Fatalf("expected failure envelope: %v", resp)
	}

	api.login(t, "acme", "alice", "secret123")
	expectStatus(t, api.do(t, http.MethodPost, "/api/login",
		`{"tenantID":"acme","userID":"alice","password":"other-pass"}`, nil), http.StatusUnauthorized)
}

func TestSignupValidation(t *testing.T) {
	api := newTestAPI(t, false)

	cases := []struct {
		name    string
		body    string
		message string
	}{
		{"short password", `{"tenantID":"acme","userID":"alice","password":"ab"}`, "password must be at least 3 characters long"},
		{"one multibyte rune", `{"tenantID":"acme","userID":"alice","password":"日"}`, "password must be at least 3 characters long"},
		{"two accented runes", `{"tenantID":"acme","userID":"alice","password":"éé"}`, "password must be at least 3 characters long"},
		{"missing user", `{"tenantID":"acme","password":"secret"}`, "Missing required fields: tenantID, userID, and password are required"},
		{"blank tenant", `{"tenantID":"   ","userID":"alice","password":"secret"}`, "tenantID must be a non-empty string"},
		{"numeric tenant", `{"tenantID":42,"userID":"alice","password":"secret"}`, "tenantID must be a string"},
		{"data not object", `{"tenantID":"acme","userID":"alice","password":"secret","data":"x"}`, "data must be an object"},
		{"malformed", `{"tenantID":`, "invalid JSON body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := expectStatus(t, api.do(t, http.MethodPost, "/api/signup", tc.body, nil), http.StatusBadRequest)
			if resp["message"] != tc.message {
				t.Fatalf("expected %q, got %q", tc.message, resp["message"])
			}
		})
	}

	expectStatus(t, api.do(t, http.MethodPost, "/api/login",
		`{"tenantID":"acme","userID":"alice","password":"ab"}`, nil), http.StatusUnauthorized)

	expectStatus(t, api.do(t, http.MethodPost, "/api/signup",
		`{"tenantID":"acme","userID":"kenji","password":"日本語"}`, nil), http.StatusCreated)
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t, false)
	api.signup(t, "acme", "alice", "secret123", "user")

	rec := api.do(t, http.MethodPost, "/api/login", `{"tenantID":"acme","userID":"alice","password":"secret123"}`, nil)
	resp := expectStatus(t, rec, http.StatusOK)
	if resp["message"] != "Login successful" {
		t.Fatalf("unexpected message: %v", resp["message"])
	}
	user, _ := resp["user"].(map[string]any)
	if user["userID"] != "alice" || user["tenantID"] != "acme" {
		t.Fatalf("unexpected user: %v", user)
	}
	data, _ := user["data"].(map[string]any)
	if data["role"] != "user" {
		t.Fatalf("expected role user, got %v", data["role"])
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("login response leaks password material: %s", rec.Body.String())
	}

	for _, body := range []string{
		`{"tenantID":"acme","userID":"alice","password":"wrong"}`,
		`{"tenantID":"acme","userID":"ghost","password":"secret123"}`,
	} {
		resp := expectStatus(t, api.do(t, http.MethodPost, "/api/login", body, nil), http.StatusUnauthorized)
		if resp["message"] != "Invalid credentials" {
			t.Fatalf("expected uniform message, got %v", resp["message"])
		}
	}

	expectStatus(t, api.do(t, http.MethodPost, "/api/login", `{"tenantID":"acme","userID":"alice"}`, nil), http.StatusBadRequest)
}

func TestBuyAndListOrders(t *testing.T) {
	api := newTestAPI(t, false)
	api.signup(t, "acme", "alice", "secret123", "user")

	resp := expectStatus(t, api.do(t, http.MethodGet, "/api/orders/acme/alice", "", nil), http.StatusOK)
	if orders, ok := resp["orders"].([]any); !ok || len(orders) != 0 {
		t.Fatalf("expected empty orders array, got %v", resp["orders"])
	}

	rec := api.do(t, http.MethodPost, "/api/buy",
		`{"tenantID":"acme","userID":"alice","product":{"id":1,"name":"Widget","price":500,"image":"w.png","description":"A widget"}}`, nil)
	resp = expectStatus(t, rec, http.StatusOK)
	if resp["message"] != "Product bought!" {
		t.Fatalf("unexpected message: %v", resp["message"])
	}
	if !strings.Contains(rec.Body.String(), `"id":1,`) {
		t.Fatalf("numeric product id not preserved: %s", rec.Body.String())
	}

	expectStatus(t, api.do(t, http.MethodPost, "/api/buy",
		`{"tenantID":"acme","userID":"alice","product":{"id":"sku-2","name":"Gadget","price":700}}`, nil), http.StatusOK)

	resp = expectStatus(t, api.do(t, http.MethodGet, "/api/orders/acme/alice", "", nil), http.StatusOK)
	orders, _ := resp["orders"].([]any)
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	first, _ := orders[0].(map[string]any)
	second, _ := orders[1].(map[string]any)
	if first["name"] != "Widget" || second["name"] != "Gadget" || second["id"] != "sku-2" {
		t.Fatalf("orders out of sequence: %v", orders)
	}
	if first["purchaseId"] == "" || first["purchasedAt"] == "" {
		t.Fatalf("server fields missing: %v", first)
	}
}

func TestBuyErrors(t *testing.T) {
	api := newTestAPI(t, false)
	api.signup(t, "acme", "alice", "secret123", "user")

	expectStatus(t, api.do(t, http.MethodPost, "/api/buy",
		`{"tenantID":"acme","userID":"ghost","product":{"id":1,"name":"Widget","price":500}}`, nil), http.StatusNotFound)
	accounts, err := api.store.QueryByTenant(t.Context(), "acme")
	if err != nil || len(accounts) != 1 {
		t.Fatalf("buy for unknown user must not create a record: %v %v", accounts, err)
	}

	resp := expectStatus(t, api.do(t, http.MethodPost, "/api/buy", `{"tenantID":"acme","userID":"alice"}`, nil), http.StatusBadRequest)
	if resp["message"] != msgMissingFields {
		t.Fatalf("unexpected message: %v", resp["message"])
	}

	resp = expectStatus(t, api.do(t, http.MethodPost, "/api/buy",
		`{"tenantID":"acme","userID":"alice","product":{"id":1,"name":"Widget","price":"500"}}`, nil), http.StatusBadRequest)
	if resp["message"] != "product.price must be an integer" {
		t.Fatalf("unexpected message: %v", resp["message"])
	}

	resp = expectStatus(t, api.do(t, http.MethodPost, "/api/buy",
		`{"tenantID":"acme","userID":"alice","product":{"id":true,"name":"Widget","price":1}}`, nil), http.StatusBadRequest)
	if resp["message"] != "product.id must be a number or a string" {
		t.Fatalf("unexpected message: %v", resp["message"])
	}

	expectStatus(t, api.do(t, http.MethodPost, "/api/buy",
		`{"tenantID":"acme","userID":"alice","product":{"id":1,"name":"","price":1}}`, nil), http.StatusBadRequest)

	expectStatus(t, api.do(t, http.MethodGet, "/api/orders/acme/ghost", "", nil), http.StatusNotFound)
}

func TestBuyIdempotencyKey(t *testing.T) {
	api := newTestAPI(t, false)
	api.signup(t, "acme", "alice", "secret123", "user")

	body := `{"tenantID":"acme","userID":"alice","product":{"id":1,"name":"Widget","price":500}}`
	headers := map[string]string{headerIdempotencyKey: "order-123"}
	expectStatus(t, api.do(t, http.MethodPost, "/api/buy", body, headers), http.StatusOK)
	expectStatus(t, api.do(t, http.MethodPost, "/api/buy", body, headers), http.StatusConflict)

	resp := expectStatus(t, api.do(t, http.MethodGet, "/api/orders/acme/alice", "", nil), http.StatusOK)
	if orders, _ := resp["orders"].([]any); len(orders) != 1 {
		t.Fatalf("expected exactly one order, got %d", len(orders))
	}
}

func TestTenantUsersHidePasswords(t *testing.T) {
	api := newTestAPI(t, false)
	api.signup(t, "acme", "owner", "secret123", "tenant")
	api.signup(t, "acme", "alice", "secret123", "user")
	api.signup(t, "globex", "bob", "secret123", "user")

	rec := api.do(t, http.MethodGet, "/api/tenant/acme", "", nil)
	resp := expectStatus(t, rec, http.StatusOK)
	if strings.Contains(strings.ToLower(rec.Body.String()), "password") {
		t.Fatalf("tenant listing leaks password material: %s", rec.Body.String())
	}
	users, _ := resp["users"].([]any)
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	for _, u := range users {
		user := u.(map[string]any)
		if user["tenantID"] != "acme" {
			t.Fatalf("listing leaked tenant %v", user["tenantID"])
		}
		if _, ok := user["createdAt"]; !ok {
			t.Fatalf("missing createdAt: %v", user)
		}
	}
}

func TestTenantSummary(t *testing.T) {
	api := newTestAPI(t, false)
	api.signup(t, "acme", "owner", "secret123", "tenant")
	api.signup(t, "acme", "alice", "secret123", "user")
	expectStatus(t, api.do(t, http.MethodPost, "/api/buy",
		`{"tenantID":"acme","userID":"alice","product":{"id":1,"name":"Widget","price":500}}`, nil), http.StatusOK)
	expectStatus(t, api.do(t, http.MethodPost, "/api/buy",
		`{"tenantID":"acme","userID":"alice","product":{"id":2,"name":"Gadget","price":250}}`, nil), http.StatusOK)

	resp := expectStatus(t, api.do(t, http.MethodGet, "/api/tenant/acme/summary", "", nil), http.StatusOK)
	summary, _ := resp["summary"].(map[string]any)
	if summary["users"] != float64(2) || summary["admins"] != float64(1) || summary["orders"] != float64(2) || summary["revenue"] != float64(750) {
		t.Fatalf("unexpected summary: %v", summary)
	}
}

func TestSignupKeepsNestedMetadata(t *testing.T) {
	api := newTestAPI(t, false)
	expectStatus(t, api.do(t, http.MethodPost, "/api/signup",
		`{"tenantID":"acme","userID":"alice","password":"secret123","data":{"address":{"city":"Oslo"},"tags":["vip"]}}`, nil), http.StatusCreated)

	resp := expectStatus(t, api.do(t, http.MethodPost, "/api/login",
		`{"tenantID":"acme","userID":"alice","password":"secret123"}`, nil), http.StatusOK)
	user, _ := resp["user"].(map[string]any)
	data, _ := user["data"].(map[string]any)
	attrs, _ := data["attributes"].(map[string]any)
	if attrs["address"] != `{"city":"Oslo"}` || attrs["tags"] != `["vip"]` {
		t.Fatalf("nested metadata not kept: %v", data)
	}
}

func TestUpdateUserAttributes(t *testing.T) {
	api := newTestAPI(t, false)
	api.signup(t, "acme", "owner", "secret123", "tenant")
	expectStatus(t, api.do(t, http.MethodPost, "/api/signup",
		`{"tenantID":"acme","userID":"alice","password":"secret123","data":{"plan":"free","company":"Acme"}}`, nil), http.StatusCreated)

	resp := expectStatus(t, api.do(t, http.MethodPatch, "/api/tenant/acme/users/alice",
		`{"data":{"plan":null,"seats":10,"role":"admin"}}`, nil), http.StatusOK)
	user, _ := resp["user"].(map[string]any)
	data, _ := user["data"].(map[string]any)
	if data["role"] != "user" {
		t.Fatalf("role must stay server-assigned: %v", data)
	}
	attrs, _ := data["attributes"].(map[string]any)
	if len(attrs) != 2 || attrs["company"] != "Acme" || attrs["seats"] != "10" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}

	stored, err := api.store.Get(t.Context(), store.Key{TenantID: "acme", UserID: "alice"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Version != 2 || stored.Data.Attributes["seats"] != "10" {
		t.Fatalf("update not persisted: %+v", stored)
	}

	expectStatus(t, api.do(t, http.MethodPatch, "/api/tenant/acme/users/ghost",
		`{"data":{"a":"b"}}`, nil), http.StatusNotFound)
	expectStatus(t, api.do(t, http.MethodPatch, "/api/tenant/acme/users/alice",
		`{"data":{}}`, nil), http.StatusBadRequest)
	expectStatus(t, api.do(t, http.MethodPatch, "/api/tenant/acme/users/alice",
		`{"data":"x"}`, nil), http.StatusBadRequest)
}

func TestAuthEnforcement(t *testing.T) {
	api := newTestAPI(t, true)
	api.signup(t, "acme", "owner", "secret123", "tenant")
	api.signup(t, "acme", "alice", "secret123", "user")
	api.signup(t, "globex", "boss", "secret123", "tenant")

	adminToken := api.login(t, "acme", "owner", "secret123")
	userToken := api.login(t, "acme", "alice", "secret123")
	otherAdmin := api.login(t, "globex", "boss", "secret123")
	bearer := func(token string) map[string]string {
		return map[string]string{"Authorization": "Bearer " + token}
	}

	expectStatus(t, api.do(t, http.MethodGet, "/api/tenant/acme", "", nil), http.StatusUnauthorized)
	expectStatus(t, api.do(t, http.MethodGet, "/api/tenant/acme", "", bearer("garbage")), http.StatusUnauthorized)
	expectStatus(t, api.do(t, http.MethodGet, "/api/tenant/acme", "", bearer(userToken)), http.StatusForbidden)
	expectStatus(t, api.do(t, http.MethodGet, "/api/tenant/acme", "", bearer(otherAdmin)), http.StatusForbidden)
	expectStatus(t, api.do(t, http.MethodGet, "/api/tenant/acme", "", bearer(adminToken)), http.StatusOK)
	expectStatus(t, api.do(t, http.MethodGet, "/api/tenant/acme/summary", "", bearer(adminToken)), http.StatusOK)

	patch := `{"data":{"plan":"pro"}}`
	expectStatus(t, api.do(t, http.MethodPatch, "/api/tenant/acme/users/alice", patch, bearer(userToken)), http.StatusForbidden)
	expectStatus(t, api.do(t, http.MethodPatch, "/api/tenant/acme/users/alice", patch, bearer(otherAdmin)), http.StatusForbidden)
	expectStatus(t, api.do(t, http.MethodPatch, "/api/tenant/acme/users/alice", patch, bearer(adminToken)), http.StatusOK)

	buy := `{"tenantID":"acme","userID":"alice","product":{"id":1,"name":"Widget","price":500}}`
	expectStatus(t, api.do(t, http.MethodPost, "/api/buy", buy, nil), http.StatusUnauthorized)
	expectStatus(t, api.do(t, http.MethodPost, "/api/buy", buy, bearer(adminToken)), http.StatusForbidden)
	expectStatus(t, api.do(t, http.MethodPost, "/api/buy", buy, bearer(userToken)), http.StatusOK)

	expectStatus(t, api.do(t, http.MethodGet, "/api/orders/acme/alice", "", bearer(otherAdmin)), http.StatusForbidden)
	expectStatus(t, api.do(t, http.MethodGet, "/api/orders/acme/alice", "", bearer(userToken)), http.StatusOK)

	expectStatus(t, api.do(t, http.MethodGet, "/api/ping", "", nil), http.StatusOK)
	expectStatus(t, api.do(t, http.MethodGet, "/api/products", "", nil), http.StatusOK)
}

func TestProducts(t *testing.T) {
	api := newTestAPI(t, false)
	resp := expectStatus(t, api.do(t, http.MethodGet, "/api/products", "", nil), http.StatusOK)
	products, _ := resp["products"].([]any)
	if len(products) != 6 {
		t.Fatalf("expected built-in catalog of 6 products, got %d", len(products))
	}
}

func TestSPAFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "static"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "static", "main.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}

	handler := SPA(dir)
	for path, want := range map[string]string{
		"/static/main.js": "console.log(1)",
		"/dashboard":      "<html>app</html>",
		"/tenant/acme":    "<html>app</html>",
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("%s: got %d %q", path, rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/../../etc/passwd", nil))
	if strings.Contains(rec.Body.String(), "root:") {
		t.Fatalf("path escaped the static dir: %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dashboard", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
