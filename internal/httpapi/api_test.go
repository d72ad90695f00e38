package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vyhan.org/internal/auth"
	"vyhan.org/internal/notify"
	"vyhan.org/internal/shipment"
	"vyhan.org/internal/stream"
	"vyhan.org/internal/tenant"
)

const (
	testHost         = "acme.vyhan.org"
	testBootstrapKey = "bootstrap-secret"
)

type testAPI struct {
	api      *API
	handler  http.Handler
	tenants  *tenant.Service
	org      *tenant.Organization
	branchA  *tenant.Branch
	branchB  *tenant.Branch
	messages *notify.InMemoryMessages
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	store := tenant.NewInMemory()
	tenants := tenant.NewService(store)
	org, err := tenants.CreateOrganization(ctx, tenant.CreateOrganizationInput{
		Title: "Acme Logistics", Subdomain: "acme", Password: "org-pass",
	})
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	branchA, err := tenants.AddBranch(ctx, org, tenant.AddBranchInput{Title: "Downtown", Password: "branch-pass"})
	if err != nil {
		t.Fatalf("add branch: %v", err)
	}
	branchB, err := tenants.AddBranch(ctx, org, tenant.AddBranchInput{Title: "Airport", Password: "branch-pass"})
	if err != nil {
		t.Fatalf("add branch: %v", err)
	}

	issuer, err := auth.NewIssuer("test-secret")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	authSvc, err := auth.NewService(tenant.NewCredentialStore(store), issuer, auth.NewInMemoryRegistry())
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}

	messages := notify.NewInMemoryMessages()
	hub := stream.New()
	shipSvc := shipment.NewService(shipment.NewInMemory(), store,
		shipment.WithNotifier(notify.NewBookingNotifier(nil, messages, store.Branches())),
		shipment.WithEvents(hub.Publish))

	api := New(Config{
		Auth:         authSvc,
		Resolver:     tenant.NewResolver(store.Organizations()),
		Tenants:      tenants,
		Shipments:    shipSvc,
		Inbox:        notify.NewInbox(messages),
		Hub:          hub,
		BootstrapKey: testBootstrapKey,
		Version:      "test",
	})
	return &testAPI{
		api:      api,
		handler:  api.Handler(),
		tenants:  tenants,
		org:      org,
		branchA:  branchA,
		branchB:  branchB,
		messages: messages,
	}
}

func (ta *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Host = testHost
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response not valid JSON: %v\n%s", err, rec.Body.String())
	}
	return env
}

func (ta *testAPI) login(t *testing.T, username, password, loginType string) (string, string) {
	t.Helper()
	rec := ta.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username, "password": password, "login_type": loginType,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, rec.Code, rec.Body.String())
	}
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	return data["access_token"].(string), data["refresh_token"].(string)
}

func TestTenantResolution(t *testing.T) {
	ta := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/organization/info", nil)
	req.Host = "ghost.vyhan.org"
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown subdomain: status %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env["message"] != "Organization not found" {
		t.Fatalf("message = %v", env["message"])
	}

	rec2 := ta.do(t, http.MethodGet, "/api/organization/info", "", nil)
	if rec2.Code != http.StatusOK {
		t.Fatalf("resolved tenant: status %d", rec2.Code)
	}
	cookie := rec2.Header().Get("Set-Cookie")
	if cookie == "" || !bytes.Contains([]byte(cookie), []byte(organizationCookie+"="+ta.org.Slug)) {
		t.Fatalf("organization cookie missing: %q", cookie)
	}
}

func TestOrganizationBootstrap(t *testing.T) {
	ta := newTestAPI(t)

	body := map[string]any{"title": "Fresh Org", "subdomain": "fresh", "password": "p"}
	req := httptest.NewRequest(http.MethodPost, "/api/organization/create", encode(t, body))
	req.Host = "vyhan.org"
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no api key: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/organization/create", encode(t, body))
	req.Host = "vyhan.org"
	req.Header.Set(bootstrapKeyHeader, testBootstrapKey)
	rec = httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("bootstrap: status %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/organization/info", nil)
	req.Host = "fresh.vyhan.org"
	rec = httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fresh tenant resolve: status %d", rec.Code)
	}
}

func encode(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &buf
}

func TestLoginFlow(t *testing.T) {
	ta := newTestAPI(t)

	rec := ta.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": ta.org.Slug, "password": "wrong", "login_type": "organization",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env["message"] != "Invalid username or password" {
		t.Fatalf("message = %v", env["message"])
	}

	// Branch owner declaring the wrong login type gets the same rejection.
	rec = ta.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": ta.branchA.Slug, "password": "branch-pass", "login_type": "organization",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong login type: status %d", rec.Code)
	}

	access, _ := ta.login(t, ta.org.Slug, "org-pass", "organization")
	rec = ta.do(t, http.MethodGet, "/api/auth/profile", access, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: status %d", rec.Code)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	ta := newTestAPI(t)
	access, refresh := ta.login(t, ta.org.Slug, "org-pass", "organization")

	rec := ta.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"access_token": "not-a-jwt", "refresh_token": refresh,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed refresh: status %d", rec.Code)
	}

	rec = ta.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"access_token": access, "refresh_token": refresh,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status %d: %s", rec.Code, rec.Body.String())
	}

	// Replaying the rotated pair is rejected.
	rec = ta.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"access_token": access, "refresh_token": refresh,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh: status %d", rec.Code)
	}

	access2, _ := ta.login(t, ta.org.Slug, "org-pass", "organization")
	rec = ta.do(t, http.MethodPost, "/api/auth/logout", access2, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status %d", rec.Code)
	}
	rec = ta.do(t, http.MethodGet, "/api/auth/profile", access2, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("profile after logout: status %d", rec.Code)
	}
}

func TestPermissionOrdering(t *testing.T) {
	ta := newTestAPI(t)

	// No token: 401 before any permission evaluation.
	rec := ta.do(t, http.MethodGet, "/api/branch/list", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status %d", rec.Code)
	}

	// Branch admin on an org-admin endpoint: authenticated but forbidden.
	access, _ := ta.login(t, ta.branchA.Slug, "branch-pass", "branch")
	rec = ta.do(t, http.MethodGet, "/api/branch/list", access, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong permission: status %d", rec.Code)
	}
}

func TestBranchAndBusAdmin(t *testing.T) {
	ta := newTestAPI(t)
	orgTok, _ := ta.login(t, ta.org.Slug, "org-pass", "organization")
	branchTok, _ := ta.login(t, ta.branchA.Slug, "branch-pass", "branch")

	rec := ta.do(t, http.MethodGet, "/api/branch/list", orgTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("branch list: status %d", rec.Code)
	}

	rec = ta.do(t, http.MethodGet, "/api/branch/get_other_braches", branchTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("other branches: status %d", rec.Code)
	}
	data := decodeEnvelope(t, rec)["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("other branches length = %d, want 1", len(data))
	}

	rec = ta.do(t, http.MethodPost, "/api/bus/add", orgTok, map[string]any{
		"bus_number": "KA-01", "preferred_days": []int{1, 2, 3, 4, 5, 6, 7},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("bus add: status %d: %s", rec.Code, rec.Body.String())
	}
	rec = ta.do(t, http.MethodPost, "/api/bus/add", orgTok, map[string]any{
		"bus_number": "KA-01", "preferred_days": []int{1},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate bus: status %d", rec.Code)
	}
	rec = ta.do(t, http.MethodGet, "/api/bus/available", branchTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("available buses: status %d", rec.Code)
	}
}

func TestDayEndConflict(t *testing.T) {
	ta := newTestAPI(t)
	branchTok, _ := ta.login(t, ta.branchA.Slug, "branch-pass", "branch")

	rec := ta.do(t, http.MethodPost, "/api/branch/day_end", branchTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("day end: status %d: %s", rec.Code, rec.Body.String())
	}
	rec = ta.do(t, http.MethodPost, "/api/branch/day_end", branchTok, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("repeat day end: status %d", rec.Code)
	}
}

func TestShipmentLifecycleOverHTTP(t *testing.T) {
	ta := newTestAPI(t)
	branchATok, _ := ta.login(t, ta.branchA.Slug, "branch-pass", "branch")
	branchBTok, _ := ta.login(t, ta.branchB.Slug, "branch-pass", "branch")
	orgTok, _ := ta.login(t, ta.org.Slug, "org-pass", "organization")

	rec := ta.do(t, http.MethodPost, "/api/shipment/create", branchATok, map[string]any{
		"destination_slug": ta.branchB.Slug,
		"sender_name":      "Alan Sender",
		"sender_phone":     "+15550001111",
		"receiver_name":    "Rita Receiver",
		"receiver_phone":   "+15550002222",
		"quantity":         1,
		"payment_mode":     "SENDER_PAYS",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create shipment: status %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	trackingID := data["tracking_id"].(string)
	if data["status"] != "BOOKED" {
		t.Fatalf("status = %v", data["status"])
	}

	// Public tracking works without a token.
	rec = ta.do(t, http.MethodGet, "/api/shipment/track/"+trackingID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public track: status %d", rec.Code)
	}

	// Either endpoint branch can read it, the org admin too.
	for _, tok := range []string{branchATok, branchBTok, orgTok} {
		rec = ta.do(t, http.MethodGet, "/api/shipment/"+trackingID, tok, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("get shipment: status %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec = ta.do(t, http.MethodPost, "/api/shipment/"+trackingID+"/update-status", branchBTok, map[string]string{
		"status": "IN_TRANSIT", "remarks": "left the depot",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = ta.do(t, http.MethodPost, "/api/shipment/"+trackingID+"/update-status", branchBTok, map[string]string{
		"status": "DELIVERED",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status: status %d", rec.Code)
	}

	rec = ta.do(t, http.MethodGet, "/api/shipment/list", orgTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("org list: status %d", rec.Code)
	}
	rec = ta.do(t, http.MethodGet, "/api/shipment/branch", branchATok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("branch list: status %d", rec.Code)
	}
}

func TestMessagesInbox(t *testing.T) {
	ta := newTestAPI(t)
	branchBTok, _ := ta.login(t, ta.branchB.Slug, "branch-pass", "branch")

	msg := &notify.Message{UserID: ta.branchB.OwnerID, Body: "Incoming shipment"}
	if err := ta.messages.Create(context.Background(), msg); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	rec := ta.do(t, http.MethodGet, "/api/messages", branchBTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("messages: status %d", rec.Code)
	}
	list := decodeEnvelope(t, rec)["data"].([]any)
	if len(list) != 1 {
		t.Fatalf("messages length = %d", len(list))
	}

	rec = ta.do(t, http.MethodPost, "/api/messages/"+msg.ID+"/read", branchBTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read: status %d: %s", rec.Code, rec.Body.String())
	}

	// Another user cannot read someone else's message.
	branchATok, _ := ta.login(t, ta.branchA.Slug, "branch-pass", "branch")
	rec = ta.do(t, http.MethodPost, "/api/messages/"+msg.ID+"/read", branchATok, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign mark read: status %d", rec.Code)
	}
}
