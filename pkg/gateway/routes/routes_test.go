package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sentinel-ai/gateway/pkg/audit"
	"github.com/sentinel-ai/gateway/pkg/auth"
	"github.com/sentinel-ai/gateway/pkg/common/logger"
	"github.com/sentinel-ai/gateway/pkg/common/models"
	"github.com/sentinel-ai/gateway/pkg/detect"
	"github.com/sentinel-ai/gateway/pkg/gateway/middleware"
	"github.com/sentinel-ai/gateway/pkg/policy"
	"github.com/sentinel-ai/gateway/pkg/redact"
	"github.com/sentinel-ai/gateway/pkg/restore"
	"github.com/sentinel-ai/gateway/pkg/token"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

type testEnv struct {
	server *httptest.Server
	keys   *auth.Service
	audits *audit.MemoryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	detector, err := detect.NewRegexDetector(detect.DefaultRules())
	if err != nil {
		t.Fatalf("detector: %v", err)
	}

	store := token.NewMemoryStore()
	keys := auth.NewService(auth.NewMemoryRepository())
	audits := audit.NewMemoryRepository()

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)

	RegisterHealthRoutes(router, &HealthHandler{})
	RegisterRedactionRoutes(router, &RedactionHandler{
		Orchestrator:   redact.NewOrchestrator(detector, store, time.Hour),
		Policies:       policy.NewEngine(),
		DefaultContext: "general",
		AllowOverride:  true,
	})

	admin := &AdminHandler{Keys: keys, Audit: audits}
	RegisterKeyIssuanceRoutes(router, admin)

	protected := router.NewRoute().Subrouter()
	protected.Use(middleware.Authenticate(keys, audits))
	RegisterRestorationRoutes(protected, &RestorationHandler{
		Restorer: restore.NewService(store),
		Audit:    audits,
	})
	RegisterAdminRoutes(protected, admin)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, keys: keys, audits: audits}
}

func (e *testEnv) issueKey(t *testing.T, service string) string {
	t.Helper()
	plaintext, _, err := e.keys.Issue(context.Background(), service, "")
	if err != nil {
		t.Fatalf("issue key: %v", err)
	}
	return plaintext
}

func (e *testEnv) post(t *testing.T, path, apiKey string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestRedactRestoreRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	apiKey := env.issueKey(t, "billing-service")

	original := "Contact jane.doe@example.com or call 555-867-5309 today."
	allow := true
	resp := env.post(t, "/redact", "", models.RedactRequest{
		Text:   original,
		Policy: &models.PolicyOverride{RestorationAllowed: &allow},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redact status = %d", resp.StatusCode)
	}
	var redacted models.RedactResponse
	decode(t, resp, &redacted)

	if strings.Contains(redacted.RedactedText, "jane.doe@example.com") {
		t.Fatalf("email leaked through redaction: %q", redacted.RedactedText)
	}
	if strings.Contains(redacted.RedactedText, "555-867-5309") {
		t.Fatalf("phone leaked through redaction: %q", redacted.RedactedText)
	}
	if redacted.AuditStatus != "skipped" {
		t.Fatalf("audit status = %q without a pipeline", redacted.AuditStatus)
	}

	resp = env.post(t, "/restore", apiKey, models.RestoreRequest{RedactedText: redacted.RedactedText})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore status = %d", resp.StatusCode)
	}
	var restored models.RestoreResponse
	decode(t, resp, &restored)

	if restored.OriginalText != original {
		t.Fatalf("round trip mismatch:\n  got  %q\n  want %q", restored.OriginalText, original)
	}
	if restored.TokensRestored != 2 || restored.TokensMissing != 0 {
		t.Fatalf("restored=%d missing=%d", restored.TokensRestored, restored.TokensMissing)
	}
	if restored.Status != audit.StatusSuccess {
		t.Fatalf("status = %q", restored.Status)
	}
	if !restored.AuditLogged {
		t.Fatal("expected audit_logged true")
	}

	entries, err := env.audits.Query(context.Background(), audit.Filter{ServiceName: "billing-service"})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	if entries[0].Status != audit.StatusSuccess {
		t.Fatalf("audit status = %q", entries[0].Status)
	}
}

func TestRestoreForbiddenForComplianceContext(t *testing.T) {
	env := newTestEnv(t)
	apiKey := env.issueKey(t, "clinical-app")

	allow := true
	resp := env.post(t, "/redact", "", models.RedactRequest{
		Text: "Patient John Doe, SSN 123-45-6789.",
		Policy: &models.PolicyOverride{
			Context:            "healthcare",
			RestorationAllowed: &allow,
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redact status = %d", resp.StatusCode)
	}
	var redacted models.RedactResponse
	decode(t, resp, &redacted)
	if redacted.PolicyApplied == nil || redacted.PolicyApplied.RestorationAllowed {
		t.Fatal("healthcare override must not enable restoration")
	}

	resp = env.post(t, "/restore", apiKey, models.RestoreRequest{RedactedText: redacted.RedactedText})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("restore status = %d, want 403", resp.StatusCode)
	}

	entries, err := env.audits.Query(context.Background(), audit.Filter{ServiceName: "clinical-app"})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != audit.StatusFailed {
		t.Fatalf("expected one failed audit entry, got %+v", entries)
	}
	if entries[0].RestoredText != nil {
		t.Fatal("failed restoration must not record restored text")
	}
}

func TestRestoreRequiresAPIKey(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/restore", "", models.RestoreRequest{RedactedText: "nothing here"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	resp = env.post(t, "/restore", "sk_bogus", models.RestoreRequest{RedactedText: "nothing here"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d for bogus key, want 401", resp.StatusCode)
	}

	entries, err := env.audits.Query(context.Background(), audit.Filter{})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two failed-auth audit entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Status != audit.StatusFailed {
			t.Fatalf("audit status = %q", entry.Status)
		}
		if entry.ServiceName != "" {
			t.Fatalf("failed auth must not attribute a service, got %q", entry.ServiceName)
		}
		if entry.IPAddress == "" {
			t.Fatal("failed auth entry missing client address")
		}
	}
}

func TestRedactUnknownContextRejected(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/redact", "", models.RedactRequest{
		Text:   "hello",
		Policy: &models.PolicyOverride{Context: "starship"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPolicyRegistrationAndListing(t *testing.T) {
	env := newTestEnv(t)

	custom := policy.Policy{
		Context:         "support",
		EnabledEntities: []string{"EMAIL_ADDRESS"},
		MinConfidence:   0.4,
	}
	resp := env.post(t, "/policies", "", custom)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}

	resp = env.post(t, "/policies", "", custom)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", resp.StatusCode)
	}

	getResp, err := http.Get(env.server.URL + "/policies")
	if err != nil {
		t.Fatalf("get policies: %v", err)
	}
	var listing struct {
		AvailableContexts []string `json:"available_contexts"`
		DefaultContext    string   `json:"default_context"`
	}
	decode(t, getResp, &listing)
	if listing.DefaultContext != "general" {
		t.Fatalf("default context = %q", listing.DefaultContext)
	}
	found := false
	for _, name := range listing.AvailableContexts {
		if name == "support" {
			found = true
		}
	}
	if !found {
		t.Fatalf("registered context missing from listing: %v", listing.AvailableContexts)
	}
}

func TestAdminKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)

	// First key on a fresh deployment: issuance needs no existing key.
	resp := env.post(t, "/admin/api-keys", "", map[string]string{
		"service_name": "new-consumer",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create key status = %d", resp.StatusCode)
	}
	var created struct {
		APIKey string `json:"api_key"`
		KeyID  string `json:"key_id"`
	}
	decode(t, resp, &created)
	if created.APIKey == "" || created.KeyID == "" {
		t.Fatalf("issuance response incomplete: %+v", created)
	}

	// Management stays authenticated.
	listReq, _ := http.NewRequest(http.MethodGet, env.server.URL+"/admin/api-keys", nil)
	listResp, err := http.DefaultClient.Do(listReq)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	listResp.Body.Close()
	if listResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list status = %d, want 401", listResp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, env.server.URL+"/admin/api-keys/"+created.KeyID, nil)
	req.Header.Set(middleware.APIKeyHeader, created.APIKey)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("revoke status = %d", delResp.StatusCode)
	}

	// Revoked key no longer authenticates.
	resp = env.post(t, "/restore", created.APIKey, models.RestoreRequest{RedactedText: "x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key status = %d, want 401", resp.StatusCode)
	}
}

func TestAuditQueryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	apiKey := env.issueKey(t, "auditor")

	for i := 0; i < 3; i++ {
		resp := env.post(t, "/restore", apiKey, models.RestoreRequest{RedactedText: "no markers"})
		resp.Body.Close()
	}

	getReq, _ := http.NewRequest(http.MethodGet, env.server.URL+"/admin/audit-logs?service_name=auditor&limit=2", nil)
	getReq.Header.Set(middleware.APIKeyHeader, apiKey)
	resp, err := http.DefaultClient.Do(getReq)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var page struct {
		Logs  []audit.Entry `json:"logs"`
		Total int           `json:"total"`
	}
	decode(t, resp, &page)
	if len(page.Logs) != 2 {
		t.Fatalf("expected limit to cap at 2 entries, got %d", len(page.Logs))
	}
	for _, entry := range page.Logs {
		if entry.ServiceName != "auditor" {
			t.Fatalf("filter leaked entry for %q", entry.ServiceName)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/health/live")
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("live status = %d", resp.StatusCode)
	}

	resp, err = http.Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var health struct {
		Status string `json:"status"`
	}
	decode(t, resp, &health)
	if health.Status != "healthy" {
		t.Fatalf("status = %q with no dependencies wired", health.Status)
	}
}
