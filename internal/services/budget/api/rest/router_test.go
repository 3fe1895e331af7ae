package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openkfw/trubudget/internal/platform/metrics"
	"github.com/openkfw/trubudget/internal/services/budget/api/auth"
	"github.com/openkfw/trubudget/internal/services/budget/app"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/ledger/memory"
)

type testServer struct {
	router   *gin.Engine
	verifier *auth.Verifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := metrics.New()
	svc, err := app.New(memory.New(), app.Options{Organization: "ACME", Metrics: recorder})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	seed := app.Seed{
		Users:             []app.SeedUser{{ID: "alice", DisplayName: "Alice"}, {ID: "bob", DisplayName: "Bob"}},
		GlobalPermissions: map[string][]string{"global.createProject": {"alice"}},
	}
	if err := svc.ApplySeed(ctx, seed); err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	verifier, err := auth.NewVerifier("test-secret", nil)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return &testServer{router: NewRouter(svc, verifier, recorder.Handler()), verifier: verifier}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.verifier.Issue(identity.ServiceUser{ID: userID}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

type response struct {
	APIVersion string          `json:"apiVersion"`
	Data       json.RawMessage `json:"data"`
	Error      *errorBody      `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, data any) (int, response) {
	t.Helper()
	var body *bytes.Reader
	if data != nil {
		raw, err := json.Marshal(map[string]any{"apiVersion": APIVersion, "data": data})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var resp response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s %s response %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, resp
}

func (s *testServer) mustPost(t *testing.T, path, token string, data any) response {
	t.Helper()
	code, resp := s.do(t, http.MethodPost, path, token, data)
	if code != http.StatusOK {
		t.Fatalf("POST %s: expected 200, got %d (%+v)", path, code, resp.Error)
	}
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	code, resp := s.do(t, http.MethodGet, "/health", "", nil)
	if code != http.StatusOK || resp.APIVersion != APIVersion {
		t.Fatalf("expected healthy response, got %d %+v", code, resp)
	}
}

func TestRequiresBearerToken(t *testing.T) {
	s := newTestServer(t)
	code, resp := s.do(t, http.MethodGet, "/api/notification.count", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if resp.Error == nil || resp.Error.Code != http.StatusUnauthorized {
		t.Fatalf("expected error envelope, got %+v", resp)
	}
	code, _ = s.do(t, http.MethodGet, "/api/notification.count", "forged", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	code, resp := s.do(t, http.MethodGet, "/api/project.explode", s.token(t, "alice"), nil)
	if code != http.StatusNotFound || resp.Error == nil {
		t.Fatalf("expected 404 envelope, got %d %+v", code, resp)
	}
}

func TestProjectedBudgetRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.token(t, "alice")
	bob := s.token(t, "bob")

	s.mustPost(t, "/api/global.createProject", alice, map[string]any{"id": "p1", "displayName": "School", "assignee": "bob"})
	resp := s.mustPost(t, "/api/project.budget.updateProjected", alice, map[string]any{
		"projectId":    "p1",
		"organization": "ACME",
		"value":        "1200",
		"currencyCode": "EUR",
	})
	var budgets []struct {
		Organization string `json:"organization"`
		Value        string `json:"value"`
		CurrencyCode string `json:"currencyCode"`
	}
	if err := json.Unmarshal(resp.Data, &budgets); err != nil {
		t.Fatalf("decode budgets: %v", err)
	}
	if len(budgets) != 1 || budgets[0].Value != "1200" {
		t.Fatalf("unexpected budgets: %s", resp.Data)
	}

	code, resp := s.do(t, http.MethodGet, "/api/notification.count", bob, nil)
	if code != http.StatusOK {
		t.Fatalf("count: expected 200, got %d", code)
	}
	var count struct {
		NotificationCount int `json:"notificationCount"`
	}
	if err := json.Unmarshal(resp.Data, &count); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	if count.NotificationCount != 1 {
		t.Fatalf("expected 1 notification for bob, got %d", count.NotificationCount)
	}

	code, resp = s.do(t, http.MethodPost, "/api/project.budget.updateProjected", bob, map[string]any{
		"projectId":    "p1",
		"organization": "ACME",
		"value":        "1",
		"currencyCode": "EUR",
	})
	if code != http.StatusForbidden || resp.Error == nil {
		t.Fatalf("expected 403 for bob, got %d %+v", code, resp)
	}

	code, _ = s.do(t, http.MethodPost, "/api/project.budget.updateProjected", alice, map[string]any{
		"projectId":    "p1",
		"organization": "ACME",
		"value":        "-5",
		"currencyCode": "EUR",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative value, got %d", code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/project.budget.deleteProjected", alice, map[string]any{
		"projectId":    "missing",
		"organization": "ACME",
		"currencyCode": "EUR",
	})
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing project, got %d", code)
	}
}

func TestRejectsUnsupportedAPIVersion(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/project.close", strings.NewReader(`{"apiVersion":"2.0","data":{"projectId":"p1"}}`))
	req.Header.Set("Authorization", "Bearer "+s.token(t, "alice"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestWorkflowitemListRoute(t *testing.T) {
	s := newTestServer(t)
	alice := s.token(t, "alice")
	s.mustPost(t, "/api/global.createProject", alice, map[string]any{"id": "p1", "displayName": "School"})
	s.mustPost(t, "/api/project.createSubproject", alice, map[string]any{"projectId": "p1", "id": "s1", "displayName": "Roof", "currency": "EUR"})
	s.mustPost(t, "/api/subproject.createWorkflowitem", alice, map[string]any{"projectId": "p1", "subprojectId": "s1", "id": "w1", "displayName": "Tender"})

	code, resp := s.do(t, http.MethodGet, "/api/workflowitem.list?projectId=p1&subprojectId=s1", alice, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %+v", code, resp.Error)
	}
	var data struct {
		Workflowitems []struct {
			ID  string            `json:"id"`
			Log []json.RawMessage `json:"log"`
		} `json:"workflowitems"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data.Workflowitems) != 1 || data.Workflowitems[0].ID != "w1" || len(data.Workflowitems[0].Log) != 1 {
		t.Fatalf("unexpected workflowitems: %s", resp.Data)
	}

	code, _ = s.do(t, http.MethodGet, "/api/subproject.intent.listPermissions?projectId=p1&subprojectId=s1", s.token(t, "bob"), nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 listing permissions as bob, got %d", code)
	}
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "trubudget_commands_total") {
		t.Fatal("expected command counter in metrics output")
	}
}
