package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/padak/ceo-xmass-review/internal/blobstore"
	"github.com/padak/ceo-xmass-review/internal/config"
	"github.com/padak/ceo-xmass-review/internal/logger"
	"github.com/padak/ceo-xmass-review/internal/middleware"
	"github.com/padak/ceo-xmass-review/internal/services"
)

const identityHeader = "X-Forwarded-Email"

func testDefinition() *services.Definition {
	return &services.Definition{
		Settings: services.Settings{
			ID: "ceo_assessment", Version: "1", Title: "CEO Assessment",
			Display: "step", AllowBack: true, ShowProgress: true,
			CollectIdentity: true, AllowResubmit: true,
			MinChartResponses: 3, VerbatimLimit: 50, VerbatimMaxChars: 280,
		},
		Main: []services.Question{
			{ID: 1, Type: services.QuestionTextarea, Title: "What have you shipped?"},
			{ID: 2, Type: services.QuestionScale, Title: "Recommend?", Min: 0, Max: 10},
		},
	}
}

// newTestServer wires the full middleware chain around the router, the
// way cmd/server does.
func newTestServer(t *testing.T, def *services.Definition, defErr error, passwordHash string) (*httptest.Server, *services.AnswerService) {
	t.Helper()
	log := logger.NewNop()
	cfg := config.Config{
		Evaluators:        []string{"boss@example.com"},
		JWTSecret:         "test-secret",
		AdminPasswordHash: passwordHash,
		DataDir:           t.TempDir(),
	}
	tag := ""
	var qid, qver string
	if def != nil {
		tag = def.Settings.Tag()
		qid = def.Settings.ID
		qver = def.Settings.Version
	}
	answers := services.NewAnswerService(blobstore.NewMemory(), tag, qid, qver, cfg.DataDir, log)
	agg := services.NewAggregateService(def)
	auth := services.NewAuthService(cfg.Evaluators, cfg.AdminPasswordHash)
	tokens := middleware.TokenAuth{Secret: []byte(cfg.JWTSecret)}

	mux := http.NewServeMux()
	NewRouter(cfg, log, def, defErr, answers, agg, auth, tokens).Register(mux)
	resolver := middleware.IdentityResolver{Header: identityHeader}
	srv := httptest.NewServer(tokens.WithAuth(resolver.Middleware(mux)))
	t.Cleanup(srv.Close)
	return srv, answers
}

func doJSON(t *testing.T, method, url, identity, bearer, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if identity != "" {
		req.Header.Set(identityHeader, identity)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestSubmitAndPrefill(t *testing.T) {
	srv, _ := newTestServer(t, testDefinition(), nil, "")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/answers", "petr@example.com", "",
		`{"answers": {"q1": "the exporter", "q2": 9, "q99": "ignored"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %v", resp.StatusCode, body)
	}
	if body["ok"] != true || body["fallback"] != false {
		t.Fatalf("submit response: %v", body)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/questionnaire", "petr@example.com", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("questionnaire status %d", resp.StatusCode)
	}
	if body["has_existing"] != true {
		t.Fatalf("previous answers not found: %v", body)
	}
	answers := body["answers"].(map[string]any)
	if answers["q1"] != "the exporter" {
		t.Fatalf("prefill answers: %v", answers)
	}
	if _, ok := answers["q99"]; ok {
		t.Fatal("unknown answer key was stored")
	}
}

func TestAnonymousSubmit(t *testing.T) {
	srv, store := newTestServer(t, testDefinition(), nil, "")

	for i := 0; i < 3; i++ {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/answers", "", "", `{"answers": {"q1": "x"}}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("anonymous submit status %d", resp.StatusCode)
		}
	}
	all, err := store.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("want 3 independent anonymous records, got %d", len(all))
	}

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/answers", "", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("anonymous GET answers: want 404, got %d", resp.StatusCode)
	}
}

func TestDashboardAccess(t *testing.T) {
	srv, _ := newTestServer(t, testDefinition(), nil, "")

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/dashboard/summary", "petr@example.com", "", "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-evaluator: want 403, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/dashboard/summary", "boss@example.com", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("evaluator: want 200, got %d", resp.StatusCode)
	}
	if _, ok := body["questions"]; !ok {
		t.Fatalf("summary payload: %v", body)
	}
}

func TestLoginGrantsDashboard(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("open-sesame"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	srv, _ := newTestServer(t, testDefinition(), nil, string(hash))

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", "", `{"password": "nope"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: want 401, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", "", `{"password": "open-sesame"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: want 200, got %d", resp.StatusCode)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("no token in %v", body)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/dashboard/respondents", "", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token-bearing dashboard request: want 200, got %d", resp.StatusCode)
	}
}

func TestNeedsConfigurationState(t *testing.T) {
	defErr := services.NewConfigError("no questionnaire documents in questionnaires; add a YAML document or set SURVEY_QUESTIONNAIRE")
	srv, _ := newTestServer(t, nil, defErr, "")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/questionnaire", "petr@example.com", "", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", resp.StatusCode)
	}
	guidance, _ := body["guidance"].(string)
	if !strings.Contains(guidance, "SURVEY_QUESTIONNAIRE") {
		t.Fatalf("guidance missing: %v", body)
	}

	// /api/me still works without a questionnaire
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/me", "petr@example.com", "", "")
	if resp.StatusCode != http.StatusOK || body["identity"] != "petr@example.com" {
		t.Fatalf("me: %d %v", resp.StatusCode, body)
	}
}

func TestExportCSVEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testDefinition(), nil, "")

	if resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/answers", "petr@example.com", "",
		`{"answers": {"q1": "ship, fast\nand safely"}}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/dashboard/export.csv", nil)
	req.Header.Set(identityHeader, "boss@example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type %q", ct)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(raw), `"ship, fast and safely"`) {
		t.Fatalf("csv body: %q", raw)
	}
}
