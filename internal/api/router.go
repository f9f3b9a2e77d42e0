package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/padak/ceo-xmass-review/internal/config"
	"github.com/padak/ceo-xmass-review/internal/logger"
	"github.com/padak/ceo-xmass-review/internal/middleware"
	"github.com/padak/ceo-xmass-review/internal/services"
)

const evaluatorTokenTTL = 12 * time.Hour

// Router wires HTTP handlers to the services. All state lives in the
// services; handlers only translate between HTTP and service calls.
type Router struct {
	cfg config.Config
	log *logger.Logger

	def    *services.Definition
	defErr error // non-nil means "needs configuration"

	answers *services.AnswerService
	agg     *services.AggregateService
	auth    *services.AuthService
	tokens  middleware.TokenAuth
}

func NewRouter(cfg config.Config, log *logger.Logger, def *services.Definition, defErr error,
	answers *services.AnswerService, agg *services.AggregateService,
	auth *services.AuthService, tokens middleware.TokenAuth) *Router {
	return &Router{
		cfg:     cfg,
		log:     log,
		def:     def,
		defErr:  defErr,
		answers: answers,
		agg:     agg,
		auth:    auth,
		tokens:  tokens,
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/questionnaire", rt.handleQuestionnaire) // GET
	mux.HandleFunc("/api/answers", rt.handleAnswers)             // GET, POST
	mux.HandleFunc("/api/me", rt.handleMe)                       // GET
	mux.HandleFunc("/api/auth/login", rt.handleLogin)            // POST

	mux.HandleFunc("/api/dashboard/summary", rt.handleSummary)         // GET
	mux.HandleFunc("/api/dashboard/respondents", rt.handleRespondents) // GET
	mux.HandleFunc("/api/dashboard/export.csv", rt.handleExportCSV)    // GET

	if rt.cfg.DevMode {
		mux.HandleFunc("/api/debug/headers", rt.handleDebugHeaders) // GET
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (rt *Router) writeErr(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrNoRecord) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no record"})
		return
	}
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusInternalServerError
		switch se.Code {
		case services.ErrorInvalid:
			status = http.StatusBadRequest
		case services.ErrorUnauthorized:
			status = http.StatusUnauthorized
		case services.ErrorForbidden:
			status = http.StatusForbidden
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		case services.ErrorConfig:
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"error": string(se.Code), "message": se.Message})
		return
	}
	rt.log.Error("internal error", "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal"})
}

// requireDefinition blocks questionnaire-dependent routes while the
// process is in the "needs configuration" state, returning the operator
// guidance instead of a crash or a silent default.
func (rt *Router) requireDefinition(w http.ResponseWriter) bool {
	if rt.defErr != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":    string(services.ErrorConfig),
			"guidance": rt.defErr.Error(),
		})
		return false
	}
	return true
}

func (rt *Router) identity(r *http.Request) string {
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		return id
	}
	return services.AnonymousIdentity
}

// isEvaluator grants dashboard access to allow-listed identities and to
// holders of a valid session token.
func (rt *Router) isEvaluator(r *http.Request) bool {
	if rt.auth.IsEvaluator(rt.identity(r)) {
		return true
	}
	_, ok := middleware.ClaimsFromContext(r.Context())
	return ok
}

func (rt *Router) requireEvaluator(w http.ResponseWriter, r *http.Request) bool {
	if !rt.isEvaluator(r) {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "forbidden", "message": "evaluator access required"})
		return false
	}
	return true
}

// GET /api/questionnaire — the definition view for the resolved
// respondent: settings, question order, and any previous answers.
func (rt *Router) handleQuestionnaire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !rt.requireDefinition(w) {
		return
	}
	identity := rt.identity(r)
	questions := rt.def.QuestionsFor(identity)

	type outQuestion struct {
		services.Question
		AnswerKeys []string            `json:"answer_keys"`
		SubEntries []services.SubEntry `json:"sub_entries,omitempty"`
	}
	out := make([]outQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, outQuestion{Question: q, AnswerKeys: q.AnswerKeys(), SubEntries: q.SubEntries()})
	}

	resp := map[string]any{
		"settings":  rt.def.Settings,
		"questions": out,
		"total":     len(out),
		"identity":  identity,
		"anonymous": services.IsAnonymousIdentity(identity),
	}
	if !services.IsAnonymousIdentity(identity) {
		if rec, err := rt.answers.LoadOne(r.Context(), identity); err == nil {
			resp["has_existing"] = true
			resp["answers"] = rec.Answers
		} else if errors.Is(err, services.ErrNoRecord) {
			resp["has_existing"] = false
		} else {
			// treat a flaky backend as "no prior submission"
			rt.log.Warn("could not load existing answers", "identity", identity, "err", err)
			resp["has_existing"] = false
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// /api/answers — GET the caller's record, POST a submission.
func (rt *Router) handleAnswers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rt.handleMyAnswers(w, r)
	case http.MethodPost:
		rt.handleSubmit(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) handleMyAnswers(w http.ResponseWriter, r *http.Request) {
	if !rt.requireDefinition(w) {
		return
	}
	rec, err := rt.answers.LoadOne(r.Context(), rt.identity(r))
	if err != nil {
		rt.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !rt.requireDefinition(w) {
		return
	}
	var req struct {
		Answers map[string]any `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeErr(w, services.NewInvalidError("invalid JSON body"))
		return
	}
	if len(req.Answers) == 0 {
		rt.writeErr(w, services.NewInvalidError("answers required"))
		return
	}

	// keep only keys the questionnaire defines
	known := map[string]bool{}
	for _, q := range rt.def.AllQuestions() {
		for _, k := range q.AnswerKeys() {
			known[k] = true
		}
	}
	answers := make(map[string]any, len(req.Answers))
	for k, v := range req.Answers {
		if known[k] {
			answers[k] = v
		} else {
			rt.log.Warn("dropping unknown answer key", "key", k)
		}
	}
	if len(answers) == 0 {
		rt.writeErr(w, services.NewInvalidError("no recognized answer keys"))
		return
	}

	identity := rt.identity(r)
	identify := rt.def.Settings.CollectIdentity && !services.IsAnonymousIdentity(identity)
	if identify && !rt.def.Settings.AllowResubmit {
		if _, err := rt.answers.LoadOne(r.Context(), identity); err == nil {
			rt.writeErr(w, services.NewConflictError("already submitted"))
			return
		}
	}
	saved, err := rt.answers.SaveOne(r.Context(), identity, answers, identify)
	if err != nil {
		rt.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"identity":     identity,
		"fallback":     saved.Fallback,
		"submitted_at": saved.SubmittedAt.Format(time.RFC3339),
		"last_updated": saved.LastUpdated.Format(time.RFC3339),
	})
}

// GET /api/me
func (rt *Router) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity := rt.identity(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"identity":  identity,
		"anonymous": services.IsAnonymousIdentity(identity),
		"evaluator": rt.isEvaluator(r),
	})
}

// POST /api/auth/login — local evaluator login for deployments without
// the identity proxy.
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeErr(w, services.NewInvalidError("invalid JSON body"))
		return
	}
	if err := rt.auth.Login(req.Password); err != nil {
		rt.writeErr(w, err)
		return
	}
	identity := rt.identity(r)
	if services.IsAnonymousIdentity(identity) {
		identity = "evaluator"
	}
	token, err := rt.tokens.SignToken(identity, evaluatorTokenTTL)
	if err != nil {
		rt.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

// GET /api/dashboard/summary
func (rt *Router) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !rt.requireDefinition(w) || !rt.requireEvaluator(w, r) {
		return
	}
	records, err := rt.answers.LoadAll(r.Context())
	if err != nil {
		rt.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tag":         rt.answers.Tag(),
		"respondents": len(records),
		"questions":   rt.agg.Summarize(records),
	})
}

// GET /api/dashboard/respondents
func (rt *Router) handleRespondents(w http.ResponseWriter, r *http.Request) {
	if !rt.requireDefinition(w) || !rt.requireEvaluator(w, r) {
		return
	}
	records, err := rt.answers.LoadAll(r.Context())
	if err != nil {
		rt.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.agg.Table(records))
}

// GET /api/dashboard/export.csv
func (rt *Router) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if !rt.requireDefinition(w) || !rt.requireEvaluator(w, r) {
		return
	}
	records, err := rt.answers.LoadAll(r.Context())
	if err != nil {
		rt.writeErr(w, err)
		return
	}
	data, err := rt.agg.ExportCSV(records)
	if err != nil {
		rt.writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", rt.answers.Tag()))
	_, _ = w.Write(data)
}

// GET /api/debug/headers — dev mode only; echoes the inbound headers so
// the proxy wiring can be checked without log access.
func (rt *Router) handleDebugHeaders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, r.Header)
}
