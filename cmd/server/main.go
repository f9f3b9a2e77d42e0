package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/padak/ceo-xmass-review/internal/api"
	"github.com/padak/ceo-xmass-review/internal/blobstore"
	"github.com/padak/ceo-xmass-review/internal/config"
	"github.com/padak/ceo-xmass-review/internal/logger"
	"github.com/padak/ceo-xmass-review/internal/middleware"
	"github.com/padak/ceo-xmass-review/internal/services"
)

func main() {
	// .env is for local development; absent in production
	_ = godotenv.Load()

	zl, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()

	cfg := config.Load(zl)

	registry := services.NewRegistry(zl)
	def, defErr := registry.Load(cfg.QuestionnaireDir, cfg.Questionnaire)
	if defErr != nil {
		// Recoverable: the server starts anyway and reports the guidance
		// on every questionnaire-dependent endpoint.
		zl.Warn("questionnaire not loaded", "guidance", defErr.Error())
	}

	tag := cfg.AnswersTag
	var qid, qversion string
	if def != nil {
		if tag == "" {
			tag = def.Settings.Tag()
		}
		qid = def.Settings.ID
		qversion = def.Settings.Version
	}

	backend, err := blobstore.Open(context.Background(), cfg.Backend, cfg.SQLitePath, cfg.GCSBucket, cfg.GCSEndpoint, zl)
	if err != nil {
		zl.Warn("blob backend unavailable, falling back to local files", "backend", cfg.Backend, "err", err)
		backend = nil
	}
	if backend == nil {
		zl.Warn("no blob backend configured; saves go to the local fallback directory", "data_dir", cfg.DataDir)
	}

	answers := services.NewAnswerService(backend, tag, qid, qversion, cfg.DataDir, zl)
	agg := services.NewAggregateService(def)
	auth := services.NewAuthService(cfg.Evaluators, cfg.AdminPasswordHash)
	tokens := middleware.TokenAuth{Secret: []byte(cfg.JWTSecret)}

	mux := http.NewServeMux()
	api.NewRouter(cfg, zl, def, defErr, answers, agg, auth, tokens).Register(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":         true,
			"name":       "Survey API",
			"configured": defErr == nil,
			"commit":     cfg.Commit,
			"build_time": cfg.BuildTime,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     cfg.Commit,
			"build_time": cfg.BuildTime,
		})
	})

	// Static frontend when bundled into the image.
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	resolver := middleware.IdentityResolver{Header: cfg.IdentityHeader, DevOverride: cfg.DevIdentity}
	handler := middleware.NoStore(
		middleware.SecureHeaders(
			middleware.CORS(
				tokens.WithAuth(
					resolver.Middleware(
						middleware.RequestLog(zl)(mux))))))

	zl.Info("survey server listening",
		"addr", cfg.Addr,
		"backend", cfg.Backend,
		"tag", tag,
		"dev_mode", cfg.DevMode,
	)
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		zl.Fatal("server error", "err", err)
	}
}
