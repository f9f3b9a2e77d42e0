// Package config assembles the process configuration once in main and
// passes it into every constructor. There is no package-level mutable
// state anywhere else.
package config

import (
	"strings"

	"github.com/padak/ceo-xmass-review/internal/logger"
	"github.com/padak/ceo-xmass-review/internal/utils"
)

// Config is the immutable process configuration, read from the
// environment (optionally seeded from a .env file by main).
type Config struct {
	Addr      string
	StaticDir string
	DataDir   string

	// Backend selects the blob backend: "gcs", "sqlite" or "none".
	// "none" leaves the remote store unconfigured; answer writes then use
	// the local-file fallback and reads report no prior submission.
	Backend     string
	SQLitePath  string
	GCSBucket   string
	GCSEndpoint string

	QuestionnaireDir string
	// Questionnaire pins a specific document file name; empty means
	// auto-detect (exactly one document must exist in the directory).
	Questionnaire string
	// AnswersTag overrides the derived questionnaire tag, for data
	// written before the id_vversion scheme existed.
	AnswersTag string

	IdentityHeader string
	DevIdentity    string

	Evaluators        []string
	JWTSecret         string
	AdminPasswordHash string

	DevMode bool
	LogMode string

	Commit    string
	BuildTime string
}

// Load reads the full configuration from the environment.
func Load(log *logger.Logger) Config {
	return Config{
		Addr:      utils.GetEnv("SURVEY_ADDR", ":8080", log),
		StaticDir: utils.GetEnv("SURVEY_STATIC_DIR", "", log),
		DataDir:   utils.GetEnv("SURVEY_DATA_DIR", "data", log),

		Backend:     strings.ToLower(utils.GetEnv("SURVEY_BACKEND", "none", log)),
		SQLitePath:  utils.GetEnv("SURVEY_SQLITE_PATH", "survey.db", log),
		GCSBucket:   utils.GetEnv("SURVEY_GCS_BUCKET", "", log),
		GCSEndpoint: utils.GetEnv("SURVEY_GCS_ENDPOINT", "", log),

		QuestionnaireDir: utils.GetEnv("SURVEY_QUESTIONNAIRE_DIR", "questionnaires", log),
		Questionnaire:    utils.GetEnv("SURVEY_QUESTIONNAIRE", "", log),
		AnswersTag:       utils.GetEnv("SURVEY_ANSWERS_TAG", "", log),

		IdentityHeader: utils.GetEnv("SURVEY_IDENTITY_HEADER", "X-Forwarded-Email", log),
		DevIdentity:    utils.GetEnv("SURVEY_DEV_IDENTITY", "", log),

		Evaluators:        SplitList(utils.GetEnv("SURVEY_EVALUATORS", "", log)),
		JWTSecret:         utils.GetEnv("SURVEY_JWT_SECRET", "survey-dev-secret", log),
		AdminPasswordHash: utils.GetEnv("SURVEY_ADMIN_PASSWORD_HASH", "", log),

		DevMode: utils.GetEnvAsBool("SURVEY_DEV_MODE", false, log),
		LogMode: utils.GetEnv("LOG_MODE", "dev", log),

		Commit:    utils.GetEnv("SURVEY_COMMIT", "", log),
		BuildTime: utils.GetEnv("SURVEY_BUILD_TIME", "", log),
	}
}

// SplitList splits a comma-separated list, trimming whitespace and
// dropping empty entries.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
