// pulldata dumps every answer blob for one questionnaire tag into a local
// directory: all_answers.json with the full set, plus one file per
// respondent. Meant for offline debugging without live remote access.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/padak/ceo-xmass-review/internal/blobstore"
	"github.com/padak/ceo-xmass-review/internal/config"
	"github.com/padak/ceo-xmass-review/internal/logger"
	"github.com/padak/ceo-xmass-review/internal/services"
)

var (
	pullTag string
	pullOut string
)

var rootCmd = &cobra.Command{
	Use:   "pulldata",
	Short: "Download all answer blobs for one questionnaire tag",
	Long: `Downloads every answer blob stored under a questionnaire tag and writes
all_answers.json plus one JSON file per respondent under the output
directory. Blobs that fail to download or parse are skipped with a
warning.`,
	RunE: runPull,
}

func init() {
	rootCmd.Flags().StringVar(&pullTag, "tag", "", "questionnaire tag (default: from config or the questionnaire document)")
	rootCmd.Flags().StringVar(&pullOut, "out", "data", "output directory")
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPull(cmd *cobra.Command, args []string) error {
	zl, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		return err
	}
	defer zl.Sync()
	cfg := config.Load(zl)

	tag := pullTag
	if tag == "" {
		tag = cfg.AnswersTag
	}
	if tag == "" {
		if def, err := services.NewRegistry(zl).Load(cfg.QuestionnaireDir, cfg.Questionnaire); err == nil {
			tag = def.Settings.Tag()
		}
	}
	if tag == "" {
		return errors.New("no questionnaire tag: pass --tag, set SURVEY_ANSWERS_TAG or configure a questionnaire document")
	}

	ctx := context.Background()
	backend, err := blobstore.Open(ctx, cfg.Backend, cfg.SQLitePath, cfg.GCSBucket, cfg.GCSEndpoint, zl)
	if err != nil {
		return fmt.Errorf("open backend %q: %w", cfg.Backend, err)
	}
	if backend == nil {
		return errors.New("no blob backend configured: set SURVEY_BACKEND to gcs or sqlite")
	}

	cmd.Printf("Pulling answers for tag %s\n", tag)
	svc := services.NewAnswerService(backend, tag, "", "", cfg.DataDir, zl)
	records, err := svc.LoadAll(ctx)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(pullOut, "individual"), 0o755); err != nil {
		return err
	}

	// all_answers.json keeps the recovered identity inside each record
	all, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	allPath := filepath.Join(pullOut, "all_answers.json")
	if err := os.WriteFile(allPath, all, 0o644); err != nil {
		return err
	}

	for _, rec := range records {
		name := services.SafeFileName(rec.Identity)
		if services.IsAnonymousIdentity(rec.Identity) && rec.StorageKey != "" {
			name = services.SafeFileName(rec.StorageKey[:len(rec.StorageKey)-len(filepath.Ext(rec.StorageKey))])
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			cmd.PrintErrf("  skipping %s: %v\n", rec.Identity, err)
			continue
		}
		path := filepath.Join(pullOut, "individual", name+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			cmd.PrintErrf("  skipping %s: %v\n", rec.Identity, err)
			continue
		}
		cmd.Printf("  wrote %s\n", path)
	}

	cmd.Printf("Done: %d records in %s\n", len(records), allPath)
	return nil
}
