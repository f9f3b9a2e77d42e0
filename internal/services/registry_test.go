package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/padak/ceo-xmass-review/internal/logger"
)

const validDoc = `
settings:
  id: ceo_assessment
  version: "1"
  title: CEO Assessment
questions:
  - id: 1
    type: textarea
    title: What have you shipped recently?
  - id: 2
    type: compound
    title: Self-evaluation
    subquestions:
      - key: a
        label: What are you struggling with?
      - key: b
        label: What are you great at?
  - id: 3
    type: scale
    title: How likely are you to recommend working here?
`

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRegistryLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "survey.yaml", validDoc)

	def, err := NewRegistry(logger.NewNop()).Load(dir, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def.Settings.Tag() != "ceo_assessment_v1" {
		t.Fatalf("bad tag %q", def.Settings.Tag())
	}
	if !def.Settings.AllowBack || !def.Settings.CollectIdentity || !def.Settings.AllowResubmit {
		t.Fatalf("boolean defaults not applied: %+v", def.Settings)
	}
	if def.Settings.Display != "step" || def.Settings.MinChartResponses != 3 {
		t.Fatalf("defaults not applied: %+v", def.Settings)
	}
	// scale with no bounds defaults to the 0-10 range
	q := def.Main[2]
	if q.Min != 0 || q.Max != 10 {
		t.Fatalf("scale bounds %d..%d", q.Min, q.Max)
	}
}

func TestRegistryMissingRequiredKeys(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "survey.yaml", `
settings:
  id: ceo_assessment
  title: CEO Assessment
questions:
  - id: 1
    type: textarea
    title: Q1
`)
	def, err := NewRegistry(logger.NewNop()).Load(dir, "")
	if def != nil {
		t.Fatal("partial definition must not be returned")
	}
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorConfig {
		t.Fatalf("want config error, got %v", err)
	}
	if !strings.Contains(se.Message, "version") {
		t.Fatalf("guidance should name the missing key: %q", se.Message)
	}
}

func TestRegistryAmbiguousDocuments(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.yaml", validDoc)
	writeDoc(t, dir, "b.yaml", validDoc)

	_, err := NewRegistry(logger.NewNop()).Load(dir, "")
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorConfig {
		t.Fatalf("want config error, got %v", err)
	}
	if !strings.Contains(se.Message, "a.yaml") || !strings.Contains(se.Message, "b.yaml") {
		t.Fatalf("guidance should list candidates: %q", se.Message)
	}

	// explicit selector resolves the ambiguity
	if _, err := NewRegistry(logger.NewNop()).Load(dir, "b.yaml"); err != nil {
		t.Fatalf("selector should resolve ambiguity: %v", err)
	}
}

func TestRegistryEmptyDir(t *testing.T) {
	_, err := NewRegistry(logger.NewNop()).Load(t.TempDir(), "")
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConfig {
		t.Fatalf("want config error, got %v", err)
	}
}

func TestRegistryEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "survey.yaml", validDoc)

	r := NewRegistry(logger.NewNop())
	env := map[string]string{
		"SURVEY_SETTING_RANDOMIZE":           "true",
		"SURVEY_SETTING_TITLE":               "Renamed",
		"SURVEY_SETTING_MIN_CHART_RESPONSES": "5",
		"SURVEY_SETTING_VERBATIM_LIMIT":      "not-a-number", // ignored
	}
	r.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	def, err := r.Load(dir, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !def.Settings.Randomize || def.Settings.Title != "Renamed" || def.Settings.MinChartResponses != 5 {
		t.Fatalf("overrides not applied: %+v", def.Settings)
	}
	if def.Settings.VerbatimLimit != 50 {
		t.Fatalf("unparseable override must keep the default, got %d", def.Settings.VerbatimLimit)
	}
}

func TestRegistryStorageTagOverride(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "survey.yaml", strings.Replace(validDoc,
		"title: CEO Assessment",
		"title: CEO Assessment\n  storage_tag: CEO_Assessment_Answers", 1))
	def, err := NewRegistry(logger.NewNop()).Load(dir, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def.Settings.Tag() != "CEO_Assessment_Answers" {
		t.Fatalf("legacy tag override lost: %q", def.Settings.Tag())
	}
}

func TestRegistryValidation(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"duplicate id", `
settings: {id: s, version: "1", title: T}
questions:
  - {id: 1, type: text, title: A}
  - {id: 1, type: text, title: B}
`},
		{"unknown type", `
settings: {id: s, version: "1", title: T}
questions:
  - {id: 1, type: telepathy, title: A}
`},
		{"select without options", `
settings: {id: s, version: "1", title: T}
questions:
  - {id: 1, type: select, title: A}
`},
		{"matrix without columns", `
settings: {id: s, version: "1", title: T}
questions:
  - {id: 1, type: matrix, title: A, rows: [r1]}
`},
		{"compound duplicate sub key", `
settings: {id: s, version: "1", title: T}
questions:
  - id: 1
    type: compound
    title: A
    subquestions:
      - {key: a, label: L1}
      - {key: a, label: L2}
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeDoc(t, dir, "survey.yaml", tc.doc)
			_, err := NewRegistry(logger.NewNop()).Load(dir, "")
			if se, ok := AsServiceError(err); !ok || se.Code != ErrorConfig {
				t.Fatalf("want config error, got %v", err)
			}
		})
	}
}

func TestQuestionsForStableShuffle(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "survey.yaml", `
settings: {id: s, version: "1", title: T, randomize: true}
intro_questions:
  - {id: 1, type: text, title: Intro}
questions:
  - {id: 2, type: text, title: A}
  - {id: 3, type: text, title: B}
  - {id: 4, type: text, title: C}
  - {id: 5, type: text, title: D}
  - {id: 6, type: text, title: E}
`)
	def, err := NewRegistry(logger.NewNop()).Load(dir, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	first := def.QuestionsFor("petr@example.com")
	second := def.QuestionsFor("petr@example.com")
	if first[0].ID != 1 {
		t.Fatal("intro questions must never be reordered")
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("order not stable for one identity: %v vs %v", first, second)
		}
	}
}
