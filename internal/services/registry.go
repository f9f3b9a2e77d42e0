package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/padak/ceo-xmass-review/internal/logger"
)

// Registry loads and validates questionnaire documents. Documents are
// YAML files; the merged result is immutable for the process lifetime.
type Registry struct {
	log       *logger.Logger
	lookupEnv func(string) (string, bool)
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{log: log, lookupEnv: os.LookupEnv}
}

// document mirrors the on-disk YAML shape. Pointer fields distinguish
// "absent" from zero so defaults only apply when the document is silent.
type document struct {
	Settings struct {
		ID      string `yaml:"id"`
		Version string `yaml:"version"`
		Title   string `yaml:"title"`

		Subtitle        string `yaml:"subtitle"`
		Display         string `yaml:"display"`
		WelcomeMessage  string `yaml:"welcome_message"`
		ThankYouMessage string `yaml:"thank_you_message"`

		Randomize       *bool `yaml:"randomize"`
		AllowBack       *bool `yaml:"allow_back"`
		ShowProgress    *bool `yaml:"show_progress"`
		CollectIdentity *bool `yaml:"collect_identity"`
		AllowResubmit   *bool `yaml:"allow_resubmit"`

		AutoAdvanceSeconds *int   `yaml:"auto_advance_seconds"`
		StorageTag         string `yaml:"storage_tag"`

		MinChartResponses *int `yaml:"min_chart_responses"`
		VerbatimLimit     *int `yaml:"verbatim_limit"`
		VerbatimMaxChars  *int `yaml:"verbatim_max_chars"`
	} `yaml:"settings"`
	Intro     []questionDoc `yaml:"intro_questions"`
	Questions []questionDoc `yaml:"questions"`
}

type questionDoc struct {
	ID           int      `yaml:"id"`
	Type         string   `yaml:"type"`
	Title        string   `yaml:"title"`
	Subtitle     string   `yaml:"subtitle"`
	Placeholder  string   `yaml:"placeholder"`
	Options      []string `yaml:"options"`
	Min          *int     `yaml:"min"`
	Max          *int     `yaml:"max"`
	Step         *int     `yaml:"step"`
	Rows         []string `yaml:"rows"`
	Columns      []string `yaml:"columns"`
	Subquestions []struct {
		Key   string `yaml:"key"`
		Label string `yaml:"label"`
	} `yaml:"subquestions"`
}

// Load resolves, parses, merges and validates a questionnaire document.
// Any failure is a configuration error: the caller keeps running and
// shows the message to the operator.
func (r *Registry) Load(dir, selector string) (*Definition, error) {
	path, err := r.resolve(dir, selector)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigError(fmt.Sprintf("read questionnaire %s: %v", path, err))
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewConfigError(fmt.Sprintf("parse questionnaire %s: %v", path, err))
	}
	def := buildDefinition(doc)
	r.applyEnvOverrides(&def.Settings)
	if err := validate(def); err != nil {
		return nil, err
	}
	r.log.Info("questionnaire loaded",
		"path", path,
		"id", def.Settings.ID,
		"version", def.Settings.Version,
		"tag", def.Settings.Tag(),
		"intro_questions", len(def.Intro),
		"questions", len(def.Main),
	)
	return def, nil
}

// resolve picks the document file: explicit selector wins, otherwise
// exactly one YAML file must exist in the directory. None or several is
// an ambiguity the operator has to resolve, never a guess.
func (r *Registry) resolve(dir, selector string) (string, error) {
	if selector != "" {
		path := selector
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, selector)
		}
		if _, err := os.Stat(path); err != nil {
			return "", NewConfigError(fmt.Sprintf("questionnaire %q not found in %s; check SURVEY_QUESTIONNAIRE", selector, dir))
		}
		return path, nil
	}
	var candidates []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", NewConfigError(fmt.Sprintf("scan questionnaire dir %s: %v", dir, err))
		}
		candidates = append(candidates, matches...)
	}
	sort.Strings(candidates)
	switch len(candidates) {
	case 0:
		return "", NewConfigError(fmt.Sprintf("no questionnaire documents in %s; add a YAML document or set SURVEY_QUESTIONNAIRE", dir))
	case 1:
		return candidates[0], nil
	default:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = filepath.Base(c)
		}
		return "", NewConfigError(fmt.Sprintf("multiple questionnaire documents in %s (%s); set SURVEY_QUESTIONNAIRE to pick one", dir, strings.Join(names, ", ")))
	}
}

func buildDefinition(doc document) *Definition {
	s := Settings{
		ID:      strings.TrimSpace(doc.Settings.ID),
		Version: strings.TrimSpace(doc.Settings.Version),
		Title:   strings.TrimSpace(doc.Settings.Title),

		Subtitle:        doc.Settings.Subtitle,
		Display:         doc.Settings.Display,
		WelcomeMessage:  doc.Settings.WelcomeMessage,
		ThankYouMessage: doc.Settings.ThankYouMessage,
		StorageTag:      strings.TrimSpace(doc.Settings.StorageTag),

		// defaults for everything the document may omit
		AllowBack:         true,
		ShowProgress:      true,
		CollectIdentity:   true,
		AllowResubmit:     true,
		MinChartResponses: 3,
		VerbatimLimit:     50,
		VerbatimMaxChars:  280,
	}
	if s.Display == "" {
		s.Display = "step"
	}
	if doc.Settings.Randomize != nil {
		s.Randomize = *doc.Settings.Randomize
	}
	if doc.Settings.AllowBack != nil {
		s.AllowBack = *doc.Settings.AllowBack
	}
	if doc.Settings.ShowProgress != nil {
		s.ShowProgress = *doc.Settings.ShowProgress
	}
	if doc.Settings.CollectIdentity != nil {
		s.CollectIdentity = *doc.Settings.CollectIdentity
	}
	if doc.Settings.AllowResubmit != nil {
		s.AllowResubmit = *doc.Settings.AllowResubmit
	}
	if doc.Settings.AutoAdvanceSeconds != nil {
		s.AutoAdvanceSeconds = *doc.Settings.AutoAdvanceSeconds
	}
	if doc.Settings.MinChartResponses != nil {
		s.MinChartResponses = *doc.Settings.MinChartResponses
	}
	if doc.Settings.VerbatimLimit != nil {
		s.VerbatimLimit = *doc.Settings.VerbatimLimit
	}
	if doc.Settings.VerbatimMaxChars != nil {
		s.VerbatimMaxChars = *doc.Settings.VerbatimMaxChars
	}
	return &Definition{
		Settings: s,
		Intro:    buildQuestions(doc.Intro),
		Main:     buildQuestions(doc.Questions),
	}
}

func buildQuestions(docs []questionDoc) []Question {
	out := make([]Question, 0, len(docs))
	for _, qd := range docs {
		q := Question{
			ID:          qd.ID,
			Type:        strings.TrimSpace(qd.Type),
			Title:       strings.TrimSpace(qd.Title),
			Subtitle:    qd.Subtitle,
			Placeholder: qd.Placeholder,
			Options:     qd.Options,
			Rows:        qd.Rows,
			Columns:     qd.Columns,
		}
		if qd.Min != nil {
			q.Min = *qd.Min
		}
		if qd.Max != nil {
			q.Max = *qd.Max
		}
		if qd.Step != nil {
			q.Step = *qd.Step
		}
		// scale defaults to the 0-10 NPS range
		if q.Type == QuestionScale && qd.Min == nil && qd.Max == nil {
			q.Min, q.Max = 0, 10
		}
		if q.Type == QuestionRating && qd.Min == nil && qd.Max == nil {
			q.Min, q.Max = 1, 5
		}
		for _, sub := range qd.Subquestions {
			q.Subquestions = append(q.Subquestions, Subquestion{Key: sub.Key, Label: sub.Label})
		}
		out = append(out, q)
	}
	return out
}

// envOverride binds one SURVEY_SETTING_* variable to a settings field.
type envOverride struct {
	key  string
	kind string // "string", "bool", "int"
	str  *string
	b    *bool
	i    *int
}

// applyEnvOverrides layers SURVEY_SETTING_* variables over the merged
// settings. Every applied override is logged with old and new value; a
// value that fails to parse is logged and ignored.
func (r *Registry) applyEnvOverrides(s *Settings) {
	overrides := []envOverride{
		{key: "TITLE", kind: "string", str: &s.Title},
		{key: "SUBTITLE", kind: "string", str: &s.Subtitle},
		{key: "DISPLAY", kind: "string", str: &s.Display},
		{key: "WELCOME_MESSAGE", kind: "string", str: &s.WelcomeMessage},
		{key: "THANK_YOU_MESSAGE", kind: "string", str: &s.ThankYouMessage},
		{key: "STORAGE_TAG", kind: "string", str: &s.StorageTag},
		{key: "RANDOMIZE", kind: "bool", b: &s.Randomize},
		{key: "ALLOW_BACK", kind: "bool", b: &s.AllowBack},
		{key: "SHOW_PROGRESS", kind: "bool", b: &s.ShowProgress},
		{key: "COLLECT_IDENTITY", kind: "bool", b: &s.CollectIdentity},
		{key: "ALLOW_RESUBMIT", kind: "bool", b: &s.AllowResubmit},
		{key: "AUTO_ADVANCE_SECONDS", kind: "int", i: &s.AutoAdvanceSeconds},
		{key: "MIN_CHART_RESPONSES", kind: "int", i: &s.MinChartResponses},
		{key: "VERBATIM_LIMIT", kind: "int", i: &s.VerbatimLimit},
		{key: "VERBATIM_MAX_CHARS", kind: "int", i: &s.VerbatimMaxChars},
	}
	for _, ov := range overrides {
		raw, ok := r.lookupEnv("SURVEY_SETTING_" + ov.key)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		switch ov.kind {
		case "string":
			r.log.Info("setting override", "setting", ov.key, "old", *ov.str, "new", raw)
			*ov.str = raw
		case "bool":
			v, err := strconv.ParseBool(raw)
			if err != nil {
				r.log.Warn("ignoring unparseable setting override", "setting", ov.key, "value", raw)
				continue
			}
			r.log.Info("setting override", "setting", ov.key, "old", *ov.b, "new", v)
			*ov.b = v
		case "int":
			v, err := strconv.Atoi(raw)
			if err != nil {
				r.log.Warn("ignoring unparseable setting override", "setting", ov.key, "value", raw)
				continue
			}
			r.log.Info("setting override", "setting", ov.key, "old", *ov.i, "new", v)
			*ov.i = v
		}
	}
}

var validTypes = map[string]bool{
	QuestionText:        true,
	QuestionTextarea:    true,
	QuestionSelect:      true,
	QuestionMultiSelect: true,
	QuestionScale:       true,
	QuestionRating:      true,
	QuestionRanking:     true,
	QuestionMatrix:      true,
	QuestionDate:        true,
	QuestionYesNo:       true,
	QuestionCompound:    true,
}

// validate rejects definitions that would produce broken surveys. A
// definition is either fully valid or not returned at all.
func validate(def *Definition) error {
	var missing []string
	if def.Settings.ID == "" {
		missing = append(missing, "id")
	}
	if def.Settings.Version == "" {
		missing = append(missing, "version")
	}
	if def.Settings.Title == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return NewConfigError(fmt.Sprintf("questionnaire settings missing required keys: %s", strings.Join(missing, ", ")))
	}
	if d := def.Settings.Display; d != "step" && d != "page" {
		return NewConfigError(fmt.Sprintf("questionnaire display must be step or page, got %q", d))
	}

	seen := map[int]bool{}
	for _, q := range def.AllQuestions() {
		if q.ID <= 0 {
			return NewConfigError(fmt.Sprintf("question %q needs a positive id", q.Title))
		}
		if seen[q.ID] {
			return NewConfigError(fmt.Sprintf("duplicate question id %d", q.ID))
		}
		seen[q.ID] = true
		if !validTypes[q.Type] {
			return NewConfigError(fmt.Sprintf("question %d has unknown type %q", q.ID, q.Type))
		}
		switch q.Type {
		case QuestionSelect, QuestionMultiSelect, QuestionRanking:
			if len(q.Options) == 0 {
				return NewConfigError(fmt.Sprintf("question %d (%s) needs options", q.ID, q.Type))
			}
		case QuestionMatrix:
			if len(q.Rows) == 0 || len(q.Columns) == 0 {
				return NewConfigError(fmt.Sprintf("question %d (matrix) needs rows and columns", q.ID))
			}
		case QuestionCompound:
			if len(q.Subquestions) == 0 {
				return NewConfigError(fmt.Sprintf("question %d (compound) needs subquestions", q.ID))
			}
			keys := map[string]bool{}
			for _, sub := range q.Subquestions {
				if sub.Key == "" {
					return NewConfigError(fmt.Sprintf("question %d has a subquestion without a key", q.ID))
				}
				if keys[sub.Key] {
					return NewConfigError(fmt.Sprintf("question %d has duplicate subquestion key %q", q.ID, sub.Key))
				}
				keys[sub.Key] = true
			}
		case QuestionScale, QuestionRating:
			if q.Min >= q.Max {
				return NewConfigError(fmt.Sprintf("question %d (%s) needs min < max", q.ID, q.Type))
			}
		}
	}
	return nil
}
