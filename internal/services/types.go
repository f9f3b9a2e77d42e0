package services

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"
)

// Question types. The enumeration is fixed; documents using anything else
// fail validation.
const (
	QuestionText        = "text"
	QuestionTextarea    = "textarea"
	QuestionSelect      = "select"
	QuestionMultiSelect = "multiselect"
	QuestionScale       = "scale"
	QuestionRating      = "rating"
	QuestionRanking     = "ranking"
	QuestionMatrix      = "matrix"
	QuestionDate        = "date"
	QuestionYesNo       = "yesno"
	QuestionCompound    = "compound"
)

// Settings is the merged questionnaire configuration: built-in defaults,
// overridden by the document, overridden by the environment.
type Settings struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Title   string `json:"title"`

	Subtitle        string `json:"subtitle,omitempty"`
	Display         string `json:"display"` // "step" or "page"
	WelcomeMessage  string `json:"welcome_message,omitempty"`
	ThankYouMessage string `json:"thank_you_message,omitempty"`

	Randomize       bool `json:"randomize"`
	AllowBack       bool `json:"allow_back"`
	ShowProgress    bool `json:"show_progress"`
	CollectIdentity bool `json:"collect_identity"`
	AllowResubmit   bool `json:"allow_resubmit"`

	AutoAdvanceSeconds int `json:"auto_advance_seconds,omitempty"`

	// StorageTag overrides the derived tag for data written before the
	// id_vversion scheme existed.
	StorageTag string `json:"storage_tag,omitempty"`

	MinChartResponses int `json:"min_chart_responses"`
	VerbatimLimit     int `json:"verbatim_limit"`
	VerbatimMaxChars  int `json:"verbatim_max_chars"`
}

// Tag is the blob-store grouping key for this questionnaire version.
func (s Settings) Tag() string {
	if s.StorageTag != "" {
		return s.StorageTag
	}
	return fmt.Sprintf("%s_v%s", s.ID, s.Version)
}

// Subquestion is one labelled entry of a compound question.
type Subquestion struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Question is one questionnaire entry. ID is stable for the lifetime of a
// questionnaire version; answer keys derive from it.
type Question struct {
	ID       int    `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`

	Placeholder  string        `json:"placeholder,omitempty"`
	Options      []string      `json:"options,omitempty"`
	Min          int           `json:"min,omitempty"`
	Max          int           `json:"max,omitempty"`
	Step         int           `json:"step,omitempty"`
	Rows         []string      `json:"rows,omitempty"`
	Columns      []string      `json:"columns,omitempty"`
	Subquestions []Subquestion `json:"subquestions,omitempty"`
}

// AnswerKey derives the storage key for a question, optionally scoped to a
// sub-key for compound and matrix questions.
func AnswerKey(questionID int, subKey string) string {
	if subKey != "" {
		return fmt.Sprintf("q%d_%s", questionID, subKey)
	}
	return fmt.Sprintf("q%d", questionID)
}

// SubEntry pairs a sub-answer key with its display label.
type SubEntry struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// SubEntries lists the sub-answers of a compound or matrix question, in
// document order. Matrix rows get positional keys (r1, r2, ...) so row
// labels can be edited without orphaning stored answers.
func (q Question) SubEntries() []SubEntry {
	switch q.Type {
	case QuestionCompound:
		out := make([]SubEntry, 0, len(q.Subquestions))
		for _, sub := range q.Subquestions {
			out = append(out, SubEntry{Key: sub.Key, Label: sub.Label})
		}
		return out
	case QuestionMatrix:
		out := make([]SubEntry, 0, len(q.Rows))
		for i, row := range q.Rows {
			out = append(out, SubEntry{Key: fmt.Sprintf("r%d", i+1), Label: row})
		}
		return out
	default:
		return nil
	}
}

// AnswerKeys lists every storage key this question can produce.
func (q Question) AnswerKeys() []string {
	subs := q.SubEntries()
	if len(subs) == 0 {
		return []string{AnswerKey(q.ID, "")}
	}
	out := make([]string, 0, len(subs))
	for _, sub := range subs {
		out = append(out, AnswerKey(q.ID, sub.Key))
	}
	return out
}

// Definition is an immutable, validated questionnaire. Intro questions
// keep document order; main questions may be shuffled per respondent.
type Definition struct {
	Settings Settings   `json:"settings"`
	Intro    []Question `json:"intro_questions,omitempty"`
	Main     []Question `json:"questions"`
}

// AllQuestions returns intro + main in document order.
func (d *Definition) AllQuestions() []Question {
	out := make([]Question, 0, len(d.Intro)+len(d.Main))
	out = append(out, d.Intro...)
	return append(out, d.Main...)
}

// QuestionsFor returns the question sequence shown to one respondent.
// With randomization on, identified respondents get an order seeded from
// identity+tag so it is stable across reloads; anonymous respondents get
// a fresh order every call.
func (d *Definition) QuestionsFor(identity string) []Question {
	out := append([]Question{}, d.Intro...)
	main := append([]Question{}, d.Main...)
	if d.Settings.Randomize && len(main) > 1 {
		var rng *rand.Rand
		if IsAnonymousIdentity(identity) {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		} else {
			h := fnv.New64a()
			_, _ = h.Write([]byte(identity + "|" + d.Settings.Tag()))
			rng = rand.New(rand.NewSource(int64(h.Sum64())))
		}
		rng.Shuffle(len(main), func(i, j int) { main[i], main[j] = main[j], main[i] })
	}
	return append(out, main...)
}

// AnswerRecord is one respondent's stored submission for one
// questionnaire version.
type AnswerRecord struct {
	Identity             string         `json:"identity"`
	QuestionnaireID      string         `json:"questionnaire_id"`
	QuestionnaireVersion string         `json:"questionnaire_version"`
	SubmittedAt          time.Time      `json:"submitted_at"`
	LastUpdated          time.Time      `json:"last_updated"`
	Answers              map[string]any `json:"answers"`

	// StorageKey is the blob name the record was loaded from; not part of
	// the persisted schema.
	StorageKey string `json:"-"`
}
