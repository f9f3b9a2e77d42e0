package services

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Aggregate kinds, selected per question type and response count.
const (
	KindChoices  = "choices"
	KindNPS      = "nps"
	KindNumeric  = "numeric"
	KindVerbatim = "verbatim"
)

// ChoiceCount is one bar of a frequency chart.
type ChoiceCount struct {
	Option string `json:"option"`
	Count  int    `json:"count"`
}

// NPSSummary is the three-bucket breakdown of a 0-10 scale: detractors
// 0-6, passives 7-8, promoters 9-10.
type NPSSummary struct {
	Detractors   int `json:"detractors"`
	Passives     int `json:"passives"`
	Promoters    int `json:"promoters"`
	DetractorPct int `json:"detractor_pct"`
	PassivePct   int `json:"passive_pct"`
	PromoterPct  int `json:"promoter_pct"`
	Score        int `json:"score"`
}

// ValueCount is one histogram bucket of a numeric question.
type ValueCount struct {
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// NumericSummary covers scales and ratings outside the NPS range.
type NumericSummary struct {
	Mean      float64      `json:"mean"`
	Min       float64      `json:"min"`
	Max       float64      `json:"max"`
	Histogram []ValueCount `json:"histogram"`
}

// QuestionSummary is the chartable aggregate of one question.
type QuestionSummary struct {
	QuestionID int    `json:"question_id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	Kind       string `json:"kind"`
	Responses  int    `json:"responses"`

	Choices   []ChoiceCount   `json:"choices,omitempty"`
	NPS       *NPSSummary     `json:"nps,omitempty"`
	Numeric   *NumericSummary `json:"numeric,omitempty"`
	Verbatims []string        `json:"verbatims,omitempty"`
}

// RespondentRow is one respondent in the tabular dashboard view.
type RespondentRow struct {
	ShortName   string   `json:"short_name"`
	Identity    string   `json:"identity"`
	SubmittedAt string   `json:"submitted_at"`
	LastUpdated string   `json:"last_updated"`
	Cells       []string `json:"cells"`
}

// RespondentTable is one row per respondent, one column per question.
type RespondentTable struct {
	Questions []string        `json:"questions"`
	Rows      []RespondentRow `json:"rows"`
}

// AggregateService flattens answer records into tables, CSV exports and
// per-question chart summaries. It is pure: all inputs arrive as
// arguments, nothing touches the network.
type AggregateService struct {
	def *Definition
}

func NewAggregateService(def *Definition) *AggregateService {
	return &AggregateService{def: def}
}

// ShortNames derives a compact display name per record: the local part of
// the identity, or anon-<suffix> from the storage key for anonymous
// records. Duplicates are disambiguated with a numeric suffix.
func ShortNames(records []*AnswerRecord) []string {
	out := make([]string, len(records))
	used := map[string]int{}
	for i, rec := range records {
		name := shortName(rec)
		used[name]++
		if n := used[name]; n > 1 {
			name = fmt.Sprintf("%s (%d)", name, n)
		}
		out[i] = name
	}
	return out
}

func shortName(rec *AnswerRecord) string {
	if IsAnonymousIdentity(rec.Identity) {
		suffix := strings.TrimSuffix(strings.TrimPrefix(rec.StorageKey, anonymousKeyPrefix), ".json")
		if len(suffix) > 6 {
			suffix = suffix[:6]
		}
		if suffix == "" {
			return "anon"
		}
		return "anon-" + suffix
	}
	if at := strings.Index(rec.Identity, "@"); at > 0 {
		return rec.Identity[:at]
	}
	return rec.Identity
}

// Table builds the respondent-per-row dashboard table. Compound and
// matrix answers are flattened into one delimited cell; every value is
// coerced to a display string so the table stays homogeneous.
func (s *AggregateService) Table(records []*AnswerRecord) *RespondentTable {
	questions := s.def.AllQuestions()
	titles := make([]string, len(questions))
	for i, q := range questions {
		titles[i] = q.Title
	}
	names := ShortNames(records)
	rows := make([]RespondentRow, 0, len(records))
	for i, rec := range records {
		cells := make([]string, len(questions))
		for j, q := range questions {
			cells[j] = flattenAnswer(q, rec.Answers)
		}
		rows = append(rows, RespondentRow{
			ShortName:   names[i],
			Identity:    rec.Identity,
			SubmittedAt: rec.SubmittedAt.Format("2006-01-02 15:04"),
			LastUpdated: rec.LastUpdated.Format("2006-01-02 15:04"),
			Cells:       cells,
		})
	}
	return &RespondentTable{Questions: titles, Rows: rows}
}

// flattenAnswer renders a question's answer as one display string.
// Compound/matrix answers become "a) ...; b) ...".
func flattenAnswer(q Question, answers map[string]any) string {
	subs := q.SubEntries()
	if len(subs) == 0 {
		return CoerceString(answers[AnswerKey(q.ID, "")])
	}
	parts := make([]string, 0, len(subs))
	for _, sub := range subs {
		v := CoerceString(answers[AnswerKey(q.ID, sub.Key)])
		if v == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s) %s", sub.Key, v))
	}
	return strings.Join(parts, "; ")
}

// CoerceString renders any stored answer value as a display string.
// Malformed or unexpected values degrade to the empty string, never an
// error: the dashboard is used by non-engineers.
func CoerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case float64:
		if val == math.Trunc(val) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := CoerceString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, CoerceString(val[k])))
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprintf("%v", val)
	}
}

// coerceNumber extracts a numeric answer value. Strings are parsed;
// anything else fails softly.
func coerceNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Summarize builds one chartable aggregate per question. Questions with
// fewer answers than the configured threshold always fall back to the
// verbatim list: a pie chart over two answers is noise.
func (s *AggregateService) Summarize(records []*AnswerRecord) []QuestionSummary {
	out := []QuestionSummary{}
	for _, q := range s.def.AllQuestions() {
		out = append(out, s.summarizeQuestion(q, records))
	}
	return out
}

func (s *AggregateService) summarizeQuestion(q Question, records []*AnswerRecord) QuestionSummary {
	sum := QuestionSummary{QuestionID: q.ID, Title: q.Title, Type: q.Type}

	values := []any{}
	for _, rec := range records {
		if len(q.SubEntries()) > 0 {
			if flat := flattenAnswer(q, rec.Answers); flat != "" {
				values = append(values, flat)
			}
			continue
		}
		v := rec.Answers[AnswerKey(q.ID, "")]
		if CoerceString(v) != "" {
			values = append(values, v)
		}
	}
	sum.Responses = len(values)

	if len(values) < s.def.Settings.MinChartResponses {
		sum.Kind = KindVerbatim
		sum.Verbatims = s.verbatims(values)
		return sum
	}

	switch q.Type {
	case QuestionSelect, QuestionYesNo:
		sum.Kind = KindChoices
		sum.Choices = countChoices(optionsFor(q), values, false)
	case QuestionMultiSelect:
		sum.Kind = KindChoices
		sum.Choices = countChoices(q.Options, values, true)
	case QuestionScale:
		if q.Min == 0 && q.Max == 10 {
			sum.Kind = KindNPS
			sum.NPS = npsBuckets(values)
		} else {
			sum.Kind = KindNumeric
			sum.Numeric = numericSummary(values)
		}
	case QuestionRating:
		sum.Kind = KindNumeric
		sum.Numeric = numericSummary(values)
	case QuestionMatrix:
		sum.Kind = KindChoices
		sum.Choices = matrixChoices(q, records)
	default:
		sum.Kind = KindVerbatim
		sum.Verbatims = s.verbatims(values)
	}
	return sum
}

func optionsFor(q Question) []string {
	if q.Type == QuestionYesNo {
		return []string{"yes", "no"}
	}
	return q.Options
}

// countChoices tallies stored options in option order. Stored values not
// present in the option list are dropped: an out-of-range value degrades
// to omission rather than inventing a chart bucket.
func countChoices(options []string, values []any, multi bool) []ChoiceCount {
	counts := map[string]int{}
	tally := func(v any) {
		counts[strings.TrimSpace(CoerceString(v))]++
	}
	for _, v := range values {
		if multi {
			if list, ok := v.([]any); ok {
				for _, item := range list {
					tally(item)
				}
				continue
			}
		}
		tally(v)
	}
	out := make([]ChoiceCount, 0, len(options))
	for _, opt := range options {
		out = append(out, ChoiceCount{Option: opt, Count: counts[opt]})
	}
	return out
}

// matrixChoices tallies each matrix cell: per row, how often every
// column was picked. Stored values outside the column list are dropped.
func matrixChoices(q Question, records []*AnswerRecord) []ChoiceCount {
	out := []ChoiceCount{}
	for _, sub := range q.SubEntries() {
		counts := map[string]int{}
		for _, rec := range records {
			v := strings.TrimSpace(CoerceString(rec.Answers[AnswerKey(q.ID, sub.Key)]))
			if v != "" {
				counts[v]++
			}
		}
		for _, col := range q.Columns {
			out = append(out, ChoiceCount{Option: sub.Label + ": " + col, Count: counts[col]})
		}
	}
	return out
}

func npsBuckets(values []any) *NPSSummary {
	nps := &NPSSummary{}
	total := 0
	for _, v := range values {
		n, ok := coerceNumber(v)
		if !ok || n < 0 || n > 10 {
			continue
		}
		total++
		switch {
		case n <= 6:
			nps.Detractors++
		case n <= 8:
			nps.Passives++
		default:
			nps.Promoters++
		}
	}
	if total == 0 {
		return nps
	}
	pct := func(n int) int {
		return int(math.Round(100 * float64(n) / float64(total)))
	}
	nps.DetractorPct = pct(nps.Detractors)
	nps.PassivePct = pct(nps.Passives)
	nps.PromoterPct = pct(nps.Promoters)
	nps.Score = nps.PromoterPct - nps.DetractorPct
	return nps
}

func numericSummary(values []any) *NumericSummary {
	nums := []float64{}
	for _, v := range values {
		if n, ok := coerceNumber(v); ok {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return &NumericSummary{}
	}
	sum := NumericSummary{Min: nums[0], Max: nums[0]}
	total := 0.0
	counts := map[float64]int{}
	for _, n := range nums {
		total += n
		if n < sum.Min {
			sum.Min = n
		}
		if n > sum.Max {
			sum.Max = n
		}
		counts[n]++
	}
	sum.Mean = total / float64(len(nums))
	buckets := make([]float64, 0, len(counts))
	for v := range counts {
		buckets = append(buckets, v)
	}
	sort.Float64s(buckets)
	for _, v := range buckets {
		sum.Histogram = append(sum.Histogram, ValueCount{Value: v, Count: counts[v]})
	}
	return &sum
}

// verbatims renders values as a capped plain-text list.
func (s *AggregateService) verbatims(values []any) []string {
	limit := s.def.Settings.VerbatimLimit
	maxChars := s.def.Settings.VerbatimMaxChars
	out := []string{}
	for _, v := range values {
		if len(out) >= limit {
			break
		}
		text := CoerceString(v)
		if text == "" {
			continue
		}
		if runes := []rune(text); len(runes) > maxChars {
			text = string(runes[:maxChars])
		}
		out = append(out, text)
	}
	return out
}
