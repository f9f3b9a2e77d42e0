package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// ExportCSV renders the question-per-row export: a header of respondent
// short-names, then one row per question. Compound and matrix questions
// emit a label-only row followed by one row per sub-question. Embedded
// newlines are collapsed to spaces so each record stays on one line;
// encoding/csv handles quoting.
func (s *AggregateService) ExportCSV(records []*AnswerRecord) ([]byte, error) {
	names := ShortNames(records)
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)

	if err := w.Write(append([]string{"Question"}, names...)); err != nil {
		return nil, err
	}
	blanks := make([]string, len(records))
	for _, q := range s.def.AllQuestions() {
		subs := q.SubEntries()
		if len(subs) == 0 {
			row := make([]string, 0, 1+len(records))
			row = append(row, q.Title)
			for _, rec := range records {
				row = append(row, collapseNewlines(CoerceString(rec.Answers[AnswerKey(q.ID, "")])))
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
			continue
		}
		if err := w.Write(append([]string{q.Title}, blanks...)); err != nil {
			return nil, err
		}
		for _, sub := range subs {
			row := make([]string, 0, 1+len(records))
			row = append(row, fmt.Sprintf("  %s) %s", sub.Key, sub.Label))
			for _, rec := range records {
				row = append(row, collapseNewlines(CoerceString(rec.Answers[AnswerKey(q.ID, sub.Key)])))
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// collapseNewlines replaces any line break with a single space.
func collapseNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}
