// Package quality checks provider output before it is ranked and stored.
package quality

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/iago/question-insights-back/internal/domain"
	"github.com/iago/question-insights-back/internal/policy"
)

const maxQuestionLength = 240

// ClusterReport describes what Sanitize changed. OverCounted is set when
// the counts add up to more questions than were sent.
type ClusterReport struct {
	Corrected   bool
	Merged      int
	OverCounted bool
}

type ClusterValidator struct {
	masker *policy.Masker
}

func NewClusterValidator(masker *policy.Masker) *ClusterValidator {
	return &ClusterValidator{masker: masker}
}

// Sanitize normalises cluster labels, masks PII echoed back by the
// provider and merges labels that only differ by case or spacing.
// Input order is kept; the first spelling of a merged label wins.
func (v *ClusterValidator) Sanitize(clusters []domain.QuestionFrequency, sent int) ([]domain.QuestionFrequency, ClusterReport) {
	var report ClusterReport
	var masker *policy.Masker
	if v != nil {
		masker = v.masker
	}
	caser := cases.Fold()

	out := make([]domain.QuestionFrequency, 0, len(clusters))
	index := make(map[string]int, len(clusters))
	total := 0
	for _, item := range clusters {
		question := normalizeText(item.Question)
		if masked := masker.Mask(question); masked != question {
			question = masked
			report.Corrected = true
		}
		if len(question) > maxQuestionLength {
			question = truncateAtWord(question, maxQuestionLength)
			report.Corrected = true
		}
		if question != item.Question {
			report.Corrected = true
		}
		total += item.Count

		key := caser.String(question)
		if at, ok := index[key]; ok {
			out[at].Count += item.Count
			report.Merged++
			report.Corrected = true
			continue
		}
		index[key] = len(out)
		out = append(out, domain.QuestionFrequency{Question: question, Count: item.Count})
	}
	report.OverCounted = sent > 0 && total > sent
	return out, report
}

func normalizeText(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func truncateAtWord(value string, maxLen int) string {
	if len(value) <= maxLen || maxLen <= 0 {
		return value
	}
	cut := value[:maxLen]
	lastSpace := strings.LastIndex(cut, " ")
	if lastSpace > maxLen/2 {
		cut = cut[:lastSpace]
	}
	return strings.TrimSpace(strings.ToValidUTF8(cut, ""))
}
