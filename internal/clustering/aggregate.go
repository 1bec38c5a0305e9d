package clustering

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/iago/question-insights-back/internal/domain"
)

// Normalize is the merge key and display text of an aggregated question.
func Normalize(question string) string {
	return normalizeWith(cases.Fold(), question)
}

// A Caser keeps state between calls and must not be shared across goroutines.
func normalizeWith(folder cases.Caser, question string) string {
	return folder.String(strings.TrimSpace(question))
}

// Aggregate merges per-batch results. Questions sharing a normalized form
// are summed, usage is added component-wise and the merged list is ranked
// like a single batch. The outcome does not depend on batch order.
func Aggregate(results []domain.ClusteringResult, topN int) domain.ClusteringResult {
	folder := cases.Fold()
	counts := make(map[string]int)
	var usage domain.UsageAccount
	for _, result := range results {
		usage = usage.Add(result.Usage)
		for _, item := range result.Questions {
			key := normalizeWith(folder, item.Question)
			if key == "" {
				continue
			}
			counts[key] += item.Count
		}
	}

	merged := make([]domain.QuestionFrequency, 0, len(counts))
	for question, count := range counts {
		merged = append(merged, domain.QuestionFrequency{Question: question, Count: count})
	}
	return domain.ClusteringResult{Questions: rank(merged, topN), Usage: usage}
}
