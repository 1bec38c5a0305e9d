// Package questions turns fetched dialogs into day-bucketed batches of
// candidate user questions.
package questions

import (
	"strings"

	"github.com/rivo/uniseg"

	"github.com/iago/question-insights-back/internal/domain"
)

// Extract concatenates the queries of request turns and splits the text on
// Unicode sentence boundaries. Repeated questions are kept.
func Extract(turns []domain.DialogTurn) []string {
	parts := make([]string, 0, len(turns))
	for _, turn := range turns {
		if turn.Type != domain.TurnTypeRequest {
			continue
		}
		query := strings.TrimSpace(turn.Query)
		if query == "" {
			continue
		}
		parts = append(parts, query)
	}
	if len(parts) == 0 {
		return nil
	}
	return SplitSentences(strings.Join(parts, " "))
}

func SplitSentences(text string) []string {
	sentences := make([]string, 0)
	state := -1
	rest := text
	for len(rest) > 0 {
		var sentence string
		sentence, rest, state = uniseg.FirstSentenceInString(rest, state)
		if trimmed := strings.TrimSpace(sentence); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}
