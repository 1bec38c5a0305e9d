package questions

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iago/question-insights-back/internal/domain"
	"github.com/iago/question-insights-back/internal/window"
)

const dayLayout = "2006-01-02"

var localTimestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Batcher groups extracted questions by the calendar day of each dialog's
// first in-window turn.
type Batcher struct {
	logger zerolog.Logger
}

func NewBatcher(logger zerolog.Logger) *Batcher {
	return &Batcher{logger: logger}
}

// Batch returns one batch per day, most recent first. For the "today" range
// every question lands in a single batch, even when it is empty.
func (b *Batcher) Batch(dialogs []domain.Dialog, w window.Window) []domain.QuestionBatch {
	if w.Label == window.Today {
		all := make([]string, 0)
		for _, dialog := range dialogs {
			inWindow := turnsInWindow(dialog.Turns, w)
			if len(inWindow) == 0 {
				continue
			}
			all = append(all, Extract(inWindow)...)
		}
		return []domain.QuestionBatch{{Questions: all}}
	}

	buckets := make(map[string][]string)
	for _, dialog := range dialogs {
		inWindow := turnsInWindow(dialog.Turns, w)
		if len(inWindow) == 0 {
			continue
		}
		day, ok := dayKey(inWindow[0].Timestamp)
		if !ok {
			b.logger.Warn().
				Str("transcript_id", dialog.TranscriptID).
				Str("timestamp", inWindow[0].Timestamp).
				Msg("first in-window timestamp has no calendar date, dropping dialog")
			continue
		}
		buckets[day] = append(buckets[day], Extract(inWindow)...)
	}

	days := make([]string, 0, len(buckets))
	for day, questions := range buckets {
		if len(questions) == 0 {
			continue
		}
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))

	batches := make([]domain.QuestionBatch, 0, len(days))
	for _, day := range days {
		batches = append(batches, domain.QuestionBatch{Day: day, Questions: buckets[day]})
	}
	return batches
}

func turnsInWindow(turns []domain.DialogTurn, w window.Window) []domain.DialogTurn {
	kept := make([]domain.DialogTurn, 0, len(turns))
	for _, turn := range turns {
		at, ok := ParseTimestamp(turn.Timestamp, w.End.Location())
		if !ok || !w.Contains(at) {
			continue
		}
		kept = append(kept, turn)
	}
	return kept
}

// ParseTimestamp accepts RFC3339, zone-less ISO timestamps (read in loc) and
// epoch milliseconds.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed, true
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localTimestampLayouts {
		if parsed, err := time.ParseInLocation(layout, value, loc); err == nil {
			return parsed, true
		}
	}
	if millis, err := strconv.ParseInt(value, 10, 64); err == nil && millis > 0 {
		return time.UnixMilli(millis), true
	}
	return time.Time{}, false
}

// dayKey reads the date component written in the timestamp itself, without
// converting it to another zone.
func dayKey(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if len(value) < len(dayLayout) {
		return "", false
	}
	candidate := value[:len(dayLayout)]
	if _, err := time.Parse(dayLayout, candidate); err != nil {
		return "", false
	}
	return candidate, true
}
