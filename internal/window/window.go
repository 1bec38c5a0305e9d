// Package window maps named time ranges onto concrete instants and the
// range tokens understood by the transcript service.
package window

import (
	"fmt"
	"time"

	"github.com/iago/question-insights-back/internal/domain"
)

const (
	Today       = "today"
	Yesterday   = "yesterday"
	Last7       = "last7"
	Last30      = "last30"
	MonthToDate = "monthToDate"
	AllTime     = "alltime"
)

// Window is a resolved range. Both ends are inclusive.
type Window struct {
	Label string
	Start time.Time
	End   time.Time
	Token string
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Bounds computes [start, end] from now and the local midnight of now.
type Bounds func(now, midnight time.Time) (time.Time, time.Time)

type Definition struct {
	Label  string
	Token  string
	Bounds Bounds
}

func DefaultDefinitions() []Definition {
	return []Definition{
		{Label: Today, Token: "Today", Bounds: func(now, midnight time.Time) (time.Time, time.Time) {
			return midnight, now
		}},
		{Label: Yesterday, Token: "Yesterday", Bounds: func(_, midnight time.Time) (time.Time, time.Time) {
			return midnight.AddDate(0, 0, -1), midnight
		}},
		{Label: Last7, Token: "Last 7 Days", Bounds: func(now, midnight time.Time) (time.Time, time.Time) {
			return midnight.AddDate(0, 0, -7), now
		}},
		{Label: Last30, Token: "Last 30 Days", Bounds: func(now, midnight time.Time) (time.Time, time.Time) {
			return midnight.AddDate(0, 0, -30), now
		}},
		{Label: MonthToDate, Token: "This Month", Bounds: func(now, midnight time.Time) (time.Time, time.Time) {
			return midnight.AddDate(0, 0, 1-midnight.Day()), now
		}},
		// The upper bound is taken at resolution time and may trail
		// transcripts created while the job runs.
		{Label: AllTime, Token: "All Time", Bounds: func(now, _ time.Time) (time.Time, time.Time) {
			return time.Unix(0, 0).In(now.Location()), now
		}},
	}
}

type Resolver struct {
	order       []string
	definitions map[string]Definition
}

func NewResolver(definitions []Definition) *Resolver {
	resolver := &Resolver{definitions: make(map[string]Definition, len(definitions))}
	for _, definition := range definitions {
		if _, exists := resolver.definitions[definition.Label]; !exists {
			resolver.order = append(resolver.order, definition.Label)
		}
		resolver.definitions[definition.Label] = definition
	}
	return resolver
}

func NewDefaultResolver() *Resolver {
	return NewResolver(DefaultDefinitions())
}

// Labels lists the recognised range labels in definition order.
func (r *Resolver) Labels() []string {
	return append([]string(nil), r.order...)
}

func (r *Resolver) Supports(label string) bool {
	_, ok := r.definitions[label]
	return ok
}

func (r *Resolver) Resolve(label string, now time.Time) (Window, error) {
	definition, ok := r.definitions[label]
	if !ok {
		return Window{}, fmt.Errorf("%w: unknown range %q", domain.ErrInvalidConfiguration, label)
	}
	start, end := definition.Bounds(now, Midnight(now))
	return Window{
		Label: label,
		Start: start,
		End:   end,
		Token: definition.Token,
	}, nil
}

// Midnight returns the start of the calendar day of t in t's location.
func Midnight(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
