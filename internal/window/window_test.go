package window

import (
	"errors"
	"testing"
	"time"

	"github.com/iago/question-insights-back/internal/domain"
)

func TestResolveBounds(t *testing.T) {
	location := time.FixedZone("BRT", -3*60*60)
	now := time.Date(2026, time.March, 15, 14, 30, 0, 0, location)
	midnight := time.Date(2026, time.March, 15, 0, 0, 0, 0, location)

	cases := []struct {
		label string
		start time.Time
		end   time.Time
		token string
	}{
		{Today, midnight, now, "Today"},
		{Yesterday, midnight.AddDate(0, 0, -1), midnight, "Yesterday"},
		{Last7, time.Date(2026, time.March, 8, 0, 0, 0, 0, location), now, "Last 7 Days"},
		{Last30, time.Date(2026, time.February, 13, 0, 0, 0, 0, location), now, "Last 30 Days"},
		{MonthToDate, time.Date(2026, time.March, 1, 0, 0, 0, 0, location), now, "This Month"},
		{AllTime, time.Unix(0, 0), now, "All Time"},
	}

	resolver := NewDefaultResolver()
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			resolved, err := resolver.Resolve(tc.label, now)
			if err != nil {
				t.Fatalf("resolve %s: %v", tc.label, err)
			}
			if !resolved.Start.Equal(tc.start) {
				t.Fatalf("expected start %s, got %s", tc.start, resolved.Start)
			}
			if !resolved.End.Equal(tc.end) {
				t.Fatalf("expected end %s, got %s", tc.end, resolved.End)
			}
			if resolved.Token != tc.token {
				t.Fatalf("expected token %q, got %q", tc.token, resolved.Token)
			}
			if resolved.Start.After(resolved.End) || resolved.End.After(now) {
				t.Fatalf("expected start <= end <= now, got %s..%s", resolved.Start, resolved.End)
			}
		})
	}
}

func TestResolveAtMidnightKeepsOrdering(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	resolver := NewDefaultResolver()
	for _, label := range resolver.Labels() {
		resolved, err := resolver.Resolve(label, now)
		if err != nil {
			t.Fatalf("resolve %s: %v", label, err)
		}
		if resolved.Start.After(resolved.End) || resolved.End.After(now) {
			t.Fatalf("%s: expected start <= end <= now, got %s..%s", label, resolved.Start, resolved.End)
		}
	}
}

func TestResolveUnknownLabel(t *testing.T) {
	_, err := NewDefaultResolver().Resolve("fortnight", time.Now())
	if !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestContainsIsInclusive(t *testing.T) {
	start := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	w := Window{Start: start, End: end}

	if !w.Contains(start) || !w.Contains(end) {
		t.Fatalf("expected both endpoints to be inside the window")
	}
	if w.Contains(start.Add(-time.Nanosecond)) || w.Contains(end.Add(time.Nanosecond)) {
		t.Fatalf("expected instants outside the endpoints to be excluded")
	}
}

func TestCustomDefinitionsExtendLabels(t *testing.T) {
	definitions := append(DefaultDefinitions(), Definition{
		Label: "last90",
		Token: "Last 90 Days",
		Bounds: func(now, midnight time.Time) (time.Time, time.Time) {
			return midnight.AddDate(0, 0, -90), now
		},
	})
	resolver := NewResolver(definitions)
	if !resolver.Supports("last90") {
		t.Fatalf("expected custom label to be supported")
	}
	if got := len(resolver.Labels()); got != 7 {
		t.Fatalf("expected 7 labels, got %d", got)
	}
}
