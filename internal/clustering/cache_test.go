package clustering

import (
	"testing"
	"time"

	"github.com/iago/question-insights-back/internal/domain"
)

func TestResponseCacheExpiresEntries(t *testing.T) {
	cache := NewResponseCache(CacheConfig{TTL: time.Minute})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("k", []domain.QuestionFrequency{{Question: "x", Count: 1}})
	if _, ok := cache.Get("k"); !ok {
		t.Fatalf("expected fresh entry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("k"); ok {
		t.Fatalf("expected expired entry to be dropped")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entry removed, len=%d", cache.Len())
	}
}

func TestResponseCacheEvictsOldest(t *testing.T) {
	cache := NewResponseCache(CacheConfig{TTL: time.Hour, MaxEntries: 2})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("first", nil)
	now = now.Add(time.Second)
	cache.Set("second", nil)
	now = now.Add(time.Second)
	cache.Set("third", nil)

	if _, ok := cache.Get("first"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if _, ok := cache.Get("third"); !ok {
		t.Fatalf("expected newest entry to be present")
	}
}

func TestCacheKeyDependsOnModelTopNAndQuestions(t *testing.T) {
	base := cacheKey("m", 5, []string{"a", "b"})
	if base == cacheKey("m", 6, []string{"a", "b"}) {
		t.Fatalf("expected topN to change the key")
	}
	if base == cacheKey("other", 5, []string{"a", "b"}) {
		t.Fatalf("expected model to change the key")
	}
	if base == cacheKey("m", 5, []string{"ab"}) {
		t.Fatalf("expected question boundaries to change the key")
	}
}
