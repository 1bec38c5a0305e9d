package clustering

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iago/question-insights-back/internal/domain"
)

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

type cacheEntry struct {
	questions []domain.QuestionFrequency
	createdAt time.Time
	expiresAt time.Time
}

// ResponseCache remembers parsed cluster responses for identical batches.
type ResponseCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewResponseCache(config CacheConfig) *ResponseCache {
	if config.TTL <= 0 {
		config.TTL = 15 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 2000
	}
	return &ResponseCache{
		entries:    make(map[string]cacheEntry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *ResponseCache) Get(key string) ([]domain.QuestionFrequency, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return append([]domain.QuestionFrequency(nil), entry.questions...), true
}

func (c *ResponseCache) Set(key string, questions []domain.QuestionFrequency) {
	if c == nil {
		return
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = cacheEntry{
		questions: append([]domain.QuestionFrequency(nil), questions...),
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
}

func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cacheKey depends on question order: the model sees the batch as a list.
func cacheKey(model string, topN int, questions []string) string {
	hash := sha256.New()
	hash.Write([]byte(strings.TrimSpace(model)))
	hash.Write([]byte{0})
	hash.Write([]byte(strconv.Itoa(topN)))
	for _, question := range questions {
		hash.Write([]byte{0})
		hash.Write([]byte(question))
	}
	return hex.EncodeToString(hash.Sum(nil))
}

func (c *ResponseCache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}

	type pair struct {
		key   string
		entry cacheEntry
	}
	pairs := make([]pair, 0, len(c.entries))
	for key, entry := range c.entries {
		pairs = append(pairs, pair{key: key, entry: entry})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].entry.createdAt.Before(pairs[j].entry.createdAt)
	})
	delete(c.entries, pairs[0].key)
}
