package handlers

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iago/question-insights-back/internal/http/middleware"
	"github.com/iago/question-insights-back/internal/service"
)

var errInvalidPayload = errors.New("invalid payload")

const idempotencyTTL = 24 * time.Hour

type API struct {
	reports     *service.ReportsService
	logger      zerolog.Logger
	validator   *requestValidator
	idempotency *idempotencyStore
}

func NewAPI(reports *service.ReportsService, logger zerolog.Logger) *API {
	return &API{
		reports:     reports,
		logger:      logger,
		validator:   newRequestValidator(),
		idempotency: newIdempotencyStore(idempotencyTTL),
	}
}

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeData(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	middleware.WriteError(w, r, statusCode, code, message)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, value any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

// idempotencyEntry has an empty ReportID while the first request for its
// key is still being served.
type idempotencyEntry struct {
	PayloadHash uint64
	ReportID    string
	CreatedAt   time.Time
}

// idempotencyStore is process-local; keys do not survive a restart.
type idempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	ttl     time.Duration
}

func newIdempotencyStore(ttl time.Duration) *idempotencyStore {
	return &idempotencyStore{
		entries: make(map[string]idempotencyEntry),
		ttl:     ttl,
	}
}

// Reserve claims key for payloadHash. When the key is already held it
// returns the existing entry and false.
func (s *idempotencyStore) Reserve(key string, payloadHash uint64) (idempotencyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for existing, entry := range s.entries {
		if now.Sub(entry.CreatedAt) > s.ttl {
			delete(s.entries, existing)
		}
	}
	if entry, ok := s.entries[key]; ok {
		return entry, false
	}
	s.entries[key] = idempotencyEntry{PayloadHash: payloadHash, CreatedAt: now}
	return idempotencyEntry{}, true
}

func (s *idempotencyStore) Complete(key, reportID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok {
		entry.ReportID = reportID
		s.entries[key] = entry
	}
}

// Release frees a reservation whose request failed so it can be retried.
func (s *idempotencyStore) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok && entry.ReportID == "" {
		delete(s.entries, key)
	}
}

func hashPayload(value any) uint64 {
	payload, _ := json.Marshal(value)
	hasher := fnv.New64a()
	_, _ = hasher.Write(payload)
	return hasher.Sum64()
}
