package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
	"github.com/kjstillabower/weather-lookup/internal/storage"
	"github.com/kjstillabower/weather-lookup/internal/validation"
)

const (
	// StorageKey is the well-known key the history record lives under.
	StorageKey = "weather-search-history"

	// DefaultMaxLength is the capacity used when nothing was persisted.
	DefaultMaxLength = 10

	defaultWriteTimeout = 5 * time.Second
)

// Store is the process-wide search history: most recent first, deduplicated
// on case-insensitive (city, country), bounded by MaxLength. Every mutation
// is written through to storage in full. Storage failures are logged and
// counted, never returned; the in-memory state stays authoritative.
type Store struct {
	mu           sync.Mutex
	state        models.HistoryState
	storage      storage.Storage
	clock        clockwork.Clock
	newID        func() string
	logger       *zap.Logger
	defaultMax   int
	writeTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for entry timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithIDGenerator replaces the uuid-based entry id generator.
func WithIDGenerator(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

// WithDefaultMaxLength sets the capacity used when no valid record is persisted.
// Values below 1 are ignored.
func WithDefaultMaxLength(n int) Option {
	return func(s *Store) {
		if n >= 1 {
			s.defaultMax = n
		}
	}
}

// WithWriteTimeout bounds each persistence write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// NewStore builds a Store and seeds it from st. A missing, unreadable or
// corrupt record yields the empty default state.
func NewStore(ctx context.Context, st storage.Storage, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		storage:      st,
		clock:        clockwork.NewRealClock(),
		newID:        func() string { return uuid.NewString() },
		logger:       logger,
		defaultMax:   DefaultMaxLength,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = models.HistoryState{Items: []models.HistoryEntry{}, MaxLength: s.defaultMax}
	s.load(ctx)
	observability.HistoryEntries.Set(float64(len(s.state.Items)))
	return s
}

func (s *Store) load(ctx context.Context) {
	start := time.Now()
	data, ok, err := s.storage.Get(ctx, StorageKey)
	observability.HistoryPersistDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.HistoryPersistErrorsTotal.WithLabelValues("load").Inc()
		s.logger.Warn("history load failed, starting empty", zap.Error(err))
		return
	}
	if !ok {
		s.logger.Debug("no persisted history")
		return
	}
	state, err := decodeState(data, s.defaultMax)
	if err != nil {
		observability.HistoryPersistErrorsTotal.WithLabelValues("load").Inc()
		s.logger.Warn("persisted history is corrupt, starting empty", zap.Error(err))
		return
	}
	s.state = state
	s.logger.Debug("history loaded", zap.Int("entries", len(state.Items)), zap.Int("max_length", state.MaxLength))
}

// Record prepends a (city, country) entry, dropping any prior entry with
// the same case-insensitive pair, then truncates to MaxLength.
func (s *Store) Record(city, country string) (models.HistoryEntry, error) {
	city = strings.TrimSpace(city)
	country = strings.TrimSpace(country)
	if city == "" {
		return models.HistoryEntry{}, models.NewError(models.KindValidation, validation.MessageCityRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := validation.HistoryKey(city, country)
	items := make([]models.HistoryEntry, 0, len(s.state.Items)+1)
	entry := models.HistoryEntry{
		ID:        s.newID(),
		City:      city,
		Country:   country,
		Timestamp: s.clock.Now().UnixMilli(),
	}
	items = append(items, entry)
	for _, it := range s.state.Items {
		if validation.HistoryKey(it.City, it.Country) == key {
			continue
		}
		items = append(items, it)
	}
	s.state.Items = truncate(items, s.state.MaxLength)
	s.persistLocked()
	return entry, nil
}

// Remove drops the entry with the given id. Unknown ids are a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.state.Items[:0:0]
	for _, it := range s.state.Items {
		if it.ID != id {
			items = append(items, it)
		}
	}
	s.state.Items = items
	s.persistLocked()
}

// Clear empties the history. MaxLength is kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Items = []models.HistoryEntry{}
	s.persistLocked()
}

// SetMaxLength changes the capacity, truncating the oldest entries if needed.
// n below 1 is a VALIDATION error and leaves the history unchanged.
func (s *Store) SetMaxLength(n int) error {
	if n < 1 {
		return models.NewError(models.KindValidation, fmt.Sprintf("History length must be at least 1, got %d.", n))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.MaxLength = n
	s.state.Items = truncate(s.state.Items, n)
	s.persistLocked()
	return nil
}

// Entries returns a copy of the entries, most recent first.
func (s *Store) Entries() []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.HistoryEntry{}, s.state.Items...)
}

// MaxLength returns the current capacity.
func (s *Store) MaxLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.MaxLength
}

// State returns a copy of the full history state.
func (s *Store) State() models.HistoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.HistoryState{
		Items:     append([]models.HistoryEntry{}, s.state.Items...),
		MaxLength: s.state.MaxLength,
	}
}

// persistLocked writes the full state. Holding mu keeps writes in mutation order.
func (s *Store) persistLocked() {
	observability.HistoryEntries.Set(float64(len(s.state.Items)))

	data, err := json.Marshal(s.state)
	if err != nil {
		observability.HistoryPersistErrorsTotal.WithLabelValues("save").Inc()
		s.logger.Warn("history encode failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	start := time.Now()
	err = s.storage.Set(ctx, StorageKey, data)
	observability.HistoryPersistDuration.WithLabelValues("save").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.HistoryPersistErrorsTotal.WithLabelValues("save").Inc()
		s.logger.Warn("history save failed", zap.Error(err), zap.Int("entries", len(s.state.Items)))
	}
}

func truncate(items []models.HistoryEntry, n int) []models.HistoryEntry {
	if len(items) > n {
		return items[:n]
	}
	return items
}
