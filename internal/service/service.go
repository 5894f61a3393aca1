package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/client"
	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
	"github.com/kjstillabower/weather-lookup/internal/validation"
)

// State is the orchestrator's search lifecycle.
type State int

const (
	StateIdle State = iota
	StatePending
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HistoryStore is the subset of history.Store the orchestrator drives.
type HistoryStore interface {
	Record(city, country string) (models.HistoryEntry, error)
	Remove(id string)
	Clear()
	SetMaxLength(n int) error
	State() models.HistoryState
}

// Snapshot is what the presentation layer renders.
type Snapshot struct {
	State   State                       `json:"state"`
	Loading bool                        `json:"loading"`
	Weather *models.NormalizedWeather   `json:"weather,omitempty"`
	Error   *models.WeatherServiceError `json:"error,omitempty"`
}

// Orchestrator runs normalize -> fetch -> record behind one Search call and
// holds the result the presentation layer shows.
//
// Each search takes a sequence number when it starts. Only the latest
// search may change the visible state or history; a superseded search
// still returns its own outcome to its caller.
type Orchestrator struct {
	client  client.WeatherClient
	history HistoryStore
	logger  *zap.Logger

	mu      sync.Mutex
	seq     uint64
	state   State
	weather *models.NormalizedWeather
	err     *models.WeatherServiceError

	recordMu     sync.Mutex
	lastRecorded uint64
}

// NewOrchestrator creates an idle Orchestrator.
func NewOrchestrator(c client.WeatherClient, h HistoryStore, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		client:  c,
		history: h,
		logger:  logger,
	}
}

// Search looks up current weather for raw user input. Input that fails
// validation never reaches the network. On success the provider-confirmed
// city and country are recorded in history; failures leave history untouched.
// The returned error is always a *models.WeatherServiceError.
func (o *Orchestrator) Search(ctx context.Context, rawCity, rawCountry string) (models.NormalizedWeather, error) {
	logger := observability.LoggerFromContext(ctx, o.logger)

	query, err := validation.NormalizeQuery(rawCity, rawCountry)
	if err != nil {
		wse := models.AsWeatherError(err)
		o.mu.Lock()
		o.seq++
		o.failLocked(wse)
		o.mu.Unlock()
		observability.RecordSearch("failed")
		logger.Debug("search rejected", zap.String("kind", string(wse.Kind)))
		return models.NormalizedWeather{}, wse
	}

	o.mu.Lock()
	o.seq++
	id := o.seq
	o.state = StatePending
	o.mu.Unlock()

	start := time.Now()
	data, fetchErr := o.client.FetchWeather(ctx, query)

	o.mu.Lock()
	if id != o.seq {
		latest := o.seq
		o.mu.Unlock()
		observability.RecordSearch("superseded")
		logger.Debug("discarding superseded search result",
			zap.String("query", query.Target()),
			zap.Uint64("seq", id),
			zap.Uint64("latest", latest))
		if fetchErr != nil {
			return models.NormalizedWeather{}, models.AsWeatherError(fetchErr)
		}
		return data, nil
	}

	if fetchErr != nil {
		wse := models.AsWeatherError(fetchErr)
		o.failLocked(wse)
		o.mu.Unlock()
		observability.RecordSearch("failed")
		logger.Info("search failed",
			zap.String("query", query.Target()),
			zap.String("kind", string(wse.Kind)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(wse.Unwrap()))
		return models.NormalizedWeather{}, wse
	}

	o.state = StateSuccess
	o.weather = &data
	o.err = nil
	o.mu.Unlock()

	o.record(logger, id, data)
	observability.RecordSearch("success")
	logger.Debug("search succeeded",
		zap.String("query", query.Target()),
		zap.String("city", data.City),
		zap.String("country", data.Country),
		zap.Duration("duration", time.Since(start)))
	return data, nil
}

// record writes a successful result to history without holding o.mu.
// Results older than one already recorded are skipped.
func (o *Orchestrator) record(logger *zap.Logger, id uint64, data models.NormalizedWeather) {
	o.recordMu.Lock()
	defer o.recordMu.Unlock()
	if id <= o.lastRecorded {
		logger.Debug("skipping history record for older search", zap.Uint64("seq", id), zap.Uint64("recorded", o.lastRecorded))
		return
	}
	o.lastRecorded = id
	if _, err := o.history.Record(data.City, data.Country); err != nil {
		logger.Warn("history record rejected", zap.String("city", data.City), zap.Error(err))
	}
}

// failLocked replaces any shown result with err.
func (o *Orchestrator) failLocked(err *models.WeatherServiceError) {
	o.state = StateFailed
	o.weather = nil
	o.err = err
}

// Snapshot returns the current state, result and error.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := Snapshot{
		State:   o.state,
		Loading: o.state == StatePending,
		Error:   o.err,
	}
	if o.weather != nil {
		w := *o.weather
		snap.Weather = &w
	}
	return snap
}

// History returns the current search history.
func (o *Orchestrator) History() models.HistoryState {
	return o.history.State()
}

// DeleteHistoryEntry removes one entry. Unknown ids are ignored.
func (o *Orchestrator) DeleteHistoryEntry(id string) {
	o.history.Remove(id)
}

// ClearHistory removes every entry.
func (o *Orchestrator) ClearHistory() {
	o.history.Clear()
}

// SetHistoryMaxLength changes history capacity. n below 1 is a VALIDATION error.
func (o *Orchestrator) SetHistoryMaxLength(n int) error {
	if err := o.history.SetMaxLength(n); err != nil {
		return fmt.Errorf("set history max length: %w", err)
	}
	return nil
}
