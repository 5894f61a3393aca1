package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/validation"
)

var errCorrupt = errors.New("corrupt history record")

// persistedState mirrors models.HistoryState but keeps MaxLength optional
// so records written without it can be told apart from invalid ones.
type persistedState struct {
	Items     []models.HistoryEntry `json:"items"`
	MaxLength *int                  `json:"maxLength"`
}

// decodeState parses a persisted record. Two layouts are accepted: the
// current {"items":[...],"maxLength":n} object and the legacy bare array of
// items. A missing maxLength falls back to defaultMax. Entries repeating an
// earlier id or case-insensitive (city, country) pair are dropped, keeping
// the most recent. Lists longer than maxLength are then truncated.
func decodeState(data []byte, defaultMax int) (models.HistoryState, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return models.HistoryState{}, fmt.Errorf("%w: empty", errCorrupt)
	}

	var ps persistedState
	if data[0] == '[' {
		if err := json.Unmarshal(data, &ps.Items); err != nil {
			return models.HistoryState{}, fmt.Errorf("%w: %v", errCorrupt, err)
		}
	} else if err := json.Unmarshal(data, &ps); err != nil {
		return models.HistoryState{}, fmt.Errorf("%w: %v", errCorrupt, err)
	}

	maxLength := defaultMax
	if ps.MaxLength != nil {
		if *ps.MaxLength < 1 {
			return models.HistoryState{}, fmt.Errorf("%w: maxLength %d", errCorrupt, *ps.MaxLength)
		}
		maxLength = *ps.MaxLength
	}

	items := make([]models.HistoryEntry, 0, len(ps.Items))
	seenIDs := make(map[string]bool, len(ps.Items))
	seenKeys := make(map[string]bool, len(ps.Items))
	for i, it := range ps.Items {
		if it.ID == "" || it.City == "" {
			return models.HistoryState{}, fmt.Errorf("%w: entry %d missing id or city", errCorrupt, i)
		}
		key := validation.HistoryKey(it.City, it.Country)
		if seenIDs[it.ID] || seenKeys[key] {
			continue
		}
		seenIDs[it.ID] = true
		seenKeys[key] = true
		items = append(items, it)
	}
	return models.HistoryState{Items: truncate(items, maxLength), MaxLength: maxLength}, nil
}
