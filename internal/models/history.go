package models

// HistoryEntry is one successful search. Timestamp is unix milliseconds.
type HistoryEntry struct {
	ID        string `json:"id"`
	City      string `json:"city"`
	Country   string `json:"country,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// HistoryState is the persisted search history, most recent first.
type HistoryState struct {
	Items     []HistoryEntry `json:"items"`
	MaxLength int            `json:"maxLength"`
}
