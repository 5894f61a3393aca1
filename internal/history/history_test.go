package history

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/storage"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// failingStorage fails every Get and/or Set.
type failingStorage struct {
	getErr error
	setErr error
	sets   int
}

func (f *failingStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, f.getErr
}

func (f *failingStorage) Set(ctx context.Context, key string, value []byte) error {
	f.sets++
	return f.setErr
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestStore(t *testing.T, st storage.Storage, opts ...Option) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	opts = append([]Option{WithClock(clock), WithIDGenerator(sequentialIDs())}, opts...)
	return NewStore(context.Background(), st, zap.NewNop(), opts...), clock
}

func cities(entries []models.HistoryEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, Label(e.City, e.Country))
	}
	return out
}

func TestNewStore_EmptyDefault(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryStorage())
	if got := s.Entries(); len(got) != 0 {
		t.Errorf("Entries() = %v, want empty", got)
	}
	if got := s.MaxLength(); got != DefaultMaxLength {
		t.Errorf("MaxLength() = %d, want %d", got, DefaultMaxLength)
	}
}

func TestRecord_PrependsMostRecentFirst(t *testing.T) {
	s, clock := newTestStore(t, storage.NewMemoryStorage())

	if _, err := s.Record("London", "GB"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	clock.Advance(time.Second)
	e, err := s.Record("Paris", "FR")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if e.ID != "id-2" || e.Timestamp != epoch.Add(time.Second).UnixMilli() {
		t.Errorf("entry = %+v, want id-2 at epoch+1s", e)
	}
	want := []string{"Paris, FR", "London, GB"}
	if got := cities(s.Entries()); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %v, want %v", got, want)
	}
}

func TestRecord_DeduplicatesCaseAndWhitespace(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryStorage())

	_, _ = s.Record("london", "gb")
	_, _ = s.Record("Paris", "FR")
	_, _ = s.Record("London", " GB ")

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2: %v", len(entries), cities(entries))
	}
	if entries[0].City != "London" || entries[0].Country != "GB" || entries[0].ID != "id-3" {
		t.Errorf("head = %+v, want refreshed London, GB", entries[0])
	}
	if entries[1].City != "Paris" {
		t.Errorf("tail = %+v, want Paris", entries[1])
	}
}

func TestRecord_CountryDistinguishesEntries(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryStorage())
	_, _ = s.Record("London", "GB")
	_, _ = s.Record("London", "CA")
	_, _ = s.Record("London", "")
	if got := len(s.Entries()); got != 3 {
		t.Errorf("len(Entries()) = %d, want 3", got)
	}
}

func TestRecord_EmptyCity(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryStorage())
	_, err := s.Record("  ", "GB")
	if models.KindOf(err) != models.KindValidation {
		t.Errorf("Record(empty) kind = %q, want VALIDATION", models.KindOf(err))
	}
	if len(s.Entries()) != 0 {
		t.Error("history changed after rejected Record")
	}
}

func TestRecord_EvictsOldestAtCapacity(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryStorage(), WithDefaultMaxLength(3))
	for _, c := range []string{"A", "B", "C"} {
		_, _ = s.Record(c, "")
	}
	_, _ = s.Record("D", "")

	want := []string{"D", "C", "B"}
	if got := cities(s.Entries()); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %v, want %v", got, want)
	}
}

func TestRecord_NeverExceedsMaxLength(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryStorage(), WithDefaultMaxLength(4))
	for i := 0; i < 25; i++ {
		_, _ = s.Record(fmt.Sprintf("City%d", i%7), "")
		if n := len(s.Entries()); n > s.MaxLength() {
			t.Fatalf("after insert %d: len = %d > maxLength %d", i, n, s.MaxLength())
		}
	}
}

func TestRemove(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryStorage())
	a, _ := s.Record("A", "")
	_, _ = s.Record("B", "")

	s.Remove(a.ID)
	if got := cities(s.Entries()); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("Entries() = %v, want [B]", got)
	}

	s.Remove("does-not-exist")
	if got := len(s.Entries()); got != 1 {
		t.Errorf("Remove(unknown) changed history: len = %d", got)
	}
}

func TestClear_KeepsMaxLength(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryStorage())
	_ = s.SetMaxLength(5)
	_, _ = s.Record("A", "")
	s.Clear()

	if got := len(s.Entries()); got != 0 {
		t.Errorf("len(Entries()) = %d after Clear, want 0", got)
	}
	if got := s.MaxLength(); got != 5 {
		t.Errorf("MaxLength() = %d after Clear, want 5", got)
	}
}

func TestSetMaxLength_Invalid(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryStorage())
	_, _ = s.Record("A", "")
	before := s.State()

	for _, n := range []int{0, -1, -100} {
		err := s.SetMaxLength(n)
		if models.KindOf(err) != models.KindValidation {
			t.Errorf("SetMaxLength(%d) kind = %q, want VALIDATION", n, models.KindOf(err))
		}
	}
	if after := s.State(); !reflect.DeepEqual(before, after) {
		t.Errorf("state changed: before %+v, after %+v", before, after)
	}
}

func TestSetMaxLength_TruncatesTail(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryStorage())
	for _, c := range []string{"A", "B", "C", "D"} {
		_, _ = s.Record(c, "")
	}
	if err := s.SetMaxLength(2); err != nil {
		t.Fatalf("SetMaxLength(2) error = %v", err)
	}
	if got := cities(s.Entries()); !reflect.DeepEqual(got, []string{"D", "C"}) {
		t.Errorf("Entries() = %v, want [D C]", got)
	}

	if err := s.SetMaxLength(10); err != nil {
		t.Fatalf("SetMaxLength(10) error = %v", err)
	}
	if got := cities(s.Entries()); !reflect.DeepEqual(got, []string{"D", "C"}) {
		t.Errorf("growing capacity reordered or restored entries: %v", got)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	st := storage.NewMemoryStorage()
	s, clock := newTestStore(t, st)
	_ = s.SetMaxLength(4)
	_, _ = s.Record("London", "GB")
	clock.Advance(time.Minute)
	_, _ = s.Record("Tokyo", "")
	clock.Advance(time.Minute)
	_, _ = s.Record("Paris", "FR")

	reloaded := NewStore(context.Background(), st, zap.NewNop())
	if !reflect.DeepEqual(s.State(), reloaded.State()) {
		t.Errorf("reloaded state = %+v, want %+v", reloaded.State(), s.State())
	}
}

func TestPersistence_EveryMutationWrites(t *testing.T) {
	st := &failingStorage{}
	s, _ := newTestStore(t, st)

	a, _ := s.Record("A", "")
	s.Remove(a.ID)
	s.Remove("missing")
	s.Clear()
	_ = s.SetMaxLength(3)
	_ = s.SetMaxLength(0)

	if st.sets != 5 {
		t.Errorf("storage writes = %d, want 5 (rejected SetMaxLength must not write)", st.sets)
	}
}

func TestPersistence_WriteFailureIsLoggedNotRaised(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	st := &failingStorage{setErr: errors.New("disk full")}
	s := NewStore(context.Background(), st, zap.New(core), WithIDGenerator(sequentialIDs()))

	if _, err := s.Record("London", "GB"); err != nil {
		t.Fatalf("Record() error = %v, want nil despite storage failure", err)
	}
	if got := len(s.Entries()); got != 1 {
		t.Errorf("in-memory history len = %d, want 1", got)
	}
	if logs.FilterMessage("history save failed").Len() != 1 {
		t.Errorf("expected one save failure log, got %v", logs.All())
	}
}

func TestLoad_ReadFailureFallsBackToDefault(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	st := &failingStorage{getErr: errors.New("connection refused")}
	s := NewStore(context.Background(), st, zap.New(core))

	if len(s.Entries()) != 0 || s.MaxLength() != DefaultMaxLength {
		t.Errorf("state = %+v, want empty default", s.State())
	}
	if logs.FilterMessage("history load failed, starting empty").Len() != 1 {
		t.Errorf("expected load failure log, got %v", logs.All())
	}
}

func TestLoad_PersistedRecords(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantCities []string
		wantMax    int
	}{
		{
			name:       "current layout",
			data:       `{"items":[{"id":"1","city":"London","country":"GB","timestamp":5}],"maxLength":3}`,
			wantCities: []string{"London, GB"},
			wantMax:    3,
		},
		{
			name:       "legacy bare array",
			data:       `[{"id":"1","city":"Oslo","timestamp":1},{"id":"2","city":"Rome","country":"IT","timestamp":0}]`,
			wantCities: []string{"Oslo", "Rome, IT"},
			wantMax:    10,
		},
		{
			name:       "object without maxLength",
			data:       `{"items":[{"id":"1","city":"Lima","timestamp":1}]}`,
			wantCities: []string{"Lima"},
			wantMax:    10,
		},
		{
			name:       "truncated to maxLength",
			data:       `{"items":[{"id":"1","city":"A","timestamp":3},{"id":"2","city":"B","timestamp":2},{"id":"3","city":"C","timestamp":1}],"maxLength":2}`,
			wantCities: []string{"A", "B"},
			wantMax:    2,
		},
		{
			name:       "case-insensitive duplicates keep most recent",
			data:       `{"items":[{"id":"a","city":"London","country":"GB","timestamp":2},{"id":"b","city":"london","country":"gb","timestamp":1},{"id":"c","city":"Oslo","timestamp":0}],"maxLength":10}`,
			wantCities: []string{"London, GB", "Oslo"},
			wantMax:    10,
		},
		{
			name:       "legacy duplicates before truncation",
			data:       `[{"id":"1","city":"Rome","timestamp":3},{"id":"2","city":" ROME ","timestamp":2},{"id":"3","city":"Lima","timestamp":1}]`,
			wantCities: []string{"Rome", "Lima"},
			wantMax:    10,
		},
		{
			name:       "repeated id",
			data:       `{"items":[{"id":"x","city":"Paris","timestamp":2},{"id":"x","city":"Berlin","timestamp":1}],"maxLength":5}`,
			wantCities: []string{"Paris"},
			wantMax:    5,
		},
		{
			name:       "null items",
			data:       `{"items":null,"maxLength":4}`,
			wantCities: []string{},
			wantMax:    4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := storage.NewMemoryStorage()
			_ = st.Set(context.Background(), StorageKey, []byte(tt.data))
			s := NewStore(context.Background(), st, zap.NewNop())

			if got := cities(s.Entries()); !reflect.DeepEqual(got, tt.wantCities) {
				t.Errorf("Entries() = %v, want %v", got, tt.wantCities)
			}
			if got := s.MaxLength(); got != tt.wantMax {
				t.Errorf("MaxLength() = %d, want %d", got, tt.wantMax)
			}
		})
	}
}

func TestLoad_CorruptRecordsFallBackToDefault(t *testing.T) {
	corrupt := map[string]string{
		"not json":         `{{{`,
		"empty":            ``,
		"wrong type":       `"hello"`,
		"zero maxLength":   `{"items":[],"maxLength":0}`,
		"missing id":       `{"items":[{"city":"A","timestamp":1}],"maxLength":3}`,
		"missing city":     `[{"id":"1","timestamp":1}]`,
		"items not array":  `{"items":{"id":"1"},"maxLength":3}`,
		"string maxLength": `{"items":[],"maxLength":"ten"}`,
	}
	for name, data := range corrupt {
		t.Run(name, func(t *testing.T) {
			st := storage.NewMemoryStorage()
			_ = st.Set(context.Background(), StorageKey, []byte(data))
			s := NewStore(context.Background(), st, zap.NewNop())

			if len(s.Entries()) != 0 || s.MaxLength() != DefaultMaxLength {
				t.Errorf("state = %+v, want empty default", s.State())
			}
		})
	}
}

func TestStateIsACopy(t *testing.T) {
	s, _ := newTestStore(t, storage.NewMemoryStorage())
	_, _ = s.Record("A", "")
	got := s.Entries()
	got[0].City = "mutated"
	if s.Entries()[0].City != "A" {
		t.Error("mutating Entries() result changed store state")
	}
}
