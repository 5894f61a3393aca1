//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-lookup/internal/history"
	"github.com/kjstillabower/weather-lookup/internal/models"
	testhelpers "github.com/kjstillabower/weather-lookup/internal/testhelpers"
)

// setupIntegrationRouter wires the full stack against the live provider.
func setupIntegrationRouter(t *testing.T, limiter *rate.Limiter) (http.Handler, *history.Store, func()) {
	cfg := testhelpers.GetIntegrationConfig(t)
	orch, store, cleanup := testhelpers.SetupIntegrationOrchestrator(t, cfg)
	h := NewHandler(orch, &HealthConfig{APIKeyConfigured: true}, zap.NewNop())
	router := NewRouter(h, RouterConfig{Limiter: limiter, RequestTimeout: 15 * time.Second}, zap.NewNop())
	return router, store, cleanup
}

func postSearch(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/search", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIntegration_Search_KnownCity(t *testing.T) {
	router, store, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	w := postSearch(t, router, `{"city":"London","country":"GB"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.NormalizedWeather
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.City == "" || got.Country != "GB" || got.ObservedAt == 0 {
		t.Errorf("response = %+v", got)
	}
	if entries := store.Entries(); len(entries) != 1 || entries[0].City != got.City {
		t.Errorf("history = %+v, want provider-confirmed %q", entries, got.City)
	}
}

func TestIntegration_Search_UnknownCity(t *testing.T) {
	router, store, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	w := postSearch(t, router, `{"city":"Qwzxyplonkville"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if len(store.Entries()) != 0 {
		t.Error("failed search must not touch history")
	}
}

func TestIntegration_GetMetrics_Format(t *testing.T) {
	router, _, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	postSearch(t, router, `{"city":"Paris"}`)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "weatherApiCallsTotal", "searchesTotal", "historyEntries"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestIntegration_RateLimiting_Concurrent(t *testing.T) {
	router, _, cleanup := setupIntegrationRouter(t, rate.NewLimiter(1, 3))
	defer cleanup()

	var mu sync.Mutex
	codes := map[int]int{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := postSearch(t, router, `{"city":"Berlin"}`)
			mu.Lock()
			codes[w.Code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if codes[http.StatusTooManyRequests] == 0 {
		t.Errorf("expected some 429s, got %v", codes)
	}
	if codes[http.StatusOK] > 4 {
		t.Errorf("too many requests admitted: %v", codes)
	}
}
