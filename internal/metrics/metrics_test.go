package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.Inferences.Add(3)
	m.SkippedTicks.Add(5)
	m.ActiveViewers.Store(2)
	m.ObserveInference(20 * time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	text := string(body)

	for _, want := range []string{
		"detector_inferences_total 3",
		"detector_skipped_ticks_total 5",
		"viewer_active_connections 2",
		"detector_inference_duration_seconds_count 1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}
