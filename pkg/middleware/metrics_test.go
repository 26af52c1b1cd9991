package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aaqwq/groupscope/pkg/metrics"
)

// TestMetricsUsesRoutePattern verifies the request counter is labelled with
// the registered route pattern, not the raw URL path, through the full
// middleware chain as assembled at startup.
func TestMetricsUsesRoutePattern(t *testing.T) {
	m := metrics.New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/datasets/{owner}/pairs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var chain http.Handler = mux
	chain = Metrics(m)(chain)
	chain = Timeout(time.Second)(chain)
	chain = RequestID(chain)

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/12345/pairs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}

	pattern := "GET /api/v1/datasets/{owner}/pairs"
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", pattern, "200")); got != 1 {
		t.Errorf("pattern-labelled count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/datasets/12345/pairs", "200")); got != 0 {
		t.Errorf("raw-path-labelled count = %v, want 0", got)
	}
}
