package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestRunAggregation verifies the overall status is the worst component
// status.
func TestRunAggregation(t *testing.T) {
	up := func(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} }
	degraded := func(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded} }
	down := func(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusDown} }

	c := NewChecker()
	c.Register("a", up)
	if got := c.Run(context.Background()); got.Status != StatusUp {
		t.Errorf("all up: status = %s", got.Status)
	}

	c.Register("b", degraded)
	if got := c.Run(context.Background()); got.Status != StatusDegraded {
		t.Errorf("with degraded: status = %s", got.Status)
	}

	c.Register("c", down)
	if got := c.Run(context.Background()); got.Status != StatusDown {
		t.Errorf("with down: status = %s", got.Status)
	}
}

// TestReadyHandlerStatusCodes verifies the probe returns 503 when a
// component is degraded.
func TestReadyHandlerStatusCodes(t *testing.T) {
	c := NewChecker()
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("no checks: code = %d", rec.Code)
	}

	c.Register("redis", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded, Message: "connection refused"}
	})
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded: code = %d", rec.Code)
	}

	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Components["redis"].Message != "connection refused" {
		t.Errorf("component message = %q", report.Components["redis"].Message)
	}
}
