package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fixed(name string, r Result) Checker {
	return NewCheckerFunc(name, func(context.Context) Result { return r })
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestAggregator_RegisterUnregister(t *testing.T) {
	agg := NewAggregator(time.Second)
	agg.Register("a", fixed("a", Healthy("ok")))
	agg.Register("b", fixed("b", Healthy("ok")))
	agg.Register("a", fixed("a", Degraded("slow")))

	if got := agg.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Names() = %v, want [a b]", got)
	}

	r, err := agg.Check(context.Background(), "a")
	if err != nil {
		t.Fatalf("Check(a) error = %v", err)
	}
	if r.Status != StatusDegraded {
		t.Errorf("Check(a).Status = %v, want degraded", r.Status)
	}

	agg.Unregister("a")
	agg.Unregister("missing")
	if _, err := agg.Check(context.Background(), "a"); !errors.Is(err, ErrCheckerNotFound) {
		t.Errorf("Check(a) after Unregister error = %v, want ErrCheckerNotFound", err)
	}
}

func TestAggregator_CheckAll(t *testing.T) {
	agg := NewAggregator(50 * time.Millisecond)
	agg.Register("up", fixed("up", Healthy("ok")))
	agg.Register("down", fixed("down", Unhealthy("gone", ErrCheckFailed)))
	agg.Register("hung", NewCheckerFunc("hung", func(ctx context.Context) Result {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return Healthy("late")
	}))

	results := agg.CheckAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("CheckAll() returned %d results, want 3", len(results))
	}
	if results["up"].Status != StatusHealthy {
		t.Errorf("up = %v, want healthy", results["up"].Status)
	}
	if !errors.Is(results["hung"].Error, ErrCheckTimeout) {
		t.Errorf("hung error = %v, want ErrCheckTimeout", results["hung"].Error)
	}
	if got := Overall(results); got != StatusUnhealthy {
		t.Errorf("Overall() = %v, want unhealthy", got)
	}
}

func TestOverall_Empty(t *testing.T) {
	if got := Overall(nil); got != StatusHealthy {
		t.Errorf("Overall(nil) = %v, want healthy", got)
	}
}

func TestMemoryChecker(t *testing.T) {
	tests := []struct {
		name   string
		budget uint64
		want   Status
	}{
		{"generous budget", 1 << 50, StatusHealthy},
		{"tiny budget", 1, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewMemoryChecker(tt.budget, 0, 0)
			r := c.Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Check().Status = %v, want %v (%s)", r.Status, tt.want, r.Message)
			}
			if r.Details["budget"] != tt.budget {
				t.Errorf("Details[budget] = %v, want %d", r.Details["budget"], tt.budget)
			}
		})
	}
}

func TestMemoryChecker_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r := NewMemoryChecker(0, 0, 0).Check(ctx); r.Status != StatusUnhealthy {
		t.Errorf("Check(cancelled).Status = %v, want unhealthy", r.Status)
	}
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name       string
		result     Result
		path       string
		wantStatus int
		wantBody   string
	}{
		{"liveness", Unhealthy("x", nil), "/healthz", http.StatusOK, "OK"},
		{"ready healthy", Healthy("ok"), "/readyz", http.StatusOK, "OK"},
		{"ready degraded", Degraded("slow"), "/readyz", http.StatusOK, "DEGRADED"},
		{"ready unhealthy", Unhealthy("down", ErrCheckFailed), "/readyz", http.StatusServiceUnavailable, "UNHEALTHY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(time.Second)
			agg.Register("c", fixed("c", tt.result))
			mux := http.NewServeMux()
			RegisterHandlers(mux, agg)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestDetailedHandler(t *testing.T) {
	agg := NewAggregator(time.Second)
	agg.Register("agent", fixed("agent", Unhealthy("refused", ErrCheckFailed)))

	rec := httptest.NewRecorder()
	DetailedHandler(agg)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", resp.Status)
	}
	c := resp.Checks["agent"]
	if c.Message != "refused" || c.Error != ErrCheckFailed.Error() {
		t.Errorf("Checks[agent] = %+v", c)
	}
}
