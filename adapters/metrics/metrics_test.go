package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/artpar/calm/adapters/metrics"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal should not be nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration should not be nil")
	}
	if m.ResourcesRegistered == nil {
		t.Error("ResourcesRegistered should not be nil")
	}
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/api/v1/products", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	})

	for _, path := range []string{"/api/v1/products/a", "/api/v1/products/b", "/api/v1/products"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	family := gather(t, reg, "calm_requests_total")
	if family == nil {
		t.Fatal("calm_requests_total metric not found")
	}

	counts := map[string]float64{}
	for _, metric := range family.GetMetric() {
		counts[label(metric, "route")+" "+label(metric, "status")] = metric.GetCounter().GetValue()
	}

	tests := []struct {
		key  string
		want float64
	}{
		{"/api/v1/products/{id} 4xx", 2},
		{"/api/v1/products 2xx", 1},
	}
	for _, tt := range tests {
		if counts[tt.key] != tt.want {
			t.Errorf("count[%s] = %v, want %v (all: %v)", tt.key, counts[tt.key], tt.want, counts)
		}
	}

	if gather(t, reg, "calm_request_duration_seconds") == nil {
		t.Error("calm_request_duration_seconds metric not found")
	}
}

func TestMiddleware_Unmatched(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/known", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	family := gather(t, reg, "calm_requests_total")
	if family == nil || len(family.GetMetric()) != 1 {
		t.Fatal("expected one series for the unmatched request")
	}
	if got := label(family.GetMetric()[0], "route"); got != "unmatched" {
		t.Errorf("route = %q, want unmatched", got)
	}
}

func TestRecordReload(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.RecordReload(nil)
	m.RecordReload(nil)
	m.RecordReload(errors.New("bad yaml"))

	if got := counterValue(t, reg, "calm_config_reloads_total"); got != 2 {
		t.Errorf("reloads = %v, want 2", got)
	}
	if got := counterValue(t, reg, "calm_config_reload_errors_total"); got != 1 {
		t.Errorf("reload errors = %v, want 1", got)
	}
	if f := gather(t, reg, "calm_config_last_reload_timestamp"); f == nil || f.GetMetric()[0].GetGauge().GetValue() == 0 {
		t.Error("last reload timestamp not set")
	}
}

func TestDiscoveryFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.DiscoveryFailures.WithLabelValues("orders").Inc()
	m.DiscoveryFailures.WithLabelValues("users").Inc()

	family := gather(t, reg, "calm_discovery_failures_total")
	if family == nil {
		t.Fatal("calm_discovery_failures_total metric not found")
	}
	if len(family.GetMetric()) != 2 {
		t.Errorf("expected 2 metric series, got %d", len(family.GetMetric()))
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{0, "unknown"},
		{700, "unknown"},
	}

	for _, tt := range tests {
		if got := metrics.StatusClass(tt.status); got != tt.want {
			t.Errorf("StatusClass(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

// Helpers

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	f := gather(t, reg, name)
	if f == nil {
		t.Fatalf("%s metric not found", name)
	}
	return f.GetMetric()[0].GetCounter().GetValue()
}

func label(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}
