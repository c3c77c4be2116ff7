package bootstrap_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"

	"github.com/artpar/calm/bootstrap"
	"github.com/artpar/calm/config"
	"github.com/artpar/calm/core/schema"
)

const productUnit = `
module: product
schema:
  name:  { type: string, required: true }
  price: { type: number, required: true }
`

func testConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	t.Setenv("CALM_DATABASE_DRIVER", "memory")
	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if mutate != nil {
		mutate(cfg)
	}
	return cfg
}

func newApp(t *testing.T, opts bootstrap.Options) *bootstrap.App {
	t.Helper()
	if opts.LogOutput == nil {
		opts.LogOutput = io.Discard
	}
	a, err := bootstrap.New(opts)
	if err != nil {
		t.Fatalf("bootstrap.New: %v", err)
	}
	t.Cleanup(func() { a.Shutdown() })
	return a
}

func TestBootstrap_Integration(t *testing.T) {
	fsys := fstest.MapFS{
		"product/product.route.yaml": {Data: []byte(productUnit)},
	}

	a := newApp(t, bootstrap.Options{Config: testConfig(t, nil), ModulesFS: fsys})

	if a.DB == nil {
		t.Error("DB should not be nil")
	}
	if a.HTTPServer == nil || a.HTTPServer.Addr != "0.0.0.0:8080" {
		t.Errorf("HTTPServer not configured: %+v", a.HTTPServer)
	}
	if got := a.Registry.Names(); len(got) != 1 || got[0] != "product" {
		t.Fatalf("registered = %v, want [product]", got)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(`{"name":"Widget","price":9.99,"extra":"x"}`))
	a.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body.Data["extra"]; ok {
		t.Error("unlisted field leaked into the response")
	}
}

func TestBootstrap_BrokenModuleIsolated(t *testing.T) {
	fsys := fstest.MapFS{
		"product/product.route.yaml": {Data: []byte(productUnit)},
		"order/order.route.yaml":     {Data: []byte("module: order\nschema:\n  total: { type: money }\n")},
		"notes/README.md":            {Data: []byte("no unit here")},
	}

	var logs bytes.Buffer
	cfg := testConfig(t, func(c *config.Config) { c.Metrics.Enabled = true })
	a := newApp(t, bootstrap.Options{
		Config:    cfg,
		ModulesFS: fsys,
		Modules:   []schema.Module{{Name: "empty"}},
		LogOutput: &logs,
	})

	if got := a.Registry.Names(); len(got) != 1 || got[0] != "product" {
		t.Errorf("registered = %v, want [product]", got)
	}
	if !strings.Contains(logs.String(), "failed to load route unit") {
		t.Error("broken unit was not logged")
	}
	if !strings.Contains(logs.String(), "failed to register module") {
		t.Error("invalid compiled-in module was not logged")
	}

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rec.Body.String()
	for _, want := range []string{
		"calm_resources_registered 1",
		`calm_discovery_failures_total{module="empty"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestBootstrap_StaticModules(t *testing.T) {
	pluralize := false
	cfg := testConfig(t, func(c *config.Config) {
		c.App.Prefix = "/v2"
		c.App.ModulesDir = filepath.Join(t.TempDir(), "missing")
	})

	a := newApp(t, bootstrap.Options{
		Config: cfg,
		Modules: []schema.Module{{
			Name:   "inventory",
			Schema: map[string]schema.Field{"sku": {Type: schema.FieldTypeString}},
			Routes: schema.Routes{Pluralize: &pluralize},
		}},
	})

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2/inventory", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("list status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestBootstrap_Health(t *testing.T) {
	a := newApp(t, bootstrap.Options{Config: testConfig(t, nil), ModulesFS: fstest.MapFS{}})

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readiness = %d, want 200", rec.Code)
	}
}

func TestBootstrap_GracefulShutdown(t *testing.T) {
	a, err := bootstrap.New(bootstrap.Options{
		Config:    testConfig(t, nil),
		ModulesFS: fstest.MapFS{},
		LogOutput: io.Discard,
	})
	if err != nil {
		t.Fatalf("bootstrap.New: %v", err)
	}

	if err := a.Shutdown(); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}
}

func TestBootstrap_NoConfig(t *testing.T) {
	if _, err := bootstrap.New(bootstrap.Options{LogOutput: io.Discard}); err == nil {
		t.Error("New without config should fail")
	}
}

func TestBootstrap_HolderReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calm.yaml")
	write := func(level string) {
		content := "database:\n  driver: memory\nlogging:\n  level: " + level + "\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write("info")

	holder, err := config.NewHolder(path, bootstrap.NewLogger(config.LoggingConfig{}, io.Discard))
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	newApp(t, bootstrap.Options{Holder: holder, ModulesFS: fstest.MapFS{}})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	write("error")
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := zerolog.GlobalLevel(); got != zerolog.ErrorLevel {
		t.Errorf("global level = %s, want error", got)
	}
}

func TestOpenDatabase(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		wantErr bool
	}{
		{"memory", config.DatabaseConfig{Driver: "memory"}, false},
		{"sqlite memory", config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, false},
		{"sqlite file", config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "calm.db")}, false},
		{"unreachable", config.DatabaseConfig{Driver: "sqlite", DSN: "/nonexistent/dir/calm.db"}, true},
		{"unknown driver", config.DatabaseConfig{Driver: "mongo"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := bootstrap.OpenDatabase(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if db != nil {
				db.Close()
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.LoggingConfig
		wantIn string
	}{
		{"json", config.LoggingConfig{Level: "info", Format: "json"}, `"message":"hello"`},
		{"console", config.LoggingConfig{Level: "info", Format: "console"}, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := bootstrap.NewLogger(tt.cfg, &buf)
			logger.Info().Msg("hello")
			if !strings.Contains(buf.String(), tt.wantIn) {
				t.Errorf("output %q missing %q", buf.String(), tt.wantIn)
			}
		})
	}
}

func TestBootstrap_HolderReloadFailureCounted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calm.yaml")
	good := "database:\n  driver: memory\nmetrics:\n  enabled: true\n"
	if err := os.WriteFile(path, []byte(good), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	holder, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	a := newApp(t, bootstrap.Options{Holder: holder, ModulesFS: fstest.MapFS{}})

	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := holder.Reload(); err == nil {
		t.Fatal("Reload should reject an invalid level")
	}

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "calm_config_reload_errors_total 1") {
		t.Error("failed reload was not counted")
	}
}

func TestBootstrap_EmptyPrefixMountsAtRoot(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) { c.App.Prefix = "" })
	fsys := fstest.MapFS{"product/product.route.yaml": {Data: []byte(productUnit)}}
	a := newApp(t, bootstrap.Options{Config: cfg, ModulesFS: fsys})

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /products = %d, want 200", rec.Code)
	}
}
