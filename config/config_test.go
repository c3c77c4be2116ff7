package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/calm/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: 5s

app:
  environment: development
  prefix: /api/v2
  modules_dir: ./resources
  default_limit: 25

database:
  driver: "sqlite"
  dsn: ":memory:"

logging:
  level: debug
  format: console

metrics:
  enabled: true
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr() = %s", cfg.Server.Addr())
	}
	if !cfg.App.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}
	if cfg.App.Prefix != "/api/v2" {
		t.Errorf("Prefix = %s, want /api/v2", cfg.App.Prefix)
	}
	if cfg.App.ModulesDir != "./resources" {
		t.Errorf("ModulesDir = %s", cfg.App.ModulesDir)
	}
	if cfg.App.DefaultLimit != 25 {
		t.Errorf("DefaultLimit = %d, want 25", cfg.App.DefaultLimit)
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("DSN = %s", cfg.Database.DSN)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %s", cfg.Logging.Format)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "{}\n")

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("default ShutdownTimeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.App.Environment != "production" || cfg.App.IsDevelopment() {
		t.Errorf("default Environment = %s, want production", cfg.App.Environment)
	}
	if cfg.App.Prefix != "/api/v1" {
		t.Errorf("default Prefix = %s, want /api/v1", cfg.App.Prefix)
	}
	if cfg.App.ModulesDir != "modules" {
		t.Errorf("default ModulesDir = %s, want modules", cfg.App.ModulesDir)
	}
	if cfg.App.DefaultLimit != 10 {
		t.Errorf("default DefaultLimit = %d, want 10", cfg.App.DefaultLimit)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "calm.db" {
		t.Errorf("default Database = %+v", cfg.Database)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default Logging = %+v", cfg.Logging)
	}
}

func TestLoad_Prefix(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"absent", "server:\n  port: 8080\n", "/api/v1"},
		{"explicit empty", "app:\n  prefix: \"\"\n", ""},
		{"root", "app:\n  prefix: /\n", "/"},
		{"custom", "app:\n  prefix: /v2\n", "/v2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := writeAndLoad(t, tt.content)
			if cfg.App.Prefix != tt.want {
				t.Errorf("Prefix = %q, want %q", cfg.App.Prefix, tt.want)
			}
		})
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_CALM_DSN", "/tmp/expanded.db")

	cfg := writeAndLoad(t, "database:\n  dsn: ${TEST_CALM_DSN}\n")

	if cfg.Database.DSN != "/tmp/expanded.db" {
		t.Errorf("DSN = %s, want /tmp/expanded.db", cfg.Database.DSN)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("CALM_SERVER_PORT", "7000")
	t.Setenv("CALM_API_PREFIX", "/v3")
	t.Setenv("CALM_LOG_LEVEL", "warn")
	t.Setenv("CALM_METRICS_ENABLED", "true")
	t.Setenv("CALM_SERVER_WRITE_TIMEOUT", "90s")

	cfg := writeAndLoad(t, `
server:
  port: 9090
app:
  prefix: /api/v1
logging:
  level: debug
`)

	if cfg.Server.Port != 7000 {
		t.Errorf("Port = %d, want 7000 from env", cfg.Server.Port)
	}
	if cfg.App.Prefix != "/v3" {
		t.Errorf("Prefix = %s, want /v3 from env", cfg.App.Prefix)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %s, want warn from env", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true from env")
	}
	if cfg.Server.WriteTimeout != 90*time.Second {
		t.Errorf("WriteTimeout = %v, want 90s", cfg.Server.WriteTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CALM_DATABASE_DRIVER", "memory")
	t.Setenv("CALM_MODULES_DIR", "/srv/modules")
	t.Setenv("CALM_DEFAULT_LIMIT", "50")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Driver = %s, want memory", cfg.Database.Driver)
	}
	if cfg.App.ModulesDir != "/srv/modules" {
		t.Errorf("ModulesDir = %s", cfg.App.ModulesDir)
	}
	if cfg.App.DefaultLimit != 50 {
		t.Errorf("DefaultLimit = %d, want 50", cfg.App.DefaultLimit)
	}
}

func TestEnvOverrides_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port", "CALM_SERVER_PORT", "not-a-number"},
		{"duration", "CALM_SERVER_READ_TIMEOUT", "soon"},
		{"bool", "CALM_METRICS_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := config.LoadFromEnv(); err == nil {
				t.Errorf("%s=%s should fail", tt.key, tt.value)
			}
		})
	}
}

func TestLoadWithFallback(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9191\n")

	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback error: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Port = %d, want 9191 from file", cfg.Server.Port)
	}

	cfg, err = config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFallback without file error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Server.Port)
	}

	if _, err := config.LoadWithFallback(""); err != nil {
		t.Errorf("LoadWithFallback(\"\") error: %v", err)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad environment", "app:\n  environment: staging\n", "app.environment"},
		{"relative prefix", "app:\n  prefix: api\n", "app.prefix"},
		{"negative limit", "app:\n  default_limit: -1\n", "app.default_limit"},
		{"unknown driver", "database:\n  driver: mongo\n", "database.driver"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"bad metrics path", "metrics:\n  path: metrics\n", "metrics.path"},
		{"port out of range", "server:\n  port: 70000\n", "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := writeAndLoadErr(t, "server: [unclosed"); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load("/nonexistent/calm.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

// Helpers

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return config.Load(path)
}
