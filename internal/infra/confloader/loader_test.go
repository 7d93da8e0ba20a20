package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Scan struct {
		Concurrency int `koanf:"concurrency"`
	} `koanf:"scan"`
	Runtime struct {
		MaxAttempts int           `koanf:"max_attempts"`
		RetryDelay  time.Duration `koanf:"retry_delay"`
	} `koanf:"runtime"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func defaults() testConfig {
	var c testConfig
	c.Scan.Concurrency = 4
	c.Runtime.MaxAttempts = 3
	c.Log.Level = "info"
	return c
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}
}

func TestNewLoader_WithOptions(t *testing.T) {
	l := NewLoader(
		WithEnvPrefix("TEST_"),
		WithConfigFile("/path/to/heapsight.yaml"),
	)

	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, "TEST_")
	}
	if l.filePath != "/path/to/heapsight.yaml" {
		t.Errorf("filePath = %q, want %q", l.filePath, "/path/to/heapsight.yaml")
	}
}

func TestLoader_LoadFile_YAML(t *testing.T) {
	path := writeFile(t, "heapsight.yaml", `
scan:
  concurrency: 8
runtime:
  retry_delay: 250ms
`)

	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if got := l.GetInt("scan.concurrency"); got != 8 {
		t.Errorf("scan.concurrency = %d, want 8", got)
	}
	if got := l.GetString("runtime.retry_delay"); got != "250ms" {
		t.Errorf("runtime.retry_delay = %q, want 250ms", got)
	}
}

func TestLoader_LoadFile_TOML(t *testing.T) {
	path := writeFile(t, "heapsight.toml", `
[scan]
concurrency = 2

[log]
level = "debug"
`)

	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if got := l.GetInt("scan.concurrency"); got != 2 {
		t.Errorf("scan.concurrency = %d, want 2", got)
	}
	if got := l.GetString("log.level"); got != "debug" {
		t.Errorf("log.level = %q, want debug", got)
	}
}

func TestLoader_LoadFile_NotFound(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile("/nonexistent/heapsight.yaml"); err == nil {
		t.Error("LoadFile() should return error for nonexistent file")
	}
}

func TestLoader_LoadFile_Empty(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") should not error, got: %v", err)
	}
}

func TestLoader_LoadEnv(t *testing.T) {
	t.Setenv("HEAPSIGHT_RUNTIME_MAX_ATTEMPTS", "5")
	t.Setenv("HEAPSIGHT_LOG_LEVEL", "warn")

	l := NewLoader()
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	// Only the first underscore separates section and key.
	if got := l.GetString("runtime.max_attempts"); got != "5" {
		t.Errorf("runtime.max_attempts = %q, want %q", got, "5")
	}
	if got := l.GetString("log.level"); got != "warn" {
		t.Errorf("log.level = %q, want %q", got, "warn")
	}
}

func TestLoader_LoadEnv_CustomPrefix(t *testing.T) {
	t.Setenv("MYAPP_SCAN_CONCURRENCY", "9")

	l := NewLoader(WithEnvPrefix("MYAPP_"))
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	if got := l.GetString("scan.concurrency"); got != "9" {
		t.Errorf("scan.concurrency = %q, want %q", got, "9")
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()

	if err := l.LoadMap(map[string]any{"scan.concurrency": 16}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}

	if got := l.GetInt("scan.concurrency"); got != 16 {
		t.Errorf("scan.concurrency = %d, want 16", got)
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeFile(t, "heapsight.yaml", `
log:
  level: error
scan:
  concurrency: 8
`)
	t.Setenv("HEAPSIGHT_LOG_LEVEL", "debug")

	l := NewLoader(WithConfigFile(path))
	cfg := defaults()
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, want debug (env should override file)", cfg.Log.Level)
	}
	if cfg.Scan.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8 (file should override default)", cfg.Scan.Concurrency)
	}
	if cfg.Runtime.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want default 3", cfg.Runtime.MaxAttempts)
	}
}

func TestLoader_Load_Duration(t *testing.T) {
	path := writeFile(t, "heapsight.toml", `
[runtime]
retry_delay = "1s"
`)

	l := NewLoader(WithConfigFile(path))
	cfg := defaults()
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Runtime.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.Runtime.RetryDelay)
	}
}

func TestLoader_IsLoaded(t *testing.T) {
	l := NewLoader()

	if l.IsLoaded() {
		t.Error("IsLoaded() should be false before Load()")
	}

	cfg := defaults()
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !l.IsLoaded() {
		t.Error("IsLoaded() should be true after Load()")
	}
}

func TestLoader_All(t *testing.T) {
	l := NewLoader()
	if err := l.LoadMap(map[string]any{
		"log.level":  "info",
		"log.format": "json",
	}); err != nil {
		t.Fatal(err)
	}

	all := l.All()
	if all["log.level"] != "info" || all["log.format"] != "json" {
		t.Errorf("All() = %v", all)
	}
}

func TestTOMLParser_RoundTrip(t *testing.T) {
	p := TOML()
	out, err := p.Marshal(map[string]any{"scan": map[string]any{"concurrency": int64(4)}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	back, err := p.Unmarshal(out)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	scan, ok := back["scan"].(map[string]any)
	if !ok || scan["concurrency"] != int64(4) {
		t.Errorf("Unmarshal() = %v", back)
	}
}
