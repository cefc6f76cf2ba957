package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/nodediag/secret"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Controller.Name != "master" {
		t.Errorf("controller name = %q, want %q", cfg.Controller.Name, "master")
	}
	if cfg.Probe.Timeout != 10*time.Second {
		t.Errorf("probe timeout = %v, want %v", cfg.Probe.Timeout, 10*time.Second)
	}
	if cfg.Probe.MaxStale != 0 {
		t.Errorf("max stale = %v, want unlimited", cfg.Probe.MaxStale)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "nodediag.yaml", `
controller:
  name: jenkins
workers:
  - name: A
    address: 10.0.0.1:7070
  - name: B
    address: 10.0.0.2:7070
probe:
  timeout: 2s
  max_stale: 1h
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Controller.Name != "jenkins" {
		t.Errorf("controller = %q", cfg.Controller.Name)
	}
	want := []Worker{{Name: "A", Address: "10.0.0.1:7070"}, {Name: "B", Address: "10.0.0.2:7070"}}
	if !reflect.DeepEqual(cfg.Workers, want) {
		t.Errorf("workers = %+v, want %+v", cfg.Workers, want)
	}
	if cfg.Probe.Timeout != 2*time.Second || cfg.Probe.MaxStale != time.Hour {
		t.Errorf("probe = %+v", cfg.Probe)
	}
	if cfg.Probe.MaxAttempts != 1 {
		t.Errorf("unset max_attempts = %d, want default 1", cfg.Probe.MaxAttempts)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/nodediag.yaml")
	if err != nil {
		t.Fatalf("Load() should return defaults for missing file, got error: %v", err)
	}
	if !reflect.DeepEqual(*cfg, DefaultConfig()) {
		t.Errorf("Load(missing) = %+v, want defaults", *cfg)
	}
}

func TestLoad_CommentOnly(t *testing.T) {
	path := writeFile(t, t.TempDir(), "nodediag.yaml", "# nothing here\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(*cfg, DefaultConfig()) {
		t.Errorf("Load(comment-only) = %+v, want defaults", *cfg)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeFile(t, t.TempDir(), "nodediag.yaml", "probe:\n  timout: 1s\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should reject unknown fields")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "nodediag.yaml", "probe: [unclosed\n")
	_, err := Load(path)
	if err == nil || !strings.HasPrefix(err.Error(), "config: parsing") {
		t.Fatalf("Load() error = %v, want parse error", err)
	}
}

func TestLoadLayered(t *testing.T) {
	dir := t.TempDir()
	user := writeFile(t, dir, "user.yaml", `
workers:
  - name: A
    address: a:7070
probe:
  timeout: 5s
  max_attempts: 3
agent:
  key: ${NODEDIAG_TEST_KEY}
`)
	project := writeFile(t, dir, "project.yaml", `
workers:
  - name: B
    address: b:7070
probe:
  timeout: 1s
`)

	cfg, err := LoadLayered(user, filepath.Join(dir, "absent.yaml"), project)
	if err != nil {
		t.Fatalf("LoadLayered() error = %v", err)
	}
	if cfg.Probe.Timeout != time.Second {
		t.Errorf("timeout = %v, want later layer to win", cfg.Probe.Timeout)
	}
	if cfg.Probe.MaxAttempts != 3 {
		t.Errorf("max_attempts = %d, want earlier layer kept", cfg.Probe.MaxAttempts)
	}
	if len(cfg.Workers) != 1 || cfg.Workers[0].Name != "B" {
		t.Errorf("workers = %+v, want replaced by later layer", cfg.Workers)
	}
	if cfg.Agent.Key != "${NODEDIAG_TEST_KEY}" {
		t.Errorf("key = %q, want unexpanded reference", cfg.Agent.Key)
	}
}

func TestDefaultPaths(t *testing.T) {
	paths := DefaultPaths()
	if len(paths) == 0 || paths[len(paths)-1] != "nodediag.yaml" {
		t.Fatalf("DefaultPaths() = %v, want project file last", paths)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("NODEDIAG_LOG_LEVEL", "warn")
	t.Setenv("NODEDIAG_PROBE_TIMEOUT", "750ms")
	t.Setenv("NODEDIAG_AGENT_LISTEN", "127.0.0.1:9000")
	t.Setenv("NODEDIAG_AGENT_KEY", "k")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("level = %q", cfg.Log.Level)
	}
	if cfg.Probe.Timeout != 750*time.Millisecond {
		t.Errorf("timeout = %v", cfg.Probe.Timeout)
	}
	if cfg.Agent.Listen != "127.0.0.1:9000" || cfg.Agent.Key != "k" {
		t.Errorf("agent = %+v", cfg.Agent)
	}
}

func TestApplyEnv_BadDuration(t *testing.T) {
	t.Setenv("NODEDIAG_PROBE_TIMEOUT", "soon")
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil {
		t.Fatal("ApplyEnv() should reject an invalid duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty controller", func(c *Config) { c.Controller.Name = "" }},
		{"worker with slash", func(c *Config) { c.Workers = []Worker{{Name: "a/b", Address: "x"}} }},
		{"duplicate worker", func(c *Config) {
			c.Workers = []Worker{{Name: "A", Address: "x"}, {Name: "A", Address: "y"}}
		}},
		{"worker named like controller", func(c *Config) { c.Workers = []Worker{{Name: "master", Address: "x"}} }},
		{"worker without address", func(c *Config) { c.Workers = []Worker{{Name: "A"}} }},
		{"zero timeout", func(c *Config) { c.Probe.Timeout = 0 }},
		{"zero attempts", func(c *Config) { c.Probe.MaxAttempts = 0 }},
		{"negative max stale", func(c *Config) { c.Probe.MaxStale = -time.Second }},
		{"zero breaker failures", func(c *Config) { c.Probe.BreakerFailures = 0 }},
		{"empty listen", func(c *Config) { c.Agent.Listen = "" }},
		{"zero concurrency", func(c *Config) { c.Agent.MaxConcurrent = 0 }},
		{"zero interval", func(c *Config) { c.Monitor.Interval = 0 }},
		{"zero parallelism", func(c *Config) { c.Bundle.Parallelism = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad exporter", func(c *Config) { c.Telemetry.TracingExporter = "jaeger" }},
		{"bad sample pct", func(c *Config) {
			c.Telemetry.TracingExporter = "stdout"
			c.Telemetry.SamplePct = 2
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.HasPrefix(err.Error(), "config: ") {
				t.Errorf("error %q lacks config prefix", err)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = []Worker{{Name: "A", Address: "a:1"}, {Name: "B", Address: "b:1"}}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	if reg.Controller().Name() != "master" {
		t.Errorf("controller = %q", reg.Controller().Name())
	}
	workers := reg.Workers()
	if len(workers) != 2 || workers[0].Name() != "A" || workers[1].Name() != "B" {
		t.Fatalf("workers = %v", workers)
	}
	if workers[0].Connected() {
		t.Error("workers should start disconnected")
	}
}

func TestAgentKey(t *testing.T) {
	t.Setenv("NODEDIAG_TEST_KEY", "s3cret")
	cfg := DefaultConfig()
	cfg.Agent.Key = "${NODEDIAG_TEST_KEY}"

	key, err := cfg.AgentKey(context.Background(), secret.NewResolver())
	if err != nil {
		t.Fatalf("AgentKey() error = %v", err)
	}
	if string(key) != "s3cret" {
		t.Errorf("key = %q", key)
	}

	cfg.Agent.Key = ""
	if _, err := cfg.AgentKey(context.Background(), secret.NewResolver()); err == nil {
		t.Error("AgentKey() with no key should fail")
	}
}

func TestObserveConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.MetricsExporter = "prometheus"

	obs := cfg.ObserveConfig("1.2.3")
	if obs.ServiceName != "nodediag" || obs.Version != "1.2.3" {
		t.Errorf("obs = %+v", obs)
	}
	if obs.Tracing.Enabled {
		t.Error("tracing should be disabled for exporter none")
	}
	if !obs.Metrics.Enabled || obs.Metrics.Exporter != "prometheus" {
		t.Errorf("metrics = %+v", obs.Metrics)
	}
	if obs.Logging.Level != "info" {
		t.Errorf("level = %q", obs.Logging.Level)
	}
}
