// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/nodediag/node"
	"github.com/jonwraymond/nodediag/observe"
	"github.com/jonwraymond/nodediag/secret"
)

// Config holds all nodediag configuration.
type Config struct {
	Controller Controller `yaml:"controller"`
	Workers    []Worker   `yaml:"workers"`
	Probe      Probe      `yaml:"probe"`
	Agent      Agent      `yaml:"agent"`
	Monitor    Monitor    `yaml:"monitor"`
	Bundle     Bundle     `yaml:"bundle"`
	Log        Log        `yaml:"log"`
	Telemetry  Telemetry  `yaml:"telemetry"`
}

// Controller names the local node.
type Controller struct {
	Name string `yaml:"name"`
}

// Worker is one remote node and its agent address.
type Worker struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Probe holds dispatch settings.
type Probe struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	MaxStale        time.Duration `yaml:"max_stale"` // 0 = serve cached reports forever
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset"`
}

// Agent holds worker agent settings. Key is shared by controller and agents.
type Agent struct {
	Listen        string        `yaml:"listen"`
	Key           string        `yaml:"key"` // may be ${VAR} or secretref:<provider>:<ref>
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// Monitor holds worker liveness settings.
type Monitor struct {
	Interval    time.Duration `yaml:"interval"`
	PingTimeout time.Duration `yaml:"ping_timeout"`
}

// Bundle holds bundle writing settings.
type Bundle struct {
	Parallelism int `yaml:"parallelism"`
}

// Log holds logging settings.
type Log struct {
	Level string `yaml:"level"`
}

// Telemetry holds OpenTelemetry settings.
type Telemetry struct {
	ServiceName     string  `yaml:"service_name"`
	TracingExporter string  `yaml:"tracing_exporter"` // otlp|stdout|none
	SamplePct       float64 `yaml:"sample_pct"`
	MetricsExporter string  `yaml:"metrics_exporter"` // otlp|prometheus|stdout|none
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Controller: Controller{Name: "master"},
		Probe: Probe{
			Timeout:         10 * time.Second,
			MaxAttempts:     1,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Agent: Agent{
			Listen:        ":7070",
			Issuer:        "nodediag",
			Audience:      "nodediag-agent",
			TokenTTL:      time.Minute,
			MaxConcurrent: 4,
		},
		Monitor: Monitor{
			Interval:    15 * time.Second,
			PingTimeout: 3 * time.Second,
		},
		Bundle: Bundle{Parallelism: 4},
		Log:    Log{Level: "info"},
		Telemetry: Telemetry{
			ServiceName:     "nodediag",
			TracingExporter: "none",
			SamplePct:       1.0,
			MetricsExporter: "none",
		},
	}
}

// DefaultPaths returns the config files read by LoadLayered, lowest priority
// first: the user config, then ./nodediag.yaml.
func DefaultPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "nodediag", "config.yaml"))
	}
	return append(paths, "nodediag.yaml")
}

// Load reads a single YAML config file at path and returns a Config.
// If the file does not exist, defaults are returned without error.
func Load(path string) (*Config, error) {
	return LoadLayered(path)
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones field by field; a layer that sets
// workers replaces the whole list. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if err := node.ValidateName(c.Controller.Name); err != nil {
		return fmt.Errorf("config: controller.name: %w", err)
	}
	seen := map[string]bool{c.Controller.Name: true}
	for i, w := range c.Workers {
		if err := node.ValidateName(w.Name); err != nil {
			return fmt.Errorf("config: workers[%d].name: %w", i, err)
		}
		if seen[w.Name] {
			return fmt.Errorf("config: workers[%d].name %q is not unique", i, w.Name)
		}
		seen[w.Name] = true
		if w.Address == "" {
			return fmt.Errorf("config: workers[%d].address cannot be empty", i)
		}
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("config: probe.timeout must be positive, got %v", c.Probe.Timeout)
	}
	if c.Probe.MaxAttempts < 1 {
		return fmt.Errorf("config: probe.max_attempts must be at least 1, got %d", c.Probe.MaxAttempts)
	}
	if c.Probe.MaxStale < 0 {
		return fmt.Errorf("config: probe.max_stale must be non-negative, got %v", c.Probe.MaxStale)
	}
	if c.Probe.BreakerFailures < 1 {
		return fmt.Errorf("config: probe.breaker_failures must be at least 1, got %d", c.Probe.BreakerFailures)
	}
	if c.Agent.Listen == "" {
		return errors.New("config: agent.listen cannot be empty")
	}
	if c.Agent.MaxConcurrent < 1 {
		return fmt.Errorf("config: agent.max_concurrent must be at least 1, got %d", c.Agent.MaxConcurrent)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("config: monitor.interval must be positive, got %v", c.Monitor.Interval)
	}
	if c.Bundle.Parallelism < 1 {
		return fmt.Errorf("config: bundle.parallelism must be at least 1, got %d", c.Bundle.Parallelism)
	}
	obs := c.ObserveConfig("")
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("config: telemetry: %w", err)
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: NODEDIAG_LOG_LEVEL, NODEDIAG_PROBE_TIMEOUT,
// NODEDIAG_AGENT_LISTEN, NODEDIAG_AGENT_KEY.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("NODEDIAG_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("NODEDIAG_PROBE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid NODEDIAG_PROBE_TIMEOUT %q: %w", v, err)
		}
		c.Probe.Timeout = d
	}
	if v := os.Getenv("NODEDIAG_AGENT_LISTEN"); v != "" {
		c.Agent.Listen = v
	}
	if v := os.Getenv("NODEDIAG_AGENT_KEY"); v != "" {
		c.Agent.Key = v
	}
	return nil
}

// Registry builds a node registry holding the controller and every configured
// worker. Workers start disconnected.
func (c *Config) Registry() (*node.Registry, error) {
	reg := node.NewRegistry(node.NewController(c.Controller.Name))
	for _, w := range c.Workers {
		if err := reg.Add(node.NewWorker(w.Name, w.Address)); err != nil {
			return nil, fmt.Errorf("config: worker %q: %w", w.Name, err)
		}
	}
	return reg, nil
}

// AgentKey resolves the agent signing key through r.
func (c *Config) AgentKey(ctx context.Context, r *secret.Resolver) ([]byte, error) {
	if c.Agent.Key == "" {
		return nil, errors.New("config: agent.key is not set")
	}
	key, err := r.ResolveValue(ctx, c.Agent.Key)
	if err != nil {
		return nil, fmt.Errorf("config: agent.key: %w", err)
	}
	return []byte(key), nil
}

// ObserveConfig maps the telemetry and log settings onto observe.Config.
func (c *Config) ObserveConfig(version string) observe.Config {
	t := c.Telemetry
	return observe.Config{
		ServiceName: t.ServiceName,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   t.TracingExporter != "" && t.TracingExporter != "none",
			Exporter:  t.TracingExporter,
			SamplePct: t.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  t.MetricsExporter != "" && t.MetricsExporter != "none",
			Exporter: t.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Log.Level,
		},
	}
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	Controller *rawController `yaml:"controller"`
	Workers    *[]Worker      `yaml:"workers"`
	Probe      *rawProbe      `yaml:"probe"`
	Agent      *rawAgent      `yaml:"agent"`
	Monitor    *rawMonitor    `yaml:"monitor"`
	Bundle     *rawBundle     `yaml:"bundle"`
	Log        *rawLog        `yaml:"log"`
	Telemetry  *rawTelemetry  `yaml:"telemetry"`
}

type rawController struct {
	Name *string `yaml:"name"`
}

type rawProbe struct {
	Timeout         *time.Duration `yaml:"timeout"`
	MaxAttempts     *int           `yaml:"max_attempts"`
	MaxStale        *time.Duration `yaml:"max_stale"`
	BreakerFailures *int           `yaml:"breaker_failures"`
	BreakerReset    *time.Duration `yaml:"breaker_reset"`
}

type rawAgent struct {
	Listen        *string        `yaml:"listen"`
	Key           *string        `yaml:"key"`
	Issuer        *string        `yaml:"issuer"`
	Audience      *string        `yaml:"audience"`
	TokenTTL      *time.Duration `yaml:"token_ttl"`
	MaxConcurrent *int           `yaml:"max_concurrent"`
}

type rawMonitor struct {
	Interval    *time.Duration `yaml:"interval"`
	PingTimeout *time.Duration `yaml:"ping_timeout"`
}

type rawBundle struct {
	Parallelism *int `yaml:"parallelism"`
}

type rawLog struct {
	Level *string `yaml:"level"`
}

type rawTelemetry struct {
	ServiceName     *string  `yaml:"service_name"`
	TracingExporter *string  `yaml:"tracing_exporter"`
	SamplePct       *float64 `yaml:"sample_pct"`
	MetricsExporter *string  `yaml:"metrics_exporter"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if l := layer.Controller; l != nil {
		set(&c.Controller.Name, l.Name)
	}
	if layer.Workers != nil {
		c.Workers = append([]Worker(nil), (*layer.Workers)...)
	}
	if l := layer.Probe; l != nil {
		set(&c.Probe.Timeout, l.Timeout)
		set(&c.Probe.MaxAttempts, l.MaxAttempts)
		set(&c.Probe.MaxStale, l.MaxStale)
		set(&c.Probe.BreakerFailures, l.BreakerFailures)
		set(&c.Probe.BreakerReset, l.BreakerReset)
	}
	if l := layer.Agent; l != nil {
		set(&c.Agent.Listen, l.Listen)
		set(&c.Agent.Key, l.Key)
		set(&c.Agent.Issuer, l.Issuer)
		set(&c.Agent.Audience, l.Audience)
		set(&c.Agent.TokenTTL, l.TokenTTL)
		set(&c.Agent.MaxConcurrent, l.MaxConcurrent)
	}
	if l := layer.Monitor; l != nil {
		set(&c.Monitor.Interval, l.Interval)
		set(&c.Monitor.PingTimeout, l.PingTimeout)
	}
	if l := layer.Bundle; l != nil {
		set(&c.Bundle.Parallelism, l.Parallelism)
	}
	if l := layer.Log; l != nil {
		set(&c.Log.Level, l.Level)
	}
	if l := layer.Telemetry; l != nil {
		set(&c.Telemetry.ServiceName, l.ServiceName)
		set(&c.Telemetry.TracingExporter, l.TracingExporter)
		set(&c.Telemetry.SamplePct, l.SamplePct)
		set(&c.Telemetry.MetricsExporter, l.MetricsExporter)
	}
}
