// Package config provides configuration structures and loading logic for the
// toolnexus runtime.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/engine/runtime"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/logging"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/telemetry"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Event sinks.
const (
	SinkLog      = "log"
	SinkBus      = "bus"
	SinkPostgres = "postgres"
)

// Config holds the global configuration for the toolnexus runtime.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Logging   logging.Config   `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`

	Cache      CacheConfig             `yaml:"cache"`
	Events     EventsConfig            `yaml:"events"`
	Authority  runtime.AuthorityConfig `yaml:"authority"`
	Admission  AdmissionConfig         `yaml:"admission"`
	Resilience ResilienceConfig        `yaml:"resilience"`

	Capabilities []domain.Manifest `yaml:"capabilities"`
	Policies     PoliciesConfig    `yaml:"policies"`
	APIKeys      []string          `yaml:"api_keys"`
}

// ServerConfig holds the listen addresses used by the serve command.
type ServerConfig struct {
	Address        string        `yaml:"address"`
	MetricsAddress string        `yaml:"metrics_address"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// CacheConfig selects the result store.
type CacheConfig struct {
	Backend    string        `yaml:"backend"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig describes the shared result cache.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	KeyPrefix   string        `yaml:"key_prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// EventsConfig selects where execution events go.
type EventsConfig struct {
	Sink     string         `yaml:"sink"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig describes the execution event database.
type PostgresConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AdmissionConfig holds the static admission gates and the optional Rego rule.
type AdmissionConfig struct {
	SupportedLanguages  []string `yaml:"supported_languages"`
	BlockedCapabilities []string `yaml:"blocked_capabilities"`
	// RegoDir holds .rego modules evaluated after the static gates.
	RegoDir    string `yaml:"rego_dir"`
	Entrypoint string `yaml:"entrypoint"`
}

// ResilienceConfig tunes circuit breakers shared by every capability.
type ResilienceConfig struct {
	Window        time.Duration `yaml:"window"`
	BreakDuration time.Duration `yaml:"break_duration"`
}

// PoliciesConfig holds the fallback policy and per-capability overrides.
// Overrides start from the fallback, so omitted fields inherit it.
type PoliciesConfig struct {
	Default      domain.ExecutionPolicy
	Capabilities []domain.ExecutionPolicy
}

// UnmarshalYAML layers every capability entry over the default policy.
func (p *PoliciesConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Default      yaml.Node   `yaml:"default"`
		Capabilities []yaml.Node `yaml:"capabilities"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	p.Default = domain.DefaultExecutionPolicy("")
	if !raw.Default.IsZero() {
		if err := raw.Default.Decode(&p.Default); err != nil {
			return fmt.Errorf("default policy: %w", err)
		}
	}

	p.Capabilities = make([]domain.ExecutionPolicy, 0, len(raw.Capabilities))
	for i := range raw.Capabilities {
		policy := p.Default
		policy.AllowedMethods = append([]string(nil), p.Default.AllowedMethods...)
		if err := raw.Capabilities[i].Decode(&policy); err != nil {
			return fmt.Errorf("policy %d: %w", i, err)
		}
		p.Capabilities = append(p.Capabilities, policy)
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        ":8088",
			MetricsAddress: ":9464",
			ReadTimeout:    10 * time.Second,
			MaxBodyBytes:   int64(domain.DefaultMaxInputSize) + 4096,
		},
		Logging: logging.Config{Level: "info", Format: logging.FormatText},
		Telemetry: telemetry.Config{
			ServiceName: "toolnexus",
			SampleRatio: 1,
		},
		Cache:  CacheConfig{Backend: CacheMemory, DefaultTTL: 5 * time.Minute},
		Events: EventsConfig{Sink: SinkLog},
		Policies: PoliciesConfig{
			Default: domain.DefaultExecutionPolicy(""),
		},
	}
}

// Load reads configuration from a file, expands environment variables and
// applies environment overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse expands ${VAR} references in data and decodes it over cfg.
func Parse(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	return yaml.Unmarshal([]byte(expanded), cfg)
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("TOOLNEXUS_ADDR"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv("TOOLNEXUS_METRICS_ADDR"); val != "" {
		cfg.Server.MetricsAddress = val
	}
	if val := os.Getenv("TOOLNEXUS_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("TOOLNEXUS_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("TOOLNEXUS_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.Endpoint = val
	}
	if val := os.Getenv("TOOLNEXUS_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("TOOLNEXUS_REDIS_ADDR"); val != "" {
		cfg.Cache.Backend = CacheRedis
		cfg.Cache.Redis.Addr = val
	}
	if val := os.Getenv("TOOLNEXUS_POSTGRES_URL"); val != "" {
		cfg.Events.Sink = SinkPostgres
		cfg.Events.Postgres.URL = val
	}
	if val := os.Getenv("TOOLNEXUS_UNIFIED_AUTHORITY"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			cfg.Authority.UnifiedEnabled = enabled
		}
	}
}

// Validate checks every section and normalizes enumerated values.
func (c *Config) Validate() error {
	if err := validateLogging(&c.Logging); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry configuration: %w: sample_ratio must be within [0,1]", domain.ErrConfigInvalid)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache configuration: %w", err)
	}
	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("events configuration: %w", err)
	}
	if c.Resilience.Window < 0 || c.Resilience.BreakDuration < 0 {
		return fmt.Errorf("resilience configuration: %w: durations must be non-negative", domain.ErrConfigInvalid)
	}
	if err := validateCapabilities(c.Capabilities); err != nil {
		return fmt.Errorf("capabilities: %w", err)
	}
	if err := c.Policies.Validate(); err != nil {
		return fmt.Errorf("policies: %w", err)
	}
	return nil
}

func validateLogging(c *logging.Config) error {
	level := strings.ToLower(strings.TrimSpace(c.Level))
	switch level {
	case "":
		c.Level = "info"
	case "debug", "info", "warn", "warning", "error":
		c.Level = level
	default:
		return fmt.Errorf("%w: invalid log level %q, supported levels: debug, info, warn, error", domain.ErrConfigInvalid, c.Level)
	}

	format := strings.ToLower(strings.TrimSpace(c.Format))
	switch format {
	case "":
		c.Format = logging.FormatText
	case logging.FormatText, logging.FormatJSON, logging.FormatConsole:
		c.Format = format
	default:
		return fmt.Errorf("%w: invalid log format %q", domain.ErrConfigInvalid, c.Format)
	}
	return nil
}

// Validate checks the listen settings.
func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = ":8088"
	}
	if c.MetricsAddress != "" && c.MetricsAddress == c.Address {
		return fmt.Errorf("%w: metrics_address %q conflicts with address", domain.ErrConfigInvalid, c.MetricsAddress)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: max_body_bytes must be non-negative", domain.ErrConfigInvalid)
	}
	return nil
}

// Validate checks the result store selection.
func (c *CacheConfig) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.DefaultTTL < 0 {
		return fmt.Errorf("%w: default_ttl must be non-negative", domain.ErrConfigInvalid)
	}
	switch c.Backend {
	case "":
		c.Backend = CacheMemory
	case CacheMemory:
	case CacheRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("%w: redis backend requires redis.addr", domain.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", domain.ErrConfigInvalid, c.Backend)
	}
	return nil
}

// Validate checks the event sink selection.
func (c *EventsConfig) Validate() error {
	c.Sink = strings.ToLower(strings.TrimSpace(c.Sink))
	switch c.Sink {
	case "":
		c.Sink = SinkLog
	case SinkLog, SinkBus:
	case SinkPostgres:
		if strings.TrimSpace(c.Postgres.URL) == "" {
			return fmt.Errorf("%w: postgres sink requires postgres.url", domain.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown event sink %q", domain.ErrConfigInvalid, c.Sink)
	}
	return nil
}

func validateCapabilities(manifests []domain.Manifest) error {
	seen := make(map[string]bool, len(manifests))
	var errs []error
	for i, m := range manifests {
		id := strings.ToLower(strings.TrimSpace(m.ID))
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("%w: capability %d has no id", domain.ErrConfigInvalid, i))
		case seen[id]:
			errs = append(errs, fmt.Errorf("%w: duplicate capability %q", domain.ErrConfigInvalid, m.ID))
		case len(m.Actions) == 0:
			errs = append(errs, fmt.Errorf("%w: capability %q declares no actions", domain.ErrConfigInvalid, m.ID))
		}
		seen[id] = true
	}
	return errors.Join(errs...)
}

// Validate rejects negative limits and anonymous capability entries. A zero
// timeout is left in place; the policy stage reports it per request.
func (c *PoliciesConfig) Validate() error {
	var errs []error
	check := func(name string, p domain.ExecutionPolicy) {
		if p.TimeoutSeconds < 0 || p.MaxInputSize < 0 || p.MaxRequestsPerMinute < 0 ||
			p.MaxConcurrency < 0 || p.CacheTTLSeconds < 0 || p.CircuitBreakerFailureThreshold < 0 {
			errs = append(errs, fmt.Errorf("%w: %s has a negative limit", domain.ErrConfigInvalid, name))
		}
	}
	check("default policy", c.Default)
	for i, p := range c.Capabilities {
		if strings.TrimSpace(p.CapabilityID) == "" {
			errs = append(errs, fmt.Errorf("%w: policy %d has no capability", domain.ErrConfigInvalid, i))
			continue
		}
		check("policy "+p.CapabilityID, p)
	}
	return errors.Join(errs...)
}
