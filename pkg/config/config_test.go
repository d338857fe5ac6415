package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/logging"
)

const sampleConfig = `
server:
  address: ":9000"
logging:
  level: DEBUG
  format: json
cache:
  backend: redis
  default_ttl: 90s
  redis:
    addr: "${TEST_REDIS_ADDR}"
    key_prefix: "tn:"
events:
  sink: bus
authority:
  unified_enabled: true
  unified_languages: ["python"]
admission:
  supported_languages: ["go", "python"]
  blocked_capabilities: ["shell"]
resilience:
  window: 30s
  break_duration: 15s
capabilities:
  - id: json-format
    version: "1.0.0"
    actions: [format, minify]
    cacheable: true
    runtime_language: go
policies:
  default:
    timeout_seconds: 10
    max_requests_per_minute: 60
  capabilities:
    - capability: json-format
      max_input_size: 2048
      allowed_methods: [POST]
    - capability: legacy
      execution_enabled: false
api_keys: ["k1", " "]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolnexus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "localhost:6379")
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, ":9464", cfg.Server.MetricsAddress, "unset fields keep defaults")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, logging.FormatJSON, cfg.Logging.Format)

	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, "tn:", cfg.Cache.StorageRedis().KeyPrefix)
	assert.Equal(t, SinkBus, cfg.Events.Sink)

	assert.True(t, cfg.Authority.UnifiedEnabled)
	assert.Equal(t, []string{"python"}, cfg.Authority.UnifiedLanguages)
	assert.Equal(t, []string{"shell"}, cfg.Admission.BlockedCapabilities)
	assert.Equal(t, 15*time.Second, cfg.Resilience.Governance(nil).BreakDuration)

	require.Len(t, cfg.Capabilities, 1)
	assert.True(t, cfg.Capabilities[0].SupportsAction("minify"))
}

func TestPolicyOverridesInheritDefault(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "localhost:6379")
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	def := cfg.Policies.Default
	assert.Equal(t, 10, def.TimeoutSeconds)
	assert.Equal(t, 60, def.MaxRequestsPerMinute)
	assert.True(t, def.ExecutionEnabled, "omitted fields keep built-in defaults")
	assert.Equal(t, domain.DefaultMaxConcurrency, def.MaxConcurrency)

	require.Len(t, cfg.Policies.Capabilities, 2)
	jf := cfg.Policies.Capabilities[0]
	assert.Equal(t, "json-format", jf.CapabilityID)
	assert.Equal(t, 2048, jf.MaxInputSize)
	assert.Equal(t, 10, jf.TimeoutSeconds)
	assert.True(t, jf.ExecutionEnabled)
	assert.Equal(t, []string{"POST"}, jf.AllowedMethods)

	legacy := cfg.Policies.Capabilities[1]
	assert.False(t, legacy.ExecutionEnabled)
	assert.True(t, legacy.Disabled())
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, SinkLog, cfg.Events.Sink)
	assert.Equal(t, domain.DefaultExecutionPolicy(""), cfg.Policies.Default)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TOOLNEXUS_LOG_LEVEL", "warn")
	t.Setenv("TOOLNEXUS_POSTGRES_URL", "postgres://localhost/toolnexus")
	t.Setenv("TOOLNEXUS_UNIFIED_AUTHORITY", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, SinkPostgres, cfg.Events.Sink)
	assert.Equal(t, "postgres://localhost/toolnexus", cfg.Events.StoragePostgres().URL)
	assert.True(t, cfg.Authority.UnifiedEnabled)
}

func TestValidateRejectsInvalidSections(t *testing.T) {
	cases := map[string]string{
		"log level":            "logging:\n  level: loud\n",
		"log format":           "logging:\n  format: xml\n",
		"cache backend":        "cache:\n  backend: disk\n",
		"redis without addr":   "cache:\n  backend: redis\n",
		"postgres without url": "events:\n  sink: postgres\n",
		"unknown sink":         "events:\n  sink: kafka\n",
		"capability id":        "capabilities:\n  - actions: [a]\n",
		"no actions":           "capabilities:\n  - id: x\n",
		"duplicate":            "capabilities:\n  - id: x\n    actions: [a]\n  - id: X\n    actions: [a]\n",
		"policy capability":    "policies:\n  capabilities:\n    - timeout_seconds: 3\n",
		"negative limit":       "policies:\n  default:\n    max_concurrency: -1\n",
		"sample ratio":         "telemetry:\n  sample_ratio: 2\n",
		"port clash":           "server:\n  address: \":1\"\n  metrics_address: \":1\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrConfigInvalid)
		})
	}
}

func TestLoadReportsParseErrors(t *testing.T) {
	_, err := Load(writeConfig(t, "capabilities: [\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestAdmissionRuntimeWithoutRego(t *testing.T) {
	adm := AdmissionConfig{SupportedLanguages: []string{"go"}, BlockedCapabilities: []string{"x"}}
	out, err := adm.Runtime(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out.Rule)
	assert.Equal(t, []string{"go"}, out.SupportedLanguages)
}

func TestAdmissionRuntimeCompilesRego(t *testing.T) {
	dir := t.TempDir()
	module := `package toolnexus.admission

decision := {"action": "deny", "reason": "blocked by rule"} if {
	input.capability_id == "forbidden"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "admission.rego"), []byte(module), 0o600))

	out, err := AdmissionConfig{RegoDir: dir, Entrypoint: "toolnexus/admission/decision"}.Runtime(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, out.Rule)

	_, err = AdmissionConfig{RegoDir: t.TempDir()}.Runtime(context.Background(), nil)
	require.Error(t, err, "an empty rego dir is a configuration error")
}

func TestStaticKeys(t *testing.T) {
	assert.Nil(t, NewStaticKeys([]string{" ", ""}))
	keys := NewStaticKeys([]string{" k1 ", "k2"})
	assert.True(t, keys.Valid("k1"))
	assert.False(t, keys.Valid("k3"))
}

func TestLoaderWatchReloadsAndKeepsPreviousOnError(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	loader, err := NewLoader(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	loader.debounce = 10 * time.Millisecond

	_, err = loader.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	changes := make(chan *Config, 4)
	require.NoError(t, loader.Watch(ctx, func(c *Config) { changes <- c }))

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\n"), 0o600))
	select {
	case c := <-changes:
		assert.Equal(t, "error", c.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatalf("config change was not observed")
	}

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600))
	select {
	case c := <-changes:
		t.Fatalf("invalid config must not be published, got level %q", c.Logging.Level)
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, "error", loader.Current().Logging.Level)
}
