package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ankitdsmb/ToolNexus-sub004/internal/governance"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/engine/runtime"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/policy"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/storage"
)

// StorageRedis converts the cache section for storage.OpenRedis.
func (c CacheConfig) StorageRedis() storage.RedisConfig {
	return storage.RedisConfig{
		Addr:        c.Redis.Addr,
		Username:    c.Redis.Username,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		KeyPrefix:   c.Redis.KeyPrefix,
		DialTimeout: c.Redis.DialTimeout,
	}
}

// StoragePostgres converts the events section for storage.OpenPostgres.
func (c EventsConfig) StoragePostgres() storage.PostgresConfig {
	return storage.PostgresConfig{
		URL:             c.Postgres.URL,
		MaxOpenConns:    c.Postgres.MaxOpenConns,
		MaxIdleConns:    c.Postgres.MaxIdleConns,
		ConnMaxLifetime: c.Postgres.ConnMaxLifetime,
	}
}

// Governance converts the resilience section.
func (c ResilienceConfig) Governance(logger *slog.Logger) governance.ResilienceConfig {
	return governance.ResilienceConfig{
		Window:        c.Window,
		BreakDuration: c.BreakDuration,
		Logger:        logger,
	}
}

// Runtime builds the admission controller configuration, compiling the Rego
// modules in RegoDir when one is set.
func (c AdmissionConfig) Runtime(ctx context.Context, logger *slog.Logger) (runtime.AdmissionConfig, error) {
	out := runtime.AdmissionConfig{
		SupportedLanguages:  append([]string(nil), c.SupportedLanguages...),
		BlockedCapabilities: append([]string(nil), c.BlockedCapabilities...),
		Logger:              logger,
	}
	if strings.TrimSpace(c.RegoDir) == "" {
		return out, nil
	}

	modules, err := policy.LoadModules(c.RegoDir)
	if err != nil {
		return out, err
	}
	engine, err := policy.NewEngine(ctx, policy.EngineOptions{
		Entrypoint: c.Entrypoint,
		Modules:    modules,
		Logger:     logger,
	})
	if err != nil {
		return out, fmt.Errorf("admission rule: %w", err)
	}
	out.Rule = engine
	return out, nil
}

// StaticKeys validates API keys against a fixed set.
type StaticKeys map[string]struct{}

// NewStaticKeys builds a key set, ignoring blank entries. It returns nil when
// no keys are configured so any non-empty key is accepted.
func NewStaticKeys(keys []string) StaticKeys {
	set := StaticKeys{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			set[k] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// Valid implements domain.APIKeyValidator.
func (s StaticKeys) Valid(key string) bool {
	_, ok := s[key]
	return ok
}
