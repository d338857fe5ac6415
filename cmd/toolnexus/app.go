package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/config"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/engine"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/storage"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/telemetry"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/tools"
)

// recentCapacity bounds the in-memory execution history served over HTTP.
const recentCapacity = 256

// app is the wired runtime shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tools    *tools.Registry
	catalog  *storage.MemoryCatalog
	policies *storage.MemoryPolicyStore
	metrics  *telemetry.GovernanceMetrics
	recent   *telemetry.RecentEvents
	pipeline *engine.Pipeline

	closers []func() error
}

// newApp builds the pipeline and every backend the configuration selects.
// On error, anything already opened is closed.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		tools:    tools.Builtin(),
		catalog:  storage.NewMemoryCatalog(),
		policies: storage.NewMemoryPolicyStore(),
		metrics:  telemetry.NewGovernanceMetrics(),
		recent:   telemetry.NewRecentEvents(recentCapacity),
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()
	a.apply(cfg)

	resultStore, err := a.openResultStore(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := a.openEventSink(ctx)
	if err != nil {
		return nil, err
	}
	admission, err := cfg.Admission.Runtime(ctx, logger)
	if err != nil {
		return nil, err
	}

	pc := engine.PipelineConfig{
		Catalog:     a.catalog,
		Policies:    a.policies,
		Executors:   a.tools,
		Sink:        sink,
		ResultStore: resultStore,
		CacheTTL:    cfg.Cache.DefaultTTL,
		Authority:   cfg.Authority,
		Admission:   admission,
		Resilience:  cfg.Resilience.Governance(logger),
		Metrics:     a.metrics,
		Logger:      logger,
	}
	if keys := config.NewStaticKeys(cfg.APIKeys); keys != nil {
		pc.APIKeys = keys
	}

	a.pipeline, err = engine.NewPipeline(pc)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// apply installs the catalog and policies from cfg. Configured manifests
// override builtin ones with the same id.
func (a *app) apply(cfg *config.Config) {
	byID := map[string]domain.Manifest{}
	for _, m := range a.tools.Manifests() {
		byID[m.ID] = m
	}
	for _, m := range cfg.Capabilities {
		byID[m.ID] = m
	}
	manifests := make([]domain.Manifest, 0, len(byID))
	for _, m := range byID {
		manifests = append(manifests, m)
	}
	a.catalog.Replace(manifests)
	a.policies.Replace(cfg.Policies.Default, cfg.Policies.Capabilities)
}

// reload applies a changed configuration. Only the catalog and policies are
// hot; backends and listeners keep their startup settings.
func (a *app) reload(cfg *config.Config) {
	a.apply(cfg)
	a.logger.Info("capabilities and policies reloaded",
		"capabilities", len(a.catalog.List()),
		"policies", len(cfg.Policies.Capabilities),
	)
}

func (a *app) openResultStore(ctx context.Context) (storage.ResultStore, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheRedis:
		client, err := storage.OpenRedis(ctx, a.cfg.Cache.StorageRedis())
		if err != nil {
			return nil, err
		}
		a.logger.Info("using redis result cache", "addr", a.cfg.Cache.Redis.Addr)
		return storage.NewRedisResultStore(client, a.cfg.Cache.Redis.KeyPrefix), nil
	default:
		return storage.NewMemoryResultStore(), nil
	}
}

func (a *app) openEventSink(ctx context.Context) (domain.EventSink, error) {
	switch a.cfg.Events.Sink {
	case config.SinkPostgres:
		db, err := storage.OpenPostgres(ctx, a.cfg.Events.StoragePostgres())
		if err != nil {
			return nil, err
		}
		sink := storage.NewPostgresEventSink(db)
		a.closers = append(a.closers, sink.Close)
		if err := storage.EnsureExecutionEventSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("prepare execution event schema: %w", err)
		}
		return telemetry.MultiSink{sink, a.recent}, nil
	case config.SinkBus:
		bus := telemetry.NewBusSink(nil)
		unsubscribe := bus.Subscribe(func(ev domain.ExecutionEvent) { a.recent.Add(ev) })
		a.closers = append(a.closers, func() error { unsubscribe(); return nil })
		return telemetry.MultiSink{telemetry.NewLogSink(a.logger), bus}, nil
	default:
		return telemetry.MultiSink{telemetry.NewLogSink(a.logger), a.recent}, nil
	}
}

// Close shuts the pipeline down and releases backends in reverse order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.pipeline != nil {
		errs = append(errs, a.pipeline.Close(ctx))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
