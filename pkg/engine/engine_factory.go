package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ankitdsmb/ToolNexus-sub004/internal/governance"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/cache"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/engine/runtime"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/storage"
	"github.com/ankitdsmb/ToolNexus-sub004/pkg/telemetry"
)

// PipelineConfig holds dependencies for creating a Pipeline. Catalog and
// Executors are required; everything else has an in-memory default.
type PipelineConfig struct {
	Catalog   domain.CapabilityCatalog
	Policies  domain.PolicyRegistry
	Executors domain.ExecutorRegistry
	RateGuard domain.RateGuard
	APIKeys   domain.APIKeyValidator
	Sink      domain.EventSink

	ResultStore storage.ResultStore
	CacheTTL    time.Duration

	Authority  runtime.AuthorityConfig
	Admission  runtime.AdmissionConfig
	Resilience governance.ResilienceConfig
	// Workers backs the out-of-process adapter; nil uses an in-memory pool
	// and a runtime manager that never prepares anything.
	Workers *runtime.WorkerOrchestrator
	// Metrics receives governance series when set.
	Metrics *telemetry.GovernanceMetrics

	Logger *slog.Logger
}

// Pipeline is a fully wired execution chain together with the shared
// components it owns.
type Pipeline struct {
	*Chain

	limiter    *governance.ConcurrencyLimiter
	cache      *cache.ResultCache
	resilience *governance.ResilienceProvider
	engine     *runtime.UniversalEngine
	logger     *slog.Logger
}

// NewPipeline wires the seven stages in their fixed order.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("%w: capability catalog is required", domain.ErrConfigInvalid)
	}
	if cfg.Executors == nil {
		return nil, fmt.Errorf("%w: executor registry is required", domain.ErrConfigInvalid)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policies := cfg.Policies
	if policies == nil {
		policies = storage.NewMemoryPolicyStore()
	}
	rateGuard := cfg.RateGuard
	if rateGuard == nil {
		rateGuard = governance.NewRateGuard()
	}

	var observer governance.ConcurrencyObserver
	var executionObserver ExecutionObserver
	var onFault cache.FaultObserver
	resilienceCfg := cfg.Resilience
	if resilienceCfg.Logger == nil {
		resilienceCfg.Logger = logger
	}
	if m := cfg.Metrics; m != nil {
		observer = m
		executionObserver = m
		onFault = m.CacheFault
		userHook := resilienceCfg.OnStateChange
		resilienceCfg.OnStateChange = func(capabilityID string, from, to governance.CircuitBreakerState) {
			m.BreakerStateChanged(capabilityID, string(from), string(to))
			if userHook != nil {
				userHook(capabilityID, from, to)
			}
		}
	}

	workers := cfg.Workers
	if workers == nil {
		workers = runtime.NewWorkerOrchestrator(runtime.NewMemoryPoolCoordinator(0), runtime.NoopRuntimeManager{}, logger)
	}
	universal := runtime.NewUniversalEngine(runtime.EngineConfig{
		Adapters: []runtime.Adapter{
			runtime.NewInProcessAdapter(cfg.Executors),
			runtime.NewWorkerAdapter(runtime.LanguagePython, workers),
		},
		Legacy: runtime.NewLegacyDispatcher(cfg.Executors),
		Logger: logger,
	})

	admissionCfg := cfg.Admission
	if admissionCfg.Logger == nil {
		admissionCfg.Logger = logger
	}

	p := &Pipeline{
		limiter: governance.NewConcurrencyLimiter(observer),
		cache: cache.New(cache.Config{
			Store:      cfg.ResultStore,
			DefaultTTL: cfg.CacheTTL,
			Logger:     logger,
			OnFault:    onFault,
		}),
		resilience: governance.NewResilienceProvider(resilienceCfg),
		engine:     universal,
		logger:     logger,
	}

	p.Chain = NewChain(logger,
		NewValidationStage(cfg.Catalog, policies, logger),
		NewPolicyStage(rateGuard, cfg.APIKeys),
		NewConcurrencyStage(p.limiter),
		NewCacheStage(p.cache),
		NewExecutionStage(ExecutionStageConfig{
			Mapper:     runtime.NewRequestMapper(logger),
			Authority:  runtime.NewAuthorityResolver(cfg.Authority),
			Snapshots:  runtime.NewSnapshotBuilder(),
			Admission:  runtime.NewAdmissionController(admissionCfg),
			Engine:     universal,
			Resilience: p.resilience,
			Validator:  runtime.NewConformanceValidator(logger),
			Logger:     logger,
		}),
		NewTelemetryStage(cfg.Sink, logger),
		NewMetricsStage(executionObserver),
	)

	return p, nil
}

// Languages lists the runtime languages with a registered adapter.
func (p *Pipeline) Languages() []string {
	return p.engine.Languages()
}

// BreakerStats reports circuit breaker statistics per resilience key.
func (p *Pipeline) BreakerStats() map[string]governance.CircuitBreakerStats {
	return p.resilience.Stats()
}

// Close releases the result store.
func (p *Pipeline) Close(_ context.Context) error {
	if err := p.cache.Close(); err != nil {
		return fmt.Errorf("close result cache: %w", err)
	}
	return nil
}
