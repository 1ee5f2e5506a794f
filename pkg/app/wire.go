package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cortexshield/llmguard/internal/admission"
	"github.com/cortexshield/llmguard/internal/cache"
	"github.com/cortexshield/llmguard/internal/config"
	"github.com/cortexshield/llmguard/internal/core"
	"github.com/cortexshield/llmguard/internal/cron"
	"github.com/cortexshield/llmguard/internal/gateway"
	"github.com/cortexshield/llmguard/internal/scanner"
	"github.com/cortexshield/llmguard/internal/security"
	"github.com/cortexshield/llmguard/internal/upstream"
	"github.com/cortexshield/llmguard/pkg/memsize"
)

// admissionConfigHolder lets the admission controller's limitsFor closure
// observe a SIGHUP config reload without restarting the controller: New's
// limitsFor argument is captured once at construction, so updating it in
// place is the only way an already-running queue's defaults can change for
// models not yet seen.
type admissionConfigHolder struct {
	mu  sync.RWMutex
	cfg config.AdmissionConfig
}

func (h *admissionConfigHolder) get() config.AdmissionConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func (h *admissionConfigHolder) set(cfg config.AdmissionConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

// admissionReloader implements core.Reloader: on SIGHUP it re-reads the
// admission config section from disk and pushes both the new defaults
// (via the holder, for models admitted later) and the new limits for every
// model already queued (via UpdateLimits, so an operator doesn't have to
// wait for a model to cycle out of cache to see a new limit take effect).
type admissionReloader struct {
	holder   *admissionConfigHolder
	admitter *admission.Controller
	cfgPath  string
}

func (r *admissionReloader) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "admission.reloader"}
}

func (r *admissionReloader) Reload(ctx *core.AppContext) error {
	cfg, err := config.Load(r.cfgPath)
	if err != nil {
		return fmt.Errorf("admission reload: loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("admission reload: validating config: %w", err)
	}

	r.holder.set(cfg.Admission)
	resolve := limitsFor(cfg.Admission)
	for _, snap := range r.admitter.Snapshot() {
		r.admitter.UpdateLimits(snap.Model, resolve(snap.Model))
	}
	ctx.Logger.Info("admission: limits reloaded", "models", len(r.admitter.Snapshot()))
	return nil
}

// schedulerModule wraps a *cron.Scheduler to satisfy core.Module,
// core.Starter, and core.Stopper, so the cache maintenance scheduler
// participates in the App lifecycle alongside the gateway.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron"}
}

func (m *schedulerModule) Start() error {
	return m.scheduler.Start()
}

func (m *schedulerModule) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}

// wireGateway builds the full component graph in dependency order — cache,
// scanner pipelines, admission controller, upstream client, gateway — and
// appends both the gateway and its cache-maintenance scheduler to app.
// Must be called after NewApp/NewAppContext and before app.Start.
func wireGateway(
	app *core.App,
	appCtx *core.AppContext,
	cfg *config.Config,
	auditLogger *security.AuditLogger,
	redactor *security.Redactor,
	version string,
	logger *slog.Logger,
) error {
	scanCache := wireCache(cfg.Cache, logger)
	appCtx.RegisterService("cache.scan", scanCache)

	inputPipeline, outputPipeline := wireScanners(cfg.Scan, redactor, logger)

	holder := &admissionConfigHolder{cfg: cfg.Admission}
	admitter := admission.New(func(model string) admission.Limits {
		return limitsFor(holder.get())(model)
	})

	upstreamClient := upstream.New(upstream.Config{
		BaseURL:          cfg.Upstream.BaseURL,
		ConnectTimeout:   cfg.Timeout.UpstreamConnect,
		IdleTimeout:      cfg.Timeout.UpstreamIdle,
		TotalBodyTimeout: 5 * time.Minute,
	})

	ipGate, err := security.NewIPGate(cfg.IPAllowlist)
	if err != nil {
		return fmt.Errorf("building ip allow-list: %w", err)
	}

	deps := gateway.Deps{
		Cache:           scanCache,
		InputPipeline:   inputPipeline,
		OutputPipeline:  outputPipeline,
		InputEnabled:    cfg.Scan.InputScanEnabled(),
		OutputEnabled:   cfg.Scan.OutputScanEnabled(),
		Admission:       admitter,
		Upstream:        upstreamClient,
		IPGate:          ipGate,
		Audit:           auditLogger,
		Metrics:         gateway.NewMetrics(nil),
		CacheTTL:        time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		ScanWindowBytes: cfg.Scan.WindowBytes,
		UpstreamIdle:    cfg.Timeout.UpstreamIdle,
		Version:         version,
		PublicConfig:    publicConfig(cfg),
	}

	g := gateway.New(gateway.Config{
		Bind:         cfg.Bind.Addr(),
		MaxBodyBytes: int64(security.DefaultMaxMessageSize),
	}, deps, appCtx.ForComponent("gateway").Logger)

	app.AppendModule("gateway.http", g)

	sched := cron.NewScheduler(appCtx.ForComponent("cron").Logger)
	if err := sched.RegisterJob(cache.NewSweepJob(scanCache, logger)); err != nil {
		return fmt.Errorf("registering cache sweep job: %w", err)
	}
	if err := sched.RegisterJob(cache.NewHealthRecheckJob(scanCache)); err != nil {
		return fmt.Errorf("registering cache health recheck job: %w", err)
	}
	app.AppendModule("cron", &schedulerModule{scheduler: sched})

	if cfgPath, ok := appCtx.Service("config.path"); ok {
		if path, ok := cfgPath.(string); ok {
			app.AppendModule("admission.reloader", &admissionReloader{holder: holder, admitter: admitter, cfgPath: path})
		}
	}

	logger.Info("gateway: wired", "bind", cfg.Bind.Addr(), "upstream", cfg.Upstream.BaseURL)
	return nil
}

// wireCache builds the two-tier scan cache from its config section,
// wiring the Redis remote tier only when a host is configured and the
// backend is not local-only.
func wireCache(cfg config.CacheConfig, logger *slog.Logger) *cache.Cache {
	var remote *cache.RedisConfig
	if cfg.Remote.Host != "" && cfg.Backend != "local-only" {
		remote = &cache.RedisConfig{
			Addr:        fmt.Sprintf("%s:%d", cfg.Remote.Host, cfg.Remote.Port),
			Password:    cfg.Remote.Password,
			DB:          cfg.Remote.DB,
			PoolSize:    cfg.Remote.PoolSize,
			DialTimeout: cfg.Remote.DialTimeout,
		}
	}

	var backend cache.Backend
	switch cfg.Backend {
	case "local-only":
		backend = cache.BackendLocalOnly
	case "remote-only":
		backend = cache.BackendRemoteOnly
	default:
		backend = cache.BackendAuto
	}

	return cache.New(cache.Config{
		LocalMaxEntries: cfg.LocalMaxEntries,
		TTL:             time.Duration(cfg.TTLSeconds) * time.Second,
		Backend:         backend,
		Remote:          remote,
		Logger:          logger,
	})
}

// wireScanners builds the input and output scan pipelines. The redaction
// scanner always runs first so any classifier registered after it sees
// already-sanitized text, per spec §4.3. A denylist scanner on both sides
// stands in for the opaque ML classifiers spec.md treats as out of scope.
func wireScanners(cfg config.ScanConfig, redactor *security.Redactor, logger *slog.Logger) (*scanner.Pipeline, *scanner.Pipeline) {
	pool := scanner.NewPool(4)

	input := scanner.New(scanner.Config{
		Side:                scanner.SideInput,
		BlockOnScannerError: cfg.BlockOnScannerError,
		Pool:                pool,
		Logger:              logger,
	},
		scanner.NewRedactionScanner(redactor),
		scanner.NewDenylistScanner("input-denylist", defaultDenylistPhrases),
	)

	output := scanner.New(scanner.Config{
		Side:                scanner.SideOutput,
		BlockOnScannerError: cfg.BlockOnScannerError,
		Pool:                pool,
		Logger:              logger,
	},
		scanner.NewRedactionScanner(redactor),
		scanner.NewDenylistScanner("output-denylist", defaultDenylistPhrases),
	)

	return input, output
}

// defaultDenylistPhrases seeds the reference denylist scanner. Operators
// wanting a real classifier register one in front of wireScanners' output
// instead; this list exists so the pipeline has a non-trivial default
// rather than shipping empty.
var defaultDenylistPhrases = []string{
	"ignore previous instructions",
	"reveal your system prompt",
}

// limitsFor builds the admission controller's per-model limit resolver
// from the admission config section, applying per-model overrides and
// resolving "auto" to the gopsutil-derived parallel limit.
func limitsFor(cfg config.AdmissionConfig) func(model string) admission.Limits {
	return func(model string) admission.Limits {
		limits := admission.Limits{
			ParallelLimit: resolveParallel(cfg.DefaultParallel),
			QueueLimit:    cfg.DefaultQueueLimit,
		}
		if ov, ok := cfg.Overrides[model]; ok {
			if ov.ParallelLimit != "" {
				limits.ParallelLimit = resolveParallel(ov.ParallelLimit)
			}
			if ov.QueueLimit != nil {
				limits.QueueLimit = *ov.QueueLimit
			}
		}
		return limits
	}
}

func resolveParallel(spec string) int {
	if spec == "" || spec == "auto" {
		return memsize.AutoParallelLimit(context.Background())
	}
	n, err := strconv.Atoi(spec)
	if err != nil || n < 1 {
		return memsize.AutoParallelLimit(context.Background())
	}
	return n
}

// publicConfig builds the non-sensitive GET /config view from the loaded
// configuration.
func publicConfig(cfg *config.Config) gateway.PublicConfig {
	return gateway.PublicConfig{
		Bind:               cfg.Bind.Addr(),
		UpstreamBaseURL:    cfg.Upstream.BaseURL,
		DefaultParallel:    cfg.Admission.DefaultParallel,
		DefaultQueueLimit:  cfg.Admission.DefaultQueueLimit,
		ScanInputEnabled:   cfg.Scan.InputScanEnabled(),
		ScanOutputEnabled:  cfg.Scan.OutputScanEnabled(),
		ScanWindowBytes:    cfg.Scan.WindowBytes,
		CacheBackend:       cfg.Cache.Backend,
		IPAllowlistEntries: len(cfg.IPAllowlist),
	}
}
