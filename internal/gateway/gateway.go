// Package gateway implements the HTTP surface: the chi router, the
// native/OpenAI endpoint handlers that compose the Request Orchestrator
// flow (spec §4.7), and the admin/health/metrics endpoints. It is a leaf
// module — nothing imports it — constructed directly with its already-built
// dependencies by pkg/app/wire.go rather than resolving them dynamically,
// per the simplified core.Module contract.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cortexshield/llmguard/internal/admission"
	"github.com/cortexshield/llmguard/internal/cache"
	"github.com/cortexshield/llmguard/internal/core"
	"github.com/cortexshield/llmguard/internal/scanner"
	"github.com/cortexshield/llmguard/internal/security"
	"github.com/cortexshield/llmguard/internal/upstream"
)

// Deps are the already-constructed components the gateway composes into
// request handlers. Built by pkg/app/wire.go's wireGateway in dependency
// order: cache → scanner pipelines → admission → upstream → gateway.
type Deps struct {
	Cache          *cache.Cache
	InputPipeline  *scanner.Pipeline
	OutputPipeline *scanner.Pipeline
	InputEnabled   bool
	OutputEnabled  bool
	Admission      *admission.Controller
	Upstream       *upstream.Client
	IPGate         *security.IPGate
	Audit          *security.AuditLogger
	Metrics        *Metrics

	CacheTTL        time.Duration
	ScanWindowBytes int
	UpstreamIdle    time.Duration
	Version         string
	PublicConfig    PublicConfig
}

// Gateway is the HTTP gateway module.
type Gateway struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	server    *http.Server
	startedAt time.Time
}

// New builds a Gateway from its configuration and dependencies. Logging is
// scoped by the caller (typically appCtx.ForComponent) before this is called.
func New(cfg Config, deps Deps, logger *slog.Logger) *Gateway {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{cfg: cfg, deps: deps, logger: logger}
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "gateway.http"}
}

// Start implements core.Starter: builds the router and begins serving.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.cfg.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.cfg.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.cfg.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper: graceful shutdown with the configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, g.cfg.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
