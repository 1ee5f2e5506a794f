// Package core provides the module lifecycle foundation for llmguard:
// an ordered Start/Stop sequence over a fixed set of components, plus a
// small service registry so components built early (the scan cache) can be
// discovered by components built later (the gateway) without an import
// cycle.
package core

import (
	"log/slog"
	"sync"
)

// AppContext carries shared resources available to components during
// construction and at runtime.
type AppContext struct {
	// Logger for the current component scope.
	Logger *slog.Logger

	// DataDir is the root directory for persistent component data.
	DataDir string

	parentLogger *slog.Logger
	services     *serviceRegistry
}

// NewAppContext creates a new AppContext with the given base logger and data directory.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:       logger,
		DataDir:      dataDir,
		parentLogger: logger,
		services:     newServiceRegistry(),
	}
}

// ForComponent returns a new AppContext scoped to the given component name,
// with a child logger that includes the component name. The service
// registry is shared with the parent.
func (ctx *AppContext) ForComponent(name string) *AppContext {
	return &AppContext{
		Logger:       ctx.parentLogger.With("component", name),
		DataDir:      ctx.DataDir,
		parentLogger: ctx.parentLogger,
		services:     ctx.services,
	}
}

// RegisterService makes a value discoverable by name to later-constructed
// components (e.g. "cache.scan" -> *cache.ScanCache).
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.set(name, svc)
}

// Service looks up a previously registered value by name.
func (ctx *AppContext) Service(name string) (any, bool) {
	return ctx.services.get(name)
}

type serviceRegistry struct {
	mu   sync.RWMutex
	vals map[string]any
}

func newServiceRegistry() *serviceRegistry {
	return &serviceRegistry{vals: make(map[string]any)}
}

func (r *serviceRegistry) set(name string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vals[name] = v
}

func (r *serviceRegistry) get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vals[name]
	return v, ok
}
