package core

import "context"

// ModuleID uniquely identifies a lifecycle-managed component.
type ModuleID string

// Module is the minimal interface every lifecycle-managed component
// implements. Components are constructed directly (with typed config) by
// the wiring code in pkg/app rather than resolved dynamically by ID; the ID
// exists for logging and for Start/Stop ordering.
type Module interface {
	ModuleInfo() ModuleInfo
}

// ModuleInfo describes a module's identity.
type ModuleInfo struct {
	ID ModuleID
}

// Starter is implemented by modules that need to start background work
// (goroutines, listeners, connections). Called in registration order.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that need to clean up resources.
// Called during shutdown in reverse order of Start().
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader is implemented by modules that support live configuration reload.
type Reloader interface {
	Reload(ctx *AppContext) error
}
