// Package app provides the shared entry point for the llmguard binary.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cortexshield/llmguard/internal/config"
	"github.com/cortexshield/llmguard/internal/core"
	"github.com/cortexshield/llmguard/internal/security"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level
}

// Run loads configuration, wires and starts the gateway and its cache
// maintenance scheduler, and blocks until a shutdown signal is received.
// SIGHUP reloads the configuration file and pushes any changed admission
// limits into the running controller without restarting the listener.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	redactor := security.NewRedactor()

	credentials := security.NewCredentialStore()
	if cfg.Cache.Remote.Password != "" {
		credentials.Set("cache.remote.password", cfg.Cache.Remote.Password)
	}
	redactor.SyncCredentials(credentials)

	// Wrap the text handler in a redacting handler to prevent secret leakage in logs.
	innerHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: params.LogLevel,
	})
	logger := slog.New(security.NewRedactingHandler(innerHandler, redactor))

	auditLogger := security.NewAuditLogger(security.AuditLoggerConfig{
		Redactor: redactor,
	})

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	appCtx := core.NewAppContext(logger, dataDir)
	appCtx.RegisterService("security.redactor", redactor)
	appCtx.RegisterService("security.audit", auditLogger)
	appCtx.RegisterService("security.credentials", credentials)
	appCtx.RegisterService("config.path", cfgPath)

	application := core.NewApp(appCtx)

	if err := wireGateway(application, appCtx, cfg, auditLogger, redactor, params.Version, logger); err != nil {
		return fmt.Errorf("wiring gateway: %w", err)
	}

	if err := application.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			logger.Info("SIGHUP received, reloading configuration")
			if err := reloadAdmissionLimits(application, appCtx); err != nil {
				logger.Error("reload failed", "error", err)
			}
			continue
		}
		logger.Info("shutdown signal received", "signal", sig.String())
		application.Stop()
		logger.Info("shutdown complete")
		return nil
	}
	return nil
}

// reloadAdmissionLimits triggers every registered core.Reloader — in
// practice just the admission reloader appended by wireGateway, which
// re-reads the configuration file itself and pushes any changed per-model
// admission limits into the running controller. Every other setting (bind
// address, upstream URL, scan pipelines) requires a process restart, since
// those are only read once at wiring time.
func reloadAdmissionLimits(application *core.App, appCtx *core.AppContext) error {
	return application.ReloadModules(appCtx.ForComponent("reload"))
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/llmguard/llmguard.yaml →
// ~/.config/llmguard/llmguard.yaml → ./llmguard.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "llmguard", "llmguard.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "llmguard", "llmguard.yaml"))
	}

	candidates = append(candidates, "llmguard.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/llmguard if set, otherwise ~/.local/share/llmguard
// per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "llmguard")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "llmguard")
}
