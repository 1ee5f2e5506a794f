// Package main is the entry point for the llmguard CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/cortexshield/llmguard/internal/config"
	"github.com/cortexshield/llmguard/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "llmguard",
		Short:         "A content-safety reverse proxy for Ollama-compatible model servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("llmguard %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return app.Run(app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				Commit:     commit,
				Date:       date,
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate a configuration file without starting the gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Printf("Configuration OK: bind %s, upstream %s\n", cfg.Bind.Addr(), cfg.Upstream.BaseURL)
			return nil
		},
	})
	return cmd
}

// serviceCmd wraps the gateway in a kardianos/service.Service so operators
// can install it as a native Windows service, a systemd unit, or a launchd
// daemon instead of managing a foreground process.
func serviceCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "service <install|uninstall|start|stop|run>",
		Short: "Manage llmguard as an OS service",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			svc, err := newService(cfgPath)
			if err != nil {
				return fmt.Errorf("service: %w", err)
			}

			action := args[0]
			if action == "run" {
				return svc.Run()
			}
			return service.Control(svc, action)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to configuration file (used by the installed service)")
	return cmd
}

func newService(cfgPath string) (service.Service, error) {
	svcConfig := &service.Config{
		Name:        "llmguard",
		DisplayName: "llmguard content-safety gateway",
		Description: "Reverse proxy that scans prompts and completions for an Ollama-compatible model server.",
	}
	if cfgPath != "" {
		svcConfig.Arguments = []string{"service", "run", "--config", cfgPath}
	} else {
		svcConfig.Arguments = []string{"service", "run"}
	}

	prog := &program{cfgPath: cfgPath}
	return service.New(prog, svcConfig)
}

// program implements service.Interface, bridging the OS service manager's
// Start/Stop calls to app.Run's own blocking signal loop: Start launches it
// on a goroutine, Stop asks that same process to shut down by sending
// itself the signal app.Run already listens for, rather than duplicating
// its shutdown sequencing.
type program struct {
	cfgPath string
}

func (p *program) Start(s service.Service) error {
	go func() {
		err := app.Run(app.RunParams{
			ConfigPath: p.cfgPath,
			Version:    version,
			Commit:     commit,
			Date:       date,
		})
		if err != nil {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			logger.Error("llmguard exited", "error", err)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	return syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
}
