// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for llmguard.
package config

import (
	"strconv"
	"time"
)

// Config is the top-level configuration structure for the proxy.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Upstream  UpstreamConfig  `yaml:"upstream"`
	Bind      BindConfig      `yaml:"bind"`
	Admission AdmissionConfig `yaml:"admission"`
	Scan      ScanConfig      `yaml:"scan"`
	Cache     CacheConfig     `yaml:"cache"`
	Timeout   TimeoutConfig   `yaml:"timeout"`

	// IPAllowlist lists CIDRs permitted to connect. Empty means allow all.
	IPAllowlist []string `yaml:"ip_allowlist,omitempty"`

	Logging LoggingConfig `yaml:"logging"`
}

// UpstreamConfig describes the backend the proxy forwards to.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`
}

// BindConfig describes the proxy's listen address.
type BindConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (b BindConfig) Addr() string {
	host := b.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := b.Port
	if port == 0 {
		port = 11434
	}
	return host + ":" + strconv.Itoa(port)
}

// AdmissionConfig configures the per-model admission controller (spec §4.4).
type AdmissionConfig struct {
	// DefaultParallel is an integer or the literal string "auto".
	DefaultParallel   string                   `yaml:"default_parallel"`
	DefaultQueueLimit int                      `yaml:"default_queue_limit"`
	Overrides         map[string]ModelOverride `yaml:"overrides,omitempty"`
}

// ModelOverride overrides admission defaults for one model name.
type ModelOverride struct {
	ParallelLimit string `yaml:"parallel_limit,omitempty"`
	QueueLimit    *int   `yaml:"queue_limit,omitempty"`
}

// ScanConfig configures the input/output scanner pipelines (spec §4.3, §4.6).
type ScanConfig struct {
	// InputEnabled and OutputEnabled gate the prompt/completion scan
	// pipelines. Both default to true: an operator who omits them gets a
	// safety-scanning proxy, not a silent passthrough.
	InputEnabled        *bool `yaml:"input_enabled"`
	OutputEnabled       *bool `yaml:"output_enabled"`
	BlockOnScannerError bool  `yaml:"block_on_scanner_error"`
	WindowBytes         int   `yaml:"window_bytes"`
}

func (s *ScanConfig) defaults() {
	if s.InputEnabled == nil {
		t := true
		s.InputEnabled = &t
	}
	if s.OutputEnabled == nil {
		t := true
		s.OutputEnabled = &t
	}
}

// InputScanEnabled reports whether the input scan pipeline should run.
func (s ScanConfig) InputScanEnabled() bool {
	return s.InputEnabled == nil || *s.InputEnabled
}

// OutputScanEnabled reports whether the output scan pipeline should run.
func (s ScanConfig) OutputScanEnabled() bool {
	return s.OutputEnabled == nil || *s.OutputEnabled
}

// CacheConfig configures the two-tier scan cache (spec §4.2).
type CacheConfig struct {
	// Backend selects "auto", "local-only", or "remote-only".
	Backend         string      `yaml:"backend"`
	LocalMaxEntries int         `yaml:"local_max_entries"`
	TTLSeconds      int         `yaml:"ttl_seconds"`
	Remote          RemoteCache `yaml:"remote,omitempty"`
}

// RemoteCache configures the optional Redis-backed remote cache tier.
type RemoteCache struct {
	Host            string        `yaml:"host,omitempty"`
	Port            int           `yaml:"port,omitempty"`
	Password        string        `yaml:"password,omitempty"`
	DB              int           `yaml:"db,omitempty"`
	PoolSize        int           `yaml:"pool_size,omitempty"`
	DialTimeout     time.Duration `yaml:"dial_timeout,omitempty"`
	HealthRecheck   time.Duration `yaml:"health_recheck_interval,omitempty"`
}

// TimeoutConfig configures upstream timeouts (spec §5).
type TimeoutConfig struct {
	UpstreamConnect time.Duration `yaml:"upstream_connect"`
	UpstreamIdle    time.Duration `yaml:"upstream_idle"`
}

// LoggingConfig configures the ambient structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}
