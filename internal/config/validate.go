package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Validate checks the structural validity of a Config: the version field,
// the upstream URL, the bind address, IP allow-list CIDRs, and the numeric
// bounds of the admission and cache sections.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if cfg.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("config: upstream.base_url is required"))
	} else if u, err := url.Parse(cfg.Upstream.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("config: upstream.base_url: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("config: upstream.base_url: unsupported scheme %q", u.Scheme))
	}

	if cfg.Bind.Port < 0 || cfg.Bind.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: bind.port out of range: %d", cfg.Bind.Port))
	}

	errs = append(errs, validateAdmission(cfg.Admission)...)
	errs = append(errs, validateCache(cfg.Cache)...)

	for i, cidr := range cfg.IPAllowlist {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			// Accept a bare IP as a /32 (or /128) allowance too.
			if net.ParseIP(cidr) == nil {
				errs = append(errs, fmt.Errorf("config: ip_allowlist[%d]: invalid CIDR or IP %q: %w", i, cidr, err))
			}
		}
	}

	if cfg.Scan.WindowBytes < 0 {
		errs = append(errs, fmt.Errorf("config: scan.window_bytes must be >= 0, got %d", cfg.Scan.WindowBytes))
	}

	return errors.Join(errs...)
}

func validateAdmission(a AdmissionConfig) []error {
	var errs []error
	if err := validateParallelSpec(a.DefaultParallel); err != nil {
		errs = append(errs, fmt.Errorf("config: admission.default_parallel: %w", err))
	}
	if a.DefaultQueueLimit < 0 {
		errs = append(errs, fmt.Errorf("config: admission.default_queue_limit must be >= 0, got %d", a.DefaultQueueLimit))
	}
	for model, ov := range a.Overrides {
		if ov.ParallelLimit != "" {
			if err := validateParallelSpec(ov.ParallelLimit); err != nil {
				errs = append(errs, fmt.Errorf("config: admission.overrides[%s].parallel_limit: %w", model, err))
			}
		}
		if ov.QueueLimit != nil && *ov.QueueLimit < 0 {
			errs = append(errs, fmt.Errorf("config: admission.overrides[%s].queue_limit must be >= 0", model))
		}
	}
	return errs
}

func validateParallelSpec(spec string) error {
	if spec == "" || spec == "auto" {
		return nil
	}
	n, err := strconv.Atoi(spec)
	if err != nil {
		return fmt.Errorf("must be an integer or \"auto\", got %q", spec)
	}
	if n < 1 {
		return fmt.Errorf("must be >= 1, got %d", n)
	}
	return nil
}

func validateCache(c CacheConfig) []error {
	var errs []error
	switch c.Backend {
	case "", "auto", "local-only", "remote-only":
	default:
		errs = append(errs, fmt.Errorf("config: cache.backend: unknown mode %q", c.Backend))
	}
	if c.LocalMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("config: cache.local_max_entries must be >= 0, got %d", c.LocalMaxEntries))
	}
	if c.TTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("config: cache.ttl_seconds must be >= 0, got %d", c.TTLSeconds))
	}
	if c.Backend == "remote-only" && c.Remote.Host == "" {
		errs = append(errs, errors.New("config: cache.backend is remote-only but cache.remote.host is empty"))
	}
	return errs
}
