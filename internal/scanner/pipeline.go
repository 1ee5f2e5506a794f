package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// entry wraps a Scanner with a runtime-togglable enabled flag. The flag may
// be flipped concurrently with Run; readers see the current value with no
// stronger consistency requirement (spec §5: "no strict consistency
// required across scans").
type entry struct {
	scanner Scanner
	enabled atomic.Bool
}

// Pipeline runs an ordered sequence of scanners for one side (input or
// output). Errors from individual scanners are logged and recorded in the
// result but never abort the sequence — this mirrors the teacher's hook
// pipeline discipline of logging a hook failure and continuing.
type Pipeline struct {
	side                Side
	entries             []*entry
	blockOnScannerError bool
	pool                *Pool
	logger              *slog.Logger
}

// Config configures a Pipeline.
type Config struct {
	Side                Side
	BlockOnScannerError bool
	// Pool bounds the number of concurrent scanner invocations dispatched
	// off the calling goroutine. Nil runs scanners inline.
	Pool   *Pool
	Logger *slog.Logger
}

// New builds a Pipeline over scanners, in the given order. Order is
// significant: redacting scanners must be listed before classifiers that
// should see sanitized text.
func New(cfg Config, scanners ...Scanner) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Pipeline{
		side:                cfg.Side,
		blockOnScannerError: cfg.BlockOnScannerError,
		pool:                cfg.Pool,
		logger:              cfg.Logger,
	}
	for _, s := range scanners {
		e := &entry{scanner: s}
		e.enabled.Store(true)
		p.entries = append(p.entries, e)
	}
	return p
}

// SetEnabled toggles a scanner by name at runtime. Returns false if no
// scanner with that name is registered.
func (p *Pipeline) SetEnabled(name string, enabled bool) bool {
	for _, e := range p.entries {
		if e.scanner.Name() == name {
			e.enabled.Store(enabled)
			return true
		}
	}
	return false
}

// Run executes every enabled scanner in order against text, threading
// sanitized output from one scanner into the next. prompt is ignored by
// input-side pipelines (prompt == text there); output-side scanners
// receive the original request text as context.
func (p *Pipeline) Run(ctx context.Context, prompt, text string) *Result {
	result := &Result{
		Allowed:   true,
		Sanitized: text,
		Scanners:  make(map[string]Outcome),
	}

	for _, e := range p.entries {
		if !e.enabled.Load() {
			continue
		}
		result.ScannerCount++

		name := e.scanner.Name()
		before := result.Sanitized

		sanitized, passed, risk, err := p.invoke(ctx, e.scanner, prompt, before)
		if err != nil {
			result.Scanners[name] = Outcome{
				Passed: false,
				Risk:   1.0,
				Error:  err.Error(),
			}
			result.Allowed = false
			if p.logger != nil {
				p.logger.Warn("scanner: execution failed",
					"side", p.side, "scanner", name, "error", err)
			}
			// block_on_scanner_error=true aborts the remaining sequence;
			// the default (false) keeps every other scanner isolated from
			// this one's failure and runs them anyway (§4.3 error isolation).
			if p.blockOnScannerError {
				break
			}
			continue
		}

		result.Scanners[name] = Outcome{
			Passed:   passed,
			Risk:     risk,
			Modified: sanitized != before,
		}
		if !passed {
			result.Allowed = false
		}
		result.Sanitized = sanitized
	}

	return result
}

func (p *Pipeline) invoke(ctx context.Context, s Scanner, prompt, text string) (string, bool, float64, error) {
	if p.pool == nil {
		return s.Scan(ctx, prompt, text)
	}

	var sanitized string
	var passed bool
	var risk float64
	err := p.pool.Do(ctx, func() error {
		var scanErr error
		sanitized, passed, risk, scanErr = s.Scan(ctx, prompt, text)
		return scanErr
	})
	if err != nil {
		return text, false, 0, fmt.Errorf("scanner %s: %w", s.Name(), err)
	}
	return sanitized, passed, risk, nil
}
