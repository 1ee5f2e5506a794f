// Package streamguard implements the streaming guard pipeline: it tees
// each upstream chunk to the client immediately while periodically
// scanning the accumulated output, aborting the upstream connection the
// instant a violation is detected. Grounded on the teacher's
// provider/chain.go wrapStream idiom (observe values passing through a
// channel without altering them) combined with the scanning loop shape of
// its openai_compatible stream parser, and on spec.md §9's design note that
// a single pump goroutine feeding a channel is the preferred model for
// teeing without generator/async-iterator support.
package streamguard

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/cortexshield/llmguard/internal/cache"
	"github.com/cortexshield/llmguard/internal/scanner"
)

// State names the guard's position in its state machine, for logging and
// tests; it is not exposed as API beyond that.
type State string

const (
	StateStreaming State = "streaming"
	StateScanning  State = "scanning"
	StateBlocking  State = "blocking"
	StateFinalScan State = "final_scan"
	StateClosed    State = "closed"
)

// Chunk is one unit teed to the client: raw bytes plus the text extracted
// from it for accumulation (empty if the line carried no scannable text,
// e.g. a native no-op keepalive).
type Chunk struct {
	Raw  []byte
	Text string
	Done bool
}

// ExtractFunc parses one upstream line into a Chunk. Dialect-specific
// (native NDJSON vs OpenAI SSE production); supplied by the orchestrator.
type ExtractFunc func(line []byte) (Chunk, error)

// TerminalFrameFunc builds the single terminal error frame emitted to the
// client on a violation, in the stream's native framing.
type TerminalFrameFunc func(failed []scanner.FailedScanner) []byte

// Config configures one guard run.
type Config struct {
	Prompt          string
	ScanWindowBytes int
	Cache           *cache.Cache
	Pipeline        *scanner.Pipeline
	Extract         ExtractFunc
	TerminalFrame   TerminalFrameFunc
	CacheTTL        time.Duration
	Logger          *slog.Logger

	// IdleTimeout bounds the gap between two upstream chunks (spec §5:
	// "a streaming response that emits nothing for this long is aborted
	// with 504"). Zero disables the watchdog.
	IdleTimeout time.Duration
}

func (c *Config) defaults() {
	if c.ScanWindowBytes <= 0 {
		c.ScanWindowBytes = 500
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Upstream is the subset of upstream.ResponseHandle the guard needs,
// kept as an interface so it can be faked in tests without a live server.
type Upstream interface {
	Body() io.Reader
	Cancel()
}

// Result reports how a guard run ended.
type Result struct {
	Blocked        bool
	TimedOut       bool
	FailedScanners []scanner.FailedScanner
	BytesWritten   int64
}

// pumpMsg is one message from the line-reading goroutine to the guard loop.
type pumpMsg struct {
	line []byte
	err  error // io.EOF (or wrapped) on normal end; non-nil, non-EOF on read error
}

// Run tees upstream's body to w chunk-by-line, scanning the accumulated
// output every ScanWindowBytes bytes of growth and once more at EOF. A
// dedicated pump goroutine performs the blocking line reads so the guard
// loop can simultaneously watch ctx cancellation and the idle timer. It
// returns once the stream reaches a CLOSED state by any path: normal
// completion, violation, idle timeout, or ctx cancellation (client
// disconnect).
func Run(ctx context.Context, cfg Config, up Upstream, w io.Writer) Result {
	cfg.defaults()

	pump := make(chan pumpMsg, 1)
	go func() {
		scan := bufio.NewScanner(up.Body())
		scan.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scan.Scan() {
			line := append([]byte(nil), scan.Bytes()...)
			pump <- pumpMsg{line: line}
		}
		err := scan.Err()
		if err == nil {
			err = io.EOF
		}
		pump <- pumpMsg{err: err}
	}()

	var accumulator []byte
	var sinceLastScan int
	var result Result
	state := StateStreaming
	setState := func(s State) {
		state = s
		cfg.Logger.Debug("streamguard: state transition", "state", state)
	}

	finish := func(blocked bool) Result {
		setState(StateClosed)
		up.Cancel()
		result.Blocked = blocked
		return result
	}

	var idleTimer *time.Timer
	var idleCh <-chan time.Time
	if cfg.IdleTimeout > 0 {
		idleTimer = time.NewTimer(cfg.IdleTimeout)
		idleCh = idleTimer.C
		defer idleTimer.Stop()
	}
	resetIdle := func() {
		if idleTimer == nil {
			return
		}
		if !idleTimer.Stop() {
			select {
			case <-idleTimer.C:
			default:
			}
		}
		idleTimer.Reset(cfg.IdleTimeout)
	}

readLoop:
	for {
		select {
		case <-ctx.Done():
			return finish(false)
		case <-idleCh:
			cfg.Logger.Debug("streamguard: idle timeout, aborting upstream")
			result.TimedOut = true
			return finish(false)
		case msg := <-pump:
			resetIdle()
			if msg.err != nil {
				if msg.err != io.EOF {
					cfg.Logger.Debug("streamguard: upstream read ended with error", "error", msg.err)
				}
				break readLoop
			}

			chunk, err := cfg.Extract(msg.line)
			if err != nil {
				cfg.Logger.Warn("streamguard: failed to extract chunk", "error", err)
				continue
			}

			n, werr := w.Write(chunk.Raw)
			result.BytesWritten += int64(n)
			if werr != nil {
				cfg.Logger.Debug("streamguard: client write failed, treating as disconnect", "error", werr)
				return finish(false)
			}

			if chunk.Text == "" {
				if chunk.Done {
					break readLoop
				}
				continue
			}
			accumulator = append(accumulator, chunk.Text...)
			sinceLastScan += len(chunk.Text)

			if sinceLastScan >= cfg.ScanWindowBytes {
				setState(StateScanning)
				sinceLastScan = 0
				outcome := runScan(ctx, cfg, string(accumulator))
				if !outcome.Allowed {
					failed := outcome.FailedScanners()
					emitTerminal(cfg, w, failed)
					result.FailedScanners = failed
					return finish(true)
				}
				setState(StateStreaming)
			}

			if chunk.Done {
				break readLoop
			}
		}
	}

	// Final scan always runs at EOF regardless of whether the last window
	// boundary coincided with it — simpler than trying to suppress a
	// duplicate scan, and the pipeline's own cache/single-flight makes the
	// redundant case cheap when it does occur.
	setState(StateFinalScan)
	outcome := runScan(ctx, cfg, string(accumulator))
	if !outcome.Allowed {
		failed := outcome.FailedScanners()
		emitTerminal(cfg, w, failed)
		result.FailedScanners = failed
		return finish(true)
	}

	setState(StateClosed)
	up.Cancel()
	return result
}

func runScan(ctx context.Context, cfg Config, text string) *scanner.Result {
	fp := cache.Fingerprint(scanner.SideOutput, text)
	verdict, err := cfg.Cache.Compute(ctx, fp, cfg.CacheTTL, func() (*scanner.Result, error) {
		return cfg.Pipeline.Run(ctx, cfg.Prompt, text), nil
	})
	if err != nil {
		// A detached waiter (context canceled) has no verdict to act on;
		// treat as allowed so the caller's own ctx.Err() check handles the
		// disconnect instead of this function inventing a violation.
		return &scanner.Result{Allowed: true, Sanitized: text}
	}
	return verdict
}

func emitTerminal(cfg Config, w io.Writer, failed []scanner.FailedScanner) {
	frame := cfg.TerminalFrame(failed)
	if _, err := w.Write(frame); err != nil {
		cfg.Logger.Debug("streamguard: failed writing terminal frame", "error", err)
	}
}
