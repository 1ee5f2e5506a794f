package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cortexshield/llmguard/internal/scanner"
	"golang.org/x/sync/singleflight"
)

// Cache is the two-tier scan verdict cache described in spec §4.2: a local
// LRU tier, an optional remote tier, and single-flight coalescing so
// concurrent lookups for one fingerprint compute the verdict exactly once.
type Cache struct {
	local   *localTier
	remote  remoteTier
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger

	// remoteHealthy tracks whether the remote tier is currently reachable,
	// flipped by HealthRecheck and by failed remote calls in auto mode.
	remoteHealthy atomic.Bool
}

// Config configures a Cache.
type Config struct {
	LocalMaxEntries int
	TTL             time.Duration
	Backend         Backend
	Remote          *RedisConfig
	Logger          *slog.Logger
}

// New builds a Cache. Remote is nil unless Config.Remote is set and
// Config.Backend is not BackendLocalOnly.
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendLocalOnly
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Cache{
		local:   newLocalTier(cfg.LocalMaxEntries),
		backend: cfg.Backend,
		ttl:     cfg.TTL,
		logger:  cfg.Logger,
	}
	if cfg.Remote != nil && cfg.Backend != BackendLocalOnly {
		c.remote = newRedisTier(*cfg.Remote)
		c.remoteHealthy.Store(true)
	}
	return c
}

// remoteUsable reports whether a remote call should be attempted right now.
func (c *Cache) remoteUsable() bool {
	if c.remote == nil || c.backend == BackendLocalOnly {
		return false
	}
	if c.backend == BackendRemoteOnly {
		return true
	}
	return c.remoteHealthy.Load()
}

// Lookup checks the local tier, then (if usable) the remote tier, promoting
// remote hits to local. Returns ok=false on a miss in every usable tier.
func (c *Cache) Lookup(ctx context.Context, fingerprint string) (*scanner.Result, bool, error) {
	if entry, ok := c.local.get(fingerprint); ok {
		return entry.Verdict, true, nil
	}
	if !c.remoteUsable() {
		if c.backend == BackendRemoteOnly {
			return nil, false, ErrRemoteUnavailable
		}
		return nil, false, nil
	}

	raw, ok, err := c.remote.Get(ctx, fingerprint)
	if err != nil {
		if c.backend == BackendRemoteOnly {
			return nil, false, err
		}
		c.markRemoteDown(err)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}

	var verdict scanner.Result
	if err := json.Unmarshal(raw, &verdict); err != nil {
		c.logger.Warn("cache: corrupt remote entry", "fingerprint", fingerprint, "error", err)
		return nil, false, nil
	}
	entry := Entry{Verdict: &verdict, ExpiresAt: time.Now().Add(c.ttl)}
	c.local.set(fingerprint, entry)
	return &verdict, true, nil
}

// Store writes to both tiers. The remote write is best-effort: its failure
// never surfaces to the caller, matching the "never block the request path
// on remote failure" contract.
func (c *Cache) Store(ctx context.Context, fingerprint string, verdict *scanner.Result, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.local.set(fingerprint, Entry{Verdict: verdict, ExpiresAt: time.Now().Add(ttl)})

	if !c.remoteUsable() {
		return
	}
	raw, err := json.Marshal(verdict)
	if err != nil {
		c.logger.Warn("cache: failed to marshal verdict for remote store", "error", err)
		return
	}
	if err := c.remote.Set(ctx, fingerprint, raw, ttl); err != nil {
		c.markRemoteDown(err)
	}
}

func (c *Cache) markRemoteDown(err error) {
	if c.backend != BackendAuto {
		return
	}
	if c.remoteHealthy.CompareAndSwap(true, false) {
		c.logger.Warn("cache: remote tier unreachable, degrading to local-only", "error", err)
	}
}

// RecheckRemoteHealth pings the remote tier and promotes the cache back to
// using it if the ping succeeds. Called on a schedule by
// CacheHealthRecheckJob; a no-op when there is no remote tier or it is
// already healthy.
func (c *Cache) RecheckRemoteHealth(ctx context.Context) {
	if c.remote == nil || c.backend != BackendAuto || c.remoteHealthy.Load() {
		return
	}
	if err := c.remote.Ping(ctx); err == nil {
		if c.remoteHealthy.CompareAndSwap(false, true) {
			c.logger.Info("cache: remote tier reachable again, resuming remote reads/writes")
		}
	}
}

// Compute returns the cached verdict for fingerprint, or runs fn exactly
// once across all concurrent callers sharing that fingerprint, storing and
// returning its result. A waiter whose ctx is canceled before fn completes
// returns ctx.Err() without affecting the shared computation, per the
// single-flight detach contract.
func (c *Cache) Compute(ctx context.Context, fingerprint string, ttl time.Duration, fn func() (*scanner.Result, error)) (*scanner.Result, error) {
	if verdict, ok, err := c.Lookup(ctx, fingerprint); err != nil {
		return nil, err
	} else if ok {
		return verdict, nil
	}

	type sfResult struct {
		verdict *scanner.Result
	}
	done := make(chan struct{})
	var out sfResult
	var outErr error

	go func() {
		v, err, _ := c.group.Do(fingerprint, func() (any, error) {
			verdict, err := fn()
			if err != nil {
				return nil, err
			}
			c.Store(context.Background(), fingerprint, verdict, ttl)
			return verdict, nil
		})
		if err == nil {
			out.verdict, _ = v.(*scanner.Result)
		}
		outErr = err
		close(done)
	}()

	select {
	case <-done:
		return out.verdict, outErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Clear empties the local tier. Used by the admin cache-clear endpoint; it
// does not touch the remote tier, which other processes may still rely on.
func (c *Cache) Clear() {
	c.local.purge()
}

// LocalLen returns the number of entries currently in the local tier, for
// the stats endpoint.
func (c *Cache) LocalLen() int {
	return c.local.len()
}

// Sweep removes expired entries from the local tier and returns the count
// removed. Called by CacheSweepJob.
func (c *Cache) Sweep() int {
	return c.local.sweep(time.Now())
}
