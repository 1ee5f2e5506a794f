// Package cache implements the scan verdict cache: a local bounded tier
// backed by an optional remote tier, with single-flight coalescing so
// concurrent lookups for the same fingerprint share one computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/cortexshield/llmguard/internal/scanner"
)

// Side mirrors scanner.Side for fingerprint computation; kept as a distinct
// string type so a cache key always names which pipeline produced it.
type Side = scanner.Side

// Fingerprint returns the cache key for a (side, text) pair: a hex-encoded
// SHA-256 digest, matching the collision-resistant fixed-size hash spec.
func Fingerprint(side Side, text string) string {
	h := sha256.New()
	h.Write([]byte(side))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is one cached verdict. Immutable once written.
type Entry struct {
	Verdict   *scanner.Result
	ExpiresAt time.Time
}

func (e Entry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Backend selects how Cache balances its local and remote tiers.
type Backend string

const (
	// BackendAuto prefers the remote tier, silently falling back to
	// local-only on a transient remote failure.
	BackendAuto Backend = "auto"
	// BackendLocalOnly never touches the remote tier even if configured.
	BackendLocalOnly Backend = "local-only"
	// BackendRemoteOnly surfaces remote failures as lookup/store errors
	// instead of degrading to local-only.
	BackendRemoteOnly Backend = "remote-only"
)

// ErrRemoteUnavailable is returned by Lookup/Store in BackendRemoteOnly mode
// when the remote tier cannot be reached.
var ErrRemoteUnavailable = errors.New("cache: remote tier unavailable")

// remoteTier abstracts the KV store so cache logic is testable without a
// live Redis instance; redisTier is the production implementation.
type remoteTier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}
