package upstream

import "errors"

// ErrUpstreamUnreachable marks a connection-level failure reaching the
// backend, distinct from an upstream HTTP error status (which is forwarded
// as-is rather than turned into a Go error).
var ErrUpstreamUnreachable = errors.New("upstream: unreachable")
